package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/codec"
	"wiregrid.ai/internal/sim/power/model"
)

func (w *World) handleJoin(req JoinRequest) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if old := w.clients[req.SessionID]; old != nil {
		w.handleLeave(req.SessionID)
	}
	w.nextPlayer++
	cs := &clientState{
		SessionID: req.SessionID,
		Player:    model.PlayerID(fmt.Sprintf("P%04d", w.nextPlayer)),
		Name:      req.Name,
		Pos:       mgl64.Vec2{req.Pos[0], req.Pos[1]},
		Out:       req.Out,
	}
	w.clients[cs.SessionID] = cs
	w.players[cs.Player] = cs
	w.log.Printf("join session=%s player=%s name=%q", cs.SessionID, cs.Player, cs.Name)

	resp := JoinResponse{
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SessionID:       cs.SessionID,
			PlayerID:        string(cs.Player),
			WorldID:         w.cfg.ID,
			TickRateHz:      w.cfg.TickRateHz,
			PickRadius:      w.cfg.PickRadius,
			ConnectRange:    w.cfg.ConnectRange,
		},
	}
	// Sequence anything already applied so the dump and its Seq agree.
	w.flushEvents()
	resp.State = w.StateMsg()
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (w *World) handleLeave(session string) {
	cs := w.clients[session]
	if cs == nil {
		return
	}
	delete(w.clients, session)
	delete(w.players, cs.Player)
	w.log.Printf("leave session=%s player=%s", session, cs.Player)
}

func (w *World) handleRequest(tick uint64, env RequestEnvelope) {
	cs := w.clients[env.SessionID]
	if cs == nil {
		return
	}
	switch {
	case env.Connect != nil:
		req := env.Connect
		player := cs.Player
		wire, err := w.grid.Connect(model.EntityID(req.EntityA), model.EntityID(req.EntityB), &player)
		ack := w.ack(tick, req.ReqID, err)
		ack.WireID = uint64(wire)
		w.sendTo(cs.SessionID, ack)
	case env.Disconnect != nil:
		req := env.Disconnect
		err := w.grid.Disconnect(model.WireID(req.WireID))
		w.sendTo(cs.SessionID, w.ack(tick, req.ReqID, err))
	case env.Move != nil:
		cs.Pos = mgl64.Vec2{env.Move.Pos[0], env.Move.Pos[1]}
	case env.Resync != nil:
		w.log.Printf("resync session=%s reason=%q", cs.SessionID, env.Resync.Reason)
		w.resyncs = append(w.resyncs, cs.SessionID)
	}
}

func (w *World) ack(tick uint64, reqID string, err error) protocol.AckMsg {
	a := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Accepted:        err == nil,
		ServerTick:      tick,
	}
	if err != nil {
		a.Code = CodeFor(err)
		a.Message = err.Error()
	}
	return a
}

// answerResyncs runs after the tick's final flush, so each dump covers the
// whole stream the session is about to receive.
func (w *World) answerResyncs() {
	if len(w.resyncs) == 0 {
		return
	}
	st := w.StateMsg()
	for _, s := range w.resyncs {
		w.sendTo(s, st)
	}
	w.resyncs = w.resyncs[:0]
}

// StateMsg dumps the whole world as seen by clients. Seq is the last stream
// entry folded into it.
func (w *World) StateMsg() protocol.StateMsg {
	st := w.grid.State()
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            w.tick.Load(),
		Seq:             w.seq,
		Devices:         make([]protocol.DeviceInfo, 0, len(w.entities)),
		Wires:           make([]protocol.WireInfo, 0, len(st.Wires)),
		Circuits:        make([]protocol.CircuitInfo, 0, len(st.Circuits)),
	}
	for _, e := range w.Entities() {
		msg.Devices = append(msg.Devices, w.deviceInfo(e))
	}
	for _, wr := range st.Wires {
		msg.Wires = append(msg.Wires, codec.WireInfo(wr))
	}
	for _, c := range st.Circuits {
		msg.Circuits = append(msg.Circuits, codec.CircuitInfo(c))
	}
	return msg
}
