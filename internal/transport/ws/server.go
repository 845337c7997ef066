package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/world"
)

const (
	defaultQueue = 64
	maxQueue     = 1024
)

type Server struct {
	world *world.World
	log   *log.Logger
	queue int

	upgrader websocket.Upgrader
}

// NewServer serves sessions for w. queue is the default per-session outbound
// buffer; a HELLO may ask for a different size.
func NewServer(w *world.World, logger *log.Logger, queue int) *Server {
	if queue <= 0 {
		queue = defaultQueue
	}
	s := &Server{
		world: w,
		log:   logger,
		queue: queue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, ok := decodeRequest(sessionID, msg)
			if !ok {
				continue
			}
			select {
			case s.world.Inbox() <- env:
			default:
				s.rejectBusy(out, env)
			}
		}

		// Cleanup.
		s.world.Leave() <- sessionID
	}
}

// decodeRequest turns one client frame into a world request. Frames of an
// unknown type or protocol version are ignored.
func decodeRequest(sessionID string, msg []byte) (world.RequestEnvelope, bool) {
	env := world.RequestEnvelope{SessionID: sessionID}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.ProtocolVersion != protocol.Version {
		return env, false
	}
	switch base.Type {
	case protocol.TypeConnectReq:
		var m protocol.ConnectReqMsg
		if json.Unmarshal(msg, &m) != nil {
			return env, false
		}
		env.Connect = &m
	case protocol.TypeDisconnectReq:
		var m protocol.DisconnectReqMsg
		if json.Unmarshal(msg, &m) != nil {
			return env, false
		}
		env.Disconnect = &m
	case protocol.TypeMove:
		var m protocol.MoveMsg
		if json.Unmarshal(msg, &m) != nil {
			return env, false
		}
		env.Move = &m
	case protocol.TypeResyncReq:
		var m protocol.ResyncReqMsg
		if json.Unmarshal(msg, &m) != nil {
			return env, false
		}
		env.Resync = &m
	default:
		return env, false
	}
	return env, true
}

// rejectBusy answers a request the world could not queue.
func (s *Server) rejectBusy(out chan []byte, env world.RequestEnvelope) {
	reqID := ""
	switch {
	case env.Connect != nil:
		reqID = env.Connect.ReqID
	case env.Disconnect != nil:
		reqID = env.Disconnect.ReqID
	default:
		return
	}
	b, _ := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Code:            protocol.ErrWorldBusy,
		Message:         "world inbox full",
	})
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	q := hello.MaxQueue
	if q <= 0 {
		q = s.queue
	}
	if q > maxQueue {
		q = maxQueue
	}
	out = make(chan []byte, q)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		SessionID: uuid.NewString(),
		Name:      hello.PlayerName,
		Pos:       hello.Pos,
		Out:       out,
		Resp:      respCh,
	}
	resp := <-respCh

	// WELCOME and the initial STATE go out before anything queued on out.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.SessionID
		return "", nil
	}
	if err := writeJSON(conn, resp.State); err != nil {
		s.world.Leave() <- resp.Welcome.SessionID
		return "", nil
	}
	if s.log != nil {
		s.log.Printf("session %s joined as %s", resp.Welcome.SessionID, resp.Welcome.PlayerID)
	}
	return resp.Welcome.SessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
