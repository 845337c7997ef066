// Package client keeps a mirror of a server's circuit graph over a websocket
// session and forwards connect and disconnect intents.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/power/codec"
	"wiregrid.ai/internal/sim/power/mirror"
	"wiregrid.ai/internal/sim/power/model"
)

var ErrClosed = errors.New("client: session closed")

type Options struct {
	Name     string
	Pos      [2]float64
	MaxQueue int
	Logger   *log.Logger
}

// positions is read by the mirror while the client lock is held.
type positions map[model.EntityID]mgl64.Vec2

func (p positions) Position(e model.EntityID) (mgl64.Vec2, bool) {
	v, ok := p[e]
	return v, ok
}

type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.WelcomeMsg
	up      *uplink

	mu        sync.Mutex
	mirror    *mirror.Mirror
	pos       positions
	seq       uint64
	resyncing bool
	stats     protocol.StatsMsg

	acks    chan protocol.AckMsg
	resyncs atomic.Uint64

	done chan struct{}
	err  error
}

// Dial performs the HELLO handshake and loads the initial STATE before
// returning.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn: conn,
		log:  logger,
		pos:  positions{},
		acks: make(chan protocol.AckMsg, 64),
		done: make(chan struct{}),
	}
	c.up = &uplink{conn: conn}
	c.mirror = mirror.New(c.pos, c.up)

	if err := c.handshake(opts); err != nil {
		_ = conn.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(opts Options) error {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      opts.Name,
		Pos:             opts.Pos,
		MaxQueue:        opts.MaxQueue,
	}
	if err := c.up.send(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	if err := c.conn.ReadJSON(&c.welcome); err != nil {
		return fmt.Errorf("read WELCOME: %w", err)
	}
	if c.welcome.Type != protocol.TypeWelcome {
		return fmt.Errorf("expected WELCOME, got %q", c.welcome.Type)
	}
	var st protocol.StateMsg
	if err := c.conn.ReadJSON(&st); err != nil {
		return fmt.Errorf("read STATE: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(st)
}

func (c *Client) Welcome() protocol.WelcomeMsg { return c.welcome }

// Done is closed when the session ends; Err then reports why.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := c.conn.Close()
	<-c.done
	return err
}

// Acks delivers request acknowledgements in arrival order.
func (c *Client) Acks() <-chan protocol.AckMsg { return c.acks }

// WaitAck reads acknowledgements until the one for reqID arrives. Others are
// discarded.
func (c *Client) WaitAck(ctx context.Context, reqID string) (protocol.AckMsg, error) {
	for {
		select {
		case a := <-c.acks:
			if a.AckFor == reqID {
				return a, nil
			}
		case <-c.done:
			return protocol.AckMsg{}, ErrClosed
		case <-ctx.Done():
			return protocol.AckMsg{}, ctx.Err()
		}
	}
}

// View runs fn with exclusive access to the mirror. fn must not keep it.
func (c *Client) View(fn func(m *mirror.Mirror)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.mirror)
}

func (c *Client) Position(e model.EntityID) (mgl64.Vec2, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos.Position(e)
}

// Seq is the last stream entry folded into the mirror.
func (c *Client) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

func (c *Client) Resyncs() uint64 { return c.resyncs.Load() }

func (c *Client) LastStats() protocol.StatsMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) Connect(a, b model.EntityID) (string, error) { return c.up.connect(a, b) }

func (c *Client) Disconnect(w model.WireID) (string, error) { return c.up.disconnect(w) }

// DisconnectNear picks the wire under point using the server's pick radius
// and asks the server to remove it.
func (c *Client) DisconnectNear(point mgl64.Vec2) (string, model.WireID, error) {
	c.mu.Lock()
	_, wire, ok := c.mirror.FindWireNear(point, c.welcome.PickRadius)
	c.mu.Unlock()
	if !ok {
		return "", 0, fmt.Errorf("%w: no wire near %v", model.ErrNotFound, point)
	}
	id, err := c.up.disconnect(wire)
	return id, wire, err
}

func (c *Client) Move(pos mgl64.Vec2) error {
	return c.up.send(protocol.MoveMsg{
		Type:            protocol.TypeMove,
		ProtocolVersion: protocol.Version,
		Pos:             [2]float64{pos.X(), pos.Y()},
	})
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.err = err
			}
			return
		}
		if err := c.handle(msg); err != nil {
			c.log.Printf("handle: %v", err)
		}
	}
}

func (c *Client) handle(msg []byte) error {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	switch base.Type {
	case protocol.TypeEvents:
		var m protocol.EventsMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.acceptLocked(m.Seq) {
			return nil
		}
		return c.foldLocked(codec.ApplyEvents(c.mirror, m.Events))

	case protocol.TypeDevice:
		var m protocol.DeviceMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.acceptLocked(m.Seq) {
			return nil
		}
		err := codec.ApplyDevice(c.mirror, m)
		if err == nil {
			id := model.EntityID(m.Device.EntityID)
			if m.Op == protocol.DeviceOpRemove {
				delete(c.pos, id)
			} else {
				c.pos[id] = mgl64.Vec2{m.Device.Pos[0], m.Device.Pos[1]}
			}
		}
		return c.foldLocked(err)

	case protocol.TypeState:
		var m protocol.StateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.resetLocked(m); err != nil {
			// The stream stays paused until a usable STATE arrives.
			c.resyncLocked(fmt.Sprintf("bad STATE at seq %d: %v", m.Seq, err))
			return err
		}
		return nil

	case protocol.TypeStats:
		var m protocol.StatsMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		c.mu.Lock()
		c.stats = m
		c.mu.Unlock()

	case protocol.TypeAck:
		var m protocol.AckMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return err
		}
		select {
		case c.acks <- m:
		default:
			c.log.Printf("ack %s dropped: nobody reading", m.AckFor)
		}
	}
	return nil
}

// acceptLocked filters the stream: old entries are skipped, a gap starts a
// resync, and nothing is applied while one is pending.
func (c *Client) acceptLocked(seq uint64) bool {
	if c.resyncing || seq <= c.seq {
		return false
	}
	if seq != c.seq+1 {
		c.resyncLocked(fmt.Sprintf("seq gap: have %d got %d", c.seq, seq))
		return false
	}
	c.seq = seq
	return true
}

func (c *Client) foldLocked(err error) error {
	if err != nil {
		if errors.Is(err, mirror.ErrDesync) {
			c.resyncLocked(err.Error())
			return nil
		}
		return err
	}
	c.mirror.Aggregate()
	return nil
}

func (c *Client) resyncLocked(reason string) {
	c.resyncing = true
	c.resyncs.Add(1)
	c.log.Printf("resync: %s", reason)
	if err := c.up.send(protocol.ResyncReqMsg{
		Type:            protocol.TypeResyncReq,
		ProtocolVersion: protocol.Version,
		Reason:          reason,
	}); err != nil {
		c.log.Printf("send RESYNC_REQ: %v", err)
	}
}

func (c *Client) resetLocked(st protocol.StateMsg) error {
	ms, err := codec.StateFromWire(st)
	if err != nil {
		return err
	}
	if err := c.mirror.Reset(ms); err != nil {
		return err
	}
	for k := range c.pos {
		delete(c.pos, k)
	}
	for _, d := range st.Devices {
		c.pos[model.EntityID(d.EntityID)] = mgl64.Vec2{d.Pos[0], d.Pos[1]}
	}
	c.seq = st.Seq
	c.resyncing = false
	return nil
}

// uplink writes client frames. gorilla allows one concurrent writer.
type uplink struct {
	conn  *websocket.Conn
	mu    sync.Mutex
	reqNo atomic.Uint64
}

func (u *uplink) send(v any) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	_ = u.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return u.conn.WriteJSON(v)
}

func (u *uplink) nextReqID() string { return fmt.Sprintf("R%d", u.reqNo.Add(1)) }

func (u *uplink) connect(a, b model.EntityID) (string, error) {
	id := u.nextReqID()
	return id, u.send(protocol.ConnectReqMsg{
		Type:            protocol.TypeConnectReq,
		ProtocolVersion: protocol.Version,
		ReqID:           id,
		EntityA:         uint64(a),
		EntityB:         uint64(b),
	})
}

func (u *uplink) disconnect(w model.WireID) (string, error) {
	id := u.nextReqID()
	return id, u.send(protocol.DisconnectReqMsg{
		Type:            protocol.TypeDisconnectReq,
		ProtocolVersion: protocol.Version,
		ReqID:           id,
		WireID:          uint64(w),
	})
}

// RequestConnect and RequestDisconnect let the mirror forward intents.
func (u *uplink) RequestConnect(a, b model.EntityID) error {
	_, err := u.connect(a, b)
	return err
}

func (u *uplink) RequestDisconnect(w model.WireID) error {
	_, err := u.disconnect(w)
	return err
}
