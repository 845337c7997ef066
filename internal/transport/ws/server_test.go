package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"wiregrid.ai/internal/protocol"
	"wiregrid.ai/internal/sim/world"
)

func TestDecodeRequest(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
		pick func(world.RequestEnvelope) bool
	}{
		{"connect", `{"type":"CONNECT_REQ","protocol_version":"1.0","req_id":"R1","entity_a":1,"entity_b":2}`, true,
			func(e world.RequestEnvelope) bool { return e.Connect != nil && e.Connect.EntityB == 2 }},
		{"disconnect", `{"type":"DISCONNECT_REQ","protocol_version":"1.0","req_id":"R2","wire_id":7}`, true,
			func(e world.RequestEnvelope) bool { return e.Disconnect != nil && e.Disconnect.WireID == 7 }},
		{"move", `{"type":"MOVE","protocol_version":"1.0","pos":[3,4]}`, true,
			func(e world.RequestEnvelope) bool { return e.Move != nil && e.Move.Pos == [2]float64{3, 4} }},
		{"resync", `{"type":"RESYNC_REQ","protocol_version":"1.0"}`, true,
			func(e world.RequestEnvelope) bool { return e.Resync != nil }},
		{"old version", `{"type":"MOVE","protocol_version":"0.9","pos":[3,4]}`, false, nil},
		{"unknown type", `{"type":"CHAT","protocol_version":"1.0"}`, false, nil},
		{"garbage", `{`, false, nil},
	}
	for _, tc := range cases {
		env, ok := decodeRequest("s1", []byte(tc.in))
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v want %v", tc.name, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if env.SessionID != "s1" || !tc.pick(env) {
			t.Fatalf("%s: unexpected envelope %+v", tc.name, env)
		}
	}
}

func TestRejectBusy(t *testing.T) {
	s := NewServer(nil, nil, 0)
	out := make(chan []byte, 2)
	s.rejectBusy(out, world.RequestEnvelope{Connect: &protocol.ConnectReqMsg{ReqID: "R9"}})
	s.rejectBusy(out, world.RequestEnvelope{Move: &protocol.MoveMsg{}})
	if len(out) != 1 {
		t.Fatalf("expected one ACK, got %d", len(out))
	}
	var ack protocol.AckMsg
	if err := json.Unmarshal(<-out, &ack); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ack.AckFor != "R9" || ack.Accepted || ack.Code != protocol.ErrWorldBusy {
		t.Fatalf("ack: %+v", ack)
	}
}

func TestHandshake(t *testing.T) {
	w := world.New(world.WorldConfig{ID: "ws", TickRateHz: 100}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	srv := httptest.NewServer(NewServer(w, nil, 8).Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	t.Run("bad version", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"})
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err = conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("expected policy close, got %v", err)
		}
	})

	t.Run("welcome then state", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()
		_ = conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "x"})
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var welcome protocol.WelcomeMsg
		if err := conn.ReadJSON(&welcome); err != nil {
			t.Fatalf("welcome: %v", err)
		}
		if welcome.Type != protocol.TypeWelcome || welcome.WorldID != "ws" || welcome.SessionID == "" {
			t.Fatalf("welcome: %+v", welcome)
		}
		var st protocol.StateMsg
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("state: %v", err)
		}
		if st.Type != protocol.TypeState {
			t.Fatalf("expected STATE, got %q", st.Type)
		}
	})
}
