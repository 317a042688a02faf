package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
)

type testServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	auth  chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns: make(chan *websocket.Conn, 4),
		auth:  make(chan string, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.auth <- r.Header.Get("Authorization")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- c
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a connection")
		return nil
	}
}

func walkTo(t *testing.T, m *status.Machine, states ...status.State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func waitEvent(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for bus event")
		return bus.Event{}
	}
}

func TestConnDeliversFramesAndSends(t *testing.T) {
	ts := newTestServer(t)
	frames := make(chan wire.Envelope, 4)
	c := NewConn("messaging", ts.url(), "tok", nil, func(env wire.Envelope) { frames <- env }, nil)

	if err := c.Send(context.Background(), wire.TypeTypingStart, "bob", nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send() before Connect error = %v, want ErrNotConnected", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()
	if got := <-ts.auth; got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
	server := ts.accept(t)

	if err := server.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if err := server.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","from":"bob","id":"m1","payload":"hi"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case env := <-frames:
		if env.Type != "message" || env.ID != "m1" {
			t.Errorf("frame = %+v", env)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}

	if err := c.Send(context.Background(), wire.TypeTypingStart, "bob", nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("server ReadMessage() error = %v", err)
	}
	r := gjson.ParseBytes(raw)
	if r.Get("type").Str != wire.TypeTypingStart || r.Get("to").Str != "bob" {
		t.Errorf("sent frame = %s", raw)
	}
}

func TestConnDialFailure(t *testing.T) {
	c := NewConn("signal", "ws://127.0.0.1:1/ws", "", nil, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err == nil {
		t.Fatal("Connect() to closed port succeeded")
	}
	if c.Connected() {
		t.Error("Connected() = true after failed dial")
	}
}

func TestClientPublishesInboundFrames(t *testing.T) {
	msgSrv := newTestServer(t)
	sigSrv := newTestServer(t)
	b := bus.New()
	m := status.NewMachine(b)
	cl := NewClient(Options{Self: "me", Token: "t", MessagingURL: msgSrv.url(), SignalURL: sigSrv.url()}, b, m, nil)

	res := cl.Connect(context.Background())
	if !res.OK() {
		t.Fatalf("Connect() = %+v", res)
	}
	defer cl.Close()
	msgConn := msgSrv.accept(t)
	sigConn := sigSrv.accept(t)

	rt, unsub := b.Subscribe("rt.", 16)
	defer unsub()

	_ = msgConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","from":"bob","payload":{"id":"s1","text":"hey"}}`))
	evt := waitEvent(t, rt)
	msg, ok := evt.Payload.(store.Message)
	if evt.Kind != bus.KindRTMessage || !ok || msg.ID != "s1" || msg.ConversationID != "bob_me" {
		t.Fatalf("event = %s %+v", evt.Kind, evt.Payload)
	}

	// Malformed frames are dropped, the next good one still arrives.
	_ = msgConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"message","payload":{"text":"no id"}}`))
	_ = msgConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing.start","from":"bob"}`))
	if evt := waitEvent(t, rt); evt.Kind != bus.KindRTTyping {
		t.Fatalf("event = %s, want typing", evt.Kind)
	}

	_ = sigConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"call.initiate","from":"bob","to":"me","payload":{"callId":"c1"}}`))
	evt = waitEvent(t, rt)
	inv, ok := evt.Payload.(call.Invite)
	if evt.Kind != bus.KindRTCallIncoming || !ok || inv.CallID != "c1" || inv.Type != call.Audio {
		t.Fatalf("event = %s %+v", evt.Kind, evt.Payload)
	}
}

func TestSignalingFrames(t *testing.T) {
	srv := newTestServer(t)
	c := NewConn("signal", srv.url(), "", nil, nil, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	server := srv.accept(t)
	s := NewSignaling(c)
	ctx := context.Background()

	if err := s.Initiate(ctx, call.Invite{CallID: "c1", CallerID: "me", CalleeID: "bob", Type: call.Video}); err != nil {
		t.Fatal(err)
	}
	if err := s.Reject(ctx, "c1", "bob", "busy"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path, want string
	}{
		{"type", wire.TypeCallInitiate},
		{"type", wire.TypeCallReject},
	}
	for i, tt := range tests {
		_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := server.ReadMessage()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		r := gjson.ParseBytes(raw)
		if r.Get(tt.path).Str != tt.want || r.Get("to").Str != "bob" {
			t.Errorf("frame %d = %s", i, raw)
		}
		if i == 0 && r.Get("payload.callType").Str != "video" {
			t.Errorf("invite payload = %s", raw)
		}
		if i == 1 && r.Get("payload.reason").Str != "busy" {
			t.Errorf("reject payload = %s", raw)
		}
	}
}

func TestDropMovesToReconnecting(t *testing.T) {
	msgSrv := newTestServer(t)
	sigSrv := newTestServer(t)
	b := bus.New()
	m := status.NewMachine(b)
	cl := NewClient(Options{Self: "me", MessagingURL: msgSrv.url(), SignalURL: sigSrv.url()}, b, m, nil)
	if res := cl.Connect(context.Background()); !res.OK() {
		t.Fatalf("Connect() = %+v", res)
	}
	defer cl.Close()
	msgConn := msgSrv.accept(t)
	sigSrv.accept(t)
	walkTo(t, m, status.Connecting, status.Syncing, status.Ready)

	dropped, unsub := b.Subscribe(bus.KindDisconnected, 4)
	defer unsub()

	_ = msgConn.Close()
	evt := waitEvent(t, dropped)
	if evt.Payload != "messaging" {
		t.Errorf("payload = %v", evt.Payload)
	}
	if m.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", m.Current())
	}
	if cl.MessagingUp() {
		t.Error("MessagingUp() = true after drop")
	}
	if !cl.SignalUp() {
		t.Error("SignalUp() = false, signal channel was untouched")
	}
}

func TestCloseIsNotADrop(t *testing.T) {
	srv := newTestServer(t)
	var mu sync.Mutex
	drops := 0
	c := NewConn("messaging", srv.url(), "", nil, nil, func(error) {
		mu.Lock()
		drops++
		mu.Unlock()
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv.accept(t)
	c.Close()
	c.Close()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if drops != 0 {
		t.Errorf("drops = %d, want 0", drops)
	}
}

type typingCall struct {
	to     string
	active bool
}

type fakeTyping struct {
	mu    sync.Mutex
	calls []typingCall
}

func (f *fakeTyping) Typing(_ context.Context, to string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, typingCall{to, active})
	return nil
}

func (f *fakeTyping) snapshot() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]typingCall(nil), f.calls...)
}

func TestTypingNotifierThrottlesAndStops(t *testing.T) {
	f := &fakeTyping{}
	n := NewTypingNotifier(f, 80*time.Millisecond, nil)

	for j := 0; j < 5; j++ {
		n.Keystroke("bob")
	}
	if got := f.snapshot(); len(got) != 1 || !got[0].active {
		t.Fatalf("after burst calls = %+v, want a single start", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.snapshot()) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := f.snapshot()
	if len(got) != 2 || got[1] != (typingCall{"bob", false}) {
		t.Fatalf("calls = %+v, want start then stop", got)
	}

	// Stop without an outstanding start sends nothing.
	n.Stop("bob")
	n.Stop("eve")
	if len(f.snapshot()) != 2 {
		t.Errorf("calls = %+v", f.snapshot())
	}
}

func TestTypingNotifierStopAll(t *testing.T) {
	f := &fakeTyping{}
	n := NewTypingNotifier(f, time.Minute, nil)
	n.Keystroke("bob")
	n.Keystroke("eve")
	n.StopAll()

	stops := 0
	for _, c := range f.snapshot() {
		if !c.active {
			stops++
		}
	}
	if stops != 2 {
		t.Errorf("stops = %d, want 2 (%+v)", stops, f.snapshot())
	}
}
