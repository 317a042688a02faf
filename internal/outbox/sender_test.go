package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
)

// mockTransport records calls and returns configurable results.
type mockTransport struct {
	mu        sync.Mutex
	sent      []wire.OutgoingMessage
	edits     []string
	deletes   []string
	sendErr   error
	editErr   error
	deleteErr error
}

func (m *mockTransport) Send(_ context.Context, msg wire.OutgoingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.sendErr
}

func (m *mockTransport) Edit(_ context.Context, _, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, id)
	return m.editErr
}

func (m *mockTransport) Delete(_ context.Context, _, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, id)
	return m.deleteErr
}

func (m *mockTransport) setSendErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *mockTransport) sentCopy() []wire.OutgoingMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]wire.OutgoingMessage(nil), m.sent...)
}

type mockFallback struct {
	editErr   error
	deleteErr error
	calls     int
}

func (m *mockFallback) EditMessage(context.Context, string, string) error {
	m.calls++
	return m.editErr
}

func (m *mockFallback) DeleteMessage(context.Context, string) error {
	m.calls++
	return m.deleteErr
}

type mockUploader struct {
	err error
}

func (m *mockUploader) UploadFile(_ context.Context, path string) (rest.Upload, error) {
	if m.err != nil {
		return rest.Upload{}, m.err
	}
	return rest.Upload{URL: "https://cdn/" + path, MimeType: "image/png", FileName: path}, nil
}

type fixture struct {
	store     *store.Store
	roster    *roster.Roster
	transport *mockTransport
	fallback  *mockFallback
	uploader  *mockUploader
	bus       *bus.Bus
	sender    *Sender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     store.New(),
		roster:    roster.New("me"),
		transport: &mockTransport{},
		fallback:  &mockFallback{},
		uploader:  &mockUploader{},
		bus:       bus.New(),
	}
	f.sender = NewSender("me", f.store, f.roster, f.transport, f.fallback, f.uploader, f.bus, nil)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.sender.Start(context.Background())
	t.Cleanup(f.sender.Stop)
}

func waitKind(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", kind)
			return bus.Event{}
		}
	}
}

func TestSendTextIsOptimistic(t *testing.T) {
	f := newFixture(t)
	events, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()

	m, err := f.sender.SendText("bob", "  hello ", "")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if !m.Optimistic() || m.Status != store.StatusSending || m.Text != "hello" || m.ConversationID != "bob_me" {
		t.Errorf("placeholder = %+v", m)
	}
	if got := f.store.Messages("bob_me"); len(got) != 1 || got[0].ID != m.ID {
		t.Fatalf("store = %+v", got)
	}
	if c, ok := f.roster.Get("bob"); !ok || c.LastMessage != "hello" || c.UnreadCount != 0 {
		t.Errorf("roster contact = %+v", c)
	}
	if evt := waitKind(t, events, bus.KindMessageUpserted); evt.Payload.(store.Message).ID != m.ID {
		t.Errorf("upserted = %+v", evt.Payload)
	}

	f.start(t)
	ack := waitKind(t, events, bus.KindMessageSendAck).Payload.(SendAck)
	if ack.ClientMessageID != m.ID {
		t.Errorf("ack = %+v", ack)
	}
	sent := f.transport.sentCopy()
	if len(sent) != 1 || sent[0].ClientMessageID != m.ID || sent[0].To != "bob" || sent[0].Text != "hello" {
		t.Errorf("sent = %+v", sent)
	}

	// The server echo replaces the placeholder in place.
	echo := store.Message{ID: "s1", ClientMessageID: m.ID, ConversationID: "bob_me", SenderID: "me", RecipientID: "bob", Text: "hello"}
	if res := f.store.Ingest(echo); res != store.Replaced {
		t.Fatalf("Ingest(echo) = %v, want Replaced", res)
	}
	got := f.store.Messages("bob_me")
	if len(got) != 1 || got[0].ID != "s1" || got[0].Status != store.StatusSent {
		t.Errorf("after echo = %+v", got)
	}
}

func TestSendEmptyText(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sender.SendText("bob", "   ", ""); !errors.Is(err, ErrEmpty) {
		t.Errorf("error = %v, want ErrEmpty", err)
	}
	if f.store.MessageCount("bob_me") != 0 {
		t.Error("empty message stored")
	}
}

func TestSendOrderPreserved(t *testing.T) {
	f := newFixture(t)
	events, unsub := f.bus.Subscribe(bus.KindMessageSendAck, 16)
	defer unsub()
	f.start(t)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := f.sender.SendText("bob", text, ""); err != nil {
			t.Fatal(err)
		}
	}
	for j := 0; j < 3; j++ {
		waitKind(t, events, bus.KindMessageSendAck)
	}
	sent := f.transport.sentCopy()
	if len(sent) != 3 || sent[0].Text != "one" || sent[1].Text != "two" || sent[2].Text != "three" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendFailureThenResend(t *testing.T) {
	f := newFixture(t)
	f.transport.setSendErr(errors.New("socket closed"))
	events, unsub := f.bus.Subscribe("message.", 32)
	defer unsub()
	f.start(t)

	m, err := f.sender.SendText("bob", "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	failure := waitKind(t, events, bus.KindMessageSendFailed).Payload.(SendFailure)
	if failure.MessageID != m.ID || failure.Err == nil {
		t.Errorf("failure = %+v", failure)
	}
	if got, _ := f.store.Get("bob_me", m.ID); got.Status != store.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}

	f.transport.setSendErr(nil)
	if err := f.sender.Resend("bob_me", m.ID); err != nil {
		t.Fatalf("Resend() error = %v", err)
	}
	waitKind(t, events, bus.KindMessageSendAck)
	if got, _ := f.store.Get("bob_me", m.ID); got.Status != store.StatusSending {
		t.Errorf("status after resend = %s, want sending until echoed", got.Status)
	}
	if n := len(f.transport.sentCopy()); n != 2 {
		t.Errorf("sends = %d, want 2", n)
	}

	if err := f.sender.Resend("bob_me", m.ID); !errors.Is(err, ErrNotResendable) {
		t.Errorf("Resend(sending) error = %v", err)
	}
	if err := f.sender.Resend("bob_me", "nope"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("Resend(unknown) error = %v", err)
	}
}

func TestSendMediaUploadsFirst(t *testing.T) {
	f := newFixture(t)
	events, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()
	f.start(t)

	m, err := f.sender.SendMedia("bob", "/tmp/cat.png", "look")
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != store.TypeImage || m.Media == nil || m.Media.FileName != "cat.png" {
		t.Errorf("placeholder = %+v", m)
	}
	waitKind(t, events, bus.KindMessageSendAck)
	sent := f.transport.sentCopy()
	if len(sent) != 1 || sent[0].Media == nil || sent[0].Media.URL != "https://cdn//tmp/cat.png" || sent[0].Type != "image" || sent[0].Text != "look" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendMediaUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = errors.New("413")
	events, unsub := f.bus.Subscribe(bus.KindMessageSendFailed, 4)
	defer unsub()
	f.start(t)

	m, _ := f.sender.SendMedia("bob", "clip.mp4", "")
	waitKind(t, events, bus.KindMessageSendFailed)
	if got, _ := f.store.Get("bob_me", m.ID); got.Status != store.StatusFailed || got.Type != store.TypeVideo {
		t.Errorf("message = %+v", got)
	}
	if len(f.transport.sentCopy()) != 0 {
		t.Error("message sent without upload")
	}
}

func TestMediaType(t *testing.T) {
	tests := map[string]store.MessageType{
		"image/png":                store.TypeImage,
		"video/mp4":                store.TypeVideo,
		"audio/ogg":                store.TypeVoice,
		"application/octet-stream": store.TypeImage,
	}
	for in, want := range tests {
		if got := MediaType(in); got != want {
			t.Errorf("MediaType(%q) = %s, want %s", in, got, want)
		}
	}
}

func seed(f *fixture, msgs ...store.Message) {
	for _, m := range msgs {
		f.store.AddMessage(m.ConversationID, m)
		f.roster.Apply(m, "")
	}
}

func TestEditFallsBackToHTTP(t *testing.T) {
	f := newFixture(t)
	seed(f, store.Message{ID: "s1", ConversationID: "bob_me", SenderID: "me", RecipientID: "bob", Text: "helo"})
	f.transport.editErr = errors.New("not connected")

	if err := f.sender.Edit(context.Background(), "bob_me", "s1", "hello"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	got, _ := f.store.Get("bob_me", "s1")
	if got.Text != "hello" || !got.Edited || f.fallback.calls != 1 {
		t.Errorf("message = %+v, fallback calls = %d", got, f.fallback.calls)
	}

	f.fallback.editErr = errors.New("500")
	if err := f.sender.Edit(context.Background(), "bob_me", "s1", "again"); err == nil {
		t.Fatal("Edit() = nil with both paths failing")
	}
	if got, _ := f.store.Get("bob_me", "s1"); got.Text != "hello" {
		t.Errorf("text = %q, want unchanged", got.Text)
	}
}

func TestEditRejectsOthersMessages(t *testing.T) {
	f := newFixture(t)
	seed(f, store.Message{ID: "s1", ConversationID: "bob_me", SenderID: "bob", RecipientID: "me", Text: "x"})
	if err := f.sender.Edit(context.Background(), "bob_me", "s1", "y"); !errors.Is(err, ErrNotOwn) {
		t.Errorf("error = %v, want ErrNotOwn", err)
	}
	if err := f.sender.Delete(context.Background(), "bob_me", "zz"); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("error = %v, want ErrUnknownMessage", err)
	}
}

func TestDeleteFallbackAndFailure(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed(f,
		store.Message{ID: "s1", ConversationID: "bob_me", SenderID: "bob", RecipientID: "me", Text: "first", SentAt: base},
		store.Message{ID: "s2", ConversationID: "bob_me", SenderID: "me", RecipientID: "bob", Text: "second", SentAt: base.Add(time.Minute)},
	)
	f.transport.deleteErr = errors.New("not connected")
	f.fallback.deleteErr = errors.New("503")
	events, unsub := f.bus.Subscribe("message.", 16)
	defer unsub()

	if err := f.sender.Delete(context.Background(), "bob_me", "s2"); err == nil {
		t.Fatal("Delete() = nil with both paths failing")
	}
	if evt := waitKind(t, events, bus.KindMessageDeleteFailed); evt.Payload.(SendFailure).MessageID != "s2" {
		t.Errorf("delete_failed = %+v", evt.Payload)
	}
	if f.store.MessageCount("bob_me") != 2 {
		t.Error("message removed despite failure")
	}

	f.fallback.deleteErr = nil
	if err := f.sender.Delete(context.Background(), "bob_me", "s2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if evt := waitKind(t, events, bus.KindMessageRemoved); evt.Payload.(store.Message).ID != "s2" {
		t.Errorf("removed = %+v", evt.Payload)
	}
	if c, _ := f.roster.Get("bob"); c.LastMessage != "first" {
		t.Errorf("preview = %q, want first", c.LastMessage)
	}
}

func TestDeleteFailedPlaceholderIsLocal(t *testing.T) {
	f := newFixture(t)
	f.transport.setSendErr(errors.New("down"))
	events, unsub := f.bus.Subscribe(bus.KindMessageSendFailed, 4)
	defer unsub()
	f.start(t)

	m, _ := f.sender.SendText("bob", "lost", "")
	waitKind(t, events, bus.KindMessageSendFailed)

	if err := f.sender.Delete(context.Background(), "bob_me", m.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if f.store.MessageCount("bob_me") != 0 {
		t.Error("placeholder still stored")
	}
	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	if len(f.transport.deletes) != 0 {
		t.Errorf("transport deletes = %v", f.transport.deletes)
	}
	if c, _ := f.roster.Get("bob"); c.LastMessage != "" {
		t.Errorf("preview = %q", c.LastMessage)
	}
}
