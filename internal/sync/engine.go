// Package sync folds inbound realtime events and fetched history into the
// conversation store and the contact roster.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
)

// typingExpiry clears a peer's typing indicator when no stop arrives.
const typingExpiry = 6 * time.Second

// TypingState is the payload of conversation.typing events.
type TypingState struct {
	PeerID string
	Active bool
}

// Engine handles idempotent ingestion of messages into the store.
// It subscribes to "rt.*" events on the bus and processes them.
type Engine struct {
	self   string
	store  *store.Store
	roster *roster.Roster
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	mu       stdsync.Mutex
	openPeer func() string
	typing   map[string]*time.Timer
}

// NewEngine creates a new sync engine for the local user self.
func NewEngine(self string, st *store.Store, r *roster.Roster, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		self:   self,
		store:  st,
		roster: r,
		bus:    b,
		logger: logger.Named("sync"),
		typing: make(map[string]*time.Timer),
	}
}

// SetOpenPeer installs the function reporting which peer's conversation is
// on screen. Messages from that peer do not count as unread.
func (e *Engine) SetOpenPeer(fn func() string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.openPeer = fn
}

func (e *Engine) currentPeer() string {
	e.mu.Lock()
	fn := e.openPeer
	e.mu.Unlock()
	if fn == nil {
		return ""
	}
	return fn()
}

// Start subscribes to inbound realtime events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("rt.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.typing {
		t.Stop()
		delete(e.typing, id)
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case store.Message:
		e.IngestMessage(p)
	case wire.Edit:
		e.applyEdit(p)
	case wire.Deletion:
		e.applyDeletion(p)
	case wire.Reaction:
		if e.store.ApplyReaction(p.ConversationID, p.MessageID, p.Emoji, p.UserID, p.Add) {
			e.emitMessage(p.ConversationID, p.MessageID)
		}
	case wire.Receipt:
		for _, id := range e.store.MarkRead(p.ConversationID, p.ReaderID, p.MessageIDs) {
			e.emitMessage(p.ConversationID, id)
		}
	case wire.Presence:
		if p.Full {
			e.roster.SetPresence(p.Online)
		} else {
			e.roster.SetOnline(p.UserID, p.Active)
		}
		e.bus.Emit(bus.KindRosterChanged, nil)
	case wire.Typing:
		e.applyTyping(p)
	}
}

// IngestMessage stores a live message and updates the roster. Duplicates
// are ignored; a server echo replaces its optimistic placeholder.
func (e *Engine) IngestMessage(m store.Message) store.IngestResult {
	res := e.store.Ingest(m)
	if res == store.Ignored {
		e.logger.Debug("duplicate message ignored", zap.String("msg_id", m.ID))
		return res
	}
	stored, ok := e.store.Get(m.ConversationID, m.ID)
	if !ok {
		return res
	}
	e.roster.Apply(stored, e.currentPeer())
	if stored.SenderID != e.self {
		e.clearTyping(stored.SenderID)
	}
	e.bus.Emit(bus.KindMessageUpserted, stored)
	e.bus.Emit(bus.KindRosterChanged, nil)
	return res
}

// IngestHistory stores fetched history. History never changes unread
// counts; the roster preview only moves forward.
func (e *Engine) IngestHistory(msgs []store.Message) int {
	added := 0
	var newest *store.Message
	for i := range msgs {
		if e.store.Ingest(msgs[i]) == store.Ignored {
			continue
		}
		added++
		if stored, ok := e.store.Get(msgs[i].ConversationID, msgs[i].ID); ok {
			if newest == nil || stored.EffectiveTime().After(newest.EffectiveTime()) {
				newest = &stored
			}
		}
	}
	if newest != nil {
		e.roster.UpsertFromMessage(newest.Peer(e.self), newest.Preview(), newest.EffectiveTime())
		e.bus.Emit(bus.KindRosterChanged, nil)
	}
	return added
}

func (e *Engine) applyEdit(ed wire.Edit) {
	if !e.store.Edit(ed.ConversationID, ed.MessageID, ed.Text) {
		return
	}
	e.emitMessage(ed.ConversationID, ed.MessageID)
	e.refreshPreview(ed.ConversationID)
}

func (e *Engine) applyDeletion(d wire.Deletion) {
	removed, ok := e.store.Delete(d.ConversationID, d.MessageID)
	if !ok {
		return
	}
	e.bus.Emit(bus.KindMessageRemoved, removed)
	e.refreshPreview(d.ConversationID)
}

func (e *Engine) refreshPreview(conversationID string) {
	peer := store.OtherParticipant(conversationID, e.self)
	last, ok := e.store.Last(conversationID)
	e.roster.Refresh(peer, last, ok)
	e.bus.Emit(bus.KindRosterChanged, nil)
}

func (e *Engine) emitMessage(conversationID, id string) {
	if m, ok := e.store.Get(conversationID, id); ok {
		e.bus.Emit(bus.KindMessageUpserted, m)
	}
}

func (e *Engine) applyTyping(t wire.Typing) {
	if t.From == e.self {
		return
	}
	if !t.Active {
		e.clearTyping(t.From)
		return
	}
	e.mu.Lock()
	if timer, ok := e.typing[t.From]; ok {
		timer.Reset(typingExpiry)
		e.mu.Unlock()
		return
	}
	peer := t.From
	e.typing[peer] = time.AfterFunc(typingExpiry, func() { e.clearTyping(peer) })
	e.mu.Unlock()
	e.bus.Emit(bus.KindTyping, TypingState{PeerID: peer, Active: true})
}

func (e *Engine) clearTyping(peer string) {
	e.mu.Lock()
	timer, ok := e.typing[peer]
	if ok {
		timer.Stop()
		delete(e.typing, peer)
	}
	e.mu.Unlock()
	if ok {
		e.bus.Emit(bus.KindTyping, TypingState{PeerID: peer, Active: false})
	}
}

// Typing reports whether peer is currently typing.
func (e *Engine) Typing(peer string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.typing[peer]
	return ok
}
