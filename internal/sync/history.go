package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/store"
)

var ErrNoMoreHistory = errors.New("sync: no older messages")

// HistorySource fetches pages of a conversation.
type HistorySource interface {
	History(ctx context.Context, peer, before string, limit int) (rest.HistoryPage, error)
}

// HistoryLoaded is the payload of message.history_loaded events.
type HistoryLoaded struct {
	ConversationID string
	PeerID         string
	Added          int
	HasMore        bool
}

type cursor struct {
	next      string
	exhausted bool
	loaded    bool
}

// History pages conversations in from the server and tracks one cursor per
// conversation.
type History struct {
	self     string
	src      HistorySource
	engine   *Engine
	store    *store.Store
	bus      *bus.Bus
	pageSize int
	logger   *zap.Logger

	mu      stdsync.Mutex
	cursors map[string]*cursor
}

// NewHistory creates a history loader feeding engine.
func NewHistory(self string, src HistorySource, engine *Engine, st *store.Store, b *bus.Bus, pageSize int, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &History{
		self:     self,
		src:      src,
		engine:   engine,
		store:    st,
		bus:      b,
		pageSize: pageSize,
		logger:   logger.Named("history"),
		cursors:  make(map[string]*cursor),
	}
}

func (h *History) cursor(conversationID string) *cursor {
	c := h.cursors[conversationID]
	if c == nil {
		c = &cursor{}
		h.cursors[conversationID] = c
	}
	return c
}

// LoadLatest fetches the newest page with peer. The paging cursor is only
// set by the first load so a refresh never skips older pages.
func (h *History) LoadLatest(ctx context.Context, peer string) (HistoryLoaded, error) {
	page, err := h.src.History(ctx, peer, "", h.pageSize)
	if err != nil {
		return HistoryLoaded{}, fmt.Errorf("load history with %s: %w", peer, err)
	}
	conv := store.ConversationID(h.self, peer)

	h.mu.Lock()
	c := h.cursor(conv)
	if !c.loaded {
		c.loaded = true
		c.next = page.NextCursor
		c.exhausted = !page.HasMore
	}
	more := !c.exhausted
	h.mu.Unlock()

	return h.ingest(conv, peer, page, more), nil
}

// LoadOlder fetches the page before the oldest loaded message.
func (h *History) LoadOlder(ctx context.Context, peer string) (HistoryLoaded, error) {
	conv := store.ConversationID(h.self, peer)

	h.mu.Lock()
	c := h.cursor(conv)
	if c.exhausted {
		h.mu.Unlock()
		return HistoryLoaded{ConversationID: conv, PeerID: peer}, ErrNoMoreHistory
	}
	before := c.next
	h.mu.Unlock()

	if before == "" {
		if oldest, ok := h.store.Oldest(conv); ok {
			before = oldest.ID
		}
	}
	page, err := h.src.History(ctx, peer, before, h.pageSize)
	if err != nil {
		return HistoryLoaded{}, fmt.Errorf("load older history with %s: %w", peer, err)
	}

	h.mu.Lock()
	c.loaded = true
	c.next = page.NextCursor
	c.exhausted = !page.HasMore || len(page.Messages) == 0
	more := !c.exhausted
	h.mu.Unlock()

	return h.ingest(conv, peer, page, more), nil
}

// HasMore reports whether older pages may exist for peer.
func (h *History) HasMore(peer string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.cursors[store.ConversationID(h.self, peer)]
	return c == nil || !c.exhausted
}

func (h *History) ingest(conv, peer string, page rest.HistoryPage, more bool) HistoryLoaded {
	added := h.engine.IngestHistory(page.Messages)
	res := HistoryLoaded{ConversationID: conv, PeerID: peer, Added: added, HasMore: more}
	h.logger.Debug("history page ingested",
		zap.String("peer", peer),
		zap.Int("received", len(page.Messages)),
		zap.Int("added", added),
		zap.Bool("has_more", more),
	)
	h.bus.Emit(bus.KindHistoryLoaded, res)
	return res
}
