package controller

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/store"
	intsync "github.com/matheus3301/parley/internal/sync"
)

var ErrNoConversation = errors.New("controller: no conversation open")

// OpenPeer returns the peer whose conversation is on screen, or "".
func (c *Controller) OpenPeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openPeer
}

func (c *Controller) conversation() (string, string, error) {
	peer := c.OpenPeer()
	if peer == "" {
		return "", "", ErrNoConversation
	}
	return peer, store.ConversationID(c.self, peer), nil
}

// OpenConversation puts peer's conversation on screen: unread is cleared,
// the peer is told which messages we read, and the latest page of history
// plus the wallpaper are fetched. Fetch failures are logged, the
// conversation still opens with what the store has.
func (c *Controller) OpenConversation(ctx context.Context, peer string) error {
	if peer == "" || peer == c.self {
		return errors.New("controller: invalid peer")
	}
	prev := c.OpenPeer()
	if prev != "" && prev != peer && c.typing != nil {
		c.typing.Stop(prev)
	}
	c.mu.Lock()
	c.openPeer = peer
	c.replyTo = ""
	c.mu.Unlock()

	c.roster.ClearUnread(peer)
	c.updateBadge()

	if _, err := c.history.LoadLatest(ctx, peer); err != nil {
		c.logger.Warn("history fetch failed", zap.String("peer", peer), zap.Error(err))
	}
	c.markRead(ctx, peer, nil)

	if c.dir != nil {
		conv := store.ConversationID(c.self, peer)
		if url, err := c.dir.Wallpaper(ctx, conv); err != nil {
			c.logger.Debug("wallpaper fetch failed", zap.String("conversation", conv), zap.Error(err))
		} else {
			c.mu.Lock()
			c.wallpapers[conv] = url
			c.mu.Unlock()
		}
	}
	return nil
}

// CloseConversation leaves the open conversation.
func (c *Controller) CloseConversation() {
	c.mu.Lock()
	peer := c.openPeer
	c.openPeer = ""
	c.replyTo = ""
	c.mu.Unlock()
	if peer != "" && c.typing != nil {
		c.typing.Stop(peer)
	}
}

// onMessage marks live messages in the open conversation as read.
func (c *Controller) onMessage(ctx context.Context, m store.Message) {
	peer := c.OpenPeer()
	if peer == "" || m.SenderID != peer || m.Read || m.Optimistic() {
		return
	}
	c.markRead(ctx, peer, []string{m.ID})
}

func (c *Controller) markRead(ctx context.Context, peer string, ids []string) {
	conv := store.ConversationID(c.self, peer)
	changed := c.store.MarkRead(conv, c.self, ids)
	if len(changed) == 0 {
		return
	}
	if err := c.messenger.MarkRead(ctx, peer, conv, changed); err != nil {
		c.logger.Debug("read receipt not sent", zap.String("peer", peer), zap.Error(err))
	}
}

// Messages returns the open conversation in display order.
func (c *Controller) Messages() []store.Message {
	_, conv, err := c.conversation()
	if err != nil {
		return nil
	}
	return c.store.Messages(conv)
}

// Message looks up one message of the open conversation.
func (c *Controller) Message(id string) (store.Message, bool) {
	_, conv, err := c.conversation()
	if err != nil {
		return store.Message{}, false
	}
	return c.store.Get(conv, id)
}

// LoadOlder fetches the page before the oldest loaded message.
func (c *Controller) LoadOlder(ctx context.Context) (intsync.HistoryLoaded, error) {
	peer, _, err := c.conversation()
	if err != nil {
		return intsync.HistoryLoaded{}, err
	}
	return c.history.LoadOlder(ctx, peer)
}

// HasOlder reports whether the open conversation may have older messages.
func (c *Controller) HasOlder() bool {
	peer := c.OpenPeer()
	return peer != "" && c.history.HasMore(peer)
}

// PeerTyping reports whether the open peer is typing.
func (c *Controller) PeerTyping() bool {
	peer := c.OpenPeer()
	return peer != "" && c.engine != nil && c.engine.Typing(peer)
}

// Contacts returns the roster in display order.
func (c *Controller) Contacts() []roster.Contact {
	return c.roster.Contacts()
}

// Contact looks up one roster entry.
func (c *Controller) Contact(id string) (roster.Contact, bool) {
	return c.roster.Get(id)
}

// Search runs a local full-text search. An empty scope searches every
// conversation, "." searches the open one.
func (c *Controller) Search(query, scope string, limit int) []store.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	conv := scope
	if scope == "." {
		_, conv, _ = c.conversation()
	}
	return c.store.Search(query, conv, limit)
}

// SearchUsers asks the server for users matching query.
func (c *Controller) SearchUsers(ctx context.Context, query string, limit int) ([]roster.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return c.dir.SearchUsers(ctx, query, limit)
}

// Wallpaper returns the cached wallpaper URL of the open conversation.
func (c *Controller) Wallpaper() string {
	_, conv, err := c.conversation()
	if err != nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wallpapers[conv]
}

// Wallpapers lists the wallpapers the server offers.
func (c *Controller) Wallpapers(ctx context.Context) ([]rest.Wallpaper, error) {
	return c.dir.Wallpapers(ctx)
}

// SetWallpaper changes the open conversation's wallpaper. The id may also be
// a wallpaper name, resolved against the server's list.
func (c *Controller) SetWallpaper(ctx context.Context, id string) error {
	_, conv, err := c.conversation()
	if err != nil {
		return err
	}
	url := ""
	if list, err := c.dir.Wallpapers(ctx); err == nil {
		for _, w := range list {
			if w.ID == id || strings.EqualFold(w.Name, id) {
				id, url = w.ID, w.URL
				break
			}
		}
	}
	if err := c.dir.SetWallpaper(ctx, conv, id); err != nil {
		return err
	}
	c.mu.Lock()
	c.wallpapers[conv] = url
	c.mu.Unlock()
	return nil
}
