package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
)

// HistoryPage is one page of a conversation, oldest first.
type HistoryPage struct {
	Messages   []store.Message
	NextCursor string
	HasMore    bool
}

// History fetches messages exchanged with peer older than the cursor
// before (empty for the newest page).
func (c *Client) History(ctx context.Context, peer, before string, limit int) (HistoryPage, error) {
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	r, err := c.getJSON(ctx, "/api/messages/"+url.PathEscape(peer), q)
	if err != nil {
		return HistoryPage{}, err
	}

	page := HistoryPage{Messages: wire.ParseHistory(unwrap(r, "messages", "items"), c.self)}
	page.NextCursor = firstString(r, "data.nextCursor", "nextCursor", "data.cursor", "cursor")
	switch hm := r.Get("data.hasMore"); {
	case hm.Exists():
		page.HasMore = hm.Bool()
	case r.Get("hasMore").Exists():
		page.HasMore = r.Get("hasMore").Bool()
	default:
		page.HasMore = limit > 0 && len(page.Messages) >= limit
	}
	if page.NextCursor == "" && page.HasMore && len(page.Messages) > 0 {
		// Servers without cursors page by the oldest message id.
		oldest := page.Messages[0]
		for _, m := range page.Messages[1:] {
			if m.EffectiveTime().Before(oldest.EffectiveTime()) {
				oldest = m
			}
		}
		page.NextCursor = oldest.ID
	}
	return page, nil
}

// EditMessage is the HTTP fallback of the realtime edit.
func (c *Client) EditMessage(ctx context.Context, messageID, text string) error {
	_, err := c.sendJSON(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(messageID), map[string]string{"text": text})
	return err
}

// DeleteMessage is the HTTP fallback of the realtime delete.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.sendJSON(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil)
	return err
}
