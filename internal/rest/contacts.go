package rest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/wire"
)

// Contacts fetches the users the local user follows or has talked to.
func (c *Client) Contacts(ctx context.Context) ([]roster.Contact, error) {
	r, err := c.getJSON(ctx, "/api/contacts", nil)
	if err != nil {
		return nil, err
	}
	return parseContacts(unwrap(r, "contacts", "following", "users"), true), nil
}

// SearchUsers looks up users by name or id.
func (c *Client) SearchUsers(ctx context.Context, query string, limit int) ([]roster.Contact, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	r, err := c.getJSON(ctx, "/api/users/search", q)
	if err != nil {
		return nil, err
	}
	return parseContacts(unwrap(r, "users", "results"), false), nil
}

func parseContacts(items gjson.Result, following bool) []roster.Contact {
	var out []roster.Contact
	items.ForEach(func(_, item gjson.Result) bool {
		u := item
		if inner := item.Get("user"); inner.IsObject() {
			u = inner
		}
		id := firstString(u, "id", "_id", "userId")
		if id == "" {
			return true
		}
		c := roster.Contact{
			ID:          id,
			Name:        firstString(u, "name", "displayName", "username"),
			Avatar:      firstString(u, "avatar", "avatarUrl", "photoUrl"),
			IsOnline:    u.Get("isOnline").Bool() || u.Get("online").Bool(),
			IsFollowing: following,
		}
		if f := item.Get("isFollowing"); f.Exists() {
			c.IsFollowing = f.Bool()
		}
		if last := item.Get("lastMessage"); last.Exists() {
			if last.IsObject() {
				c.LastMessage = firstString(last, "text", "content")
				c.LastMessageTime = wire.ParseTime(last.Get("createdAt"))
			} else {
				c.LastMessage = last.String()
			}
		}
		if c.LastMessageTime.IsZero() {
			c.LastMessageTime = wire.ParseTime(item.Get("lastMessageTime"))
		}
		c.UnreadCount = int(item.Get("unreadCount").Int())
		out = append(out, c)
		return true
	})
	return out
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		} else if v.Type == gjson.Number {
			return v.Raw
		}
	}
	return ""
}
