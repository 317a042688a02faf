// Package roster keeps the contact list and the metadata derived from
// conversations: last message preview, unread count and presence.
package roster

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/parley/internal/store"
)

// Contact is a known peer.
type Contact struct {
	ID              string
	Name            string
	Avatar          string
	LastMessage     string
	LastMessageTime time.Time
	UnreadCount     int
	IsOnline        bool
	IsFollowing     bool
}

// DisplayName falls back to the id when the backend sent no name.
func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// HasMessages reports whether any message has been seen with this contact.
func (c Contact) HasMessages() bool {
	return !c.LastMessageTime.IsZero()
}

// Roster is safe for concurrent use. Every mutation re-sorts the list.
type Roster struct {
	mu       sync.RWMutex
	self     string
	contacts map[string]*Contact
	order    []*Contact
}

// New creates an empty roster for the local user self.
func New(self string) *Roster {
	return &Roster{
		self:     self,
		contacts: make(map[string]*Contact),
	}
}

// Self returns the local user id.
func (r *Roster) Self() string { return r.self }

func (r *Roster) get(id string) *Contact {
	c := r.contacts[id]
	if c == nil {
		c = &Contact{ID: id}
		r.contacts[id] = c
	}
	return c
}

// less orders dated contacts newest first, then undated contacts
// alphabetically. Equal keys fall back to the id so the order is total.
func less(a, b *Contact) bool {
	da, db := a.HasMessages(), b.HasMessages()
	if da != db {
		return da
	}
	if da && !a.LastMessageTime.Equal(b.LastMessageTime) {
		return a.LastMessageTime.After(b.LastMessageTime)
	}
	na, nb := strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())
	if na != nb {
		return na < nb
	}
	return a.ID < b.ID
}

func (r *Roster) resort() {
	r.order = r.order[:0]
	for _, c := range r.contacts {
		r.order = append(r.order, c)
	}
	sort.Slice(r.order, func(i, j int) bool { return less(r.order[i], r.order[j]) })
}

// Merge applies the contact list returned by the API. Name, avatar and
// following come from the API; preview, unread and presence are kept unless
// the API carries them and nothing newer is known locally.
func (r *Roster) Merge(contacts []Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range contacts {
		if in.ID == "" || in.ID == r.self {
			continue
		}
		c := r.get(in.ID)
		if in.Name != "" {
			c.Name = in.Name
		}
		if in.Avatar != "" {
			c.Avatar = in.Avatar
		}
		c.IsFollowing = in.IsFollowing
		if in.IsOnline {
			c.IsOnline = true
		}
		if in.LastMessageTime.After(c.LastMessageTime) {
			c.LastMessage = in.LastMessage
			c.LastMessageTime = in.LastMessageTime
			if in.UnreadCount > c.UnreadCount {
				c.UnreadCount = in.UnreadCount
			}
		}
	}
	r.resort()
}

// UpsertFromMessage records preview as the peer's last message when it is
// at least as new as the current one, creating the contact if unknown.
func (r *Roster) UpsertFromMessage(peerID, preview string, ts time.Time) {
	if peerID == "" || peerID == r.self {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(peerID, preview, ts)
	r.resort()
}

func (r *Roster) upsertLocked(peerID, preview string, ts time.Time) {
	c := r.get(peerID)
	if ts.IsZero() {
		ts = time.Now()
	}
	if !ts.Before(c.LastMessageTime) {
		c.LastMessage = preview
		c.LastMessageTime = ts
	}
}

// Apply folds a live message into the roster. The unread count grows only
// for messages from the peer that are not already read, and only when the
// peer's conversation is not the one open on screen.
func (r *Roster) Apply(m store.Message, openPeer string) {
	peer := m.Peer(r.self)
	if peer == "" || peer == r.self {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(peer, m.Preview(), m.EffectiveTime())
	if m.SenderID != r.self && !m.Read && peer != openPeer {
		r.contacts[peer].UnreadCount++
	}
	r.resort()
}

// Refresh recomputes a peer's preview from its newest remaining message,
// used after a delete removed the previous last message.
func (r *Roster) Refresh(peerID string, last store.Message, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.contacts[peerID]
	if c == nil {
		return
	}
	if ok {
		c.LastMessage = last.Preview()
		c.LastMessageTime = last.EffectiveTime()
	} else {
		c.LastMessage = ""
		c.LastMessageTime = time.Time{}
	}
	r.resort()
}

// ClearUnread resets a peer's unread count. Returns the previous count.
func (r *Roster) ClearUnread(peerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.contacts[peerID]
	if c == nil {
		return 0
	}
	n := c.UnreadCount
	c.UnreadCount = 0
	return n
}

// SetPresence marks exactly the given ids online.
func (r *Roster) SetPresence(online []string) {
	set := make(map[string]struct{}, len(online))
	for _, id := range online {
		set[id] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.contacts {
		_, c.IsOnline = set[id]
	}
}

// SetOnline updates one peer's presence.
func (r *Roster) SetOnline(peerID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.contacts[peerID]; c != nil {
		c.IsOnline = online
	}
}

// Contacts returns the sorted contact list.
func (r *Roster) Contacts() []Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contact, len(r.order))
	for i, c := range r.order {
		out[i] = *c
	}
	return out
}

// Get returns a contact by id.
func (r *Roster) Get(id string) (Contact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.contacts[id]
	if c == nil {
		return Contact{}, false
	}
	return *c, true
}

// TotalUnread is the sum of unread counts, the value shown on the badge.
func (r *Roster) TotalUnread() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.contacts {
		n += c.UnreadCount
	}
	return n
}
