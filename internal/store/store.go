package store

import (
	"sort"
	"sync"
	"time"
)

// IngestResult reports what Ingest did with a message.
type IngestResult int

const (
	Ignored IngestResult = iota
	Added
	Replaced
)

func (r IngestResult) String() string {
	switch r {
	case Added:
		return "added"
	case Replaced:
		return "replaced"
	default:
		return "ignored"
	}
}

// Store is the in-memory conversation store: conversation id -> messages
// ordered ascending by effective time, ties broken by arrival sequence.
// It is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	seq           uint64
	now           func() time.Time
}

type conversation struct {
	messages []*Message
	byID     map[string]*Message
	byClient map[string]*Message
	// server and client ids of deleted messages; history pages must not
	// bring them back.
	deleted map[string]struct{}
}

// New creates an empty store.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates a store that stamps arrivals with now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		conversations: make(map[string]*conversation),
		now:           now,
	}
}

func (s *Store) conv(id string, create bool) *conversation {
	c := s.conversations[id]
	if c == nil && create {
		c = &conversation{
			byID:     make(map[string]*Message),
			byClient: make(map[string]*Message),
			deleted:  make(map[string]struct{}),
		}
		s.conversations[id] = c
	}
	return c
}

func less(a, b *Message) bool {
	ta, tb := a.EffectiveTime(), b.EffectiveTime()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.seq < b.seq
}

func (c *conversation) insert(m *Message) {
	i := sort.Search(len(c.messages), func(i int) bool { return less(m, c.messages[i]) })
	c.messages = append(c.messages, nil)
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = m
}

func (c *conversation) isDeleted(m Message) bool {
	if _, ok := c.deleted[m.ID]; ok {
		return true
	}
	_, ok := c.deleted[m.ClientMessageID]
	return ok && m.ClientMessageID != ""
}

func (c *conversation) remove(m *Message) {
	for i, cur := range c.messages {
		if cur == m {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	delete(c.byID, m.ID)
	if m.ClientMessageID != "" && c.byClient[m.ClientMessageID] == m {
		delete(c.byClient, m.ClientMessageID)
	}
}

// AddMessage inserts m into conversationID unless a message with the same id
// is already present. Returns whether it was inserted.
func (s *Store) AddMessage(conversationID string, m Message) bool {
	if m.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(conversationID, m)
}

func (s *Store) addLocked(conversationID string, m Message) bool {
	c := s.conv(conversationID, true)
	if _, ok := c.byID[m.ID]; ok || c.isDeleted(m) {
		return false
	}
	s.seq++
	stored := m.clone()
	stored.ConversationID = conversationID
	stored.seq = s.seq
	stored.arrivedAt = s.now()
	if stored.Type == "" {
		stored.Type = TypeText
	}
	c.insert(&stored)
	c.byID[stored.ID] = &stored
	if stored.ClientMessageID != "" {
		c.byClient[stored.ClientMessageID] = &stored
	}
	return true
}

// ReplaceOptimistic swaps the placeholder created under clientID for the
// server-confirmed message. The list length is unchanged; the placeholder's
// arrival sequence is kept so ties resolve as before. Fields the server echo
// leaves empty are carried over from the placeholder. Returns false when no
// placeholder with clientID exists in the server message's conversation.
func (s *Store) ReplaceOptimistic(clientID string, server Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(clientID, server)
}

func (s *Store) replaceLocked(clientID string, server Message) bool {
	c := s.conv(server.ConversationID, false)
	if c == nil || clientID == "" || server.ID == "" {
		return false
	}
	placeholder := c.byClient[clientID]
	if placeholder == nil || !placeholder.Optimistic() {
		return false
	}
	// The same echo may already have been added under its server id.
	if dup := c.byID[server.ID]; dup != nil && dup != placeholder {
		c.remove(dup)
	}

	merged := server.clone()
	merged.ClientMessageID = clientID
	merged.seq = placeholder.seq
	merged.arrivedAt = placeholder.arrivedAt
	if merged.Text == "" {
		merged.Text = placeholder.Text
	}
	if merged.Type == "" || (merged.Type == TypeText && placeholder.Type != TypeText && merged.Media == nil) {
		merged.Type = placeholder.Type
	}
	if merged.Media == nil {
		merged.Media = placeholder.Media
	}
	if merged.ReplyToID == "" {
		merged.ReplyToID = placeholder.ReplyToID
	}
	if merged.SenderID == "" {
		merged.SenderID = placeholder.SenderID
	}
	if merged.RecipientID == "" {
		merged.RecipientID = placeholder.RecipientID
	}
	if merged.Reactions == nil {
		merged.Reactions = placeholder.Reactions
	}
	if !validTime(merged.SentAt) {
		merged.SentAt = placeholder.SentAt
	}
	if merged.Status == "" || merged.Status == StatusSending {
		merged.Status = StatusSent
	}

	c.remove(placeholder)
	c.insert(&merged)
	c.byID[merged.ID] = &merged
	c.byClient[clientID] = &merged
	return true
}

// Ingest applies a message that arrived from the server: it replaces the
// matching optimistic placeholder when the message carries a known client
// id, and is otherwise AddMessage.
func (s *Store) Ingest(m Message) IngestResult {
	if m.ID == "" || m.ConversationID == "" {
		return Ignored
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// The echo of our own message replaces its placeholder even when a
	// history page already delivered the server copy without a client id.
	if m.ClientMessageID != "" && s.replaceLocked(m.ClientMessageID, m) {
		return Replaced
	}
	if c := s.conv(m.ConversationID, false); c != nil {
		if _, ok := c.byID[m.ID]; ok {
			return Ignored
		}
	}
	if s.addLocked(m.ConversationID, m) {
		return Added
	}
	return Ignored
}

// Messages returns a copy of the ordered message list.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.conversations[conversationID]
	if c == nil {
		return nil
	}
	out := make([]Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.clone()
	}
	return out
}

// Get looks a message up by server id or client id.
func (s *Store) Get(conversationID, id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.lookup(conversationID, id)
	if m == nil {
		return Message{}, false
	}
	return m.clone(), true
}

func (s *Store) lookup(conversationID, id string) *Message {
	c := s.conversations[conversationID]
	if c == nil {
		return nil
	}
	if m := c.byID[id]; m != nil {
		return m
	}
	return c.byClient[id]
}

// Last returns the newest message of the conversation.
func (s *Store) Last(conversationID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.conversations[conversationID]
	if c == nil || len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1].clone(), true
}

// Oldest returns the oldest server-confirmed message, the cursor for
// loading earlier history.
func (s *Store) Oldest(conversationID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.conversations[conversationID]
	if c == nil {
		return Message{}, false
	}
	for _, m := range c.messages {
		if !m.Optimistic() {
			return m.clone(), true
		}
	}
	return Message{}, false
}

// ConversationCount returns the number of conversations holding messages.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.conversations {
		if len(c.messages) > 0 {
			n++
		}
	}
	return n
}

// MessageCount returns the number of messages in a conversation.
func (s *Store) MessageCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.conversations[conversationID]; c != nil {
		return len(c.messages)
	}
	return 0
}
