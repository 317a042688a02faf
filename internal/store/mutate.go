package store

import "slices"

// SetStatus updates the delivery status of the message with the given
// server or client id.
func (s *Store) SetStatus(conversationID, id string, status DeliveryStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookup(conversationID, id)
	if m == nil {
		return false
	}
	m.Status = status
	return true
}

// ApplyReaction adds or removes userID's emoji reaction. Reactions are sets,
// so applying the same change twice is a no-op. Returns whether anything changed.
func (s *Store) ApplyReaction(conversationID, messageID, emoji, userID string, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookup(conversationID, messageID)
	if m == nil || emoji == "" || userID == "" {
		return false
	}
	users := m.Reactions[emoji]
	_, present := users[userID]
	switch {
	case add && !present:
		if m.Reactions == nil {
			m.Reactions = make(map[string]map[string]struct{})
		}
		if users == nil {
			users = make(map[string]struct{})
			m.Reactions[emoji] = users
		}
		users[userID] = struct{}{}
		return true
	case !add && present:
		delete(users, userID)
		if len(users) == 0 {
			delete(m.Reactions, emoji)
		}
		return true
	}
	return false
}

// Edit replaces a message's text and flags it edited.
func (s *Store) Edit(conversationID, messageID, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookup(conversationID, messageID)
	if m == nil {
		return false
	}
	if m.Text == text {
		return false
	}
	m.Text = text
	m.Edited = true
	return true
}

// Delete removes a message and remembers its ids, so later history pages
// or echoes do not add it again. Returns the removed message.
func (s *Store) Delete(conversationID, messageID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lookup(conversationID, messageID)
	if m == nil {
		return Message{}, false
	}
	c := s.conversations[conversationID]
	c.remove(m)
	c.deleted[m.ID] = struct{}{}
	if m.ClientMessageID != "" {
		c.deleted[m.ClientMessageID] = struct{}{}
	}
	return m.clone(), true
}

// MarkRead flags as read the messages of the conversation that readerID did
// not send. When ids is non-empty only those messages are considered.
// Returns the server ids of messages that changed.
func (s *Store) MarkRead(conversationID, readerID string, ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conversations[conversationID]
	if c == nil {
		return nil
	}
	var changed []string
	for _, m := range c.messages {
		if m.Read || m.SenderID == readerID {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, m.ID) {
			continue
		}
		m.Read = true
		if !m.Optimistic() {
			changed = append(changed, m.ID)
		}
	}
	return changed
}
