package store

import (
	"sort"
	"strings"
)

const snippetRadius = 24

// Search does a case-insensitive substring match over loaded message text,
// newest first. An empty conversationID searches every conversation.
func (s *Store) Search(query, conversationID string, limit int) []SearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	needle := strings.ToLower(query)

	s.mu.RLock()
	var hits []*Message
	for id, c := range s.conversations {
		if conversationID != "" && id != conversationID {
			continue
		}
		for _, m := range c.messages {
			if strings.Contains(strings.ToLower(m.Text), needle) {
				hits = append(hits, m)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return less(hits[j], hits[i]) })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]SearchResult, len(hits))
	for i, m := range hits {
		results[i] = SearchResult{Message: m.clone(), Snippet: snippet(m.Text, needle)}
	}
	s.mu.RUnlock()
	return results
}

// snippet returns the text around the first match with the match bracketed.
func snippet(text, needle string) string {
	runes := []rune(text)
	lower := []rune(strings.ToLower(text))
	n := []rune(needle)
	at := -1
	if len(lower) != len(runes) {
		return truncate(text, 2*snippetRadius)
	}
	for i := 0; i+len(n) <= len(lower); i++ {
		if string(lower[i:i+len(n)]) == needle {
			at = i
			break
		}
	}
	if at < 0 {
		return truncate(text, 2*snippetRadius)
	}
	start := max(0, at-snippetRadius)
	end := min(len(runes), at+len(n)+snippetRadius)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(runes[start:at]))
	b.WriteString("[")
	b.WriteString(string(runes[at : at+len(n)]))
	b.WriteString("]")
	b.WriteString(string(runes[at+len(n) : end]))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}
