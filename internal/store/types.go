package store

import (
	"fmt"
	"strings"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeVoice MessageType = "voice"
	TypeImage MessageType = "image"
	TypeVideo MessageType = "video"
	TypeCall  MessageType = "call"
)

// ParseType maps a wire type name to a MessageType. Unknown names are text.
func ParseType(s string) MessageType {
	switch MessageType(strings.ToLower(s)) {
	case TypeVoice, "audio":
		return TypeVoice
	case TypeImage, "photo":
		return TypeImage
	case TypeVideo:
		return TypeVideo
	case TypeCall:
		return TypeCall
	default:
		return TypeText
	}
}

// DeliveryStatus tracks an outgoing message through the send pipeline.
// Messages from peers are always StatusReceived.
type DeliveryStatus string

const (
	StatusSending  DeliveryStatus = "sending"
	StatusSent     DeliveryStatus = "sent"
	StatusFailed   DeliveryStatus = "failed"
	StatusReceived DeliveryStatus = "received"
)

// Media describes an attachment hosted by the upload service.
type Media struct {
	URL          string
	ThumbnailURL string
	MimeType     string
	FileName     string
	DurationMs   int64
	Width        int
	Height       int
}

// CallRecord is the summary carried by a TypeCall message.
type CallRecord struct {
	Video       bool
	DurationSec int
	Missed      bool
}

// Message is a single entry of a conversation.
//
// ID is the server id once confirmed. Optimistic messages use their client
// id as ID until the server echo replaces them.
type Message struct {
	ID              string
	ClientMessageID string
	ConversationID  string
	SenderID        string
	RecipientID     string
	Text            string
	Type            MessageType
	Media           *Media
	Call            *CallRecord
	SentAt          time.Time
	ReplyToID       string
	Reactions       map[string]map[string]struct{}
	Read            bool
	Edited          bool
	Status          DeliveryStatus

	seq       uint64
	arrivedAt time.Time
}

// Optimistic reports whether the message is still a local placeholder.
func (m Message) Optimistic() bool {
	return m.ClientMessageID != "" && m.ID == m.ClientMessageID
}

// EffectiveTime is the timestamp used for ordering: SentAt when it holds a
// real date, otherwise the local arrival time.
func (m Message) EffectiveTime() time.Time {
	if validTime(m.SentAt) {
		return m.SentAt
	}
	return m.arrivedAt
}

// Seq is the arrival sequence number assigned by the store.
func (m Message) Seq() uint64 { return m.seq }

// Peer returns the participant of the message that is not self.
func (m Message) Peer(self string) string {
	if m.SenderID == self {
		return m.RecipientID
	}
	return m.SenderID
}

// Reacted reports whether userID has reacted with emoji.
func (m Message) Reacted(emoji, userID string) bool {
	_, ok := m.Reactions[emoji][userID]
	return ok
}

// ReactionCounts returns emoji -> number of users.
func (m Message) ReactionCounts() map[string]int {
	out := make(map[string]int, len(m.Reactions))
	for emoji, users := range m.Reactions {
		if len(users) > 0 {
			out[emoji] = len(users)
		}
	}
	return out
}

// Preview is the one-line summary shown in the contact list.
func (m Message) Preview() string {
	switch m.Type {
	case TypeVoice:
		if m.Media != nil && m.Media.DurationMs > 0 {
			return fmt.Sprintf("[voice %ds]", m.Media.DurationMs/1000)
		}
		return "[voice]"
	case TypeImage:
		return withCaption("[image]", m.Text)
	case TypeVideo:
		return withCaption("[video]", m.Text)
	case TypeCall:
		if m.Call != nil && m.Call.Missed {
			return "[missed call]"
		}
		return "[call]"
	}
	return truncate(strings.Join(strings.Fields(m.Text), " "), 100)
}

func withCaption(tag, text string) string {
	if text == "" {
		return tag
	}
	return truncate(tag+" "+text, 100)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// validTime rejects the zero value and epoch-or-earlier sentinels some
// backends send in place of a missing date.
func validTime(t time.Time) bool {
	return !t.IsZero() && t.Unix() > 0
}

func (m *Message) clone() Message {
	out := *m
	if m.Reactions != nil {
		out.Reactions = make(map[string]map[string]struct{}, len(m.Reactions))
		for emoji, users := range m.Reactions {
			set := make(map[string]struct{}, len(users))
			for u := range users {
				set[u] = struct{}{}
			}
			out.Reactions[emoji] = set
		}
	}
	if m.Media != nil {
		media := *m.Media
		out.Media = &media
	}
	if m.Call != nil {
		call := *m.Call
		out.Call = &call
	}
	return out
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
