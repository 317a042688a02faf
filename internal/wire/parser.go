package wire

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/store"
)

// PayloadKind tags the two shapes a message payload can take.
type PayloadKind int

const (
	PayloadInvalid PayloadKind = iota
	// PayloadText is a bare JSON string: the message text, with ids and
	// participants carried by the envelope.
	PayloadText
	// PayloadObject is a full message object.
	PayloadObject
)

// Classify reports which shape raw has.
func Classify(raw []byte) PayloadKind {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return PayloadInvalid
	}
	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.String:
		return PayloadText
	case r.IsObject():
		return PayloadObject
	}
	return PayloadInvalid
}

// ParseMessage normalizes an inbound message frame. Only the sender and a
// message id are mandatory; the recipient defaults to self.
func ParseMessage(env Envelope, self string) (store.Message, error) {
	m := store.Message{
		ID:          env.ID,
		SenderID:    env.From,
		RecipientID: env.To,
		Type:        store.TypeText,
		Status:      store.StatusReceived,
	}

	switch Classify(env.Payload) {
	case PayloadText:
		m.Text = gjson.ParseBytes(env.Payload).Str
	case PayloadObject:
		r := gjson.ParseBytes(env.Payload)
		// Some servers wrap the message: {"message": {...}, "metadata": {...}}.
		if inner := r.Get("message"); inner.IsObject() {
			fillMessage(&m, inner)
			fillMessage(&m, r)
		} else {
			fillMessage(&m, r)
		}
	default:
		return store.Message{}, fmt.Errorf("%w: message payload", ErrMalformed)
	}

	if m.ID == "" {
		return store.Message{}, ErrMissingID
	}
	if m.SenderID == "" {
		return store.Message{}, fmt.Errorf("%w: message %s has no sender", ErrMalformed, m.ID)
	}
	if m.RecipientID == "" {
		if m.SenderID == self {
			return store.Message{}, fmt.Errorf("%w: own message %s has no recipient", ErrMalformed, m.ID)
		}
		m.RecipientID = self
	}
	if m.SenderID == self {
		m.Status = store.StatusSent
	}
	m.ConversationID = store.ConversationID(m.SenderID, m.RecipientID)
	return m, nil
}

// ParseHistory normalizes an array of message objects, skipping entries that
// cannot be identified.
func ParseHistory(items gjson.Result, self string) []store.Message {
	var out []store.Message
	items.ForEach(func(_, item gjson.Result) bool {
		m, err := ParseMessage(Envelope{Payload: []byte(item.Raw)}, self)
		if err == nil {
			out = append(out, m)
		}
		return true
	})
	return out
}

// fillMessage sets every field of m that is still empty from r.
func fillMessage(m *store.Message, r gjson.Result) {
	setIfEmpty(&m.ID, str(r, "id", "_id", "messageId", "message_id"))
	setIfEmpty(&m.ClientMessageID, str(r, "clientMessageId", "client_message_id", "tempId", "metadata.clientMessageId"))
	setIfEmpty(&m.SenderID, str(r, "senderId", "sender_id", "sender.id", "sender", "from"))
	setIfEmpty(&m.RecipientID, str(r, "recipientId", "receiverId", "recipient_id", "recipient.id", "receiver", "to"))
	setIfEmpty(&m.Text, str(r, "text", "content", "body", "message", "customData.text"))
	setIfEmpty(&m.ReplyToID, str(r, "replyToId", "reply_to_id", "replyTo.id", "replyTo", "metadata.replyToId"))

	if t := str(r, "type", "messageType", "customData.type", "metadata.type"); t != "" && m.Type == store.TypeText {
		m.Type = store.ParseType(t)
	}
	if m.SentAt.IsZero() {
		m.SentAt = ParseTime(first(r, "sentAt", "createdAt", "created_at", "timestamp", "time"))
	}
	if r.Get("read").Bool() || r.Get("isRead").Bool() || str(r, "status") == "read" {
		m.Read = true
	}
	if r.Get("edited").Bool() || r.Get("isEdited").Bool() {
		m.Edited = true
	}

	if m.Media == nil {
		if url := str(r, "mediaUrl", "media.url", "fileUrl", "attachment.url", "customData.mediaUrl", "url"); url != "" {
			m.Media = &store.Media{
				URL:          url,
				ThumbnailURL: str(r, "thumbnailUrl", "media.thumbnailUrl", "customData.thumbnailUrl"),
				MimeType:     str(r, "mimeType", "media.mimeType", "attachment.mimeType"),
				FileName:     str(r, "fileName", "media.fileName", "attachment.name"),
				DurationMs:   first(r, "duration", "media.duration", "customData.duration").Int(),
				Width:        int(first(r, "width", "media.width").Int()),
				Height:       int(first(r, "height", "media.height").Int()),
			}
		}
	}
	if m.Type == store.TypeCall && m.Call == nil {
		m.Call = &store.CallRecord{
			Video:       str(r, "callType", "call.type") == "video",
			DurationSec: int(first(r, "call.duration", "callDuration", "duration").Int()),
			Missed:      r.Get("call.missed").Bool() || str(r, "callStatus", "call.status") == "missed",
		}
	}
	if m.Reactions == nil {
		m.Reactions = parseReactions(r.Get("reactions"))
	}
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// parseReactions accepts {"👍": ["u1", "u2"]} and
// [{"emoji": "👍", "userId": "u1"}, ...].
func parseReactions(r gjson.Result) map[string]map[string]struct{} {
	if !r.Exists() {
		return nil
	}
	out := make(map[string]map[string]struct{})
	add := func(emoji, user string) {
		if emoji == "" || user == "" {
			return
		}
		if out[emoji] == nil {
			out[emoji] = make(map[string]struct{})
		}
		out[emoji][user] = struct{}{}
	}
	switch {
	case r.IsObject():
		r.ForEach(func(emoji, users gjson.Result) bool {
			users.ForEach(func(_, u gjson.Result) bool {
				add(emoji.String(), u.String())
				return true
			})
			return true
		})
	case r.IsArray():
		r.ForEach(func(_, item gjson.Result) bool {
			add(str(item, "emoji", "reaction"), str(item, "userId", "user.id", "user"))
			return true
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
