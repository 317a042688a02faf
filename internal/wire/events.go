package wire

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/store"
)

// Edit is an inbound message edit.
type Edit struct {
	ConversationID string
	MessageID      string
	Text           string
	EditorID       string
}

// Deletion is an inbound message deletion.
type Deletion struct {
	ConversationID string
	MessageID      string
	DeletedBy      string
}

// Reaction is a reaction added or removed by UserID.
type Reaction struct {
	ConversationID string
	MessageID      string
	Emoji          string
	UserID         string
	Add            bool
}

// Typing is a typing indicator from a peer.
type Typing struct {
	From   string
	Active bool
}

// Receipt reports that ReaderID has read messages of a conversation. An empty
// MessageIDs means everything up to now.
type Receipt struct {
	ConversationID string
	ReaderID       string
	MessageIDs     []string
}

// Presence is either the full list of online users or a single update.
type Presence struct {
	Full   bool
	Online []string
	UserID string
	Active bool
}

func payload(env Envelope) (gjson.Result, error) {
	if Classify(env.Payload) != PayloadObject {
		return gjson.Result{}, fmt.Errorf("%w: %s payload", ErrMalformed, env.Type)
	}
	return gjson.ParseBytes(env.Payload), nil
}

// conversation resolves the conversation a frame refers to, from an explicit
// id or from the two participants.
func conversation(r gjson.Result, a, b string) string {
	if id := str(r, "conversationId", "conversation_id", "chatId"); id != "" {
		return id
	}
	if a == "" || b == "" {
		return ""
	}
	return store.ConversationID(a, b)
}

// ParseEdit reads a message.edited frame.
func ParseEdit(env Envelope, self string) (Edit, error) {
	r, err := payload(env)
	if err != nil {
		return Edit{}, err
	}
	e := Edit{
		MessageID: str(r, "messageId", "id"),
		Text:      str(r, "text", "content", "newText"),
		EditorID:  firstNonEmpty(str(r, "editorId", "senderId", "userId"), env.From),
	}
	e.ConversationID = conversation(r, e.EditorID, firstNonEmpty(str(r, "recipientId"), env.To, self))
	if e.MessageID == "" || e.ConversationID == "" {
		return Edit{}, fmt.Errorf("%w: edit without message or conversation", ErrMalformed)
	}
	return e, nil
}

// ParseDeletion reads a message.deleted frame.
func ParseDeletion(env Envelope, self string) (Deletion, error) {
	r, err := payload(env)
	if err != nil {
		return Deletion{}, err
	}
	d := Deletion{
		MessageID: str(r, "messageId", "id"),
		DeletedBy: firstNonEmpty(str(r, "deletedBy", "senderId", "userId"), env.From),
	}
	d.ConversationID = conversation(r, d.DeletedBy, firstNonEmpty(str(r, "recipientId"), env.To, self))
	if d.MessageID == "" || d.ConversationID == "" {
		return Deletion{}, fmt.Errorf("%w: deletion without message or conversation", ErrMalformed)
	}
	return d, nil
}

// ParseReaction reads reaction.add / reaction.remove frames. The payload may
// also carry an explicit "action": "add" | "remove".
func ParseReaction(env Envelope, self string) (Reaction, error) {
	r, err := payload(env)
	if err != nil {
		return Reaction{}, err
	}
	rc := Reaction{
		MessageID: str(r, "messageId", "id"),
		Emoji:     str(r, "emoji", "reaction"),
		UserID:    firstNonEmpty(str(r, "userId", "user.id", "senderId"), env.From),
		Add:       env.Type != TypeReactionRemove,
	}
	switch str(r, "action") {
	case "add":
		rc.Add = true
	case "remove":
		rc.Add = false
	}
	rc.ConversationID = conversation(r, rc.UserID, firstNonEmpty(str(r, "recipientId"), env.To, self))
	if rc.MessageID == "" || rc.Emoji == "" || rc.UserID == "" || rc.ConversationID == "" {
		return Reaction{}, fmt.Errorf("%w: incomplete reaction", ErrMalformed)
	}
	return rc, nil
}

// ParseTyping reads typing.start / typing.stop frames.
func ParseTyping(env Envelope) (Typing, error) {
	from := env.From
	if Classify(env.Payload) == PayloadObject {
		from = firstNonEmpty(from, str(gjson.ParseBytes(env.Payload), "from", "userId", "senderId"))
	}
	if from == "" {
		return Typing{}, fmt.Errorf("%w: typing without sender", ErrMalformed)
	}
	return Typing{From: from, Active: env.Type == TypeTypingStart}, nil
}

// ParseReceipt reads a message.read frame.
func ParseReceipt(env Envelope, self string) (Receipt, error) {
	r, err := payload(env)
	if err != nil {
		return Receipt{}, err
	}
	rc := Receipt{ReaderID: firstNonEmpty(str(r, "readerId", "userId", "from"), env.From)}
	first(r, "messageIds", "ids").ForEach(func(_, v gjson.Result) bool {
		if v.String() != "" {
			rc.MessageIDs = append(rc.MessageIDs, v.String())
		}
		return true
	})
	if id := str(r, "messageId"); id != "" {
		rc.MessageIDs = append(rc.MessageIDs, id)
	}
	rc.ConversationID = conversation(r, rc.ReaderID, firstNonEmpty(str(r, "peerId", "to"), env.To, self))
	if rc.ReaderID == "" || rc.ConversationID == "" {
		return Receipt{}, fmt.Errorf("%w: receipt without reader", ErrMalformed)
	}
	return rc, nil
}

// ParsePresence reads a presence frame: either an array of online ids
// (as the payload or under "online"/"users") or one {userId, online} update.
func ParsePresence(env Envelope) (Presence, error) {
	if len(env.Payload) == 0 || !gjson.ValidBytes(env.Payload) {
		return Presence{}, fmt.Errorf("%w: presence payload", ErrMalformed)
	}
	r := gjson.ParseBytes(env.Payload)
	list := r
	if r.IsObject() {
		list = first(r, "online", "users", "onlineUsers")
	}
	if list.IsArray() {
		p := Presence{Full: true, Online: []string{}}
		list.ForEach(func(_, v gjson.Result) bool {
			id := v.String()
			if v.IsObject() {
				id = str(v, "id", "userId")
			}
			if id != "" {
				p.Online = append(p.Online, id)
			}
			return true
		})
		return p, nil
	}
	if r.IsObject() {
		if id := str(r, "userId", "id"); id != "" {
			active := r.Get("online").Bool() || r.Get("isOnline").Bool() || str(r, "status") == "online"
			return Presence{UserID: id, Active: active}, nil
		}
	}
	return Presence{}, fmt.Errorf("%w: presence payload", ErrMalformed)
}

// ParseError extracts the message of an error frame.
func ParseError(env Envelope) string {
	if Classify(env.Payload) == PayloadText {
		return gjson.ParseBytes(env.Payload).Str
	}
	return str(gjson.ParseBytes(env.Payload), "message", "error", "reason")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
