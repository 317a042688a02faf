package realtime

import (
	"context"

	"github.com/matheus3301/parley/internal/wire"
)

// Messaging is the outbound half of the messaging channel.
type Messaging struct {
	conn *Conn
}

// NewMessaging wraps an established or pending messaging channel.
func NewMessaging(conn *Conn) *Messaging {
	return &Messaging{conn: conn}
}

// Send sends a text or media message. The client message id travels in the
// payload and in the metadata so the server echo can be matched back.
func (m *Messaging) Send(ctx context.Context, msg wire.OutgoingMessage) error {
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	msg.Metadata["clientMessageId"] = msg.ClientMessageID
	if msg.ReplyToID != "" {
		msg.Metadata["replyToId"] = msg.ReplyToID
	}
	return m.conn.Send(ctx, wire.TypeMessageSend, msg.To, msg)
}

// SendCustom sends a message whose content lives in custom data, used for
// call records and other structured messages.
func (m *Messaging) SendCustom(ctx context.Context, msg wire.OutgoingMessage) error {
	return m.conn.Send(ctx, wire.TypeMessageCustom, msg.To, msg)
}

// React adds or removes a reaction on a message of the conversation with to.
func (m *Messaging) React(ctx context.Context, to string, p wire.ReactionPayload, add bool) error {
	typ := wire.TypeReactionAdd
	if !add {
		typ = wire.TypeReactionRemove
	}
	return m.conn.Send(ctx, typ, to, p)
}

// Edit replaces the text of one of our messages.
func (m *Messaging) Edit(ctx context.Context, to, messageID, text string) error {
	return m.conn.Send(ctx, wire.TypeMessageEdit, to, wire.EditPayload{MessageID: messageID, Text: text})
}

// Delete removes one of our messages.
func (m *Messaging) Delete(ctx context.Context, to, messageID string) error {
	return m.conn.Send(ctx, wire.TypeMessageDelete, to, wire.DeletePayload{MessageID: messageID})
}

// MarkRead tells the peer we read the given messages (all if ids is empty).
func (m *Messaging) MarkRead(ctx context.Context, to, conversationID string, ids []string) error {
	return m.conn.Send(ctx, wire.TypeMessageRead, to, wire.ReadPayload{ConversationID: conversationID, MessageIDs: ids})
}

// Typing sends a typing start or stop indicator to a peer.
func (m *Messaging) Typing(ctx context.Context, to string, active bool) error {
	typ := wire.TypeTypingStart
	if !active {
		typ = wire.TypeTypingStop
	}
	return m.conn.Send(ctx, typ, to, nil)
}

// QueryPresence asks the server for the list of online users.
func (m *Messaging) QueryPresence(ctx context.Context) error {
	return m.conn.Send(ctx, wire.TypePresenceQuery, "", nil)
}
