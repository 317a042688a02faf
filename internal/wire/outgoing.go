package wire

// OutgoingMessage is the payload of message.send (text and media with
// metadata) and message.custom (arbitrary custom data) frames.
type OutgoingMessage struct {
	ClientMessageID string            `json:"clientMessageId"`
	To              string            `json:"to"`
	Type            string            `json:"type"`
	Text            string            `json:"text,omitempty"`
	ReplyToID       string            `json:"replyToId,omitempty"`
	Media           *OutgoingMedia    `json:"media,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CustomData      map[string]any    `json:"customData,omitempty"`
}

// OutgoingMedia references an already uploaded file.
type OutgoingMedia struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	FileName     string `json:"fileName,omitempty"`
	DurationMs   int64  `json:"duration,omitempty"`
}

// ReactionPayload is sent with reaction.add / reaction.remove.
type ReactionPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Emoji          string `json:"emoji"`
}

// EditPayload is sent with message.edit.
type EditPayload struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
}

// DeletePayload is sent with message.delete.
type DeletePayload struct {
	MessageID string `json:"messageId"`
}

// ReadPayload is sent with message.read.
type ReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}
