// Package wire defines the JSON frames exchanged with the messaging and
// signal channels and normalizes inbound payloads into domain types.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Frame types on the messaging channel.
const (
	TypeMessage        = "message"
	TypeMessageSend    = "message.send"
	TypeMessageCustom  = "message.custom"
	TypeMessageEdit    = "message.edit"
	TypeMessageEdited  = "message.edited"
	TypeMessageDelete  = "message.delete"
	TypeMessageDeleted = "message.deleted"
	TypeMessageRead    = "message.read"
	TypeReactionAdd    = "reaction.add"
	TypeReactionRemove = "reaction.remove"
	TypeTypingStart    = "typing.start"
	TypeTypingStop     = "typing.stop"
	TypePresence       = "presence"
	TypePresenceQuery  = "presence.query"
	TypeError          = "error"
)

// Frame types on the signal channel.
const (
	TypeCallInitiate = "call.initiate"
	TypeCallAccept   = "call.accept"
	TypeCallReject   = "call.reject"
	TypeCallEnd      = "call.end"
	TypeCallSignal   = "call.signal"
)

var (
	ErrMalformed = errors.New("wire: malformed frame")
	ErrMissingID = errors.New("wire: message without id")
)

// Envelope is the outer frame on both channels. Payload is kept raw; it may
// be a JSON string or an object depending on the sender.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeEnvelope reads a frame, accepting the aliases different server
// versions use for each envelope field.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return Envelope{}, ErrMalformed
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return Envelope{}, ErrMalformed
	}
	env := Envelope{
		ID:   str(r, "id", "messageId"),
		Type: str(r, "type", "event"),
		From: str(r, "from", "senderId", "sender"),
		To:   str(r, "to", "recipientId", "receiverId"),
	}
	if env.Type == "" {
		return Envelope{}, ErrMalformed
	}
	if p := first(r, "payload", "data"); p.Exists() {
		env.Payload = json.RawMessage(p.Raw)
	}
	return env, nil
}

// Encode builds a frame with payload marshalled as JSON, without HTML escaping.
func Encode(typ, to string, payload any) ([]byte, error) {
	env := struct {
		Type    string `json:"type"`
		To      string `json:"to,omitempty"`
		Payload any    `json:"payload,omitempty"`
	}{typ, to, payload}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// first returns the first existing, non-null result among paths.
func first(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// str returns the first scalar among paths as a string. Objects and arrays
// are skipped so a nested "sender": {...} never leaks raw JSON into an id.
func str(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.String:
			if v.Str != "" {
				return v.Str
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}
