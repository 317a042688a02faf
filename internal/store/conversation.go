package store

import "strings"

// ConversationID derives the id both participants compute independently:
// the lexicographically smaller user id first, joined with "_".
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Participants splits a conversation id back into its two user ids.
// User ids containing "_" make the split ambiguous; callers that know one
// side should use OtherParticipant instead.
func Participants(conversationID string) (string, string, bool) {
	a, b, ok := strings.Cut(conversationID, "_")
	return a, b, ok && a != "" && b != ""
}

// OtherParticipant returns the participant of conversationID that is not self.
func OtherParticipant(conversationID, self string) string {
	if rest, ok := strings.CutPrefix(conversationID, self+"_"); ok {
		return rest
	}
	if rest, ok := strings.CutSuffix(conversationID, "_"+self); ok {
		return rest
	}
	return ""
}
