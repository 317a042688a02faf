package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. The prefix before the first dot is the namespace that
// subscribers filter on.
const (
	// Connection lifecycle.
	KindStatusChanged = "session.status_changed"
	KindDisconnected  = "session.disconnected"

	// Inbound frames, already normalized.
	KindRTMessage       = "rt.message"
	KindRTMessageEdited = "rt.message_edited"
	KindRTMessageDelete = "rt.message_deleted"
	KindRTReaction      = "rt.reaction"
	KindRTTyping        = "rt.typing"
	KindRTRead          = "rt.read"
	KindRTPresence      = "rt.presence"
	KindRTError         = "rt.error"

	KindRTCallIncoming = "rt.call.incoming"
	KindRTCallAccepted = "rt.call.accepted"
	KindRTCallRejected = "rt.call.rejected"
	KindRTCallEnded    = "rt.call.ended"
	KindRTCallSignal   = "rt.call.signal"

	// Store and roster mutations.
	KindMessageUpserted     = "message.upserted"
	KindMessageRemoved      = "message.removed"
	KindMessageSendAck      = "message.send_ack"
	KindMessageSendFailed   = "message.send_failed"
	KindMessageDeleteFailed = "message.delete_failed"
	KindHistoryLoaded       = "message.history_loaded"
	KindRosterChanged       = "roster.changed"
	KindTyping              = "conversation.typing"

	// Call lifecycle.
	KindCallStateChanged  = "call.state_changed"
	KindCallTick          = "call.tick"
	KindCallFailed        = "call.failed"
	KindCallSignalDropped = "call.signal_dropped"
)
