package realtime

import (
	"errors"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/wire"
)

// EventHandler decodes frames from both channels, publishes them as rt.*
// bus events and moves the connection state machine when a channel drops.
// It does NOT touch the store or the call manager; those subscribe to the
// bus on their own.
type EventHandler struct {
	self    string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates a handler for the user self.
func NewEventHandler(self string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{self: self, bus: b, machine: machine, logger: logger}
}

// HandleMessaging processes one frame of the messaging channel.
func (h *EventHandler) HandleMessaging(env wire.Envelope) {
	var (
		payload any
		kind    string
		err     error
	)
	switch env.Type {
	case wire.TypeMessage, wire.TypeMessageSend, wire.TypeMessageCustom:
		kind = bus.KindRTMessage
		payload, err = wire.ParseMessage(env, h.self)
	case wire.TypeMessageEdit, wire.TypeMessageEdited:
		kind = bus.KindRTMessageEdited
		payload, err = wire.ParseEdit(env, h.self)
	case wire.TypeMessageDelete, wire.TypeMessageDeleted:
		kind = bus.KindRTMessageDelete
		payload, err = wire.ParseDeletion(env, h.self)
	case wire.TypeReactionAdd, wire.TypeReactionRemove, "reaction":
		kind = bus.KindRTReaction
		payload, err = wire.ParseReaction(env, h.self)
	case wire.TypeTypingStart, wire.TypeTypingStop:
		kind = bus.KindRTTyping
		payload, err = wire.ParseTyping(env)
	case wire.TypeMessageRead:
		kind = bus.KindRTRead
		payload, err = wire.ParseReceipt(env, h.self)
	case wire.TypePresence:
		kind = bus.KindRTPresence
		payload, err = wire.ParsePresence(env)
	case wire.TypeError:
		msg := wire.ParseError(env)
		h.logger.Warn("server reported error", zap.String("message", msg))
		h.bus.Emit(bus.KindRTError, msg)
		return
	default:
		h.logger.Debug("ignoring messaging frame", zap.String("type", env.Type))
		return
	}
	h.publish(env, kind, payload, err)
}

// HandleSignal processes one frame of the signal channel.
func (h *EventHandler) HandleSignal(env wire.Envelope) {
	var (
		payload any
		kind    string
		err     error
	)
	switch env.Type {
	case wire.TypeCallInitiate:
		kind = bus.KindRTCallIncoming
		payload, err = wire.ParseInvite(env)
	case wire.TypeCallAccept:
		kind = bus.KindRTCallAccepted
		payload, err = wire.ParseResponse(env)
	case wire.TypeCallReject:
		kind = bus.KindRTCallRejected
		payload, err = wire.ParseResponse(env)
	case wire.TypeCallEnd:
		kind = bus.KindRTCallEnded
		payload, err = wire.ParseResponse(env)
	case wire.TypeCallSignal:
		kind = bus.KindRTCallSignal
		payload, err = wire.ParseSignal(env)
	case wire.TypeError:
		h.logger.Warn("signal server reported error", zap.String("message", wire.ParseError(env)))
		return
	default:
		h.logger.Debug("ignoring signal frame", zap.String("type", env.Type))
		return
	}
	h.publish(env, kind, payload, err)
}

func (h *EventHandler) publish(env wire.Envelope, kind string, payload any, err error) {
	if err != nil {
		level := h.logger.Warn
		if errors.Is(err, wire.ErrMissingID) {
			level = h.logger.Debug
		}
		level("dropping malformed frame", zap.String("type", env.Type), zap.Error(err))
		return
	}
	h.bus.Emit(kind, payload)
}

// HandleDrop is the drop callback of both channels. Losing either channel
// leaves the client RECONNECTING; the controller decides what comes next.
func (h *EventHandler) HandleDrop(channel string) func(error) {
	return func(err error) {
		h.logger.Warn("channel dropped", zap.String("channel", channel), zap.Error(err))
		switch h.machine.Current() {
		case status.Ready, status.Syncing, status.Degraded, status.Connecting:
			_ = h.machine.TransitionWithReason(status.Reconnecting, channel+" channel lost")
		}
		h.bus.Emit(bus.KindDisconnected, channel)
	}
}
