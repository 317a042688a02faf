package realtime

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/status"
)

// Options configures the two channels of a Client.
type Options struct {
	Self         string
	Token        string
	MessagingURL string
	SignalURL    string
}

// Client bundles the messaging and signal channels of one user.
type Client struct {
	Messaging *Messaging
	Signaling *Signaling
	Handler   *EventHandler

	messaging *Conn
	signal    *Conn
	logger    *zap.Logger
}

// NewClient wires both channels to a shared EventHandler. Nothing is dialed
// until Connect.
func NewClient(opts Options, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("realtime")
	h := NewEventHandler(opts.Self, b, machine, logger)
	mc := NewConn("messaging", opts.MessagingURL, opts.Token, logger, h.HandleMessaging, h.HandleDrop("messaging"))
	sc := NewConn("signal", opts.SignalURL, opts.Token, logger, h.HandleSignal, h.HandleDrop("signal"))
	return &Client{
		Messaging: NewMessaging(mc),
		Signaling: NewSignaling(sc),
		Handler:   h,
		messaging: mc,
		signal:    sc,
		logger:    logger,
	}
}

// ConnectResult reports which channels came up.
type ConnectResult struct {
	Messaging error
	Signal    error
}

// OK reports whether both channels are connected.
func (r ConnectResult) OK() bool { return r.Messaging == nil && r.Signal == nil }

// Err summarizes the failures, nil when both channels are up.
func (r ConnectResult) Err() error {
	switch {
	case r.OK():
		return nil
	case r.Messaging != nil && r.Signal != nil:
		return fmt.Errorf("messaging: %v; signal: %w", r.Messaging, r.Signal)
	case r.Messaging != nil:
		return r.Messaging
	default:
		return r.Signal
	}
}

// Connect dials whichever channels are not up yet. A failed signal channel
// leaves messaging usable; the caller decides how degraded that is.
func (c *Client) Connect(ctx context.Context) ConnectResult {
	var res ConnectResult
	if err := c.messaging.Connect(ctx); err != nil {
		c.logger.Warn("messaging channel unavailable", zap.Error(err))
		res.Messaging = err
	}
	if err := c.signal.Connect(ctx); err != nil {
		c.logger.Warn("signal channel unavailable", zap.Error(err))
		res.Signal = err
	}
	return res
}

// MessagingUp reports whether the messaging channel is connected.
func (c *Client) MessagingUp() bool { return c.messaging.Connected() }

// SignalUp reports whether the signal channel is connected.
func (c *Client) SignalUp() bool { return c.signal.Connected() }

// Close closes both channels.
func (c *Client) Close() {
	c.messaging.Close()
	c.signal.Close()
}
