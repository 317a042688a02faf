package realtime

import (
	"context"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/wire"
)

// Signaling implements call.Signaler over the signal channel.
type Signaling struct {
	conn *Conn
}

var _ call.Signaler = (*Signaling)(nil)

// NewSignaling wraps the signal channel.
func NewSignaling(conn *Conn) *Signaling {
	return &Signaling{conn: conn}
}

func (s *Signaling) Initiate(ctx context.Context, inv call.Invite) error {
	return s.conn.Send(ctx, wire.TypeCallInitiate, inv.CalleeID, wire.InvitePayload{
		CallID:   inv.CallID,
		CallerID: inv.CallerID,
		CalleeID: inv.CalleeID,
		CallType: string(inv.Type),
	})
}

func (s *Signaling) Accept(ctx context.Context, callID, to string) error {
	return s.conn.Send(ctx, wire.TypeCallAccept, to, wire.ResponsePayload{CallID: callID})
}

func (s *Signaling) Reject(ctx context.Context, callID, to, reason string) error {
	return s.conn.Send(ctx, wire.TypeCallReject, to, wire.ResponsePayload{CallID: callID, Reason: reason})
}

func (s *Signaling) End(ctx context.Context, callID, to string) error {
	return s.conn.Send(ctx, wire.TypeCallEnd, to, wire.ResponsePayload{CallID: callID})
}

func (s *Signaling) Send(ctx context.Context, sig call.Signal) error {
	return s.conn.Send(ctx, wire.TypeCallSignal, sig.To, wire.NewSignalPayload(sig))
}
