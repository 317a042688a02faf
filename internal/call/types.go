package call

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/parley/internal/media"
)

var (
	ErrBusy       = errors.New("call: another call is in progress")
	ErrNoCall     = errors.New("call: no call in progress")
	ErrCallEnded  = errors.New("call: call ended")
	ErrNotRinging = errors.New("call: no incoming call to answer")
)

// Type is audio or video.
type Type string

const (
	Audio Type = "audio"
	Video Type = "video"
)

// Direction says who placed the call.
type Direction string

const (
	DirOutgoing Direction = "outgoing"
	DirIncoming Direction = "incoming"
)

// Call identifies the current call.
type Call struct {
	ID          string
	PeerID      string
	Type        Type
	Direction   Direction
	StartedAt   time.Time
	ConnectedAt time.Time
}

// Invite is a call announcement on the signal channel.
type Invite struct {
	CallID   string
	CallerID string
	CalleeID string
	Type     Type
}

// Response is an accept, reject or end notification from the peer.
type Response struct {
	CallID string
	From   string
	Reason string
}

// SignalKind is the negotiation payload kind.
type SignalKind string

const (
	KindOffer     SignalKind = "offer"
	KindAnswer    SignalKind = "answer"
	KindCandidate SignalKind = "ice-candidate"
)

// Signal is a negotiation message relayed by the signal channel, tagged with
// the call id and both participants.
type Signal struct {
	CallID      string
	From        string
	To          string
	CallerID    string
	CalleeID    string
	Kind        SignalKind
	Description *media.SessionDescription
	Candidate   *media.ICECandidate
}

// Tick is the payload of call.tick events.
type Tick struct {
	CallID  string
	Elapsed time.Duration
}

// Dropped is the payload of call.signal_dropped events.
type Dropped struct {
	CallID string
	Kind   SignalKind
	From   string
	Reason string
}

// Snapshot is a consistent view of the manager for rendering.
type Snapshot struct {
	State   State
	Call    Call
	Elapsed time.Duration
}

// Signaler is the outbound half of the signal channel.
type Signaler interface {
	Initiate(ctx context.Context, inv Invite) error
	Accept(ctx context.Context, callID, to string) error
	Reject(ctx context.Context, callID, to, reason string) error
	End(ctx context.Context, callID, to string) error
	Send(ctx context.Context, sig Signal) error
}

// Failure is the payload of call.failed events.
type Failure struct {
	Call Call
	Err  error
}
