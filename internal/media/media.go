// Package media abstracts local capture devices and the peer connection used
// for calls.
package media

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned by Devices.Acquire when the user or the
	// platform refuses access to the microphone or camera.
	ErrPermissionDenied = errors.New("media: permission denied")
	// ErrNoDevice is returned when no capture device matches the constraints.
	ErrNoDevice = errors.New("media: no capture device")
)

// Constraints selects which tracks to capture.
type Constraints struct {
	Audio bool
	Video bool
}

// Stream is an acquired set of local tracks. Release must be safe to call
// more than once.
type Stream interface {
	ID() string
	Release()
}

// Devices hands out local capture streams.
type Devices interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// ConnectionState mirrors the peer connection's aggregate state.
type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// SessionDescription is an SDP offer or answer. The JSON shape matches what
// browsers put on the wire.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a trickled candidate in its JSON wire shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// PeerHandlers receives asynchronous peer connection callbacks. Either may be nil.
type PeerHandlers struct {
	OnICECandidate func(ICECandidate)
	OnStateChange  func(ConnectionState)
}

// Peer is one side of a media session.
type Peer interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context) (SessionDescription, error)
	// Answer applies a remote offer and returns the local answer.
	Answer(ctx context.Context, offer SessionDescription) (SessionDescription, error)
	// SetAnswer applies the remote answer to a previously created offer.
	SetAnswer(answer SessionDescription) error
	AddICECandidate(c ICECandidate) error
	Close() error
}

// PeerFactory creates peers carrying the tracks of a local stream.
type PeerFactory interface {
	NewPeer(stream Stream, h PeerHandlers) (Peer, error)
}
