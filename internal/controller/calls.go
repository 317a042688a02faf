package controller

import (
	"context"
	"errors"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/media"
	"github.com/matheus3301/parley/internal/status"
)

var ErrCallsUnavailable = errors.New("controller: calls unavailable while offline")

// IsPermissionDenied reports whether a call failed because the microphone
// or camera could not be opened.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, media.ErrPermissionDenied)
}

// StartCall places an audio or video call to the open peer.
func (c *Controller) StartCall(ctx context.Context, t call.Type) (call.Call, error) {
	peer, _, err := c.conversation()
	if err != nil {
		return call.Call{}, err
	}
	if c.machine.Current() == status.Offline {
		return call.Call{}, ErrCallsUnavailable
	}
	return c.calls.Call(ctx, peer, t)
}

// AcceptCall answers the ringing incoming call.
func (c *Controller) AcceptCall(ctx context.Context) error {
	return c.calls.Accept(ctx)
}

// RejectCall declines the ringing incoming call.
func (c *Controller) RejectCall(ctx context.Context) error {
	return c.calls.Reject(ctx)
}

// Hangup ends or cancels the current call.
func (c *Controller) Hangup(ctx context.Context) error {
	return c.calls.Hangup(ctx)
}

// CallSnapshot is the current call for rendering.
func (c *Controller) CallSnapshot() call.Snapshot {
	return c.calls.Snapshot()
}
