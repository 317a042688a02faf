package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/status"
)

var ErrCannotRetry = errors.New("controller: already connected")

// Status returns the connection state and its banner text.
func (c *Controller) Status() (status.State, string) {
	return c.machine.Current(), c.machine.Reason()
}

// Bootstrap connects both channels, loads contacts and presence, and leaves
// the machine READY, DEGRADED or OFFLINE. Only OFFLINE returns an error.
func (c *Controller) Bootstrap(ctx context.Context) error {
	if err := c.machine.Transition(status.Connecting); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	res := c.rt.Connect(ctx)
	if res.Messaging != nil {
		// Contacts still help the user while offline.
		c.loadContacts(ctx)
		reason := "messaging unavailable: " + res.Messaging.Error()
		_ = c.machine.TransitionWithReason(status.Offline, reason)
		return fmt.Errorf("bootstrap: %w", res.Messaging)
	}
	_ = c.machine.Transition(status.Syncing)

	var problems []string
	if err := c.loadContacts(ctx); err != nil {
		problems = append(problems, "contacts unavailable")
	}
	if err := c.messenger.QueryPresence(ctx); err != nil {
		c.logger.Warn("presence query failed", zap.Error(err))
	}
	if res.Signal != nil {
		problems = append(problems, "calls unavailable")
	}
	if len(problems) > 0 {
		_ = c.machine.TransitionWithReason(status.Degraded, strings.Join(problems, ", "))
		return nil
	}
	_ = c.machine.Transition(status.Ready)

	if peer := c.OpenPeer(); peer != "" {
		// Catch up on what we missed while disconnected.
		if _, err := c.history.LoadLatest(ctx, peer); err != nil {
			c.logger.Warn("catch-up history failed", zap.String("peer", peer), zap.Error(err))
		}
	}
	return nil
}

// Retry re-runs Bootstrap from RECONNECTING, DEGRADED or OFFLINE.
func (c *Controller) Retry(ctx context.Context) error {
	if !c.machine.CanRetry() {
		return ErrCannotRetry
	}
	return c.Bootstrap(ctx)
}

// reconnect retries with backoff after a channel drop; when every attempt
// fails the client is left OFFLINE for a manual retry.
func (c *Controller) reconnect(ctx context.Context) {
	for i, wait := range c.backoff {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		st := c.machine.Current()
		if st != status.Reconnecting && !(i > 0 && st == status.Offline) {
			return
		}
		c.logger.Info("reconnecting", zap.Int("attempt", i+1))
		if err := c.Bootstrap(ctx); err == nil {
			return
		}
	}
}

func (c *Controller) loadContacts(ctx context.Context) error {
	contacts, err := c.dir.Contacts(ctx)
	if err != nil {
		c.logger.Warn("contacts fetch failed", zap.Error(err))
		return err
	}
	c.roster.Merge(contacts)
	c.updateBadge()
	return nil
}
