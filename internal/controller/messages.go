package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
)

var ErrUnknownMessage = errors.New("controller: unknown message")

// SetReplyTo marks the message the next text send replies to. "" clears it.
func (c *Controller) SetReplyTo(id string) error {
	if id != "" {
		if _, ok := c.Message(id); !ok {
			return ErrUnknownMessage
		}
	}
	c.mu.Lock()
	c.replyTo = id
	c.mu.Unlock()
	return nil
}

// ReplyTo returns the pending reply target.
func (c *Controller) ReplyTo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTo
}

// SendText queues text to the open peer and clears the reply target.
func (c *Controller) SendText(text string) (store.Message, error) {
	peer, _, err := c.conversation()
	if err != nil {
		return store.Message{}, err
	}
	c.mu.Lock()
	reply := c.replyTo
	c.mu.Unlock()
	m, err := c.sender.SendText(peer, text, reply)
	if err != nil {
		return m, err
	}
	c.mu.Lock()
	c.replyTo = ""
	c.mu.Unlock()
	if c.typing != nil {
		c.typing.Stop(peer)
	}
	return m, nil
}

// SendMedia uploads the file at path and sends it to the open peer.
func (c *Controller) SendMedia(path, caption string) (store.Message, error) {
	peer, _, err := c.conversation()
	if err != nil {
		return store.Message{}, err
	}
	return c.sender.SendMedia(peer, expandHome(path), caption)
}

// Resend retries a failed message of the open conversation.
func (c *Controller) Resend(clientID string) error {
	_, conv, err := c.conversation()
	if err != nil {
		return err
	}
	return c.sender.Resend(conv, clientID)
}

// ResendFailed retries every failed message of the open conversation and
// returns how many were queued.
func (c *Controller) ResendFailed() int {
	_, conv, err := c.conversation()
	if err != nil {
		return 0
	}
	n := 0
	for _, m := range c.store.Messages(conv) {
		if m.Status != store.StatusFailed {
			continue
		}
		if err := c.sender.Resend(conv, m.ClientMessageID); err == nil {
			n++
		}
	}
	return n
}

// Edit changes the text of one of our messages.
func (c *Controller) Edit(ctx context.Context, id, text string) error {
	_, conv, err := c.conversation()
	if err != nil {
		return err
	}
	return c.sender.Edit(ctx, conv, id, strings.TrimSpace(text))
}

// Delete removes one of our messages.
func (c *Controller) Delete(ctx context.Context, id string) error {
	_, conv, err := c.conversation()
	if err != nil {
		return err
	}
	return c.sender.Delete(ctx, conv, id)
}

// ToggleReaction adds our emoji reaction, or removes it when present. The
// store is updated first and rolled back if the frame cannot be sent.
func (c *Controller) ToggleReaction(ctx context.Context, id, emoji string) error {
	peer, conv, err := c.conversation()
	if err != nil {
		return err
	}
	m, ok := c.store.Get(conv, id)
	if !ok {
		return ErrUnknownMessage
	}
	if m.Optimistic() {
		return errors.New("controller: message not delivered yet")
	}
	add := !m.Reacted(emoji, c.self)
	if !c.store.ApplyReaction(conv, m.ID, emoji, c.self, add) {
		return nil
	}
	c.emitMessage(conv, m.ID)

	p := wire.ReactionPayload{ConversationID: conv, MessageID: m.ID, Emoji: emoji}
	if err := c.messenger.React(ctx, peer, p, add); err != nil {
		c.store.ApplyReaction(conv, m.ID, emoji, c.self, !add)
		c.emitMessage(conv, m.ID)
		c.logger.Warn("reaction not sent", zap.String("message", m.ID), zap.Error(err))
		return err
	}
	return nil
}

// Keystroke reports composer activity for the typing indicator.
func (c *Controller) Keystroke() {
	if peer := c.OpenPeer(); peer != "" && c.typing != nil {
		c.typing.Keystroke(peer)
	}
}

func (c *Controller) emitMessage(conv, id string) {
	if m, ok := c.store.Get(conv, id); ok {
		c.bus.Emit(bus.KindMessageUpserted, m)
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
