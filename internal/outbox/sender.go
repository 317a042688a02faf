// Package outbox runs the optimistic send pipeline: outgoing messages are
// shown immediately with a client id, then sent in order on a single
// worker. Failures keep the placeholder, marked failed, for a later resend.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/wire"
)

const queueSize = 256

var (
	ErrUnknownMessage = errors.New("outbox: unknown message")
	ErrNotResendable  = errors.New("outbox: message is not a failed send")
	ErrNotOwn         = errors.New("outbox: not our message")
	ErrQueueFull      = errors.New("outbox: send queue full")
	ErrEmpty          = errors.New("outbox: nothing to send")
)

// Transport is the realtime messaging channel.
type Transport interface {
	Send(ctx context.Context, msg wire.OutgoingMessage) error
	Edit(ctx context.Context, to, messageID, text string) error
	Delete(ctx context.Context, to, messageID string) error
}

// Fallback performs edits and deletions over HTTP when the realtime path fails.
type Fallback interface {
	EditMessage(ctx context.Context, messageID, text string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Uploader uploads media files before their message is sent.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (rest.Upload, error)
}

// SendAck is the payload of message.send_ack: the frame left the client.
type SendAck struct {
	ConversationID  string
	ClientMessageID string
}

// SendFailure is the payload of message.send_failed and message.delete_failed.
type SendFailure struct {
	ConversationID string
	MessageID      string
	Err            error
}

type entry struct {
	conversationID string
	clientID       string
	localPath      string
	out            wire.OutgoingMessage
}

// Sender owns the outgoing side of conversations.
type Sender struct {
	self      string
	store     *store.Store
	roster    *roster.Roster
	transport Transport
	fallback  Fallback
	uploader  Uploader
	bus       *bus.Bus
	logger    *zap.Logger
	now       func() time.Time
	timeout   time.Duration

	queue  chan entry
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSender creates a sender for the local user self. fallback and uploader
// may be nil.
func NewSender(self string, st *store.Store, r *roster.Roster, t Transport, fb Fallback, up Uploader, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		self:      self,
		store:     st,
		roster:    r,
		transport: t,
		fallback:  fb,
		uploader:  up,
		bus:       b,
		logger:    logger.Named("outbox"),
		now:       time.Now,
		timeout:   30 * time.Second,
		queue:     make(chan entry, queueSize),
	}
}

// Start begins draining the send queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the worker and waits for the in-flight send.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sender) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case e := <-s.queue:
			s.process(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

// SendText shows a text message immediately and queues it. replyTo may be
// empty.
func (s *Sender) SendText(peer, text, replyTo string) (store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Message{}, ErrEmpty
	}
	m := s.placeholder(peer, store.TypeText)
	m.Text = text
	m.ReplyToID = replyTo
	return s.enqueue(m, "", wire.OutgoingMessage{
		ClientMessageID: m.ClientMessageID,
		To:              peer,
		Type:            string(store.TypeText),
		Text:            text,
		ReplyToID:       replyTo,
	})
}

// SendMedia shows a media message for the local file at path, then uploads
// and sends it in order with the other queued messages.
func (s *Sender) SendMedia(peer, path, caption string) (store.Message, error) {
	if s.uploader == nil {
		return store.Message{}, errors.New("outbox: uploads unavailable")
	}
	name := filepath.Base(path)
	mimeType := rest.MimeType(name)
	m := s.placeholder(peer, MediaType(mimeType))
	m.Text = strings.TrimSpace(caption)
	m.Media = &store.Media{URL: path, MimeType: mimeType, FileName: name}
	return s.enqueue(m, path, wire.OutgoingMessage{
		ClientMessageID: m.ClientMessageID,
		To:              peer,
		Type:            string(m.Type),
		Text:            m.Text,
	})
}

// MediaType maps a content type to the message type it is sent as.
func MediaType(mimeType string) store.MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return store.TypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return store.TypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return store.TypeVoice
	}
	return store.TypeImage
}

func (s *Sender) placeholder(peer string, typ store.MessageType) store.Message {
	id := uuid.NewString()
	return store.Message{
		ID:              id,
		ClientMessageID: id,
		ConversationID:  store.ConversationID(s.self, peer),
		SenderID:        s.self,
		RecipientID:     peer,
		Type:            typ,
		SentAt:          s.now(),
		Status:          store.StatusSending,
	}
}

func (s *Sender) enqueue(m store.Message, localPath string, out wire.OutgoingMessage) (store.Message, error) {
	if m.RecipientID == "" {
		return store.Message{}, fmt.Errorf("%w: no recipient", ErrEmpty)
	}
	s.store.AddMessage(m.ConversationID, m)
	if stored, ok := s.store.Get(m.ConversationID, m.ID); ok {
		m = stored
	}
	s.roster.Apply(m, m.RecipientID)
	s.bus.Emit(bus.KindMessageUpserted, m)
	s.bus.Emit(bus.KindRosterChanged, nil)

	e := entry{conversationID: m.ConversationID, clientID: m.ClientMessageID, localPath: localPath, out: out}
	select {
	case s.queue <- e:
		return m, nil
	default:
		s.failed(e.conversationID, e.clientID, ErrQueueFull)
		m.Status = store.StatusFailed
		return m, ErrQueueFull
	}
}

func (s *Sender) process(ctx context.Context, e entry) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if e.localPath != "" && e.out.Media == nil {
		up, err := s.uploader.UploadFile(ctx, e.localPath)
		if err != nil {
			s.logger.Warn("upload failed", zap.String("client_msg_id", e.clientID), zap.Error(err))
			s.failed(e.conversationID, e.clientID, fmt.Errorf("upload: %w", err))
			return
		}
		e.out.Media = &wire.OutgoingMedia{
			URL:          up.URL,
			ThumbnailURL: up.ThumbnailURL,
			MimeType:     up.MimeType,
			FileName:     up.FileName,
		}
	}

	if err := s.transport.Send(ctx, e.out); err != nil {
		s.logger.Warn("send failed", zap.String("client_msg_id", e.clientID), zap.Error(err))
		s.failed(e.conversationID, e.clientID, err)
		return
	}
	s.logger.Debug("message sent", zap.String("client_msg_id", e.clientID), zap.String("to", e.out.To))
	s.bus.Emit(bus.KindMessageSendAck, SendAck{ConversationID: e.conversationID, ClientMessageID: e.clientID})
}

func (s *Sender) failed(conversationID, clientID string, err error) {
	if s.store.SetStatus(conversationID, clientID, store.StatusFailed) {
		if m, ok := s.store.Get(conversationID, clientID); ok {
			s.bus.Emit(bus.KindMessageUpserted, m)
		}
	}
	s.bus.Emit(bus.KindMessageSendFailed, SendFailure{ConversationID: conversationID, MessageID: clientID, Err: err})
}

// Resend queues a failed optimistic message again.
func (s *Sender) Resend(conversationID, clientID string) error {
	m, ok := s.store.Get(conversationID, clientID)
	if !ok {
		return ErrUnknownMessage
	}
	if !m.Optimistic() || m.Status != store.StatusFailed {
		return ErrNotResendable
	}
	s.store.SetStatus(conversationID, clientID, store.StatusSending)
	m.Status = store.StatusSending
	s.bus.Emit(bus.KindMessageUpserted, m)

	out := wire.OutgoingMessage{
		ClientMessageID: m.ClientMessageID,
		To:              m.RecipientID,
		Type:            string(m.Type),
		Text:            m.Text,
		ReplyToID:       m.ReplyToID,
	}
	e := entry{conversationID: conversationID, clientID: clientID, out: out}
	if m.Media != nil && m.Type != store.TypeText {
		e.localPath = m.Media.URL
	}
	select {
	case s.queue <- e:
		return nil
	default:
		s.failed(conversationID, clientID, ErrQueueFull)
		return ErrQueueFull
	}
}

// Edit changes the text of one of our confirmed messages. The realtime path
// is tried first, then HTTP.
func (s *Sender) Edit(ctx context.Context, conversationID, messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}
	m, err := s.own(conversationID, messageID)
	if err != nil {
		return err
	}
	if m.Optimistic() {
		return ErrNotResendable
	}
	if err := s.transport.Edit(ctx, m.RecipientID, m.ID, text); err != nil {
		s.logger.Info("realtime edit failed, trying http", zap.String("msg_id", m.ID), zap.Error(err))
		if s.fallback == nil {
			return fmt.Errorf("edit message: %w", err)
		}
		if err := s.fallback.EditMessage(ctx, m.ID, text); err != nil {
			return fmt.Errorf("edit message: %w", err)
		}
	}
	if s.store.Edit(conversationID, m.ID, text) {
		if updated, ok := s.store.Get(conversationID, m.ID); ok {
			s.bus.Emit(bus.KindMessageUpserted, updated)
		}
	}
	s.refresh(conversationID)
	return nil
}

// Delete removes one of our messages. A failed placeholder that never
// reached the server is only removed locally.
func (s *Sender) Delete(ctx context.Context, conversationID, messageID string) error {
	m, err := s.own(conversationID, messageID)
	if err != nil {
		return err
	}
	if !m.Optimistic() {
		if err := s.transport.Delete(ctx, m.RecipientID, m.ID); err != nil {
			s.logger.Info("realtime delete failed, trying http", zap.String("msg_id", m.ID), zap.Error(err))
			if s.fallback != nil {
				err = s.fallback.DeleteMessage(ctx, m.ID)
			}
			if err != nil {
				err = fmt.Errorf("delete message: %w", err)
				s.bus.Emit(bus.KindMessageDeleteFailed, SendFailure{ConversationID: conversationID, MessageID: m.ID, Err: err})
				return err
			}
		}
	} else if m.Status == store.StatusSending {
		return ErrNotResendable
	}
	if removed, ok := s.store.Delete(conversationID, m.ID); ok {
		s.bus.Emit(bus.KindMessageRemoved, removed)
	}
	s.refresh(conversationID)
	return nil
}

func (s *Sender) own(conversationID, messageID string) (store.Message, error) {
	m, ok := s.store.Get(conversationID, messageID)
	if !ok {
		return store.Message{}, ErrUnknownMessage
	}
	if m.SenderID != s.self {
		return store.Message{}, ErrNotOwn
	}
	return m, nil
}

func (s *Sender) refresh(conversationID string) {
	peer := store.OtherParticipant(conversationID, s.self)
	last, ok := s.store.Last(conversationID)
	s.roster.Refresh(peer, last, ok)
	s.bus.Emit(bus.KindRosterChanged, nil)
}
