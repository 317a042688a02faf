// Package call coordinates a single voice or video call across the signal
// channel, local capture devices and the peer connection.
package call

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/media"
)

const (
	defaultTickInterval  = time.Second
	defaultSendTimeout   = 10 * time.Second
	maxPendingCandidates = 64
	endedCallMemory      = 32
)

// Option configures a Manager.
type Option func(*Manager)

// WithRingTimeout ends calls nobody answered after d. Zero disables it.
func WithRingTimeout(d time.Duration) Option {
	return func(m *Manager) { m.ringTimeout = d }
}

// WithTickInterval sets how often call.tick events are published.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) { m.tickEvery = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns at most one call at a time. All methods are safe for
// concurrent use; network and device calls are made without holding the
// manager lock and the session is re-checked after each of them.
type Manager struct {
	self    string
	signals Signaler
	devices media.Devices
	peers   media.PeerFactory
	bus     *bus.Bus
	logger  *zap.Logger
	machine *Machine

	ringTimeout time.Duration
	tickEvery   time.Duration
	sendTimeout time.Duration
	now         func() time.Time

	mu   sync.Mutex
	sess *session
	// ids of recently torn-down calls, oldest first.
	ended []string

	cancel context.CancelFunc
	done   chan struct{}
}

// session is the state of the current call. Its fields are written only
// while it is the manager's current session and under the manager lock.
type session struct {
	call              Call
	stream            media.Stream
	peer              media.Peer
	accepting         bool
	remoteSet         bool
	pendingOffer      *media.SessionDescription
	pendingCandidates []media.ICECandidate
	ring              *time.Timer
	tickStop          chan struct{}
	releaseOnce       sync.Once
}

// release frees everything the session acquired, exactly once.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		if s.ring != nil {
			s.ring.Stop()
		}
		if s.tickStop != nil {
			close(s.tickStop)
		}
		if s.peer != nil {
			_ = s.peer.Close()
		}
		if s.stream != nil {
			s.stream.Release()
		}
	})
}

// NewManager creates a call manager for the local user self.
func NewManager(self string, signals Signaler, devices media.Devices, peers media.PeerFactory, b *bus.Bus, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		self:        self,
		signals:     signals,
		devices:     devices,
		peers:       peers,
		bus:         b,
		logger:      logger,
		machine:     NewMachine(b),
		tickEvery:   defaultTickInterval,
		sendTimeout: defaultSendTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current call state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// Snapshot returns the current state, call and elapsed connected time.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{State: m.machine.Current()}
	if s := m.sess; s != nil {
		snap.Call = s.call
		if !s.call.ConnectedAt.IsZero() {
			snap.Elapsed = m.now().Sub(s.call.ConnectedAt)
		}
	}
	return snap
}

// Call places an outgoing call: it reserves the call slot, acquires local
// media, creates the peer connection and announces the call. The offer is
// only sent once the callee accepts.
func (m *Manager) Call(ctx context.Context, peerID string, t Type) (Call, error) {
	if peerID == "" || peerID == m.self {
		return Call{}, fmt.Errorf("call: invalid peer %q", peerID)
	}
	if t == "" {
		t = Audio
	}

	m.mu.Lock()
	if m.sess != nil {
		m.mu.Unlock()
		return Call{}, ErrBusy
	}
	s := &session{call: Call{
		ID:        uuid.NewString(),
		PeerID:    peerID,
		Type:      t,
		Direction: DirOutgoing,
		StartedAt: m.now(),
	}}
	if err := m.machine.Transition(Outgoing, s.call, ""); err != nil {
		m.mu.Unlock()
		return Call{}, err
	}
	m.sess = s
	m.mu.Unlock()

	if err := m.prepareMedia(ctx, s); err != nil {
		m.fail(s, err, false)
		return Call{}, err
	}

	c, ok := m.current(s)
	if !ok {
		return Call{}, ErrCallEnded
	}
	inv := Invite{CallID: c.ID, CallerID: m.self, CalleeID: peerID, Type: t}
	if err := m.signals.Initiate(ctx, inv); err != nil {
		err = fmt.Errorf("announce call: %w", err)
		m.fail(s, err, false)
		return Call{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s {
		return Call{}, ErrCallEnded
	}
	m.armRingLocked(s)
	m.logger.Info("outgoing call", zap.String("call_id", s.call.ID), zap.String("peer", peerID), zap.String("type", string(t)))
	return s.call, nil
}

// Accept answers the ringing incoming call.
func (m *Manager) Accept(ctx context.Context) error {
	m.mu.Lock()
	s := m.sess
	if s == nil || m.machine.Current() != Incoming || s.accepting {
		m.mu.Unlock()
		return ErrNotRinging
	}
	s.accepting = true
	m.mu.Unlock()

	if err := m.prepareMedia(ctx, s); err != nil {
		m.fail(s, err, true)
		return err
	}

	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return ErrCallEnded
	}
	if s.ring != nil {
		s.ring.Stop()
	}
	if err := m.machine.Transition(Active, s.call, "accepted"); err != nil {
		m.mu.Unlock()
		return err
	}
	m.startTimerLocked(s)
	c := s.call
	offer := s.pendingOffer
	s.pendingOffer = nil
	m.mu.Unlock()

	if err := m.signals.Accept(ctx, c.ID, c.PeerID); err != nil {
		err = fmt.Errorf("send accept: %w", err)
		m.fail(s, err, true)
		return err
	}
	m.logger.Info("call accepted", zap.String("call_id", c.ID), zap.String("peer", c.PeerID))
	if offer != nil {
		m.answer(ctx, s, *offer)
	}
	return nil
}

// Reject declines the ringing incoming call.
func (m *Manager) Reject(ctx context.Context) error {
	m.mu.Lock()
	s := m.sess
	ringing := s != nil && m.machine.Current() == Incoming
	m.mu.Unlock()
	if !ringing {
		return ErrNotRinging
	}
	if !m.teardown(s, "declined") {
		return nil
	}
	return m.signals.Reject(ctx, s.call.ID, s.call.PeerID, "declined")
}

// Hangup ends whatever call is in progress. It is idempotent: with no call,
// or when another teardown won the race, it returns nil.
func (m *Manager) Hangup(ctx context.Context) error {
	m.mu.Lock()
	s := m.sess
	state := m.machine.Current()
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	if !m.teardown(s, "hangup") {
		return nil
	}
	if state == Incoming {
		return m.signals.Reject(ctx, s.call.ID, s.call.PeerID, "declined")
	}
	return m.signals.End(ctx, s.call.ID, s.call.PeerID)
}

// prepareMedia acquires the local stream and creates the peer connection
// for s. Either resource is released immediately if s stopped being the
// current session while it was being acquired.
func (m *Manager) prepareMedia(ctx context.Context, s *session) error {
	stream, err := m.devices.Acquire(ctx, media.Constraints{Audio: true, Video: s.call.Type == Video})
	if err != nil {
		return fmt.Errorf("acquire media: %w", err)
	}
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		stream.Release()
		return ErrCallEnded
	}
	s.stream = stream
	m.mu.Unlock()

	peer, err := m.peers.NewPeer(stream, m.handlers(s))
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		_ = peer.Close()
		return ErrCallEnded
	}
	s.peer = peer
	m.mu.Unlock()
	return nil
}

func (m *Manager) handlers(s *session) media.PeerHandlers {
	return media.PeerHandlers{
		OnICECandidate: func(c media.ICECandidate) {
			call, ok := m.current(s)
			if !ok {
				return
			}
			sig := m.outbound(call, KindCandidate)
			sig.Candidate = &c
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()
			if err := m.signals.Send(ctx, sig); err != nil {
				m.logger.Warn("send ice candidate", zap.String("call_id", call.ID), zap.Error(err))
			}
		},
		OnStateChange: func(st media.ConnectionState) {
			m.onPeerState(s, st)
		},
	}
}

func (m *Manager) onPeerState(s *session, st media.ConnectionState) {
	switch st {
	case media.StateConnected:
		m.mu.Lock()
		if m.sess == s && m.machine.Current() == Active {
			m.startTimerLocked(s)
		}
		m.mu.Unlock()
	case media.StateFailed:
		m.fail(s, errors.New("peer connection failed"), true)
	}
}

// outbound builds a signal from us to the call's peer with roles filled in.
func (m *Manager) outbound(c Call, kind SignalKind) Signal {
	sig := Signal{CallID: c.ID, From: m.self, To: c.PeerID, Kind: kind}
	if c.Direction == DirOutgoing {
		sig.CallerID, sig.CalleeID = m.self, c.PeerID
	} else {
		sig.CallerID, sig.CalleeID = c.PeerID, m.self
	}
	return sig
}

// current returns s's call if s is still the current session.
func (m *Manager) current(s *session) (Call, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != s {
		return Call{}, false
	}
	return s.call, true
}

func (m *Manager) startTimerLocked(s *session) {
	if s.tickStop != nil {
		return
	}
	s.call.ConnectedAt = m.now()
	stop := make(chan struct{})
	s.tickStop = stop
	go m.tick(s.call.ID, s.call.ConnectedAt, stop)
}

func (m *Manager) tick(callID string, start time.Time, stop <-chan struct{}) {
	t := time.NewTicker(m.tickEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.bus.Emit(bus.KindCallTick, Tick{CallID: callID, Elapsed: m.now().Sub(start)})
		}
	}
}

func (m *Manager) armRingLocked(s *session) {
	if m.ringTimeout <= 0 || s.ring != nil {
		return
	}
	s.ring = time.AfterFunc(m.ringTimeout, func() { m.ringExpired(s) })
}

func (m *Manager) ringExpired(s *session) {
	m.mu.Lock()
	state := m.machine.Current()
	stale := m.sess != s || (state != Outgoing && state != Incoming)
	m.mu.Unlock()
	if stale {
		return
	}
	reason := "no answer"
	if state == Incoming {
		reason = "missed"
	}
	if !m.teardown(s, reason) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	var err error
	if state == Incoming {
		err = m.signals.Reject(ctx, s.call.ID, s.call.PeerID, reason)
	} else {
		err = m.signals.End(ctx, s.call.ID, s.call.PeerID)
	}
	if err != nil {
		m.logger.Warn("notify peer after ring timeout", zap.String("call_id", s.call.ID), zap.Error(err))
	}
}

// teardown makes s no longer current, returns the machine to Idle and
// releases s. Only the first of several concurrent teardowns of the same
// session does anything; it reports whether this call was that one.
func (m *Manager) teardown(s *session, reason string) bool {
	m.mu.Lock()
	if s == nil || m.sess != s {
		m.mu.Unlock()
		return false
	}
	m.sess = nil
	m.rememberEndedLocked(s.call.ID)
	if err := m.machine.Transition(Idle, s.call, reason); err != nil {
		m.logger.Error("call teardown", zap.Error(err))
	}
	m.mu.Unlock()

	s.release()
	m.logger.Info("call ended", zap.String("call_id", s.call.ID), zap.String("reason", reason))
	return true
}

func (m *Manager) rememberEndedLocked(callID string) {
	if callID == "" || m.endedLocked(callID) {
		return
	}
	if len(m.ended) == endedCallMemory {
		m.ended = m.ended[1:]
	}
	m.ended = append(m.ended, callID)
}

// endedLocked reports whether callID belongs to a call that was torn down
// recently. Signals still in flight for such a call are stale.
func (m *Manager) endedLocked(callID string) bool {
	return callID != "" && slices.Contains(m.ended, callID)
}

// fail tears s down after a negotiation error and, when notify is set,
// tells the peer the call is over.
func (m *Manager) fail(s *session, err error, notify bool) {
	if errors.Is(err, ErrCallEnded) {
		return
	}
	if !m.teardown(s, err.Error()) {
		return
	}
	m.logger.Warn("call failed", zap.String("call_id", s.call.ID), zap.Error(err))
	m.bus.Emit(bus.KindCallFailed, Failure{Call: s.call, Err: err})
	if notify {
		ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
		defer cancel()
		_ = m.signals.End(ctx, s.call.ID, s.call.PeerID)
	}
}
