package call

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/media"
)

const reasonCallEnded = "call already ended"

// Start subscribes to inbound signal-channel events on the bus and applies
// them in arrival order until Stop.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	ch, unsub := m.bus.Subscribe("rt.call.", 256)

	go func() {
		defer close(m.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				m.dispatch(ctx, evt)
			}
		}
	}()
}

// Stop ends the event loop and hangs up any call in progress.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()
	_ = m.Hangup(ctx)
}

func (m *Manager) dispatch(ctx context.Context, evt bus.Event) {
	switch p := evt.Payload.(type) {
	case Invite:
		m.HandleInvite(ctx, p)
	case Signal:
		m.HandleSignal(ctx, p)
	case Response:
		switch evt.Kind {
		case bus.KindRTCallAccepted:
			m.HandleAccepted(ctx, p)
		case bus.KindRTCallRejected:
			m.HandleRejected(p)
		case bus.KindRTCallEnded:
			m.HandleEnded(p)
		}
	default:
		m.logger.Warn("unexpected call event", zap.String("kind", evt.Kind))
	}
}

// HandleInvite processes an incoming call announcement. While another call
// is in progress the invite is rejected as busy.
func (m *Manager) HandleInvite(ctx context.Context, inv Invite) {
	if inv.CalleeID != m.self || inv.CallID == "" || inv.CallerID == "" {
		m.drop(inv.CallID, "", inv.CallerID, "invite not addressed to us")
		return
	}
	if inv.Type == "" {
		inv.Type = Audio
	}

	m.mu.Lock()
	if m.endedLocked(inv.CallID) {
		m.mu.Unlock()
		m.drop(inv.CallID, "", inv.CallerID, reasonCallEnded)
		return
	}
	if cur := m.sess; cur != nil {
		duplicate := cur.call.ID == inv.CallID
		m.mu.Unlock()
		if !duplicate {
			m.logger.Info("rejecting call while busy", zap.String("call_id", inv.CallID), zap.String("from", inv.CallerID))
			if err := m.signals.Reject(ctx, inv.CallID, inv.CallerID, "busy"); err != nil {
				m.logger.Warn("send busy reject", zap.Error(err))
			}
		}
		return
	}
	m.ringLocked(inv.CallID, inv.CallerID, inv.Type, "")
	m.mu.Unlock()
}

// ringLocked installs an incoming session and moves to Incoming.
func (m *Manager) ringLocked(callID, peerID string, t Type, reason string) *session {
	s := &session{call: Call{
		ID:        callID,
		PeerID:    peerID,
		Type:      t,
		Direction: DirIncoming,
		StartedAt: m.now(),
	}}
	if err := m.machine.Transition(Incoming, s.call, reason); err != nil {
		m.logger.Error("incoming call", zap.Error(err))
		return nil
	}
	m.sess = s
	m.armRingLocked(s)
	m.logger.Info("incoming call", zap.String("call_id", callID), zap.String("peer", peerID), zap.String("type", string(t)))
	return s
}

// HandleAccepted moves an outgoing call to Active and sends the offer.
func (m *Manager) HandleAccepted(ctx context.Context, r Response) {
	m.mu.Lock()
	s := m.resolveLocked(r.CallID, r.From, m.self)
	if s == nil || s.call.Direction != DirOutgoing || m.machine.Current() != Outgoing {
		m.mu.Unlock()
		m.drop(r.CallID, "accept", r.From, "no matching outgoing call")
		return
	}
	if s.ring != nil {
		s.ring.Stop()
	}
	if err := m.machine.Transition(Active, s.call, "accepted"); err != nil {
		m.mu.Unlock()
		m.logger.Error("accept", zap.Error(err))
		return
	}
	peer, c := s.peer, s.call
	m.mu.Unlock()

	if peer == nil {
		m.fail(s, errors.New("accepted before peer connection was ready"), true)
		return
	}
	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		m.fail(s, fmt.Errorf("create offer: %w", err), true)
		return
	}
	sig := m.outbound(c, KindOffer)
	sig.Description = &offer
	if err := m.signals.Send(ctx, sig); err != nil {
		m.fail(s, fmt.Errorf("send offer: %w", err), true)
	}
}

// HandleRejected ends the call the peer declined.
func (m *Manager) HandleRejected(r Response) {
	m.endFromRemote(r, "rejected")
}

// HandleEnded ends the call the peer hung up.
func (m *Manager) HandleEnded(r Response) {
	m.endFromRemote(r, "ended by peer")
}

func (m *Manager) endFromRemote(r Response, what string) {
	m.mu.Lock()
	s := m.resolveLocked(r.CallID, r.From, "")
	m.mu.Unlock()
	if s == nil {
		m.drop(r.CallID, "", r.From, "no matching call")
		return
	}
	reason := what
	if r.Reason != "" {
		reason = what + ": " + r.Reason
	}
	m.teardown(s, reason)
}

// HandleSignal applies an offer, answer or ICE candidate. Signals whose call
// id does not match go through recovery (see resolveLocked); a signal that
// names us as callee while no call exists starts ringing under its call id,
// unless that call ended here recently.
func (m *Manager) HandleSignal(ctx context.Context, sig Signal) {
	m.mu.Lock()
	if m.endedLocked(sig.CallID) {
		m.mu.Unlock()
		m.drop(sig.CallID, sig.Kind, sig.From, reasonCallEnded)
		return
	}
	var s *session
	if m.sess == nil {
		if !m.addressedAsCallee(sig) {
			m.mu.Unlock()
			m.drop(sig.CallID, sig.Kind, sig.From, "no call in progress")
			return
		}
		peer := sig.CallerID
		if peer == "" {
			peer = sig.From
		}
		if s = m.ringLocked(sig.CallID, peer, typeFromSignal(sig), "recovered from signal"); s == nil {
			m.mu.Unlock()
			return
		}
	} else if s = m.resolveLocked(sig.CallID, sig.From, sig.CallerID); s == nil {
		m.mu.Unlock()
		m.drop(sig.CallID, sig.Kind, sig.From, "call id mismatch")
		return
	}

	switch sig.Kind {
	case KindOffer:
		if s.call.Direction != DirIncoming || sig.Description == nil {
			m.mu.Unlock()
			m.drop(sig.CallID, sig.Kind, sig.From, "unexpected offer")
			return
		}
		if s.peer == nil || m.machine.Current() != Active {
			s.pendingOffer = sig.Description
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		m.answer(ctx, s, *sig.Description)

	case KindAnswer:
		if s.call.Direction != DirOutgoing || s.peer == nil || sig.Description == nil {
			m.mu.Unlock()
			m.drop(sig.CallID, sig.Kind, sig.From, "unexpected answer")
			return
		}
		peer := s.peer
		m.mu.Unlock()
		if err := peer.SetAnswer(*sig.Description); err != nil {
			m.fail(s, fmt.Errorf("apply answer: %w", err), true)
			return
		}
		m.remoteReady(s)

	case KindCandidate:
		if sig.Candidate == nil {
			m.mu.Unlock()
			m.drop(sig.CallID, sig.Kind, sig.From, "empty candidate")
			return
		}
		if s.peer == nil || !s.remoteSet {
			if len(s.pendingCandidates) < maxPendingCandidates {
				s.pendingCandidates = append(s.pendingCandidates, *sig.Candidate)
			}
			m.mu.Unlock()
			return
		}
		peer := s.peer
		m.mu.Unlock()
		if err := peer.AddICECandidate(*sig.Candidate); err != nil {
			m.logger.Warn("add ice candidate", zap.String("call_id", sig.CallID), zap.Error(err))
		}

	default:
		m.mu.Unlock()
		m.drop(sig.CallID, sig.Kind, sig.From, "unknown signal kind")
	}
}

// addressedAsCallee reports whether sig names the local user as the callee.
// Only an explicit callee id, or an offer sent to us, counts.
func (m *Manager) addressedAsCallee(sig Signal) bool {
	if sig.CallID == "" {
		return false
	}
	if sig.CalleeID != "" {
		return sig.CalleeID == m.self && sig.CallerID != m.self
	}
	return sig.Kind == KindOffer && sig.To == m.self && sig.From != ""
}

func typeFromSignal(sig Signal) Type {
	if sig.Description != nil && strings.Contains(sig.Description.SDP, "m=video") {
		return Video
	}
	return Audio
}

// resolveLocked returns the current session if a message about callID from
// peer belongs to it. A different call id is adopted when the peer matches
// and, if callerID is known, our role in the call matches it too.
func (m *Manager) resolveLocked(callID, peer, callerID string) *session {
	s := m.sess
	if s == nil {
		return nil
	}
	if s.call.ID == callID {
		return s
	}
	if callID == "" || peer == "" || s.call.PeerID != peer || m.endedLocked(callID) {
		return nil
	}
	if callerID != "" && (callerID == m.self) != (s.call.Direction == DirOutgoing) {
		return nil
	}
	m.logger.Info("adopting peer call id", zap.String("old", s.call.ID), zap.String("new", callID))
	s.call.ID = callID
	return s
}

// answer applies a remote offer on the callee side and sends the answer.
func (m *Manager) answer(ctx context.Context, s *session, offer media.SessionDescription) {
	m.mu.Lock()
	if m.sess != s || s.peer == nil {
		m.mu.Unlock()
		return
	}
	peer := s.peer
	m.mu.Unlock()

	ans, err := peer.Answer(ctx, offer)
	if err != nil {
		m.fail(s, fmt.Errorf("answer offer: %w", err), true)
		return
	}
	c, ok := m.current(s)
	if !ok {
		return
	}
	sig := m.outbound(c, KindAnswer)
	sig.Description = &ans
	if err := m.signals.Send(ctx, sig); err != nil {
		m.fail(s, fmt.Errorf("send answer: %w", err), true)
		return
	}
	m.remoteReady(s)
}

// remoteReady marks the remote description applied and flushes candidates
// buffered before it was.
func (m *Manager) remoteReady(s *session) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	s.remoteSet = true
	pending := s.pendingCandidates
	s.pendingCandidates = nil
	peer := s.peer
	m.mu.Unlock()

	for _, c := range pending {
		if err := peer.AddICECandidate(c); err != nil {
			m.logger.Warn("add buffered ice candidate", zap.Error(err))
		}
	}
}

func (m *Manager) drop(callID string, kind SignalKind, from, reason string) {
	m.logger.Debug("dropping call signal",
		zap.String("call_id", callID),
		zap.String("kind", string(kind)),
		zap.String("from", from),
		zap.String("reason", reason),
	)
	m.bus.Emit(bus.KindCallSignalDropped, Dropped{CallID: callID, Kind: kind, From: from, Reason: reason})
}
