package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TypingSender is the subset of Messaging the notifier needs.
type TypingSender interface {
	Typing(ctx context.Context, to string, active bool) error
}

// TypingNotifier turns keystrokes into throttled typing.start frames and a
// trailing typing.stop once the user has been idle for one interval.
type TypingNotifier struct {
	sender   TypingSender
	interval time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	peers map[string]*typingPeer
}

type typingPeer struct {
	limiter *rate.Limiter
	idle    *time.Timer
	active  bool
}

// NewTypingNotifier creates a notifier sending at most one typing.start per
// interval and peer.
func NewTypingNotifier(sender TypingSender, interval time.Duration, logger *zap.Logger) *TypingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &TypingNotifier{
		sender:   sender,
		interval: interval,
		logger:   logger,
		peers:    make(map[string]*typingPeer),
	}
}

// Keystroke records local typing activity in the conversation with peer.
func (n *TypingNotifier) Keystroke(peer string) {
	if peer == "" {
		return
	}
	n.mu.Lock()
	p, ok := n.peers[peer]
	if !ok {
		p = &typingPeer{limiter: rate.NewLimiter(rate.Every(n.interval), 1)}
		n.peers[peer] = p
	}
	send := p.limiter.Allow()
	p.active = true
	if p.idle != nil {
		p.idle.Stop()
	}
	p.idle = time.AfterFunc(n.interval, func() { n.Stop(peer) })
	n.mu.Unlock()

	if send {
		n.send(peer, true)
	}
}

// Stop sends typing.stop to peer if a typing.start is outstanding.
func (n *TypingNotifier) Stop(peer string) {
	n.mu.Lock()
	p, ok := n.peers[peer]
	if !ok || !p.active {
		n.mu.Unlock()
		return
	}
	p.active = false
	if p.idle != nil {
		p.idle.Stop()
		p.idle = nil
	}
	// A fresh limiter lets the next keystroke announce itself right away.
	p.limiter = rate.NewLimiter(rate.Every(n.interval), 1)
	n.mu.Unlock()

	n.send(peer, false)
}

// StopAll stops every outstanding indicator, used on shutdown.
func (n *TypingNotifier) StopAll() {
	n.mu.Lock()
	peers := make([]string, 0, len(n.peers))
	for id := range n.peers {
		peers = append(peers, id)
	}
	n.mu.Unlock()
	for _, id := range peers {
		n.Stop(id)
	}
}

func (n *TypingNotifier) send(peer string, active bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := n.sender.Typing(ctx, peer, active); err != nil {
		n.logger.Debug("typing indicator not sent", zap.String("peer", peer), zap.Bool("active", active), zap.Error(err))
	}
}
