package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/parley/internal/media"
)

type sent struct {
	op     string
	callID string
	to     string
	reason string
	sig    Signal
	invite Invite
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSignaler) record(s sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	return f.err
}

func (f *fakeSignaler) Initiate(_ context.Context, inv Invite) error {
	return f.record(sent{op: "initiate", callID: inv.CallID, to: inv.CalleeID, invite: inv})
}

func (f *fakeSignaler) Accept(_ context.Context, callID, to string) error {
	return f.record(sent{op: "accept", callID: callID, to: to})
}

func (f *fakeSignaler) Reject(_ context.Context, callID, to, reason string) error {
	return f.record(sent{op: "reject", callID: callID, to: to, reason: reason})
}

func (f *fakeSignaler) End(_ context.Context, callID, to string) error {
	return f.record(sent{op: "end", callID: callID, to: to})
}

func (f *fakeSignaler) Send(_ context.Context, sig Signal) error {
	return f.record(sent{op: string(sig.Kind), callID: sig.CallID, to: sig.To, sig: sig})
}

func (f *fakeSignaler) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, s := range f.sent {
		out[i] = s.op
	}
	return out
}

func (f *fakeSignaler) last(op string) (sent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].op == op {
			return f.sent[i], true
		}
	}
	return sent{}, false
}

func (f *fakeSignaler) count(op string) int {
	n := 0
	for _, o := range f.ops() {
		if o == op {
			n++
		}
	}
	return n
}

type fakeStream struct {
	id       string
	released atomic.Int32
}

func (s *fakeStream) ID() string { return s.id }
func (s *fakeStream) Release()   { s.released.Add(1) }

type fakeDevices struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	// gate, when set, blocks Acquire until closed; entered is signalled first.
	gate    chan struct{}
	entered chan struct{}
}

func (d *fakeDevices) Acquire(ctx context.Context, _ media.Constraints) (media.Stream, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeStream{id: "stream"}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevices) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[i]
}

type fakePeer struct {
	mu         sync.Mutex
	handlers   media.PeerHandlers
	remote     *media.SessionDescription
	candidates []media.ICECandidate
	closed     atomic.Int32
	offerErr   error
}

func (p *fakePeer) CreateOffer(context.Context) (media.SessionDescription, error) {
	if p.offerErr != nil {
		return media.SessionDescription{}, p.offerErr
	}
	return media.SessionDescription{Type: "offer", SDP: "v=0 offer"}, nil
}

func (p *fakePeer) Answer(_ context.Context, offer media.SessionDescription) (media.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &offer
	return media.SessionDescription{Type: "answer", SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetAnswer(answer media.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &answer
	return nil
}

func (p *fakePeer) AddICECandidate(c media.ICECandidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("no remote description")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.closed.Add(1)
	return nil
}

func (p *fakePeer) candidateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.candidates)
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (f *fakeFactory) NewPeer(_ media.Stream, h media.PeerHandlers) (media.Peer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{handlers: h}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) peer(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
