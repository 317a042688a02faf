package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// trackStream is implemented by streams that can hand their tracks to pion.
type trackStream interface {
	Tracks() []webrtc.TrackLocal
}

// PionFactory creates pion/webrtc peer connections.
type PionFactory struct {
	ICEServers []string
	Logger     *zap.Logger
}

// NewPionFactory returns a factory using the given STUN/TURN urls.
func NewPionFactory(iceServers []string, logger *zap.Logger) *PionFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PionFactory{ICEServers: iceServers, Logger: logger}
}

func (f *PionFactory) NewPeer(stream Stream, h PeerHandlers) (Peer, error) {
	cfg := webrtc.Configuration{}
	if len(f.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: f.ICEServers}}
	}
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	if ts, ok := stream.(trackStream); ok {
		for _, track := range ts.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
			}
		}
	}

	logger := f.Logger.With(zap.String("stream", stream.ID()))
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || h.OnICECandidate == nil {
			return
		}
		init := c.ToJSON()
		h.OnICECandidate(ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug("peer connection state", zap.String("state", s.String()))
		if h.OnStateChange != nil {
			h.OnStateChange(ConnectionState(s.String()))
		}
	})
	return &pionPeer{pc: pc}, nil
}

type pionPeer struct {
	pc        *webrtc.PeerConnection
	closeOnce sync.Once
	closeErr  error
}

func (p *pionPeer) CreateOffer(ctx context.Context) (SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return SessionDescription{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (p *pionPeer) Answer(ctx context.Context, offer SessionDescription) (SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return SessionDescription{}, err
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		return SessionDescription{}, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *pionPeer) SetAnswer(answer SessionDescription) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

func (p *pionPeer) AddICECandidate(c ICECandidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (p *pionPeer) Close() error {
	p.closeOnce.Do(func() { p.closeErr = p.pc.Close() })
	return p.closeErr
}

// SilentDevices stands in for capture hardware in a terminal: it produces
// streams whose tracks are negotiated normally but never carry samples.
type SilentDevices struct {
	// Deny makes every Acquire fail with ErrPermissionDenied.
	Deny bool
}

func (d SilentDevices) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Deny {
		return nil, ErrPermissionDenied
	}
	if !c.Audio && !c.Video {
		return nil, ErrNoDevice
	}
	id := uuid.NewString()
	s := &silentStream{id: id}
	if c.Audio {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "parley-"+id)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
		s.tracks = append(s.tracks, t)
	}
	if c.Video {
		t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "parley-"+id)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

type silentStream struct {
	id       string
	tracks   []webrtc.TrackLocal
	mu       sync.Mutex
	released bool
}

func (s *silentStream) ID() string { return s.id }

func (s *silentStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *silentStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.tracks = nil
}

// Released reports whether Release has been called.
func (s *silentStream) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
