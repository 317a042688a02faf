package wire

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/media"
)

// ParseInvite reads a call.initiate frame.
func ParseInvite(env Envelope) (call.Invite, error) {
	r, err := payload(env)
	if err != nil {
		return call.Invite{}, err
	}
	inv := call.Invite{
		CallID:   str(r, "callId", "id"),
		CallerID: firstNonEmpty(str(r, "callerId", "from"), env.From),
		CalleeID: firstNonEmpty(str(r, "calleeId", "to"), env.To),
		Type:     call.Audio,
	}
	if str(r, "callType", "type", "mediaType") == string(call.Video) || r.Get("video").Bool() {
		inv.Type = call.Video
	}
	if inv.CallID == "" || inv.CallerID == "" {
		return call.Invite{}, fmt.Errorf("%w: invite without call id or caller", ErrMalformed)
	}
	return inv, nil
}

// ParseResponse reads call.accept, call.reject and call.end frames.
func ParseResponse(env Envelope) (call.Response, error) {
	r, err := payload(env)
	if err != nil {
		return call.Response{}, err
	}
	resp := call.Response{
		CallID: str(r, "callId", "id"),
		From:   firstNonEmpty(str(r, "from", "userId"), env.From),
		Reason: str(r, "reason"),
	}
	if resp.CallID == "" {
		return call.Response{}, fmt.Errorf("%w: %s without call id", ErrMalformed, env.Type)
	}
	return resp, nil
}

// ParseSignal reads a call.signal frame. The negotiation data is opaque to
// the relay and arrives either as an object or as a JSON-encoded string.
func ParseSignal(env Envelope) (call.Signal, error) {
	r, err := payload(env)
	if err != nil {
		return call.Signal{}, err
	}
	sig := call.Signal{
		CallID:   str(r, "callId", "id"),
		From:     firstNonEmpty(str(r, "from"), env.From),
		To:       firstNonEmpty(str(r, "to"), env.To),
		CallerID: str(r, "callerId"),
		CalleeID: str(r, "calleeId"),
	}
	data := first(r, "signal", "data", "sdp")
	if data.Type == gjson.String && gjson.Valid(data.Str) {
		data = gjson.Parse(data.Str)
	}

	kind := firstNonEmpty(str(r, "signalType", "kind"), str(data, "type"))
	switch {
	case kind == string(call.KindOffer) || kind == string(call.KindAnswer):
		sig.Kind = call.SignalKind(kind)
		sdp := str(data, "sdp")
		if sdp == "" && data.Type == gjson.String {
			sdp = data.Str
		}
		if sdp == "" {
			return call.Signal{}, fmt.Errorf("%w: %s without sdp", ErrMalformed, kind)
		}
		sig.Description = &media.SessionDescription{Type: kind, SDP: sdp}
	case kind == string(call.KindCandidate) || kind == "candidate" || data.Get("candidate").Exists():
		sig.Kind = call.KindCandidate
		c := first(data, "candidate.candidate", "candidate")
		if c.Type != gjson.String {
			return call.Signal{}, fmt.Errorf("%w: candidate payload", ErrMalformed)
		}
		cand := &media.ICECandidate{Candidate: c.Str}
		holder := data
		if data.Get("candidate").IsObject() {
			holder = data.Get("candidate")
		}
		if mid := holder.Get("sdpMid"); mid.Type == gjson.String {
			v := mid.Str
			cand.SDPMid = &v
		}
		if idx := holder.Get("sdpMLineIndex"); idx.Type == gjson.Number {
			v := uint16(idx.Uint())
			cand.SDPMLineIndex = &v
		}
		sig.Candidate = cand
	default:
		return call.Signal{}, fmt.Errorf("%w: unknown signal kind %q", ErrMalformed, kind)
	}
	if sig.CallID == "" {
		return call.Signal{}, fmt.Errorf("%w: signal without call id", ErrMalformed)
	}
	return sig, nil
}

// InvitePayload is the outbound call.initiate payload.
type InvitePayload struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	CalleeID string `json:"calleeId"`
	CallType string `json:"callType"`
}

// ResponsePayload is the outbound accept/reject/end payload.
type ResponsePayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// SignalPayload is the outbound call.signal payload.
type SignalPayload struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId,omitempty"`
	CalleeID   string `json:"calleeId,omitempty"`
	SignalType string `json:"signalType"`
	Signal     any    `json:"signal"`
}

// NewSignalPayload converts a call.Signal for sending.
func NewSignalPayload(sig call.Signal) SignalPayload {
	p := SignalPayload{
		CallID:     sig.CallID,
		CallerID:   sig.CallerID,
		CalleeID:   sig.CalleeID,
		SignalType: string(sig.Kind),
	}
	switch {
	case sig.Description != nil:
		p.Signal = sig.Description
	case sig.Candidate != nil:
		p.Signal = sig.Candidate
	}
	return p
}
