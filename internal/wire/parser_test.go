package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/media"
	"github.com/matheus3301/parley/internal/store"
)

func mustEnvelope(t *testing.T, raw string) Envelope {
	t.Helper()
	env, err := DecodeEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeEnvelope(%s) error = %v", raw, err)
	}
	return env
}

func TestDecodeEnvelopeAliases(t *testing.T) {
	env := mustEnvelope(t, `{"event":"message","senderId":"bob","recipientId":"me","data":"hi","messageId":"m1"}`)
	if env.Type != "message" || env.From != "bob" || env.To != "me" || env.ID != "m1" {
		t.Errorf("env = %+v", env)
	}
	if string(env.Payload) != `"hi"` {
		t.Errorf("payload = %s", env.Payload)
	}

	for _, raw := range []string{`not json`, `[1,2]`, `{"payload":{}}`} {
		if _, err := DecodeEnvelope([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeEnvelope(%s) error = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestEncode(t *testing.T) {
	raw, err := Encode(TypeMessageSend, "bob", OutgoingMessage{ClientMessageID: "c1", To: "bob", Type: "text", Text: "<b>&"})
	if err != nil {
		t.Fatal(err)
	}
	r := gjson.ParseBytes(raw)
	if r.Get("type").Str != TypeMessageSend || r.Get("payload.text").Str != "<b>&" || r.Get("payload.clientMessageId").Str != "c1" {
		t.Errorf("encoded = %s", raw)
	}
	if !json.Valid(raw) {
		t.Error("invalid json")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		raw  string
		want PayloadKind
	}{
		{`"hello"`, PayloadText},
		{`{"text":"hello"}`, PayloadObject},
		{`[1]`, PayloadInvalid},
		{`42`, PayloadInvalid},
		{``, PayloadInvalid},
		{`{broken`, PayloadInvalid},
	}
	for _, tt := range tests {
		if got := Classify([]byte(tt.raw)); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseMessageStringPayload(t *testing.T) {
	env := mustEnvelope(t, `{"type":"message","id":"m1","from":"bob","payload":"plain hello"}`)
	m, err := ParseMessage(env, "me")
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.ID != "m1" || m.Text != "plain hello" || m.SenderID != "bob" || m.RecipientID != "me" {
		t.Errorf("message = %+v", m)
	}
	if m.ConversationID != "bob_me" || m.Type != store.TypeText || m.Status != store.StatusReceived {
		t.Errorf("derived fields = %s %s %s", m.ConversationID, m.Type, m.Status)
	}
	if !m.SentAt.IsZero() {
		t.Errorf("SentAt = %v, want zero", m.SentAt)
	}
}

func TestParseMessageObjectPayload(t *testing.T) {
	raw := `{"type":"message","payload":{
		"_id":"s1","clientMessageId":"c1","sender":{"id":"me"},"receiverId":"bob",
		"content":"hi","type":"image","mediaUrl":"https://cdn/x.jpg","thumbnailUrl":"https://cdn/t.jpg",
		"createdAt":"2026-03-01T10:00:00Z","replyTo":{"id":"s0"},
		"reactions":{"👍":["bob","eve"]},"isRead":true}}`
	m, err := ParseMessage(mustEnvelope(t, raw), "me")
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.ID != "s1" || m.ClientMessageID != "c1" || m.SenderID != "me" || m.RecipientID != "bob" {
		t.Errorf("ids = %+v", m)
	}
	if m.Type != store.TypeImage || m.Media == nil || m.Media.URL != "https://cdn/x.jpg" || m.Media.ThumbnailURL != "https://cdn/t.jpg" {
		t.Errorf("media = %s %+v", m.Type, m.Media)
	}
	if !m.SentAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("SentAt = %v", m.SentAt)
	}
	if m.ReplyToID != "s0" || !m.Read || m.Status != store.StatusSent {
		t.Errorf("reply=%q read=%v status=%s", m.ReplyToID, m.Read, m.Status)
	}
	if !m.Reacted("👍", "eve") || len(m.Reactions["👍"]) != 2 {
		t.Errorf("reactions = %v", m.Reactions)
	}
}

func TestParseMessageWrapped(t *testing.T) {
	raw := `{"type":"message","from":"bob","payload":{"message":{"id":"s2","text":"inner"},"metadata":{"clientMessageId":"c2"}}}`
	m, err := ParseMessage(mustEnvelope(t, raw), "me")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "s2" || m.Text != "inner" || m.ClientMessageID != "c2" || m.SenderID != "bob" {
		t.Errorf("message = %+v", m)
	}
}

func TestParseMessageCall(t *testing.T) {
	raw := `{"type":"message","payload":{"id":"k1","senderId":"bob","type":"call","callType":"video","callStatus":"missed","timestamp":1772359200}}`
	m, err := ParseMessage(mustEnvelope(t, raw), "me")
	if err != nil {
		t.Fatal(err)
	}
	if m.Type != store.TypeCall || m.Call == nil || !m.Call.Video || !m.Call.Missed {
		t.Errorf("call = %s %+v", m.Type, m.Call)
	}
	if m.SentAt.Unix() != 1772359200 {
		t.Errorf("SentAt = %v", m.SentAt)
	}
}

func TestParseMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"no id", `{"type":"message","from":"bob","payload":"hi"}`, ErrMissingID},
		{"no sender", `{"type":"message","payload":{"id":"m"}}`, ErrMalformed},
		{"own without recipient", `{"type":"message","payload":{"id":"m","senderId":"me"}}`, ErrMalformed},
		{"array payload", `{"type":"message","payload":[1]}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage(mustEnvelope(t, tt.raw), "me")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		raw  string
		want time.Time
	}{
		{`"2026-03-01T10:00:00Z"`, want},
		{`"2026-03-01T07:00:00-03:00"`, want},
		{`"2026-03-01 10:00:00"`, want},
		{`1772359200`, want},
		{`1772359200000`, want},
		{`"1772359200000"`, want},
		{`"0001-01-01T00:00:00Z"`, time.Time{}},
		{`"1970-01-01T00:00:00Z"`, time.Time{}},
		{`"yesterday"`, time.Time{}},
		{`0`, time.Time{}},
		{`null`, time.Time{}},
		{`{}`, time.Time{}},
	}
	for _, tt := range tests {
		got := ParseTime(gjson.Parse(tt.raw))
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseHistorySkipsBadEntries(t *testing.T) {
	items := gjson.Parse(`[{"id":"a","senderId":"bob","text":"1"},{"text":"no id"},{"id":"b","senderId":"me","recipientId":"bob","text":"2"}]`)
	got := ParseHistory(items, "me")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("history = %+v", got)
	}
	if got[1].ConversationID != "bob_me" {
		t.Errorf("conversation = %s", got[1].ConversationID)
	}
}

func TestParseReactionEditDelete(t *testing.T) {
	rc, err := ParseReaction(mustEnvelope(t, `{"type":"reaction.remove","from":"bob","payload":{"messageId":"s1","emoji":"❤️"}}`), "me")
	if err != nil {
		t.Fatal(err)
	}
	if rc.Add || rc.UserID != "bob" || rc.ConversationID != "bob_me" {
		t.Errorf("reaction = %+v", rc)
	}
	rc, _ = ParseReaction(mustEnvelope(t, `{"type":"reaction","payload":{"messageId":"s1","emoji":"❤️","userId":"bob","action":"add"}}`), "me")
	if !rc.Add {
		t.Errorf("action add ignored: %+v", rc)
	}
	if _, err := ParseReaction(mustEnvelope(t, `{"type":"reaction.add","payload":{"messageId":"s1"}}`), "me"); err == nil {
		t.Error("reaction without emoji accepted")
	}

	ed, err := ParseEdit(mustEnvelope(t, `{"type":"message.edited","from":"bob","payload":{"messageId":"s1","text":"fixed"}}`), "me")
	if err != nil || ed.Text != "fixed" || ed.ConversationID != "bob_me" {
		t.Errorf("edit = %+v, %v", ed, err)
	}

	del, err := ParseDeletion(mustEnvelope(t, `{"type":"message.deleted","payload":{"messageId":"s1","conversationId":"bob_me"}}`), "me")
	if err != nil || del.MessageID != "s1" || del.ConversationID != "bob_me" {
		t.Errorf("deletion = %+v, %v", del, err)
	}
}

func TestParseTypingReceiptPresence(t *testing.T) {
	ty, err := ParseTyping(mustEnvelope(t, `{"type":"typing.start","from":"bob"}`))
	if err != nil || !ty.Active || ty.From != "bob" {
		t.Errorf("typing = %+v, %v", ty, err)
	}
	if _, err := ParseTyping(mustEnvelope(t, `{"type":"typing.stop"}`)); err == nil {
		t.Error("typing without sender accepted")
	}

	rc, err := ParseReceipt(mustEnvelope(t, `{"type":"message.read","from":"bob","payload":{"messageIds":["s1","s2"]}}`), "me")
	if err != nil || rc.ConversationID != "bob_me" || len(rc.MessageIDs) != 2 {
		t.Errorf("receipt = %+v, %v", rc, err)
	}

	p, err := ParsePresence(mustEnvelope(t, `{"type":"presence","payload":["bob",{"id":"eve"}]}`))
	if err != nil || !p.Full || len(p.Online) != 2 || p.Online[1] != "eve" {
		t.Errorf("presence list = %+v, %v", p, err)
	}
	p, err = ParsePresence(mustEnvelope(t, `{"type":"presence","payload":{"online":[]}}`))
	if err != nil || !p.Full || len(p.Online) != 0 {
		t.Errorf("empty presence = %+v, %v", p, err)
	}
	p, err = ParsePresence(mustEnvelope(t, `{"type":"presence","payload":{"userId":"bob","status":"online"}}`))
	if err != nil || p.Full || p.UserID != "bob" || !p.Active {
		t.Errorf("presence update = %+v, %v", p, err)
	}
}

func TestParseCallFrames(t *testing.T) {
	inv, err := ParseInvite(mustEnvelope(t, `{"type":"call.initiate","from":"bob","to":"me","payload":{"callId":"c1","callType":"video"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if inv != (call.Invite{CallID: "c1", CallerID: "bob", CalleeID: "me", Type: call.Video}) {
		t.Errorf("invite = %+v", inv)
	}

	resp, err := ParseResponse(mustEnvelope(t, `{"type":"call.reject","from":"bob","payload":{"callId":"c1","reason":"busy"}}`))
	if err != nil || resp.From != "bob" || resp.Reason != "busy" {
		t.Errorf("response = %+v, %v", resp, err)
	}
	if _, err := ParseResponse(mustEnvelope(t, `{"type":"call.end","payload":{}}`)); err == nil {
		t.Error("response without call id accepted")
	}
}

func TestParseSignalShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind call.SignalKind
	}{
		{"offer object", `{"type":"call.signal","from":"bob","payload":{"callId":"c","signal":{"type":"offer","sdp":"v=0"}}}`, call.KindOffer},
		{"answer string", `{"type":"call.signal","payload":{"callId":"c","signal":"{\"type\":\"answer\",\"sdp\":\"v=0\"}"}}`, call.KindAnswer},
		{"candidate typed", `{"type":"call.signal","payload":{"callId":"c","signalType":"ice-candidate","signal":{"candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}}}`, call.KindCandidate},
		{"candidate nested", `{"type":"call.signal","payload":{"callId":"c","data":{"candidate":{"candidate":"candidate:1","sdpMid":"0"}}}}`, call.KindCandidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignal(mustEnvelope(t, tt.raw))
			if err != nil {
				t.Fatalf("ParseSignal() error = %v", err)
			}
			if sig.Kind != tt.kind || sig.CallID != "c" {
				t.Errorf("signal = %+v", sig)
			}
			switch tt.kind {
			case call.KindCandidate:
				if sig.Candidate == nil || sig.Candidate.Candidate != "candidate:1" || sig.Candidate.SDPMid == nil || *sig.Candidate.SDPMid != "0" {
					t.Errorf("candidate = %+v", sig.Candidate)
				}
			default:
				if sig.Description == nil || sig.Description.SDP != "v=0" {
					t.Errorf("description = %+v", sig.Description)
				}
			}
		})
	}

	if _, err := ParseSignal(mustEnvelope(t, `{"type":"call.signal","payload":{"callId":"c","signal":{"foo":1}}}`)); err == nil {
		t.Error("unknown signal accepted")
	}
}

func TestSignalPayloadRoundTrip(t *testing.T) {
	idx := uint16(1)
	mid := "audio"
	sig := call.Signal{CallID: "c", CallerID: "me", CalleeID: "bob", Kind: call.KindCandidate}
	sig.Candidate = &media.ICECandidate{Candidate: "candidate:9", SDPMid: &mid, SDPMLineIndex: &idx}

	raw, err := Encode(TypeCallSignal, "bob", NewSignalPayload(sig))
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseSignal(mustEnvelope(t, string(raw)))
	if err != nil {
		t.Fatalf("ParseSignal(own frame) error = %v", err)
	}
	if got.Candidate == nil || *got.Candidate.SDPMLineIndex != 1 || *got.Candidate.SDPMid != "audio" || got.CallerID != "me" {
		t.Errorf("round trip = %+v / %+v", got, got.Candidate)
	}
}
