package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/tui/model"
	"github.com/matheus3301/parley/internal/tui/ui"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello", "hello"},
		{"skin tone", "👍🏽", "👍"},
		{"zwj sequence", "👩‍💻", "👩💻"},
		{"variation selector", "❤️", "❤"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeForTerminal(tt.input); got != tt.want {
				t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"today", now.Add(-2 * time.Hour), "10:00"},
		{"yesterday", now.Add(-24 * time.Hour), "02/28"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTimestamp(tt.t, now); got != tt.want {
				t.Errorf("formatTimestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeliveryMark(t *testing.T) {
	theme := ui.DefaultTheme()
	tests := []struct {
		name string
		msg  store.Message
		want string
	}{
		{"failed", store.Message{Status: store.StatusFailed}, "✗ not sent"},
		{"sending", store.Message{Status: store.StatusSending}, "…"},
		{"read", store.Message{Status: store.StatusSent, Read: true}, "✓✓"},
		{"sent", store.Message{Status: store.StatusSent}, "✓"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deliveryMark(tt.msg, theme)
			if !strings.Contains(got, tt.want) {
				t.Errorf("deliveryMark() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestReactions(t *testing.T) {
	m := store.Message{Reactions: map[string]map[string]struct{}{
		"👍": {"me": {}, "bob": {}},
		"❤": {"bob": {}},
		"😂": {},
	}}
	if got, want := reactions(m), "❤ 1  👍 2"; got != want {
		t.Errorf("reactions() = %q, want %q", got, want)
	}
	if got := reactions(store.Message{}); got != "" {
		t.Errorf("reactions(empty) = %q", got)
	}
}

func TestRenderMessage(t *testing.T) {
	theme := ui.DefaultTheme()
	parent := store.Message{ID: "p1", SenderID: "bob", Type: store.TypeText, Text: "lunch?"}
	m := store.Message{
		ID: "m2", SenderID: "me", Type: store.TypeText, Text: "sure [ok]",
		ReplyToID: "p1", Edited: true, SentAt: now, Status: store.StatusSent,
	}
	got := renderMessage(m, 1, "me", "Bob", map[string]store.Message{"p1": parent}, theme, now)
	for _, want := range []string{"You", "(edited)", "↳ lunch?", "sure [ok[]", "12:00"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderMessage() missing %q in %q", want, got)
		}
	}

	m.ReplyToID = "gone"
	if got := renderMessage(m, 1, "me", "Bob", nil, theme, now); !strings.Contains(got, "message not loaded") {
		t.Errorf("missing parent not reported: %q", got)
	}
}

func TestRenderThread(t *testing.T) {
	theme := ui.DefaultTheme()
	s := model.Screen{
		PeerName: "Bob",
		HasOlder: true,
		Typing:   true,
		Messages: []store.Message{
			{ID: "a", SenderID: "bob", Type: store.TypeText, Text: "first", SentAt: now},
			{ID: "b", SenderID: "bob", Type: store.TypeText, Text: "second", SentAt: now},
		},
	}
	got := renderThread(s, "me", theme, now)
	if strings.Index(got, "first") > strings.Index(got, "second") {
		t.Error("messages not rendered oldest first")
	}
	if !strings.Contains(got, ":older") || !strings.Contains(got, "Bob is typing") {
		t.Errorf("renderThread() = %q", got)
	}
	if !strings.Contains(got, "2[-] [") {
		t.Error("oldest message should carry number 2")
	}
}

func TestBanner(t *testing.T) {
	theme := ui.DefaultTheme()
	tests := []struct {
		state  status.State
		reason string
		want   string
	}{
		{status.Ready, "", "connected"},
		{status.Degraded, "calls unavailable", "degraded: calls unavailable"},
		{status.Offline, "", "offline (:retry)"},
		{status.Reconnecting, "", "reconnecting"},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := Banner(tt.state, tt.reason, theme); !strings.Contains(got, tt.want) {
				t.Errorf("Banner() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{75 * time.Second, "01:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestCallSummary(t *testing.T) {
	c := call.Call{PeerID: "bob", Type: call.Video}
	if got := callSummary(call.Snapshot{State: call.Incoming, Call: c}); got != "incoming video call from bob" {
		t.Errorf("incoming summary = %q", got)
	}
	if got := callSummary(call.Snapshot{State: call.Active, Call: c, Elapsed: 5 * time.Second}); got != "in call with bob 00:05" {
		t.Errorf("active summary = %q", got)
	}
}

func TestRenderQR(t *testing.T) {
	got := renderQR("parley://user/alice")
	if got == "" || strings.HasPrefix(got, "(QR") {
		t.Fatalf("renderQR() = %q", got)
	}
	if !strings.ContainsAny(got, "█▀▄") {
		t.Error("renderQR() drew no blocks")
	}
}

func TestConversationListFilter(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update([]roster.Contact{
		{ID: "bob", Name: "Bob", LastMessage: "see you"},
		{ID: "eve", Name: "Eve", LastMessage: "pizza?"},
		{ID: "zed"},
	})

	if got := cl.ContactByIndex(2); got != "eve" {
		t.Errorf("ContactByIndex(2) = %q", got)
	}
	if got := cl.ContactByIndex(4); got != "" {
		t.Errorf("ContactByIndex(4) = %q, want empty", got)
	}

	cl.SetFilter("PIZZA")
	if got := cl.ContactByIndex(1); got != "eve" {
		t.Errorf("filtered ContactByIndex(1) = %q", got)
	}
	if got := cl.ContactByIndex(2); got != "" {
		t.Errorf("filter left %q visible", got)
	}
	// FindByName searches every contact, not only visible ones.
	if got := cl.FindByName("bo"); got != "bob" {
		t.Errorf("FindByName(bo) = %q", got)
	}

	cl.ClearFilter()
	if cl.Filter() != "" || cl.ContactByIndex(3) != "zed" {
		t.Error("ClearFilter() did not restore the list")
	}
}
