package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func runeEvent(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		action *Action
		event  *tcell.EventKey
		want   bool
	}{
		{"same rune", RuneAction('q', "quit", nil), runeEvent('q'), true},
		{"other rune", RuneAction('q', "quit", nil), runeEvent('x'), false},
		{"special key", KeyAction(tcell.KeyCtrlR, "retry", nil), tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl), true},
		{"rune vs key", KeyAction(tcell.KeyEnter, "open", nil), runeEvent('q'), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.action.Matches(tt.event); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewBindingsWin(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(RuneAction('d', "global", func() { got = "global" }))
	r.AddView("Thread", RuneAction('d', "details", func() { got = "thread" }))

	if !r.HandleEvent("Thread", runeEvent('d')) || got != "thread" {
		t.Errorf("Thread dispatch = %q, want thread", got)
	}
	if !r.HandleEvent("Conversations", runeEvent('d')) || got != "global" {
		t.Errorf("Conversations dispatch = %q, want global", got)
	}
	if r.HandleEvent("Thread", runeEvent('z')) {
		t.Error("unbound key reported as handled")
	}
}

func TestNilHandlerNotHandled(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(RuneAction('x', "noop", nil))
	if r.HandleEvent("any", runeEvent('x')) {
		t.Error("action without handler reported as handled")
	}
	if r.Lookup("any", runeEvent('x')) == nil {
		t.Error("Lookup() should still find the action")
	}
}
