package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/tui/ui"
)

// CallView is shown while a call rings or is connected.
type CallView struct {
	*tview.TextView
	theme *ui.Theme
	state call.State
}

// NewCallView creates a new call view.
func NewCallView(theme *ui.Theme) *CallView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Call ")
	tv.SetTitleColor(theme.TitleColor)

	return &CallView{TextView: tv, theme: theme}
}

// Name implements Component.
func (cv *CallView) Name() string { return "Call" }

// Focus implements Component.
func (cv *CallView) Focus() tview.Primitive { return cv }

// Hints implements Component.
func (cv *CallView) Hints() []ui.MenuHint {
	if cv.state == call.Incoming {
		return []ui.MenuHint{
			{Key: "a", Description: "Accept"},
			{Key: "r", Description: "Reject"},
		}
	}
	return []ui.MenuHint{
		{Key: "h", Description: "Hang up"},
	}
}

// Update renders the call; name is the peer's display name.
func (cv *CallView) Update(s call.Snapshot, name string) {
	cv.state = s.State
	cv.Clear()

	kind := "Audio"
	if s.Call.Type == call.Video {
		kind = "Video"
	}
	var line, action string
	switch s.State {
	case call.Incoming:
		line = fmt.Sprintf("Incoming %s call", kind)
		action = "a accept   r reject"
	case call.Outgoing:
		line = fmt.Sprintf("Calling… (%s)", kind)
		action = "h cancel"
	case call.Active:
		line = fmt.Sprintf("%s call  %s", kind, formatElapsed(s.Elapsed))
		action = "h hang up"
	default:
		line = "Call ended"
	}
	_, _ = fmt.Fprintf(cv, "\n\n\n[%s::b]%s[-:-:-]\n\n%s\n\n[%s]%s[-]",
		ui.Hex(cv.theme.CounterColor), clean(name), line,
		ui.Hex(cv.theme.MutedColor), action)
}
