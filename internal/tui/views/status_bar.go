package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/tui/model"
	"github.com/matheus3301/parley/internal/tui/ui"
)

// StatusBar shows the connection banner, the unread badge and the clock.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, profile string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, profile: profile}
}

// Update redraws the bar from s.
func (sb *StatusBar) Update(s model.Screen) {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.render(s, time.Now()))
}

func (sb *StatusBar) render(s model.Screen, now time.Time) string {
	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", tview.Escape(sb.profile), Banner(s.Status, s.Reason, sb.theme))
	if s.Unread > 0 {
		line += fmt.Sprintf(" | [%s::b]%d unread[-:-:-]", ui.Hex(sb.theme.UnreadColor), s.Unread)
	}
	if s.InCall() {
		line += " | " + callSummary(s.Call)
	}
	return line + " | " + now.Format("15:04")
}

// Banner describes the connection state, colored by severity.
func Banner(st status.State, reason string, theme *ui.Theme) string {
	var color, text string
	switch st {
	case status.Ready:
		color, text = ui.Hex(theme.BannerOKColor), "connected"
	case status.Connecting, status.Booting:
		color, text = ui.Hex(theme.BannerWarn), "connecting…"
	case status.Syncing:
		color, text = ui.Hex(theme.BannerWarn), "syncing…"
	case status.Reconnecting:
		color, text = ui.Hex(theme.BannerWarn), "reconnecting…"
	case status.Degraded:
		color, text = ui.Hex(theme.BannerWarn), "degraded"
	case status.Offline:
		color, text = ui.Hex(theme.BannerDown), "offline (:retry)"
	default:
		color, text = ui.Hex(theme.BannerDown), "error"
	}
	if reason != "" {
		text += ": " + reason
	}
	return fmt.Sprintf("[%s]%s[-]", color, tview.Escape(text))
}

func callSummary(c call.Snapshot) string {
	switch c.State {
	case call.Incoming:
		return "incoming " + string(c.Call.Type) + " call from " + c.Call.PeerID
	case call.Outgoing:
		return "calling " + c.Call.PeerID + "…"
	case call.Active:
		return fmt.Sprintf("in call with %s %s", c.Call.PeerID, formatElapsed(c.Elapsed))
	}
	return ""
}

func formatElapsed(d time.Duration) string {
	s := int(d.Seconds())
	if s < 0 {
		s = 0
	}
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
