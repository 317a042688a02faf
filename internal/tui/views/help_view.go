package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	_, _ = fmt.Fprint(hv, helpText(ui.Hex(theme.MenuKeyColor)))
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Focus implements Component.
func (hv *HelpView) Focus() tview.Primitive { return hv }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"/", "Filter conversations"},
		{"?", "This help"},
		{"Esc", "Cancel / go back"},
		{"Ctrl-R", "Reconnect now"},
		{"q", "Quit (from the conversation list)"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Conversation List", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Open the Nth conversation"},
		{"d", "Contact details"},
		{"s", "Search"},
		{"r", "Reconnect now"},
	}},
	{"Message Thread", [][2]string{
		{"i", "Focus composer (Enter sends, Esc leaves)"},
		{"o", "Load older messages"},
		{"d", "Contact details"},
		{"c / v", "Audio / video call"},
	}},
	{"Call", [][2]string{
		{"a / r", "Accept / reject an incoming call"},
		{"h", "Hang up"},
	}},
	{"Commands (N is the number next to a message, newest is 1)", [][2]string{
		{":open <name>", "Open a conversation"},
		{":search <query>", "Search messages and users"},
		{":older", "Load older messages"},
		{":reply N | :reply -", "Reply to a message / cancel"},
		{":react N [emoji]", "Toggle a reaction (default 👍)"},
		{":edit N <text>", "Edit one of your messages"},
		{":delete N", "Delete one of your messages"},
		{":resend [N]", "Retry failed messages"},
		{":attach <path> [caption]", "Send a file"},
		{":save N", "Download a message's media"},
		{":wallpaper [name]", "List or set the wallpaper"},
		{":call | :videocall", "Call the open contact"},
		{":hangup", "End the call"},
		{":share", "Show your contact QR code"},
		{":retry", "Reconnect now"},
		{":help | :quit", "Help / quit"},
	}},
}

func helpText(keyColor string) string {
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-26s[-] %s\n", keyColor, tview.Escape(r[0]), r[1])
		}
	}
	return b.String()
}
