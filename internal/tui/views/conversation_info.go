package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/tui/ui"
)

// ConversationInfo displays details about a contact.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Focus implements Component.
func (ci *ConversationInfo) Focus() tview.Primitive { return ci }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
	}
}

// Update renders a contact with the wallpaper of its conversation.
func (ci *ConversationInfo) Update(c roster.Contact, wallpaper string) {
	ci.Clear()

	fg := ui.Hex(ci.theme.FgColor)
	ct := ui.Hex(ci.theme.CounterColor)

	presence := "offline"
	if c.IsOnline {
		presence = "online"
	}
	following := "no"
	if c.IsFollowing {
		following = "yes"
	}
	last := "-"
	if !c.LastMessageTime.IsZero() {
		last = c.LastMessageTime.Local().Format(time.DateTime)
	}
	if wallpaper == "" {
		wallpaper = "default"
	}

	rows := []struct{ label, value string }{
		{"Name", c.DisplayName()},
		{"ID", c.ID},
		{"Presence", presence},
		{"Following", following},
		{"Unread", fmt.Sprint(c.UnreadCount)},
		{"Last Active", last},
		{"Last Message", oneLine(c.LastMessage)},
		{"Avatar", c.Avatar},
		{"Wallpaper", wallpaper},
	}
	_, _ = fmt.Fprintln(ci)
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r.label+":", ct, clean(r.value))
	}
	ci.SetTitle(fmt.Sprintf(" %s ", clean(c.DisplayName())))
}
