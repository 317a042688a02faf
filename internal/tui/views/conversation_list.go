package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/tui/ui"
)

// ConversationList is the contact table, newest conversation first.
type ConversationList struct {
	*tview.Table
	theme    *ui.Theme
	contacts []roster.Contact
	visible  []roster.Contact
	filter   string
	now      func() time.Time
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Focus implements Component.
func (cl *ConversationList) Focus() tview.Primitive { return cl }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "d", Description: "Details"},
		{Key: "s", Description: "Search"},
		{Key: "r", Description: "Retry"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list, keeping the selected contact selected.
func (cl *ConversationList) Update(contacts []roster.Contact) {
	selected := cl.SelectedContact()
	cl.contacts = contacts
	cl.render()
	for i, c := range cl.visible {
		if c.ID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
	cl.Select(1, 0)
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string { return cl.filter }

func (cl *ConversationList) matches(c roster.Contact) bool {
	return cl.filter == "" ||
		containsFold(c.DisplayName(), cl.filter) ||
		containsFold(c.ID, cl.filter) ||
		containsFold(c.LastMessage, cl.filter)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" #", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" UNREAD", 0},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	cl.visible = cl.visible[:0]
	now := cl.now()
	for _, c := range cl.contacts {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		fg := cl.theme.FgColor
		switch {
		case c.UnreadCount > 0:
			fg = cl.theme.UnreadColor
		case c.IsOnline:
			fg = cl.theme.OnlineColor
		}
		presence := "  "
		if c.IsOnline {
			presence = "● "
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = strconv.Itoa(c.UnreadCount)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+strconv.Itoa(row)).SetTextColor(cl.theme.MutedColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+presence+clean(c.DisplayName())).SetExpansion(1).SetTextColor(fg))
		cl.SetCell(row, 2, tview.NewTableCell(" "+clean(oneLine(c.LastMessage))).SetExpansion(2).SetMaxWidth(60).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(unread).SetAlign(tview.AlignRight).SetTextColor(cl.theme.UnreadColor))
		cl.SetCell(row, 4, tview.NewTableCell(formatTimestamp(c.LastMessageTime, now)).SetAlign(tview.AlignRight).SetTextColor(cl.theme.FgColor))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.contacts), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.contacts)))
	}
}

// SelectedContact returns the id of the selected contact.
func (cl *ConversationList) SelectedContact() string {
	row, _ := cl.GetSelection()
	return cl.ContactByIndex(row)
}

// ContactByIndex returns the id of the Nth visible contact (1-based).
func (cl *ConversationList) ContactByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}

// FindByName returns the first visible contact whose name or id contains q.
func (cl *ConversationList) FindByName(q string) string {
	for _, c := range cl.contacts {
		if containsFold(c.DisplayName(), q) || containsFold(c.ID, q) {
			return c.ID
		}
	}
	return ""
}
