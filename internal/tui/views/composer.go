package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/tui/ui"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	theme       *ui.Theme
	onSend      func(text string)
	onKeystroke func()
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetTitle(" Compose (i to focus) ")
	input.SetTitleColor(theme.TitleColor)

	c := &Composer{InputField: input, theme: theme}

	input.SetChangedFunc(func(text string) {
		if text != "" && c.onKeystroke != nil {
			c.onKeystroke()
		}
	})
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			text := c.GetText()
			if text != "" {
				c.SetText("")
				c.onSend(text)
			}
		}
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnKeystroke sets the callback fired on every edit of a non-empty draft.
func (c *Composer) SetOnKeystroke(fn func()) {
	c.onKeystroke = fn
}

// SetReply shows the pending reply target in the label.
func (c *Composer) SetReply(preview string) {
	if preview == "" {
		c.SetLabel(" > ")
		return
	}
	c.SetLabel(" ↳ " + truncate(oneLine(preview), 30) + " > ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
