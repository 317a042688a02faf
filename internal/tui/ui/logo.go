package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo displays a compact ASCII art logo.
type Logo struct {
	*tview.TextView
	theme *Theme
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 0, 1)

	l := &Logo{TextView: tv, theme: theme}
	title := colorName(theme.TitleColor)
	_, _ = fmt.Fprintf(l,
		"[%[1]s::b]╔═╗╔═╗╦═╗╦  ╔═╗╦ ╦[-:-:-]\n"+
			"[%[1]s::b]╠═╝╠═╣╠╦╝║  ║╣ ╚╦╝[-:-:-]\n"+
			"[%[1]s::b]╩  ╩ ╩╩╚═╩═╝╚═╝ ╩ [-:-:-]\n"+
			"[%[2]s]chat in your terminal[-:-:-]",
		title, colorName(theme.FgColor),
	)
	return l
}
