package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Menu shows the keyboard hints of the top page, in columns of rows lines.
type Menu struct {
	*tview.Table
	theme *Theme
	rows  int
}

// NewMenu creates a menu with the given number of rows per column.
func NewMenu(theme *Theme, rows int) *Menu {
	t := tview.NewTable().SetBorders(false)
	t.SetBackgroundColor(theme.BgColor)
	t.SetBorderPadding(0, 0, 2, 0)
	if rows < 1 {
		rows = 1
	}
	return &Menu{Table: t, theme: theme, rows: rows}
}

// Update renders hints column by column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	keyColor := colorName(m.theme.MenuKeyColor)
	numColor := colorName(m.theme.NumericKeyColor)
	fg := colorName(m.theme.FgColor)

	for i, h := range hints {
		kc := keyColor
		if h.Numeric {
			kc = numColor
		}
		text := fmt.Sprintf("[%s::b]<%s>[-:-:-] [%s]%s[-] ", kc, h.Key, fg, h.Description)
		m.SetCell(i%m.rows, i/m.rows, tview.NewTableCell(text))
	}
}
