package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // true for 0-9 shortcuts (displayed in a different color)
}

// Component is a page of the UI. Pages registers components by Name and
// shows their Hints in the menu while they are on top.
type Component interface {
	tview.Primitive
	Name() string
	Hints() []MenuHint
	// Focus returns the primitive that takes focus when the page is shown.
	Focus() tview.Primitive
}
