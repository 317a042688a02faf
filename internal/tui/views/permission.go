package views

import (
	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/tui/ui"
)

// PermissionModal explains that a call could not open the microphone or
// camera.
type PermissionModal struct {
	*tview.Modal
}

// NewPermissionModal creates the modal; onClose runs when it is dismissed.
func NewPermissionModal(theme *ui.Theme, onClose func()) *PermissionModal {
	m := tview.NewModal().
		SetText("Microphone or camera access was denied.\n\n" +
			"Allow access for this terminal in your system settings, then try the call again.").
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) { onClose() })
	m.SetBackgroundColor(theme.BgColor)
	m.SetBorderColor(theme.FlashErrColor)
	m.SetTitle(" Permission denied ")
	return &PermissionModal{Modal: m}
}

// Name implements Component.
func (pm *PermissionModal) Name() string { return "Permission" }

// Focus implements Component.
func (pm *PermissionModal) Focus() tview.Primitive { return pm.Modal }

// Hints implements Component.
func (pm *PermissionModal) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Dismiss"}}
}
