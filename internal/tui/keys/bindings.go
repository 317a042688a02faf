package keys

import "github.com/gdamore/tcell/v2"

// Action represents a keybinding action.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// RuneAction binds a plain character.
func RuneAction(r rune, desc string, fn func()) *Action {
	return &Action{Key: tcell.KeyRune, Rune: r, Description: desc, Handler: fn}
}

// KeyAction binds a special key.
func KeyAction(k tcell.Key, desc string, fn func()) *Action {
	return &Action{Key: k, Description: desc, Handler: fn}
}

// Registry holds keybindings by view. Bindings are matched in the order
// they were added, view bindings before global ones.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]*Action)}
}

// AddGlobal registers a binding active in every view.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// AddView registers a binding active only in view.
func (r *Registry) AddView(view string, a *Action) {
	r.views[view] = append(r.views[view], a)
}

// Lookup returns the action an event triggers in view, or nil.
func (r *Registry) Lookup(view string, ev *tcell.EventKey) *Action {
	for _, a := range r.views[view] {
		if a.Matches(ev) {
			return a
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			return a
		}
	}
	return nil
}

// HandleEvent dispatches a key event to the matching action in view.
// Returns true if a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	a := r.Lookup(view, ev)
	if a == nil || a.Handler == nil {
		return false
	}
	a.Handler()
	return true
}
