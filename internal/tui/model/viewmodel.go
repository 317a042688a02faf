package model

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/controller"
	"github.com/matheus3301/parley/internal/outbox"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	intsync "github.com/matheus3301/parley/internal/sync"
	"github.com/matheus3301/parley/internal/tui/ui"
)

// Backend is the controller surface the UI drives.
type Backend interface {
	Self() string
	Status() (status.State, string)
	Retry(ctx context.Context) error
	SetBadgeUpdater(b controller.BadgeUpdater)

	Contacts() []roster.Contact
	Contact(id string) (roster.Contact, bool)
	OpenConversation(ctx context.Context, peer string) error
	CloseConversation()
	OpenPeer() string
	Messages() []store.Message
	LoadOlder(ctx context.Context) (intsync.HistoryLoaded, error)
	HasOlder() bool
	PeerTyping() bool

	SendText(text string) (store.Message, error)
	SendMedia(path, caption string) (store.Message, error)
	SetReplyTo(id string) error
	ReplyTo() string
	Resend(clientID string) error
	ResendFailed() int
	Edit(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
	ToggleReaction(ctx context.Context, id, emoji string) error
	SaveMedia(ctx context.Context, id string) (string, error)
	Keystroke()

	Search(query, scope string, limit int) []store.SearchResult
	SearchUsers(ctx context.Context, query string, limit int) ([]roster.Contact, error)
	Wallpaper() string
	Wallpapers(ctx context.Context) ([]rest.Wallpaper, error)
	SetWallpaper(ctx context.Context, id string) error

	StartCall(ctx context.Context, t call.Type) (call.Call, error)
	AcceptCall(ctx context.Context) error
	RejectCall(ctx context.Context) error
	Hangup(ctx context.Context) error
	CallSnapshot() call.Snapshot
	ShareLink() string
}

var _ Backend = (*controller.Controller)(nil)

var ErrBadRef = errors.New("no such message number")

// Screen is everything the UI renders, captured at one instant.
type Screen struct {
	Status   status.State
	Reason   string
	Contacts []roster.Contact
	Unread   int

	Peer      string
	PeerName  string
	Online    bool
	Messages  []store.Message
	Typing    bool
	HasOlder  bool
	Wallpaper string
	ReplyTo   string

	Call call.Snapshot
}

// InCall reports whether a call is ringing or connected.
func (s Screen) InCall() bool {
	return s.Call.State != "" && s.Call.State != call.Idle
}

// ViewModel caches controller state and turns bus events into UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	ctl    Backend
	bus    *bus.Bus
	Flash  *ui.FlashModel
	screen Screen
	unread int

	permissionDenied bool
	refreshCh        chan struct{}
}

// NewViewModel creates a view model over ctl and registers itself as the
// unread badge.
func NewViewModel(ctl Backend, b *bus.Bus) *ViewModel {
	vm := &ViewModel{
		ctl:       ctl,
		bus:       b,
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
	ctl.SetBadgeUpdater(vm)
	return vm
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// SetBadge receives the total unread count.
func (vm *ViewModel) SetBadge(n int) {
	vm.mu.Lock()
	vm.unread = n
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Watch follows the bus until ctx ends. Failures become flash messages and
// every event schedules a refresh.
func (vm *ViewModel) Watch(ctx context.Context) {
	ch, unsub := vm.bus.Subscribe("", 512)
	defer unsub()
	for {
		select {
		case evt := <-ch:
			vm.handle(evt)
			vm.signalRefresh()
		case <-ctx.Done():
			return
		}
	}
}

func (vm *ViewModel) handle(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageSendFailed:
		if f, ok := evt.Payload.(outbox.SendFailure); ok {
			vm.Flash.Failure("message not sent: "+f.Err.Error(), ":resend")
		}
	case bus.KindMessageDeleteFailed:
		if f, ok := evt.Payload.(outbox.SendFailure); ok {
			vm.Flash.Warn("delete failed: " + f.Err.Error())
		}
	case bus.KindRTError:
		if msg, ok := evt.Payload.(string); ok && msg != "" {
			vm.Flash.Warn("server: " + msg)
		}
	case bus.KindCallFailed:
		f, ok := evt.Payload.(call.Failure)
		if !ok {
			return
		}
		if controller.IsPermissionDenied(f.Err) {
			vm.mu.Lock()
			vm.permissionDenied = true
			vm.mu.Unlock()
			return
		}
		vm.Flash.Err(fmt.Errorf("call failed: %w", f.Err))
	case bus.KindCallStateChanged:
		if sc, ok := evt.Payload.(call.StateChange); ok && sc.To == call.Idle && sc.Reason != "" {
			vm.Flash.Info("call ended: " + sc.Reason)
		}
	}
}

// TakePermissionDenied reports, once, that a call could not open the
// microphone or camera.
func (vm *ViewModel) TakePermissionDenied() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	d := vm.permissionDenied
	vm.permissionDenied = false
	return d
}

// Load captures a fresh Screen from the controller.
func (vm *ViewModel) Load() Screen {
	var s Screen
	s.Status, s.Reason = vm.ctl.Status()
	s.Contacts = vm.ctl.Contacts()
	s.Call = vm.ctl.CallSnapshot()

	if peer := vm.ctl.OpenPeer(); peer != "" {
		s.Peer = peer
		s.PeerName = peer
		if c, ok := vm.ctl.Contact(peer); ok {
			s.PeerName = c.DisplayName()
			s.Online = c.IsOnline
		}
		s.Messages = vm.ctl.Messages()
		s.Typing = vm.ctl.PeerTyping()
		s.HasOlder = vm.ctl.HasOlder()
		s.Wallpaper = vm.ctl.Wallpaper()
		s.ReplyTo = vm.ctl.ReplyTo()
	}

	vm.mu.Lock()
	s.Unread = vm.unread
	vm.screen = s
	vm.mu.Unlock()
	return s
}

// Screen returns the last loaded screen.
func (vm *ViewModel) Screen() Screen {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.screen
}

// Self returns the local user id.
func (vm *ViewModel) Self() string { return vm.ctl.Self() }

// ShareLink returns the link encoded in the share QR code.
func (vm *ViewModel) ShareLink() string { return vm.ctl.ShareLink() }

// MessageRef resolves the number shown next to a message, counted from the
// newest (1), to the message itself.
func (vm *ViewModel) MessageRef(ref string) (store.Message, error) {
	if ref == "" {
		ref = "1"
	}
	n, err := strconv.Atoi(ref)
	msgs := vm.Screen().Messages
	if err != nil || n < 1 || n > len(msgs) {
		return store.Message{}, fmt.Errorf("%w: %s", ErrBadRef, ref)
	}
	return msgs[len(msgs)-n], nil
}

// Retry asks the controller to reconnect.
func (vm *ViewModel) Retry(ctx context.Context) {
	if err := vm.ctl.Retry(ctx); err != nil {
		if errors.Is(err, controller.ErrCannotRetry) {
			vm.Flash.Info("already connected")
			return
		}
		vm.Flash.Failure("reconnect failed: "+err.Error(), "Ctrl-R")
		return
	}
	vm.Flash.Info("reconnected")
}

// OpenConversation opens peer's conversation.
func (vm *ViewModel) OpenConversation(ctx context.Context, peer string) error {
	if err := vm.ctl.OpenConversation(ctx, peer); err != nil {
		return err
	}
	vm.signalRefresh()
	return nil
}

// CloseConversation leaves the open conversation.
func (vm *ViewModel) CloseConversation() {
	vm.ctl.CloseConversation()
	vm.signalRefresh()
}

// LoadOlder pages in older history.
func (vm *ViewModel) LoadOlder(ctx context.Context) {
	res, err := vm.ctl.LoadOlder(ctx)
	switch {
	case errors.Is(err, intsync.ErrNoMoreHistory):
		vm.Flash.Info("beginning of conversation")
	case err != nil:
		vm.Flash.Err(err)
	default:
		vm.Flash.Info(fmt.Sprintf("loaded %d older messages", res.Added))
	}
}

// SendText sends the composer content.
func (vm *ViewModel) SendText(text string) {
	if _, err := vm.ctl.SendText(text); err != nil && !errors.Is(err, outbox.ErrEmpty) {
		vm.Flash.Err(err)
	}
}

// Attach sends a file with an optional caption.
func (vm *ViewModel) Attach(path, caption string) {
	if path == "" {
		vm.Flash.Warn("usage: :attach <path> [caption]")
		return
	}
	if _, err := vm.ctl.SendMedia(path, caption); err != nil {
		vm.Flash.Err(err)
	}
}

// Reply sets or clears the reply target by message number.
func (vm *ViewModel) Reply(ref string) {
	if ref == "-" {
		_ = vm.ctl.SetReplyTo("")
		vm.signalRefresh()
		return
	}
	m, err := vm.MessageRef(ref)
	if err == nil {
		err = vm.ctl.SetReplyTo(m.ID)
	}
	if err != nil {
		vm.Flash.Err(err)
		return
	}
	vm.signalRefresh()
}

// Resend retries the referenced failed message, or all of them without a ref.
func (vm *ViewModel) Resend(ref string) {
	if ref == "" {
		n := vm.ctl.ResendFailed()
		vm.Flash.Info(fmt.Sprintf("resending %d messages", n))
		return
	}
	m, err := vm.MessageRef(ref)
	if err == nil {
		err = vm.ctl.Resend(m.ClientMessageID)
	}
	if err != nil {
		vm.Flash.Err(err)
	}
}

// Edit replaces the text of the referenced message.
func (vm *ViewModel) Edit(ctx context.Context, ref, text string) {
	m, err := vm.MessageRef(ref)
	if err == nil {
		err = vm.ctl.Edit(ctx, m.ID, text)
	}
	if err != nil {
		vm.Flash.Err(err)
	}
}

// Delete removes the referenced message.
func (vm *ViewModel) Delete(ctx context.Context, ref string) {
	m, err := vm.MessageRef(ref)
	if err == nil {
		err = vm.ctl.Delete(ctx, m.ID)
	}
	if err != nil {
		vm.Flash.Err(err)
	}
}

// React toggles emoji on the referenced message.
func (vm *ViewModel) React(ctx context.Context, ref, emoji string) {
	if emoji == "" {
		emoji = "👍"
	}
	m, err := vm.MessageRef(ref)
	if err == nil {
		err = vm.ctl.ToggleReaction(ctx, m.ID, emoji)
	}
	if err != nil {
		vm.Flash.Err(err)
	}
}

// Save downloads the media of the referenced message.
func (vm *ViewModel) Save(ctx context.Context, ref string) {
	m, err := vm.MessageRef(ref)
	if err != nil {
		vm.Flash.Err(err)
		return
	}
	dst, err := vm.ctl.SaveMedia(ctx, m.ID)
	if err != nil {
		vm.Flash.Err(err)
		return
	}
	vm.Flash.Info("saved to " + dst)
}

// Keystroke forwards composer activity.
func (vm *ViewModel) Keystroke() { vm.ctl.Keystroke() }

// SearchResult is one row of the search view: a message hit or a user.
type SearchResult struct {
	Message *store.SearchResult
	User    *roster.Contact
}

// Search runs a local message search and, when online, a user search.
func (vm *ViewModel) Search(ctx context.Context, query string) []SearchResult {
	var out []SearchResult
	for _, r := range vm.ctl.Search(query, "", 50) {
		r := r
		out = append(out, SearchResult{Message: &r})
	}
	if st, _ := vm.ctl.Status(); st == status.Ready || st == status.Degraded {
		users, err := vm.ctl.SearchUsers(ctx, query, 20)
		if err != nil {
			vm.Flash.Warn("user search failed: " + err.Error())
		}
		for _, u := range users {
			u := u
			out = append(out, SearchResult{User: &u})
		}
	}
	return out
}

// Wallpaper sets the wallpaper, or lists the choices when id is empty.
func (vm *ViewModel) Wallpaper(ctx context.Context, id string) {
	if id == "" {
		list, err := vm.ctl.Wallpapers(ctx)
		if err != nil {
			vm.Flash.Err(err)
			return
		}
		names := ""
		for i, w := range list {
			if i > 0 {
				names += ", "
			}
			names += w.Name
		}
		vm.Flash.Set("wallpapers: "+names, 10*time.Second)
		return
	}
	if err := vm.ctl.SetWallpaper(ctx, id); err != nil {
		vm.Flash.Err(err)
		return
	}
	vm.signalRefresh()
}

// Call places a call to the open peer.
func (vm *ViewModel) Call(ctx context.Context, t call.Type) {
	if _, err := vm.ctl.StartCall(ctx, t); err != nil {
		if controller.IsPermissionDenied(err) {
			vm.mu.Lock()
			vm.permissionDenied = true
			vm.mu.Unlock()
			vm.signalRefresh()
			return
		}
		vm.Flash.Err(err)
	}
}

// Accept answers the incoming call.
func (vm *ViewModel) Accept(ctx context.Context) {
	if err := vm.ctl.AcceptCall(ctx); err != nil && !controller.IsPermissionDenied(err) {
		vm.Flash.Err(err)
	}
}

// Reject declines the incoming call.
func (vm *ViewModel) Reject(ctx context.Context) {
	if err := vm.ctl.RejectCall(ctx); err != nil {
		vm.Flash.Err(err)
	}
}

// Hangup ends the current call.
func (vm *ViewModel) Hangup(ctx context.Context) {
	if err := vm.ctl.Hangup(ctx); err != nil && !errors.Is(err, call.ErrNoCall) {
		vm.Flash.Err(err)
	}
}
