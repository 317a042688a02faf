package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is the severity of a notice.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

// How long each level stays on screen.
var flashLifetime = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one notice under the status bar. Hint names the key or
// command that deals with it, e.g. ":resend". Repeats counts identical
// notices raised while this one was still showing.
type FlashMessage struct {
	Text    string
	Hint    string
	Level   FlashLevel
	Repeats int
	Expires time.Time
}

// FlashModel holds the current notice. Safe for concurrent use.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	watchCh chan FlashMessage
	now     func() time.Time
}

// NewFlashModel creates an empty model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
		now:     time.Now,
	}
}

func (f *FlashModel) Info(msg string) { f.post(msg, "", FlashInfo, 0) }
func (f *FlashModel) Warn(msg string) { f.post(msg, "", FlashWarn, 0) }

// Err shows err at error level. A nil error is ignored.
func (f *FlashModel) Err(err error) {
	if err == nil {
		return
	}
	f.post(err.Error(), "", FlashErr, 0)
}

// Failure is a warning that the user can act on with hint, such as a
// message that was not sent (":resend") or a lost connection ("Ctrl-R").
func (f *FlashModel) Failure(msg, hint string) {
	f.post(msg, hint, FlashWarn, 0)
}

// Set shows an info notice for d.
func (f *FlashModel) Set(msg string, d time.Duration) {
	f.post(msg, "", FlashInfo, d)
}

// Clear drops the current notice.
func (f *FlashModel) Clear() {
	f.mu.Lock()
	f.current = FlashMessage{}
	f.mu.Unlock()
	f.notify(FlashMessage{})
}

func (f *FlashModel) post(msg, hint string, level FlashLevel, d time.Duration) {
	if d <= 0 {
		d = flashLifetime[level]
	}
	now := f.now()

	f.mu.Lock()
	fm := FlashMessage{Text: msg, Hint: hint, Level: level, Expires: now.Add(d)}
	// A burst of the same failure, e.g. several queued sends dropped with
	// the socket, shows once with a count.
	if cur := f.current; now.Before(cur.Expires) && cur.Text == msg && cur.Level == level {
		fm.Repeats = cur.Repeats + 1
	}
	f.current = fm
	f.mu.Unlock()
	f.notify(fm)
}

func (f *FlashModel) notify(fm FlashMessage) {
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Get returns the current notice text, or empty if it expired.
func (f *FlashModel) Get() string {
	if m := f.GetMessage(); m != nil {
		return m.Text
	}
	return ""
}

// GetMessage returns the current notice, or nil if it expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || !f.now().Before(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns a channel that receives every new notice, including
// the empty one sent by Clear. Slow readers miss notices.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar displays the current notice.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates the bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil || msg.Text == "" {
		return
	}
	_, _ = fmt.Fprint(fb, fb.format(msg))
}

func (fb *FlashBar) format(msg *FlashMessage) string {
	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	out := fmt.Sprintf(" [%s]%s[-]", colorName(color), tview.Escape(msg.Text))
	if msg.Repeats > 0 {
		out += fmt.Sprintf(" [%s](x%d)[-]", colorName(color), msg.Repeats+1)
	}
	if msg.Hint != "" {
		out += fmt.Sprintf("  [%s]%s to retry[-]", colorName(fb.theme.MutedColor), tview.Escape(msg.Hint))
	}
	return out
}
