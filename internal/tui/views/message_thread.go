package views

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/store"
	"github.com/matheus3301/parley/internal/tui/model"
	"github.com/matheus3301/parley/internal/tui/ui"
)

// MessageThread displays one conversation and its composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *Composer
	self     string
	now      func() time.Time
}

// NewMessageThread creates a new message thread view for user self.
func NewMessageThread(theme *ui.Theme, self string) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := NewComposer(theme)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	return &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		self:     self,
		now:      time.Now,
	}
}

// Name implements Component.
func (mt *MessageThread) Name() string { return "Thread" }

// Focus implements Component.
func (mt *MessageThread) Focus() tview.Primitive { return mt.messages }

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "o", Description: "Older"},
		{Key: "d", Description: "Details"},
		{Key: "c", Description: "Call"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders the open conversation of s.
func (mt *MessageThread) Update(s model.Screen) {
	title := " " + clean(s.PeerName)
	if s.Online {
		title += fmt.Sprintf(" [%s]●[-]", ui.Hex(mt.theme.OnlineColor))
	}
	if s.Wallpaper != "" {
		title += " | " + clean(wallpaperName(s.Wallpaper))
	}
	mt.messages.SetTitle(title + " ")

	row, col := mt.messages.GetScrollOffset()
	atEnd := mt.atEnd()

	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, renderThread(s, mt.self, mt.theme, mt.now()))

	if atEnd {
		mt.messages.ScrollToEnd()
	} else {
		mt.messages.ScrollTo(row, col)
	}

	reply := ""
	if s.ReplyTo != "" {
		for _, m := range s.Messages {
			if m.ID == s.ReplyTo {
				reply = m.Preview()
				break
			}
		}
	}
	mt.composer.SetReply(reply)
}

func (mt *MessageThread) atEnd() bool {
	row, _ := mt.messages.GetScrollOffset()
	_, _, _, height := mt.messages.GetInnerRect()
	lines := strings.Count(mt.messages.GetText(false), "\n")
	return row+height >= lines
}

// Messages returns the messages text view.
func (mt *MessageThread) Messages() *tview.TextView { return mt.messages }

// Composer returns the composer.
func (mt *MessageThread) Composer() *Composer { return mt.composer }

func wallpaperName(url string) string {
	base := path.Base(url)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// renderThread formats the conversation oldest first. Each message carries
// its number counted from the newest, which commands use to refer to it.
func renderThread(s model.Screen, self string, theme *ui.Theme, now time.Time) string {
	var b strings.Builder
	muted := ui.Hex(theme.MutedColor)

	if s.HasOlder {
		fmt.Fprintf(&b, "[%s]  ·· o or :older loads earlier messages ··[-]\n\n", muted)
	}
	if len(s.Messages) == 0 {
		fmt.Fprintf(&b, "[%s]  No messages yet. Press i to write.[-]\n", muted)
	}

	byID := make(map[string]store.Message, len(s.Messages))
	for _, m := range s.Messages {
		byID[m.ID] = m
	}
	for i, m := range s.Messages {
		ref := len(s.Messages) - i
		b.WriteString(renderMessage(m, ref, self, s.PeerName, byID, theme, now))
	}

	if s.Typing {
		fmt.Fprintf(&b, "[%s::i]%s is typing…[-:-:-]\n", muted, clean(s.PeerName))
	}
	return b.String()
}

func renderMessage(m store.Message, ref int, self, peerName string, byID map[string]store.Message, theme *ui.Theme, now time.Time) string {
	var b strings.Builder
	muted := ui.Hex(theme.MutedColor)

	sender, color := peerName, ui.Hex(theme.PeerColor)
	if m.SenderID == self {
		sender, color = "You", ui.Hex(theme.OwnColor)
	}
	fmt.Fprintf(&b, "[%s]%d[-] [%s::b]%s[-:-:-] [%s]%s[-]", muted, ref, color, clean(sender), muted, formatTimestamp(m.EffectiveTime(), now))
	if m.Edited {
		fmt.Fprintf(&b, " [%s](edited)[-]", muted)
	}
	if m.SenderID == self {
		b.WriteString(" " + deliveryMark(m, theme))
	}
	b.WriteString("\n")

	if m.ReplyToID != "" {
		quoted := "message not loaded"
		if parent, ok := byID[m.ReplyToID]; ok {
			quoted = truncate(oneLine(parent.Preview()), 60)
		}
		fmt.Fprintf(&b, "[%s]  ↳ %s[-]\n", muted, clean(quoted))
	}

	switch m.Type {
	case store.TypeText:
		b.WriteString(clean(m.Text))
	default:
		b.WriteString(clean(m.Preview()))
		if m.Media != nil && m.Media.URL != "" {
			fmt.Fprintf(&b, "\n[%s]  %s[-]", muted, clean(m.Media.URL))
		}
	}
	b.WriteString("\n")

	if r := reactions(m); r != "" {
		fmt.Fprintf(&b, "  %s\n", r)
	}
	b.WriteString("\n")
	return b.String()
}

func deliveryMark(m store.Message, theme *ui.Theme) string {
	switch {
	case m.Status == store.StatusFailed:
		return fmt.Sprintf("[%s]✗ not sent[-]", ui.Hex(theme.FailedColor))
	case m.Status == store.StatusSending:
		return fmt.Sprintf("[%s]…[-]", ui.Hex(theme.MutedColor))
	case m.Read:
		return fmt.Sprintf("[%s]✓✓[-]", ui.Hex(theme.OnlineColor))
	}
	return fmt.Sprintf("[%s]✓[-]", ui.Hex(theme.MutedColor))
}

func reactions(m store.Message) string {
	counts := m.ReactionCounts()
	if len(counts) == 0 {
		return ""
	}
	emojis := make([]string, 0, len(counts))
	for e := range counts {
		emojis = append(emojis, e)
	}
	sort.Strings(emojis)
	parts := make([]string, len(emojis))
	for i, e := range emojis {
		parts[i] = fmt.Sprintf("%s %d", sanitizeForTerminal(e), counts[e])
	}
	return strings.Join(parts, "  ")
}
