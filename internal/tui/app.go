package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/tui/keys"
	"github.com/matheus3301/parley/internal/tui/model"
	"github.com/matheus3301/parley/internal/tui/ui"
	"github.com/matheus3301/parley/internal/tui/views"
)

const tickInterval = time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry
	profile  string
	started  time.Time

	pages       *ui.Pages
	profileInfo *ui.ProfileInfo
	menu        *ui.Menu
	logo        *ui.Logo
	crumbs      *ui.Crumbs
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar
	statusBar   *views.StatusBar
	body        *tview.Flex

	conversations *views.ConversationList
	thread        *views.MessageThread
	search        *views.SearchView
	details       *views.ConversationInfo
	help          *views.HelpView
	share         *views.ShareView
	callView      *views.CallView
	permission    *views.PermissionModal

	promptVisible bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewApp creates the TUI over the controller ctl.
func NewApp(ctl model.Backend, b *bus.Bus, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	vm := model.NewViewModel(ctl, b)

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		vm:       vm,
		registry: keys.NewRegistry(),
		profile:  profileName,
		started:  time.Now(),

		pages:       ui.NewPages(),
		profileInfo: ui.NewProfileInfo(theme),
		menu:        ui.NewMenu(theme, 6),
		logo:        ui.NewLogo(theme),
		crumbs:      ui.NewCrumbs(theme),
		prompt:      ui.NewPrompt(theme),
		flashBar:    ui.NewFlashBar(theme),
		statusBar:   views.NewStatusBar(theme, profileName),

		conversations: views.NewConversationList(theme),
		thread:        views.NewMessageThread(theme, vm.Self()),
		search:        views.NewSearchView(theme, vm.Self()),
		details:       views.NewConversationInfo(theme),
		help:          views.NewHelpView(theme),
		share:         views.NewShareView(theme),
		callView:      views.NewCallView(theme),

		ctx:    ctx,
		cancel: cancel,
	}
	a.permission = views.NewPermissionModal(theme, func() { a.back() })

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	r := a.registry

	r.AddGlobal(keys.RuneAction('?', "help", func() { a.show(a.help.Name()) }))
	r.AddGlobal(keys.RuneAction(':', "command", func() { a.showPrompt(ui.PromptCommand) }))
	r.AddGlobal(keys.RuneAction('s', "search", a.showSearch))
	r.AddGlobal(keys.KeyAction(tcell.KeyCtrlR, "retry", func() { a.do(a.vm.Retry) }))

	list := a.conversations.Name()
	r.AddView(list, keys.RuneAction('q', "quit", a.Stop))
	r.AddView(list, keys.RuneAction('r', "retry", func() { a.do(a.vm.Retry) }))
	r.AddView(list, keys.RuneAction('/', "filter", func() { a.showPrompt(ui.PromptFilter) }))
	r.AddView(list, keys.RuneAction('d', "details", func() {
		if peer := a.conversations.SelectedContact(); peer != "" {
			a.showDetails(peer)
		}
	}))
	for n := 1; n <= 9; n++ {
		n := n
		r.AddView(list, keys.RuneAction(rune('0'+n), "jump", func() {
			if peer := a.conversations.ContactByIndex(n); peer != "" {
				a.openConversation(peer)
			}
		}))
	}

	thread := a.thread.Name()
	r.AddView(thread, keys.RuneAction('i', "compose", func() { a.app.SetFocus(a.thread.Composer()) }))
	r.AddView(thread, keys.RuneAction('o', "older", func() { a.do(a.vm.LoadOlder) }))
	r.AddView(thread, keys.RuneAction('d', "details", func() { a.showDetails(a.vm.Screen().Peer) }))
	r.AddView(thread, keys.RuneAction('c', "call", func() { a.placeCall(call.Audio) }))
	r.AddView(thread, keys.RuneAction('v', "video call", func() { a.placeCall(call.Video) }))

	callPage := a.callView.Name()
	r.AddView(callPage, keys.RuneAction('a', "accept", func() { a.do(a.vm.Accept) }))
	r.AddView(callPage, keys.RuneAction('r', "reject", func() { a.do(a.vm.Reject) }))
	r.AddView(callPage, keys.RuneAction('h', "hang up", func() { a.do(a.vm.Hangup) }))
}

func (a *App) setupCallbacks() {
	a.conversations.SetSelectedFunc(func(int, int) {
		if peer := a.conversations.SelectedContact(); peer != "" {
			a.openConversation(peer)
		}
	})

	composer := a.thread.Composer()
	composer.SetOnSend(func(text string) {
		a.vm.SendText(text)
	})
	composer.SetOnKeystroke(a.vm.Keystroke)

	a.search.SetOnQuery(a.runSearch)
	a.search.Results().SetSelectedFunc(func(int, int) {
		if peer := a.search.SelectedPeer(); peer != "" {
			a.openConversation(peer)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.conversations.SetFilter(text)
			a.updateCrumbs()
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.pages.SetOnChange(func(top ui.Component, _ []string) {
		a.menu.Update(top.Hints())
		a.updateCrumbs()
		a.app.SetFocus(top.Focus())
	})
}

func (a *App) setupLayout() {
	a.pages.Add(a.conversations, false)
	a.pages.Add(a.thread, false)
	a.pages.Add(a.search, false)
	a.pages.Add(a.details, false)
	a.pages.Add(a.help, false)
	a.pages.Add(a.share, false)
	a.pages.Add(a.callView, false)
	a.pages.Add(a.permission, true)

	header := tview.NewFlex().
		AddItem(a.profileInfo, 0, 1, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, 26, 0, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.body, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.capture)
	a.pages.Reset(a.conversations.Name())
}

func (a *App) capture(ev *tcell.EventKey) *tcell.EventKey {
	if a.promptVisible {
		return ev
	}
	focused := a.app.GetFocus()
	current := a.pages.Current()

	if ev.Key() == tcell.KeyEscape {
		switch {
		case focused == a.thread.Composer().InputField:
			a.app.SetFocus(a.thread.Messages())
		case focused == a.search.Results():
			a.app.SetFocus(a.search.Input())
		case current == a.conversations.Name() && a.conversations.Filter() != "":
			a.conversations.ClearFilter()
			a.updateCrumbs()
		default:
			a.back()
		}
		return nil
	}

	// Text inputs and the modal get every other key.
	if _, ok := focused.(*tview.InputField); ok {
		return ev
	}
	if current == a.permission.Name() {
		return ev
	}
	if a.registry.HandleEvent(current, ev) {
		return nil
	}
	return ev
}

// back pops the top page. Leaving the thread closes the conversation; the
// call page stays while a call is in progress.
func (a *App) back() {
	current := a.pages.Current()
	if current == a.callView.Name() && a.vm.Screen().InCall() {
		return
	}
	popped := a.pages.Pop()
	if popped == a.thread.Name() && !a.pages.Contains(a.thread.Name()) {
		a.vm.CloseConversation()
	}
}

func (a *App) show(name string) {
	a.pages.Push(name)
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if a.promptVisible {
		return
	}
	a.promptVisible = true
	a.prompt.Activate(mode)
	a.body.AddItem(a.prompt, 3, 0, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if !a.promptVisible {
		return
	}
	a.promptVisible = false
	a.body.RemoveItem(a.prompt)
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top.Focus())
	}
}

func (a *App) showSearch() {
	a.show(a.search.Name())
	a.app.SetFocus(a.search.Input())
}

func (a *App) runSearch(query string) {
	go func() {
		results := a.vm.Search(a.ctx, query)
		a.app.QueueUpdateDraw(func() {
			a.search.Update(results)
			a.app.SetFocus(a.search.Results())
		})
	}()
}

func (a *App) showDetails(peer string) {
	if peer == "" {
		return
	}
	for _, c := range a.vm.Screen().Contacts {
		if c.ID == peer {
			wallpaper := ""
			if peer == a.vm.Screen().Peer {
				wallpaper = a.vm.Screen().Wallpaper
			}
			a.details.Update(c, wallpaper)
			a.show(a.details.Name())
			return
		}
	}
}

func (a *App) showShare() {
	a.share.Show(a.vm.ShareLink())
	a.show(a.share.Name())
}

func (a *App) openConversation(peer string) {
	go func() {
		if err := a.vm.OpenConversation(a.ctx, peer); err != nil {
			a.vm.Flash.Err(err)
			return
		}
		s := a.vm.Load()
		a.app.QueueUpdateDraw(func() {
			a.render(s)
			a.pages.PopTo(a.conversations.Name())
			a.show(a.thread.Name())
		})
	}()
}

func (a *App) placeCall(t call.Type) {
	a.do(func(ctx context.Context) { a.vm.Call(ctx, t) })
}

// do runs a view model action off the UI goroutine.
func (a *App) do(fn func(ctx context.Context)) {
	go fn(a.ctx)
}

func (a *App) updateCrumbs() {
	labels := a.pages.Stack()
	if f := a.conversations.Filter(); f != "" && len(labels) > 0 {
		labels[0] += " /" + f
	}
	if s := a.vm.Screen(); s.PeerName != "" {
		for i, l := range labels {
			if l == a.thread.Name() {
				labels[i] = s.PeerName
			}
		}
	}
	a.crumbs.Update(labels)
}

// render applies s to every view. It runs on the UI goroutine.
func (a *App) render(s model.Screen) {
	a.conversations.Update(s.Contacts)
	if s.Peer != "" {
		a.thread.Update(s)
	}
	a.statusBar.Update(s)

	online := 0
	for _, c := range s.Contacts {
		if c.IsOnline {
			online++
		}
	}
	a.profileInfo.Update(ui.ProfileData{
		Profile:  a.profile,
		User:     a.vm.Self(),
		Status:   string(s.Status),
		Contacts: len(s.Contacts),
		Online:   online,
		Unread:   s.Unread,
		Uptime:   time.Since(a.started),
	})

	callPage := a.callView.Name()
	switch {
	case s.InCall():
		name := s.Call.Call.PeerID
		for _, c := range s.Contacts {
			if c.ID == name {
				name = c.DisplayName()
				break
			}
		}
		a.callView.Update(s.Call, name)
		if !a.pages.Contains(callPage) {
			a.show(callPage)
		} else if a.pages.Current() == callPage {
			a.menu.Update(a.callView.Hints())
		}
	case a.pages.Contains(callPage):
		a.pages.PopTo(callPage)
		a.pages.Pop()
	}

	if a.vm.TakePermissionDenied() {
		a.show(a.permission.Name())
	}
	a.updateCrumbs()
}

func (a *App) refresh() {
	s := a.vm.Load()
	a.app.QueueUpdateDraw(func() { a.render(s) })
}

// Run starts the TUI and blocks until it exits.
func (a *App) Run() error {
	go a.vm.Watch(a.ctx)
	go a.refreshLoop()
	go a.flashLoop()

	s := a.vm.Load()
	a.render(s)
	a.menu.Update(a.conversations.Hints())
	return a.app.Run()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.refresh()
		case <-ticker.C:
			a.refresh()
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) flashLoop() {
	for {
		select {
		case msg := <-a.vm.Flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&msg) })
			// Redraw once the message expires.
			if msg.Text != "" {
				time.AfterFunc(time.Until(msg.Expires), func() {
					a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.vm.Flash.GetMessage()) })
				})
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
