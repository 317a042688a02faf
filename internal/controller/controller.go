// Package controller is the screen-level facade the TUI drives: it owns
// the connection lifecycle, which conversation is open, and routes user
// actions to the outbox, the realtime channels and the call manager.
package controller

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/outbox"
	"github.com/matheus3301/parley/internal/realtime"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	intsync "github.com/matheus3301/parley/internal/sync"
	"github.com/matheus3301/parley/internal/wire"
)

// Realtime is the pair of websocket channels.
type Realtime interface {
	Connect(ctx context.Context) realtime.ConnectResult
	Close()
}

// Messenger is the part of the messaging channel not owned by the outbox.
type Messenger interface {
	React(ctx context.Context, to string, p wire.ReactionPayload, add bool) error
	MarkRead(ctx context.Context, to, conversationID string, ids []string) error
	QueryPresence(ctx context.Context) error
}

// Typist throttles local typing indicators.
type Typist interface {
	Keystroke(peer string)
	Stop(peer string)
}

// Directory is the REST surface the controller needs.
type Directory interface {
	Contacts(ctx context.Context) ([]roster.Contact, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]roster.Contact, error)
	Wallpaper(ctx context.Context, conversationID string) (string, error)
	SetWallpaper(ctx context.Context, conversationID, wallpaperID string) error
	Wallpapers(ctx context.Context) ([]rest.Wallpaper, error)
}

// Calls is the call manager.
type Calls interface {
	Call(ctx context.Context, peerID string, t call.Type) (call.Call, error)
	Accept(ctx context.Context) error
	Reject(ctx context.Context) error
	Hangup(ctx context.Context) error
	Snapshot() call.Snapshot
}

// History pages conversations in.
type History interface {
	LoadLatest(ctx context.Context, peer string) (intsync.HistoryLoaded, error)
	LoadOlder(ctx context.Context, peer string) (intsync.HistoryLoaded, error)
	HasMore(peer string) bool
}

// BadgeUpdater shows the total unread count somewhere outside the thread,
// such as a status bar or a window title.
type BadgeUpdater interface {
	SetBadge(unread int)
}

// Deps collects the collaborators of a Controller.
type Deps struct {
	Self      string
	Store     *store.Store
	Roster    *roster.Roster
	Machine   *status.Machine
	Bus       *bus.Bus
	Realtime  Realtime
	Messenger Messenger
	Typing    Typist
	Directory Directory
	Sender    *outbox.Sender
	History   History
	Engine    *intsync.Engine
	Calls     Calls
	// Downloader and DownloadDir back SaveMedia; both may be unset.
	Downloader  Downloader
	DownloadDir string
	Logger      *zap.Logger
}

// Controller is safe for concurrent use.
type Controller struct {
	self      string
	store     *store.Store
	roster    *roster.Roster
	machine   *status.Machine
	bus       *bus.Bus
	rt        Realtime
	messenger Messenger
	typing    Typist
	dir       Directory
	sender    *outbox.Sender
	history   History
	engine    *intsync.Engine
	calls     Calls
	logger    *zap.Logger

	downloader  Downloader
	downloadDir string

	// reconnect backoff; tests shorten it.
	backoff      []time.Duration
	reconnecting atomic.Bool

	mu         stdsync.Mutex
	openPeer   string
	replyTo    string
	wallpapers map[string]string
	badge      BadgeUpdater
	cancel     context.CancelFunc
	wg         stdsync.WaitGroup
}

// New creates a controller and registers it as the open-peer source of the
// sync engine.
func New(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		self:        d.Self,
		store:       d.Store,
		roster:      d.Roster,
		machine:     d.Machine,
		bus:         d.Bus,
		rt:          d.Realtime,
		messenger:   d.Messenger,
		typing:      d.Typing,
		dir:         d.Directory,
		sender:      d.Sender,
		history:     d.History,
		engine:      d.Engine,
		calls:       d.Calls,
		logger:      logger.Named("controller"),
		downloader:  d.Downloader,
		downloadDir: d.DownloadDir,
		backoff:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		wallpapers:  make(map[string]string),
	}
	if d.Engine != nil {
		d.Engine.SetOpenPeer(c.OpenPeer)
	}
	return c
}

// Self returns the local user id.
func (c *Controller) Self() string { return c.self }

// SetBadgeUpdater installs the unread badge sink and reports the current total.
func (c *Controller) SetBadgeUpdater(b BadgeUpdater) {
	c.mu.Lock()
	c.badge = b
	c.mu.Unlock()
	c.updateBadge()
}

func (c *Controller) updateBadge() {
	c.mu.Lock()
	b := c.badge
	c.mu.Unlock()
	if b != nil {
		b.SetBadge(c.roster.TotalUnread())
	}
}

// Start runs the background loop reacting to disconnects, live messages in
// the open conversation and roster changes.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	session, unsubSession := c.bus.Subscribe(bus.KindDisconnected, 8)
	messages, unsubMessages := c.bus.Subscribe(bus.KindMessageUpserted, 256)
	rosterCh, unsubRoster := c.bus.Subscribe(bus.KindRosterChanged, 64)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsubSession()
		defer unsubMessages()
		defer unsubRoster()
		for {
			select {
			case <-session:
				c.startReconnect(ctx)
			case evt := <-messages:
				if m, ok := evt.Payload.(store.Message); ok {
					c.onMessage(ctx, m)
				}
			case <-rosterCh:
				c.updateBadge()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// startReconnect runs reconnect in the background unless one is already
// running, so the loop keeps serving message and roster events meanwhile.
func (c *Controller) startReconnect(ctx context.Context) {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.reconnecting.Store(false)
		c.reconnect(ctx)
	}()
}

// Stop ends the background loop and closes the channels.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if peer := c.OpenPeer(); peer != "" && c.typing != nil {
		c.typing.Stop(peer)
	}
	c.rt.Close()
}

// ShareLink is the link other users open to start a conversation with us.
func (c *Controller) ShareLink() string {
	return "parley://user/" + c.self
}
