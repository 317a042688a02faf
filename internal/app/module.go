// Package app composes the client's components with fx.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/call"
	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/controller"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/logging"
	"github.com/matheus3301/parley/internal/media"
	"github.com/matheus3301/parley/internal/outbox"
	"github.com/matheus3301/parley/internal/profile"
	"github.com/matheus3301/parley/internal/realtime"
	"github.com/matheus3301/parley/internal/rest"
	"github.com/matheus3301/parley/internal/roster"
	"github.com/matheus3301/parley/internal/status"
	"github.com/matheus3301/parley/internal/store"
	intsync "github.com/matheus3301/parley/internal/sync"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	Profile     *config.Profile
	// Console mirrors the log to stderr; off under the TUI.
	Console bool
	// Logger overrides the file logger, for tests.
	Logger *zap.Logger
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("parley",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRoster,
			provideRealtime,
			provideREST,
			provideTyping,
			provideSyncEngine,
			provideHistory,
			provideSender,
			provideCallManager,
			provideController,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(logging.Options{
		Path:       profile.LogPath(p.ProfileName),
		Profile:    p.ProfileName,
		Level:      p.Profile.Log.Level,
		MaxSizeMB:  p.Profile.Log.MaxSizeMB,
		MaxBackups: p.Profile.Log.MaxBackups,
		MaxAgeDays: p.Profile.Log.MaxAgeDays,
		Console:    p.Console,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName), "parley")
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore() *store.Store {
	return store.New()
}

func provideRoster(p Params) *roster.Roster {
	return roster.New(p.Profile.UserID)
}

func provideRealtime(p Params, b *bus.Bus, m *status.Machine, logger *zap.Logger) *realtime.Client {
	return realtime.NewClient(realtime.Options{
		Self:         p.Profile.UserID,
		Token:        p.Profile.AccessToken,
		MessagingURL: p.Profile.Server.MessagingURL,
		SignalURL:    p.Profile.Server.SignalURL,
	}, b, m, logger)
}

func provideREST(p Params, logger *zap.Logger) *rest.Client {
	return rest.NewClient(p.Profile.Server.APIURL, p.Profile.AccessToken, p.Profile.UserID,
		p.Profile.Server.RequestTimeout.Duration, logger)
}

func provideTyping(p Params, rt *realtime.Client, logger *zap.Logger) *realtime.TypingNotifier {
	return realtime.NewTypingNotifier(rt.Messaging, p.Profile.Chat.TypingInterval.Duration, logger)
}

func provideSyncEngine(p Params, st *store.Store, r *roster.Roster, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(p.Profile.UserID, st, r, b, logger)
}

func provideHistory(p Params, api *rest.Client, e *intsync.Engine, st *store.Store, b *bus.Bus, logger *zap.Logger) *intsync.History {
	return intsync.NewHistory(p.Profile.UserID, api, e, st, b, p.Profile.Chat.HistoryPageSize, logger)
}

func provideSender(p Params, st *store.Store, r *roster.Roster, rt *realtime.Client, api *rest.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(p.Profile.UserID, st, r, rt.Messaging, api, api, b, logger)
}

func provideCallManager(p Params, rt *realtime.Client, b *bus.Bus, logger *zap.Logger) *call.Manager {
	var opts []call.Option
	if d := p.Profile.Call.RingTimeout.Duration; d > 0 {
		opts = append(opts, call.WithRingTimeout(d))
	}
	return call.NewManager(p.Profile.UserID, rt.Signaling, media.SilentDevices{},
		media.NewPionFactory(p.Profile.Call.ICEServers, logger), b, logger, opts...)
}

func provideController(p Params, st *store.Store, r *roster.Roster, m *status.Machine, b *bus.Bus,
	rt *realtime.Client, typing *realtime.TypingNotifier, api *rest.Client, sender *outbox.Sender,
	history *intsync.History, engine *intsync.Engine, calls *call.Manager, logger *zap.Logger,
) *controller.Controller {
	return controller.New(controller.Deps{
		Self:        p.Profile.UserID,
		Store:       st,
		Roster:      r,
		Machine:     m,
		Bus:         b,
		Realtime:    rt,
		Messenger:   rt.Messaging,
		Typing:      typing,
		Directory:   api,
		Sender:      sender,
		History:     history,
		Engine:      engine,
		Calls:       calls,
		Downloader:  api,
		DownloadDir: profile.DownloadDir(p.ProfileName),
		Logger:      logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, ctl *controller.Controller, engine *intsync.Engine,
	sender *outbox.Sender, calls *call.Manager, typing *realtime.TypingNotifier, logger *zap.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(ctx)
			sender.Start(ctx)
			calls.Start(ctx)
			ctl.Start(ctx)

			// Connect in the background so the UI is up while dialing.
			go func() {
				defer close(done)
				if err := ctl.Bootstrap(ctx); err != nil {
					logger.Warn("bootstrap incomplete", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			case <-time.After(5 * time.Second):
			}
			typing.StopAll()
			_ = ctl.Hangup(stopCtx)
			calls.Stop()
			sender.Stop()
			engine.Stop()
			ctl.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
