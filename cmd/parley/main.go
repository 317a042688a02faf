package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/app"
	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/config"
	"github.com/matheus3301/parley/internal/controller"
	"github.com/matheus3301/parley/internal/lock"
	"github.com/matheus3301/parley/internal/profile"
	"github.com/matheus3301/parley/internal/tui"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	settingsPath := profile.SettingsPath(profileName)
	p, err := config.LoadProfile(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := p.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: profile %q: %v\n", profileName, err)
		fmt.Fprintf(os.Stderr, "edit %s or run: parleyctl --profile %s profile init\n", settingsPath, profileName)
		os.Exit(1)
	}

	var (
		ctl *controller.Controller
		b   *bus.Bus
	)
	fxApp := fx.New(
		app.Module(app.Params{ProfileName: profileName, Profile: p}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Populate(&ctl, &b),
	)
	if err := fxApp.Err(); err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "error: profile %q is already open in another parley (pid %d)\n", profileName, held.PID)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = fxApp.Start(startCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: start: %v\n", err)
		os.Exit(1)
	}

	runErr := tui.NewApp(ctl, b, profileName).Run()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: stop: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
