package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/discode-ai/discode/internal/bridge"
	"github.com/discode-ai/discode/internal/config"
	"github.com/discode-ai/discode/internal/hooks"
	"github.com/discode-ai/discode/internal/maintenance"
	"github.com/discode-ai/discode/internal/messaging"
	"github.com/discode-ai/discode/internal/messaging/discord"
	"github.com/discode-ai/discode/internal/messaging/slack"
	"github.com/discode-ai/discode/internal/runtime"
	"github.com/discode-ai/discode/internal/state"
	"github.com/discode-ai/discode/internal/tracing"
)

func runDaemon() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hook token: fresh per daemon start, written where hook scripts read it.
	token, err := hooks.NewToken()
	if err != nil {
		slog.Error("failed to generate hook token", "error", err)
		os.Exit(1)
	}
	if err := hooks.WriteTokenFile(cfg.TokenFile(), token); err != nil {
		slog.Error("failed to write hook token", "error", err)
		os.Exit(1)
	}

	store, err := state.Load(cfg.StateFile)
	if err != nil {
		slog.Error("failed to load project state", "error", err)
		os.Exit(1)
	}

	var client messaging.Client
	switch cfg.Platform {
	case "slack":
		client, err = slack.New(cfg.Slack.BotToken, cfg.Slack.AppToken, store)
	case "discord":
		client, err = discord.New(cfg.Discord.Token, store)
	default:
		slog.Error("unknown platform", "platform", cfg.Platform)
		os.Exit(1)
	}
	if err != nil {
		slog.Error("failed to build messaging client", "platform", cfg.Platform, "error", err)
		os.Exit(1)
	}

	traceProvider, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	}

	// Core wiring: tracker and updater project turn state into chat, the
	// pipeline orders events per channel, the router feeds agent runtimes.
	serial := bridge.NewSerializer()
	tracker := bridge.NewTracker(client)
	updater := bridge.NewUpdater(client,
		time.Duration(cfg.Stream.DebounceMs)*time.Millisecond,
		time.Duration(cfg.Stream.MinEditMs)*time.Millisecond)
	watchdog := bridge.NewWatchdog(client, tracker)
	runtimes := runtime.NewRegistry()
	pipeline := bridge.NewPipeline(cfg, client, store, tracker, updater, watchdog, serial,
		traceProvider.Tracer("discode"))
	bridge.NewRouter(cfg, client, store, tracker, pipeline, watchdog, runtimes, serial)

	hookServer := hooks.NewServer(cfg.Hook.Host, cfg.Hook.Port, token, store, pipeline)
	sweeper := maintenance.NewSweeper(cfg.MaintenanceSchedule, store, hookServer, bridge.PruneFileCache)

	if err := client.Connect(ctx); err != nil {
		slog.Error("failed to connect messaging client", "platform", cfg.Platform, "error", err)
		os.Exit(1)
	}
	slog.Info("connected", "platform", cfg.Platform)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(hookServer.Start)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		// Picks up project registrations written by the launcher CLI.
		if err := store.Watch(gctx.Done()); err != nil {
			slog.Warn("state watcher unavailable", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hookServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("hook server shutdown failed", "error", err)
		}
		watchdog.CancelAll()
		serial.Close()
		runtimes.CloseAll()
		if err := client.Close(); err != nil {
			slog.Warn("messaging client close failed", "error", err)
		}
		if err := traceProvider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("trace provider shutdown failed", "error", err)
		}
		return nil
	})

	slog.Info("discode daemon running",
		"hook_addr", cfg.Hook.Host, "hook_port", cfg.Hook.Port,
		"projects", len(store.ProjectNames()))

	if err := g.Wait(); err != nil {
		slog.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("daemon stopped")
}
