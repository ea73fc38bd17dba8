// Command maya runs the Maya voice companion: a realtime speech session
// with a child-facing persona, conversation history persistence, keyword
// safety monitoring, and an admin endpoint for guardians and operators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/guardianvoice/maya/internal/app"
	"github.com/guardianvoice/maya/internal/config"
	"github.com/guardianvoice/maya/internal/observe"
	"github.com/guardianvoice/maya/internal/report"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch-config", true, "poll the config file and hot-reload what can change at runtime")
	reportOnly := flag.Bool("report", false, "print the guardian report from stored history and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "maya: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "maya: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *reportOnly {
		return printReport(ctx, cfg)
	}

	slog.Info("maya starting",
		"version", version,
		"config", *configPath,
		"provider", cfg.Provider.Name,
		"storage", cfg.Storage.Backend,
		"audio", cfg.Audio.Platform,
	)

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	application, err := app.New(ctx, cfg, app.WithLogLevel(level))
	if err != nil {
		slog.Error("initialisation failed", "err", err)
		return 1
	}

	if *watch {
		if err := application.WatchConfig(*configPath); err != nil {
			slog.Warn("config watcher not started", "err", err)
		}
	}

	slog.Info("ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// printReport renders the guardian report from the configured store onto
// stdout.
func printReport(ctx context.Context, cfg *config.Config) int {
	store, err := app.OpenStore(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maya: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	msgs, err := store.LoadMessages(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maya: load messages: %v\n", err)
		return 1
	}
	flagged, err := store.LoadEvents(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maya: load flagged events: %v\n", err)
		return 1
	}
	// Stores return chronological order; the report lists the most recent
	// flag first.
	slices.Reverse(flagged)

	r := report.Report{
		PersonaName: cfg.Persona.Name,
		GeneratedAt: time.Now(),
		Messages:    msgs,
		Flagged:     flagged,
	}
	if err := r.Render(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "maya: render report: %v\n", err)
		return 1
	}
	return 0
}
