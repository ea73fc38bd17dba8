// Package app wires all Maya subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithProvider, WithPlatform, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/guardianvoice/maya/internal/config"
	discordbot "github.com/guardianvoice/maya/internal/discord"
	"github.com/guardianvoice/maya/internal/discord/commands"
	"github.com/guardianvoice/maya/internal/health"
	"github.com/guardianvoice/maya/internal/observe"
	"github.com/guardianvoice/maya/internal/safety"
	"github.com/guardianvoice/maya/internal/session"
	"github.com/guardianvoice/maya/pkg/audio"
	discordaudio "github.com/guardianvoice/maya/pkg/audio/discord"
	"github.com/guardianvoice/maya/pkg/conversation"
	"github.com/guardianvoice/maya/pkg/conversation/file"
	"github.com/guardianvoice/maya/pkg/conversation/postgres"
	"github.com/guardianvoice/maya/pkg/provider/live"
	"github.com/guardianvoice/maya/pkg/provider/live/gemini"
	"github.com/guardianvoice/maya/pkg/provider/live/openai"
)

// adminShutdownTimeout bounds the admin server's graceful drain.
const adminShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes for one Maya instance.
type App struct {
	cfg *config.Config

	registry   *config.Registry
	store      conversation.Store
	monitor    *safety.Monitor
	provider   live.Provider
	platform   audio.Platform
	controller *session.Controller
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar

	bot     *discordbot.Bot
	watcher *config.Watcher

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a conversation store instead of creating one from config.
func WithStore(s conversation.Store) Option {
	return func(a *App) { a.store = s }
}

// WithProvider injects a live provider instead of creating one from config.
func WithProvider(p live.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithPlatform injects an audio platform instead of creating one from config.
func WithPlatform(p audio.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithRegistry injects a provider registry instead of the built-in one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics attaches metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the App the level variable backing the process logger
// so configuration hot-reload can adjust verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together: conversation store,
// safety monitor, live provider, audio platform, and the session controller.
// Use Option functions to inject test doubles for any of them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
		a.registerBuiltins(a.registry)
	}

	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initMonitor(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init monitor: %w", err)
	}
	if err := a.initProvider(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init provider: %w", err)
	}
	if err := a.initPlatform(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init platform: %w", err)
	}

	instructions := cfg.Persona.Instructions
	if instructions == "" {
		instructions = DefaultInstructions(cfg.Persona.Name)
	}

	ctrl, err := session.New(ctx, a.provider, a.platform, a.store, a.monitor, session.Config{
		Credential:   cfg.Provider.APIKey,
		Voice:        cfg.Persona.Voice,
		Instructions: instructions,
	}, session.WithMetrics(a.metrics))
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init session controller: %w", err)
	}
	a.controller = ctrl

	if a.bot != nil {
		commands.NewGuardianCommands(a.bot, ctrl, cfg.Persona.Name, a.provider.Voices())
		if err := a.bot.RegisterCommands(); err != nil {
			slog.Warn("registering guardian commands failed", "err", err)
		}
	}

	return a, nil
}

// registerBuiltins wires the provider and platform factories that ship with
// Maya into reg.
func (a *App) registerBuiltins(reg *config.Registry) {
	reg.RegisterLive("gemini", func(entry config.ProviderConfig) (live.Provider, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(entry.APIKey, opts...), nil
	})

	reg.RegisterLive("openai", func(entry config.ProviderConfig) (live.Provider, error) {
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, opts...), nil
	})

	reg.RegisterPlatform("discord", func(cfg *config.Config) (audio.Platform, error) {
		if cfg.Discord == nil {
			return nil, fmt.Errorf("discord platform requires a discord config section")
		}
		bot, err := discordbot.New(discordbot.Config{
			Token:          cfg.Discord.BotToken,
			GuildID:        cfg.Discord.GuildID,
			GuardianRoleID: cfg.Discord.GuardianRoleID,
		})
		if err != nil {
			return nil, err
		}
		a.bot = bot
		a.closers = append(a.closers, bot.Close)
		slog.Info("discord gateway connected", "guild_id", cfg.Discord.GuildID)
		return discordaudio.New(bot.Session(), cfg.Discord.GuildID, cfg.Discord.ChannelID), nil
	})
}

// ─── init helpers ────────────────────────────────────────────────────────────

// OpenStore constructs the conversation store selected by the storage
// config. The caller owns the returned store and must Close it.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (conversation.Store, error) {
	switch cfg.Backend {
	case config.StorageFile:
		return file.New(cfg.Path)
	case config.StoragePostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	s, err := OpenStore(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func (a *App) initMonitor() error {
	m, err := safety.New(a.cfg.Safety.Keywords, a.cfg.Safety.HighMarkers)
	if err != nil {
		return err
	}
	a.monitor = m
	return nil
}

func (a *App) initProvider() error {
	if a.provider != nil {
		return nil
	}
	p, err := a.registry.CreateLive(a.cfg.Provider)
	if err != nil {
		return fmt.Errorf("create live provider %q: %w", a.cfg.Provider.Name, err)
	}
	a.provider = p
	return nil
}

func (a *App) initPlatform() error {
	if a.platform != nil {
		return nil
	}
	p, err := a.registry.CreatePlatform(a.cfg)
	if err != nil {
		return fmt.Errorf("create audio platform %q: %w", a.cfg.Audio.Platform, err)
	}
	a.platform = p
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Controller exposes the session controller for callers that need to
// observe or drive the session directly (tests, admin tooling).
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Run starts the admin HTTP server (when configured), opens the live
// session, and blocks until ctx is cancelled or a subsystem fails.
//
// A configuration problem during the initial connect (missing credential)
// aborts Run. Transport failures after that leave the controller in its
// errored state, visible on the readiness endpoint, rather than tearing
// the process down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.adminHandler()}

		g.Go(func() error {
			slog.Info("admin server listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := a.controller.Connect(ctx); err != nil {
			var cfgErr *session.ConfigurationError
			if errors.As(err, &cfgErr) {
				return fmt.Errorf("app: connect: %w", err)
			}
			// Leave the controller in whatever state Connect reached;
			// readyz reports it and an operator can intervene.
			slog.Error("app: initial connect failed", "err", err)
		}
		<-ctx.Done()
		a.controller.Disconnect()
		return nil
	})

	return g.Wait()
}

// adminHandler builds the admin mux: health probes, Prometheus scrape
// endpoint, all wrapped in the tracing middleware.
func (a *App) adminHandler() http.Handler {
	mux := http.NewServeMux()
	health.New(
		health.StoreChecker(a.store),
		health.SessionChecker(a.controller),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown disconnects the session and closes all subsystems in reverse
// initialisation order. Safe to call more than once.
func (a *App) Shutdown(_ context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.controller != nil {
			a.controller.Disconnect()
		}
		err = a.closeAll()
	})
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
