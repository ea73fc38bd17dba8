package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guardianvoice/maya/internal/config"
	"github.com/guardianvoice/maya/internal/session"
	audiomock "github.com/guardianvoice/maya/pkg/audio/mock"
	livemock "github.com/guardianvoice/maya/pkg/provider/live/mock"
)

// ─── helpers ──────────────────────────────────────────────────────────────────

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Provider: config.ProviderConfig{
			Name:   "gemini",
			APIKey: "test-key",
		},
		Persona: config.PersonaConfig{Name: "Maya", Voice: "Kore"},
		Storage: config.StorageConfig{
			Backend: config.StorageFile,
			Path:    filepath.Join(t.TempDir(), "history.json"),
		},
		Audio: config.AudioConfig{Platform: "discord"},
	}
}

// newTestApp builds an App with mock provider and platform, leaving the
// rest of the wiring (store, monitor, controller) real.
func newTestApp(t *testing.T, cfg *config.Config, extra ...Option) (*App, *livemock.Provider, *audiomock.Platform) {
	t.Helper()

	provider := &livemock.Provider{AutoOpen: true}
	platform := &audiomock.Platform{}

	opts := append([]Option{
		WithProvider(provider),
		WithPlatform(platform),
	}, extra...)

	a, err := New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, provider, platform
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// ─── construction ─────────────────────────────────────────────────────────────

func TestNewWiresSubsystems(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig(t))
	if a.Controller() == nil {
		t.Fatal("controller not constructed")
	}
	if a.store == nil || a.monitor == nil {
		t.Fatal("store or monitor not constructed")
	}
	if got := a.Controller().State(); got != session.StateDisconnected {
		t.Fatalf("initial state = %q, want %q", got, session.StateDisconnected)
	}
}

func TestNewUnknownStorageBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Backend = "etcd"

	_, err := New(context.Background(), cfg,
		WithProvider(&livemock.Provider{}),
		WithPlatform(&audiomock.Platform{}),
	)
	if err == nil || !strings.Contains(err.Error(), "storage backend") {
		t.Fatalf("New error = %v, want unknown storage backend", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Provider.Name = "acme"

	_, err := New(context.Background(), cfg, WithPlatform(&audiomock.Platform{}))
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("New error = %v, want ErrProviderNotRegistered", err)
	}
}

// ─── Run ──────────────────────────────────────────────────────────────────────

func TestRunConnectsAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, func() bool { return a.Controller().State() == session.StateConnected },
		"controller never reached connected state")

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := a.Controller().State(); got != session.StateDisconnected {
		t.Fatalf("state after Run = %q, want %q", got, session.StateDisconnected)
	}
}

func TestRunFailsFastOnMissingCredential(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Provider.APIKey = ""
	a, _, _ := newTestApp(t, cfg)

	err := a.Run(context.Background())
	var cfgErr *session.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run error = %v, want ConfigurationError", err)
	}
}

func TestRunServesHealthAndMetrics(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Server.ListenAddr = freeAddr(t)
	a, _, _ := newTestApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	base := "http://" + cfg.Server.ListenAddr
	var resp *http.Response
	waitFor(t, func() bool {
		r, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, "admin server never came up")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}

	for _, path := range []string{"/readyz", "/metrics"} {
		r, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
		if r.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, r.StatusCode)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// ─── hot reload ───────────────────────────────────────────────────────────────

func TestApplyConfigChange(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	a, _, _ := newTestApp(t, testConfig(t), WithLogLevel(lv))

	old := testConfig(t)
	updated := testConfig(t)
	updated.Server.LogLevel = config.LogDebug
	updated.Persona.Voice = "Puck"
	updated.Safety.Keywords = []string{"volcano"}

	a.applyConfigChange(old, updated)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if got := a.Controller().Voice(); got != "Puck" {
		t.Errorf("voice = %q, want Puck", got)
	}
	if _, ok := a.monitor.Scan("the volcano erupted"); !ok {
		t.Error("reloaded monitor does not match new keyword")
	}
	if _, ok := a.monitor.Scan("i want to run away"); ok {
		t.Error("reloaded monitor still matches old keyword list")
	}
}

func TestSlogLevelMapping(t *testing.T) {
	t.Parallel()

	cases := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"bogus":         slog.LevelInfo,
	}
	for in, want := range cases {
		if got := SlogLevel(in); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// ─── persona ──────────────────────────────────────────────────────────────────

func TestDefaultInstructions(t *testing.T) {
	t.Parallel()

	text := DefaultInstructions("Nova")
	if !strings.Contains(text, "You are Nova") {
		t.Error("persona name not embedded")
	}
	if !strings.Contains(text, "SAFETY GUARDRAILS") {
		t.Error("safety guardrails missing")
	}
	if got := DefaultInstructions(""); !strings.Contains(got, "You are Maya") {
		t.Errorf("empty name should fall back to Maya, got %q", firstLine(got))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
