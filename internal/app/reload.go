package app

import (
	"context"
	"log/slog"

	"github.com/guardianvoice/maya/internal/config"
	"github.com/guardianvoice/maya/internal/safety"
)

// WatchConfig starts polling path for configuration changes and applies the
// hot-reloadable fields to the running application. Changes to anything
// else (provider, storage backend, audio platform) require a restart and
// are only logged.
func (a *App) WatchConfig(path string, opts ...config.WatcherOption) error {
	w, err := config.NewWatcher(path, a.applyConfigChange, opts...)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// applyConfigChange is the watcher callback. It receives the previous and
// freshly validated configuration and applies whatever can change at
// runtime.
func (a *App) applyConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Any() {
		return
	}

	if diff.LogLevelChanged {
		a.setLogLevel(diff.NewLogLevel)
	}

	if diff.VoiceChanged {
		// Takes effect on the next session; an active one keeps its voice.
		a.controller.SetVoice(context.Background(), diff.NewVoice)
		slog.Info("voice updated from config", "voice", diff.NewVoice)
	}

	if diff.SafetyChanged {
		m, err := safety.New(new.Safety.Keywords, new.Safety.HighMarkers)
		if err != nil {
			slog.Warn("rebuilding safety monitor failed, keeping previous keyword lists", "err", err)
		} else {
			a.controller.SetMonitor(m)
			a.monitor = m
			slog.Info("safety keyword lists updated from config")
		}
	}

	if diff.PersonaChanged {
		slog.Warn("persona changes require a restart to take effect")
	}
}

func (a *App) setLogLevel(level config.LogLevel) {
	if a.logLevel == nil {
		return
	}
	a.logLevel.Set(SlogLevel(level))
	slog.Info("log level updated from config", "level", level)
}

// SlogLevel maps a config log level onto the slog scale. Unknown values
// fall back to info.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
