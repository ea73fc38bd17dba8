package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known live provider names. Used by [Validate] to
// warn about unrecognised names (which may be typos or third-party plugins).
var ValidProviderNames = []string{"gemini", "openai"}

// ValidAudioPlatforms lists known audio platform adapters.
var ValidAudioPlatforms = []string{"discord"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	if err := decodeStrict(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict parses YAML with unknown-field rejection so typos in config
// keys surface as errors instead of silently-ignored settings.
func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// applyDefaults fills in the values a minimal config may omit.
func applyDefaults(cfg *Config) {
	if cfg.Persona.Name == "" {
		cfg.Persona.Name = "Maya"
	}
	if cfg.Persona.Voice == "" {
		cfg.Persona.Voice = "Kore"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if cfg.Storage.Backend == StorageFile && cfg.Storage.Path == "" {
		cfg.Storage.Path = "maya-history.json"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name — may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	if cfg.Provider.APIKey == "" {
		// Not fatal here: connect performs its own credential pre-flight and
		// surfaces a user-facing error.
		slog.Warn("provider.api_key is empty; connecting will fail until one is set")
	}

	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: file, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == StoragePostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}

	if cfg.Audio.Platform != "" && !slices.Contains(ValidAudioPlatforms, cfg.Audio.Platform) {
		slog.Warn("unknown audio platform — may be a typo or third-party adapter",
			"platform", cfg.Audio.Platform,
			"known", ValidAudioPlatforms,
		)
	}
	if cfg.Audio.Platform == "discord" {
		if cfg.Discord == nil {
			errs = append(errs, errors.New("discord section is required when audio.platform is discord"))
		} else {
			if cfg.Discord.BotToken == "" {
				errs = append(errs, errors.New("discord.bot_token is required"))
			}
			if cfg.Discord.GuildID == "" {
				errs = append(errs, errors.New("discord.guild_id is required"))
			}
			if cfg.Discord.ChannelID == "" {
				errs = append(errs, errors.New("discord.channel_id is required"))
			}
		}
	}

	return errors.Join(errs...)
}
