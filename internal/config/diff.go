package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (provider, storage, audio platform) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged means the default voice changed; it applies on the next
	// connect, never mid-session.
	VoiceChanged bool
	NewVoice     string

	// PersonaChanged means the persona instructions changed; they apply on
	// the next connect.
	PersonaChanged bool

	// SafetyChanged means the keyword watch list or the high-severity
	// markers changed. The monitor can be swapped immediately since Scan is
	// stateless.
	SafetyChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.PersonaChanged || d.SafetyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Persona.Voice != new.Persona.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Persona.Voice
	}
	if old.Persona.Instructions != new.Persona.Instructions || old.Persona.Name != new.Persona.Name {
		d.PersonaChanged = true
	}
	if !slices.Equal(old.Safety.Keywords, new.Safety.Keywords) ||
		!slices.Equal(old.Safety.HighMarkers, new.Safety.HighMarkers) {
		d.SafetyChanged = true
	}

	return d
}
