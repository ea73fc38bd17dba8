package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server:   ServerConfig{LogLevel: LogInfo},
		Provider: ProviderConfig{Name: "gemini", APIKey: "k"},
		Persona:  PersonaConfig{Name: "Maya", Voice: "Kore", Instructions: "be kind"},
		Safety:   SafetyConfig{Keywords: []string{"scared"}},
	}
}

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()
	d := Diff(baseConfig(), baseConfig())
	if d.Any() {
		t.Fatalf("Diff of identical configs = %+v, want no changes", d)
	}
}

func TestDiffLogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Fatalf("Diff = %+v, want LogLevelChanged to debug", d)
	}
}

func TestDiffVoice(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Persona.Voice = "Puck"

	d := Diff(old, new)
	if !d.VoiceChanged || d.NewVoice != "Puck" {
		t.Fatalf("Diff = %+v, want VoiceChanged to Puck", d)
	}
	if d.PersonaChanged {
		t.Fatal("voice change must not count as a persona change")
	}
}

func TestDiffPersona(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Persona.Instructions = "be very kind"

	if d := Diff(old, new); !d.PersonaChanged {
		t.Fatalf("Diff = %+v, want PersonaChanged", d)
	}
}

func TestDiffSafety(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Safety.Keywords = []string{"scared", "bully"}

	if d := Diff(old, new); !d.SafetyChanged {
		t.Fatalf("Diff = %+v, want SafetyChanged", d)
	}

	old, new = baseConfig(), baseConfig()
	new.Safety.HighMarkers = []string{"weapon"}
	if d := Diff(old, new); !d.SafetyChanged {
		t.Fatalf("Diff = %+v, want SafetyChanged for marker change", d)
	}
}
