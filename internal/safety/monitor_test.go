package safety

import (
	"testing"

	"github.com/guardianvoice/maya/pkg/conversation"
)

func newDefaultMonitor(t *testing.T) *Monitor {
	t.Helper()
	m, err := New(nil, nil)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func TestScanMatches(t *testing.T) {
	t.Parallel()

	m := newDefaultMonitor(t)

	tests := []struct {
		name         string
		text         string
		wantKeyword  string
		wantSeverity conversation.Severity
	}{
		{
			name:         "medium phrase",
			text:         "I want to run away today",
			wantKeyword:  "run away",
			wantSeverity: conversation.SeverityMedium,
		},
		{
			name:         "high phrase",
			text:         "I want to kill myself",
			wantKeyword:  "kill myself",
			wantSeverity: conversation.SeverityHigh,
		},
		{
			name:         "case insensitive",
			text:         "She said DON'T TELL your mom",
			wantKeyword:  "don't tell",
			wantSeverity: conversation.SeverityMedium,
		},
		{
			name:         "first keyword in list order wins",
			text:         "thinking about suicide and drugs",
			wantKeyword:  "suicide",
			wantSeverity: conversation.SeverityHigh,
		},
		{
			name:         "weapon marker escalates",
			text:         "he brought a gun to show us",
			wantKeyword:  "gun",
			wantSeverity: conversation.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ev, ok := m.Scan(tt.text)
			if !ok {
				t.Fatalf("Scan(%q) matched nothing", tt.text)
			}
			if ev.Keyword != tt.wantKeyword {
				t.Errorf("keyword = %q, want %q", ev.Keyword, tt.wantKeyword)
			}
			if ev.Severity != tt.wantSeverity {
				t.Errorf("severity = %q, want %q", ev.Severity, tt.wantSeverity)
			}
			if ev.Context != tt.text {
				t.Errorf("context = %q, want full source text", ev.Context)
			}
			if ev.ID == "" || ev.CreatedAt.IsZero() {
				t.Error("event must carry a fresh ID and timestamp")
			}
		})
	}
}

func TestScanNoSubstringFalsePositive(t *testing.T) {
	t.Parallel()

	m := newDefaultMonitor(t)

	for _, text := range []string{
		"this is a killer app",    // "kill" only as substring
		"the diet started today",  // "die" inside "diet"
		"highway to the mountain", // "high" inside "highway"
		"we watched a stranger things episode about secretaries", // "secret" inside "secretaries" but "stranger" whole word
	} {
		ev, ok := m.Scan(text)
		if text == "we watched a stranger things episode about secretaries" {
			// "stranger" is a whole word here and must match.
			if !ok || ev.Keyword != "stranger" {
				t.Errorf("Scan(%q): got (%v, %v), want stranger match", text, ev.Keyword, ok)
			}
			continue
		}
		if ok {
			t.Errorf("Scan(%q) matched %q, want no match", text, ev.Keyword)
		}
	}
}

func TestScanNoMatch(t *testing.T) {
	t.Parallel()

	m := newDefaultMonitor(t)
	if ev, ok := m.Scan("we talked about skiing and school"); ok {
		t.Errorf("unexpected match %q", ev.Keyword)
	}
	if _, ok := m.Scan(""); ok {
		t.Error("empty text must not match")
	}
}

func TestScanHasNoSideEffects(t *testing.T) {
	t.Parallel()

	m := newDefaultMonitor(t)
	first, _ := m.Scan("I want to run away")
	second, _ := m.Scan("I want to run away")
	if first.ID == second.ID {
		t.Error("each scan must mint a fresh event identifier")
	}
}

func TestNewCustomKeywords(t *testing.T) {
	t.Parallel()

	m, err := New([]string{"  ", "meteor strike"}, []string{"meteor"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ev, ok := m.Scan("a METEOR STRIKE is coming")
	if !ok || ev.Severity != conversation.SeverityHigh {
		t.Fatalf("got (%+v, %v), want high-severity match", ev, ok)
	}
}
