// Package safety implements the keyword monitor that scans finalized
// utterances for concerning language and produces guardian-facing flagged
// events.
//
// The monitor is deliberately simple and deterministic: a fixed, ordered
// list of keyword phrases, each tested as a whole-word match (bounded by
// non-word characters on both sides, case-insensitive). The first keyword
// in list order that matches wins — list order is the implicit priority.
// This is not semantic analysis; finalized text in, at most one event out.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/guardianvoice/maya/pkg/conversation"
)

// DefaultKeywords is the built-in watch list, ordered by priority.
var DefaultKeywords = []string{
	"suicide", "kill myself", "hurt myself", "die", "dying",
	"run away", "running away",
	"meet him", "meet her", "meet them", "stranger",
	"drugs", "alcohol", "pills", "cocaine", "weed", "drunk", "high",
	"weapon", "gun", "knife", "razor", "cut myself",
	"secret", "don't tell", "promise not to tell",
	"sex", "pregnant", "hook up",
	"bully", "bullied", "hitting me", "hitting my",
}

// DefaultHighMarkers are the substrings that escalate a matched keyword to
// high severity (self-harm and weapon related terms). Everything else is
// medium. Low is reserved in the data model and never emitted here.
var DefaultHighMarkers = []string{
	"suicide", "die", "kill", "weapon", "hurt myself", "cut myself",
}

// pattern pairs a keyword with its precompiled whole-word matcher.
type pattern struct {
	keyword string
	re      *regexp.Regexp
}

// Monitor scans text against a precompiled keyword list.
//
// Scan has no side effects and is safe to call speculatively; the caller
// owns the event log. Monitor is safe for concurrent use — all state is
// immutable after construction.
type Monitor struct {
	patterns    []pattern
	highMarkers []string
}

// New compiles a Monitor for the given keyword list and high-severity
// markers. Empty keywords are skipped. Passing nil for either argument
// selects the corresponding default list.
func New(keywords, highMarkers []string) (*Monitor, error) {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	if highMarkers == nil {
		highMarkers = DefaultHighMarkers
	}

	patterns := make([]pattern, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(strings.ToLower(k)) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("safety: compile keyword %q: %w", k, err)
		}
		patterns = append(patterns, pattern{keyword: k, re: re})
	}

	return &Monitor{patterns: patterns, highMarkers: highMarkers}, nil
}

// Scan tests text against the keyword list and returns a flagged event for
// the first matching keyword, or ok == false when nothing matches. The
// event carries a fresh identifier, the current timestamp, and the full
// source text as context.
func (m *Monitor) Scan(text string) (ev conversation.FlaggedEvent, ok bool) {
	lower := strings.ToLower(text)
	for _, p := range m.patterns {
		if !p.re.MatchString(lower) {
			continue
		}
		return conversation.NewFlaggedEvent(p.keyword, text, m.classify(p.keyword)), true
	}
	return conversation.FlaggedEvent{}, false
}

// classify returns high when the keyword contains any high-severity marker,
// medium otherwise.
func (m *Monitor) classify(keyword string) conversation.Severity {
	for _, marker := range m.highMarkers {
		if strings.Contains(keyword, marker) {
			return conversation.SeverityHigh
		}
	}
	return conversation.SeverityMedium
}
