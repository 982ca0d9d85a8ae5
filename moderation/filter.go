// Package moderation classifies outbound chat messages before persistence.
// A blocked message never obtains a sequence number and never reaches
// the message store; this ordering is a correctness property.
package moderation

import (
	"embed"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"roadlink/errors"
)

//go:embed denylist/*
var denylistFolder embed.FS

// Verdict is the outcome of classifying one message.
type Verdict struct {
	Blocked bool
	Reason  string
}

var Allowed = Verdict{}

func Blocked(reason string) Verdict {
	return Verdict{Blocked: true, Reason: reason}
}

// Filter matches messages against a denylist, case-insensitively, as plain
// substrings. Any match blocks the entire message; there is no redaction.
// Filter is stateless after construction and safe for concurrent use.
type Filter struct {
	matcher *goahocorasick.Machine
}

// NewFilter initializes the Aho-Corasick automaton with a lowercased
// version of the provided denylist.
func NewFilter(denylist []string) (*Filter, error) {
	if len(denylist) == 0 {
		return nil, errors.ErrEmptyWords
	}
	patterns := make([][]rune, len(denylist))
	for i, word := range denylist {
		patterns[i] = lowerRunes([]rune(word))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{matcher: m}, nil
}

// NewEmbeddedFilter builds a Filter from the denylist files shipped with
// the binary (one word per line, one file per language).
func NewEmbeddedFilter() (*Filter, error) {
	data, err := NewDenylistLoader(denylistFolder).LoadAll("denylist")
	if err != nil {
		return nil, err
	}
	return NewFilter(data.Words)
}

// Classify reports whether text may be persisted. Deterministic, no I/O.
func (f *Filter) Classify(text string) Verdict {
	lowered := lowerRunes([]rune(text))
	spans := f.matcher.MultiPatternSearch(lowered, true)
	if len(spans) == 0 {
		return Allowed
	}
	return Blocked(string(spans[0].Word))
}

func lowerRunes(input []rune) []rune {
	out := make([]rune, len(input))
	for i, r := range input {
		out[i] = unicode.ToLower(r)
	}
	return out
}
