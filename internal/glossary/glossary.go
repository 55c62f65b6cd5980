// Package glossary implements the in-scope half of glossary injection:
// matching glossary entries that occur in a piece of text. Loading the
// glossary file itself is an external collaborator, out of scope for
// this package; Source is the seam a real loader plugs into. Matcher is
// in scope: given a loaded entry set, it
// finds every entry whose source term occurs in a piece of text so the
// translation service can inject them into its prompt. Grounded on the
// external-provider-interface pattern used throughout
// MrWong99-glyphoxa/pkg/provider (Source is this package's equivalent
// of a provider interface: bodies live outside the module, only the
// contract lives here).
package glossary

import (
	"sort"
	"strings"
)

// Entry is one glossary mapping: whenever Source occurs in text (case
// sensitivity is caller-controlled via NewMatcher's caseSensitive
// argument), Target is
// the preferred rendering the translation service should be told to use.
type Entry struct {
	Source string
	Target string
}

// Version identifies a glossary snapshot. It's part of the translation
// cache key so that a glossary update invalidates stale cache entries
// without needing to walk and evict them.
type Version string

// Source is the external collaborator that loads a glossary snapshot.
// Its body (file format, hot reload, remote sync) is out of scope;
// only this contract is specified.
type Source interface {
	// Load returns the current glossary entries and their version.
	Load() ([]Entry, Version, error)
}

// Matcher finds every glossary entry whose source term occurs in a
// piece of text. Matching is longest-source-term-first so that a
// shorter entry's source term never shadows a longer one that also
// matches (e.g. "cache" should not pre-empt "L2 cache").
type Matcher struct {
	entries       []Entry
	caseSensitive bool
}

// NewMatcher builds a Matcher over entries, sorted internally by
// descending source-term length so Match lists longer source terms
// before shorter ones; every entry that occurs in the text is returned.
func NewMatcher(entries []Entry, caseSensitive bool) *Matcher {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Source) > len(sorted[j].Source)
	})
	return &Matcher{entries: sorted, caseSensitive: caseSensitive}
}

// Match returns every entry whose source term occurs at least once in
// text, in longest-source-term-first order, each entry appearing at
// most once regardless of how many times it occurs.
func (m *Matcher) Match(text string) []Entry {
	haystack := text
	if !m.caseSensitive {
		haystack = strings.ToLower(haystack)
	}

	var hits []Entry
	for _, e := range m.entries {
		needle := e.Source
		if !m.caseSensitive {
			needle = strings.ToLower(needle)
		}
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			hits = append(hits, e)
		}
	}
	return hits
}
