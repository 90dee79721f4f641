// Package teams resolves free-text team names from consensus sources and
// model output onto canonical names, so records about the same side merge
// under one key.
package teams

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Resolver maps source-specific team name variants to canonical names.
// Safe for concurrent use; the alias tables are immutable after construction.
type Resolver struct {
	mu sync.RWMutex
	// sport -> normalized alias -> canonical name
	bySport map[string]map[string]string
}

// NewResolver builds a resolver preloaded with the builtin alias tables.
func NewResolver() *Resolver {
	r := &Resolver{bySport: make(map[string]map[string]string)}
	for sport, table := range builtinAliases {
		for canonical, aliases := range table {
			r.add(sport, canonical, canonical)
			for _, alias := range aliases {
				r.add(sport, alias, canonical)
			}
		}
	}
	return r
}

func (r *Resolver) add(sport, alias, canonical string) {
	key := NormalizeName(alias)
	if key == "" {
		return
	}
	m, ok := r.bySport[sport]
	if !ok {
		m = make(map[string]string)
		r.bySport[sport] = m
	}
	m[key] = canonical
}

// AddAlias registers an extra alias at runtime.
func (r *Resolver) AddAlias(sport, alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(sport, alias, canonical)
}

// Resolve returns the canonical name for a source-specific variant. When no
// alias matches, even partially, the input is returned unchanged so ambiguous
// names flow through rather than getting silently rewritten.
func (r *Resolver) Resolve(name, sport string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	table, ok := r.bySport[sport]
	if !ok {
		return name
	}

	key := NormalizeName(name)
	if canonical, ok := table[key]; ok {
		return canonical
	}

	// Partial match: a variant like "LA Lakers" contains the indexed
	// nickname, or an indexed city name contains the variant. Only accept
	// when exactly one canonical name matches, otherwise it is ambiguous.
	var found string
	for alias, canonical := range table {
		if strings.Contains(alias, key) || strings.Contains(key, alias) {
			if found != "" && found != canonical {
				return name
			}
			found = canonical
		}
	}
	if found != "" {
		return found
	}
	return name
}

// Match reports whether two free-text names refer to the same side. Both are
// resolved first; unresolved names fall back to normalized containment in
// either direction.
func (r *Resolver) Match(a, b, sport string) bool {
	ra := NormalizeName(r.Resolve(a, sport))
	rb := NormalizeName(r.Resolve(b, sport))
	if ra == "" || rb == "" {
		return false
	}
	if ra == rb {
		return true
	}
	return strings.Contains(ra, rb) || strings.Contains(rb, ra)
}

// StripLine removes a trailing spread or total value from a selection string,
// turning "Timberwolves +17.5" into "Timberwolves".
func StripLine(selection string) string {
	fields := strings.Fields(strings.TrimSpace(selection))
	if len(fields) < 2 {
		return strings.TrimSpace(selection)
	}
	last := fields[len(fields)-1]
	if looksLikeLine(last) {
		return strings.Join(fields[:len(fields)-1], " ")
	}
	return strings.Join(fields, " ")
}

func looksLikeLine(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
	}
	digits := false
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits = true
		case s[i] == '.':
		default:
			return false
		}
	}
	return digits
}

// NormalizeName lowercases, strips accents and collapses punctuation and
// whitespace so name variants index identically.
func NormalizeName(name string) string {
	name = strings.ToLower(name)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
