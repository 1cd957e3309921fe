// Package matching maps free-text receipt lines onto reference catalog
// entries using a longest-substring rule.
package matching

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

// DefaultFallback is the due interval used when nothing in the catalog matches.
const DefaultFallback = 4 * 24 * time.Hour

// ItemSource is satisfied by the loaded reference catalog.
type ItemSource interface {
	Items() []domain.ReferenceItem
}

type Options struct {
	Location domain.StorageLocation
	Fallback time.Duration
}

// Matcher holds a folded copy of the catalog. It has no mutable state and is
// safe for concurrent use.
type Matcher struct {
	items    []domain.ReferenceItem
	folded   []string
	location domain.StorageLocation
	fallback time.Duration
}

func New(source ItemSource, opts Options) *Matcher {
	var items []domain.ReferenceItem
	if source != nil {
		items = source.Items()
	}
	if opts.Location == "" {
		opts.Location = domain.StorageFridge
	}
	if opts.Fallback <= 0 {
		opts.Fallback = DefaultFallback
	}

	folded := make([]string, len(items))
	for i, item := range items {
		folded[i] = fold(item.Name)
	}
	return &Matcher{
		items:    items,
		folded:   folded,
		location: opts.Location,
		fallback: opts.Fallback,
	}
}

// Match picks the reference item with the longest name contained in
// scannedName after case folding. Equal-length candidates resolve to the
// one that appears first in the catalog.
func (m *Matcher) Match(scannedName string) domain.MatchResult {
	result := domain.MatchResult{
		ScannedName: scannedName,
		DueInterval: m.fallback,
	}

	needle := fold(scannedName)
	best := -1
	bestLen := 0
	for i, name := range m.folded {
		if name == "" || !strings.Contains(needle, name) {
			continue
		}
		if n := utf8.RuneCountInString(name); n > bestLen {
			best = i
			bestLen = n
		}
	}
	if best < 0 {
		return result
	}

	matched := m.items[best]
	result.Matched = &matched
	result.DueInterval = daysToDuration(matched.Days(m.location))
	return result
}

// Suggest returns up to limit distinct catalog names closest to scannedName
// by edit distance. It never affects Match.
func (m *Matcher) Suggest(scannedName string, limit int) []string {
	if limit <= 0 || len(m.items) == 0 {
		return nil
	}
	needle := fold(scannedName)
	words := strings.Fields(needle)

	type candidate struct {
		name     string
		distance int
		order    int
	}
	seen := make(map[string]struct{}, len(m.items))
	candidates := make([]candidate, 0, len(m.items))
	for i, name := range m.folded {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		distance := levenshtein.ComputeDistance(needle, name)
		for _, word := range words {
			if d := levenshtein.ComputeDistance(word, name); d < distance {
				distance = d
			}
		}
		candidates = append(candidates, candidate{name: m.items[i].Name, distance: distance, order: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].order < candidates[j].order
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.name)
	}
	return out
}

// Match is the stateless form over an explicit catalog, using fridge days
// and the default fallback.
func Match(scannedName string, catalog []domain.ReferenceItem) domain.MatchResult {
	return New(staticItems(catalog), Options{}).Match(scannedName)
}

type staticItems []domain.ReferenceItem

func (s staticItems) Items() []domain.ReferenceItem { return s }

func fold(s string) string {
	// Casers carry state and must not be shared across goroutines.
	return cases.Fold().String(strings.TrimSpace(s))
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * float64(24*time.Hour))
}
