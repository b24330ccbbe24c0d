package locations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mel-koku/koku-travel-sub004/internal/database"
	"github.com/mel-koku/koku-travel-sub004/internal/models"
)

// FallbackTables holds the static coordinate tables consulted when neither
// the activity nor its location record carries a point.
type FallbackTables struct {
	byID   map[string]models.Coordinates
	byName map[string]models.Coordinates
	// name keys sorted longest first so containment matches are deterministic
	names []string
}

// NewFallbackTables builds tables from id and name keyed maps. Name keys are
// normalized on insert.
func NewFallbackTables(byID, byName map[string]models.Coordinates) *FallbackTables {
	t := &FallbackTables{
		byID:   make(map[string]models.Coordinates, len(byID)),
		byName: make(map[string]models.Coordinates, len(byName)),
	}
	for id, c := range byID {
		t.byID[id] = c
	}
	for name, c := range byName {
		key := NormalizeName(name)
		if key == "" {
			continue
		}
		t.byName[key] = c
		t.names = append(t.names, key)
	}
	sort.Slice(t.names, func(i, j int) bool {
		if len(t.names[i]) != len(t.names[j]) {
			return len(t.names[i]) > len(t.names[j])
		}
		return t.names[i] < t.names[j]
	})
	return t
}

// LoadFallbackTables reads both tables from the store
func LoadFallbackTables(ctx context.Context, repo database.CoordinateTableRepository) (*FallbackTables, error) {
	byID, err := repo.List(ctx, database.CoordinateTableByID)
	if err != nil {
		return nil, fmt.Errorf("failed to load id fallback table: %w", err)
	}
	byName, err := repo.List(ctx, database.CoordinateTableByName)
	if err != nil {
		return nil, fmt.Errorf("failed to load name fallback table: %w", err)
	}
	return NewFallbackTables(byID, byName), nil
}

// ByID looks up a location id
func (t *FallbackTables) ByID(id string) (models.Coordinates, bool) {
	if t == nil || id == "" {
		return models.Coordinates{}, false
	}
	c, ok := t.byID[id]
	return c, ok
}

// ByName performs the fuzzy name lookup. An exact normalized match wins,
// then the longest table key contained in the query, then a table key that
// contains the whole query.
func (t *FallbackTables) ByName(name string) (models.Coordinates, bool) {
	if t == nil {
		return models.Coordinates{}, false
	}
	q := NormalizeName(name)
	if q == "" {
		return models.Coordinates{}, false
	}
	if c, ok := t.byName[q]; ok {
		return c, true
	}
	for _, key := range t.names {
		if containsWords(q, key) {
			return t.byName[key], true
		}
	}
	for _, key := range t.names {
		if containsWords(key, q) {
			return t.byName[key], true
		}
	}
	return models.Coordinates{}, false
}

// containsWords reports whether needle appears in haystack on word boundaries
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// NormalizeName folds case and diacritics and collapses punctuation to
// single spaces, so "Kiyomizu-dera" and "kiyomizu dera" compare equal.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}
