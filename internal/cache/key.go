package cache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates key components in the encoded fingerprint.
const Delimiter = "|"

// NoChapter marks entries that are scoped to a whole novel rather than to a
// chapter. Such entries survive InvalidateFromChapter.
const NoChapter = -1

var (
	// ErrInvalidKeyFormat is returned when a key cannot be encoded or parsed.
	ErrInvalidKeyFormat = errors.New("invalid cache key format")
)

// Key identifies one cached payload. Components are kept structured so that
// invalidation never depends on splitting strings.
type Key struct {
	Category string
	NovelID  string
	Chapter  int
	Extra    []string
}

// NewKey builds a chapter-scoped key. Empty extras are dropped.
func NewKey(category, novelID string, chapter int, extra ...string) Key {
	k := Key{Category: category, NovelID: novelID, Chapter: chapter}
	for _, e := range extra {
		if e != "" {
			k.Extra = append(k.Extra, e)
		}
	}
	return k
}

// NovelKey builds a key that is not tied to any chapter.
func NovelKey(category, novelID string, extra ...string) Key {
	return NewKey(category, novelID, NoChapter, extra...)
}

// HasChapter reports whether the key is scoped to a chapter.
func (k Key) HasChapter() bool { return k.Chapter != NoChapter }

// Valid checks that every component can round-trip through String.
func (k Key) Valid() error {
	if k.Category == "" {
		return fmt.Errorf("%w: empty category", ErrInvalidKeyFormat)
	}
	if k.NovelID == "" {
		return fmt.Errorf("%w: empty novel id", ErrInvalidKeyFormat)
	}
	if k.Chapter < NoChapter {
		return fmt.Errorf("%w: chapter %d", ErrInvalidKeyFormat, k.Chapter)
	}

	for _, e := range k.Extra {
		if e == "" {
			return fmt.Errorf("%w: empty extra component", ErrInvalidKeyFormat)
		}
	}
	parts := append([]string{k.Category, k.NovelID}, k.Extra...)
	for _, p := range parts {
		if strings.Contains(p, Delimiter) {
			return fmt.Errorf("%w: component %q contains %q", ErrInvalidKeyFormat, p, Delimiter)
		}
	}
	return nil
}

// String encodes the key as category|novel|chapter|extra...
// A novel-wide key leaves the chapter component empty.
func (k Key) String() string {
	chapter := ""
	if k.HasChapter() {
		chapter = strconv.Itoa(k.Chapter)
	}

	parts := make([]string, 0, 3+len(k.Extra))
	parts = append(parts, k.Category, k.NovelID, chapter)
	parts = append(parts, k.Extra...)
	return strings.Join(parts, Delimiter)
}

// ParseKey decodes a fingerprint produced by Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, Delimiter)
	if len(parts) < 3 {
		return Key{}, fmt.Errorf("%w: %q has %d components, need at least 3", ErrInvalidKeyFormat, s, len(parts))
	}

	k := Key{Category: parts[0], NovelID: parts[1], Chapter: NoChapter}
	if parts[2] != "" {
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 0 {
			return Key{}, fmt.Errorf("%w: chapter component %q", ErrInvalidKeyFormat, parts[2])
		}
		k.Chapter = n
	}
	for _, e := range parts[3:] {
		if e == "" {
			return Key{}, fmt.Errorf("%w: empty extra component in %q", ErrInvalidKeyFormat, s)
		}
		k.Extra = append(k.Extra, e)
	}

	if err := k.Valid(); err != nil {
		return Key{}, err
	}
	return k, nil
}
