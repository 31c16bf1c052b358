package cache

import (
	"errors"
	"reflect"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "chapter scoped",
			key:  NewKey("events", "novel-1", 12),
			want: "events|novel-1|12",
		},
		{
			name: "with extras",
			key:  NewKey("events", "novel-1", 3, "pov=Lin", "focus=duel"),
			want: "events|novel-1|3|pov=Lin|focus=duel",
		},
		{
			name: "empty extras dropped",
			key:  NewKey("events", "novel-1", 3, "", "pov=Lin"),
			want: "events|novel-1|3|pov=Lin",
		},
		{
			name: "novel wide",
			key:  NovelKey("settings", "novel-1"),
			want: "settings|novel-1|",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseKey_RoundTrip(t *testing.T) {
	keys := []Key{
		NewKey("events", "n", 0),
		NewKey("foreshadows", "n", 42, "pov=Ada"),
		NovelKey("settings", "n"),
	}

	for _, k := range keys {
		got, err := ParseKey(k.String())
		if err != nil {
			t.Fatalf("ParseKey(%q) failed: %v", k.String(), err)
		}
		if !reflect.DeepEqual(got, k) {
			t.Errorf("round trip mismatch: %+v vs %+v", got, k)
		}
	}
}

func TestParseKey_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"events",
		"events|novel",
		"events|novel|abc",
		"events|novel|-4",
		"|novel|3",
		"events||3",
		"events|novel|3||pov",
	}

	for _, in := range inputs {
		if _, err := ParseKey(in); !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("ParseKey(%q): expected ErrInvalidKeyFormat, got %v", in, err)
		}
	}
}

func TestKey_ValidRejectsDelimiter(t *testing.T) {
	k := NewKey("events", "novel|2", 1)

	if err := k.Valid(); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
	}
}

func TestKey_ValidRejectsEmptyExtra(t *testing.T) {
	k := Key{Category: "events", NovelID: "n1", Chapter: 3, Extra: []string{""}}

	if err := k.Valid(); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("expected ErrInvalidKeyFormat, got %v", err)
	}
	if _, err := ParseKey(k.String()); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("expected ParseKey to reject %q, got %v", k.String(), err)
	}

	// every valid key round-trips
	ok := Key{Category: "events", NovelID: "n1", Chapter: 3, Extra: []string{"pov=Lin"}}
	if err := ok.Valid(); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseKey(ok.String()); err != nil {
		t.Errorf("round trip failed: %v", err)
	}
}
