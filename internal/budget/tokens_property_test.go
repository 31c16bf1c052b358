package budget

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// genStoryText mixes latin words, CJK runs and whitespace.
func genStoryText(t *rapid.T) string {
	parts := rapid.SliceOfN(rapid.SampledFrom([]string{
		"the", "duel", "river", "oath", "剑", "江湖", "約束", "마법", " ", "\n", "word,",
	}), 0, 300).Draw(t, "parts")

	var b strings.Builder
	for i, p := range parts {
		if i > 0 && rapid.Bool().Draw(t, "space") {
			b.WriteString(" ")
		}
		b.WriteString(p)
	}
	return b.String()
}

func TestProperty_EstimateTokensDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")

		if EstimateTokens(text) != EstimateTokens(text) {
			t.Fatal("estimate differs between calls")
		}
		if EstimateTokens(text) < 0 {
			t.Fatal("estimate is negative")
		}
	})
}

func TestProperty_EstimateTokensMonotonicUnderAppend(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genStoryText(t)
		b := genStoryText(t)

		if EstimateTokens(a+" "+b) < EstimateTokens(a) {
			t.Fatalf("appending text lowered the estimate")
		}
	})
}

func TestProperty_TruncateIdentityWithinBudget(t *testing.T) {
	p := DefaultPolicy()

	rapid.Check(t, func(t *rapid.T) {
		text := genStoryText(t)
		slack := rapid.IntRange(0, 100).Draw(t, "slack")

		if got := p.Truncate(text, EstimateTokens(text)+slack); got != text {
			t.Fatalf("text within budget was changed")
		}
	})
}

func TestProperty_TruncateShortensAndKeepsPrefix(t *testing.T) {
	p := DefaultPolicy()

	rapid.Check(t, func(t *rapid.T) {
		text := genStoryText(t)
		estimated := EstimateTokens(text)
		if estimated < 2 {
			return
		}
		maxTokens := rapid.IntRange(1, estimated-1).Draw(t, "maxTokens")

		got := p.Truncate(text, maxTokens)

		if len(got) >= len(text) {
			t.Fatalf("expected shorter result: %d >= %d", len(got), len(text))
		}
		if !strings.HasPrefix(text, strings.TrimSuffix(got, TruncationMarker)) {
			t.Fatalf("result does not start with a prefix of the input")
		}
	})
}
