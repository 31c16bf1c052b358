package budget

import "unicode"

// TruncationMarker is appended to text shortened by Truncate.
const TruncationMarker = "\n...(truncated)"

// truncationSafetyMargin shaves the proportional cut so that the kept prefix
// plus the marker lands under the ceiling.
const truncationSafetyMargin = 0.10

// EstimateTokens approximates the model token count of text: CJK characters
// weigh 1.5 tokens and other whitespace-delimited words weigh 1.3 tokens.
// The result is floored and computed in integer arithmetic, so the same input
// always yields the same count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	cjk, words := 0, 0
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			cjk++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		default:
			if !inWord {
				words++
				inWord = true
			}
		}
	}
	return (cjk*15 + words*13) / 10
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Truncate shortens text to fit maxTokens, keeping the opening of the text.
// Text already within budget, empty text, and any text when smart truncation
// is disabled are returned unchanged.
func (p Policy) Truncate(text string, maxTokens int) string {
	if text == "" || !p.SmartTruncation {
		return text
	}
	estimated := EstimateTokens(text)
	if estimated <= maxTokens {
		return text
	}
	if maxTokens < 0 {
		maxTokens = 0
	}

	runes := []rune(text)
	ratio := float64(maxTokens) / float64(estimated) * (1 - truncationSafetyMargin)
	keep := int(float64(len(runes)) * ratio)
	if keep < 0 {
		keep = 0
	}
	if keep > len(runes) {
		keep = len(runes)
	}

	// The proportional cut is an estimate; uneven text (dense CJK at the
	// front, sparse words at the back) can still land over the ceiling.
	markerTokens := EstimateTokens(TruncationMarker)
	for keep > 0 && EstimateTokens(string(runes[:keep]))+markerTokens > maxTokens {
		keep = keep * 9 / 10
	}

	prefix := string(runes[:keep])
	if len(prefix)+len(TruncationMarker) < len(text) {
		return prefix + TruncationMarker
	}
	return prefix
}
