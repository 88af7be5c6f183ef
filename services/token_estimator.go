package services

import "unicode/utf8"

// EstimateTokens approximates the quota cost of a piece of text: one token per
// four characters, rounded up. This is a deterministic heuristic, not a real
// tokenizer; the only guarantees are determinism and monotonicity in length.
func EstimateTokens(text string) int {
	count := utf8.RuneCountInString(text)
	return (count + 3) / 4
}
