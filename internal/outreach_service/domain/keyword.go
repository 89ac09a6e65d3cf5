package domain

import "unicode"

// SearchKeyword derives the single-token search keyword for a contact display
// name: the longest contiguous run of CJK or digit characters. The console's
// contact search only accepts one contiguous token, so punctuation, emoji and
// latin decorations around the core name have to be stripped.
func SearchKeyword(displayName string) string {
	var best, current []rune
	for _, r := range displayName {
		if isCJKOrDigit(r) {
			current = append(current, r)
			if len(current) > len(best) {
				best = append(best[:0], current...)
			}
		} else {
			current = current[:0]
		}
	}
	if len(best) == 0 {
		return displayName
	}
	return string(best)
}

func isCJKOrDigit(r rune) bool {
	if unicode.IsDigit(r) {
		return true
	}
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
