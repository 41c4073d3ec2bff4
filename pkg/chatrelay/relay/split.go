package relay

import "unicode/utf8"

// DefaultMessageLimit is the largest message Discord accepts, in characters.
const DefaultMessageLimit = 2000

// SplitMessage cuts text into consecutive chunks of at most limit runes.
// Concatenating the chunks yields the original text.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := 0
	start := 0
	for i := range text {
		if runes == limit {
			chunks = append(chunks, text[start:i])
			start = i
			runes = 0
		}
		runes++
	}
	return append(chunks, text[start:])
}
