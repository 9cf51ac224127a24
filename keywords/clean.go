package keywords

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxKeywordLength is the longest keyword accepted, in runes.
const MaxKeywordLength = 100

const forbiddenChars = "<>\"'&\n\r\t"

// CleanKeyword validates a raw keyword and collapses internal whitespace.
func CleanKeyword(raw string) (string, error) {
	keyword := strings.TrimSpace(raw)
	if keyword == "" {
		return "", fmt.Errorf("keyword is empty")
	}
	if n := utf8.RuneCountInString(keyword); n > MaxKeywordLength {
		return "", fmt.Errorf("keyword has %d characters, limit is %d", n, MaxKeywordLength)
	}
	if i := strings.IndexAny(keyword, forbiddenChars); i >= 0 {
		return "", fmt.Errorf("keyword contains forbidden character %q", keyword[i])
	}
	return strings.Join(strings.Fields(keyword), " "), nil
}
