package loader

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type token struct {
	text   string
	quoted bool
}

// splitOperation splits a compact operation into whitespace separated tokens.
// Double-quoted tokens are unquoted with Go string literal rules.
func splitOperation(s string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(s) {
		r := rune(s[i])
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '"':
			end := closingQuote(s, i)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string starting at column %d", i+1)
			}
			text, err := strconv.Unquote(s[i : end+1])
			if err != nil {
				return nil, fmt.Errorf("invalid string %s: %w", s[i:end+1], err)
			}
			tokens = append(tokens, token{text: text, quoted: true})
			i = end + 1
		default:
			end := strings.IndexFunc(s[i:], unicode.IsSpace)
			if end < 0 {
				end = len(s)
			} else {
				end += i
			}
			if q := strings.IndexByte(s[i:end], '"'); q >= 0 {
				return nil, fmt.Errorf("unexpected quote in %q", s[i:end])
			}
			tokens = append(tokens, token{text: s[i:end]})
			i = end
		}
	}
	return tokens, nil
}

// closingQuote returns the index of the quote closing the string that opens
// at s[start], or -1.
func closingQuote(s string, start int) int {
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
