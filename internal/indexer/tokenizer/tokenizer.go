// Package tokenizer turns raw page text into the normalized terms the word
// level is keyed by. Text is lowercased, split on any rune that is not a
// letter or digit, filtered against a small English stop list, and reduced
// with a suffix-stripping stemmer. Queries and documents must go through the
// same normalization or their term hashes will never meet.
package tokenizer

import (
	"strings"
	"unicode"
)

// minTermLen drops single-character fragments left over from splitting.
const minTermLen = 2

var stopList = buildStopList(
	"a an and are as at be by for from has he in is it its of on or " +
		"that the to was were will with this but they have had what when " +
		"where who which their if each do not no so can")

func buildStopList(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(words) {
		set[word] = struct{}{}
	}
	return set
}

// Token is one normalized term and its ordinal among the kept terms.
type Token struct {
	Term     string
	Position int
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Tokenize normalizes text into stemmed terms. Positions number the kept
// terms, so dropped stop words and short fragments leave no gaps.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), isBoundary)
	tokens := make([]Token, 0, len(words)/2)
	for _, word := range words {
		if len(word) < minTermLen {
			continue
		}
		if _, stop := stopList[word]; stop {
			continue
		}
		term := stem(word)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{Term: term, Position: len(tokens)})
	}
	return tokens
}

// TokenizeURL normalizes a URL into the same term space as page text: the
// scheme and a leading www label are noise, the remaining host labels and
// path segments tokenize like words.
func TokenizeURL(raw string) []Token {
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	raw = strings.TrimPrefix(raw, "www.")
	return Tokenize(raw)
}

// suffixRule rewrites one word ending. A rule whose output would be shorter
// than keepAtLeast does not fire and scanning continues with the next rule.
type suffixRule struct {
	ending      string
	stemmed     string
	keepAtLeast int
}

// suffixRules are tried in order; the first rule that fires wins. The bare
// "ss" entry keeps the final plural rule off words like "less".
var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		if !strings.HasSuffix(word, rule.ending) {
			continue
		}
		out := word[:len(word)-len(rule.ending)] + rule.stemmed
		if len(out) >= rule.keepAtLeast {
			return out
		}
	}
	return word
}
