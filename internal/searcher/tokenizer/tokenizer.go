// Package tokenizer splits catalog text into lower-cased words. It keeps
// underscores inside words so identifiers such as "split_lines" stay whole,
// and drops stop-words and single characters.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "with": {}, "this": {},
	"but": {}, "if": {}, "each": {}, "do": {}, "not": {}, "no": {},
	"so": {}, "can": {}, "one": {}, "all": {}, "any": {}, "than": {},
}

// Token is a single normalized word and its position among kept words.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lower-cased tokens with stop-words removed.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		word = strings.Trim(word, "_")
		if len(word) < 2 {
			continue
		}
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: len(tokens),
		})
	}
	return tokens
}

// Terms returns only the terms of Tokenize(text).
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
