package tokenize

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// WordPrefix starts every lexical concept identifier.
const WordPrefix = "Word_"

// Token is one input word with its part-of-speech tag.
type Token struct {
	Text    string
	Tag     string
	Concept string
}

// Tokenize splits text into lexical concept identifiers ("Word_<lower>").
// Punctuation is dropped.
func Tokenize(text string) ([]string, error) {
	toks, err := Analyze(text)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(toks))
	for i, tok := range toks {
		out[i] = tok.Concept
	}
	return out, nil
}

// Analyze tokenizes and tags text using prose.
func Analyze(text string) ([]Token, error) {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize: %w", err)
	}

	var out []Token
	for _, tok := range doc.Tokens() {
		if !isWord(tok.Text) {
			continue
		}
		out = append(out, Token{
			Text:    tok.Text,
			Tag:     tok.Tag,
			Concept: Concept(tok.Text),
		})
	}
	return out, nil
}

// Concept returns the lexical concept identifier of a single word.
func Concept(word string) string {
	return WordPrefix + strings.ToLower(word)
}

// Word strips the lexical prefix from a concept identifier.
func Word(concept string) (string, bool) {
	return strings.CutPrefix(concept, WordPrefix)
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
