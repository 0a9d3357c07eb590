package analysis

import (
	"strings"
	"unicode"
)

// StandardAnalyzer lower-cases input and splits on non-alphanumeric
// boundaries. Every token is kept; positions count emitted tokens from 0.
type StandardAnalyzer struct{}

// NewStandardAnalyzer returns the default analyzer used by the inverter.
func NewStandardAnalyzer() *StandardAnalyzer {
	return &StandardAnalyzer{}
}

// Analyze implements Analyzer.
func (a *StandardAnalyzer) Analyze(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if !valid(word) {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}
