// Package analysis provides text tokenisation for the index build path.
// An Analyzer turns a document's text into a list of Tokens carrying the
// term text and the token's positional index within the document.
package analysis

import "strings"

// Token represents a single normalised term and its position in the
// original text. Position is the 0-based index of the token among the
// tokens the analyzer emitted for the document.
type Token struct {
	Term     string
	Position int
}

// Analyzer converts document text into tokens. Implementations must skip
// tokens whose text is empty or contains embedded NUL bytes; downstream
// stages store terms NUL-terminated.
type Analyzer interface {
	Analyze(text string) []Token
}

// valid reports whether a term may enter the index.
func valid(term string) bool {
	return term != "" && !strings.ContainsRune(term, 0)
}
