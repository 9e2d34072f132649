// Package lexical implements the Lexical Index: a BM25 sparse index over
// tokenized chunk text. Grounded on the teacher's internal/mcp/exact_searcher.go
// bleve usage, generalized with a custom identifier-aware analyzer per
// spec §4.8 (camelCase/snake_case subtoken splitting) and a hand-rolled
// BM25 scorer so the k1/b constants match the spec's calibration exactly.
package lexical

import (
	"regexp"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	bleveregexp "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
)

// identifierPattern keeps underscore-joined identifiers together, the
// tokenizer-level half of "split on non-identifier characters, preserve
// underscore-joined identifiers".
var identifierPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// subtokenFilter additionally emits camelCase/snake_case subtokens
// alongside each original term, so a query for "Client" matches a chunk
// containing only "HTTPClient" or "http_client".
type subtokenFilter struct{}

func (subtokenFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		out = append(out, tok)
		for _, sub := range splitIdentifier(string(tok.Term)) {
			if sub == string(tok.Term) {
				continue
			}
			out = append(out, &analysis.Token{
				Term:     []byte(sub),
				Start:    tok.Start,
				End:      tok.End,
				Position: tok.Position,
				Type:     tok.Type,
			})
		}
	}
	return out
}

// splitIdentifier splits s on underscores, then each underscore-delimited
// part at camelCase/acronym/digit boundaries.
func splitIdentifier(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '_' {
			if i > start {
				out = append(out, camelSplit(s[start:i])...)
			}
			start = i + 1
		}
	}
	return out
}

func camelSplit(s string) []string {
	runes := []rune(s)
	if len(runes) == 0 {
		return nil
	}
	var words []string
	wordStart := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		switch {
		case unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			boundary = true
		case unicode.IsUpper(cur) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			boundary = true // acronym followed by a new capitalized word, e.g. HTTPServer -> HTTP, Server
		case unicode.IsDigit(cur) != unicode.IsDigit(prev):
			boundary = true
		}
		if boundary {
			words = append(words, string(runes[wordStart:i]))
			wordStart = i
		}
	}
	words = append(words, string(runes[wordStart:]))
	return words
}

// newAnalyzer builds the identifier-aware analyzer: tokenize on identifier
// runs, split subtokens while case information is still available, then
// lowercase everything.
func newAnalyzer() *analysis.DefaultAnalyzer {
	return &analysis.DefaultAnalyzer{
		Tokenizer: bleveregexp.NewRegexpTokenizer(identifierPattern),
		TokenFilters: []analysis.TokenFilter{
			subtokenFilter{},
			lowercase.NewLowerCaseFilter(),
		},
	}
}

// tokenize returns the lowercased terms (including subtokens) for text.
func tokenize(az *analysis.DefaultAnalyzer, text string) []string {
	stream := az.Analyze([]byte(text))
	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}
