package search

import (
	"strings"
	"unicode"
)

// Document is one entry of the corpus supplied to FitCorpus.
type Document struct {
	ID       int
	Title    string
	Overview string
	Genres   []string
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you",
		"your", "yours", "yourself", "yourselves", "he", "him", "his", "himself",
		"she", "her", "hers", "herself", "it", "its", "itself", "they", "them",
		"their", "theirs", "themselves", "what", "which", "who", "whom", "this",
		"that", "these", "those", "am", "is", "are", "was", "were", "be", "been",
		"being", "have", "has", "had", "having", "do", "does", "did", "doing",
		"a", "an", "the", "and", "but", "if", "or", "because", "as", "until",
		"while", "of", "at", "by", "for", "with", "about", "against", "between",
		"into", "through", "during", "before", "after", "above", "below", "to",
		"from", "up", "down", "in", "out", "on", "off", "over", "under", "again",
		"further", "then", "once",
	} {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether the lowercase token is in the English stop list.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Tokenize lowercases text, removes everything that is not an ASCII letter
// or whitespace, splits on whitespace and drops stop words.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))

	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if !IsStopWord(field) {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// TermFrequency returns count/len(tokens) for every distinct token.
func TermFrequency(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	if len(tokens) == 0 {
		return tf
	}
	for _, token := range tokens {
		tf[token]++
	}
	n := float64(len(tokens))
	for token, count := range tf {
		tf[token] = count / n
	}
	return tf
}
