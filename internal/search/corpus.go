package search

import (
	"fmt"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
)

// CorpusOptions tunes FitCorpus.
type CorpusOptions struct {
	MaxFeatures int
	GenreWeight float64
}

// Model is the result of fitting a corpus: the combined feature matrix plus
// the fitted state needed to vectorize new text against it.
type Model struct {
	Features   *matrix.CSR
	Vectorizer *TFIDFVectorizer
	Genres     *GenreEncoder
}

// Vocabulary is shorthand for m.Vectorizer.Vocabulary().
func (m *Model) Vocabulary() map[string]int {
	return m.Vectorizer.Vocabulary()
}

// IDF is shorthand for m.Vectorizer.IDF().
func (m *Model) IDF() map[string]float64 {
	return m.Vectorizer.IDF()
}

// FitCorpus fits TF-IDF over docs, appends genre indicator columns and
// L2-normalizes every combined row. docs[i] and genres[i] describe the same
// movie.
func FitCorpus(docs []string, genres [][]string, opts CorpusOptions) (*Model, error) {
	if len(docs) != len(genres) {
		return nil, fmt.Errorf("%w: %d documents but %d genre lists", matrix.ErrShapeMismatch, len(docs), len(genres))
	}

	vectorizer := NewTFIDFVectorizer(opts.MaxFeatures)
	tfidf, err := vectorizer.FitTransform(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to fit tf-idf: %w", err)
	}

	encoder := NewGenreEncoder(opts.GenreWeight)
	features, err := Combine(tfidf, encoder.FitTransform(genres))
	if err != nil {
		return nil, err
	}

	return &Model{
		Features:   features,
		Vectorizer: vectorizer,
		Genres:     encoder,
	}, nil
}

// FitDocuments is FitCorpus over a slice of Documents.
func FitDocuments(docs []Document, opts CorpusOptions) (*Model, error) {
	texts := make([]string, len(docs))
	genres := make([][]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Overview
		genres[i] = d.Genres
	}
	return FitCorpus(texts, genres, opts)
}

// Combine places the genre columns after the text columns and normalizes
// each row.
func Combine(tfidf, genres *matrix.CSR) (*matrix.CSR, error) {
	stacked, err := matrix.HStack(tfidf, genres)
	if err != nil {
		return nil, fmt.Errorf("failed to combine features: %w", err)
	}
	return stacked.NormalizeRows(), nil
}
