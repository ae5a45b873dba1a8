package search

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
)

// ErrNotFitted is returned by Transform on a vectorizer that was never fitted.
var ErrNotFitted = errors.New("vectorizer needs to be fitted before transform")

// Vectorizer turns a corpus of raw documents into a sparse feature matrix
type Vectorizer interface {
	FitTransform(docs []string) (*matrix.CSR, error)
	Transform(docs []string) (*matrix.CSR, error)
}

// TFIDFVectorizer implements Term Frequency - Inverse Document Frequency
// with smoothed IDF and L2-normalized rows.
//
// Vocabulary order is the order of first appearance in the fitting corpus.
// When MaxFeatures is positive only the MaxFeatures highest-IDF terms are
// kept, ranked by IDF descending and then by term ascending, and the
// vocabulary follows that ranking.
type TFIDFVectorizer struct {
	MaxFeatures int

	vocabulary map[string]int
	terms      []string
	idf        []float64
	fitted     bool
}

func NewTFIDFVectorizer(maxFeatures int) *TFIDFVectorizer {
	return &TFIDFVectorizer{MaxFeatures: maxFeatures}
}

// NewFittedVectorizer restores a vectorizer from a persisted vocabulary.
// terms[i] is column i and idf[i] its weight.
func NewFittedVectorizer(terms []string, idf []float64) (*TFIDFVectorizer, error) {
	if len(terms) != len(idf) {
		return nil, fmt.Errorf("%w: %d terms with %d idf values", matrix.ErrShapeMismatch, len(terms), len(idf))
	}
	v := &TFIDFVectorizer{
		vocabulary: make(map[string]int, len(terms)),
		terms:      append([]string(nil), terms...),
		idf:        append([]float64(nil), idf...),
		fitted:     true,
	}
	for i, term := range terms {
		if _, dup := v.vocabulary[term]; dup {
			return nil, fmt.Errorf("duplicate vocabulary term %q", term)
		}
		if !(idf[i] > 0) {
			return nil, fmt.Errorf("term %q has non-positive idf %v", term, idf[i])
		}
		v.vocabulary[term] = i
	}
	return v, nil
}

// SmoothIDF is ln((N+1)/(df+1)) + 1. It is at least 1 whenever df <= N.
func SmoothIDF(numDocs, docFreq int) float64 {
	return math.Log(float64(numDocs+1)/float64(docFreq+1)) + 1
}

// FitTransform learns the vocabulary and IDF from docs and returns their
// TF-IDF matrix. Refitting replaces any previous state.
func (v *TFIDFVectorizer) FitTransform(docs []string) (*matrix.CSR, error) {
	processed := make([][]string, len(docs))
	for i, doc := range docs {
		processed[i] = Tokenize(doc)
	}
	v.fit(processed)
	return v.transformTokens(processed), nil
}

// Transform applies the fitted vocabulary and IDF to new documents.
func (v *TFIDFVectorizer) Transform(docs []string) (*matrix.CSR, error) {
	if !v.fitted {
		return nil, ErrNotFitted
	}
	processed := make([][]string, len(docs))
	for i, doc := range docs {
		processed[i] = Tokenize(doc)
	}
	return v.transformTokens(processed), nil
}

// TransformOne vectorizes a single text, e.g. a free-text query.
func (v *TFIDFVectorizer) TransformOne(text string) (matrix.Vector, error) {
	m, err := v.Transform([]string{text})
	if err != nil {
		return matrix.Vector{}, err
	}
	return m.Row(0), nil
}

func (v *TFIDFVectorizer) fit(docs [][]string) {
	// document frequency, counted once per document
	docFreq := make(map[string]int)
	var order []string
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, token := range doc {
			if seen[token] {
				continue
			}
			seen[token] = true
			if docFreq[token] == 0 {
				order = append(order, token)
			}
			docFreq[token]++
		}
	}

	idf := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		idf[term] = SmoothIDF(len(docs), df)
	}

	terms := order
	if v.MaxFeatures > 0 {
		terms = append([]string(nil), order...)
		sort.SliceStable(terms, func(i, j int) bool {
			a, b := idf[terms[i]], idf[terms[j]]
			if a != b {
				return a > b
			}
			return terms[i] < terms[j]
		})
		if len(terms) > v.MaxFeatures {
			terms = terms[:v.MaxFeatures]
		}
	}

	v.terms = terms
	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = idf[term]
	}
	v.fitted = true
}

func (v *TFIDFVectorizer) transformTokens(docs [][]string) *matrix.CSR {
	b := matrix.NewBuilder(len(v.terms))
	for _, doc := range docs {
		row := make(map[int]float64)
		for term, tf := range TermFrequency(doc) {
			if col, ok := v.vocabulary[term]; ok {
				row[col] = tf * v.idf[col]
			}
		}
		b.AddRow(row)
	}
	return b.Build().NormalizeRows()
}

// Fitted reports whether the vocabulary and IDF have been learned.
func (v *TFIDFVectorizer) Fitted() bool {
	return v.fitted
}

// Terms returns the vocabulary in column order.
func (v *TFIDFVectorizer) Terms() []string {
	return append([]string(nil), v.terms...)
}

// IDFValues returns the IDF weights in column order.
func (v *TFIDFVectorizer) IDFValues() []float64 {
	return append([]float64(nil), v.idf...)
}

// Vocabulary returns a copy of the term -> column mapping.
func (v *TFIDFVectorizer) Vocabulary() map[string]int {
	out := make(map[string]int, len(v.vocabulary))
	for term, col := range v.vocabulary {
		out[term] = col
	}
	return out
}

// IDF returns a copy of the term -> IDF mapping.
func (v *TFIDFVectorizer) IDF() map[string]float64 {
	out := make(map[string]float64, len(v.terms))
	for i, term := range v.terms {
		out[term] = v.idf[i]
	}
	return out
}
