package search

import (
	"sort"
	"strings"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
)

// GenreEncoder produces one indicator column per distinct genre.
type GenreEncoder struct {
	Weight float64

	columns []string
	index   map[string]int
}

// NewGenreEncoder returns an encoder whose indicator value is weight
// (1 when weight is not positive).
func NewGenreEncoder(weight float64) *GenreEncoder {
	if weight <= 0 {
		weight = 1
	}
	return &GenreEncoder{Weight: weight}
}

// NewFittedGenreEncoder restores an encoder from persisted columns.
func NewFittedGenreEncoder(columns []string, weight float64) *GenreEncoder {
	e := NewGenreEncoder(weight)
	e.setColumns(append([]string(nil), columns...))
	return e
}

func normalizeGenre(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}

// Fit collects the distinct case-folded genres, sorted ascending.
func (e *GenreEncoder) Fit(genres [][]string) {
	seen := make(map[string]bool)
	var columns []string
	for _, list := range genres {
		for _, g := range list {
			name := normalizeGenre(g)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			columns = append(columns, name)
		}
	}
	sort.Strings(columns)
	e.setColumns(columns)
}

func (e *GenreEncoder) setColumns(columns []string) {
	e.columns = columns
	e.index = make(map[string]int, len(columns))
	for i, name := range columns {
		e.index[name] = i
	}
}

// Transform encodes each movie's genres. Unknown genres are ignored.
func (e *GenreEncoder) Transform(genres [][]string) *matrix.CSR {
	b := matrix.NewBuilder(len(e.columns))
	for _, list := range genres {
		row := make(map[int]float64, len(list))
		for _, g := range list {
			if col, ok := e.index[normalizeGenre(g)]; ok {
				row[col] = e.Weight
			}
		}
		b.AddRow(row)
	}
	return b.Build()
}

func (e *GenreEncoder) FitTransform(genres [][]string) *matrix.CSR {
	e.Fit(genres)
	return e.Transform(genres)
}

// Columns returns the genre names in column order.
func (e *GenreEncoder) Columns() []string {
	return append([]string(nil), e.columns...)
}
