package recommend

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

// DefaultK is the number of recommendations returned when no k is given.
const DefaultK = 5

// epsilon keeps the cosine denominator non-zero for all-zero rows.
const epsilon = 1e-10

var (
	// ErrNotFound is returned when a title or id has no row in the metadata.
	ErrNotFound = errors.New("movie not found")
	// ErrShapeMismatch is returned when metadata and matrix disagree on rows
	// or a query vector does not fit the matrix columns.
	ErrShapeMismatch = matrix.ErrShapeMismatch
)

// Recommendation is a single ranked neighbour.
type Recommendation struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	// Row is the metadata row that was ranked.
	Row int `json:"-"`
}

// Recommender ranks movies by cosine similarity over a fixed feature matrix.
// It is read-only after construction and safe for concurrent use.
type Recommender struct {
	movies     []storage.Movie
	features   *matrix.CSR
	norms      []float64
	titleIndex map[string]int
	idIndex    map[int]int
	k          int
	logger     *logrus.Entry
}

// New builds a Recommender over movies and their feature rows. k is the
// default result size; values below 1 fall back to DefaultK.
func New(movies []storage.Movie, features *matrix.CSR, k int, logger *logrus.Entry) (*Recommender, error) {
	if features == nil {
		return nil, fmt.Errorf("%w: no feature matrix", ErrShapeMismatch)
	}
	if len(movies) != features.Rows {
		return nil, fmt.Errorf("%w: %d movies but %d matrix rows", ErrShapeMismatch, len(movies), features.Rows)
	}
	if k < 1 {
		k = DefaultK
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	r := &Recommender{
		movies:     movies,
		features:   features,
		norms:      features.RowNorms(),
		titleIndex: make(map[string]int, len(movies)),
		idIndex:    make(map[int]int, len(movies)),
		k:          k,
		logger:     logger.WithField("component", "recommender"),
	}
	for i, m := range movies {
		key := foldTitle(m.Title)
		if _, ok := r.titleIndex[key]; !ok {
			r.titleIndex[key] = i
		}
		if _, ok := r.idIndex[m.ID]; !ok {
			r.idIndex[m.ID] = i
		}
	}

	r.logger.WithFields(logrus.Fields{
		"movies":   len(movies),
		"features": features.Cols,
		"nnz":      features.NNZ(),
	}).Info("Recommender ready")

	return r, nil
}

// Load reads a metadata table and a feature matrix from disk.
func Load(metadataPath, matrixPath string, k int, logger *logrus.Entry) (*Recommender, error) {
	movies, err := storage.ReadMetadataFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	features, _, err := storage.ReadMatrixFile(matrixPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature matrix: %w", err)
	}
	return New(movies, features, k, logger)
}

// FromArtifacts builds a Recommender from a verified artifact set.
func FromArtifacts(a *storage.Artifacts, k int, logger *logrus.Entry) (*Recommender, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: no artifacts", ErrShapeMismatch)
	}
	return New(a.Movies, a.Features, k, logger)
}

func foldTitle(title string) string {
	return strings.ToLower(title)
}

// Len returns the number of movies.
func (r *Recommender) Len() int { return len(r.movies) }

// K returns the default result size.
func (r *Recommender) K() int { return r.k }

// MovieAt returns the metadata of row i.
func (r *Recommender) MovieAt(i int) storage.Movie { return r.movies[i] }

// Cols returns the width of the feature matrix.
func (r *Recommender) Cols() int { return r.features.Cols }

func (r *Recommender) indexOf(title string) (int, error) {
	idx, ok := r.titleIndex[foldTitle(title)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, title)
	}
	return idx, nil
}

// MovieDetails finds a movie by case-insensitive exact title. The first row
// wins when titles collide.
func (r *Recommender) MovieDetails(title string) (storage.Movie, error) {
	idx, err := r.indexOf(title)
	if err != nil {
		return storage.Movie{}, err
	}
	return r.movies[idx], nil
}

// MovieByID finds a movie by catalog id.
func (r *Recommender) MovieByID(id int) (storage.Movie, error) {
	idx, ok := r.idIndex[id]
	if !ok {
		return storage.Movie{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r.movies[idx], nil
}

// Recommendations returns the k movies most similar to title, never
// including title itself. k < 1 uses the default.
func (r *Recommender) Recommendations(title string, k int) ([]Recommendation, error) {
	idx, err := r.indexOf(title)
	if err != nil {
		return nil, err
	}
	return r.neighbours(idx, k), nil
}

// RecommendationsByID is Recommendations keyed by catalog id.
func (r *Recommender) RecommendationsByID(id, k int) ([]Recommendation, error) {
	idx, ok := r.idIndex[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r.neighbours(idx, k), nil
}

func (r *Recommender) neighbours(idx, k int) []Recommendation {
	query := r.features.Row(idx)
	return r.rank(query, r.norms[idx], idx, k)
}

// Similar ranks every movie against an arbitrary query vector in the
// matrix column space. Nothing is excluded.
func (r *Recommender) Similar(query matrix.Vector, k int) ([]Recommendation, error) {
	for _, col := range query.Indices {
		if col < 0 || col >= r.features.Cols {
			return nil, fmt.Errorf("%w: column %d outside %d features", ErrShapeMismatch, col, r.features.Cols)
		}
	}
	return r.rank(query, query.Norm(), -1, k), nil
}

func (r *Recommender) rank(query matrix.Vector, queryNorm float64, exclude, k int) []Recommendation {
	if k < 1 {
		k = r.k
	}
	available := len(r.movies)
	if exclude >= 0 {
		available--
	}
	if k > available {
		k = available
	}

	dense := make([]float64, r.features.Cols)
	query.Scatter(dense)

	sims := make([]float64, len(r.movies))
	order := make([]int, len(r.movies))
	for i := range sims {
		sims[i] = r.features.Row(i).Dot(dense) / (r.norms[i]*queryNorm + epsilon)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sims[order[a]] > sims[order[b]]
	})

	results := make([]Recommendation, 0, k)
	for _, i := range order {
		if len(results) == k {
			break
		}
		if i == exclude {
			continue
		}
		results = append(results, Recommendation{
			ID:         r.movies[i].ID,
			Title:      r.movies[i].Title,
			Similarity: sims[i],
			Row:        i,
		})
	}
	return results
}

// SearchTitles returns up to limit movies whose title contains q, ignoring
// case, in row order.
func (r *Recommender) SearchTitles(q string, limit int) []storage.Movie {
	needle := foldTitle(strings.TrimSpace(q))
	if needle == "" || limit < 1 {
		return nil
	}
	var out []storage.Movie
	for _, m := range r.movies {
		if strings.Contains(foldTitle(m.Title), needle) {
			out = append(out, m)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
