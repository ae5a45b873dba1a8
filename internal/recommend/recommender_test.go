package recommend_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
	"github.com/S-Sanjai/Movie-Match/internal/recommend"
	"github.com/S-Sanjai/Movie-Match/internal/search"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

var catalog = []storage.Movie{
	{ID: 27205, Title: "Inception", Overview: "A thief steals corporate secrets through dream sharing technology.", Genres: []string{"Action", "Science Fiction"}},
	{ID: 11324, Title: "Shutter Island", Overview: "A detective investigates a psychiatric facility on a remote island.", Genres: []string{"Mystery", "Thriller"}},
	{ID: 157336, Title: "Interstellar", Overview: "Explorers travel through a wormhole in space to save humanity.", Genres: []string{"Science Fiction", "Drama"}},
	{ID: 1124, Title: "The Prestige", Overview: "Two rival magicians steal each other's secrets.", Genres: []string{"Mystery", "Drama"}},
	{ID: 77, Title: "Memento", Overview: "A man with memory loss hunts the killer of his wife.", Genres: []string{"Mystery", "Thriller"}},
	{ID: 9999, Title: "Blank", Overview: "", Genres: nil},
}

func fitted(t *testing.T) *recommend.Recommender {
	t.Helper()
	docs := make([]search.Document, len(catalog))
	for i, m := range catalog {
		docs[i] = search.Document{ID: m.ID, Title: m.Title, Overview: m.Overview, Genres: m.Genres}
	}
	model, err := search.FitDocuments(docs, search.CorpusOptions{})
	require.NoError(t, err)

	r, err := recommend.New(catalog, model.Features, 3, quietLogger())
	require.NoError(t, err)
	return r
}

func TestMovieDetails_CaseInsensitive(t *testing.T) {
	r := fitted(t)

	upper, err := r.MovieDetails("INCEPTION")
	require.NoError(t, err)
	lower, err := r.MovieDetails("inception")
	require.NoError(t, err)

	assert.Equal(t, upper, lower)
	assert.Equal(t, 27205, upper.ID)
	assert.Equal(t, "Inception", upper.Title)
}

func TestMovieDetails_FirstMatchWins(t *testing.T) {
	movies := []storage.Movie{{ID: 1, Title: "Heat"}, {ID: 2, Title: "HEAT"}}
	b := matrix.NewBuilder(1)
	b.AddRow(map[int]float64{0: 1})
	b.AddRow(map[int]float64{0: 1})

	r, err := recommend.New(movies, b.Build(), 0, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, recommend.DefaultK, r.K())

	m, err := r.MovieDetails("heat")
	require.NoError(t, err)
	assert.Equal(t, 1, m.ID)
}

func TestNotFound(t *testing.T) {
	r := fitted(t)

	_, err := r.MovieDetails("Nonexistent Movie XYZ")
	assert.ErrorIs(t, err, recommend.ErrNotFound)

	recs, err := r.Recommendations("Nonexistent Movie XYZ", 5)
	assert.ErrorIs(t, err, recommend.ErrNotFound)
	assert.Nil(t, recs)

	_, err = r.MovieByID(-1)
	assert.ErrorIs(t, err, recommend.ErrNotFound)

	_, err = r.RecommendationsByID(-1, 5)
	assert.ErrorIs(t, err, recommend.ErrNotFound)
}

func TestRecommendations_ExcludesQueryAndIsOrdered(t *testing.T) {
	r := fitted(t)

	for _, m := range catalog {
		recs, err := r.Recommendations(m.Title, 0)
		require.NoError(t, err)
		assert.Len(t, recs, r.K())

		for i, rec := range recs {
			assert.NotEqual(t, m.ID, rec.ID, "query %q returned itself", m.Title)
			if i > 0 {
				assert.GreaterOrEqual(t, recs[i-1].Similarity, rec.Similarity)
			}
		}
	}
}

func TestRecommendations_SharedGenresRankFirst(t *testing.T) {
	r := fitted(t)

	recs, err := r.Recommendations("Shutter Island", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Memento", recs[0].Title)
	assert.Greater(t, recs[0].Similarity, 0.0)
}

func TestRecommendations_ExactScores(t *testing.T) {
	movies := []storage.Movie{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}, {ID: 3, Title: "C"}, {ID: 4, Title: "D"}}
	b := matrix.NewBuilder(2)
	b.AddRow(map[int]float64{0: 1})
	b.AddRow(map[int]float64{1: 1})
	b.AddRow(map[int]float64{0: 0.6, 1: 0.8})
	b.AddRow(map[int]float64{0: 1})

	r, err := recommend.New(movies, b.Build(), 5, quietLogger())
	require.NoError(t, err)

	recs, err := r.Recommendations("a", 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, 4, recs[0].ID)
	assert.InDelta(t, 1.0, recs[0].Similarity, 1e-9)
	assert.Equal(t, 3, recs[1].ID)
	assert.InDelta(t, 0.6, recs[1].Similarity, 1e-9)
	assert.Equal(t, 2, recs[2].ID)
	assert.Equal(t, 0.0, recs[2].Similarity)

	byID, err := r.RecommendationsByID(1, 10)
	require.NoError(t, err)
	assert.Equal(t, recs, byID)
}

func TestRecommendations_ZeroRowsDegradeToZero(t *testing.T) {
	r := fitted(t)

	recs, err := r.Recommendations("Blank", 10)
	require.NoError(t, err)
	assert.Len(t, recs, len(catalog)-1)
	for _, rec := range recs {
		assert.Equal(t, 0.0, rec.Similarity)
	}
	// ties keep row order
	assert.Equal(t, "Inception", recs[0].Title)
}

func TestRecommendations_SingleMovie(t *testing.T) {
	b := matrix.NewBuilder(1)
	b.AddRow(map[int]float64{0: 1})
	r, err := recommend.New([]storage.Movie{{ID: 1, Title: "Solo"}}, b.Build(), 5, quietLogger())
	require.NoError(t, err)

	recs, err := r.Recommendations("solo", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNew_ShapeMismatch(t *testing.T) {
	b := matrix.NewBuilder(1)
	b.AddRow(map[int]float64{0: 1})

	_, err := recommend.New(catalog, b.Build(), 5, quietLogger())
	assert.ErrorIs(t, err, recommend.ErrShapeMismatch)
	assert.ErrorIs(t, err, matrix.ErrShapeMismatch)

	_, err = recommend.New(catalog, nil, 5, quietLogger())
	assert.ErrorIs(t, err, recommend.ErrShapeMismatch)
}

func TestSimilar(t *testing.T) {
	docs := make([]string, len(catalog))
	genres := make([][]string, len(catalog))
	for i, m := range catalog {
		docs[i] = m.Overview
		genres[i] = m.Genres
	}
	model, err := search.FitCorpus(docs, genres, search.CorpusOptions{})
	require.NoError(t, err)

	r, err := recommend.New(catalog, model.Features, 3, quietLogger())
	require.NoError(t, err)

	query, err := model.Vectorizer.TransformOne("a wormhole through space")
	require.NoError(t, err)

	recs, err := r.Similar(query, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Interstellar", recs[0].Title)

	_, err = r.Similar(matrix.Vector{Indices: []int{r.Cols()}, Values: []float64{1}}, 2)
	assert.ErrorIs(t, err, recommend.ErrShapeMismatch)
}

func TestSearchTitles(t *testing.T) {
	r := fitted(t)

	assert.Equal(t, []string{"Interstellar"}, titles(r.SearchTitles("STELLAR", 5)))
	assert.Equal(t, []string{"Inception", "Shutter Island"}, titles(r.SearchTitles("t", 2)))
	assert.Empty(t, r.SearchTitles("  ", 5))
}

func titles(movies []storage.Movie) []string {
	out := make([]string, len(movies))
	for i, m := range movies {
		out[i] = m.Title
	}
	return out
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "movies.csv")
	matPath := filepath.Join(dir, "features.bin")

	b := matrix.NewBuilder(2)
	b.AddRow(map[int]float64{0: 1})
	b.AddRow(map[int]float64{0: 0.6, 1: 0.8})
	b.AddRow(map[int]float64{1: 1})

	movies := []storage.Movie{{ID: 1, Title: "One"}, {ID: 2, Title: "Two"}, {ID: 3, Title: "Three"}}

	f, err := os.Create(metaPath)
	require.NoError(t, err)
	require.NoError(t, storage.WriteMetadata(f, movies))
	require.NoError(t, f.Close())

	f, err = os.Create(matPath)
	require.NoError(t, err)
	require.NoError(t, matrix.Encode(f, b.Build(), uuid.New()))
	require.NoError(t, f.Close())

	r, err := recommend.Load(metaPath, matPath, 1, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	recs, err := r.Recommendations("ONE", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Two", recs[0].Title)

	_, err = recommend.Load(filepath.Join(dir, "missing.csv"), matPath, 1, quietLogger())
	assert.Error(t, err)
}

func TestRecommendations_KBeyondCorpus(t *testing.T) {
	r := fitted(t)

	recs, err := r.Recommendations("Inception", math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, recs, len(catalog)-1)
	for _, rec := range recs {
		assert.NotEqual(t, "Inception", rec.Title)
	}

	recs, err = r.RecommendationsByID(77, 1<<40)
	require.NoError(t, err)
	assert.Len(t, recs, len(catalog)-1)

	all, err := r.Similar(matrix.Vector{}, math.MaxInt)
	require.NoError(t, err)
	assert.Len(t, all, len(catalog))
}

func TestRecommendations_CarryRankedRow(t *testing.T) {
	r := fitted(t)

	recs, err := r.Recommendations("Shutter Island", 0)
	require.NoError(t, err)
	for _, rec := range recs {
		assert.Equal(t, rec.ID, r.MovieAt(rec.Row).ID)
		assert.Equal(t, rec.Title, r.MovieAt(rec.Row).Title)
	}
}
