package storage_test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

func sampleArtifacts() *storage.Artifacts {
	b := matrix.NewBuilder(3)
	b.AddRow(map[int]float64{0: 0.6, 2: 0.8})
	b.AddRow(map[int]float64{1: 1})
	return &storage.Artifacts{
		Movies: []storage.Movie{
			{ID: 27205, Title: "Inception", Overview: "A thief, who steals \"secrets\".", Genres: []string{"Action", "Science Fiction"}, ReleaseYear: 2010},
			{ID: 11324, Title: "Shutter Island", Overview: "A detective\non an island.", Genres: nil},
		},
		Features: b.Build(),
		Vocabulary: &storage.Vocabulary{
			Terms:       []string{"thief", "island"},
			IDF:         []float64{1.4, 1.2},
			Genres:      []string{"action"},
			GenreWeight: 1,
		},
	}
}

func newStore(t *testing.T) *storage.ArtifactStore {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	store, err := storage.NewArtifactStore(t.TempDir(), logrus.NewEntry(logger))
	require.NoError(t, err)
	return store
}

func TestMetadata_RoundTrip(t *testing.T) {
	movies := sampleArtifacts().Movies

	var buf bytes.Buffer
	require.NoError(t, storage.WriteMetadata(&buf, movies))

	loaded, err := storage.ReadMetadata(&buf)
	require.NoError(t, err)
	assert.Equal(t, movies, loaded)
}

func TestReadMetadata_ForeignLayout(t *testing.T) {
	csv := ",title,id,genres\n" +
		"0,Avatar,19995.0,\"['Action', 'Adventure']\"\n" +
		"1,Heat,949,Crime|Drama\n"

	movies, err := storage.ReadMetadata(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, 19995, movies[0].ID)
	assert.Equal(t, []string{"Action", "Adventure"}, movies[0].Genres)
	assert.Equal(t, "", movies[0].Overview)
	assert.Equal(t, []string{"Crime", "Drama"}, movies[1].Genres)
}

func TestReadMetadata_Errors(t *testing.T) {
	_, err := storage.ReadMetadata(strings.NewReader("name,overview\nx,y\n"))
	assert.Error(t, err)

	_, err = storage.ReadMetadata(strings.NewReader("id,title\n1.5,Half\n"))
	assert.Error(t, err)
}

func TestParseGenres(t *testing.T) {
	assert.Nil(t, storage.ParseGenres(""))
	assert.Nil(t, storage.ParseGenres("[]"))
	assert.Equal(t, []string{"Drama"}, storage.ParseGenres(" Drama "))
	assert.Equal(t, []string{"War", "History"}, storage.ParseGenres(`["War", "History"]`))
}

func TestArtifactStore_SaveLoad(t *testing.T) {
	store := newStore(t)
	assert.False(t, store.Exists())

	in := sampleArtifacts()
	manifest, err := store.Save(in)
	require.NoError(t, err)
	assert.True(t, store.Exists())
	assert.Equal(t, storage.ManifestVersion, manifest.FormatVersion)
	assert.Equal(t, 2, manifest.Rows)
	assert.Equal(t, 3, manifest.Cols)
	assert.Equal(t, in.BuildID.String(), manifest.BuildID)

	out, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, in.BuildID, out.BuildID)
	assert.Equal(t, in.Movies, out.Movies)
	assert.Equal(t, in.Features, out.Features)
	assert.Equal(t, in.Vocabulary.Terms, out.Vocabulary.Terms)
	assert.Equal(t, in.Vocabulary.IDF, out.Vocabulary.IDF)
	assert.Equal(t, manifest.BuildID, out.Vocabulary.BuildID)
}

func TestArtifactStore_SaveRejectsMismatch(t *testing.T) {
	store := newStore(t)

	in := sampleArtifacts()
	in.Movies = in.Movies[:1]
	_, err := store.Save(in)
	assert.ErrorIs(t, err, matrix.ErrShapeMismatch)

	in = sampleArtifacts()
	in.Vocabulary.Genres = nil
	_, err = store.Save(in)
	assert.ErrorIs(t, err, matrix.ErrShapeMismatch)
}

func TestArtifactStore_DetectsTampering(t *testing.T) {
	store := newStore(t)
	_, err := store.Save(sampleArtifacts())
	require.NoError(t, err)

	f, err := os.OpenFile(store.Path(storage.MetadataFile), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("99,Extra,,,\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = store.Load()
	assert.ErrorIs(t, err, storage.ErrIncompatibleArtifacts)
}

func TestArtifactStore_DetectsMixedBuilds(t *testing.T) {
	store := newStore(t)
	_, err := store.Save(sampleArtifacts())
	require.NoError(t, err)

	stale, err := os.ReadFile(store.Path(storage.VocabularyFile))
	require.NoError(t, err)

	_, err = store.Save(sampleArtifacts())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(storage.VocabularyFile), stale, 0644))

	_, err = store.Load()
	assert.ErrorIs(t, err, storage.ErrIncompatibleArtifacts)
}

func TestArtifactStore_Missing(t *testing.T) {
	store := newStore(t)
	_, err := store.Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
