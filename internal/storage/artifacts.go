package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/S-Sanjai/Movie-Match/internal/matrix"
)

// Artifact file names inside an ArtifactStore directory.
const (
	MetadataFile   = "movies.csv"
	MatrixFile     = "features.bin"
	VocabularyFile = "vocabulary.json"
	ManifestFile   = "manifest.json"
)

// ManifestVersion is bumped whenever the layout of the artifact set changes.
const ManifestVersion = 1

// ErrIncompatibleArtifacts means the files on disk were not produced by the
// same build, were modified afterwards or disagree on shape.
var ErrIncompatibleArtifacts = errors.New("incompatible artifacts")

// Vocabulary is the fitted vectorizer state persisted next to the matrix.
type Vocabulary struct {
	BuildID     string    `json:"build_id"`
	Terms       []string  `json:"terms"`
	IDF         []float64 `json:"idf"`
	Genres      []string  `json:"genres"`
	GenreWeight float64   `json:"genre_weight"`
	MaxFeatures int       `json:"max_features"`
}

// Manifest ties an artifact set together. It is written last.
type Manifest struct {
	FormatVersion  int       `json:"format_version"`
	BuildID        string    `json:"build_id"`
	CreatedAt      time.Time `json:"created_at"`
	Rows           int       `json:"rows"`
	Cols           int       `json:"cols"`
	VocabularySize int       `json:"vocabulary_size"`
	GenreCount     int       `json:"genre_count"`
	MatrixSHA256   string    `json:"matrix_sha256"`
	MetadataSHA256 string    `json:"metadata_sha256"`
}

// Artifacts is everything a recommender needs to start serving.
type Artifacts struct {
	BuildID    uuid.UUID
	Movies     []Movie
	Features   *matrix.CSR
	Vocabulary *Vocabulary
	Manifest   *Manifest
}

// ArtifactStore reads and writes artifact sets in a directory.
type ArtifactStore struct {
	baseDir string
	logger  *logrus.Entry
	mu      sync.RWMutex
	now     func() time.Time
}

// NewArtifactStore creates baseDir if needed.
func NewArtifactStore(baseDir string, logger *logrus.Entry) (*ArtifactStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ArtifactStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "storage"),
		now:     time.Now,
	}, nil
}

// Dir returns the directory backing the store.
func (s *ArtifactStore) Dir() string {
	return s.baseDir
}

// Path returns the absolute location of an artifact file.
func (s *ArtifactStore) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// Save writes a full artifact set under a fresh build id and records it in
// a.BuildID. The manifest is written last.
func (s *ArtifactStore) Save(a *Artifacts) (*Manifest, error) {
	if a == nil || a.Features == nil || a.Vocabulary == nil {
		return nil, fmt.Errorf("%w: artifacts are incomplete", ErrIncompatibleArtifacts)
	}
	if len(a.Movies) != a.Features.Rows {
		return nil, fmt.Errorf("%w: %d movies but %d matrix rows", matrix.ErrShapeMismatch, len(a.Movies), a.Features.Rows)
	}
	if len(a.Vocabulary.Terms) != len(a.Vocabulary.IDF) {
		return nil, fmt.Errorf("%w: %d terms but %d idf values", matrix.ErrShapeMismatch, len(a.Vocabulary.Terms), len(a.Vocabulary.IDF))
	}
	if cols := len(a.Vocabulary.Terms) + len(a.Vocabulary.Genres); cols != a.Features.Cols {
		return nil, fmt.Errorf("%w: vocabulary describes %d columns but matrix has %d", matrix.ErrShapeMismatch, cols, a.Features.Cols)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buildID := uuid.New()

	metaSum, err := writeAtomic(s.Path(MetadataFile), func(w io.Writer) error {
		return WriteMetadata(w, a.Movies)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}

	matSum, err := writeAtomic(s.Path(MatrixFile), func(w io.Writer) error {
		return matrix.Encode(w, a.Features, buildID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write matrix: %w", err)
	}

	vocab := *a.Vocabulary
	vocab.BuildID = buildID.String()
	if err := writeJSON(s.Path(VocabularyFile), &vocab); err != nil {
		return nil, fmt.Errorf("failed to write vocabulary: %w", err)
	}

	manifest := &Manifest{
		FormatVersion:  ManifestVersion,
		BuildID:        buildID.String(),
		CreatedAt:      s.now().UTC(),
		Rows:           a.Features.Rows,
		Cols:           a.Features.Cols,
		VocabularySize: len(vocab.Terms),
		GenreCount:     len(vocab.Genres),
		MatrixSHA256:   matSum,
		MetadataSHA256: metaSum,
	}
	if err := writeJSON(s.Path(ManifestFile), manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	a.BuildID = buildID
	a.Vocabulary = &vocab
	a.Manifest = manifest

	s.logger.WithFields(logrus.Fields{
		"build_id": manifest.BuildID,
		"rows":     manifest.Rows,
		"cols":     manifest.Cols,
	}).Info("Saved artifacts")

	return manifest, nil
}

// Load reads the artifact set and verifies that every file belongs to the
// build recorded in the manifest.
func (s *ArtifactStore) Load() (*Artifacts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var manifest Manifest
	if err := readJSON(s.Path(ManifestFile), &manifest); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if manifest.FormatVersion != ManifestVersion {
		return nil, fmt.Errorf("%w: manifest version %d, want %d", ErrIncompatibleArtifacts, manifest.FormatVersion, ManifestVersion)
	}

	if err := verifyChecksum(s.Path(MetadataFile), manifest.MetadataSHA256); err != nil {
		return nil, err
	}
	if err := verifyChecksum(s.Path(MatrixFile), manifest.MatrixSHA256); err != nil {
		return nil, err
	}

	movies, err := ReadMetadataFile(s.Path(MetadataFile))
	if err != nil {
		return nil, err
	}

	features, matrixID, err := ReadMatrixFile(s.Path(MatrixFile))
	if err != nil {
		return nil, err
	}

	var vocab Vocabulary
	if err := readJSON(s.Path(VocabularyFile), &vocab); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}

	if matrixID.String() != manifest.BuildID || vocab.BuildID != manifest.BuildID {
		return nil, fmt.Errorf("%w: manifest build %s, matrix build %s, vocabulary build %s",
			ErrIncompatibleArtifacts, manifest.BuildID, matrixID, vocab.BuildID)
	}
	switch {
	case features.Rows != len(movies) || features.Rows != manifest.Rows:
		return nil, fmt.Errorf("%w: %d movies, %d matrix rows, manifest says %d",
			ErrIncompatibleArtifacts, len(movies), features.Rows, manifest.Rows)
	case features.Cols != manifest.Cols || features.Cols != len(vocab.Terms)+len(vocab.Genres):
		return nil, fmt.Errorf("%w: matrix has %d columns, vocabulary describes %d",
			ErrIncompatibleArtifacts, features.Cols, len(vocab.Terms)+len(vocab.Genres))
	case len(vocab.Terms) != len(vocab.IDF):
		return nil, fmt.Errorf("%w: %d terms but %d idf values", ErrIncompatibleArtifacts, len(vocab.Terms), len(vocab.IDF))
	}

	s.logger.WithFields(logrus.Fields{
		"build_id": manifest.BuildID,
		"movies":   len(movies),
	}).Debug("Loaded artifacts")

	return &Artifacts{
		BuildID:    matrixID,
		Movies:     movies,
		Features:   features,
		Vocabulary: &vocab,
		Manifest:   &manifest,
	}, nil
}

// Exists reports whether a manifest is present.
func (s *ArtifactStore) Exists() bool {
	_, err := os.Stat(s.Path(ManifestFile))
	return err == nil
}

// ReadMatrixFile decodes a feature matrix and the build id in its header.
func ReadMatrixFile(path string) (*matrix.CSR, uuid.UUID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to open matrix: %w", err)
	}
	defer f.Close()

	m, id, err := matrix.Decode(f)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("failed to decode matrix: %w", err)
	}
	return m, id, nil
}

// writeAtomic streams into a temp file in the target directory and renames
// it into place. It returns the hex SHA-256 of what was written.
func writeAtomic(path string, write func(io.Writer) error) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha256.New()
	if err := write(io.MultiWriter(tmp, h)); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeJSON(path string, v interface{}) error {
	_, err := writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
	return err
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func verifyChecksum(path, want string) error {
	got, err := fileSHA256(path)
	if err != nil {
		return fmt.Errorf("failed to hash %s: %w", filepath.Base(path), err)
	}
	if got != want {
		return fmt.Errorf("%w: %s checksum mismatch", ErrIncompatibleArtifacts, filepath.Base(path))
	}
	return nil
}
