package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/S-Sanjai/Movie-Match/internal/catalog"
	"github.com/S-Sanjai/Movie-Match/internal/config"
	"github.com/S-Sanjai/Movie-Match/internal/search"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

// Source is the part of the catalog the ingester reads from.
type Source interface {
	Genres(ctx context.Context) ([]catalog.Genre, error)
	PopularPage(ctx context.Context, page int) ([]catalog.Summary, int, error)
}

// Ingester pulls the popular-movies corpus from a catalog.
type Ingester struct {
	source Source
	cfg    config.IngestConfig
	logger *logrus.Entry
}

func NewIngester(source Source, cfg config.IngestConfig, logger *logrus.Entry) *Ingester {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ingester{
		source: source,
		cfg:    cfg,
		logger: logger.WithField("component", "ingest"),
	}
}

// Run fetches the genre list and up to pages pages of popular movies.
// Movies keep page order; repeated ids keep their first occurrence.
func (i *Ingester) Run(ctx context.Context, pages int) ([]storage.Movie, error) {
	if pages < 1 {
		pages = i.cfg.Pages
	}

	genres, err := i.source.Genres(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch genres: %w", err)
	}
	lookup := make(map[int]string, len(genres))
	for _, g := range genres {
		lookup[g.ID] = g.Name
	}

	first, total, err := i.source.PopularPage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page 1: %w", err)
	}
	if total > 0 && total < pages {
		pages = total
	}

	results := make([][]catalog.Summary, pages)
	results[0] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for page := 2; page <= pages; page++ {
		page := page
		g.Go(func() error {
			summaries, _, err := i.source.PopularPage(gctx, page)
			if err != nil {
				return fmt.Errorf("failed to fetch page %d: %w", page, err)
			}
			results[page-1] = summaries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	var movies []storage.Movie
	for _, page := range results {
		for _, s := range page {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			movies = append(movies, ToMovie(s, lookup))
		}
	}

	i.logger.WithFields(logrus.Fields{
		"pages":  pages,
		"movies": len(movies),
		"genres": len(genres),
	}).Info("Ingested catalog")

	return movies, nil
}

// ToMovie converts a catalog summary into a metadata row.
func ToMovie(s catalog.Summary, genres map[int]string) storage.Movie {
	return storage.Movie{
		ID:          s.ID,
		Title:       s.DisplayTitle(),
		Overview:    strings.TrimSpace(s.Overview),
		Genres:      catalog.GenreNames(s.GenreIDs, genres),
		ReleaseYear: s.ReleaseYear(),
	}
}

// Fit vectorizes movies and returns the artifact set describing them.
func Fit(movies []storage.Movie, opts search.CorpusOptions) (*storage.Artifacts, error) {
	if len(movies) == 0 {
		return nil, fmt.Errorf("no movies to fit")
	}

	docs := make([]search.Document, len(movies))
	for i, m := range movies {
		docs[i] = search.Document{ID: m.ID, Title: m.Title, Overview: m.Overview, Genres: m.Genres}
	}
	model, err := search.FitDocuments(docs, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fit corpus: %w", err)
	}

	return &storage.Artifacts{
		Movies:   movies,
		Features: model.Features,
		Vocabulary: &storage.Vocabulary{
			Terms:       model.Vectorizer.Terms(),
			IDF:         model.Vectorizer.IDFValues(),
			Genres:      model.Genres.Columns(),
			GenreWeight: model.Genres.Weight,
			MaxFeatures: opts.MaxFeatures,
		},
	}, nil
}

// Build fits movies and persists the result in store.
func Build(store *storage.ArtifactStore, movies []storage.Movie, opts search.CorpusOptions) (*storage.Manifest, error) {
	artifacts, err := Fit(movies, opts)
	if err != nil {
		return nil, err
	}
	return store.Save(artifacts)
}
