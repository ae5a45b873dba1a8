package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/S-Sanjai/Movie-Match/internal/catalog"
	"github.com/S-Sanjai/Movie-Match/internal/config"
	"github.com/S-Sanjai/Movie-Match/internal/ingest"
	"github.com/S-Sanjai/Movie-Match/internal/search"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

func main() {
	cfg := config.Load()

	pages := flag.Int("pages", cfg.Ingest.Pages, "number of popular-movie pages to ingest")
	fromCSV := flag.String("from-csv", "", "refit an existing metadata CSV instead of calling the catalog")
	outDir := flag.String("out", cfg.Artifacts.Dir, "artifact output directory")
	maxFeatures := flag.Int("max-features", cfg.Vectorizer.MaxFeatures, "keep only the N highest-IDF terms (0 keeps all)")
	genreWeight := flag.Float64("genre-weight", cfg.Vectorizer.GenreWeight, "value of each genre indicator column")
	flag.Parse()

	cfg.Ingest.Pages = *pages
	cfg.Artifacts.Dir = *outDir
	cfg.Vectorizer.MaxFeatures = *maxFeatures
	cfg.Vectorizer.GenreWeight = *genreWeight

	entry := config.NewLogger(cfg.Logging, "moviematch-build")
	if err := cfg.Validate(); err != nil {
		entry.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	movies := loadMovies(ctx, cfg, *fromCSV, entry)

	store, err := storage.NewArtifactStore(cfg.Artifacts.Dir, entry)
	if err != nil {
		entry.Fatalf("Failed to open artifact store: %v", err)
	}

	manifest, err := ingest.Build(store, movies, search.CorpusOptions{
		MaxFeatures: cfg.Vectorizer.MaxFeatures,
		GenreWeight: cfg.Vectorizer.GenreWeight,
	})
	if err != nil {
		entry.Fatalf("Failed to build artifacts: %v", err)
	}

	entry.WithFields(logrus.Fields{
		"dir":        store.Dir(),
		"build_id":   manifest.BuildID,
		"movies":     manifest.Rows,
		"features":   manifest.Cols,
		"vocabulary": manifest.VocabularySize,
		"genres":     manifest.GenreCount,
	}).Info("Artifacts written")
}

func loadMovies(ctx context.Context, cfg *config.Config, csvPath string, log *logrus.Entry) []storage.Movie {
	if csvPath != "" {
		movies, err := storage.ReadMetadataFile(csvPath)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", csvPath, err)
		}
		log.WithField("movies", len(movies)).Infof("Refitting %s", csvPath)
		return movies
	}

	if !cfg.CatalogEnabled() {
		log.Fatal("TMDB_API_KEY is required unless -from-csv is given")
	}
	client, err := catalog.New(cfg.Catalog, log)
	if err != nil {
		log.Fatalf("Failed to initialize catalog client: %v", err)
	}

	movies, err := ingest.NewIngester(client, cfg.Ingest, log).Run(ctx, cfg.Ingest.Pages)
	if err != nil {
		log.Fatalf("Failed to ingest catalog: %v", err)
	}
	return movies
}
