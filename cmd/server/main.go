package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/S-Sanjai/Movie-Match/internal/api"
	"github.com/S-Sanjai/Movie-Match/internal/catalog"
	"github.com/S-Sanjai/Movie-Match/internal/config"
	"github.com/S-Sanjai/Movie-Match/internal/engine"
	"github.com/S-Sanjai/Movie-Match/internal/recommend"
	"github.com/S-Sanjai/Movie-Match/internal/search"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

func main() {
	// 1. Config
	cfg := config.Load()
	entry := config.NewLogger(cfg.Logging, "moviematch-api")
	if err := cfg.Validate(); err != nil {
		entry.Fatalf("Invalid configuration: %v", err)
	}

	entry.Info("Starting Movie-Match API Service")

	// 2. Recommender
	rec, vectorizer, buildID := loadRecommender(cfg, entry)

	// 3. Catalog (optional)
	var cat engine.Catalog
	if cfg.CatalogEnabled() {
		client, err := catalog.New(cfg.Catalog, entry)
		if err != nil {
			entry.Fatalf("Failed to initialize catalog client: %v", err)
		}
		cat = client
	} else {
		entry.Warn("TMDB_API_KEY not set, serving local data only")
	}

	// 4. Engine
	eng, err := engine.NewEngine(cfg, entry, rec, vectorizer, cat)
	if err != nil {
		entry.Fatalf("Failed to initialize engine: %v", err)
	}
	eng.BuildID = buildID

	// 5. API Server
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(eng, cfg.Server, entry)
	if err := server.Start(ctx); err != nil {
		entry.Fatal(err)
	}
	entry.Info("Movie-Match API stopped")
}

// loadRecommender prefers a verified artifact set and falls back to an
// explicit metadata/matrix pair, which disables free-text discovery.
func loadRecommender(cfg *config.Config, log *logrus.Entry) (*recommend.Recommender, *search.TFIDFVectorizer, string) {
	store, err := storage.NewArtifactStore(cfg.Artifacts.Dir, log)
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}

	if store.Exists() {
		artifacts, err := store.Load()
		if err != nil {
			log.Fatalf("Failed to load artifacts: %v", err)
		}
		rec, err := recommend.FromArtifacts(artifacts, cfg.Recommender.DefaultK, log)
		if err != nil {
			log.Fatalf("Failed to build recommender: %v", err)
		}
		vectorizer, err := search.NewFittedVectorizer(artifacts.Vocabulary.Terms, artifacts.Vocabulary.IDF)
		if err != nil {
			log.Fatalf("Failed to restore vectorizer: %v", err)
		}
		log.WithFields(logrus.Fields{
			"dir":      store.Dir(),
			"build_id": artifacts.BuildID.String(),
		}).Info("Loaded artifacts")
		return rec, vectorizer, artifacts.BuildID.String()
	}

	if cfg.Artifacts.MetadataPath == "" || cfg.Artifacts.MatrixPath == "" {
		log.Fatalf("No artifacts in %s; run cmd/build or set METADATA_PATH and MATRIX_PATH", store.Dir())
	}
	rec, err := recommend.Load(cfg.Artifacts.MetadataPath, cfg.Artifacts.MatrixPath, cfg.Recommender.DefaultK, log)
	if err != nil {
		log.Fatalf("Failed to load recommender: %v", err)
	}
	log.Warn("Loaded bare metadata and matrix, discovery disabled")
	return rec, nil, ""
}
