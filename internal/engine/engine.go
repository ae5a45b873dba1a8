package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/S-Sanjai/Movie-Match/internal/catalog"
	"github.com/S-Sanjai/Movie-Match/internal/config"
	"github.com/S-Sanjai/Movie-Match/internal/metrics"
	"github.com/S-Sanjai/Movie-Match/internal/recommend"
	"github.com/S-Sanjai/Movie-Match/internal/search"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

const (
	searchMovieLimit = 6
	searchTVLimit    = 4
	offlineTrending  = 10
	noOverview       = "No overview available."
)

var (
	// ErrNotFound is returned when neither local data nor the catalog know a movie.
	ErrNotFound = recommend.ErrNotFound
	// ErrDiscoveryUnavailable is returned by Discover when no vocabulary is loaded.
	ErrDiscoveryUnavailable = errors.New("free-text discovery needs a fitted vocabulary")
)

// Catalog is the external metadata source. It is optional.
type Catalog interface {
	Movie(ctx context.Context, id int) (catalog.Movie, error)
	TV(ctx context.Context, id int) (catalog.Movie, error)
	SearchMovies(ctx context.Context, query string) ([]catalog.Summary, error)
	SearchTV(ctx context.Context, query string) ([]catalog.Summary, error)
	Recommendations(ctx context.Context, id int) ([]catalog.Movie, error)
	Trending(ctx context.Context) ([]string, error)
}

// Engine answers every request the API serves by combining the local
// recommender with the catalog
type Engine struct {
	Config      *config.Config
	Logger      *logrus.Entry
	Recommender *recommend.Recommender
	Vectorizer  *search.TFIDFVectorizer
	Catalog     Catalog
	BuildID     string

	mu    sync.RWMutex
	Stats EngineStats
}

type EngineStats struct {
	Requests  int64
	Fallbacks int64
	LastError string
	StartTime time.Time
}

// NewEngine wires the engine. vectorizer and cat may be nil: without a
// vectorizer Discover is disabled, without a catalog every answer comes from
// local data.
func NewEngine(cfg *config.Config, logger *logrus.Entry, rec *recommend.Recommender, vectorizer *search.TFIDFVectorizer, cat Catalog) (*Engine, error) {
	if rec == nil {
		return nil, fmt.Errorf("engine needs a recommender")
	}
	if cfg == nil {
		cfg = config.Load()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if vectorizer != nil && !vectorizer.Fitted() {
		return nil, search.ErrNotFitted
	}

	metrics.SetCorpus(rec.Len(), rec.Cols())

	return &Engine{
		Config:      cfg,
		Logger:      logger.WithField("component", "engine"),
		Recommender: rec,
		Vectorizer:  vectorizer,
		Catalog:     cat,
		Stats:       EngineStats{StartTime: time.Now()},
	}, nil
}

// MovieView is a movie as the frontend renders it.
type MovieView struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Overview        string   `json:"overview"`
	Genres          []string `json:"genres"`
	PosterURL       string   `json:"posterUrl"`
	BackdropURL     string   `json:"backdropUrl,omitempty"`
	ReleaseDate     string   `json:"releaseDate"`
	Rating          float64  `json:"rating"`
	MatchPercentage *int     `json:"matchPercentage"`
}

// SearchResult is the combined payload of the legacy title search.
type SearchResult struct {
	Movie           MovieView   `json:"movie"`
	Recommendations []MovieView `json:"recommendations"`
}

// RecommendResult is the payload of a recommendation by id.
type RecommendResult struct {
	Movie           MovieView   `json:"movie"`
	SimilarMovies   []MovieView `json:"similarMovies"`
	SimilarityScore float64     `json:"similarityScore"`
}

func matchPercentage(similarity float64) *int {
	pct := int(similarity * 100)
	return &pct
}

func viewFromCatalog(m catalog.Movie) MovieView {
	id := strconv.Itoa(m.ID)
	if m.MediaType == catalog.MediaTV {
		id = "tv-" + id
	}
	overview := m.Overview
	if overview == "" {
		overview = noOverview
	}
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	return MovieView{
		ID:          id,
		Title:       m.Title,
		Overview:    overview,
		Genres:      genres,
		PosterURL:   m.PosterURL,
		BackdropURL: m.BackdropURL,
		ReleaseDate: m.ReleaseDate,
		Rating:      m.Rating,
	}
}

func viewFromLocal(m storage.Movie) MovieView {
	overview := m.Overview
	if overview == "" {
		overview = noOverview
	}
	release := "Unknown"
	if m.ReleaseYear > 0 {
		release = strconv.Itoa(m.ReleaseYear)
	}
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	return MovieView{
		ID:          strconv.Itoa(m.ID),
		Title:       m.Title,
		Overview:    overview,
		Genres:      genres,
		PosterURL:   catalog.PlaceholderPoster,
		ReleaseDate: release,
	}
}

func (e *Engine) clampK(k int) int {
	if k < 1 {
		k = e.Recommender.K()
	}
	if max := e.Config.Recommender.MaxK; max > 0 && k > max {
		return max
	}
	return k
}

// concurrency bounds parallel catalog detail lookups; it is at least 1.
func (e *Engine) concurrency() int {
	if n := e.Config.Recommender.EnrichConcurrency; n > 0 {
		return n
	}
	return 1
}

func (e *Engine) record(err error, fallback bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Stats.Requests++
	if fallback {
		e.Stats.Fallbacks++
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		e.Stats.LastError = err.Error()
	}
}

func outcome(err error, fallback bool) string {
	switch {
	case err == nil && fallback:
		return "fallback"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (e *Engine) finish(op string, start time.Time, err error, fallback bool) {
	e.record(err, fallback)
	metrics.ObserveRecommend(op, outcome(err, fallback), start)
}

// details resolves a local movie to its catalog view, falling back to the
// local metadata when the catalog is absent or failing.
func (e *Engine) details(ctx context.Context, m storage.Movie) MovieView {
	if e.Catalog != nil {
		cm, err := e.Catalog.Movie(ctx, m.ID)
		if err == nil {
			return viewFromCatalog(cm)
		}
		e.Logger.WithError(err).WithField("movie_id", m.ID).Debug("Using local details")
	}
	return viewFromLocal(m)
}

// Lookup finds a movie by title: first in the local corpus, then through a
// catalog search.
func (e *Engine) Lookup(ctx context.Context, title string) (MovieView, error) {
	start := time.Now()
	view, fallback, err := e.lookup(ctx, title)
	e.finish("lookup", start, err, fallback)
	return view, err
}

func (e *Engine) lookup(ctx context.Context, title string) (MovieView, bool, error) {
	local, err := e.Recommender.MovieDetails(title)
	if err == nil {
		return e.details(ctx, local), false, nil
	}
	if e.Catalog == nil {
		return MovieView{}, false, err
	}

	results, cerr := e.Catalog.SearchMovies(ctx, title)
	if cerr != nil {
		if errors.Is(cerr, catalog.ErrNotFound) {
			return MovieView{}, true, err
		}
		return MovieView{}, true, fmt.Errorf("catalog search failed: %w", cerr)
	}
	if len(results) == 0 {
		return MovieView{}, true, err
	}
	cm, cerr := e.Catalog.Movie(ctx, results[0].ID)
	if cerr != nil {
		if errors.Is(cerr, catalog.ErrNotFound) {
			return MovieView{}, true, err
		}
		return MovieView{}, true, fmt.Errorf("catalog details failed: %w", cerr)
	}
	return viewFromCatalog(cm), true, nil
}

// enrich turns ranked recommendations into views, fetching catalog details
// concurrently. Order and similarity are preserved.
func (e *Engine) enrich(ctx context.Context, recs []recommend.Recommendation) []MovieView {
	views := make([]MovieView, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			view := e.details(gctx, e.Recommender.MovieAt(rec.Row))
			view.MatchPercentage = matchPercentage(rec.Similarity)
			views[i] = view
			return nil
		})
	}
	g.Wait()

	return views
}

func (e *Engine) catalogRecommendations(ctx context.Context, id int) ([]MovieView, error) {
	if e.Catalog == nil {
		return []MovieView{}, nil
	}
	movies, err := e.Catalog.Recommendations(ctx, id)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return nil, fmt.Errorf("catalog recommendations failed: %w", err)
	}
	views := make([]MovieView, 0, len(movies))
	for _, m := range movies {
		view := viewFromCatalog(m)
		view.MatchPercentage = matchPercentage(0)
		views = append(views, view)
	}
	return views, nil
}

// neighbours ranks the local corpus around a movie, trying its catalog id
// first and then each title. Movies the corpus does not hold fall back to
// the catalog's own recommendations.
func (e *Engine) neighbours(ctx context.Context, id int, titles []string, k int) ([]MovieView, bool, error) {
	k = e.clampK(k)

	err := fmt.Errorf("%w: id %d", ErrNotFound, id)
	var recs []recommend.Recommendation
	if id > 0 {
		recs, err = e.Recommender.RecommendationsByID(id, k)
	}
	for _, title := range titles {
		if !errors.Is(err, ErrNotFound) {
			break
		}
		recs, err = e.Recommender.Recommendations(title, k)
	}

	switch {
	case err == nil:
		return e.enrich(ctx, recs), false, nil
	case !errors.Is(err, ErrNotFound) || e.Catalog == nil || id <= 0:
		return nil, false, err
	}

	e.Logger.WithField("movie_id", id).Info("Using catalog fallback recommendations")
	views, cerr := e.catalogRecommendations(ctx, id)
	return views, true, cerr
}

// SimilarMovies returns the k movies most similar to title, enriched with
// catalog details. Titles outside the local corpus fall back to the
// catalog's own recommendations when the catalog knows the title.
func (e *Engine) SimilarMovies(ctx context.Context, title string, k int) ([]MovieView, error) {
	start := time.Now()
	views, fallback, err := e.similarMovies(ctx, title, k)
	e.finish("similar", start, err, fallback)
	return views, err
}

func (e *Engine) similarMovies(ctx context.Context, title string, k int) ([]MovieView, bool, error) {
	recs, err := e.Recommender.Recommendations(title, e.clampK(k))
	if err == nil {
		return e.enrich(ctx, recs), false, nil
	}
	if !errors.Is(err, ErrNotFound) || e.Catalog == nil {
		return nil, false, err
	}

	movie, _, err := e.lookup(ctx, title)
	if err != nil {
		return nil, true, err
	}
	id, _ := strconv.Atoi(movie.ID)
	return e.neighbours(ctx, id, []string{movie.Title}, k)
}

// Search resolves title and returns it together with its recommendations.
func (e *Engine) Search(ctx context.Context, title string) (*SearchResult, error) {
	start := time.Now()
	result, fallback, err := e.search(ctx, title)
	e.finish("search", start, err, fallback)
	return result, err
}

func (e *Engine) search(ctx context.Context, title string) (*SearchResult, bool, error) {
	movie, fallback, err := e.lookup(ctx, title)
	if err != nil {
		return nil, fallback, err
	}

	id, _ := strconv.Atoi(movie.ID)
	recs, recFallback, err := e.neighbours(ctx, id, []string{title, movie.Title}, 0)
	if err != nil {
		return nil, fallback || recFallback, err
	}
	return &SearchResult{Movie: movie, Recommendations: recs}, fallback || recFallback, nil
}

// Recommend returns a movie by catalog id and its nearest neighbours.
func (e *Engine) Recommend(ctx context.Context, id, k int) (*RecommendResult, error) {
	start := time.Now()
	result, fallback, err := e.recommend(ctx, id, k)
	e.finish("recommend", start, err, fallback)
	return result, err
}

func (e *Engine) recommend(ctx context.Context, id, k int) (*RecommendResult, bool, error) {
	movie, err := e.movieByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	views, fallback, err := e.neighbours(ctx, id, []string{movie.Title}, k)
	if err != nil {
		return nil, fallback, err
	}
	return &RecommendResult{Movie: movie, SimilarMovies: views}, fallback, nil
}

// MovieByID returns the details of a movie by catalog id.
func (e *Engine) MovieByID(ctx context.Context, id int) (MovieView, error) {
	start := time.Now()
	view, err := e.movieByID(ctx, id)
	e.finish("movie", start, err, false)
	return view, err
}

func (e *Engine) movieByID(ctx context.Context, id int) (MovieView, error) {
	local, lerr := e.Recommender.MovieByID(id)
	if e.Catalog != nil {
		cm, err := e.Catalog.Movie(ctx, id)
		if err == nil {
			return viewFromCatalog(cm), nil
		}
		if lerr != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return MovieView{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
			}
			return MovieView{}, fmt.Errorf("catalog details failed: %w", err)
		}
	}
	if lerr != nil {
		return MovieView{}, lerr
	}
	return viewFromLocal(local), nil
}

// SearchCatalog returns up to six movies and four TV shows matching query.
// Without a catalog it searches local titles.
func (e *Engine) SearchCatalog(ctx context.Context, query string) ([]MovieView, error) {
	start := time.Now()
	views, err := e.searchCatalog(ctx, query)
	e.finish("search_catalog", start, err, false)
	return views, err
}

func (e *Engine) searchCatalog(ctx context.Context, query string) ([]MovieView, error) {
	if e.Catalog == nil {
		local := e.Recommender.SearchTitles(query, searchMovieLimit+searchTVLimit)
		views := make([]MovieView, 0, len(local))
		for _, m := range local {
			view := viewFromLocal(m)
			view.MatchPercentage = matchPercentage(1)
			views = append(views, view)
		}
		return views, nil
	}

	var movies, shows []catalog.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		movies, err = e.Catalog.SearchMovies(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		shows, err = e.Catalog.SearchTV(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	if len(movies) > searchMovieLimit {
		movies = movies[:searchMovieLimit]
	}
	if len(shows) > searchTVLimit {
		shows = shows[:searchTVLimit]
	}

	// failed detail lookups are dropped from the result
	details := make([]*MovieView, len(movies)+len(shows))
	dg, dctx := errgroup.WithContext(ctx)
	dg.SetLimit(e.concurrency())
	fetch := func(slot int, load func(context.Context, int) (catalog.Movie, error), id int) {
		dg.Go(func() error {
			m, err := load(dctx, id)
			if err != nil {
				e.Logger.WithError(err).WithField("id", id).Debug("Skipping search result")
				return nil
			}
			view := viewFromCatalog(m)
			view.MatchPercentage = matchPercentage(1)
			details[slot] = &view
			return nil
		})
	}
	for i, s := range movies {
		fetch(i, e.Catalog.Movie, s.ID)
	}
	for i, s := range shows {
		fetch(len(movies)+i, e.Catalog.TV, s.ID)
	}
	dg.Wait()

	views := make([]MovieView, 0, len(details))
	for _, v := range details {
		if v != nil {
			views = append(views, *v)
		}
	}
	return views, nil
}

// Trending returns this week's trending titles. Without a catalog it lists
// the first titles of the local corpus.
func (e *Engine) Trending(ctx context.Context) ([]string, error) {
	start := time.Now()
	if e.Catalog == nil {
		titles := e.localTitles(offlineTrending)
		e.finish("trending", start, nil, true)
		return titles, nil
	}
	titles, err := e.Catalog.Trending(ctx)
	if err != nil {
		err = fmt.Errorf("catalog trending failed: %w", err)
	}
	e.finish("trending", start, err, false)
	return titles, err
}

func (e *Engine) localTitles(limit int) []string {
	titles := make([]string, 0, limit)
	for i := 0; i < e.Recommender.Len() && len(titles) < limit; i++ {
		titles = append(titles, e.Recommender.MovieAt(i).Title)
	}
	return titles
}

// Discover ranks the corpus against free text. Only movies sharing at least
// one term or genre with the text are returned.
func (e *Engine) Discover(ctx context.Context, text string, k int) ([]MovieView, error) {
	start := time.Now()
	views, err := e.discover(ctx, text, k)
	e.finish("discover", start, err, false)
	return views, err
}

func (e *Engine) discover(ctx context.Context, text string, k int) ([]MovieView, error) {
	if e.Vectorizer == nil {
		return nil, ErrDiscoveryUnavailable
	}
	query, err := e.Vectorizer.TransformOne(text)
	if err != nil {
		return nil, err
	}
	recs, err := e.Recommender.Similar(query, e.clampK(k))
	if err != nil {
		return nil, err
	}

	kept := recs[:0]
	for _, r := range recs {
		if r.Similarity > 0 {
			kept = append(kept, r)
		}
	}
	return e.enrich(ctx, kept), nil
}

// Status summarizes the engine for the status endpoint.
type Status struct {
	Movies          int       `json:"movies"`
	Features        int       `json:"features"`
	BuildID         string    `json:"buildId,omitempty"`
	CatalogEnabled  bool      `json:"catalogEnabled"`
	CatalogBreaker  string    `json:"catalogBreaker,omitempty"`
	DiscoverEnabled bool      `json:"discoverEnabled"`
	Requests        int64     `json:"requests"`
	Fallbacks       int64     `json:"fallbacks"`
	LastError       string    `json:"lastError,omitempty"`
	StartTime       time.Time `json:"startTime"`
	Uptime          string    `json:"uptime"`
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	stats := e.Stats
	e.mu.RUnlock()

	status := Status{
		Movies:          e.Recommender.Len(),
		Features:        e.Recommender.Cols(),
		BuildID:         e.BuildID,
		CatalogEnabled:  e.Catalog != nil,
		DiscoverEnabled: e.Vectorizer != nil,
		Requests:        stats.Requests,
		Fallbacks:       stats.Fallbacks,
		LastError:       stats.LastError,
		StartTime:       stats.StartTime,
		Uptime:          time.Since(stats.StartTime).Round(time.Second).String(),
	}
	if b, ok := e.Catalog.(interface{ BreakerState() string }); ok {
		status.CatalogBreaker = b.BreakerState()
	}
	return status
}
