package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/S-Sanjai/Movie-Match/internal/api"
	"github.com/S-Sanjai/Movie-Match/internal/catalog"
	"github.com/S-Sanjai/Movie-Match/internal/config"
	"github.com/S-Sanjai/Movie-Match/internal/engine"
	"github.com/S-Sanjai/Movie-Match/internal/recommend"
	"github.com/S-Sanjai/Movie-Match/internal/search"
	"github.com/S-Sanjai/Movie-Match/internal/storage"
)

// Mocks

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Movie(ctx context.Context, id int) (catalog.Movie, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(catalog.Movie), args.Error(1)
}

func (m *MockCatalog) TV(ctx context.Context, id int) (catalog.Movie, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(catalog.Movie), args.Error(1)
}

func (m *MockCatalog) SearchMovies(ctx context.Context, query string) ([]catalog.Summary, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Summary), args.Error(1)
}

func (m *MockCatalog) SearchTV(ctx context.Context, query string) ([]catalog.Summary, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Summary), args.Error(1)
}

func (m *MockCatalog) Recommendations(ctx context.Context, id int) ([]catalog.Movie, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Movie), args.Error(1)
}

func (m *MockCatalog) Trending(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

var movies = []storage.Movie{
	{ID: 27205, Title: "Inception", Overview: "A thief steals corporate secrets through dream sharing technology.", Genres: []string{"Action", "Science Fiction"}, ReleaseYear: 2010},
	{ID: 11324, Title: "Shutter Island", Overview: "A detective investigates a psychiatric facility on a remote island.", Genres: []string{"Mystery", "Thriller"}, ReleaseYear: 2010},
	{ID: 157336, Title: "Interstellar", Overview: "Explorers travel through a wormhole in space to save humanity.", Genres: []string{"Science Fiction", "Drama"}, ReleaseYear: 2014},
	{ID: 1124, Title: "The Prestige", Overview: "Two rival magicians steal each other's secrets.", Genres: []string{"Mystery", "Drama"}, ReleaseYear: 2006},
	{ID: 77, Title: "Memento", Overview: "A man with memory loss hunts the killer of his wife.", Genres: []string{"Mystery", "Thriller"}, ReleaseYear: 2000},
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func testServerConfig() config.ServerConfig {
	cfg := config.Load().Server
	cfg.RateLimit = 0
	cfg.StaticDir = ""
	return cfg
}

func setupServer(t *testing.T, cfg config.ServerConfig, cat engine.Catalog) *api.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(logger)

	docs := make([]search.Document, len(movies))
	for i, m := range movies {
		docs[i] = search.Document{ID: m.ID, Title: m.Title, Overview: m.Overview, Genres: m.Genres}
	}
	model, err := search.FitDocuments(docs, search.CorpusOptions{})
	require.NoError(t, err)
	rec, err := recommend.New(movies, model.Features, 3, entry)
	require.NoError(t, err)

	eng, err := engine.NewEngine(config.Load(), entry, rec, model.Vectorizer, cat)
	require.NoError(t, err)
	return api.NewServer(eng, cfg, entry)
}

func do(t *testing.T, server *api.Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandleStatus(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	resp := decode(t, rr)
	assert.True(t, resp.Success)
	var status engine.Status
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, len(movies), status.Movies)
	assert.True(t, status.DiscoverEnabled)
	assert.False(t, status.CatalogEnabled)
}

func TestHandleLegacySearch(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/search?title=shutter%20island")
	require.Equal(t, http.StatusOK, rr.Code)

	var result engine.SearchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "Shutter Island", result.Movie.Title)
	require.Len(t, result.Recommendations, 3)
	assert.Equal(t, "Memento", result.Recommendations[0].Title)

	rr = do(t, server, http.MethodGet, "/search?title=Nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "Movie 'Nope' not found.", errResp.Error)

	rr = do(t, server, http.MethodGet, "/search")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSearch(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/api/search?q=in")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode(t, rr)
	var data api.SearchResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "in", data.Query)
	require.Len(t, data.Results, 2)
	assert.Equal(t, "Inception", data.Results[0].Title)
	assert.NotZero(t, data.Timestamp)

	rr = do(t, server, http.MethodGet, "/api/search")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, decode(t, rr).Success)
}

func TestHandleRecommend(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/api/recommend/11324?k=2")
	require.Equal(t, http.StatusOK, rr.Code)
	var result engine.RecommendResult
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &result))
	assert.Equal(t, "Shutter Island", result.Movie.Title)
	require.Len(t, result.SimilarMovies, 2)
	assert.Equal(t, "Memento", result.SimilarMovies[0].Title)

	assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodGet, "/api/recommend/abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodGet, "/api/recommend/-4").Code)

	rr = do(t, server, http.MethodGet, "/api/recommend/42")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "movie not found", decode(t, rr).Error)
}

func TestHandleMovie(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/api/movie/77")
	require.Equal(t, http.StatusOK, rr.Code)
	var movie engine.MovieView
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &movie))
	assert.Equal(t, "Memento", movie.Title)
	assert.Equal(t, "2000", movie.ReleaseDate)
}

func TestHandleTrending(t *testing.T) {
	cat := new(MockCatalog)
	cat.On("Trending", mock.Anything).Return([]string{"Dune", "Oppenheimer"}, nil)
	server := setupServer(t, testServerConfig(), cat)

	rr := do(t, server, http.MethodGet, "/api/trending")
	require.Equal(t, http.StatusOK, rr.Code)
	var titles []string
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &titles))
	assert.Equal(t, []string{"Dune", "Oppenheimer"}, titles)

	rr = do(t, server, http.MethodHead, "/api/trending")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandleDiscover(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/api/discover?q=wormhole+space&k=2")
	require.Equal(t, http.StatusOK, rr.Code)
	var data api.DiscoverResponse
	require.NoError(t, json.Unmarshal(decode(t, rr).Data, &data))
	require.Len(t, data.Results, 1)
	assert.Equal(t, "Interstellar", data.Results[0].Title)

	assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodGet, "/api/discover?q=space&k=-1").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodGet, "/api/discover?q=space&k=two").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, server, http.MethodGet, "/api/discover").Code)
}

func TestCatalogErrors(t *testing.T) {
	cat := new(MockCatalog)
	cat.On("SearchMovies", mock.Anything, "dune").Return(nil, fmt.Errorf("search: %w", &catalog.StatusError{Endpoint: "search/movie", Code: http.StatusInternalServerError}))
	cat.On("SearchTV", mock.Anything, "dune").Return([]catalog.Summary{}, nil)
	cat.On("Trending", mock.Anything).Return(nil, gobreaker.ErrOpenState)
	server := setupServer(t, testServerConfig(), cat)

	rr := do(t, server, http.MethodGet, "/api/search?q=dune")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "movie catalog request failed", decode(t, rr).Error)

	rr = do(t, server, http.MethodGet, "/api/trending")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCORS(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 2
	server := setupServer(t, cfg, nil)

	assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/api/status").Code)
	assert.Equal(t, http.StatusOK, do(t, server, http.MethodGet, "/api/status").Code)

	rr := do(t, server, http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "rate limit exceeded", decode(t, rr).Error)
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)
	do(t, server, http.MethodGet, "/api/status")

	rr := do(t, server, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "moviematch_http_requests_total")

	cfg := testServerConfig()
	cfg.EnableMetrics = false
	server = setupServer(t, cfg, nil)
	assert.Equal(t, http.StatusNotFound, do(t, server, http.MethodGet, "/metrics").Code)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644))

	cfg := testServerConfig()
	cfg.StaticDir = dir
	server := setupServer(t, cfg, nil)

	rr := do(t, server, http.MethodGet, "/assets/app.js")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "console.log(1)", rr.Body.String())

	rr = do(t, server, http.MethodGet, "/movie/27205")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "app")

	rr = do(t, server, http.MethodGet, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnknownRouteWithoutFrontend(t *testing.T) {
	server := setupServer(t, testServerConfig(), nil)

	rr := do(t, server, http.MethodGet, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, decode(t, rr).Success)
}
