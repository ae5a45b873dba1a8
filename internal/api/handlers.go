package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/S-Sanjai/Movie-Match/internal/catalog"
	"github.com/S-Sanjai/Movie-Match/internal/engine"
)

// Responses
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SearchResponse struct {
	Query     string             `json:"query"`
	Results   []engine.MovieView `json:"results"`
	Timestamp int64              `json:"timestamp"`
}

type DiscoverResponse struct {
	Query   string             `json:"query"`
	Results []engine.MovieView `json:"results"`
}

// Requests
type legacySearchRequest struct {
	Title string `validate:"required,max=200"`
}

type searchRequest struct {
	Query string `validate:"required,max=200"`
}

type discoverRequest struct {
	Query string `validate:"required,max=500"`
	K     int    `validate:"gte=0"`
}

type idRequest struct {
	ID int `validate:"gt=0"`
}

// Handlers

func (s *Server) handleLegacySearch(w http.ResponseWriter, r *http.Request) {
	req := legacySearchRequest{Title: r.URL.Query().Get("title")}
	if err := s.validate.Struct(req); err != nil {
		jsonResponse(w, http.StatusBadRequest, ErrorResponse{Error: "Query 'title' is required"})
		return
	}

	result, err := s.Engine.Search(r.Context(), req.Title)
	if err != nil {
		code, msg := s.classify(err)
		if code == http.StatusNotFound {
			msg = "Movie '" + req.Title + "' not found."
		}
		jsonResponse(w, code, ErrorResponse{Error: msg})
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := searchRequest{Query: r.URL.Query().Get("q")}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Query 'q' is required")
		return
	}

	results, err := s.Engine.SearchCatalog(r.Context(), req.Query)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeData(w, SearchResponse{
		Query:     req.Query,
		Results:   results,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	id, ok := s.movieID(w, r)
	if !ok {
		return
	}
	k, _ := strconv.Atoi(r.URL.Query().Get("k"))

	result, err := s.Engine.Recommend(r.Context(), id, k)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeData(w, result)
}

func (s *Server) handleMovie(w http.ResponseWriter, r *http.Request) {
	id, ok := s.movieID(w, r)
	if !ok {
		return
	}

	movie, err := s.Engine.MovieByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeData(w, movie)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	titles, err := s.Engine.Trending(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if titles == nil {
		titles = []string{}
	}
	writeData(w, titles)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	req := discoverRequest{Query: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Query 'k' must be an integer")
			return
		}
		req.K = k
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Query 'q' is required and 'k' must not be negative")
		return
	}

	results, err := s.Engine.Discover(r.Context(), req.Query, req.K)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeData(w, DiscoverResponse{Query: req.Query, Results: results})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.Engine.Status())
}

// serveStaticOrIndex serves files of the built frontend and falls back to
// index.html so client-side routes resolve.
func (s *Server) serveStaticOrIndex(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(s.cfg.StaticDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		http.ServeFile(w, r, name)
		return
	}

	index := filepath.Join(s.cfg.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		writeError(w, http.StatusNotFound, "index.html not found")
		return
	}
	http.ServeFile(w, r, index)
}

func (s *Server) movieID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || s.validate.Struct(idRequest{ID: id}) != nil {
		writeError(w, http.StatusBadRequest, "movie id must be a positive integer")
		return 0, false
	}
	return id, true
}

// classify maps engine errors to a status code and a client-safe message.
func (s *Server) classify(err error) (int, string) {
	var statusErr *catalog.StatusError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "movie not found"
	case errors.Is(err, engine.ErrDiscoveryUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, "movie catalog temporarily unavailable"
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, "movie catalog request failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	code, msg := s.classify(err)
	if code >= http.StatusInternalServerError {
		s.Logger.WithError(err).Error("Request failed")
	}
	writeError(w, code, msg)
}

func writeData(w http.ResponseWriter, data interface{}) {
	jsonResponse(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	jsonResponse(w, code, APIResponse{Success: false, Error: msg})
}

func jsonResponse(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
