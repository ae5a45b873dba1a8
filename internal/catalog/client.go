package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/S-Sanjai/Movie-Match/internal/config"
	"github.com/S-Sanjai/Movie-Match/internal/metrics"
)

// PlaceholderPoster is used when the catalog has no poster for a title.
const PlaceholderPoster = "https://via.placeholder.com/500x750?text=No+Image"

const maxBodyBytes = 8 << 20

var (
	// ErrNotFound is returned when the catalog has no entry for a request.
	ErrNotFound = errors.New("catalog entry not found")
	// ErrNoAPIKey is returned by New when no API key is configured.
	ErrNoAPIKey = errors.New("catalog API key is not configured")
)

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s returned status %d", e.Endpoint, e.Code)
}

// Client talks to the TMDB v3 API. Requests are rate limited, guarded by a
// circuit breaker and memoized in bounded expiring caches. It is safe for
// concurrent use.
type Client struct {
	cfg        config.CatalogConfig
	baseURL    string
	imageURL   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	group      singleflight.Group
	logger     *logrus.Entry

	details  *expirable.LRU[string, Movie]
	searches *expirable.LRU[string, []Summary]
	recs     *expirable.LRU[int, []Movie]
	trending *expirable.LRU[string, []string]
}

// New creates a catalog client from cfg.
func New(cfg config.CatalogConfig, logger *logrus.Entry) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "catalog")

	c := &Client{
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		imageURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,

		details:  expirable.NewLRU[string, Movie](cfg.DetailsCacheSize, nil, cfg.CacheTTL),
		searches: expirable.NewLRU[string, []Summary](cfg.SearchCacheSize, nil, cfg.CacheTTL),
		recs:     expirable.NewLRU[int, []Movie](cfg.RecommendCacheSize, nil, cfg.CacheTTL),
		trending: expirable.NewLRU[string, []string](1, nil, cfg.TrendingTTL),
	}

	const breakerName = "tmdb"
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	maxFailures := uint32(cfg.BreakerMaxFailures)
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return c, nil
}

// BreakerState reports the circuit breaker state ("closed", "half-open" or
// "open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// PosterURL resolves a poster path, falling back to a placeholder image.
func (c *Client) PosterURL(path string) string {
	if path == "" {
		return PlaceholderPoster
	}
	return c.imageURL + "/w500" + path
}

// BackdropURL resolves a backdrop path; an empty path stays empty.
func (c *Client) BackdropURL(path string) string {
	if path == "" {
		return ""
	}
	return c.imageURL + "/original" + path
}

// get performs a GET against the API and decodes the JSON body into out.
// endpoint labels metrics and logs; the API key never appears in either.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("failed to build %s url: %w", endpoint, err)
	}
	q := u.Query()
	for key, values := range params {
		q[key] = values
	}
	q.Set("api_key", c.cfg.APIKey)
	if q.Get("language") == "" && c.cfg.Language != "" {
		q.Set("language", c.cfg.Language)
	}
	u.RawQuery = q.Encode()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, endpoint, u.String())
	})
	log := c.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"path":     path,
		"elapsed":  time.Since(start),
	})

	switch {
	case err == nil:
		metrics.CatalogRequests.WithLabelValues(endpoint, "ok").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.CatalogRequests.WithLabelValues(endpoint, "not_found").Inc()
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CatalogRequests.WithLabelValues(endpoint, "rejected").Inc()
		log.WithError(err).Warn("Catalog request rejected")
		return fmt.Errorf("catalog unavailable: %w", err)
	default:
		metrics.CatalogRequests.WithLabelValues(endpoint, "error").Inc()
		log.WithError(err).Warn("Catalog request failed")
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	log.Debug("Catalog request complete")
	return nil
}

func (c *Client) fetch(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the API key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, endpoint)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// cached consults cache, then collapses concurrent misses for the same key
// into a single load. The load is detached from the caller that started it
// and bounded by the client timeout, so one cancelled request does not fail
// the others waiting on the same key.
func cached[K comparable, V any](ctx context.Context, c *Client, name string, cache *expirable.LRU[K, V], key K, flightKey string, load func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := cache.Get(key); ok {
		metrics.CatalogCacheHits.WithLabelValues(name).Inc()
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	metrics.CatalogCacheMisses.WithLabelValues(name).Inc()

	ch := c.group.DoChan(name+":"+flightKey, func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout())
		defer cancel()
		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		cache.Add(key, v)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// loadTimeout bounds one shared load: a rate limiter wait plus one request.
func (c *Client) loadTimeout() time.Duration {
	if c.cfg.Timeout <= 0 {
		return 30 * time.Second
	}
	return 2 * c.cfg.Timeout
}
