package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the configuration for the recommendation service and the
// artifact builder
type Config struct {
	Server      ServerConfig
	Artifacts   ArtifactsConfig
	Vectorizer  VectorizerConfig
	Recommender RecommenderConfig
	Catalog     CatalogConfig
	Ingest      IngestConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string        `validate:"required"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	RequestTimeout  time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	AllowedOrigins  []string      `validate:"dive,required"`
	RateLimit       int           `validate:"gte=0"` // requests per minute per client, 0 disables
	StaticDir       string
	EnableMetrics   bool
}

// ArtifactsConfig points at the fitted model on disk. MetadataPath and
// MatrixPath load a bare metadata/matrix pair when Dir holds no manifest.
type ArtifactsConfig struct {
	Dir          string `validate:"required"`
	MetadataPath string
	MatrixPath   string
}

// VectorizerConfig holds fitting parameters
type VectorizerConfig struct {
	MaxFeatures int     `validate:"gte=0"` // 0 keeps every term
	GenreWeight float64 `validate:"gt=0"`
}

// RecommenderConfig holds query-time parameters
type RecommenderConfig struct {
	DefaultK          int `validate:"gte=1,ltefield=MaxK"`
	MaxK              int `validate:"gte=1"`
	EnrichConcurrency int `validate:"gte=1"`
}

// CatalogConfig holds the external movie catalog client configuration.
// An empty APIKey runs the service on local data only.
type CatalogConfig struct {
	APIKey            string
	BaseURL           string        `validate:"required,url"`
	ImageBaseURL      string        `validate:"required,url"`
	Language          string        `validate:"required"`
	UserAgent         string        `validate:"required"`
	Timeout           time.Duration `validate:"gt=0"`
	RequestsPerSecond float64       `validate:"gt=0"`
	Burst             int           `validate:"gte=1"`

	DetailsCacheSize   int           `validate:"gte=1"`
	SearchCacheSize    int           `validate:"gte=1"`
	RecommendCacheSize int           `validate:"gte=1"`
	CacheTTL           time.Duration `validate:"gt=0"`
	TrendingTTL        time.Duration `validate:"gt=0"`

	BreakerMaxFailures int           `validate:"gte=1"`
	BreakerTimeout     time.Duration `validate:"gt=0"`
}

// IngestConfig holds artifact build configuration
type IngestConfig struct {
	Pages       int `validate:"gte=1,lte=500"`
	Concurrency int `validate:"gte=1"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `validate:"oneof=text json"`
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            GetStringEnv("SERVER_ADDR", ":8000"),
			ReadTimeout:     GetDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    GetDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  GetDurationEnv("SERVER_REQUEST_TIMEOUT", 20*time.Second),
			ShutdownTimeout: GetDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins: GetListEnv("SERVER_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
				"http://localhost:5173",
				"http://127.0.0.1:5173",
			}),
			RateLimit:     GetIntEnv("SERVER_RATE_LIMIT", 120),
			StaticDir:     GetStringEnv("STATIC_DIR", ""),
			EnableMetrics: GetBoolEnv("SERVER_ENABLE_METRICS", true),
		},
		Artifacts: ArtifactsConfig{
			Dir:          GetStringEnv("ARTIFACTS_DIR", "./data"),
			MetadataPath: GetStringEnv("METADATA_PATH", ""),
			MatrixPath:   GetStringEnv("MATRIX_PATH", ""),
		},
		Vectorizer: VectorizerConfig{
			MaxFeatures: GetIntEnv("VECTORIZER_MAX_FEATURES", 0),
			GenreWeight: GetFloatEnv("VECTORIZER_GENRE_WEIGHT", 1.0),
		},
		Recommender: RecommenderConfig{
			DefaultK:          GetIntEnv("RECOMMENDER_DEFAULT_K", 5),
			MaxK:              GetIntEnv("RECOMMENDER_MAX_K", 50),
			EnrichConcurrency: GetIntEnv("RECOMMENDER_ENRICH_CONCURRENCY", 5),
		},
		Catalog: CatalogConfig{
			APIKey:             GetStringEnv("TMDB_API_KEY", ""),
			BaseURL:            GetStringEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
			ImageBaseURL:       GetStringEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p"),
			Language:           GetStringEnv("TMDB_LANGUAGE", "en-US"),
			UserAgent:          GetStringEnv("TMDB_USER_AGENT", "MovieMatch/1.0"),
			Timeout:            GetDurationEnv("TMDB_TIMEOUT", 5*time.Second),
			RequestsPerSecond:  GetFloatEnv("TMDB_REQUESTS_PER_SECOND", 20),
			Burst:              GetIntEnv("TMDB_BURST", 10),
			DetailsCacheSize:   GetIntEnv("TMDB_DETAILS_CACHE_SIZE", 256),
			SearchCacheSize:    GetIntEnv("TMDB_SEARCH_CACHE_SIZE", 128),
			RecommendCacheSize: GetIntEnv("TMDB_RECOMMEND_CACHE_SIZE", 64),
			CacheTTL:           GetDurationEnv("TMDB_CACHE_TTL", 6*time.Hour),
			TrendingTTL:        GetDurationEnv("TMDB_TRENDING_TTL", 1*time.Hour),
			BreakerMaxFailures: GetIntEnv("TMDB_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:     GetDurationEnv("TMDB_BREAKER_TIMEOUT", 30*time.Second),
		},
		Ingest: IngestConfig{
			Pages:       GetIntEnv("INGEST_PAGES", 25),
			Concurrency: GetIntEnv("INGEST_CONCURRENCY", 4),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(GetStringEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(GetStringEnv("LOG_FORMAT", "text")),
		},
	}
}

// Validate checks every section against its constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// CatalogEnabled reports whether an API key for the catalog is configured
func (c *Config) CatalogEnabled() bool {
	return c.Catalog.APIKey != ""
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetListEnv splits a comma-separated variable, dropping empty items
func GetListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
