package catalog

import (
	"strconv"
	"strings"
)

// Media types reported on Movie.
const (
	MediaMovie = "movie"
	MediaTV    = "tv"
)

// Genre is a catalog genre id/name pair.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Summary is one entry of a paged list or search response. Movies carry
// Title and ReleaseDate, TV shows carry Name and FirstAirDate.
type Summary struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	GenreIDs     []int   `json:"genre_ids"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	Popularity   float64 `json:"popularity"`
}

// DisplayTitle returns Title for movies and Name for TV shows.
func (s Summary) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Name
}

// ReleaseYear parses the leading year of the release or first air date.
func (s Summary) ReleaseYear() int {
	date := s.ReleaseDate
	if date == "" {
		date = s.FirstAirDate
	}
	return yearOf(date)
}

// Movie is the detailed view of a movie or TV show with resolved image URLs.
type Movie struct {
	ID          int      `json:"id"`
	MediaType   string   `json:"media_type"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	Genres      []string `json:"genres"`
	PosterURL   string   `json:"poster_url"`
	BackdropURL string   `json:"backdrop_url,omitempty"`
	ReleaseDate string   `json:"release_date"`
	Rating      float64  `json:"rating"`
	Runtime     int      `json:"runtime,omitempty"`
}

type pagedResponse struct {
	Page         int       `json:"page"`
	TotalPages   int       `json:"total_pages"`
	TotalResults int       `json:"total_results"`
	Results      []Summary `json:"results"`
}

type genreListResponse struct {
	Genres []Genre `json:"genres"`
}

type movieResponse struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	Genres       []Genre `json:"genres"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	ReleaseDate  string  `json:"release_date"`
	VoteAverage  float64 `json:"vote_average"`
	Runtime      int     `json:"runtime"`
}

type tvResponse struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	Genres       []Genre `json:"genres"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	FirstAirDate string  `json:"first_air_date"`
	VoteAverage  float64 `json:"vote_average"`
}

func genreNames(genres []Genre) []string {
	names := make([]string, 0, len(genres))
	for _, g := range genres {
		names = append(names, g.Name)
	}
	return names
}

func orUnknown(date string) string {
	if date == "" {
		return "Unknown"
	}
	return date
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// GenreNames maps genre ids to names using lookup, skipping unknown ids.
func GenreNames(ids []int, lookup map[int]string) []string {
	var names []string
	for _, id := range ids {
		if name, ok := lookup[id]; ok && strings.TrimSpace(name) != "" {
			names = append(names, name)
		}
	}
	return names
}
