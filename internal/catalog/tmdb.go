package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const maxCatalogRecommendations = 5

// Genres returns the catalog's movie genre list.
func (c *Client) Genres(ctx context.Context) ([]Genre, error) {
	var resp genreListResponse
	if err := c.get(ctx, "genres", "/genre/movie/list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

// PopularPage returns one page of popular movies and the total page count.
func (c *Client) PopularPage(ctx context.Context, page int) ([]Summary, int, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{"page": {strconv.Itoa(page)}}

	var resp pagedResponse
	if err := c.get(ctx, "popular", "/movie/popular", params, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Results, resp.TotalPages, nil
}

// Movie returns the details of a movie.
func (c *Client) Movie(ctx context.Context, id int) (Movie, error) {
	key := "movie/" + strconv.Itoa(id)
	return cached(ctx, c, "details", c.details, key, key, func(ctx context.Context) (Movie, error) {
		var resp movieResponse
		if err := c.get(ctx, "movie", "/movie/"+strconv.Itoa(id), nil, &resp); err != nil {
			return Movie{}, err
		}
		return Movie{
			ID:          resp.ID,
			MediaType:   MediaMovie,
			Title:       resp.Title,
			Overview:    resp.Overview,
			Genres:      genreNames(resp.Genres),
			PosterURL:   c.PosterURL(resp.PosterPath),
			BackdropURL: c.BackdropURL(resp.BackdropPath),
			ReleaseDate: orUnknown(resp.ReleaseDate),
			Rating:      resp.VoteAverage,
			Runtime:     resp.Runtime,
		}, nil
	})
}

// TV returns the details of a TV show in the same shape as Movie.
func (c *Client) TV(ctx context.Context, id int) (Movie, error) {
	key := "tv/" + strconv.Itoa(id)
	return cached(ctx, c, "details", c.details, key, key, func(ctx context.Context) (Movie, error) {
		var resp tvResponse
		if err := c.get(ctx, "tv", "/tv/"+strconv.Itoa(id), nil, &resp); err != nil {
			return Movie{}, err
		}
		return Movie{
			ID:          resp.ID,
			MediaType:   MediaTV,
			Title:       resp.Name,
			Overview:    resp.Overview,
			Genres:      genreNames(resp.Genres),
			PosterURL:   c.PosterURL(resp.PosterPath),
			BackdropURL: c.BackdropURL(resp.BackdropPath),
			ReleaseDate: orUnknown(resp.FirstAirDate),
			Rating:      resp.VoteAverage,
		}, nil
	})
}

// SearchMovies returns the first page of movie matches for query.
func (c *Client) SearchMovies(ctx context.Context, query string) ([]Summary, error) {
	return c.search(ctx, MediaMovie, query)
}

// SearchTV returns the first page of TV matches for query.
func (c *Client) SearchTV(ctx context.Context, query string) ([]Summary, error) {
	return c.search(ctx, MediaTV, query)
}

func (c *Client) search(ctx context.Context, media, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	key := media + ":" + strings.ToLower(query)
	return cached(ctx, c, "search", c.searches, key, key, func(ctx context.Context) ([]Summary, error) {
		params := url.Values{
			"query":         {query},
			"page":          {"1"},
			"include_adult": {"false"},
		}
		var resp pagedResponse
		if err := c.get(ctx, "search_"+media, "/search/"+media, params, &resp); err != nil {
			return nil, err
		}
		return resp.Results, nil
	})
}

// Recommendations returns the catalog's own top recommendations for a movie.
// The catalog does not expose a similarity score, so none is set.
func (c *Client) Recommendations(ctx context.Context, id int) ([]Movie, error) {
	return cached(ctx, c, "recommendations", c.recs, id, strconv.Itoa(id), func(ctx context.Context) ([]Movie, error) {
		params := url.Values{"page": {"1"}}
		var resp pagedResponse
		path := fmt.Sprintf("/movie/%d/recommendations", id)
		if err := c.get(ctx, "recommendations", path, params, &resp); err != nil {
			return nil, err
		}

		results := resp.Results
		if len(results) > maxCatalogRecommendations {
			results = results[:maxCatalogRecommendations]
		}
		movies := make([]Movie, 0, len(results))
		for _, r := range results {
			movies = append(movies, Movie{
				ID:          r.ID,
				MediaType:   MediaMovie,
				Title:       r.DisplayTitle(),
				Overview:    r.Overview,
				PosterURL:   c.PosterURL(r.PosterPath),
				BackdropURL: c.BackdropURL(r.BackdropPath),
				ReleaseDate: orUnknown(r.ReleaseDate),
				Rating:      r.VoteAverage,
			})
		}
		return movies, nil
	})
}

// Trending returns the titles of this week's trending movies.
func (c *Client) Trending(ctx context.Context) ([]string, error) {
	return cached(ctx, c, "trending", c.trending, "week", "week", func(ctx context.Context) ([]string, error) {
		var resp pagedResponse
		if err := c.get(ctx, "trending", "/trending/movie/week", nil, &resp); err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(resp.Results))
		for _, r := range resp.Results {
			titles = append(titles, r.DisplayTitle())
		}
		return titles, nil
	})
}
