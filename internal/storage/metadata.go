package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Movie is one row of the metadata table. Rows are aligned 1:1 with the
// rows of the feature matrix.
type Movie struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	Genres      []string `json:"genres"`
	ReleaseYear int      `json:"release_year,omitempty"`
}

var metadataHeader = []string{"id", "title", "overview", "genres", "release_year"}

// WriteMetadata writes movies as CSV with genres pipe-separated.
func WriteMetadata(w io.Writer, movies []Movie) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(metadataHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, m := range movies {
		year := ""
		if m.ReleaseYear > 0 {
			year = strconv.Itoa(m.ReleaseYear)
		}
		record := []string{
			strconv.Itoa(m.ID),
			m.Title,
			m.Overview,
			strings.Join(m.Genres, "|"),
			year,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write movie %d: %w", m.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadMetadata parses a metadata table. Columns are located by header name;
// id and title are required, the rest are optional.
func ReadMetadata(r io.Reader) ([]Movie, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"id", "title"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("metadata is missing the %q column", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var movies []Movie
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}

		id, err := parseInt(field(record, "id"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id: %w", line, err)
		}
		year, _ := parseInt(field(record, "release_year"))

		movies = append(movies, Movie{
			ID:          id,
			Title:       field(record, "title"),
			Overview:    field(record, "overview"),
			Genres:      ParseGenres(field(record, "genres")),
			ReleaseYear: year,
		})
	}
	return movies, nil
}

// ReadMetadataFile opens path and parses it with ReadMetadata.
func ReadMetadataFile(path string) ([]Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer f.Close()
	return ReadMetadata(f)
}

// ParseGenres accepts "Action|Drama" as well as the list literal form
// "['Action', 'Drama']" found in older exports.
func ParseGenres(raw string) []string {
	raw = strings.TrimSpace(raw)
	sep := "|"
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		raw = raw[1 : len(raw)-1]
		sep = ","
	}
	if raw == "" {
		return nil
	}

	var genres []string
	for _, part := range strings.Split(raw, sep) {
		g := strings.Trim(strings.TrimSpace(part), `'"`)
		if g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

// parseInt also accepts integral floats such as "27205.0".
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}
