package sheet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrFetch wraps every failure to obtain rows from a Source.
var ErrFetch = errors.New("sheet: fetch failed")

// Source supplies the rows of one table.
type Source interface {
	Rows(ctx context.Context) ([]Row, error)
	String() string
}

// HTTPSource reads a table published as CSV, such as a Google Sheets
// "publish to web" link ending in output=csv.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource creates a source with its own client and timeout.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

// Rows downloads and parses the table.
func (s *HTTPSource) Rows(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.URL, err)
	}
	req.Header.Set("Accept", "text/csv")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: unexpected status %s", ErrFetch, s.URL, resp.Status)
	}

	rows, err := ReadCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.URL, err)
	}
	return rows, nil
}

func (s *HTTPSource) String() string { return s.URL }

// FileSource reads a CSV table from disk. It is used for seed data shown
// before the published sheet arrives.
type FileSource struct {
	Path string
}

// Rows opens and parses the file.
func (s FileSource) Rows(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, s.Path, err)
	}
	return rows, nil
}

func (s FileSource) String() string { return "file://" + s.Path }

// StaticRows is a Source over rows already in memory.
type StaticRows []Row

// Rows returns the rows as they are.
func (s StaticRows) Rows(ctx context.Context) ([]Row, error) {
	return s, nil
}

func (s StaticRows) String() string { return fmt.Sprintf("static(%d rows)", len(s)) }
