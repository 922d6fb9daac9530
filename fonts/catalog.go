package fonts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotInCatalog means the catalog answered but has no font for the
// requested family.
var ErrNotInCatalog = errors.New("font not in catalog")

// Catalog serves font files by family name and style.
type Catalog interface {
	Fetch(ctx context.Context, family string, bold, italic bool) ([]byte, error)
}

// HTTPCatalog fetches fonts from a remote catalog service.
type HTTPCatalog struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	// MaxFontSize bounds a single downloaded font file.
	MaxFontSize int64
}

func NewHTTPCatalog(baseURL, apiKey string) *HTTPCatalog {
	return &HTTPCatalog{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Client:      &http.Client{Timeout: 30 * time.Second},
		MaxFontSize: 32 << 20,
	}
}

func (c *HTTPCatalog) Fetch(ctx context.Context, family string, bold, italic bool) ([]byte, error) {
	q := url.Values{}
	q.Set("family", family)
	if bold {
		q.Set("weight", "bold")
	}
	if italic {
		q.Set("style", "italic")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/fonts?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog fetch %s: %w", family, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotInCatalog, family)
	default:
		return nil, fmt.Errorf("catalog fetch %s: status %d", family, resp.StatusCode)
	}

	limit := c.MaxFontSize
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("catalog fetch %s: %w", family, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("catalog fetch %s: font exceeds %d bytes", family, limit)
	}
	return data, nil
}
