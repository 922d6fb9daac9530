// Package translate is the boundary to the external translation
// service. It speaks a DeepL-style HTTP API: ordered texts in, the
// same number of translations out.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Client translates an ordered slice of texts. Implementations must
// return exactly one output per input, in input order. Empty inputs
// pass through as empty outputs.
type Client interface {
	Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error)
}

// AuthError reports a rejected API key. It is fatal: retrying cannot
// help and the whole run should stop.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("translation auth failed (status %d): %s", e.Status, e.Message)
}

// RateLimitError reports HTTP 429. Retryable after backoff.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("translation rate limited: %s", e.Message)
}

// TransientError wraps server-side and network failures that a retry
// may resolve.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("translation transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// ParseLang validates a user-supplied language code ("PT-BR", "es",
// "FR") into a canonical tag.
func ParseLang(code string) (language.Tag, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return tag, nil
}

// apiCode renders a tag the way the service expects: upper-case base,
// region suffix kept ("PT-BR").
func apiCode(tag language.Tag, keepRegion bool) string {
	s := tag.String()
	if !keepRegion {
		if idx := strings.IndexByte(s, '-'); idx > 0 {
			s = s[:idx]
		}
	}
	return strings.ToUpper(s)
}

// Config holds HTTP client options. Zero values get defaults.
type Config struct {
	APIKey        string
	BaseURL       string // default https://api-free.deepl.com
	MaxBatchTexts int    // texts per request, default 50
	MaxBatchChars int    // request payload budget, default 30000
	MaxRetries    int    // attempts per batch, default 3
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// HTTPClient is the production Client. Batches are size-bounded and
// sent sequentially; order is preserved by construction.
type HTTPClient struct {
	cfg Config
}

func New(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-free.deepl.com"
	}
	if cfg.MaxBatchTexts <= 0 {
		cfg.MaxBatchTexts = 50
	}
	if cfg.MaxBatchChars <= 0 {
		cfg.MaxBatchChars = 30000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{cfg: cfg}
}

func (c *HTTPClient) Translate(ctx context.Context, texts []string, source, target language.Tag) ([]string, error) {
	out := make([]string, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	// Blank inputs never reach the wire.
	indices := make([]int, 0, len(texts))
	payload := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = t
			continue
		}
		indices = append(indices, i)
		payload = append(payload, t)
	}
	if len(payload) == 0 {
		return out, nil
	}

	pos := 0
	for _, batch := range mergeBatches(payload, c.cfg.MaxBatchTexts, c.cfg.MaxBatchChars) {
		translated, err := c.translateBatch(ctx, batch, source, target)
		if err != nil {
			return nil, err
		}
		if len(translated) != len(batch) {
			return nil, fmt.Errorf("service returned %d translations for %d texts", len(translated), len(batch))
		}
		for _, t := range translated {
			out[indices[pos]] = t
			pos++
		}
	}
	return out, nil
}

// mergeBatches groups texts under both count and character budgets.
// A single oversized text still travels, alone.
func mergeBatches(texts []string, maxTexts, maxChars int) [][]string {
	var batches [][]string
	var cur []string
	size := 0
	for _, t := range texts {
		if len(cur) > 0 && (len(cur) >= maxTexts || size+len(t) > maxChars) {
			batches = append(batches, cur)
			cur = nil
			size = 0
		}
		cur = append(cur, t)
		size += len(t)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

type apiResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
	Message string `json:"message"`
}

func (c *HTTPClient) translateBatch(ctx context.Context, batch []string, source, target language.Tag) ([]string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		translated, err := c.doRequest(ctx, batch, source, target)
		if err == nil {
			return translated, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		if attempt < c.cfg.MaxRetries {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) doRequest(ctx context.Context, batch []string, source, target language.Tag) ([]string, error) {
	form := url.Values{}
	for _, t := range batch {
		form.Add("text", t)
	}
	if source != language.Und {
		form.Set("source_lang", apiCode(source, false))
	}
	form.Set("target_lang", apiCode(target, true))

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v2/translate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	out := make([]string, len(parsed.Translations))
	for i, t := range parsed.Translations {
		out[i] = t.Text
	}
	return out, nil
}

func classifyStatus(status int, body []byte) error {
	msg := serviceMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Status: status, Message: msg}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: msg}
	case status >= 500:
		return &TransientError{Err: fmt.Errorf("status %d: %s", status, msg)}
	default:
		return fmt.Errorf("translation request failed (status %d): %s", status, msg)
	}
}

func serviceMessage(body []byte) string {
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func retryable(err error) bool {
	switch err.(type) {
	case *RateLimitError, *TransientError:
		return true
	}
	return false
}

func sleepBackoff(ctx context.Context, attempt int) error {
	delay := 500 * time.Millisecond * time.Duration(1<<uint(attempt-1))
	if delay > 8*time.Second {
		delay = 8 * time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
