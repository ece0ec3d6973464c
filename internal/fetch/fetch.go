// Package fetch implements the search result-count fetcher over HTTP.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"searchwatch/pkg/logx"
)

const (
	DefaultPath    = "search/advanced"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 4 << 20
)

// ErrNoBaseURL is returned when the fetcher is used without an API base URL.
var ErrNoBaseURL = errors.New("fetch: api base url not configured")

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: unexpected status %d from %s", e.Code, e.URL)
}

type Config struct {
	BaseURL    string
	Path       string
	Timeout    time.Duration
	RatePerSec float64
	UserAgent  string
	Headers    map[string]string
}

// Client fetches result totals from the advanced search endpoint.
// It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

// New builds a Client. hc may be nil; a client with cfg.Timeout is created.
func New(cfg Config, hc *http.Client, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{cfg: cfg, http: hc, limiter: lim, log: log.With(logx.String("comp", "fetch"))}
}

type searchResponse struct {
	Info struct {
		Total *int64 `json:"total"`
	} `json:"info"`
}

// URL returns the request URL for a query: {base}/{path}?q=(<query>).
func (c *Client) URL(query string) (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", ErrNoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(c.cfg.Path, "/"))
	if err != nil {
		return "", fmt.Errorf("fetch: parse url: %w", err)
	}
	// Spaces as %20: the search backend does not treat '+' as a space.
	u.RawQuery = "q=" + strings.ReplaceAll(url.QueryEscape("("+query+")"), "+", "%20")
	return u.String(), nil
}

// FetchTotal returns info.total for query. Any non-200 response, transport
// error, or body without info.total is an error.
func (c *Client) FetchTotal(ctx context.Context, query string) (int64, error) {
	target, err := c.URL(query)
	if err != nil {
		return 0, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("fetch: rate wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return 0, &StatusError{Code: resp.StatusCode, URL: target}
	}

	var out searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return 0, fmt.Errorf("fetch: json decode: %w", err)
	}
	if out.Info.Total == nil {
		return 0, errors.New("fetch: response missing info.total")
	}
	if *out.Info.Total < 0 {
		return 0, fmt.Errorf("fetch: negative info.total %d", *out.Info.Total)
	}
	c.log.Trace("search total fetched", logx.Int64("total", *out.Info.Total), logx.Duration("took", time.Since(started)))
	return *out.Info.Total, nil
}
