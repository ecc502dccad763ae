// Package comicvine is a small, rate limited client for the ComicVine API.
package comicvine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"comictracker/internal/apperr"
	"comictracker/internal/logging"
	"comictracker/pkg/utils"
)

const (
	issuePageSize = 100
	searchLimit   = 20
	maxBodyBytes  = 16 << 20
)

// Resources accepted by search and import.
var Resources = []string{"publisher", "volume", "issue", "character", "team"}

func ValidResource(r string) bool {
	for _, v := range Resources {
		if v == r {
			return true
		}
	}
	return false
}

var ErrForeignURL = apperr.New(apperr.KindValidation, "foreign_detail_url", "detail url does not point at the ComicVine API")

// APIError is a failed ComicVine exchange: a non-200 response, an error
// payload, or a transport failure (StatusCode 0).
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := "comicvine: " + e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("comicvine: status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) ErrorKind() apperr.Kind { return apperr.KindExternal }

// Unauthorized reports whether ComicVine rejected the API key.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden ||
		strings.Contains(strings.ToLower(e.Message), "invalid api key")
}

// IsUnauthorized reports whether err carries a rejected-key APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

type Client struct {
	BaseURL   *url.URL
	UserAgent string
	HTTP      *http.Client
	Limiter   *rate.Limiter
	MaxIssues int
	Logger    *slog.Logger
}

// NewClient builds a client that waits RequestDelay between requests.
func NewClient(cfg utils.ComicVineConfig, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("comicvine: invalid base url %q", cfg.BaseURL)
	}
	limit := rate.Inf
	if d := cfg.RequestDelay.Std(); d > 0 {
		limit = rate.Every(d)
	}
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxIssues := cfg.MaxIssues
	if maxIssues <= 0 {
		maxIssues = 200
	}
	return &Client{
		BaseURL:   base,
		UserAgent: cfg.UserAgent,
		HTTP:      &http.Client{Timeout: timeout},
		Limiter:   rate.NewLimiter(limit, 1),
		MaxIssues: maxIssues,
		Logger:    logging.OrDiscard(logger),
	}, nil
}

type envelope struct {
	Error                string          `json:"error"`
	StatusCode           int             `json:"status_code"`
	NumberOfTotalResults int             `json:"number_of_total_results"`
	Results              json.RawMessage `json:"results"`
}

// Detail fetches one resource by its api_detail_url.
func (c *Client) Detail(ctx context.Context, apiKey, detailURL string) (*Record, error) {
	u, err := url.Parse(detailURL)
	if err != nil {
		return nil, ErrForeignURL
	}
	if !strings.EqualFold(u.Host, c.BaseURL.Host) {
		return nil, ErrForeignURL
	}
	var rec Record
	if _, err := c.get(ctx, apiKey, u, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IssueURLsForVolume pages through a volume's issues and returns their
// detail urls, capped at MaxIssues.
func (c *Client) IssueURLsForVolume(ctx context.Context, apiKey string, volumeID int64) ([]string, error) {
	var urls []string
	offset := 0
	for len(urls) < c.MaxIssues {
		params := url.Values{}
		params.Set("filter", fmt.Sprintf("volume:%d", volumeID))
		params.Set("limit", strconv.Itoa(issuePageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("field_list", "id,api_detail_url")

		var page []Record
		env, err := c.get(ctx, apiKey, c.endpoint("/issues/"), params, &page)
		if err != nil {
			return nil, err
		}
		for _, rec := range page {
			if rec.APIDetailURL != "" {
				urls = append(urls, rec.APIDetailURL)
			}
		}
		offset += len(page)
		if len(page) == 0 || offset >= env.NumberOfTotalResults {
			break
		}
	}
	if len(urls) > c.MaxIssues {
		urls = urls[:c.MaxIssues]
	}
	return urls, nil
}

// Search queries one resource type. Publisher searches that come back empty
// retry against the publishers list filtered by name.
func (c *Client) Search(ctx context.Context, apiKey, query, resource string) ([]Record, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("resources", resource)
	params.Set("limit", strconv.Itoa(searchLimit))

	var results []Record
	if _, err := c.get(ctx, apiKey, c.endpoint("/search/"), params, &results); err != nil {
		return nil, err
	}
	if resource != "publisher" || len(results) > 0 {
		return results, nil
	}

	params = url.Values{}
	params.Set("filter", "name:"+query)
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Set("field_list", "id,name,api_detail_url,deck,description")
	results = nil
	if _, err := c.get(ctx, apiKey, c.endpoint("/publishers/"), params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return &u
}

// get waits for the limiter, performs the request and decodes results into out.
func (c *Client) get(ctx context.Context, apiKey string, u *url.URL, params url.Values, out any) (*envelope, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("comicvine: wait for rate limit: %w", err)
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	q.Set("api_key", apiKey)
	q.Set("format", "json")
	target := *u
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("comicvine: build request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		// *url.Error embeds the full url, which carries the key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &APIError{Message: "request " + u.Path + " failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}
	c.Logger.Debug("comicvine request", "path", u.Path, "status", resp.StatusCode, "duration", time.Since(start))

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Error != "" {
			msg = env.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "decode response", Err: decodeErr}
	}
	if env.Error != "" && env.Error != "OK" {
		code := resp.StatusCode
		if env.StatusCode == 100 {
			code = http.StatusUnauthorized
		}
		return nil, &APIError{StatusCode: code, Message: env.Error}
	}

	if len(env.Results) > 0 && string(env.Results) != "null" {
		if err := json.Unmarshal(env.Results, out); err != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "decode results", Err: err}
		}
	}
	return &env, nil
}
