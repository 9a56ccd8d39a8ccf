// Package hdx implements the HTTP client for the Humanitarian Data Exchange
// (HDX) CKAN catalog that hosts the WFP food price datasets. All methods are
// context-aware, respect the shared rate limiter, and retry on transient
// errors (429, 5xx).
package hdx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the HDX CKAN action API root.
	DefaultBaseURL = "https://data.humdata.org/api/3/action/"
	// DefaultIndexDataset lists every country with a WFP price dataset.
	DefaultIndexDataset = "global-wfp-food-prices"

	maxRetries = 4
	userAgent  = "pricetrack-cli/1.0"
)

// ErrNotFound is returned when a country or dataset does not exist.
var ErrNotFound = errors.New("not found")

// Client is the HDX catalog HTTP client.
type Client struct {
	baseURL      string
	indexDataset string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a Client. Empty baseURL and indexDataset select the
// public HDX defaults.
func NewClient(baseURL, indexDataset string, timeout time.Duration, ratePerSec float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if indexDataset == "" {
		indexDataset = DefaultIndexDataset
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:      baseURL,
		indexDataset: indexDataset,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

// IndexDataset returns the identifier of the country index dataset.
func (c *Client) IndexDataset() string { return c.indexDataset }

// ─── CKAN actions ─────────────────────────────────────────────────────────────

// Resource is one downloadable file attached to a dataset.
type Resource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Format string `json:"format"`
	URL    string `json:"url"`
}

// Dataset is the subset of a CKAN package used here.
type Dataset struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Resources []Resource `json:"resources"`
}

// PackageShow fetches dataset metadata by identifier.
func (c *Client) PackageShow(ctx context.Context, id string) (*Dataset, error) {
	params := url.Values{}
	params.Set("id", id)

	var ds Dataset
	if err := c.action(ctx, "package_show", params, &ds); err != nil {
		return nil, fmt.Errorf("package_show %s: %w", id, err)
	}
	return &ds, nil
}

// firstResourceURL returns the URL of the dataset's first resource, where
// HDX keeps the full price table.
func (c *Client) firstResourceURL(ctx context.Context, id string) (string, error) {
	ds, err := c.PackageShow(ctx, id)
	if err != nil {
		return "", err
	}
	if len(ds.Resources) == 0 || ds.Resources[0].URL == "" {
		return "", fmt.Errorf("dataset %s: no downloadable resource: %w", id, ErrNotFound)
	}
	return ds.Resources[0].URL, nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// action calls a CKAN action and decodes its "result" into out.
func (c *Client) action(ctx context.Context, name string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + name + "?" + params.Encode()
	body, status, err := c.fetch(ctx, reqURL, "application/json")
	if err != nil {
		return err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   struct {
			Type    string `json:"__type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if status != http.StatusOK {
			return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	if status == http.StatusNotFound || envelope.Error.Type == "Not Found Error" {
		return fmt.Errorf("%s: %w", envelope.Error.Message, ErrNotFound)
	}
	if status != http.StatusOK || !envelope.Success {
		if envelope.Error.Message != "" {
			return fmt.Errorf("API error: %s", envelope.Error.Message)
		}
		return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

// download fetches a resource file and fails on any non-200 status.
func (c *Client) download(ctx context.Context, rawURL string) ([]byte, error) {
	body, status, err := c.fetch(ctx, rawURL, "text/csv")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// fetch performs a GET request, handling rate limiting and retries. It
// returns the body and status of the first non-retryable response.
func (c *Client) fetch(ctx context.Context, reqURL, accept string) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	slog.Debug("hdx request", "url", reqURL)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}
		slog.Debug("hdx response", "status", resp.StatusCode, "bytes", len(body))

		// Retry on server errors and rate limiting
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}
