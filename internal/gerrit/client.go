// Package gerrit provides functionality for interacting with the Gerrit REST API.
package gerrit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// xssiPrefix is prepended by Gerrit to every JSON response body.
const xssiPrefix = ")]}'"

var (
	ErrNotFound     = errors.New("gerrit resource not found")
	ErrUnauthorized = errors.New("gerrit authentication failed")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gerrit API error (status %d) for %s: %s", e.StatusCode, e.Path, e.Body)
}

// Unwrap maps well-known status codes to sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

// Client is the read-only view of the Gerrit REST API used by the scraper.
// Path is relative to the server root and may carry a query string, e.g.
// "/changes/?q=status:open&start=0".
//
//go:generate mockgen -destination=../../mocks/mock_gerrit_client.go -package=mocks . Client
type Client interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

type restClient struct {
	baseURL string
	auth    Auth
	client  *http.Client
	logger  *slog.Logger
}

// Get issues a GET request and returns the JSON body with the XSSI prefix
// removed.
func (c *restClient) Get(ctx context.Context, path string) (json.RawMessage, error) {
	url := c.baseURL + c.auth.pathPrefix() + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.auth.apply(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("gerrit request failed", "path", path, "error", err)
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}

	payload := bytes.TrimSpace(bytes.TrimPrefix(body, []byte(xssiPrefix)))
	if !json.Valid(payload) {
		return nil, fmt.Errorf("invalid JSON response for %s", path)
	}
	return json.RawMessage(payload), nil
}
