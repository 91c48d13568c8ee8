// Package conversations implements the conversation ports against the
// upstream conversation service's REST API.
package conversations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.ConversationLister = (*Client)(nil)
	_ driven.ConversationWriter = (*Client)(nil)
)

// maxErrorBodyBytes bounds how much of an error response is kept for logs.
const maxErrorBodyBytes = 512

// StatusError is returned when the upstream answers with a non-2xx status.
// It wraps driven.ErrUnexpectedStatus.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match driven.ErrUnexpectedStatus.
func (e *StatusError) Unwrap() error {
	return driven.ErrUnexpectedStatus
}

// Client implements the conversation ports over HTTP.
type Client struct {
	http    *http.Client
	baseURL *url.URL
}

// NewClient creates an upstream client with the following transport stack:
//  1. httpcache (ETag/Last-Modified conditional caching of listing pages)
//  2. go-github-ratelimit (sleeps and retries when the upstream answers 429
//     or 403 with a retry hint)
//  3. http.Client with the given overall request timeout
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	rateLimitClient.Timeout = timeout

	return NewClientWithHTTPClient(rateLimitClient, baseURL)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{http: httpClient, baseURL: u}, nil
}

// listResponse is the JSON shape of the archived-conversation listing.
type listResponse struct {
	Items []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"items"`
}

// ListArchived fetches one page of archived conversations, most recently
// updated first.
func (c *Client) ListArchived(ctx context.Context, cred model.Credential, offset, limit int) ([]model.ArchivedItem, error) {
	endpoint := c.endpoint("conversations")
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("order", "updated")
	query.Set("is_archived", "true")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating list request: %w", err)
	}
	req.Header.Set("Authorization", cred.Value)
	req.Header.Set("Accept", "application/json")
	// The listing changes between runs; always revalidate cached pages.
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing archived conversations (offset %d): %w", offset, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError("list archived conversations", resp)
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding archived conversations (offset %d): %w", offset, err)
	}

	slog.Debug("conversation api call",
		"endpoint", "conversations",
		"offset", offset,
		"limit", limit,
		"count", len(body.Items),
		"cached", resp.Header.Get(httpcache.XFromCache) != "",
	)

	items := make([]model.ArchivedItem, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, model.ArchivedItem{ID: item.ID, Title: item.Title})
	}
	return items, nil
}

// Unarchive clears the archived flag on a single conversation. Success is
// judged by the status code alone; the response body is not inspected.
func (c *Client) Unarchive(ctx context.Context, cred model.Credential, id string) error {
	payload, err := json.Marshal(map[string]bool{"is_archived": false})
	if err != nil {
		return fmt.Errorf("marshaling unarchive payload: %w", err)
	}

	endpoint := c.endpoint("conversation", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating unarchive request for %s: %w", id, err)
	}
	req.Header.Set("Authorization", cred.Value)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unarchiving %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError("unarchive "+id, resp)
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// endpoint joins path segments onto the base URL. Segments are escaped
// because JoinPath treats its arguments as already-escaped path text.
func (c *Client) endpoint(segments ...string) *url.URL {
	escaped := make([]string, 0, len(segments))
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return c.baseURL.JoinPath(escaped...)
}

// newStatusError builds a StatusError, keeping a short prefix of the body.
func newStatusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
