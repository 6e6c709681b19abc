// Package api exports metadata and records from a REDCap project's web API.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redcapp/redcapp/internal/metadata"
)

// Content values understood by the export endpoint
const (
	ContentMetadata         = "metadata"
	ContentExportFieldNames = "exportFieldNames"
	ContentRecord           = "record"
)

// SessionHeader carries the client's session id on every request
const SessionHeader = "X-Redcapp-Session"

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 4096

// Client talks to one project. All state is per client; two clients never
// share anything.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
	session    uuid.UUID
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the client's logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the API at endpoint, e.g.
// https://redcap.example.org/api/
func NewClient(endpoint, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", endpoint)
	}
	if token == "" {
		return nil, fmt.Errorf("API token is required")
	}

	c := &Client{
		endpoint:   u.String(),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zap.NewNop(),
		session:    uuid.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("session", c.session.String()))
	return c, nil
}

// Session returns the id sent with every request of this client
func (c *Client) Session() uuid.UUID {
	return c.session
}

// Endpoint returns the API URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Metadata exports the data dictionary
func (c *Client) Metadata(ctx context.Context) ([]metadata.Metadatum, error) {
	var rows []metadata.Metadatum
	if err := c.export(ctx, ContentMetadata, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// FieldNames exports the export-name to canonical-name mapping
func (c *Client) FieldNames(ctx context.Context) ([]metadata.FieldName, error) {
	var names []metadata.FieldName
	if err := c.export(ctx, ContentExportFieldNames, nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Snapshot exports both lists an index is built from
func (c *Client) Snapshot(ctx context.Context) (*metadata.Snapshot, error) {
	rows, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	names, err := c.FieldNames(ctx)
	if err != nil {
		return nil, err
	}
	return &metadata.Snapshot{Metadata: rows, FieldNames: names}, nil
}

// Records exports records in flat form. With no fields every field is
// exported.
func (c *Client) Records(ctx context.Context, fields ...string) ([]metadata.Record, error) {
	params := url.Values{}
	params.Set("type", "flat")
	for i, f := range fields {
		params.Set("fields["+strconv.Itoa(i)+"]", f)
	}

	var records []metadata.Record
	if err := c.export(ctx, ContentRecord, params, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) export(ctx context.Context, content string, params url.Values, out interface{}) error {
	form := url.Values{}
	for k, vs := range params {
		form[k] = vs
	}
	form.Set("token", c.token)
	form.Set("content", content)
	form.Set("format", "json")
	form.Set("returnFormat", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", content, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(SessionHeader, c.session.String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s export failed: %w", content, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		zap.String("content", content),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(content, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", content, err)
	}
	return nil
}
