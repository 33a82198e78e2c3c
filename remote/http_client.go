package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"sbr_monitor/config"
	"sbr_monitor/logger"
	"sbr_monitor/models"
)

const maxDocumentBytes = 32 << 20

// HTTPClient stores documents on a hosted JSON service (npoint.io, jsonbin
// and similar). URL layout, envelope and where the new id comes back are
// configurable so a provider swap is a config change.
type HTTPClient struct {
	httpClient *http.Client
	cfg        config.HTTPProviderConfig
	baseURL    string
	create     Backoff
}

// NewHTTPClient normalizes cfg and builds a client with the given transport timeout
func NewHTTPClient(cfg config.HTTPProviderConfig, timeout time.Duration, retry config.RetryConfig) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.WriteMethod == "" {
		cfg.WriteMethod = http.MethodPost
	}
	cfg.WriteMethod = strings.ToUpper(cfg.WriteMethod)
	if cfg.DocumentPath == "" {
		cfg.DocumentPath = "/{id}"
	}
	if cfg.IDField == "" && cfg.IDHeader == "" {
		cfg.IDField = "id"
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		create:     NewBackoff(retry),
	}
}

func (c *HTTPClient) documentURL(id string) string {
	return c.baseURL + strings.ReplaceAll(c.cfg.DocumentPath, "{id}", url.PathEscape(id))
}

// CreateDocument allocates a new document holding an empty history and
// returns its id. Failed attempts are retried with bounded backoff.
func (c *HTTPClient) CreateDocument(ctx context.Context) (string, error) {
	var id string
	attempts, err := c.create.Do(ctx, func(attempt int) error {
		var err error
		id, err = c.createOnce(ctx)
		if err != nil {
			logger.Debugf("create document attempt %d failed: %v\n", attempt, err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("create document after %d attempt(s): %w", attempts, err)
	}
	return id, nil
}

func (c *HTTPClient) createOnce(ctx context.Context) (string, error) {
	body, err := EncodeHistory(nil, c.cfg.EnvelopeField)
	if err != nil {
		return "", err
	}
	status, header, respBody, err := c.do(ctx, http.MethodPost, c.baseURL+c.cfg.CreatePath, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: create status %d", ErrUnavailable, status)
	}

	id := c.idFromResponse(header, respBody)
	if id == "" {
		return "", fmt.Errorf("%w: create response carried no id", ErrUnavailable)
	}
	return id, nil
}

func (c *HTTPClient) idFromResponse(header http.Header, body []byte) string {
	if c.cfg.IDHeader != "" {
		if v := strings.TrimSpace(header.Get(c.cfg.IDHeader)); v != "" {
			// Location-style headers carry a URL; the id is its last segment
			if u, err := url.Parse(v); err == nil && strings.Contains(u.Path, "/") {
				return path.Base(u.Path)
			}
			return v
		}
	}
	if c.cfg.IDField == "" {
		return ""
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, key := range strings.Split(c.cfg.IDField, ".") {
		obj, ok := doc.(map[string]any)
		if !ok {
			return ""
		}
		doc = obj[key]
	}
	switch v := doc.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// WriteDocument overwrites the document with history. No version check.
func (c *HTTPClient) WriteDocument(ctx context.Context, id string, history []models.Measurement) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	body, err := EncodeHistory(history, c.cfg.EnvelopeField)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	status, _, _, err := c.do(ctx, c.cfg.WriteMethod, c.documentURL(id), body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: write status %d", ErrUnavailable, status)
	}
	return nil
}

// ReadDocument fetches and decodes the document. Every failure, including a
// malformed payload, is reported as ErrNotFound; an empty array is success.
func (c *HTTPClient) ReadDocument(ctx context.Context, id string) ([]models.Measurement, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	status, _, body, err := c.do(ctx, http.MethodGet, c.documentURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: read status %d", ErrNotFound, status)
	}
	history, err := DecodeHistory(body, c.cfg.EnvelopeField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return history, nil
}

func (c *HTTPClient) do(ctx context.Context, method, target string, body []byte) (int, http.Header, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		if c.cfg.APIKeyHeader != "" {
			req.Header.Set(c.cfg.APIKeyHeader, key)
		} else {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, resp.Header, data, nil
}
