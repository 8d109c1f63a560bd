package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"nyaymitra/client/internal/fault"
)

const (
	processPath = "/api/v1/documents/process"
	searchPath  = "/api/v1/documents/search-laws"

	maxResponseBytes = 4 << 20
)

// Client talks to the document-analysis backend over plain HTTP.
type Client struct {
	baseURL       string
	http          *http.Client
	uploadTimeout time.Duration
	searchTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeouts bounds each upload and search call. Zero leaves a bound unset.
func WithTimeouts(upload, search time.Duration) Option {
	return func(c *Client) {
		c.uploadTimeout = upload
		c.searchTimeout = search
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{},
		uploadTimeout: 90 * time.Second,
		searchTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessDocument uploads file as the multipart field "file" and decodes the
// analysis. The backend's quota fallback (id 0) is reported as fault.ErrCapacity.
func (c *Client) ProcessDocument(ctx context.Context, file File) (AnalysisResult, error) {
	ctx, cancel := withTimeout(ctx, c.uploadTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return AnalysisResult{}, fmt.Errorf("write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return AnalysisResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+processPath, &body)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("build process request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("process document: %w", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: decode analysis: %v", fault.ErrRemote, err)
	}
	if result.ID != nil && *result.ID == 0 {
		return AnalysisResult{}, fmt.Errorf("%w: analysis fallback returned: %s", fault.ErrCapacity, result.Summary)
	}
	return result, nil
}

// SearchLaws queries the legal-knowledge endpoint. A JSON object instead of
// the usual array is the service-busy sentinel and yields fault.ErrCapacity.
func (c *Client) SearchLaws(ctx context.Context, query string) ([]RightCard, error) {
	ctx, cancel := withTimeout(ctx, c.searchTimeout)
	defer cancel()

	endpoint := c.baseURL + searchPath + "?" + url.Values{"query": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("search laws: %w", err)
	}
	return decodeCards(raw)
}

func decodeCards(raw []byte) ([]RightCard, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []RightCard{}, nil
	}

	if trimmed[0] == '{' {
		var marker struct {
			ID *int `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &marker); err != nil {
			return nil, fmt.Errorf("%w: decode search sentinel: %v", fault.ErrRemote, err)
		}
		return nil, fmt.Errorf("%w: search service busy", fault.ErrCapacity)
	}

	var cards []RightCard
	if err := json.Unmarshal(trimmed, &cards); err != nil {
		return nil, fmt.Errorf("%w: decode search results: %v", fault.ErrRemote, err)
	}
	for i := range cards {
		if cards[i].Type != CardWarning {
			cards[i].Type = CardInfo
		}
	}
	if cards == nil {
		cards = []RightCard{}
	}
	return cards, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", fault.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fault.RemoteError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 200)}
	}
	return raw, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
