package chatpdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"pdf-chat/internal/domain"
)

const (
	DefaultBaseURL = "https://api.chatpdf.com/v1"
	defaultTimeout = 30 * time.Second
	apiKeyHeader   = "x-api-key"
)

type addURLRequest struct {
	URL string `json:"url"`
}

type addSourceResponse struct {
	SourceID string `json:"sourceId"`
}

type messageRequest struct {
	SourceID         string               `json:"sourceId"`
	Messages         []domain.ChatMessage `json:"messages"`
	ReferenceSources bool                 `json:"referenceSources"`
}

type deleteRequest struct {
	Sources []string `json:"sources"`
}

// errorResponse is the body the service returns alongside non-2xx statuses.
type errorResponse struct {
	Message string `json:"message"`
}

// Reply is the assistant answer for a chat request.
type Reply struct {
	Content    string                 `json:"content"`
	References []domain.PageReference `json:"references,omitempty"`
}

type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// HTTPStatusError is returned for non-2xx responses. Message is taken from
// the response body when the service supplied one.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chatpdf: %s (status %d from %s)", e.Message, e.StatusCode, e.URL)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to a ChatPDF-compatible document chat API. The API key never
// leaves the process: it is read from the secret store on first use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secrets    SecretGetter
	keyName    string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client whose API key is stored under keyName.
func NewClient(secrets SecretGetter, keyName string, opts ...Option) (*Client, error) {
	if secrets == nil {
		return nil, errors.New("chatpdf: secret getter must not be nil")
	}
	keyName = strings.TrimSpace(keyName)
	if keyName == "" {
		return nil, errors.New("chatpdf: key parameter name must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		secrets:    secrets,
		keyName:    keyName,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveAPIKey caches the key after the first successful lookup. Failed
// lookups are retried on the next call.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := c.secrets.GetSecret(ctx, c.keyName)
	if err != nil {
		return "", fmt.Errorf("chatpdf: resolve api key: %w", err)
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func endpoint(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

// AddByURL registers a publicly reachable PDF and returns its source id.
func (c *Client) AddByURL(ctx context.Context, pdfURL string) (string, error) {
	var out addSourceResponse
	if err := c.postJSON(ctx, "/sources/add-url", addURLRequest{URL: pdfURL}, &out, "failed to add PDF by URL"); err != nil {
		return "", err
	}
	if out.SourceID == "" {
		return "", errors.New("chatpdf: add-url response missing sourceId")
	}
	return out.SourceID, nil
}

// AddByFile uploads a PDF as multipart form data and returns its source id.
func (c *Client) AddByFile(ctx context.Context, name string, r io.Reader) (string, error) {
	if r == nil {
		return "", errors.New("chatpdf: file reader must not be nil")
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("chatpdf: create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("chatpdf: copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("chatpdf: close multipart writer: %w", err)
	}

	var out addSourceResponse
	if err := c.post(ctx, "/sources/add-file", &body, w.FormDataContentType(), &out, "failed to upload PDF"); err != nil {
		return "", err
	}
	if out.SourceID == "" {
		return "", errors.New("chatpdf: add-file response missing sourceId")
	}
	return out.SourceID, nil
}

// SendMessage asks a question against a registered source. messages must
// already be trimmed to what the service accepts.
func (c *Client) SendMessage(ctx context.Context, sourceID string, messages []domain.ChatMessage, referenceSources bool) (Reply, error) {
	if strings.TrimSpace(sourceID) == "" {
		return Reply{}, errors.New("chatpdf: source id must not be empty")
	}
	var out Reply
	req := messageRequest{SourceID: sourceID, Messages: messages, ReferenceSources: referenceSources}
	if err := c.postJSON(ctx, "/chats/message", req, &out, "failed to chat with PDF"); err != nil {
		return Reply{}, err
	}
	return out, nil
}

// DeleteSource removes a registered source from the service.
func (c *Client) DeleteSource(ctx context.Context, sourceID string) error {
	if strings.TrimSpace(sourceID) == "" {
		return errors.New("chatpdf: source id must not be empty")
	}
	return c.postJSON(ctx, "/sources/delete", deleteRequest{Sources: []string{sourceID}}, nil, "failed to delete PDF")
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any, failure string) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("chatpdf: marshal request: %w", err)
	}
	return c.post(ctx, path, bytes.NewReader(body), "application/json", out, failure)
}

func (c *Client) post(ctx context.Context, path string, body io.Reader, contentType string, out any, failure string) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	url := endpoint(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("chatpdf: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(apiKeyHeader, apiKey)

	raw, err := c.do(req, url, failure)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("chatpdf: decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request, url, failure string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("chatpdf: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		msg := failure
		var payload errorResponse
		if json.Unmarshal(buf, &payload) == nil && strings.TrimSpace(payload.Message) != "" {
			msg = payload.Message
		}
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Message: msg}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("chatpdf: read response body: %w", err)
	}
	return buf, nil
}
