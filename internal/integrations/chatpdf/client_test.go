package chatpdf

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdf-chat/internal/domain"
)

type fakeSecrets struct {
	val   string
	err   error
	calls int
}

func (f *fakeSecrets) GetSecret(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeSecrets{val: "sec_test"},
		"/pdf-chat/chatpdf-api-key",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestEndpoint(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.chatpdf.com/v1", "https://api.chatpdf.com/v1/chats/message"},
		{"https://api.chatpdf.com/v1/", "https://api.chatpdf.com/v1/chats/message"},
		{"http://localhost:8080", "http://localhost:8080/v1/chats/message"},
		{"", "https://api.chatpdf.com/v1/chats/message"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, endpoint(tc.base, "/chats/message"), "base=%q", tc.base)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/pdf-chat/chatpdf-api-key")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(&fakeSecrets{}, " ")
	require.ErrorContains(t, err, "empty")

	c, err := NewClient(&fakeSecrets{}, "/pdf-chat/chatpdf-api-key")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestResolveAPIKey_CachedAfterSuccess(t *testing.T) {
	s := &fakeSecrets{val: "sec_once"}
	c, err := NewClient(s, "/k")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := c.resolveAPIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sec_once", key)
	}
	require.Equal(t, 1, s.calls)
}

func TestResolveAPIKey_RetriedAfterFailure(t *testing.T) {
	s := &fakeSecrets{err: errors.New("ssm throttled")}
	c, err := NewClient(s, "/k")
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm throttled")

	s.err = nil
	s.val = "sec_later"
	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sec_later", key)
	require.Equal(t, 2, s.calls)
}

func TestClient_AddByURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sources/add-url", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "sec_test", r.Header.Get("x-api-key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body addURLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "https://example.com/report.pdf", body.URL)
		_, _ = w.Write([]byte(`{"sourceId":"src_123"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).AddByURL(context.Background(), "https://example.com/report.pdf")
	require.NoError(t, err)
	require.Equal(t, "src_123", id)
}

func TestClient_AddByURL_MissingSourceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).AddByURL(context.Background(), "https://example.com/a.pdf")
	require.ErrorContains(t, err, "missing sourceId")
}

func TestClient_AddByFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sources/add-file", r.URL.Path)
		require.Equal(t, "sec_test", r.Header.Get("x-api-key"))
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "notes.pdf", hdr.Filename)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, "%PDF-1.7 body", string(data))

		_, _ = w.Write([]byte(`{"sourceId":"src_file"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv).AddByFile(context.Background(), "notes.pdf", strings.NewReader("%PDF-1.7 body"))
	require.NoError(t, err)
	require.Equal(t, "src_file", id)
}

func TestClient_AddByFile_NilReader(t *testing.T) {
	c, err := NewClient(&fakeSecrets{val: "k"}, "/k")
	require.NoError(t, err)
	_, err = c.AddByFile(context.Background(), "a.pdf", nil)
	require.ErrorContains(t, err, "nil")
}

func TestClient_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chats/message", r.URL.Path)
		var body messageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "src_1", body.SourceID)
		require.True(t, body.ReferenceSources)
		require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "What is on page 3?"}}, body.Messages)
		_, _ = w.Write([]byte(`{"content":"Revenue is on [P3].","references":[{"pageNumber":3}]}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv).SendMessage(context.Background(), "src_1",
		[]domain.ChatMessage{{Role: domain.RoleUser, Content: "What is on page 3?"}}, true)
	require.NoError(t, err)
	require.Equal(t, "Revenue is on [P3].", reply.Content)
	require.Equal(t, []domain.PageReference{{PageNumber: 3}}, reply.References)
}

func TestClient_SendMessage_EmptySource(t *testing.T) {
	c, err := NewClient(&fakeSecrets{val: "k"}, "/k")
	require.NoError(t, err)
	_, err = c.SendMessage(context.Background(), " ", nil, true)
	require.ErrorContains(t, err, "source id")
}

func TestClient_DeleteSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sources/delete", r.URL.Path)
		var body deleteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"src_9"}, body.Sources)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv).DeleteSource(context.Background(), "src_9"))
}

func TestClient_ErrorMessageFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Source not found"}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv).DeleteSource(context.Background(), "missing")
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.HTTPStatusCode())
	require.Equal(t, "Source not found", statusErr.Message)
	require.Contains(t, err.Error(), "400")
}

func TestClient_ErrorMessageFallsBackToOperation(t *testing.T) {
	cases := []struct {
		name string
		call func(c *Client) error
		want string
	}{
		{"add url", func(c *Client) error {
			_, err := c.AddByURL(context.Background(), "https://example.com/a.pdf")
			return err
		}, "failed to add PDF by URL"},
		{"add file", func(c *Client) error {
			_, err := c.AddByFile(context.Background(), "a.pdf", strings.NewReader("%PDF"))
			return err
		}, "failed to upload PDF"},
		{"message", func(c *Client) error {
			_, err := c.SendMessage(context.Background(), "src", nil, true)
			return err
		}, "failed to chat with PDF"},
		{"delete", func(c *Client) error {
			return c.DeleteSource(context.Background(), "src")
		}, "failed to delete PDF"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`upstream exploded`))
	}))
	defer srv.Close()

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call(newTestClient(t, srv))
			var statusErr *HTTPStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
			require.Equal(t, tc.want, statusErr.Message)
		})
	}
}

func TestClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SendMessage(context.Background(), "src", nil, true)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestClient_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SendMessage(context.Background(), "src", nil, true)
	require.ErrorContains(t, err, "decode response")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"content":"late"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.SendMessage(context.Background(), "src", nil, true)
	require.ErrorContains(t, err, "request failed")
}

func TestClient_SecretErrorStopsRequest(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	c, err := NewClient(&fakeSecrets{err: errors.New("no such parameter")}, "/k", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.AddByURL(context.Background(), "https://example.com/a.pdf")
	require.ErrorContains(t, err, "resolve api key")
	require.False(t, hit)
}
