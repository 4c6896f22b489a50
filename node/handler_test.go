package node

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/awantoch/edgebridge/stream"
	"github.com/awantoch/edgebridge/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h web.HandlerFunc, opts Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(h, opts))
	t.Cleanup(srv.Close)
	return srv
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func echo(ctx context.Context, req *web.Request) (*web.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "text/plain")
	return web.NewResponse(http.StatusOK, h, req.Body), nil
}

func TestNewHandler_EchoesBody(t *testing.T) {
	srv := newServer(t, echo, Options{})

	resp, err := http.Post(srv.URL+"/echo", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", readBody(t, resp))
}

func TestNewHandler_EchoesLargeChunkedBody(t *testing.T) {
	srv := newServer(t, echo, Options{ChunkSize: 1024, HighWaterMark: 2048})
	payload := strings.Repeat("0123456789", 50_000)

	// io.MultiReader hides the length, so the client sends it chunked.
	resp, err := http.Post(srv.URL+"/echo", "text/plain", io.MultiReader(strings.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, readBody(t, resp))
}

func TestNewHandler_NoBody(t *testing.T) {
	var sawBody bool
	srv := newServer(t, func(ctx context.Context, req *web.Request) (*web.Response, error) {
		sawBody = req.Body != nil
		return web.TextResponse(http.StatusOK, "text/plain", req.URL.String()), nil
	}, Options{Origin: "https://example.com"})

	resp, err := http.Get(srv.URL + "/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/path?q=1", readBody(t, resp))
	assert.False(t, sawBody)
}

func TestNewHandler_DeclaredLengthTooLarge(t *testing.T) {
	called := false
	srv := newServer(t, func(ctx context.Context, req *web.Request) (*web.Response, error) {
		called = true
		return echo(ctx, req)
	}, Options{BodySizeLimit: 4})

	resp, err := http.Post(srv.URL, "text/plain", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	var body web.ErrorBody
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
	assert.Equal(t, "Received content-length of 11, but only accept up to 4 bytes.", body.Message)
	assert.False(t, called)
}

func TestNewHandler_StreamedBodyTooLarge(t *testing.T) {
	srv := newServer(t, func(ctx context.Context, req *web.Request) (*web.Response, error) {
		if _, err := stream.ReadAll(ctx, req.Body); err != nil {
			return nil, err
		}
		return web.TextResponse(http.StatusOK, "text/plain", "ok"), nil
	}, Options{BodySizeLimit: 4})

	resp, err := http.Post(srv.URL, "text/plain", io.MultiReader(strings.NewReader("hello world")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "request body size exceeded BODY_SIZE_LIMIT of 4")
}

func TestNewHandler_HandlerErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler web.HandlerFunc
		status  int
		message string
	}{
		{
			name: "plain error is opaque",
			handler: func(ctx context.Context, req *web.Request) (*web.Response, error) {
				return nil, errors.New("database password leaked")
			},
			status:  http.StatusInternalServerError,
			message: "Internal server error",
		},
		{
			name: "http error keeps status",
			handler: func(ctx context.Context, req *web.Request) (*web.Response, error) {
				return nil, web.Error(http.StatusTeapot, "short and stout")
			},
			status:  http.StatusTeapot,
			message: "short and stout",
		},
		{
			name: "panic",
			handler: func(ctx context.Context, req *web.Request) (*web.Response, error) {
				panic("kaboom")
			},
			status:  http.StatusInternalServerError,
			message: "Internal server error",
		},
		{
			name: "nil response",
			handler: func(ctx context.Context, req *web.Request) (*web.Response, error) {
				return nil, nil
			},
			status:  http.StatusInternalServerError,
			message: "Internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.handler, Options{})
			resp, err := http.Get(srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var body web.ErrorBody
			require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &body))
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestNewHandler_RequestID(t *testing.T) {
	var got string
	srv := newServer(t, func(ctx context.Context, req *web.Request) (*web.Response, error) {
		got = req.Header.Get("X-Request-Id")
		return web.NewResponse(http.StatusNoContent, nil, nil), nil
	}, Options{})

	req, err := http.NewRequest("GET", srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "abc-123", got)
}

func TestBaseURL(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Host = "edge.test"
	assert.Equal(t, "http://edge.test", BaseURL(r, ""))
	assert.Equal(t, "https://origin.test", BaseURL(r, "https://origin.test"))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://edge.test", BaseURL(r, ""))

	r.Header.Del("X-Forwarded-Proto")
	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://edge.test", BaseURL(r, ""))
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(web.Error(http.StatusBadRequest, "bad"))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	text, err := resp.Text(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"bad"}`, text)
}
