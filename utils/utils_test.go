package utils

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// LOGGER TESTS
// ============================================================================

func TestLoggerOutputs(t *testing.T) {
	var userBuf bytes.Buffer
	SetUserOutput(&userBuf)
	defer SetUserOutput(nil)
	User("test user output")
	assert.Contains(t, userBuf.String(), "test user output")

	var internalBuf bytes.Buffer
	SetInternalOutput(&internalBuf)
	defer SetInternalOutput(nil)
	Info("test internal %s", "output")
	Warn("warned")
	assert.Contains(t, internalBuf.String(), "test internal output")
	assert.Contains(t, internalBuf.String(), "warned")
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	SetInternalOutput(&buf)
	defer SetInternalOutput(nil)

	ctx := WithRequestID(context.Background(), "req-123")
	id, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-123", id)

	_, ok = RequestIDFromContext(context.Background())
	assert.False(t, ok)

	InfoCtx(ctx, "handled request", "status", 200)
	ErrorCtx(ctx, "failed request", "status", 500)
	out := buf.String()
	assert.Contains(t, out, "handled request")
	assert.Contains(t, out, "req-123")
	assert.Contains(t, out, "failed request")
}

func TestSetLevel(t *testing.T) {
	defer SetMode("production")

	var buf bytes.Buffer
	SetInternalOutput(&buf)
	defer SetInternalOutput(nil)

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, "warn", Level())
	Info("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetMode("debug")
	assert.Equal(t, "debug", Level())
	Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	require.NoError(t, SetLevel(""))
	assert.Equal(t, "debug", Level())
	assert.Error(t, SetLevel("loud"))
}

func TestLoggerWriter(t *testing.T) {
	var lines []string
	w := &LoggerWriter{Fn: func(format string, v ...any) {
		lines = append(lines, strings.TrimSpace(format+"|"+v[0].(string)+v[1].(string)))
	}, Prefix: "http: "}

	n, err := w.Write([]byte("first\n\n  \nsecond\n"))
	require.NoError(t, err)
	assert.Equal(t, len("first\n\n  \nsecond\n"), n)
	assert.Equal(t, []string{"%s%s|http: first", "%s%s|http: second"}, lines)
}

func TestErrorf(t *testing.T) {
	var buf bytes.Buffer
	SetInternalOutput(&buf)
	defer SetInternalOutput(nil)

	base := errors.New("base")
	err := Errorf("wrapped: %w", base)
	assert.ErrorIs(t, err, base)
	assert.Contains(t, buf.String(), "wrapped: base")
}

// ============================================================================
// HELPER TESTS
// ============================================================================

func TestErrorWrapper(t *testing.T) {
	w := NewErrorWrapper("config")
	assert.Nil(t, w.Wrapf(nil, "ignored"))

	base := errors.New("missing")
	err := w.Wrapf(base, "load %s", "file.json")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "config: load file.json: missing", err.Error())
	assert.Equal(t, "config: bad port 0", w.Failf("bad port %d", 0).Error())
}

func TestWriteHTTPError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, "boom", http.StatusInternalServerError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"boom","code":500}`, rec.Body.String())
}

func TestWriteHTTPJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteHTTPJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":"yes"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	assert.Error(t, WriteHTTPJSON(rec, http.StatusOK, make(chan int)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
