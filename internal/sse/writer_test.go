package sse

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterSetsHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	_, err := NewWriter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

func TestWriteEventFraming(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteEvent("text-delta", map[string]string{"delta": "hello"}))

	assert.Equal(t, "event: text-delta\ndata: {\"delta\":\"hello\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed, "every event must flush")
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.WriteError("timeout", "deadline exceeded"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"code":"timeout"`)
	assert.Contains(t, body, `"message":"deadline exceeded"`)
}

// noFlushWriter is an http.ResponseWriter with no Flush support.
type noFlushWriter struct {
	header http.Header
}

func (w *noFlushWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *noFlushWriter) Write(b []byte) (int, error) { return len(b), nil }

func (w *noFlushWriter) WriteHeader(int) {}

func TestNewWriterRequiresFlusher(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(&noFlushWriter{})
	assert.ErrorContains(t, err, "flusher")
}
