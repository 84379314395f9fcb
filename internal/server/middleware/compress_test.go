package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func gzipBody(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func echoBody(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		*got = string(b)
		w.WriteHeader(http.StatusOK)
	})
}

func TestDecompressMiddleware_PassThrough(t *testing.T) {
	var got string
	h := DecompressMiddleware(echoBody(&got))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("plain"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "plain", got)
}

func TestDecompressMiddleware_ValidGzip(t *testing.T) {
	var got string
	h := DecompressMiddleware(echoBody(&got))

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(gzipBody(t, []byte("hello"))))
	req.Header.Set("Content-Encoding", "gzip")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", got)
}

func TestDecompressMiddleware_InvalidGzip(t *testing.T) {
	called := false
	h := DecompressMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, called)
}
