package reporter

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
)

// TokenHeader carries the API token.
const TokenHeader = "X-SF-TOKEN"

// AuthRoundTripper sets the token and User-Agent headers on every request.
type AuthRoundTripper struct {
	Base      http.RoundTripper
	Token     string
	UserAgent string
}

func (a *AuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := a.Base
	if rt == nil {
		rt = http.DefaultTransport
	}

	r := req.Clone(req.Context())
	r.Header.Set(TokenHeader, a.Token)
	if a.UserAgent != "" {
		r.Header.Set("User-Agent", a.UserAgent)
	}
	return rt.RoundTrip(r)
}

// GzipRoundTripper compresses request bodies.
type GzipRoundTripper struct {
	Base  http.RoundTripper
	Level int
}

func (g *GzipRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := g.Base
	if rt == nil {
		rt = http.DefaultTransport
	}
	if req.Body == nil || req.Body == http.NoBody {
		return rt.RoundTrip(req)
	}

	plain, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err = zw.Write(plain); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err = zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}

	zipped := buf.Bytes()
	r := req.Clone(req.Context())
	r.Body = io.NopCloser(bytes.NewReader(zipped))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(zipped)), nil
	}
	r.ContentLength = int64(len(zipped))
	r.Header.Set("Content-Encoding", "gzip")

	return rt.RoundTrip(r)
}

// NewHTTPClient builds the client used for delivery. Timeouts are applied
// per attempt by the caller, so the client itself has none.
func NewHTTPClient(token, userAgent string, compress bool) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if compress {
		rt = &GzipRoundTripper{Base: rt}
	}
	rt = &AuthRoundTripper{Base: rt, Token: token, UserAgent: userAgent}
	return &http.Client{Transport: rt}
}
