// Package middleware provides HTTP middleware for the ingest server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DecompressMiddleware decompresses gzip-encoded request bodies. A body that
// claims gzip but is not is rejected with 400.
func DecompressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, "invalid gzip body", http.StatusBadRequest)
			return
		}
		defer gr.Close()

		r.Body = gr
		r.Header.Del("Content-Encoding")
		r.ContentLength = -1
		next.ServeHTTP(w, r)
	})
}
