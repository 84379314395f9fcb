package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
)

// HashHeader carries the hex HMAC-SHA256 of the request body as sent.
const HashHeader = "HashSHA256"

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(body []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHash requires a valid HashHeader on every request when key is set.
// The hash covers the body bytes on the wire, so it must run before
// decompression. Bodies over limit bytes are rejected with 413.
func VerifyHash(key string, limit int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			got, err := hex.DecodeString(r.Header.Get(HashHeader))
			want, _ := hex.DecodeString(Sign(body, key))
			if err != nil || !hmac.Equal(got, want) {
				http.Error(w, "invalid hash", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
