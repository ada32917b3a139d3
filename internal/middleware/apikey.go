package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the console API key.
const APIKeyHeader = "X-API-Key"

// APIKey returns an HTTP middleware that requires the X-API-Key header to
// match key. An empty key disables the check; config refuses that in
// production.
func APIKey(key string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(key))
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if got == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized: missing "+APIKeyHeader+" header")
				return
			}
			// Compare fixed-size digests in constant time.
			sum := sha256.Sum256([]byte(got))
			if subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized: invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
