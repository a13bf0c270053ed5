package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyMiddleware guards service-to-service routes with a shared key
// carried in the X-API-Key header. An empty configured key locks the
// routes rather than leaving them open. The comparison is constant time.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")

			if key == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"invalid or missing API key"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
