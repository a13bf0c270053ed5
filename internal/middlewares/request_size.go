package middlewares

import (
	"net/http"
)

// RequestSizeLimitMiddleware bounds request bodies at the router level.
// Requests declaring a larger Content-Length are refused outright;
// chunked bodies are cut off by MaxBytesReader once the limit is read.
// Per-purpose upload caps are tighter and enforced per route.
func RequestSizeLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				w.Write([]byte(`{"error":"request body too large"}`))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
