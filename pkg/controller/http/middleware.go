package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// tokenMiddleware rejects requests that do not carry the bearer token
func tokenMiddleware(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
