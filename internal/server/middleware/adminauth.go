package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth admits only requests carrying "Authorization: Bearer <token>".
// onDenied writes the rejection; when nil a plain UNAUTHORIZED body is written.
func BearerAuth(token string, onDenied func(w http.ResponseWriter, r *http.Request)) func(http.Handler) http.Handler {
	if onDenied == nil {
		onDenied = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeErrorResponse(w, "UNAUTHORIZED", "Admin token required", GetRequestID(r.Context()), http.StatusUnauthorized)
		}
	}
	want := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, presented, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || len(want) == 0 ||
				subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), want) != 1 {
				onDenied(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
