package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestID header key
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied IDs echoed back in headers, logs
// and error bodies.
const maxRequestIDLength = 128

// requestIDContextKey is a custom type to avoid context key collisions
type requestIDContextKey string

const RequestIDContextKey requestIDContextKey = "request_id"

// RequestID middleware adds a unique request ID to each request.
// Preference order: chi's RequestID middleware, a well-formed X-Request-ID
// header, then a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())

		if requestID == "" {
			if candidate := r.Header.Get(RequestIDHeader); validRequestID(candidate) {
				requestID = candidate
			}
		}

		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validRequestID accepts short printable ASCII without spaces.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// GetRequestID retrieves request ID from context
// Checks both our context key and chi's context key
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return requestID
	}

	if requestID := middleware.GetReqID(ctx); requestID != "" {
		return requestID
	}

	return ""
}
