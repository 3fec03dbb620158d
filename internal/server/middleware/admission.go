package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// DefaultTokenHeader carries the caller token when no header is configured.
const DefaultTokenHeader = "token"

// Admitter decides whether a request may proceed. An empty token is a guest.
type Admitter interface {
	IsRequestAllowed(token string) (bool, error)
}

// AdmissionConfig wires the admission middleware to its collaborators.
type AdmissionConfig struct {
	// Header names the request header holding the caller token.
	Header string

	// OnReject writes the response for a throttled request. When nil a bare
	// 429 with Retry-After: 1 is written.
	OnReject func(w http.ResponseWriter, r *http.Request)

	// OnError writes the response when the engine fails the decision (an
	// unknown token, for instance). When nil a bare 500 is written.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Admission gates next behind gate. A nil gate disables admission control.
func Admission(gate Admitter, cfg AdmissionConfig) func(http.Handler) http.Handler {
	header := strings.TrimSpace(cfg.Header)
	if header == "" {
		header = DefaultTokenHeader
	}

	onReject := cfg.OnReject
	if onReject == nil {
		onReject = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeErrorResponse(w, "TOO_MANY_REQUESTS", "Request rate exceeded", GetRequestID(r.Context()), http.StatusTooManyRequests)
		}
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(w http.ResponseWriter, r *http.Request, err error) {
			writeErrorResponse(w, "INTERNAL_ERROR", "Admission check failed", GetRequestID(r.Context()), http.StatusInternalServerError)
		}
	}

	return func(next http.Handler) http.Handler {
		if gate == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(header))

			allowed, err := gate.IsRequestAllowed(token)
			if err != nil {
				onError(w, r, err)
				return
			}
			if !allowed {
				onReject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
