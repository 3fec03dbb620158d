package handlers

import (
	"net/http"

	apperrors "github.com/throttlegate/throttlegate/internal/errors"
)

func defaultHTTPErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

var httpErrorResponder = defaultHTTPErrorResponder

// SetHTTPErrorResponder lets the server route handler errors through its
// central error handler. Passing nil restores the default.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		responder = defaultHTTPErrorResponder
	}
	httpErrorResponder = responder
}

// ResetHTTPErrorResponder restores the default responder (useful for tests).
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultHTTPErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
