package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/throttlegate/throttlegate/internal/metrics"
	"github.com/throttlegate/throttlegate/internal/observability"
)

// Recovery turns handler panics into a 500 INTERNAL_ERROR envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			// http.ErrAbortHandler is the sanctioned way to abort a response.
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			requestID := GetRequestID(r.Context())
			stack := string(debug.Stack())

			panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", recovered)).
				WithCorrelationID(requestID)
			panicErr, _ = panicErr.WithContext(map[string]interface{}{
				"stack_trace": stack,
			})
			panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()

			if observability.ServerLogger != nil {
				observability.ServerLogger.Error("Recovered from handler panic",
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestID),
					zap.Any("panic", recovered),
					zap.String("stack_trace", stack))
			}

			// Stack traces go to logs only.
			writeErrorResponse(w, panicErr.Code, panicErr.Message, requestID, http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorResponse structure per API standards
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeErrorResponse writes the error body directly; internal/errors imports
// this package, so it cannot be used here.
func writeErrorResponse(w http.ResponseWriter, code, message, requestID string, statusCode int) {
	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
