package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Body is the wire shape of every error response across UCS, FIS, IFRS and
// DCS: {exception_id, description, data}.
type Body struct {
	ExceptionID string         `json:"exception_id"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// WriteError inspects err for one of the kinds in this package and writes
// the matching status and Body. Any other error is logged by the caller and
// surfaced as an opaque 500 internalError — no internal detail leaks into
// the response.
func WriteError(w http.ResponseWriter, err error) {
	var clientErr *ClientError
	var criticalErr *CriticalInconsistencyError
	var transientErr *TransientUpstreamError
	var retryErr *RetryAccessLaterError

	switch {
	case errors.As(err, &clientErr):
		writeBody(w, clientErr.Status, Body{
			ExceptionID: clientErr.ExceptionID,
			Description: clientErr.Message,
			Data:        clientErr.Data,
		})
	case errors.As(err, &criticalErr):
		writeBody(w, http.StatusInternalServerError, Body{
			ExceptionID: criticalErr.ExceptionID,
			Description: criticalErr.Message,
			Data:        criticalErr.Data,
		})
	case errors.As(err, &transientErr):
		writeBody(w, transientErr.Status, Body{
			ExceptionID: transientErr.ExceptionID,
			Description: transientErr.Error(),
		})
	case errors.As(err, &retryErr):
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Retry-After", formatRetryAfter(retryErr.RetryAfter))
		writeBody(w, http.StatusAccepted, Body{
			ExceptionID: "retryAccessLater",
			Description: retryErr.Error(),
		})
	default:
		writeBody(w, http.StatusInternalServerError, Body{
			ExceptionID: ExcInternal,
			Description: "internal server error",
		})
	}
}

func writeBody(w http.ResponseWriter, status int, body Body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteJSON writes an arbitrary success payload as JSON, for the handlers
// across UCS, FIS, IFRS and DCS whose 2xx response isn't a Body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func formatRetryAfter(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
