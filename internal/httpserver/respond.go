package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/affinidi/webvh-server/internal/apperr"
)

// ErrorResponse is the JSON envelope for non-2xx responses. Message is
// only populated by RespondError (bad-request and readiness failures);
// RespondAppError leaves it empty so the wire body matches spec.md §6's
// `{"error": "<message>"}` shape exactly.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Respond writes data as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response body", "error", err)
	}
}

// RespondError writes an ErrorResponse with the given status code.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, ErrorResponse{Error: code, Message: message})
}

// RespondAppError maps err's apperr.Kind to its HTTP status and writes
// the single-field error body spec.md §6 defines. 5xx-class kinds are
// logged at warn, 4xx-class at debug, per spec.md §7.
func RespondAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if apperr.IsServerFault(kind) {
		logger.Warn("request failed", "error", err, "kind", kind)
	} else {
		logger.Debug("request failed", "error", err, "kind", kind)
	}
	Respond(w, status, ErrorResponse{Error: err.Error()})
}
