package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrorResponse is the error envelope returned for invalid requests.
type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

// Validatable is implemented by request bodies that need more than JSON
// shape checking. webvh's request bodies are small (a mnemonic, an owner
// DID, a quota override) so validation is a handful of custom predicates
// rather than struct-tag rules — each request type owns its own checks.
type Validatable interface {
	Validate() []ValidationError
}

// Decode reads a JSON request body into dst. It enforces a max body size and
// disallows unknown fields. Returns an error suitable for display to the client.
func Decode(r *http.Request, dst any) error {
	const maxBody = 1 << 20 // 1 MiB

	body := http.MaxBytesReader(nil, r.Body, maxBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return fmt.Errorf("request body too large (max 1 MiB)")
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is empty")
		default:
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}

	// Reject trailing data after the first JSON value.
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

// DecodeAndValidate decodes a JSON body and, if dst implements Validatable,
// runs its field checks. On failure it writes a response and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := Decode(r, dst); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}

	if v, ok := dst.(Validatable); ok {
		if errs := v.Validate(); len(errs) > 0 {
			RespondValidationError(w, errs)
			return false
		}
	}

	return true
}

// RespondValidationError writes a 422 response with field-level validation errors.
func RespondValidationError(w http.ResponseWriter, errs []ValidationError) {
	Respond(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Error:   "validation_error",
		Message: "one or more fields failed validation",
		Details: errs,
	})
}
