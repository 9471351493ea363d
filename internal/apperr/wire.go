package apperr

import "net/http"

// HTTPStatus maps a Kind to the status code the HTTP surface returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Unauthorized, Authentication:
		return http.StatusUnauthorized
	case Forbidden, QuotaExceeded:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default: // Internal, Store, Serialization, Io, Config, SecretStore
		return http.StatusInternalServerError
	}
}

// DIDCommCode maps a Kind to the stable machine-readable problem-report
// code used on the DIDComm surface. Several kinds share a family prefix
// with a generic suffix; call sites that know a more specific code
// (e.g. "invalid-log" vs. plain "validation") pass it directly instead
// of relying on this default.
func DIDCommCode(kind Kind) string {
	switch kind {
	case Validation:
		return "e.p.did.validation"
	case Forbidden:
		return "e.p.did.unauthorized"
	case QuotaExceeded:
		return "e.p.did.quota-exceeded"
	case NotFound:
		return "e.p.did.mnemonic-not-found"
	case Conflict:
		return "e.p.did.path-unavailable"
	default: // Internal, Store, Serialization, Io, Config, SecretStore, Unauthorized, Authentication
		return "e.p.did.internal-error"
	}
}

// IsServerFault reports whether kind should be logged at warn level
// (5xx-class) versus debug (4xx-class), per spec.md §7.
func IsServerFault(kind Kind) bool {
	return HTTPStatus(kind) >= 500
}
