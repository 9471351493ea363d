// Package passkey implements C10: WebAuthn passkey enrollment and login
// as a storage-backed ceremony-state machine. The WebAuthn ceremony
// library itself (challenge generation, attestation/assertion
// verification) is an external black box per spec.md §1; this package
// defines the interface the rest of the system calls through plus the
// keyspace-backed ceremony bookkeeping that is actually exercised,
// grounded on original_source/webvh-server/src/passkey/store.rs.
package passkey

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/affinidi/webvh-server/internal/acl"
)

// Enrollment is a one-time invitation minted out-of-band (CLI or admin
// API) that a new passkey owner redeems during registration.
type Enrollment struct {
	Token     string    `json:"token"`
	DID       string    `json:"did"`
	Role      acl.Role  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the enrollment can no longer be redeemed.
func (e Enrollment) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// User is a passkey holder, identified by the DID it authenticates as.
// A user may register multiple credentials (one per device).
type User struct {
	UserID      uuid.UUID    `json:"userId"`
	DID         string       `json:"did"`
	DisplayName string       `json:"displayName"`
	Credentials []Credential `json:"credentials"`
}

// Credential is one registered authenticator, opaque beyond the fields
// this package needs to index and present it; the raw ceremony payload
// (public key, sign count, transports) is carried in Opaque for the
// WebAuthn library the deployment wires in to interpret.
type Credential struct {
	IDHex     string `json:"idHex"`
	Opaque    []byte `json:"opaque"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegistrationState is the server-side half of an in-flight
// registration ceremony, stored between BeginRegistration and
// FinishRegistration under a random ceremony ID.
type RegistrationState struct {
	UserID uuid.UUID `json:"userId"`
	Opaque []byte    `json:"opaque"`
}

// AuthenticationState is the server-side half of an in-flight login
// ceremony, stored between BeginLogin and FinishLogin.
type AuthenticationState struct {
	Opaque []byte `json:"opaque"`
}

// Ceremony is the interface the HTTP and DIDComm surfaces call into for
// passkey enrollment and login. A real implementation wraps a WebAuthn
// library (e.g. go-webauthn/webauthn) to produce/verify the opaque
// ceremony payloads; Store below is the storage-backed bookkeeping that
// any such implementation is built on.
type Ceremony interface {
	BeginRegistration(ctx context.Context, enrollmentToken string) (ceremonyID string, options []byte, err error)
	FinishRegistration(ctx context.Context, ceremonyID string, response []byte) (*User, error)
	BeginLogin(ctx context.Context) (ceremonyID string, options []byte, err error)
	FinishLogin(ctx context.Context, ceremonyID string, response []byte) (*User, error)
}
