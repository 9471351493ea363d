package passkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/affinidi/webvh-server/internal/store"
)

// Store is the keyspace-backed bookkeeping every Ceremony
// implementation is built on: enrollment tokens, in-flight ceremony
// state, and the registered-user/credential index. It holds no
// cryptographic logic of its own.
type Store struct {
	ks store.Keyspace
}

// NewStore wraps a keyspace. The server passes the ACL keyspace; every
// key this package writes carries its own prefix (enroll:, pk_*), so
// its records do not collide with acl: entries.
func NewStore(ks store.Keyspace) *Store {
	return &Store{ks: ks}
}

func enrollmentKey(token string) string        { return "enroll:" + token }
func registrationStateKey(id string) string    { return "pk_reg:" + id }
func authStateKey(id string) string            { return "pk_auth:" + id }
func registrationUserKey(regID string) string  { return "pk_reg_user:" + regID }
func credentialMappingKey(idHex string) string { return "pk_cred:" + idHex }
func userKey(id uuid.UUID) string              { return "pk_user:" + id.String() }

const userKeyPrefix = "pk_user:"

// StoreEnrollment persists a one-time enrollment invitation.
func (s *Store) StoreEnrollment(ctx context.Context, e Enrollment) error {
	return store.Insert(ctx, s.ks, enrollmentKey(e.Token), e)
}

// TakeEnrollment atomically reads and removes an enrollment token so it
// can be redeemed at most once.
func (s *Store) TakeEnrollment(ctx context.Context, token string) (Enrollment, bool, error) {
	return store.Take[Enrollment](ctx, s.ks, enrollmentKey(token))
}

// StoreRegistrationState persists the server-side half of an in-flight
// registration ceremony under a fresh ceremony ID.
func (s *Store) StoreRegistrationState(ctx context.Context, ceremonyID string, state RegistrationState) error {
	return store.Insert(ctx, s.ks, registrationStateKey(ceremonyID), state)
}

// TakeRegistrationState atomically reads and removes registration state,
// enforcing that a ceremony can only be finished once.
func (s *Store) TakeRegistrationState(ctx context.Context, ceremonyID string) (RegistrationState, bool, error) {
	return store.Take[RegistrationState](ctx, s.ks, registrationStateKey(ceremonyID))
}

// StoreAuthState persists the server-side half of an in-flight login
// ceremony.
func (s *Store) StoreAuthState(ctx context.Context, ceremonyID string, state AuthenticationState) error {
	return store.Insert(ctx, s.ks, authStateKey(ceremonyID), state)
}

// TakeAuthState atomically reads and removes login ceremony state.
func (s *Store) TakeAuthState(ctx context.Context, ceremonyID string) (AuthenticationState, bool, error) {
	return store.Take[AuthenticationState](ctx, s.ks, authStateKey(ceremonyID))
}

// StoreRegistrationUser links an in-flight ceremony ID to the user UUID
// it will register a credential for.
func (s *Store) StoreRegistrationUser(ctx context.Context, ceremonyID string, userID uuid.UUID) error {
	return s.ks.InsertRaw(ctx, registrationUserKey(ceremonyID), []byte(userID.String()))
}

// GetRegistrationUser resolves the user UUID linked to an in-flight
// registration ceremony.
func (s *Store) GetRegistrationUser(ctx context.Context, ceremonyID string) (uuid.UUID, bool, error) {
	raw, err := s.ks.GetRaw(ctx, registrationUserKey(ceremonyID))
	if err != nil || raw == nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid registration user id: %w", err)
	}
	return id, true, nil
}

// DeleteRegistrationUser removes the ceremony-to-user link once the
// ceremony has completed or been abandoned.
func (s *Store) DeleteRegistrationUser(ctx context.Context, ceremonyID string) error {
	return s.ks.Remove(ctx, registrationUserKey(ceremonyID))
}

// PutUser creates or replaces a passkey user record.
func (s *Store) PutUser(ctx context.Context, u User) error {
	return store.Insert(ctx, s.ks, userKey(u.UserID), u)
}

// GetUser looks up a user by UUID.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (User, bool, error) {
	return store.Get[User](ctx, s.ks, userKey(id))
}

// GetUserByCredential resolves a user via its credential-ID index.
func (s *Store) GetUserByCredential(ctx context.Context, credIDHex string) (User, bool, error) {
	id, ok, err := store.Get[uuid.UUID](ctx, s.ks, credentialMappingKey(credIDHex))
	if err != nil || !ok {
		return User{}, ok, err
	}
	return s.GetUser(ctx, id)
}

// GetUserByDID scans the user index for the first record matching did.
// Nothing outside this package's tests calls it.
func (s *Store) GetUserByDID(ctx context.Context, did string) (User, bool, error) {
	kvs, err := s.ks.PrefixIterRaw(ctx, userKeyPrefix)
	if err != nil {
		return User{}, false, err
	}
	for _, kv := range kvs {
		var u User
		if json.Unmarshal(kv.Value, &u) == nil && u.DID == did {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

// StoreCredentialMapping indexes a credential ID to the user that owns
// it, so login-by-assertion can resolve the user without a DID hint.
func (s *Store) StoreCredentialMapping(ctx context.Context, credIDHex string, userID uuid.UUID) error {
	return store.Insert(ctx, s.ks, credentialMappingKey(credIDHex), userID)
}

// AllCredentials collects every registered credential across all users,
// for building discoverable (usernameless) login ceremony options.
func (s *Store) AllCredentials(ctx context.Context) ([]Credential, error) {
	kvs, err := s.ks.PrefixIterRaw(ctx, userKeyPrefix)
	if err != nil {
		return nil, err
	}
	var out []Credential
	for _, kv := range kvs {
		var u User
		if json.Unmarshal(kv.Value, &u) == nil {
			out = append(out, u.Credentials...)
		}
	}
	return out, nil
}
