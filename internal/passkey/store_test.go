package passkey_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/passkey"
	"github.com/affinidi/webvh-server/internal/store/boltstore"
)

func newStore(t *testing.T) (*passkey.Store, context.Context) {
	t.Helper()
	s, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	ks, err := s.Keyspace(ctx, "sessions")
	if err != nil {
		t.Fatalf("Keyspace: %v", err)
	}
	return passkey.NewStore(ks), ctx
}

func TestEnrollmentTakenOnce(t *testing.T) {
	st, ctx := newStore(t)

	e := passkey.Enrollment{
		Token:     "tok-1",
		DID:       "did:example:alice",
		Role:      acl.RoleOwner,
		CreatedAt: time.Unix(0, 0),
		ExpiresAt: time.Unix(3600, 0),
	}
	if err := st.StoreEnrollment(ctx, e); err != nil {
		t.Fatalf("StoreEnrollment: %v", err)
	}

	got, ok, err := st.TakeEnrollment(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("TakeEnrollment: got=%v ok=%v err=%v", got, ok, err)
	}
	if got.DID != e.DID {
		t.Fatalf("DID = %q, want %q", got.DID, e.DID)
	}

	_, ok, err = st.TakeEnrollment(ctx, "tok-1")
	if err != nil {
		t.Fatalf("second TakeEnrollment: %v", err)
	}
	if ok {
		t.Fatal("enrollment token was redeemable twice")
	}
}

func TestEnrollmentExpired(t *testing.T) {
	e := passkey.Enrollment{ExpiresAt: time.Unix(100, 0)}
	if e.Expired(time.Unix(50, 0)) {
		t.Fatal("Expired reported true before the deadline")
	}
	if !e.Expired(time.Unix(101, 0)) {
		t.Fatal("Expired reported false after the deadline")
	}
}

func TestRegistrationCeremonyRoundtrip(t *testing.T) {
	st, ctx := newStore(t)

	userID := uuid.New()
	if err := st.StoreRegistrationUser(ctx, "cer-1", userID); err != nil {
		t.Fatalf("StoreRegistrationUser: %v", err)
	}
	got, ok, err := st.GetRegistrationUser(ctx, "cer-1")
	if err != nil || !ok || got != userID {
		t.Fatalf("GetRegistrationUser: got=%v ok=%v err=%v", got, ok, err)
	}

	state := passkey.RegistrationState{UserID: userID, Opaque: []byte("challenge-blob")}
	if err := st.StoreRegistrationState(ctx, "cer-1", state); err != nil {
		t.Fatalf("StoreRegistrationState: %v", err)
	}
	taken, ok, err := st.TakeRegistrationState(ctx, "cer-1")
	if err != nil || !ok {
		t.Fatalf("TakeRegistrationState: ok=%v err=%v", ok, err)
	}
	if taken.UserID != userID || string(taken.Opaque) != "challenge-blob" {
		t.Fatalf("TakeRegistrationState = %+v", taken)
	}

	if _, ok, err := st.TakeRegistrationState(ctx, "cer-1"); err != nil || ok {
		t.Fatalf("registration state was consumable twice: ok=%v err=%v", ok, err)
	}

	if err := st.DeleteRegistrationUser(ctx, "cer-1"); err != nil {
		t.Fatalf("DeleteRegistrationUser: %v", err)
	}
	if _, ok, err := st.GetRegistrationUser(ctx, "cer-1"); err != nil || ok {
		t.Fatalf("registration user link survived delete: ok=%v err=%v", ok, err)
	}
}

func TestUserLookupByCredentialAndDID(t *testing.T) {
	st, ctx := newStore(t)

	u := passkey.User{
		UserID:      uuid.New(),
		DID:         "did:example:bob",
		DisplayName: "Bob",
		Credentials: []passkey.Credential{{IDHex: "aabbcc", Opaque: []byte("pubkey")}},
	}
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if err := st.StoreCredentialMapping(ctx, "aabbcc", u.UserID); err != nil {
		t.Fatalf("StoreCredentialMapping: %v", err)
	}

	byCred, ok, err := st.GetUserByCredential(ctx, "aabbcc")
	if err != nil || !ok || byCred.DID != u.DID {
		t.Fatalf("GetUserByCredential: got=%+v ok=%v err=%v", byCred, ok, err)
	}

	byDID, ok, err := st.GetUserByDID(ctx, "did:example:bob")
	if err != nil || !ok || byDID.UserID != u.UserID {
		t.Fatalf("GetUserByDID: got=%+v ok=%v err=%v", byDID, ok, err)
	}

	if _, ok, err := st.GetUserByDID(ctx, "did:example:nobody"); err != nil || ok {
		t.Fatalf("GetUserByDID matched a nonexistent DID: ok=%v err=%v", ok, err)
	}

	creds, err := st.AllCredentials(ctx)
	if err != nil {
		t.Fatalf("AllCredentials: %v", err)
	}
	if len(creds) != 1 || creds[0].IDHex != "aabbcc" {
		t.Fatalf("AllCredentials = %+v", creds)
	}
}
