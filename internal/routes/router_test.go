package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/config"
	"github.com/affinidi/webvh-server/internal/didcomm"
	"github.com/affinidi/webvh-server/internal/didops"
	"github.com/affinidi/webvh-server/internal/passkey"
	"github.com/affinidi/webvh-server/internal/routes"
	"github.com/affinidi/webvh-server/internal/session"
	"github.com/affinidi/webvh-server/internal/store"
	"github.com/affinidi/webvh-server/internal/store/boltstore"
)

type harness struct {
	server *httptest.Server
	deps   *routes.Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	sessionsKS, err := st.Keyspace(ctx, store.KeyspaceSessions)
	if err != nil {
		t.Fatalf("Keyspace sessions: %v", err)
	}
	aclKS, err := st.Keyspace(ctx, store.KeyspaceACL)
	if err != nil {
		t.Fatalf("Keyspace acl: %v", err)
	}
	didsKS, err := st.Keyspace(ctx, store.KeyspaceDIDs)
	if err != nil {
		t.Fatalf("Keyspace dids: %v", err)
	}
	statsKS, err := st.Keyspace(ctx, store.KeyspaceStats)
	if err != nil {
		t.Fatalf("Keyspace stats: %v", err)
	}

	cfg := &config.Config{
		Host:                "0.0.0.0",
		Port:                8085,
		BaseURL:             "https://example.test",
		DefaultMaxDIDCount:  100,
		DefaultMaxTotalSize: 1 << 20,
	}

	tm, err := session.NewTokenManager([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	sessions := session.NewManager(tm, 15*time.Minute, 24*time.Hour, 5*time.Minute)

	deps := &routes.Deps{
		DID: &didops.Service{
			Store:  st,
			Dids:   didsKS,
			ACL:    aclKS,
			Stats:  statsKS,
			Config: cfg,
		},
		Sessions: sessions,
		Passkeys: passkey.NewStore(aclKS),
		Ceremony: nil,
		Codec:    didcomm.FakeCodec{},

		SessionsKS: sessionsKS,
		ACLKS:      aclKS,
		DIDsKS:     didsKS,
		StatsKS:    statsKS,

		Config: cfg,
		Logger: slog.New(slog.DiscardHandler),
	}

	r := chi.NewRouter()
	routes.Mount(r, deps)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &harness{server: srv, deps: deps}
}

func (h *harness) do(t *testing.T, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

// seedOwner writes an ACL entry and returns a bearer access token
// authenticated as that DID, using the challenge/authenticate flow an
// API client would actually go through.
func (h *harness) seedOwner(t *testing.T, did string, role acl.Role) string {
	t.Helper()
	ctx := context.Background()
	if err := acl.Put(ctx, h.deps.ACLKS, acl.Entry{DID: did, Role: role}); err != nil {
		t.Fatalf("acl.Put: %v", err)
	}

	sess, err := h.deps.Sessions.IssueChallenge(ctx, h.deps.SessionsKS, did)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	env := didcomm.Envelope{
		Type: didcomm.TypeAuthenticate,
		From: did,
		Body: map[string]any{
			"session_id": sess.SessionID,
			"challenge":  sess.Challenge,
		},
	}
	packed, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	resp := h.do(t, http.MethodPost, "/api/auth/", packed, nil)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("authenticate: status=%d body=%s", resp.StatusCode, b)
	}
	var tr struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &tr)
	if tr.Data.AccessToken == "" {
		t.Fatalf("expected non-empty access token")
	}
	return tr.Data.AccessToken
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestPublicResolveUnknownDIDReturnsNotFound(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/no-such-mnemonic/did.jsonl", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChallengeRequiresExistingACLEntry(t *testing.T) {
	h := newHarness(t)
	body, _ := json.Marshal(map[string]string{"did": "did:example:ghost"})
	resp := h.do(t, http.MethodPost, "/api/auth/challenge", body, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestDIDLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t)
	token := h.seedOwner(t, "did:example:alice", acl.RoleOwner)

	// Create a DID slot.
	resp := h.do(t, http.MethodPost, "/api/dids/", []byte(`{}`), bearer(token))
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("create: status=%d body=%s", resp.StatusCode, b)
	}
	var created struct {
		Mnemonic string `json:"mnemonic"`
		DidURL   string `json:"didUrl"`
	}
	decodeJSON(t, resp, &created)
	if created.Mnemonic == "" || created.DidURL == "" {
		t.Fatalf("create response = %+v", created)
	}

	// Publish a log for it.
	logLine := `{"versionId":"1-abc","parameters":{"method":"did:webvh:1.0"},"state":{"id":"did:webvh:abc123:example.com:test"}}`
	resp = h.do(t, http.MethodPut, "/api/dids/"+created.Mnemonic, []byte(logLine), bearer(token))
	if resp.StatusCode != http.StatusNoContent {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("publish: status=%d body=%s", resp.StatusCode, b)
	}

	// Public resolution should now return the log unauthenticated.
	resp = h.do(t, http.MethodGet, "/"+created.Mnemonic+"/did.jsonl", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: status = %d, want 200", resp.StatusCode)
	}
	gotLog, _ := io.ReadAll(resp.Body)
	if string(gotLog) != logLine {
		t.Fatalf("resolved log = %q, want %q", gotLog, logLine)
	}

	// Info lookup as the owner.
	resp = h.do(t, http.MethodGet, "/api/dids/"+created.Mnemonic, nil, bearer(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get info: status = %d, want 200", resp.StatusCode)
	}

	// Delete it.
	resp = h.do(t, http.MethodDelete, "/api/dids/"+created.Mnemonic, nil, bearer(token))
	if resp.StatusCode != http.StatusNoContent {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("delete: status=%d body=%s", resp.StatusCode, b)
	}

	// Now gone.
	resp = h.do(t, http.MethodGet, "/api/dids/"+created.Mnemonic, nil, bearer(token))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestACLSurfaceRequiresAdminRole(t *testing.T) {
	h := newHarness(t)
	ownerToken := h.seedOwner(t, "did:example:bob", acl.RoleOwner)

	resp := h.do(t, http.MethodGet, "/api/acl/", nil, bearer(ownerToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for non-admin caller", resp.StatusCode)
	}

	adminToken := h.seedOwner(t, "did:example:root", acl.RoleAdmin)
	resp = h.do(t, http.MethodGet, "/api/acl/", nil, bearer(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for admin caller", resp.StatusCode)
	}

	// Admin creates an ACL entry for a third DID, then cannot delete
	// its own entry.
	body, _ := json.Marshal(map[string]string{"did": "did:example:carol", "role": "owner"})
	resp = h.do(t, http.MethodPost, "/api/acl/", body, bearer(adminToken))
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("create acl: status=%d body=%s", resp.StatusCode, b)
	}

	resp = h.do(t, http.MethodDelete, "/api/acl/did:example:root", nil, bearer(adminToken))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("self-delete: status = %d, want 409", resp.StatusCode)
	}
}

func TestRefreshTokenMintsNewAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	did := "did:example:dana"
	if err := acl.Put(ctx, h.deps.ACLKS, acl.Entry{DID: did, Role: acl.RoleOwner}); err != nil {
		t.Fatalf("acl.Put: %v", err)
	}

	sess, err := h.deps.Sessions.IssueChallenge(ctx, h.deps.SessionsKS, did)
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	env := didcomm.Envelope{
		Type: didcomm.TypeAuthenticate,
		From: did,
		Body: map[string]any{"session_id": sess.SessionID, "challenge": sess.Challenge},
	}
	packed, _ := json.Marshal(env)
	resp := h.do(t, http.MethodPost, "/api/auth/", packed, nil)
	var full struct {
		Data struct {
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &full)
	if full.Data.RefreshToken == "" {
		t.Fatalf("expected a refresh token from authenticate")
	}

	refreshEnv := didcomm.Envelope{
		Type: didcomm.TypeAuthenticateRefresh,
		From: did,
		Body: map[string]any{"refresh_token": full.Data.RefreshToken},
	}
	packed, _ = json.Marshal(refreshEnv)
	resp = h.do(t, http.MethodPost, "/api/auth/refresh", packed, nil)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("refresh: status=%d body=%s", resp.StatusCode, b)
	}
	var refreshed struct {
		Data struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	decodeJSON(t, resp, &refreshed)
	if refreshed.Data.AccessToken == "" {
		t.Fatalf("expected a new access token")
	}
	if refreshed.Data.RefreshToken != "" {
		t.Fatalf("refresh response should not mint a new refresh token, got %q", refreshed.Data.RefreshToken)
	}
}
