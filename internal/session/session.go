package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/affinidi/webvh-server/internal/acl"
	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
)

// State is a Session's position in the challenge/auth state machine.
type State string

const (
	StateChallengeSent State = "challenge_sent"
	StateAuthenticated State = "authenticated"
)

// Session is keyed at session:{session_id}.
type Session struct {
	SessionID        string     `json:"session_id"`
	DID              string     `json:"did"`
	Challenge        string     `json:"challenge"`
	State            State      `json:"state"`
	CreatedAt        time.Time  `json:"created_at"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
}

// Tokens is the bundle returned on successful authentication or refresh.
type Tokens struct {
	SessionID       string    `json:"session_id"`
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	RefreshToken    string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func sessionKey(id string) string  { return "session:" + id }
func refreshKey(tok string) string { return "refresh:" + tok }

// Manager implements the full session lifecycle over a sessions keyspace.
type Manager struct {
	tokens                *TokenManager
	accessTokenExpiry     time.Duration
	refreshTokenExpiry    time.Duration
	challengeTTL          time.Duration
}

// NewManager constructs a session Manager.
func NewManager(tokens *TokenManager, accessTokenExpiry, refreshTokenExpiry, challengeTTL time.Duration) *Manager {
	return &Manager{
		tokens:             tokens,
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
		challengeTTL:       challengeTTL,
	}
}

// IssueChallenge creates a new ChallengeSent session for did and
// returns its session_id and the hex-encoded challenge.
func (m *Manager) IssueChallenge(ctx context.Context, ks store.Keyspace, did string) (*Session, error) {
	challenge, err := randomHex(32)
	if err != nil {
		return nil, err
	}
	s := &Session{
		SessionID: uuidLikeID(),
		DID:       did,
		Challenge: challenge,
		State:     StateChallengeSent,
		CreatedAt: time.Now(),
	}
	if err := store.Insert(ctx, ks, sessionKey(s.SessionID), s); err != nil {
		return nil, err
	}
	return s, nil
}

// VerifyProof validates a DIDComm proof attempt against the named
// session. On success the session is transitioned to Authenticated and
// fresh tokens are minted and returned. Per spec.md §4.3's adopted
// lenient reading of the open question on replay handling, a failed
// attempt leaves the session untouched and retryable until its
// challenge TTL elapses; only a session already Authenticated rejects
// the attempt outright as a replay.
func (m *Manager) VerifyProof(ctx context.Context, ks store.Keyspace, aclKS store.Keyspace, sessionID, claimedChallenge, senderDID string, role acl.Role) (*Tokens, error) {
	s, ok, err := store.Get[Session](ctx, ks, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.Authentication, "session not found")
	}
	if s.State == StateAuthenticated {
		return nil, apperr.New(apperr.Authentication, "session already authenticated (replay)")
	}
	if time.Since(s.CreatedAt) > m.challengeTTL {
		return nil, apperr.New(apperr.Authentication, "challenge expired")
	}
	if subtle.ConstantTimeCompare([]byte(s.Challenge), []byte(claimedChallenge)) != 1 {
		return nil, apperr.New(apperr.Authentication, "challenge mismatch")
	}
	if stripKeyFragment(senderDID) != stripKeyFragment(s.DID) {
		return nil, apperr.New(apperr.Authentication, "sender DID does not match session")
	}

	return m.authenticate(ctx, ks, s.DID, &s, role)
}

// CreateAuthenticatedSession allocates a fresh Authenticated session
// directly, bypassing the challenge phase, for the passkey login path.
func (m *Manager) CreateAuthenticatedSession(ctx context.Context, ks store.Keyspace, did string, role acl.Role) (*Tokens, error) {
	s := &Session{
		SessionID: uuidLikeID(),
		DID:       did,
		State:     StateAuthenticated,
		CreatedAt: time.Now(),
	}
	return m.authenticate(ctx, ks, did, s, role)
}

func (m *Manager) authenticate(ctx context.Context, ks store.Keyspace, did string, s *Session, role acl.Role) (*Tokens, error) {
	access, accessExp, err := m.tokens.IssueAccessToken(AccessClaims{
		Subject:   did,
		SessionID: s.SessionID,
		Role:      string(role),
	}, m.accessTokenExpiry)
	if err != nil {
		return nil, err
	}

	refresh := NewRefreshToken()
	refreshExp := time.Now().Add(m.refreshTokenExpiry)

	s.State = StateAuthenticated
	s.RefreshToken = refresh
	s.RefreshExpiresAt = &refreshExp

	if err := store.Insert(ctx, ks, sessionKey(s.SessionID), s); err != nil {
		return nil, err
	}
	if err := store.Insert(ctx, ks, refreshKey(refresh), s.SessionID); err != nil {
		return nil, err
	}

	return &Tokens{
		SessionID:        s.SessionID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// DIDForRefreshToken resolves the DID bound to a refresh token without
// minting anything, so a caller can look up the DID's current ACL role
// before calling Refresh.
func (m *Manager) DIDForRefreshToken(ctx context.Context, ks store.Keyspace, refreshToken string) (string, error) {
	sessionID, ok, err := store.Get[string](ctx, ks, refreshKey(refreshToken))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.Authentication, "unknown refresh token")
	}
	s, ok, err := store.Get[Session](ctx, ks, sessionKey(sessionID))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.New(apperr.Authentication, "session not found")
	}
	return s.DID, nil
}

// Refresh mints a fresh access token for the session named by
// refreshToken, using the caller's current role (re-checked against
// ACL by the caller before invoking this). The refresh token itself is
// not rotated.
func (m *Manager) Refresh(ctx context.Context, ks store.Keyspace, refreshToken string, role acl.Role) (*Tokens, error) {
	sessionID, ok, err := store.Get[string](ctx, ks, refreshKey(refreshToken))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.Authentication, "unknown refresh token")
	}

	s, ok, err := store.Get[Session](ctx, ks, sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if !ok || s.State != StateAuthenticated {
		return nil, apperr.New(apperr.Authentication, "session not authenticated")
	}
	if s.RefreshExpiresAt == nil || time.Now().After(*s.RefreshExpiresAt) {
		return nil, apperr.New(apperr.Authentication, "refresh token expired")
	}

	access, accessExp, err := m.tokens.IssueAccessToken(AccessClaims{
		Subject:   s.DID,
		SessionID: s.SessionID,
		Role:      string(role),
	}, m.accessTokenExpiry)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		SessionID:        s.SessionID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: *s.RefreshExpiresAt,
	}, nil
}

// Principal is the {did, role} pair extracted from a validated access
// token by the HTTP/DIDComm token extractors.
type Principal struct {
	DID  string
	Role acl.Role
}

// Authorize validates token and confirms its session still exists and
// is Authenticated, per spec.md §4.3's extractor semantics.
func (m *Manager) Authorize(ctx context.Context, ks store.Keyspace, token string) (*Principal, error) {
	claims, err := m.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	s, ok, err := store.Get[Session](ctx, ks, sessionKey(claims.SessionID))
	if err != nil {
		return nil, err
	}
	if !ok || s.State != StateAuthenticated {
		return nil, apperr.New(apperr.Unauthorized, "session not found or not authenticated")
	}
	return &Principal{DID: claims.Subject, Role: acl.Role(claims.Role)}, nil
}

// CleanupExpired scans the sessions keyspace and removes ChallengeSent
// records past challengeTTL and Authenticated records past their
// refresh expiry, along with their reverse refresh index entries.
// Deserialization failures on an entry are skipped, not fatal, per
// spec.md §4.3.
func (m *Manager) CleanupExpired(ctx context.Context, ks store.Keyspace) (removed int, err error) {
	kvs, err := ks.PrefixIterRaw(ctx, "session:")
	if err != nil {
		return 0, err
	}
	now := time.Now()
	for _, kv := range kvs {
		var s Session
		if err := json.Unmarshal(kv.Value, &s); err != nil {
			continue
		}
		expired := false
		switch s.State {
		case StateChallengeSent:
			expired = now.Sub(s.CreatedAt) > m.challengeTTL
		case StateAuthenticated:
			expired = s.RefreshExpiresAt != nil && now.After(*s.RefreshExpiresAt)
		}
		if !expired {
			continue
		}
		if err := ks.Remove(ctx, kv.Key); err != nil {
			return removed, err
		}
		if s.RefreshToken != "" {
			if err := ks.Remove(ctx, refreshKey(s.RefreshToken)); err != nil {
				return removed, err
			}
		}
		removed++
	}
	return removed, nil
}

func stripKeyFragment(did string) string {
	if i := strings.Index(did, "#"); i >= 0 {
		return did[:i]
	}
	return did
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", apperr.Wrap(apperr.Internal, "generating random bytes", err)
	}
	return hex.EncodeToString(b), nil
}

func uuidLikeID() string {
	return uuid.NewString()
}
