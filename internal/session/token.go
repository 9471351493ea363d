// Package session implements C5: challenge-response authentication,
// the session state machine, JWT access-token issuance/validation, and
// the refresh-token reverse index.
package session

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/affinidi/webvh-server/internal/apperr"
)

const issuer = "webvh-server"

// AccessClaims are the claims carried in a minted access token.
type AccessClaims struct {
	Subject   string `json:"sub"` // DID
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

// TokenManager issues and validates HS256 compact JWT access tokens,
// grounded on the HMAC-signed self-issued JWT pattern the core
// session machinery uses elsewhere in this codebase, generalized from
// cookie-bound web sessions to bearer tokens (no cookies appear on
// this DIDComm/passkey surface).
type TokenManager struct {
	signingKey []byte
}

// NewTokenManager builds a manager around signingKey, which should be
// at least 32 bytes of high-entropy material (see internal/secretstore).
func NewTokenManager(signingKey []byte) (*TokenManager, error) {
	if len(signingKey) < 32 {
		return nil, apperr.New(apperr.Config, "session signing key must be at least 32 bytes")
	}
	return &TokenManager{signingKey: signingKey}, nil
}

// IssueAccessToken mints a signed token valid for expiry from now.
func (tm *TokenManager) IssueAccessToken(claims AccessClaims, expiry time.Duration) (token string, exp time.Time, err error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: tm.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.Internal, "creating token signer", err)
	}

	now := time.Now()
	exp = now.Add(expiry)
	registered := jwt.Claims{
		Subject:   claims.Subject,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(exp),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	token, err = jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.Internal, "signing access token", err)
	}
	return token, exp, nil
}

// ValidateAccessToken verifies the signature and expiry and returns
// the embedded claims. Any failure is Unauthorized.
func (tm *TokenManager) ValidateAccessToken(raw string) (*AccessClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "parsing access token", err)
	}

	var registered jwt.Claims
	var custom AccessClaims
	if err := tok.Claims(tm.signingKey, &registered, &custom); err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "verifying access token", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: issuer,
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return nil, apperr.Wrap(apperr.Unauthorized, "access token expired or invalid", err)
	}

	return &custom, nil
}

// NewRefreshToken generates a random UUID-like refresh token string.
func NewRefreshToken() string {
	return fmt.Sprintf("rt_%s", uuid.NewString())
}
