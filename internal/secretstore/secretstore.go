// Package secretstore loads and saves long-lived server key material:
// the JWT signing key and any DIDComm/passkey symmetric secrets.
package secretstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"

	"github.com/affinidi/webvh-server/internal/apperr"
)

// SecretStore loads and persists named secrets.
type SecretStore interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, value []byte) error
}

// GetOrGenerate returns the named secret, generating and persisting
// sizeBytes of crypto/rand output under that name if it does not exist.
func GetOrGenerate(ctx context.Context, s SecretStore, name string, sizeBytes int) ([]byte, error) {
	v, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}
	v = make([]byte, sizeBytes)
	if _, err := rand.Read(v); err != nil {
		return nil, apperr.Wrap(apperr.SecretStore, "generating secret", err)
	}
	if err := s.Put(ctx, name, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DeriveKey derives a subKeySize-byte key for purpose from root using
// HKDF-SHA256, so a single root secret can back multiple independent
// keys (JWT signing, session encryption) without separate generation
// and storage of each.
func DeriveKey(root []byte, purpose string, subKeySize int) ([]byte, error) {
	reader := hkdf.New(sha256.New, root, nil, []byte(purpose))
	out := make([]byte, subKeySize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, apperr.Wrap(apperr.SecretStore, "deriving key", err)
	}
	return out, nil
}

// PlaintextStore persists secrets as files under dir. Grounded on the
// plaintext secret-store variant of the system this was distilled
// from: the simplest correct backend, suitable for local/dev
// deployments and as the default when no external secret manager is
// configured.
type PlaintextStore struct {
	dir string
}

// NewPlaintextStore ensures dir exists and returns a store rooted there.
func NewPlaintextStore(dir string) (*PlaintextStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperr.Wrap(apperr.SecretStore, "creating secrets directory", err)
	}
	return &PlaintextStore{dir: dir}, nil
}

func (p *PlaintextStore) path(name string) string {
	return filepath.Join(p.dir, name+".secret")
}

func (p *PlaintextStore) Get(_ context.Context, name string) ([]byte, error) {
	v, err := os.ReadFile(p.path(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.SecretStore, "reading secret file", err)
	}
	return v, nil
}

func (p *PlaintextStore) Put(_ context.Context, name string, value []byte) error {
	if err := os.WriteFile(p.path(name), value, 0o600); err != nil {
		return apperr.Wrap(apperr.SecretStore, "writing secret file", err)
	}
	return nil
}

// EnvStore reads secrets from environment variables named
// "{prefix}{NAME}", where NAME is name upper-cased with '-' mapped to
// '_'; the secret is the raw bytes of the variable's string value (no
// base64). Writes are unsupported: container deployments that
// choose this backend are expected to inject secrets at deploy time.
type EnvStore struct {
	prefix string
}

// NewEnvStore returns a store reading "{prefix}{NAME}" variables.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix}
}

func (e *EnvStore) Get(_ context.Context, name string) ([]byte, error) {
	v, ok := os.LookupEnv(e.prefix + envName(name))
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (e *EnvStore) Put(_ context.Context, name string, _ []byte) error {
	return apperr.New(apperr.SecretStore, "env secret store does not support writes: "+name)
}

func envName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c == '-' {
			c = '_'
		}
		out[i] = c
	}
	return string(out)
}
