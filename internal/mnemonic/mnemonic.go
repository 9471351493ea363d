// Package mnemonic implements DID slot naming: random two-word BIP-39
// mnemonics and the validation rules for custom slash-separated paths.
package mnemonic

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
	"github.com/tyler-smith/go-bip39/wordlists"
)

// reservedNames conflict with server routes and must not be used as
// the first segment of a custom path.
var reservedNames = map[string]bool{
	".well-known": true,
	"api":         true,
	"auth":        true,
	"dids":        true,
	"stats":       true,
	"acl":         true,
	"health":      true,
}

const maxGenerateAttempts = 100

// randomWord picks a uniformly random word from the BIP-39 English wordlist.
func randomWord() (string, error) {
	words := wordlists.English
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "generating random index", err)
	}
	return words[n.Int64()], nil
}

func randomMnemonic() (string, error) {
	w1, err := randomWord()
	if err != nil {
		return "", err
	}
	w2, err := randomWord()
	if err != nil {
		return "", err
	}
	return w1 + "-" + w2, nil
}

// GenerateUnique produces a random two-word mnemonic that does not
// already occupy a did:{mnemonic} slot, retrying up to 100 times.
func GenerateUnique(ctx context.Context, dids store.Keyspace) (string, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		m, err := randomMnemonic()
		if err != nil {
			return "", err
		}
		exists, err := dids.ContainsKey(ctx, "did:"+m)
		if err != nil {
			return "", err
		}
		if !exists {
			return m, nil
		}
	}
	return "", apperr.New(apperr.Internal, "failed to generate unique mnemonic after 100 attempts")
}

func validateSegment(segment string) error {
	if len(segment) < 2 || len(segment) > 63 {
		return apperr.New(apperr.Validation, "each path segment must be between 2 and 63 characters")
	}
	for _, c := range segment {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
			return apperr.New(apperr.Validation, "path segments must contain only lowercase letters, digits, and hyphens")
		}
	}
	first := segment[0]
	last := segment[len(segment)-1]
	if !isAlphanumeric(first) || !isAlphanumeric(last) {
		return apperr.New(apperr.Validation, "each path segment must start and end with an alphanumeric character")
	}
	return nil
}

func isAlphanumeric(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// ValidateCustomPath checks a caller-supplied slot path against the
// segment, length, and reserved-name rules. Paths may contain '/'
// separators for hierarchical custom paths (e.g. "people/staff/glenn");
// only the first segment is checked against reserved route names.
func ValidateCustomPath(path string) error {
	if path == "" {
		return apperr.New(apperr.Validation, "path must not be empty")
	}
	if len(path) > 255 {
		return apperr.New(apperr.Validation, "path must be at most 255 characters")
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return apperr.New(apperr.Validation, "path must not start or end with '/'")
	}

	segments := strings.Split(path, "/")
	for _, segment := range segments {
		if segment == "" {
			return apperr.New(apperr.Validation, "path must not contain empty segments (double slashes)")
		}
		if err := validateSegment(segment); err != nil {
			return err
		}
	}

	if reservedNames[segments[0]] {
		return apperr.New(apperr.Validation, "'"+segments[0]+"' is a reserved name and cannot be used as the first path segment")
	}
	return nil
}

// ValidateMnemonic is the permissive check applied to an already-
// assigned mnemonic on every subsequent operation (publish, info, list
// entry, delete): it re-checks the character ruleset without the
// reserved-name rejection, since a random two-word mnemonic or an
// already-accepted custom path must always pass.
func ValidateMnemonic(mnemonic string) error {
	if mnemonic == ".well-known" {
		return nil
	}
	if mnemonic == "" {
		return apperr.New(apperr.Validation, "mnemonic must not be empty")
	}
	if len(mnemonic) > 255 {
		return apperr.New(apperr.Validation, "mnemonic must be at most 255 characters")
	}
	if strings.HasPrefix(mnemonic, "/") || strings.HasSuffix(mnemonic, "/") {
		return apperr.New(apperr.Validation, "mnemonic must not start or end with '/'")
	}
	for _, segment := range strings.Split(mnemonic, "/") {
		if segment == "" {
			return apperr.New(apperr.Validation, "mnemonic must not contain empty segments (double slashes)")
		}
		if err := validateSegment(segment); err != nil {
			return err
		}
	}
	return nil
}

// IsPathAvailable reports whether no DID record currently occupies path.
func IsPathAvailable(ctx context.Context, dids store.Keyspace, path string) (bool, error) {
	exists, err := dids.ContainsKey(ctx, "did:"+path)
	if err != nil {
		return false, err
	}
	return !exists, nil
}
