// Package password verifies and hashes account passwords.
//
// New hashes are argon2id PHC strings. Hashes carried over from the bcrypt
// era ($2a$, $2b$, $2y$) still verify and are reported by NeedsUpgrade so
// callers can rehash after a successful login.
package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks plaintext passwords against stored hashes.
type Verifier struct {
	argon *Argon2
	dummy string
}

// NewVerifier builds a Verifier with the given argon2id work factor.
func NewVerifier(cfg Config) (*Verifier, error) {
	argon, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}

	dummy, err := argon.Hash("teamgate-dummy-password")
	if err != nil {
		return nil, err
	}

	return &Verifier{argon: argon, dummy: dummy}, nil
}

// Hash returns a new argon2id hash of plain.
func (v *Verifier) Hash(plain string) (string, error) {
	return v.argon.Hash(plain)
}

// Verify reports whether plain matches storedHash. Malformed or unknown
// hash formats never match.
func (v *Verifier) Verify(plain, storedHash string) bool {
	switch {
	case isArgon2(storedHash):
		ok, err := v.argon.Verify(plain, storedHash)
		return err == nil && ok
	case isBcrypt(storedHash):
		if len(plain) > v.argon.config.MaxBytes {
			return false
		}
		err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plain))
		return err == nil
	default:
		return false
	}
}

// VerifyDummy burns the same work as a real argon2id verification. It is
// used when no account exists so both paths take comparable time.
func (v *Verifier) VerifyDummy(plain string) {
	_, _ = v.argon.Verify(plain, v.dummy)
}

// NeedsUpgrade reports whether storedHash should be replaced by a fresh
// argon2id hash.
func (v *Verifier) NeedsUpgrade(storedHash string) bool {
	if isBcrypt(storedHash) {
		return true
	}
	upgrade, err := v.argon.NeedsUpgrade(storedHash)
	return err == nil && upgrade
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// HashBcrypt produces a bcrypt hash. It exists for importing accounts from
// systems that stored bcrypt and for tests of the legacy path.
func HashBcrypt(plain string, cost int) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(out), nil
}
