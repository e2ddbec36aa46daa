package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()

	v, err := NewVerifier(fastConfig())
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	return v
}

func TestVerifierArgon2RoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	hash, err := v.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !v.Verify("secret1", hash) {
		t.Fatal("expected correct password to verify")
	}
	if v.Verify("secret2", hash) {
		t.Fatal("expected wrong password to fail")
	}
	if v.NeedsUpgrade(hash) {
		t.Fatal("fresh hash should not need upgrade")
	}
}

func TestVerifierLegacyBcrypt(t *testing.T) {
	v := newTestVerifier(t)

	legacy, err := HashBcrypt("secret1", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashBcrypt failed: %v", err)
	}

	if !v.Verify("secret1", legacy) {
		t.Fatal("expected bcrypt hash to verify")
	}
	if v.Verify("secret2", legacy) {
		t.Fatal("expected wrong password against bcrypt hash to fail")
	}
	if !v.NeedsUpgrade(legacy) {
		t.Fatal("bcrypt hashes must be flagged for upgrade")
	}
}

func TestVerifierRejectsUnknownFormats(t *testing.T) {
	v := newTestVerifier(t)

	for _, stored := range []string{"", "secret1", "$1$abc$def", "$argon2id$garbage"} {
		if v.Verify("secret1", stored) {
			t.Fatalf("expected %q never to verify", stored)
		}
	}
}

func TestVerifyDummyDoesNotPanic(t *testing.T) {
	v := newTestVerifier(t)
	v.VerifyDummy("anything")
	v.VerifyDummy("")
}
