package cryptox

import (
	"bytes"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-installation-salt")

	key1 := DeriveKey(password, "jdoe", salt)
	key2 := DeriveKey(password, "jdoe", salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d-byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveKey_LoginContextMatters(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-installation-salt")

	key1 := DeriveKey(password, "jdoe", salt)
	key2 := DeriveKey(password, "asmith", salt)

	// same password, different users -> different keys
	if bytes.Equal(key1, key2) {
		t.Errorf("expected different keys for different logins, got same")
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, "jdoe", []byte("salt-1"))
	key2 := DeriveKey(password, "jdoe", []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestVerifySecret(t *testing.T) {
	salt := []byte("fixed-installation-salt")
	secret := []byte("the-vault-master-secret")

	v := Verifier(secret, salt)

	if !VerifySecret(secret, salt, v) {
		t.Errorf("expected verifier to match original secret")
	}
	if VerifySecret([]byte("some-other-secret"), salt, v) {
		t.Errorf("expected verifier mismatch for different secret")
	}
	if VerifySecret(secret, []byte("other-salt"), v) {
		t.Errorf("expected verifier mismatch for different salt")
	}
}
