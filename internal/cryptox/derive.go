// Package cryptox implements the key derivation and envelope encryption
// primitives behind the vault master-key escrow: an Argon2id password KDF,
// a two-layer AES-256-GCM envelope (a random payload key sealed under a
// derived key), and a keyed verifier hash that lets callers confirm an
// unwrapped secret without another decryption.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// KeySize is the size in bytes of every derived and generated key.
const KeySize = 32

// Argon2id parameters. Changing any of these invalidates all stored
// unlock keys, so treat them as part of the on-disk format.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveKey stretches secret material into a KeySize-byte symmetric key.
// The login name is mixed into the input so two users with the same password
// derive different keys; salt is the installation-wide derivation salt.
// The derivation is one-way.
func DeriveKey(secret []byte, login string, salt []byte) []byte {
	material := make([]byte, 0, len(secret)+len(login))
	material = append(material, secret...)
	material = append(material, []byte(login)...)
	return argon2.IDKey(material, salt, argonTime, argonMemory, argonThreads, KeySize)
}

// Verifier computes a keyed hash of plaintext under the installation salt.
// It is stored alongside the wrapped vault secret and checked after every
// unwrap, so a stale or foreign unlock key is detected even when it
// decrypts cleanly.
func Verifier(plaintext, salt []byte) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write(plaintext)
	return mac.Sum(nil)
}

// VerifySecret reports whether plaintext matches the stored verifier hash.
// The comparison is constant-time.
func VerifySecret(plaintext, salt, verifier []byte) bool {
	return hmac.Equal(Verifier(plaintext, salt), verifier)
}
