package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
)

// ErrIntegrity is returned by Unwrap when authentication of either envelope
// layer fails: wrong key or tampered ciphertext. It is deliberately distinct
// from common.ErrorNotFound so callers can branch on "key exists but does not
// open" without string matching.
var ErrIntegrity = errors.New("integrity check failed")

// Wrap envelope-encrypts plaintext under derivedKey.
//
// A fresh random payload key encrypts the plaintext with AES-256-GCM; the
// payload key itself is then sealed under derivedKey and returned as the
// secured-key header. Rotating the outer key only requires re-sealing the
// small header, never the payload.
func Wrap(plaintext, derivedKey []byte) (ciphertext, securedKey []byte, err error) {
	payloadKey := common.GenerateRandByteArray(KeySize)
	defer common.WipeByteArray(payloadKey)

	ciphertext, err = seal(plaintext, payloadKey)
	if err != nil {
		return nil, nil, fmt.Errorf("sealing payload: %w", err)
	}

	securedKey, err = seal(payloadKey, derivedKey)
	if err != nil {
		return nil, nil, fmt.Errorf("sealing payload key: %w", err)
	}

	return ciphertext, securedKey, nil
}

// Unwrap reverses Wrap. Any authentication failure in either layer is
// reported as ErrIntegrity.
func Unwrap(ciphertext, securedKey, derivedKey []byte) ([]byte, error) {
	payloadKey, err := open(securedKey, derivedKey)
	if err != nil {
		return nil, ErrIntegrity
	}
	defer common.WipeByteArray(payloadKey)

	plaintext, err := open(ciphertext, payloadKey)
	if err != nil {
		return nil, ErrIntegrity
	}

	return plaintext, nil
}

// seal encrypts plaintext with AES-GCM under key, prepending the random nonce
// to the returned blob.
func seal(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a blob produced by seal.
func open(blob, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(blob) < aesgcm.NonceSize() {
		return nil, errors.New("blob too short")
	}
	nonce, ciphertext := blob[:aesgcm.NonceSize()], blob[aesgcm.NonceSize():]
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
