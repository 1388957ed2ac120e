package models

import "time"

// MasterKeyRecord is the single installation-wide escrow record for the
// vault master secret. The secret itself is never stored; Verifier is a
// keyed hash of its plaintext so the engine can tell a rotated secret from
// a wrong password.
//
// RotationWrapped/RotationSecuredKey carry the rotation chain: when the
// secret is rotated, the new plaintext is wrapped under a key derived from
// the previous plaintext. A user whose copy still holds the old secret can
// follow the chain forward instead of losing access.
type MasterKeyRecord struct {
	ID       int64
	Verifier []byte

	RotationWrapped    []byte
	RotationSecuredKey []byte

	RotatedAt time.Time
	CreatedAt time.Time
}

// HasRotationChain reports whether a previous-secret recovery blob exists.
func (m *MasterKeyRecord) HasRotationChain() bool {
	return len(m.RotationWrapped) > 0 && len(m.RotationSecuredKey) > 0
}
