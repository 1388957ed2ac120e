package models

import "time"

// AuthSource distinguishes locally managed accounts from directory-backed
// ones.
const (
	AuthSourceLocal     = "local"
	AuthSourceDirectory = "directory"
)

// User is a vault account. For local accounts Salt/Verifier hold the login
// password verifier; directory accounts authenticate against LDAP/AD and
// leave them empty.
//
// The Unlock* fields are the user's wrapped copy of the vault master secret
// (the "unlock key"): ciphertext blob, secured-key header and the time it
// was last (re)wrapped. They are replaced wholesale whenever the login
// password or the vault secret changes, and deleted with the user.
type User struct {
	ID          string
	Login       string
	DisplayName string
	Email       string
	AuthSource  string
	GroupID     int64
	ProfileID   int64

	Salt     []byte
	Verifier []byte

	UnlockKey        []byte
	UnlockSecuredKey []byte
	UnlockUpdatedAt  time.Time

	// PasswordJustChanged is set when the login password changed without
	// the unlock key being re-wrapped yet; the escrow engine then demands
	// the previous password before it will unwrap.
	PasswordJustChanged bool

	LastLoginAt time.Time
	CreatedAt   time.Time
}

// HasUnlockKey reports whether a wrapped vault-secret copy exists for this
// user.
func (u *User) HasUnlockKey() bool {
	return len(u.UnlockKey) > 0 && len(u.UnlockSecuredKey) > 0
}
