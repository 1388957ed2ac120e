package models

import "time"

// RefreshToken is a persisted session-refresh credential.
type RefreshToken struct {
	UserID  string
	Token   string
	Expires time.Time
}
