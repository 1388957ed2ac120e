package directory

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Kind classifies directory failures. Configuration and connectivity kinds
// are surfaced to administrators with detail; credential-adjacent kinds
// (InvalidCredentials, UserNotFound, NotInGroup, AmbiguousUser) must be
// collapsed into a generic "invalid credentials" message before reaching an
// end user, to avoid account enumeration.
type Kind int

const (
	KindConfigIncomplete Kind = iota + 1
	KindUnreachable
	KindInvalidCredentials
	KindAmbiguousUser
	KindUserNotFound
	KindSearchFailed
	KindNotInGroup
)

func (k Kind) String() string {
	switch k {
	case KindConfigIncomplete:
		return "config incomplete"
	case KindUnreachable:
		return "server unreachable"
	case KindInvalidCredentials:
		return "invalid credentials"
	case KindAmbiguousUser:
		return "ambiguous user"
	case KindUserNotFound:
		return "user not found"
	case KindSearchFailed:
		return "search failed"
	case KindNotInGroup:
		return "not in group"
	default:
		return "unknown"
	}
}

// Error is the typed failure of every directory operation. Filter and Code
// carry the last search filter and directory result code for diagnostics.
type Error struct {
	Kind   Kind
	Filter string
	Code   uint16
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Filter != "" {
		msg = fmt.Sprintf("%s (filter %q)", msg, e.Filter)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (directory code %d)", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a directory Error of the given kind.
func IsKind(err error, k Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == k
}

// resultCode extracts the protocol result code from a go-ldap error, 0 when
// none is available.
func resultCode(err error) uint16 {
	var le *ldap.Error
	if errors.As(err, &le) {
		return le.ResultCode
	}
	return 0
}

func newError(k Kind, err error) *Error {
	return &Error{Kind: k, Code: resultCode(err), Err: err}
}

func searchFailed(filter string, err error) *Error {
	return &Error{Kind: KindSearchFailed, Filter: filter, Code: resultCode(err), Err: err}
}
