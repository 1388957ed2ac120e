package escrow

// Status is the outcome of an unlock attempt. Outcomes are returned, not
// raised, so callers can branch on the expected non-OK cases.
type Status int

const (
	// StatusNotSet means the vault secret was never provisioned, or this
	// user has no wrapped copy of it yet.
	StatusNotSet Status = iota
	// StatusWrong means the copy unwrapped cleanly but does not match the
	// canonical vault secret (stale or foreign copy).
	StatusWrong
	// StatusOK means the vault secret was recovered and verified.
	StatusOK
	// StatusChanged means the vault secret was rotated after this user's
	// copy was written; re-provisioning via UpdateFromOldPass is required.
	StatusChanged
	// StatusCheckOld means the current password cannot unwrap the copy and
	// the previous login password must be supplied.
	StatusCheckOld
)

func (s Status) String() string {
	switch s {
	case StatusNotSet:
		return "not_set"
	case StatusWrong:
		return "wrong"
	case StatusOK:
		return "ok"
	case StatusChanged:
		return "changed"
	case StatusCheckOld:
		return "check_old"
	default:
		return "unknown"
	}
}
