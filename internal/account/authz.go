package account

// Action enumerates the mutations guarded by the authorization gate.
type Action string

const (
	ActionApprove    Action = "account.approve"
	ActionBlock      Action = "account.block"
	ActionChangeRole Action = "account.change_role"
	ActionReadSelf   Action = "account.read_self"
)

// policy is the role × action allow table. Teachers may approve pending
// accounts regardless of the target's role; the guard checks only the
// caller. Flagged for product review, kept as observed.
var policy = map[Action]map[Role]bool{
	ActionApprove:    {RoleAdmin: true, RoleTeacher: true},
	ActionBlock:      {RoleAdmin: true},
	ActionChangeRole: {RoleAdmin: true},
	ActionReadSelf:   {RoleAdmin: true, RoleTeacher: true, RoleStudent: true},
}

// Authorize decides whether callerRole may perform action. Denials are a
// constant-shape ErrForbidden carrying no hint about the target account, so
// the gate cannot be used for account enumeration. Session verification
// happens upstream; the role passed here is already authenticated.
func Authorize(callerRole Role, action Action) error {
	if policy[action][callerRole] {
		return nil
	}
	return ErrForbidden
}
