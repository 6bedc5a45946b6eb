package services

// Error is a domain failure a client can act on. Handlers map Code to an
// HTTP status.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrNotAuthenticated = &Error{Code: "not_authenticated", Message: "not authenticated"}
	ErrAlreadyPaired    = &Error{Code: "already_paired", Message: "user is already in a pair"}
	ErrInvalidCode      = &Error{Code: "invalid_code", Message: "invalid invite code"}
	ErrCodeNotFound     = &Error{Code: "code_not_found", Message: "invite code not found"}
	ErrPairFull         = &Error{Code: "pair_full", Message: "pair already has two members"}
	ErrNotPaired        = &Error{Code: "not_paired", Message: "user is not in a finalized pair"}
	ErrNotInStep        = &Error{Code: "not_in_step", Message: "setup is on a different step"}
	ErrPhaseChanged     = &Error{Code: "phase_changed", Message: "setup phase changed, reload and retry"}
	ErrNoPartnerDataYet = &Error{Code: "no_partner_data_yet", Message: "partner has not submitted yet"}
	ErrNotFound         = &Error{Code: "not_found", Message: "not found"}
	ErrForbidden        = &Error{Code: "forbidden", Message: "operation not allowed for this user"}
	ErrInvalidPayload   = &Error{Code: "invalid_payload", Message: "invalid payload"}
	ErrBreakNotPending  = &Error{Code: "break_not_pending", Message: "break request was already decided"}
)

// invalidPayload wraps a validation failure so it still matches ErrInvalidPayload.
type invalidPayload struct {
	err error
}

func (e *invalidPayload) Error() string {
	return "invalid payload: " + e.err.Error()
}

func (e *invalidPayload) Unwrap() []error {
	return []error{ErrInvalidPayload, e.err}
}

func newInvalidPayload(err error) error {
	return &invalidPayload{err: err}
}
