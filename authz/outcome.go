package authz

// Outcome is the result of a single guarded request.
type Outcome int

const (
	// OutcomeAuthorized means the principal passed and the handler ran
	OutcomeAuthorized Outcome = iota
	// OutcomeUnauthenticated means no principal could be resolved (401)
	OutcomeUnauthenticated
	// OutcomeForbidden means the principal failed the check (403)
	OutcomeForbidden
	// OutcomeHandlerError means the handler failed after authorization (500)
	OutcomeHandlerError
)

// String returns the audit label for the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeHandlerError:
		return "handler_error"
	default:
		return "unknown"
	}
}
