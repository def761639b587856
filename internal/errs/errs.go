package errs

import "errors"

var (
	// ErrNotFound is the sentinel for missing or inactive catalog/ledger rows.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is the sentinel for requests without a valid identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidArgument is the sentinel for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTransition rejects a state-machine operation that is not
	// legal from the attempt's current status. State is left unchanged.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidSubtask rejects a subtask index outside the mission's
	// catalog-declared subtask range.
	ErrInvalidSubtask = errors.New("invalid subtask")
	// ErrDecisionNotFound rejects a decision id with no catalog decision point.
	ErrDecisionNotFound = errors.New("decision not found")
	// ErrInvalidChoice rejects a choice id not declared on the decision point.
	ErrInvalidChoice = errors.New("invalid choice")
	// ErrAlreadySubmitted rejects a second Submit on the same attempt.
	ErrAlreadySubmitted = errors.New("already submitted")

	// ErrConflict is an optimistic-concurrency violation on a ledger row.
	// Callers retry a bounded number of times before surfacing it.
	ErrConflict = errors.New("concurrency conflict")
)
