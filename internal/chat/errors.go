package chat

import "github.com/pkg/errors"

// Store and aggregator error taxonomy. Callers classify with errors.Is;
// wrapped variants carry the offending name or id.
var (
	// ErrDuplicateName: a chat with the requested name already exists.
	// The existing chat is untouched and nothing was written.
	ErrDuplicateName = errors.New("chat name already exists")

	// ErrValidation: the input was rejected before touching the
	// database, e.g. a blank chat name or an unknown role.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound: the operation referenced a chat or job id that does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrPersistenceUnavailable: the store is running degraded without
	// a database and the operation needs one to produce a result.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrTurnActive: a turn is already streaming on this session.
	// Turns are serialized per conversation.
	ErrTurnActive = errors.New("turn already in progress")
)
