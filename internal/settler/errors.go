package settler

import "errors"

// Error taxonomy for the settlement path. Lock contention and
// unresolved matches are expected conditions handled inside a cycle;
// only ErrAlreadySettled and transient commit failures need explicit
// classification by callers.
var (
	// ErrAlreadySettled means the idempotency guard tripped: the bet
	// left pending between our status check and the commit. Logged and
	// dropped, never retried.
	ErrAlreadySettled = errors.New("bet already settled")

	// ErrMatchUnresolved means a selection's underlying fixture has no
	// final result yet. The whole bet stays pending for a later cycle.
	ErrMatchUnresolved = errors.New("match result not yet resolvable")
)

// IsDuplicate reports whether err is the idempotency guard firing.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrAlreadySettled)
}
