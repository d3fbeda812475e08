package raid

import "errors"

// User-input validation errors surface as a corrective re-prompt, never as
// a process failure.
var (
	ErrInvalidTimezone = errors.New("unknown timezone or alias")
	ErrInvalidTime     = errors.New("unparseable time of day")
	ErrInvalidWeekday  = errors.New("unknown weekday")

	// ErrNotFound means a referenced event or recurrence rule does not
	// exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrUserCanceled ends an interactive flow silently.
	ErrUserCanceled = errors.New("user canceled")

	// ErrEventClosed rejects roster mutation on a terminal record.
	ErrEventClosed = errors.New("event no longer accepts signups")
)
