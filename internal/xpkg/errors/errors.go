package errors

import "errors"

var (
	ErrParseCmd       = errors.New("cannot parse arguments")
	ErrHelp           = errors.New("")
	ErrModeFlag       = errors.New("mode flag is required")
	ErrUnknownService = errors.New("unknown service, write --help command to see valid services")

	ErrDBConn = errors.New("db connection failure")
	ErrMBConn = errors.New("message broker connection failure")

	ErrFieldIsEmpty = errors.New("field is empty")
	ErrInvalidOrder = errors.New("invalid order")

	// Order store contract
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatusConflict    = errors.New("order status changed concurrently")

	// Fetch failures that the next poll tick retries.
	ErrTransientFetch = errors.New("transient fetch failure")

	// A view refuses work once it has been stopped.
	ErrViewStopped = errors.New("view stopped")

	// Session failures. Both are fatal to a view.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// IsAuthorization reports whether err must halt a view instead of being retried.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
