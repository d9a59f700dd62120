package emp

import "errors"

var (
	// ErrNoHandler is returned for a directive with no registered handler.
	ErrNoHandler = errors.New("no handler for directive")
	// ErrMalformedPayload is returned for a payload that is not a JSON object.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMissingField is returned when a required payload field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrOutOfRange is returned for a payload value outside its allowed range.
	ErrOutOfRange = errors.New("value out of range")
	// ErrUnauthorizedPlayer is returned for operations on a player the cloud has not authorized.
	ErrUnauthorizedPlayer = errors.New("player not authorized")
	// ErrShutdown is returned once the core has been shut down.
	ErrShutdown = errors.New("external media player is shut down")
)

// exceptionType maps an error to the ExceptionEncountered error type.
func exceptionType(err error) string {
	switch {
	case errors.Is(err, ErrNoHandler):
		return "UNSUPPORTED_OPERATION"
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrMissingField), errors.Is(err, ErrOutOfRange):
		return "UNEXPECTED_INFORMATION_RECEIVED"
	default:
		return "INTERNAL_ERROR"
	}
}
