package relay

import "errors"

// Error kinds. Match them with errors.Is; the HTTP layer maps each to a status.
var (
	ErrValidation           = errors.New("invalid request")
	ErrConfiguration        = errors.New("relay is not configured")
	ErrUpstreamAudioMissing = errors.New("voice service returned no audio")
	ErrNotFound             = errors.New("audio not produced yet")
)

// Error is a failure with a message that is safe to return to callers.
type Error struct {
	Kind    error  // one of the Err* kinds above
	Message string // caller-facing text
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
