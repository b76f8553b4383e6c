package remote

import (
	"errors"
	"fmt"
)

// ErrMalformedResult is returned when a successful envelope carries a result
// that does not decode into the function's response type.
var ErrMalformedResult = errors.New("malformed remote result")

// TransportFailure is an execution-level failure: the runtime reported an
// error, or the response was not a {success, result} envelope.
type TransportFailure struct {
	Function string
	Raw      string
	Err      error
}

func (e *TransportFailure) Error() string {
	if e.Raw == "" && e.Err != nil {
		return fmt.Sprintf("remote function %s transport failure: %v", e.Function, e.Err)
	}
	return fmt.Sprintf("remote function %s transport failure: %s", e.Function, e.Raw)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// BusinessFailure is an envelope with success=false.
type BusinessFailure struct {
	Function string
}

func (e *BusinessFailure) Error() string {
	return fmt.Sprintf("remote function %s failed", e.Function)
}

// Recoverable reports whether err is one of the two invocation failure kinds
// that callers may recover from locally.
func Recoverable(err error) bool {
	var transport *TransportFailure
	var business *BusinessFailure
	return errors.As(err, &transport) || errors.As(err, &business)
}
