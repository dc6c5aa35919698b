package invoke

import "github.com/dwsmith1983/atfreport/pkg/types"

// RemoteLookupError describes a failed downstream call. It matches
// types.ErrRemoteLookupFailed under errors.Is.
type RemoteLookupError struct {
	Function   string
	StatusCode int
	Body       string
	Message    string
	Err        error
}

func (e *RemoteLookupError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the category and any transport error.
func (e *RemoteLookupError) Unwrap() []error {
	if e.Err == nil {
		return []error{types.ErrRemoteLookupFailed}
	}
	return []error{types.ErrRemoteLookupFailed, e.Err}
}
