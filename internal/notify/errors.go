package notify

import (
	"fmt"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// NotifyError is a failed send to one recipient. It matches
// types.ErrNotificationDeliveryFailed under errors.Is.
type NotifyError struct { //nolint:revive // notify.NotifyError reads better at call sites than notify.Error
	Recipient  string
	StatusCode int
	Message    string
	Err        error
}

func (e *NotifyError) Error() string {
	msg := fmt.Sprintf("notify %s", e.Recipient)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += " " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the category and any transport error.
func (e *NotifyError) Unwrap() []error {
	if e.Err == nil {
		return []error{types.ErrNotificationDeliveryFailed}
	}
	return []error{types.ErrNotificationDeliveryFailed, e.Err}
}
