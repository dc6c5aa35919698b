package types

import "errors"

// Error categories. Concrete errors wrap one of these so callers can classify
// failures with errors.Is.
var (
	// ErrInputEmpty is fatal for the whole invocation. Its message is the one
	// the queue consumers have always reported.
	ErrInputEmpty = errors.New("Event is empty") //nolint:staticcheck // message is part of the contract

	ErrRemoteLookupFailed         = errors.New("remote lookup failed")
	ErrReportGenerationFailed     = errors.New("ATF Report can't be created.") //nolint:staticcheck // message is part of the contract
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
	ErrMalformedActivityEvent     = errors.New("malformed activity event")
)
