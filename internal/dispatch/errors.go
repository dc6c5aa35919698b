package dispatch

import (
	"fmt"

	"github.com/dwsmith1983/atfreport/pkg/types"
)

// StageError marks a message that failed at a processing stage.
type StageError struct {
	MessageID  string
	ActivityID string
	Stage      types.Stage
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("message %s failed at %s: %v", e.MessageID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
