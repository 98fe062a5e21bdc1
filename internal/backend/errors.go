package backend

import (
	"errors"
	"fmt"
)

// ErrExited is reported when the backend dies before it accepts connections.
var ErrExited = errors.New("backend exited before accepting connections")

// StartError is returned by EnsureStarted when the backend could not be
// brought up. Op is "spawn" or "ready".
type StartError struct {
	Op  string
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("php backend %s failed: %v", e.Op, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsStartError reports whether err came from a failed startup.
func IsStartError(err error) bool {
	var startErr *StartError
	return errors.As(err, &startErr)
}
