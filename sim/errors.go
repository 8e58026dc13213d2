package sim

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrInvalidDeadline is returned when a callback is scheduled in the past.
var ErrInvalidDeadline = errors.New("invalid deadline")

// InvariantError is the panic value raised by Fatalf. It signals a logic
// error in the simulator rather than a modeled condition.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Msg
}

// Fatalf aborts the current run with a diagnostic.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logrus.Errorf("invariant violated: %s", msg)
	panic(&InvariantError{Msg: msg})
}
