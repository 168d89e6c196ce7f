package lifter

import (
	"fmt"

	"github.com/pkg/errors"
)

// LiftFailure is an asserted invariant violation while lifting one
// prototype (spec.md §7): a reference to a register with no bound
// Local where none can be synthesized, a Return without the tail state
// it required, or a malformed LoadVarargs sequence.
type LiftFailure struct {
	Reason string
}

func (e *LiftFailure) Error() string { return "lift failure: " + e.Reason }

func fail(format string, args ...interface{}) error {
	return errors.WithStack(&LiftFailure{Reason: fmt.Sprintf(format, args...)})
}
