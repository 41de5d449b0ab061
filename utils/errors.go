package utils

import (
	"errors"
	"fmt"
)

// Error classes surfaced by the assembly core
var (
	// ErrUnsupported marks a configuration or method combination that is not
	// implemented. Not retryable.
	ErrUnsupported = errors.New("unsupported configuration")

	// ErrInvariant marks a programmer error such as reading an unbound view.
	ErrInvariant = errors.New("invariant violation")

	// ErrNumericalProblem marks a singular or ill-posed local system. The
	// caller may retry with a different state (e.g. a smaller time step).
	ErrNumericalProblem = errors.New("numerical problem")
)

// AssemblyError reports where a residual evaluation failed
type AssemblyError struct {
	Element int // Global element index
	Scvf    int // Global scvf index, -1 if the failure is not face related
	Err     error
}

func (e *AssemblyError) Error() string {
	if e.Scvf < 0 {
		return fmt.Sprintf("element %d: %v", e.Element, e.Err)
	}
	return fmt.Sprintf("element %d, scvf %d: %v", e.Element, e.Scvf, e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// IsNumericalProblem reports whether err carries ErrNumericalProblem
func IsNumericalProblem(err error) bool {
	return errors.Is(err, ErrNumericalProblem)
}

// Assert panics with an ErrInvariant wrapped error when cond is false.
// Builds tagged fvrelease compile the check out.
func Assert(cond bool, format string, args ...any) {
	if AssertionsEnabled && !cond {
		panic(fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...)))
	}
}
