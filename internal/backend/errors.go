package backend

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/jablang/jab/ir"
)

var (
	// ErrMalformedIR is returned for input violating the IR invariants.
	ErrMalformedIR = ir.ErrMalformed
	// ErrUnsupported is returned for well-formed input the backend cannot lower.
	ErrUnsupported = errors.New("unsupported feature")
)

// LoweringError is the diagnostic of a fatal lowering condition. It unwraps to
// ErrMalformedIR or ErrUnsupported.
type LoweringError struct {
	Function string
	Block    ir.BlockID
	// Index is the instruction index within Block, -1 for function level problems.
	Index  int
	Op     ir.Op
	Kinds  [3]ir.OperandKind
	Reason string
	Err    error
}

// Malformed returns a LoweringError for malformed input. The caller of the Machine fills the location.
func Malformed(format string, args ...interface{}) *LoweringError {
	return &LoweringError{Index: -1, Reason: fmt.Sprintf(format, args...), Err: ErrMalformedIR}
}

// Unsupported returns a LoweringError for input the Machine cannot lower.
func Unsupported(format string, args ...interface{}) *LoweringError {
	return &LoweringError{Index: -1, Reason: fmt.Sprintf(format, args...), Err: ErrUnsupported}
}

// Error implements error.
func (e *LoweringError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("func %s: %s: %v", e.Function, e.Reason, e.Err)
	}
	return fmt.Sprintf("func %s: %s[%d]: %s(%s, %s, %s): %s: %v", e.Function, e.Block, e.Index,
		e.Op, e.Kinds[0], e.Kinds[1], e.Kinds[2], e.Reason, e.Err)
}

// Unwrap returns the error class.
func (e *LoweringError) Unwrap() error { return e.Err }
