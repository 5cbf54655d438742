// Package errors provides the compiler's error taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	// CategoryStructural marks a broken invariant left by an earlier stage.
	CategoryStructural ErrorCategory = "STRUCTURAL"
	// CategoryLowering marks a construct the target cannot express.
	CategoryLowering ErrorCategory = "LOWERING"
	CategoryConfig   ErrorCategory = "CONFIG"
	CategoryInput    ErrorCategory = "INPUT"
	CategoryIO       ErrorCategory = "IO"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Category, e.Code, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Is matches another StandardError with the same category and code. An empty
// code in the target matches the whole category.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Code == "" || t.Code == e.Code)
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return newError(2, category, code, message, context)
}

func newError(skip int, category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Structural reports an invariant violation, a bug in an earlier stage.
func Structural(code, message string, context map[string]interface{}) *StandardError {
	return newError(2, CategoryStructural, code, message, context)
}

// Lowering reports a construct the selected target does not support.
func Lowering(code, message string, context map[string]interface{}) *StandardError {
	return newError(2, CategoryLowering, code, message, context)
}

// Config reports invalid configuration.
func Config(code, message string, context map[string]interface{}) *StandardError {
	return newError(2, CategoryConfig, code, message, context)
}

// Input reports malformed input text.
func Input(code, message string, context map[string]interface{}) *StandardError {
	return newError(2, CategoryInput, code, message, context)
}

// IO wraps a file system failure.
func IO(path string, err error) *StandardError {
	return newError(2, CategoryIO, "IO_FAILURE", err.Error(), map[string]interface{}{"path": path})
}

// CategoryOf returns the category of the first StandardError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Category, true
	}
	return "", false
}

// IsStructural reports whether err is, or wraps, a structural error.
func IsStructural(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == CategoryStructural
}

// IsLowering reports whether err is, or wraps, a lowering failure.
func IsLowering(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == CategoryLowering
}

// Common error constructors
func OperandOutOfRange(index, length int, op string) *StandardError {
	return newError(2, CategoryStructural, "OPERAND_OUT_OF_RANGE",
		fmt.Sprintf("Operand %d out of range for %s with %d operands", index, op, length),
		map[string]interface{}{"index": index, "length": length})
}

func MissingStackSlot(fn string, index int) *StandardError {
	return newError(2, CategoryStructural, "MISSING_STACK_SLOT",
		fmt.Sprintf("No stack slot registered for index %d", index),
		map[string]interface{}{"function": fn, "index": index})
}

func BadValueKind(want string, got interface{}) *StandardError {
	return newError(2, CategoryStructural, "BAD_VALUE_KIND",
		fmt.Sprintf("Expected %s, got %T", want, got),
		map[string]interface{}{"want": want})
}

func Unsupported(construct, target string) *StandardError {
	return newError(2, CategoryLowering, "UNSUPPORTED",
		fmt.Sprintf("%s is not supported by target %s", construct, target),
		map[string]interface{}{"construct": construct, "target": target})
}

// Annotate adds key to the context of the StandardError in err's chain.
// Other errors are returned unchanged.
func Annotate(err error, key string, value interface{}) error {
	var se *StandardError
	if !stderrors.As(err, &se) {
		return err
	}
	if se.Context == nil {
		se.Context = map[string]interface{}{}
	}
	se.Context[key] = value
	return err
}
