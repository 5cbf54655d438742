package cli

import (
	"fmt"
	"io"

	"github.com/orizon-lang/ancl/internal/errors"
)

// Exit codes by error category.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConfig     = 2
	ExitInput      = 3
	ExitIO         = 4
	ExitLowering   = 5
	ExitStructural = 6
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	cat, ok := errors.CategoryOf(err)
	if !ok {
		return ExitFailure
	}
	switch cat {
	case errors.CategoryConfig:
		return ExitConfig
	case errors.CategoryInput:
		return ExitInput
	case errors.CategoryIO:
		return ExitIO
	case errors.CategoryLowering:
		return ExitLowering
	case errors.CategoryStructural:
		return ExitStructural
	}
	return ExitFailure
}

// HandleError reports err and returns the exit status for it.
func HandleError(w io.Writer, err error, logger *Logger) int {
	if err == nil {
		return ExitOK
	}
	if logger != nil {
		logger.Error("%v", err)
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return ExitCode(err)
}
