package opt

import (
	"fmt"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

// Pass names accepted by Run.
const (
	PassSSA   = "ssa"
	PassClean = "clean"
	PassDCE   = "dce"
	PassDVNT  = "dvnt"
)

// DefaultPasses is the pass order used when the configuration names none.
var DefaultPasses = []string{PassClean, PassDCE, PassDVNT}

var passes = map[string]func(*ir.Function) bool{
	PassClean: Clean,
	PassDCE:   DCE,
	PassDVNT:  DVNT,
	PassSSA: func(fn *ir.Function) bool {
		return PromoteAllocas(fn).Promoted > 0
	},
}

// ValidatePasses checks that every name refers to a known pass.
func ValidatePasses(names []string) error {
	for _, name := range names {
		if _, ok := passes[name]; !ok {
			return errors.Config("UNKNOWN_PASS", fmt.Sprintf("unknown optimization pass %q", name),
				map[string]interface{}{"pass": name})
		}
	}
	return nil
}

// Run promotes the allocas of fn to SSA and then applies the named passes in
// order, iterations times. An explicit "ssa" entry in names is skipped since
// promotion always runs first. The function is verified afterwards.
func Run(fn *ir.Function, names []string, iterations int) error {
	if err := ValidatePasses(names); err != nil {
		return err
	}
	if fn.IsDeclaration() {
		return nil
	}
	if iterations < 1 {
		iterations = 1
	}

	PromoteAllocas(fn)
	for it := 0; it < iterations; it++ {
		changed := false
		for _, name := range names {
			if name == PassSSA {
				continue
			}
			if passes[name](fn) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	if err := ir.Verify(fn); err != nil {
		return fmt.Errorf("optimize %s: %w", fn.Name(), err)
	}
	if tlog.If("opt") {
		tlog.Printw("optimized", "func", fn.Name(), "blocks", len(fn.Blocks))
	}
	return nil
}

// RunProgram optimizes every defined function of p.
func RunProgram(p *ir.Program, names []string, iterations int) error {
	for _, fn := range p.Functions {
		if err := Run(fn, names, iterations); err != nil {
			return err
		}
	}
	return nil
}
