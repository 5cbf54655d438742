package ir

import (
	"fmt"

	"github.com/orizon-lang/ancl/internal/errors"
)

// Verify checks the structural invariants of fn: every block ends with its
// only terminator, phis lead their block with one argument per predecessor,
// and predecessor lists agree with the successor edges.
func Verify(fn *Function) error {
	if fn.IsDeclaration() {
		return nil
	}
	edges := make(map[[2]*BasicBlock]int)
	for _, b := range fn.Blocks {
		for _, s := range b.Successors() {
			edges[[2]*BasicBlock{b, s}]++
		}
	}
	for _, b := range fn.Blocks {
		fail := func(code, format string, args ...interface{}) error {
			return errors.Structural(code, fmt.Sprintf(format, args...), map[string]interface{}{
				"function": fn.name,
				"block":    b.name,
			})
		}
		if b.Terminator() == nil {
			return fail("MISSING_TERMINATOR", "block %s does not end with a terminator", b.name)
		}
		seenNonPhi := false
		for n, i := range b.Instrs {
			if i.Parent != b {
				return fail("BAD_PARENT", "instruction %s has a stale parent", i)
			}
			if i.IsTerminator() && n != len(b.Instrs)-1 {
				return fail("EARLY_TERMINATOR", "terminator %s is not last", i)
			}
			if i.Op == OpPhi {
				if seenNonPhi {
					return fail("PHI_NOT_FIRST", "phi %s follows a non-phi instruction", i.Ref())
				}
				if len(i.Incoming) != len(b.Preds) {
					return fail("PHI_ARITY", "phi %s has %d arguments for %d predecessors",
						i.Ref(), len(i.Incoming), len(b.Preds))
				}
				for _, arg := range i.Incoming {
					if b.PredIndex(arg.Block) < 0 {
						return fail("PHI_PRED", "phi %s names non-predecessor %s", i.Ref(), arg.Block.Name())
					}
				}
			} else {
				seenNonPhi = true
			}
		}
		counts := make(map[*BasicBlock]int)
		for _, p := range b.Preds {
			counts[p]++
		}
		for p, c := range counts {
			if edges[[2]*BasicBlock{p, b}] != c {
				return fail("BAD_PREDS", "predecessor %s does not branch to %s", p.Name(), b.name)
			}
		}
	}
	for e, c := range edges {
		n := 0
		for _, p := range e[1].Preds {
			if p == e[0] {
				n++
			}
		}
		if n != c {
			return errors.Structural("BAD_PREDS",
				fmt.Sprintf("edge %s -> %s missing from predecessor list", e[0].Name(), e[1].Name()),
				map[string]interface{}{"function": fn.name})
		}
	}
	return nil
}
