package regalloc

import (
	"fmt"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// Strategy names an allocation algorithm.
type Strategy string

const LinearScanStrategy Strategy = "linear-scan"

// Strategies lists the allocators that can be requested.
func Strategies() []Strategy { return []Strategy{LinearScanStrategy} }

// Allocate runs phi elimination, the destructive rewrite, liveness and the
// allocator over fn, then drops copies that became no-ops.
func Allocate(fn *mir.Function, m target.Machine, strategy Strategy) (*LinearScan, error) {
	if strategy != LinearScanStrategy && strategy != "" {
		return nil, errors.Config("UNKNOWN_ALLOCATOR", "unknown register allocator",
			map[string]interface{}{"allocator": string(strategy)})
	}
	if err := EliminatePhis(fn, m); err != nil {
		return nil, fmt.Errorf("phi elimination failed: %w", err)
	}
	if err := RewriteDestructive(fn, m); err != nil {
		return nil, fmt.Errorf("destructive rewrite failed: %w", err)
	}
	isel.AssignClasses(fn, m.Registers())

	ra := NewLinearScan(fn, m, ComputeLiveness(fn))
	if err := ra.AllocateRegisters(); err != nil {
		return nil, fmt.Errorf("linear scan allocation failed: %w", err)
	}
	removed := RemoveCopies(fn)
	tlog.V("regalloc").Printw("allocated", "func", fn.Name, "spilled", ra.Spilled(),
		"saved", len(fn.SavedRegs), "copies_removed", removed)
	return ra, nil
}

// AllocateProgram allocates every function of p.
func AllocateProgram(p *mir.Program, m target.Machine, strategy Strategy) ([]*LinearScan, error) {
	out := make([]*LinearScan, 0, len(p.Functions))
	for _, fn := range p.Functions {
		ra, err := Allocate(fn, m, strategy)
		if err != nil {
			return nil, err
		}
		out = append(out, ra)
	}
	return out, nil
}

// RemoveCopies deletes register copies whose source and destination are the
// same physical register. Zero-extending copies are kept since they clear the
// upper half.
func RemoveCopies(fn *mir.Function) int {
	removed := 0
	for _, b := range fn.Blocks {
		kept := b.Instrs[:0]
		for _, i := range b.Instrs {
			if isNopCopy(i) {
				removed++
				continue
			}
			kept = append(kept, i)
		}
		b.Instrs = kept
	}
	return removed
}

func isNopCopy(i *mir.Instruction) bool {
	switch i.Op {
	case mir.OpMov, mir.OpFMov, mir.OpRegToSubreg:
	default:
		return false
	}
	if !i.HasDef() || i.NumUses() != 1 {
		return false
	}
	d, u := i.Def(), i.Use(0)
	return d.IsPReg() && u.IsPReg() && d.Reg == u.Reg
}
