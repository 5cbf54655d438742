package opt

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/domtree"
	"github.com/orizon-lang/ancl/internal/ir"
)

type dce struct {
	fn    *ir.Function
	rtree *domtree.Tree

	marked     map[*ir.Instruction]bool
	liveBlocks map[*ir.BasicBlock]bool
	work       []*ir.Instruction
}

// DCE removes instructions without an observable effect on the result of
// fn. Stores, volatile loads, calls, memory copies and returns are live;
// liveness flows to operand definitions and, through control dependence
// computed on the post-dominator tree, to the branches that decide whether a
// live instruction executes. Dead conditional branches become jumps to their
// nearest live post-dominator. It reports whether fn changed.
func DCE(fn *ir.Function) bool {
	if fn.IsDeclaration() {
		return false
	}
	d := &dce{
		fn:         fn,
		rtree:      domtree.NewReverse(fn),
		marked:     make(map[*ir.Instruction]bool),
		liveBlocks: make(map[*ir.BasicBlock]bool),
	}
	d.markPhase()
	removed := d.sweep()
	pruned := removeUnreachable(fn)
	tlog.V("dce").Printw("dead code", "func", fn.Name(), "removed", removed, "pruned_blocks", pruned)
	return removed > 0 || pruned
}

func isCritical(i *ir.Instruction) bool {
	switch i.Op {
	case ir.OpStore, ir.OpCall, ir.OpMemCopy, ir.OpMemSet, ir.OpReturn:
		return true
	case ir.OpLoad:
		return i.Volatile
	}
	return false
}

// decides reports whether i is a terminator choosing between successors.
func decides(i *ir.Instruction) bool {
	return i != nil && (i.IsConditional() || i.Op == ir.OpSwitch)
}

func (d *dce) mark(i *ir.Instruction) {
	if i == nil || d.marked[i] {
		return
	}
	d.marked[i] = true
	d.liveBlocks[i.Parent] = true
	d.work = append(d.work, i)
}

// markControl marks the branches b is control dependent on.
func (d *dce) markControl(b *ir.BasicBlock) {
	for _, f := range d.rtree.Frontier(b) {
		if t := f.Terminator(); decides(t) {
			d.mark(t)
		}
	}
}

func (d *dce) markPhase() {
	for _, b := range d.fn.Blocks {
		for _, i := range b.Instrs {
			if isCritical(i) {
				d.mark(i)
			}
		}
		// Blocks that never reach an exit have no post-dominators.
		if !d.rtree.Reachable(b) && decides(b.Terminator()) {
			d.mark(b.Terminator())
		}
	}

	for {
		for len(d.work) > 0 {
			i := d.work[len(d.work)-1]
			d.work = d.work[:len(d.work)-1]

			for _, op := range i.Operands() {
				if def, ok := op.(*ir.Instruction); ok && def.Parent != nil {
					d.mark(def)
				}
			}
			if i.Op == ir.OpPhi {
				for _, p := range i.Parent.Preds {
					if t := p.Terminator(); decides(t) {
						d.mark(t)
					} else {
						d.liveBlocks[p] = true
						d.markControl(p)
					}
				}
			}
			d.markControl(i.Parent)
		}

		// A dead branch is redirected to its nearest live post-dominator,
		// which is impossible when that block merges values in phis.
		for _, b := range d.fn.Blocks {
			t := b.Terminator()
			if !decides(t) || d.marked[t] {
				continue
			}
			if target := d.jumpTarget(b); target == nil || target.HasPhis() {
				d.mark(t)
			}
		}
		if len(d.work) == 0 {
			return
		}
	}
}

func (d *dce) jumpTarget(b *ir.BasicBlock) *ir.BasicBlock {
	for p := d.rtree.IDom(b); p != nil; p = d.rtree.IDom(p) {
		if d.liveBlocks[p] {
			return p
		}
	}
	return nil
}

func (d *dce) sweep() int {
	removed := 0
	for _, b := range d.fn.Blocks {
		for _, i := range append([]*ir.Instruction(nil), b.Instrs...) {
			if d.marked[i] {
				continue
			}
			if !i.IsTerminator() {
				i.EraseFromParent()
				removed++
				continue
			}
			if !decides(i) {
				continue
			}
			target := d.jumpTarget(b)
			for _, s := range i.Successors() {
				s.RemovePred(b)
			}
			i.MakeJump(target)
			target.AddPred(b)
			removed++
		}
	}
	return removed
}
