package regalloc

import (
	"sort"

	"github.com/orizon-lang/ancl/internal/mir"
)

// RegSet is a set of virtual register ids.
type RegSet map[int]struct{}

func (s RegSet) Has(v int) bool {
	_, ok := s[v]
	return ok
}

func (s RegSet) add(v int) bool {
	if s.Has(v) {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Sorted returns the members in ascending order.
func (s RegSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Liveness holds the per-block dataflow sets of one function.
type Liveness struct {
	// UEVar holds the virtual registers read in a block before any local
	// definition. Phi inputs are not counted.
	UEVar map[*mir.BasicBlock]RegSet
	// VarKill holds the virtual registers defined in a block.
	VarKill map[*mir.BasicBlock]RegSet
	LiveOUT map[*mir.BasicBlock]RegSet
}

// LiveIn returns the virtual registers live on entry to b.
func (l *Liveness) LiveIn(b *mir.BasicBlock) RegSet {
	in := make(RegSet)
	for v := range l.UEVar[b] {
		in.add(v)
	}
	kill := l.VarKill[b]
	for v := range l.LiveOUT[b] {
		if !kill.Has(v) {
			in.add(v)
		}
	}
	return in
}

// ComputeLiveness computes UEVar, VarKill and LiveOUT for fn. LiveOUT is
// iterated to a fixed point by depth-first walks from the entry. A phi input
// is live out of the one predecessor that supplies it.
func ComputeLiveness(fn *mir.Function) *Liveness {
	l := &Liveness{
		UEVar:   make(map[*mir.BasicBlock]RegSet, len(fn.Blocks)),
		VarKill: make(map[*mir.BasicBlock]RegSet, len(fn.Blocks)),
		LiveOUT: make(map[*mir.BasicBlock]RegSet, len(fn.Blocks)),
	}
	for _, b := range fn.Blocks {
		ue, kill := make(RegSet), make(RegSet)
		for _, i := range b.Instrs {
			if i.Op != mir.OpPhi {
				for _, u := range i.Uses() {
					if u.IsVReg() && !kill.Has(u.Reg) {
						ue.add(u.Reg)
					}
				}
			}
			if d := i.Def(); d.IsVReg() {
				kill.add(d.Reg)
			}
		}
		l.UEVar[b], l.VarKill[b], l.LiveOUT[b] = ue, kill, make(RegSet)
	}

	entry := fn.Entry()
	if entry == nil {
		return l
	}
	for {
		changed := false
		seen := make(map[*mir.BasicBlock]bool, len(fn.Blocks))
		var visit func(b *mir.BasicBlock)
		visit = func(b *mir.BasicBlock) {
			seen[b] = true
			for _, s := range b.Succs {
				if !seen[s] {
					visit(s)
				}
			}
			if l.update(b) {
				changed = true
			}
		}
		visit(entry)
		if !changed {
			return l
		}
	}
}

// update folds the successors of b into LiveOUT(b) and reports growth.
func (l *Liveness) update(b *mir.BasicBlock) bool {
	out := l.LiveOUT[b]
	grew := false
	for _, s := range b.Succs {
		if k := s.PredIndex(b); k >= 0 {
			for _, phi := range s.Phis() {
				if k < phi.NumUses() {
					if in := phi.Use(k); in.IsVReg() && out.add(in.Reg) {
						grew = true
					}
				}
			}
		}
		for v := range l.UEVar[s] {
			if out.add(v) {
				grew = true
			}
		}
		kill := l.VarKill[s]
		for v := range l.LiveOUT[s] {
			if !kill.Has(v) && out.add(v) {
				grew = true
			}
		}
	}
	return grew
}
