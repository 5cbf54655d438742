// Package opt holds the IR optimization passes: stack slot promotion to SSA,
// control flow cleanup, mark-sweep dead code elimination and dominator-based
// value numbering. Every pass mutates one function in place.
package opt

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/domtree"
	"github.com/orizon-lang/ancl/internal/ir"
)

// SSAStats summarizes one run of PromoteAllocas.
type SSAStats struct {
	Promoted int
	Phis     int
	// UndefinedReads counts loads executed before any store on some path.
	// They read a zero value.
	UndefinedReads int
}

type allocaInfo struct {
	alloca    *ir.Instruction
	loads     int
	stores    int
	defBlocks []*ir.BasicBlock
	blocks    map[*ir.BasicBlock]bool
	// exposed is set when some block loads before storing.
	exposed bool
}

type ssaBuilder struct {
	fn    *ir.Function
	tree  *domtree.Tree
	stats SSAStats

	infos    map[*ir.Instruction]*allocaInfo
	phiSlot  map[*ir.Instruction]*ir.Instruction
	stacks   map[*ir.Instruction][]ir.Value
	replaced map[ir.Value]ir.Value
}

// PromoteAllocas rewrites every promotable alloca of fn into SSA values. An
// alloca is promotable when it holds a scalar and is only the address of
// plain loads and stores. Other allocas are left untouched.
func PromoteAllocas(fn *ir.Function) SSAStats {
	if fn.IsDeclaration() {
		return SSAStats{}
	}
	s := &ssaBuilder{
		fn:       fn,
		infos:    make(map[*ir.Instruction]*allocaInfo),
		phiSlot:  make(map[*ir.Instruction]*ir.Instruction),
		stacks:   make(map[*ir.Instruction][]ir.Value),
		replaced: make(map[ir.Value]ir.Value),
	}
	s.collect()
	if len(s.infos) == 0 {
		return s.stats
	}

	var multi []*allocaInfo
	for _, info := range s.sortedInfos() {
		switch {
		case info.loads == 0 && info.stores == 0:
			info.alloca.EraseFromParent()
			delete(s.infos, info.alloca)
		case len(info.blocks) == 1:
			s.promoteSingleBlock(info)
		default:
			multi = append(multi, info)
		}
	}

	if len(multi) > 0 {
		s.tree = domtree.New(fn)
		for _, info := range multi {
			if info.exposed {
				s.insertPhis(info)
			}
		}
		s.rename(fn.Entry())
	}
	s.finish()

	s.stats.Promoted = len(s.infos)
	tlog.V("ssa").Printw("promoted allocas", "func", fn.Name(), "allocas", s.stats.Promoted,
		"phis", s.stats.Phis, "undefined_reads", s.stats.UndefinedReads)
	return s.stats
}

func promotableType(t *ir.Type) bool {
	return t.IsInt() || t.IsPointer() || (t.IsFloat() && t.Float != ir.LongDouble)
}

// collect finds promotable allocas and records where they are loaded and
// stored.
func (s *ssaBuilder) collect() {
	bad := make(map[*ir.Instruction]bool)
	for _, b := range s.fn.Blocks {
		for _, i := range b.Instrs {
			for n, op := range i.Operands() {
				a, ok := op.(*ir.Instruction)
				if !ok || a.Op != ir.OpAlloca {
					continue
				}
				switch {
				case i.Op == ir.OpLoad && !i.Volatile:
				case i.Op == ir.OpStore && !i.Volatile && n == 1 && i.Ops[0] != a:
				default:
					bad[a] = true
				}
			}
		}
	}

	for _, b := range s.fn.Blocks {
		stored := make(map[*ir.Instruction]bool)
		for _, i := range b.Instrs {
			switch i.Op {
			case ir.OpAlloca:
				if !bad[i] && promotableType(i.AllocType) {
					s.infos[i] = &allocaInfo{alloca: i, blocks: make(map[*ir.BasicBlock]bool)}
				}
			case ir.OpLoad:
				if info := s.info(i.Ops[0]); info != nil {
					info.loads++
					info.blocks[b] = true
					if !stored[info.alloca] {
						info.exposed = true
					}
				}
			case ir.OpStore:
				if info := s.info(i.Ops[1]); info != nil {
					info.stores++
					info.blocks[b] = true
					if !stored[info.alloca] {
						info.defBlocks = append(info.defBlocks, b)
					}
					stored[info.alloca] = true
				}
			}
		}
	}
}

func (s *ssaBuilder) info(v ir.Value) *allocaInfo {
	a, ok := v.(*ir.Instruction)
	if !ok {
		return nil
	}
	return s.infos[a]
}

// sortedInfos returns the allocas in program order.
func (s *ssaBuilder) sortedInfos() []*allocaInfo {
	var out []*allocaInfo
	for _, b := range s.fn.Blocks {
		for _, i := range b.Instrs {
			if info, ok := s.infos[i]; ok {
				out = append(out, info)
			}
		}
	}
	return out
}

func (s *ssaBuilder) undefined(a *ir.Instruction) ir.Value {
	s.stats.UndefinedReads++
	tlog.V("ssa").Printw("load of uninitialized local", "func", s.fn.Name(), "local", a.Name())
	return ir.ZeroValue(a.AllocType)
}

// promoteSingleBlock forwards each store to the following loads in the same
// block.
func (s *ssaBuilder) promoteSingleBlock(info *allocaInfo) {
	var blk *ir.BasicBlock
	for b := range info.blocks {
		blk = b
	}
	var current ir.Value
	for _, i := range append([]*ir.Instruction(nil), blk.Instrs...) {
		switch {
		case i.Op == ir.OpStore && i.Ops[1] == info.alloca:
			current = i.Ops[0]
			i.EraseFromParent()
		case i.Op == ir.OpLoad && i.Ops[0] == info.alloca:
			if current == nil {
				current = s.undefined(info.alloca)
			}
			s.replaced[i] = current
			i.EraseFromParent()
		}
	}
	info.alloca.EraseFromParent()
}

// insertPhis places a phi for the alloca in its iterated dominance frontier.
func (s *ssaBuilder) insertPhis(info *allocaInfo) {
	for _, b := range s.tree.IteratedFrontier(info.defBlocks) {
		phi := ir.NewPhi(b, info.alloca.AllocType, info.alloca.Name())
		s.phiSlot[phi] = info.alloca
		s.stats.Phis++
	}
}

func (s *ssaBuilder) top(a *ir.Instruction) ir.Value {
	stack := s.stacks[a]
	if len(stack) == 0 {
		v := s.undefined(a)
		s.stacks[a] = append(s.stacks[a], v)
		return v
	}
	return stack[len(stack)-1]
}

// rename walks the dominator tree keeping the current value of every
// promoted alloca on a stack.
func (s *ssaBuilder) rename(b *ir.BasicBlock) {
	pushed := make(map[*ir.Instruction]int)
	push := func(a *ir.Instruction, v ir.Value) {
		s.stacks[a] = append(s.stacks[a], v)
		pushed[a]++
	}

	for _, phi := range b.Phis() {
		if a, ok := s.phiSlot[phi]; ok {
			push(a, phi)
		}
	}

	for _, i := range append([]*ir.Instruction(nil), b.Instrs...) {
		switch i.Op {
		case ir.OpAlloca:
			if _, ok := s.infos[i]; ok {
				i.EraseFromParent()
			}
		case ir.OpStore:
			if info := s.info(i.Ops[1]); info != nil {
				push(info.alloca, i.Ops[0])
				i.EraseFromParent()
			}
		case ir.OpLoad:
			if info := s.info(i.Ops[0]); info != nil {
				s.replaced[i] = s.top(info.alloca)
				i.EraseFromParent()
			}
		}
	}

	for _, succ := range b.Successors() {
		for _, phi := range succ.Phis() {
			a, ok := s.phiSlot[phi]
			if !ok {
				continue
			}
			for n, p := range succ.Preds {
				if p == b {
					phi.Incoming[n].Value = s.top(a)
				}
			}
		}
	}

	for _, c := range s.tree.Children(b) {
		s.rename(c)
	}

	for a, n := range pushed {
		s.stacks[a] = s.stacks[a][:len(s.stacks[a])-n]
	}
}

func (s *ssaBuilder) resolve(v ir.Value) ir.Value {
	for {
		r, ok := s.replaced[v]
		if !ok {
			return v
		}
		v = r
	}
}

// finish drops accesses left in unreachable blocks, fills phi arguments of
// unreachable predecessors and substitutes every replaced load.
func (s *ssaBuilder) finish() {
	for _, b := range s.fn.Blocks {
		for _, i := range append([]*ir.Instruction(nil), b.Instrs...) {
			switch {
			case i.Op == ir.OpAlloca && s.infos[i] != nil:
				i.EraseFromParent()
			case i.Op == ir.OpStore && s.info(i.Ops[1]) != nil:
				i.EraseFromParent()
			case i.Op == ir.OpLoad && s.info(i.Ops[0]) != nil:
				s.replaced[i] = ir.ZeroValue(i.Type())
				i.EraseFromParent()
			}
		}
	}
	for _, b := range s.fn.Blocks {
		for _, i := range b.Instrs {
			for n, op := range i.Ops {
				i.Ops[n] = s.resolve(op)
			}
			for n := range i.Incoming {
				arg := &i.Incoming[n]
				if arg.Value == nil {
					if a, ok := s.phiSlot[i]; ok {
						arg.Value = ir.ZeroValue(a.AllocType)
					}
					continue
				}
				arg.Value = s.resolve(arg.Value)
			}
		}
	}
}
