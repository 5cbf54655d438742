package regalloc

import (
	"fmt"
	"sort"
	"strings"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// LiveInterval is the range of linear instruction positions over which a
// virtual register holds a value.
type LiveInterval struct {
	VReg  int
	Start int
	End   int
	Float bool
	Uses  int

	// Unit is the 64-bit register (or vector register) assigned to the
	// interval, 0 while unassigned.
	Unit    int
	Spilled bool
	// Slot is the LocalDataArea key of the spill slot.
	Slot int
}

// span is an inclusive range of positions during which a physical register
// holds a value placed there explicitly.
type span struct{ start, end int }

// LinearScan allocates the virtual registers of one function.
type LinearScan struct {
	fn   *mir.Function
	m    target.Machine
	regs target.RegisterSet
	live *Liveness

	lines      []*mir.Instruction
	blockStart map[*mir.BasicBlock]int
	blockEnd   map[*mir.BasicBlock]int

	intervals []*LiveInterval
	byVReg    map[int]*LiveInterval
	active    []*LiveInterval
	fixed     map[int][]span
	selector  *RegisterSelector
	skip      map[int]bool
	saved     map[int]bool
}

// NewLinearScan prepares allocation of fn. live must describe fn as it is
// now.
func NewLinearScan(fn *mir.Function, m target.Machine, live *Liveness) *LinearScan {
	regs := m.Registers()
	skip := map[int]bool{regs.SP(): true, regs.ARP(): true, regs.IP(): true}
	reserved := []int{regs.SP(), regs.ARP()}
	for _, float := range []bool{false, true} {
		for _, r := range m.Scratch(float) {
			skip[regs.Unit(r)] = true
			reserved = append(reserved, r)
		}
	}
	return &LinearScan{
		fn:         fn,
		m:          m,
		regs:       regs,
		live:       live,
		blockStart: make(map[*mir.BasicBlock]int),
		blockEnd:   make(map[*mir.BasicBlock]int),
		byVReg:     make(map[int]*LiveInterval),
		fixed:      make(map[int][]span),
		selector:   NewRegisterSelector(regs, reserved...),
		skip:       skip,
		saved:      make(map[int]bool),
	}
}

// AllocateRegisters assigns a register or a spill slot to every virtual
// register and rewrites the function to use them.
func (ra *LinearScan) AllocateRegisters() error {
	// Step 1: number instructions and build intervals
	ra.buildLiveIntervals()

	// Step 2: record where physical registers are pinned
	ra.buildFixedSpans()

	// Step 3: intervals in start order
	sort.Slice(ra.intervals, func(i, j int) bool {
		if ra.intervals[i].Start != ra.intervals[j].Start {
			return ra.intervals[i].Start < ra.intervals[j].Start
		}
		return ra.intervals[i].VReg < ra.intervals[j].VReg
	})

	// Step 4: scan
	for _, cur := range ra.intervals {
		ra.expireOldIntervals(cur)
		if !ra.tryAllocateRegister(cur) {
			ra.spillAtInterval(cur)
		}
	}

	// Step 5: rewrite operands and insert spill code
	if err := ra.rewrite(); err != nil {
		return fmt.Errorf("function %s: %w", ra.fn.Name, err)
	}
	ra.recordSaved()
	return nil
}

// buildLiveIntervals spans each virtual register from its first to its last
// occurrence, widened to whole blocks where it is live in or live out.
func (ra *LinearScan) buildLiveIntervals() {
	extend := func(v, pos int, float bool) {
		iv, ok := ra.byVReg[v]
		if !ok {
			iv = &LiveInterval{VReg: v, Start: pos, End: pos, Float: float}
			ra.byVReg[v] = iv
			ra.intervals = append(ra.intervals, iv)
			return
		}
		if pos < iv.Start {
			iv.Start = pos
		}
		if pos > iv.End {
			iv.End = pos
		}
	}

	pos := 0
	for _, b := range ra.fn.Blocks {
		ra.blockStart[b] = pos
		for _, i := range b.Instrs {
			ra.lines = append(ra.lines, i)
			for _, o := range i.Ops {
				if o.IsVReg() {
					extend(o.Reg, pos, o.Type.IsFloat())
				}
			}
			for _, u := range i.Uses() {
				if u.IsVReg() {
					ra.byVReg[u.Reg].Uses++
				}
			}
			pos++
		}
		ra.blockEnd[b] = pos - 1
		if len(b.Instrs) == 0 {
			ra.blockEnd[b] = pos
		}
	}

	for _, b := range ra.fn.Blocks {
		for v := range ra.live.LiveIn(b) {
			if iv, ok := ra.byVReg[v]; ok {
				extend(v, ra.blockStart[b], iv.Float)
			}
		}
		for v := range ra.live.LiveOUT[b] {
			if iv, ok := ra.byVReg[v]; ok {
				extend(v, ra.blockEnd[b], iv.Float)
			}
		}
	}
	tlog.V("regalloc").Printw("intervals", "func", ra.fn.Name, "count", len(ra.intervals), "lines", pos)
}

// buildFixedSpans records, per register unit, the ranges where a physical
// register operand carries a value: from a definition to its last read, and
// from the block start to a read with no definition in the block. Implicit
// definitions of a call clobber their units at the call itself.
func (ra *LinearScan) buildFixedSpans() {
	for _, b := range ra.fn.Blocks {
		open := make(map[int]int)
		pos := ra.blockStart[b]
		for _, i := range b.Instrs {
			read := func(reg int) {
				u := ra.regs.Unit(reg)
				if ra.skip[u] {
					return
				}
				start, ok := open[u]
				if !ok {
					start = ra.blockStart[b]
				}
				ra.fixed[u] = append(ra.fixed[u], span{start, pos})
			}
			write := func(reg int) {
				u := ra.regs.Unit(reg)
				if ra.skip[u] {
					return
				}
				ra.fixed[u] = append(ra.fixed[u], span{pos, pos})
				open[u] = pos
			}
			for _, o := range i.Uses() {
				if o.IsPReg() {
					read(o.Reg)
				}
			}
			for _, r := range i.ImplicitUses {
				read(r)
			}
			if d := i.Def(); d.IsPReg() {
				write(d.Reg)
			}
			for _, r := range i.ImplicitDefs {
				write(r)
			}
			pos++
		}
	}
}

// conflicts reports whether giving unit to iv would overlap a fixed span of
// unit. Touching a span only at a copy between iv and unit is allowed, so
// copies in and out of argument registers can coalesce.
func (ra *LinearScan) conflicts(iv *LiveInterval, unit int) bool {
	for _, s := range ra.fixed[unit] {
		if !(iv.Start <= s.end && s.start <= iv.End) {
			continue
		}
		lo, hi := max(iv.Start, s.start), min(iv.End, s.end)
		if lo == hi && ra.isCopyBetween(ra.lines[lo], iv.VReg, unit) {
			continue
		}
		return true
	}
	return false
}

func (ra *LinearScan) isCopyBetween(i *mir.Instruction, vreg, unit int) bool {
	if (i.Op != mir.OpMov && i.Op != mir.OpFMov) || !i.HasDef() || i.NumUses() != 1 {
		return false
	}
	d, u := i.Def(), i.Use(0)
	touches := func(a, b mir.Operand) bool {
		return a.IsVReg() && a.Reg == vreg && b.IsPReg() && ra.regs.Unit(b.Reg) == unit
	}
	return touches(d, u) || touches(u, d)
}

// startsWithDef reports whether iv begins at an instruction that writes it
// without reading it, so a register freed by that same instruction may be
// reused.
func (ra *LinearScan) startsWithDef(iv *LiveInterval) bool {
	if iv.Start >= len(ra.lines) {
		return false
	}
	i := ra.lines[iv.Start]
	if d := i.Def(); !d.IsVReg() || d.Reg != iv.VReg {
		return false
	}
	for _, u := range i.Uses() {
		if u.IsVReg() && u.Reg == iv.VReg {
			return false
		}
	}
	return true
}

// expireOldIntervals frees the registers of intervals that ended before cur.
func (ra *LinearScan) expireOldIntervals(cur *LiveInterval) {
	reuse := ra.startsWithDef(cur)
	kept := ra.active[:0]
	for _, a := range ra.active {
		if a.End < cur.Start || (reuse && a.End == cur.Start) {
			ra.selector.Deactivate(a.Unit)
			continue
		}
		kept = append(kept, a)
	}
	ra.active = kept
}

func (ra *LinearScan) classOf(iv *LiveInterval) mir.RegClass {
	return ra.regs.ClassOf(8, iv.Float)
}

// tryAllocateRegister takes the first free register without a fixed
// conflict. Caller-saved registers come first in the preference order.
func (ra *LinearScan) tryAllocateRegister(iv *LiveInterval) bool {
	unit, ok := ra.selector.SelectByClass(ra.classOf(iv), func(r int) bool {
		return !ra.skip[r] && !ra.conflicts(iv, r)
	})
	if !ok {
		return false
	}
	ra.assign(iv, unit)
	return true
}

func (ra *LinearScan) assign(iv *LiveInterval, unit int) {
	iv.Unit = unit
	ra.selector.Activate(unit)
	ra.active = append(ra.active, iv)
}

// spillAtInterval spills whichever of cur and the active intervals of the
// same register file ends last.
func (ra *LinearScan) spillAtInterval(cur *LiveInterval) {
	var victim *LiveInterval
	for _, a := range ra.active {
		if a.Float != cur.Float || a.End <= cur.End || ra.conflicts(cur, a.Unit) {
			continue
		}
		if victim == nil || a.End > victim.End {
			victim = a
		}
	}
	if victim == nil {
		ra.doSpill(cur)
		return
	}
	unit := victim.Unit
	for k, a := range ra.active {
		if a == victim {
			ra.active = append(ra.active[:k], ra.active[k+1:]...)
			break
		}
	}
	ra.selector.Deactivate(unit)
	ra.doSpill(victim)
	ra.assign(cur, unit)
}

// doSpill gives iv an 8-byte stack slot.
func (ra *LinearScan) doSpill(iv *LiveInterval) {
	iv.Unit = 0
	iv.Spilled = true
	iv.Slot = ra.fn.NextVReg()
	ra.fn.Locals.AddSlot(iv.Slot, 8, 8)
	tlog.V("regalloc").Printw("spill", "func", ra.fn.Name, "vreg", iv.VReg, "slot", iv.Slot)
}

// physical returns the register iv's unit provides at o's width.
func (ra *LinearScan) physical(o mir.Operand, unit int) mir.Operand {
	o.Virtual = false
	o.Reg = ra.regs.Sized(unit, o.Type.Bytes)
	if o.Class == mir.NoClass {
		o.Class = ra.regs.ClassOf(o.Type.Bytes, o.Type.IsFloat())
	}
	return o
}

// rewrite replaces virtual registers with their assignments. Spilled values
// are reloaded into scratch registers before the instruction and stored back
// after it.
func (ra *LinearScan) rewrite() error {
	for _, b := range ra.fn.Blocks {
		for k := 0; k < len(b.Instrs); k++ {
			i := b.Instrs[k]
			before, after, err := ra.rewriteInstruction(b, i)
			if err != nil {
				return err
			}
			b.InsertAt(k+1, after...)
			b.InsertAt(k, before...)
			k += len(before) + len(after)
		}
	}
	return nil
}

func (ra *LinearScan) rewriteInstruction(b *mir.BasicBlock, i *mir.Instruction) (before, after []*mir.Instruction, err error) {
	scratch := map[bool][]int{false: ra.m.Scratch(false), true: ra.m.Scratch(true)}
	taken := make(map[int]int)
	next := map[bool]int{}
	defined := i.Def()
	reloaded := make(map[int]bool)

	for n := range i.Ops {
		o := i.Ops[n]
		if !o.IsVReg() {
			continue
		}
		iv := ra.byVReg[o.Reg]
		if !iv.Spilled {
			i.Ops[n] = ra.physical(o, iv.Unit)
			continue
		}
		unit, ok := taken[o.Reg]
		if !ok {
			if next[iv.Float] >= len(scratch[iv.Float]) {
				return nil, nil, errors.Lowering("TOO_MANY_SPILLS",
					"instruction needs more spilled operands than scratch registers",
					map[string]interface{}{"block": b.Name, "op": i.Op.String()})
			}
			unit = scratch[iv.Float][next[iv.Float]]
			next[iv.Float]++
			taken[o.Reg] = unit
		}
		isDef := n == 0 && i.HasDef()
		if !isDef || ra.readsOperand(i, o.Reg) {
			if !reloaded[o.Reg] {
				reloaded[o.Reg] = true
				load, err := ra.spillLoad(b, iv, unit)
				if err != nil {
					return nil, nil, err
				}
				before = append(before, load...)
			}
		}
		i.Ops[n] = ra.physical(o, unit)
	}
	if defined.IsVReg() {
		if iv := ra.byVReg[defined.Reg]; iv.Spilled {
			store, err := ra.spillStore(b, iv, taken[defined.Reg])
			if err != nil {
				return nil, nil, err
			}
			after = append(after, store...)
		}
	}
	return before, after, nil
}

func (ra *LinearScan) readsOperand(i *mir.Instruction, vreg int) bool {
	for _, u := range i.Uses() {
		if u.IsVReg() && u.Reg == vreg {
			return true
		}
	}
	return false
}

func (ra *LinearScan) slotMemory(iv *LiveInterval) []mir.Operand {
	i64 := mir.Integer(8)
	return []mir.Operand{mir.StackIndex(iv.Slot), mir.Imm(i64, 1), mir.NoReg(), mir.Imm(i64, 0)}
}

func (ra *LinearScan) spillType(iv *LiveInterval) mir.Type {
	if iv.Float {
		return mir.Float(8)
	}
	return mir.Integer(8)
}

func (ra *LinearScan) spillLoad(b *mir.BasicBlock, iv *LiveInterval, unit int) ([]*mir.Instruction, error) {
	t := ra.spillType(iv)
	dst := classed(mir.PReg(t, unit, mir.NoClass), ra.regs)
	load := mir.NewInstruction(mir.OpLoad, append([]mir.Operand{dst}, ra.slotMemory(iv)...)...)
	return isel.SelectInstruction(ra.m, b, load)
}

func (ra *LinearScan) spillStore(b *mir.BasicBlock, iv *LiveInterval, unit int) ([]*mir.Instruction, error) {
	t := ra.spillType(iv)
	src := classed(mir.PReg(t, unit, mir.NoClass), ra.regs)
	store := mir.NewInstruction(mir.OpStore, append(ra.slotMemory(iv), src)...)
	return isel.SelectInstruction(ra.m, b, store)
}

// recordSaved lists the callee-saved registers the function now writes.
func (ra *LinearScan) recordSaved() {
	callee := make(map[int]bool)
	for _, r := range ra.m.ABI().CalleeSaved() {
		callee[r] = true
	}
	for _, iv := range ra.intervals {
		if !iv.Spilled && callee[iv.Unit] {
			ra.saved[iv.Unit] = true
		}
	}
	ra.fn.SavedRegs = ra.fn.SavedRegs[:0]
	for _, r := range ra.m.ABI().CalleeSaved() {
		if ra.saved[r] {
			ra.fn.SavedRegs = append(ra.fn.SavedRegs, r)
		}
	}
	ra.fn.Locals.CalleeSaved = len(ra.fn.SavedRegs)
}

// Interval returns the interval of a virtual register.
func (ra *LinearScan) Interval(vreg int) (*LiveInterval, bool) {
	iv, ok := ra.byVReg[vreg]
	return iv, ok
}

// Spilled returns the number of spilled intervals.
func (ra *LinearScan) Spilled() int {
	n := 0
	for _, iv := range ra.intervals {
		if iv.Spilled {
			n++
		}
	}
	return n
}

// String renders the assignment of every interval, ordered by register id.
func (ra *LinearScan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "allocation %s:\n", ra.fn.Name)
	ivs := append([]*LiveInterval(nil), ra.intervals...)
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].VReg < ivs[j].VReg })
	for _, iv := range ivs {
		if iv.Spilled {
			fmt.Fprintf(&b, "  %%v%d [%d,%d] -> stack.%d\n", iv.VReg, iv.Start, iv.End, iv.Slot)
			continue
		}
		name := fmt.Sprintf("r%d", iv.Unit)
		if r := ra.regs.Register(iv.Unit); r != nil {
			name = r.Name
		}
		fmt.Fprintf(&b, "  %%v%d [%d,%d] -> %s\n", iv.VReg, iv.Start, iv.End, name)
	}
	fmt.Fprintf(&b, "spilled: %d\n", ra.Spilled())
	return b.String()
}
