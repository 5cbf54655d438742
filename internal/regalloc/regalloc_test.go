package regalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

var (
	i32 = mir.Integer(4)
	i64 = mir.Integer(8)
)

func codes(b *mir.BasicBlock) []int {
	var out []int
	for _, i := range b.Instrs {
		out = append(out, i.Code)
	}
	return out
}

func vreg(fn *mir.Function, t mir.Type) mir.Operand { return mir.VReg(t, fn.NextVReg()) }

func ret(b *mir.BasicBlock, t mir.Type, v mir.Operand) {
	b.Append(mir.NewInstruction(mir.OpMov, mir.PReg(t, amd64.New().Registers().Sized(amd64.RAX, t.Bytes), 0), v))
	r := mir.NewInstruction(mir.OpRet)
	r.ImplicitUses = []int{amd64.RAX}
	b.Append(r)
}

func selected(t *testing.T, fn *mir.Function, m *amd64.Machine) {
	t.Helper()
	require.NoError(t, isel.Select(fn, m))
	isel.AssignClasses(fn, m.Registers())
}

func noVirtual(t *testing.T, fn *mir.Function) {
	t.Helper()
	fn.Instructions(func(i *mir.Instruction) {
		for _, o := range i.Ops {
			assert.False(t, o.IsVReg(), "virtual register left in %s", i)
		}
	})
}

// addFunction returns f(x, y) = x + y over 32-bit integers.
func addFunction() (*mir.Function, mir.Operand, mir.Operand, mir.Operand) {
	fn := mir.NewFunction("add")
	b := fn.NewBlock("entry")
	x, y, sum := vreg(fn, i32), vreg(fn, i32), vreg(fn, i32)
	b.Append(
		mir.NewInstruction(mir.OpMov, x, mir.PReg(i32, amd64.EDI, 0)),
		mir.NewInstruction(mir.OpMov, y, mir.PReg(i32, amd64.ESI, 0)),
		mir.NewInstruction(mir.OpAdd, sum, x, y),
	)
	ret(b, i32, sum)
	return fn, x, y, sum
}

func TestDestructiveRewriteInsertsCopy(t *testing.T) {
	m := amd64.New()
	fn, x, y, sum := addFunction()
	selected(t, fn, m)
	require.NoError(t, RewriteDestructive(fn, m))

	b := fn.Entry()
	assert.Equal(t, []int{amd64.MOV_RR, amd64.MOV_RR, amd64.MOV_RR, amd64.ADD_RR, amd64.MOV_RR, amd64.RET}, codes(b))
	mov, add := b.Instrs[2], b.Instrs[3]
	assert.Equal(t, sum.Reg, mov.Def().Reg)
	assert.Equal(t, x.Reg, mov.Use(0).Reg)
	assert.Equal(t, sum.Reg, add.Def().Reg)
	assert.Equal(t, sum.Reg, add.Use(0).Reg)
	assert.Equal(t, y.Reg, add.Use(1).Reg)
}

func TestDestructiveRewriteKeepsMatchingOperands(t *testing.T) {
	m := amd64.New()
	fn, _, _, _ := addFunction()
	selected(t, fn, m)
	require.NoError(t, RewriteDestructive(fn, m))
	before := len(fn.Entry().Instrs)

	require.NoError(t, RewriteDestructive(fn, m))
	assert.Len(t, fn.Entry().Instrs, before)
}

func TestDestructiveOverlapIsStructural(t *testing.T) {
	m := amd64.New()
	fn, _, _, sum := addFunction()
	selected(t, fn, m)
	add := fn.Entry().Instrs[2]
	require.Equal(t, amd64.ADD_RR, add.Code)
	add.SetUse(1, sum)

	err := RewriteDestructive(fn, m)
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
}

// diamond builds entry -> {a, b} -> merge. merge holds a phi of v1 (from a)
// and v2 (from b) and also reads v1 directly.
func diamond() (fn *mir.Function, blocks [4]*mir.BasicBlock, v1, v2, phi mir.Operand) {
	fn = mir.NewFunction("diamond")
	entry, a, b, merge := fn.NewBlock("entry"), fn.NewBlock("a"), fn.NewBlock("b"), fn.NewBlock("merge")
	v1, v2 = vreg(fn, i32), vreg(fn, i32)
	cond := vreg(fn, mir.Integer(1))
	entry.Append(
		mir.NewInstruction(mir.OpMov, v1, mir.PReg(i32, amd64.EDI, 0)),
		mir.NewInstruction(mir.OpMov, v2, mir.PReg(i32, amd64.ESI, 0)),
		mir.NewCompare(mir.OpCmp, mir.CmpLess, cond, v1, v2),
		mir.NewInstruction(mir.OpBranch, cond, mir.BlockRef(a), mir.BlockRef(b)),
	)
	entry.AddEdge(a)
	entry.AddEdge(b)
	a.Append(mir.NewInstruction(mir.OpJump, mir.BlockRef(merge)))
	b.Append(mir.NewInstruction(mir.OpJump, mir.BlockRef(merge)))
	a.AddEdge(merge)
	b.AddEdge(merge)

	phi = vreg(fn, i32)
	sum := vreg(fn, i32)
	merge.Append(
		mir.NewInstruction(mir.OpPhi, phi, v1, v2),
		mir.NewInstruction(mir.OpAdd, sum, phi, v1),
	)
	ret(merge, i32, sum)
	return fn, [4]*mir.BasicBlock{entry, a, b, merge}, v1, v2, phi
}

func TestLiveOUTCreditsPhiInputsByPredecessor(t *testing.T) {
	fn, blocks, v1, v2, phi := diamond()
	entry, a, b, merge := blocks[0], blocks[1], blocks[2], blocks[3]
	live := ComputeLiveness(fn)

	assert.True(t, live.LiveOUT[a].Has(v1.Reg), "non-phi use in merge keeps v1 live out of a")
	assert.True(t, live.LiveOUT[b].Has(v1.Reg), "non-phi use in merge keeps v1 live out of b")
	assert.False(t, live.LiveOUT[a].Has(v2.Reg), "v2 reaches merge only through b")
	assert.True(t, live.LiveOUT[b].Has(v2.Reg))
	assert.True(t, live.LiveOUT[entry].Has(v1.Reg))
	assert.True(t, live.LiveOUT[entry].Has(v2.Reg))
	assert.Empty(t, live.LiveOUT[merge])

	assert.False(t, live.UEVar[merge].Has(v2.Reg), "phi uses are not upward exposed")
	assert.True(t, live.UEVar[merge].Has(v1.Reg))
	assert.True(t, live.VarKill[merge].Has(phi.Reg))
	assert.Equal(t, []int{v1.Reg}, live.LiveIn(merge).Sorted())
}

func TestLiveOUTReachesFixedPointOnLoops(t *testing.T) {
	fn := mir.NewFunction("loop")
	entry, head, body, exit := fn.NewBlock("entry"), fn.NewBlock("head"), fn.NewBlock("body"), fn.NewBlock("exit")
	n := vreg(fn, i64)
	entry.Append(
		mir.NewInstruction(mir.OpMov, n, mir.PReg(i64, amd64.RDI, 0)),
		mir.NewInstruction(mir.OpJump, mir.BlockRef(head)),
	)
	entry.AddEdge(head)
	cond := vreg(fn, mir.Integer(1))
	head.Append(
		mir.NewCompare(mir.OpCmp, mir.CmpEqual, cond, n, mir.Imm(i64, 0)),
		mir.NewInstruction(mir.OpBranch, cond, mir.BlockRef(exit), mir.BlockRef(body)),
	)
	head.AddEdge(exit)
	head.AddEdge(body)
	body.Append(mir.NewInstruction(mir.OpJump, mir.BlockRef(head)))
	body.AddEdge(head)
	ret(exit, i64, n)

	live := ComputeLiveness(fn)
	for _, b := range []*mir.BasicBlock{entry, head, body} {
		assert.True(t, live.LiveOUT[b].Has(n.Reg), "n live out of %s", b.Name)
	}
	assert.Empty(t, live.LiveOUT[exit])
}

func TestEliminatePhisCopiesThroughTemporary(t *testing.T) {
	m := amd64.New()
	fn, blocks, v1, v2, phi := diamond()
	a, b, merge := blocks[1], blocks[2], blocks[3]
	require.NoError(t, EliminatePhis(fn, m))

	assert.Empty(t, merge.Phis())
	require.Len(t, a.Instrs, 2)
	require.Len(t, b.Instrs, 2)
	ca, cb := a.Instrs[0], b.Instrs[0]
	assert.Equal(t, amd64.MOV_RR, ca.Code)
	assert.Equal(t, v1.Reg, ca.Use(0).Reg)
	assert.Equal(t, v2.Reg, cb.Use(0).Reg)
	assert.Equal(t, ca.Def().Reg, cb.Def().Reg, "both predecessors write the same temporary")
	assert.NotEqual(t, phi.Reg, ca.Def().Reg)

	out := merge.Instrs[0]
	assert.Equal(t, mir.OpMov, out.Op)
	assert.Equal(t, phi.Reg, out.Def().Reg)
	assert.Equal(t, ca.Def().Reg, out.Use(0).Reg)
}

func TestEliminatePhisSkipsUndefinedInputs(t *testing.T) {
	m := amd64.New()
	fn, blocks, _, _, _ := diamond()
	a, b, merge := blocks[1], blocks[2], blocks[3]
	merge.Instrs[0].SetUse(1, mir.NoReg())
	require.NoError(t, EliminatePhis(fn, m))

	assert.Len(t, a.Instrs, 2)
	assert.Len(t, b.Instrs, 1)
}

func TestEliminatePhisCopiesBeforeBranch(t *testing.T) {
	m := amd64.New()
	fn, blocks, _, _, _ := diamond()
	entry, a, merge := blocks[0], blocks[1], blocks[3]
	// Send entry straight to merge so the copy lands in a block ending in a
	// conditional branch.
	entry.Succs[1], merge.Preds[1] = merge, entry
	entry.Instrs[3].SetUse(2, mir.BlockRef(merge))
	require.NoError(t, EliminatePhis(fn, m))

	term := entry.TerminatorIndex()
	copyIn := entry.Instrs[term-1]
	assert.Equal(t, mir.OpMov, copyIn.Op)
	assert.Len(t, a.Instrs, 2)
}

func TestRegisterSelectorAliasing(t *testing.T) {
	s := NewRegisterSelector(amd64.New().Registers(), amd64.R10)

	s.Activate(amd64.AL)
	assert.False(t, s.IsFree(amd64.RAX))
	assert.False(t, s.IsFree(amd64.EAX))
	assert.True(t, s.IsFree(amd64.AH), "paired registers do not overlap")

	s.Activate(amd64.RAX)
	assert.False(t, s.IsFree(amd64.AH))
	s.Deactivate(amd64.RAX)
	assert.True(t, s.IsFree(amd64.AH))
	assert.False(t, s.IsFree(amd64.RAX), "AL still holds part of RAX")
	s.Deactivate(amd64.AL)
	assert.True(t, s.IsFree(amd64.RAX))

	reg, ok := s.SelectByClass(amd64.GR64, nil)
	require.True(t, ok)
	assert.Equal(t, amd64.RAX, reg)
	assert.NotContains(t, s.Free(amd64.GR64), amd64.R10)
	assert.NotContains(t, s.Free(amd64.GR32), amd64.R10D)
}

func TestAllocateCoalescesCopies(t *testing.T) {
	m := amd64.New()
	fn, _, _, _ := addFunction()
	selected(t, fn, m)
	ra, err := Allocate(fn, m, LinearScanStrategy)
	require.NoError(t, err)
	noVirtual(t, fn)

	b := fn.Entry()
	assert.Equal(t, []int{amd64.MOV_RR, amd64.MOV_RR, amd64.ADD_RR, amd64.RET}, codes(b))
	add := b.Instrs[2]
	assert.Equal(t, amd64.EAX, add.Def().Reg)
	assert.Equal(t, add.Def().Reg, add.Use(0).Reg)
	assert.Empty(t, fn.SavedRegs)
	assert.Zero(t, ra.Spilled())
}

func TestValueLiveAcrossCallTakesCalleeSaved(t *testing.T) {
	m := amd64.New()
	fn := mir.NewFunction("keep")
	b := fn.NewBlock("entry")
	v := vreg(fn, i64)
	call := mir.NewInstruction(mir.OpCall, mir.Func("g"))
	call.ImplicitDefs = m.ABI().CallerSaved()
	b.Append(mir.NewInstruction(mir.OpMov, v, mir.PReg(i64, amd64.RDI, 0)), call)
	ret(b, i64, v)
	fn.IsCaller = true

	selected(t, fn, m)
	ra, err := Allocate(fn, m, LinearScanStrategy)
	require.NoError(t, err)

	iv, ok := ra.Interval(v.Reg)
	require.True(t, ok)
	assert.Equal(t, amd64.RBX, iv.Unit)
	assert.Equal(t, []int{amd64.RBX}, fn.SavedRegs)
	assert.Equal(t, 1, fn.Locals.CalleeSaved)
}

func TestSpillUsesScratchRegisters(t *testing.T) {
	m := amd64.New()
	fn := mir.NewFunction("pressure")
	b := fn.NewBlock("entry")
	var vals []mir.Operand
	for k := 0; k < 14; k++ {
		v := vreg(fn, i64)
		b.Append(mir.NewInstruction(mir.OpMov, v, mir.Imm(i64, int64(k+1))))
		vals = append(vals, v)
	}
	acc := vals[0]
	for _, v := range vals[1:] {
		next := vreg(fn, i64)
		b.Append(mir.NewInstruction(mir.OpAdd, next, acc, v))
		acc = next
	}
	ret(b, i64, acc)

	selected(t, fn, m)
	ra, err := Allocate(fn, m, LinearScanStrategy)
	require.NoError(t, err)
	noVirtual(t, fn)
	assert.NotZero(t, ra.Spilled())

	scratch := map[int]bool{amd64.R10: true, amd64.R11: true}
	reloads := 0
	for _, i := range b.Instrs {
		if i.Code == amd64.MOV_RM && i.Use(0).Kind == mir.OperandStackIndex {
			assert.True(t, scratch[i.Def().Reg], "reload into %d", i.Def().Reg)
			reloads++
		}
	}
	assert.NotZero(t, reloads)
	for _, s := range fn.Locals.Slots {
		assert.Equal(t, int64(8), s.Size)
	}
	assert.Contains(t, ra.String(), "stack.")
}

func TestUnknownAllocatorIsConfigError(t *testing.T) {
	fn, _, _, _ := addFunction()
	_, err := Allocate(fn, amd64.New(), "graph-coloring")
	require.Error(t, err)
	cat, ok := errors.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfig, cat)
}

func TestRemoveCopiesKeepsZeroExtension(t *testing.T) {
	fn := mir.NewFunction("copies")
	b := fn.NewBlock("entry")
	rax := mir.PReg(i64, amd64.RAX, amd64.GR64)
	eax := mir.PReg(i32, amd64.EAX, amd64.GR32)
	b.Append(
		mir.NewInstruction(mir.OpMov, rax, rax),
		mir.NewInstruction(mir.OpSubregToReg, eax, eax),
		mir.NewInstruction(mir.OpMov, rax, mir.PReg(i64, amd64.RCX, amd64.GR64)),
	)
	assert.Equal(t, 1, RemoveCopies(fn))
	require.Len(t, b.Instrs, 2)
	assert.Equal(t, mir.OpSubregToReg, b.Instrs[0].Op)
}
