package isel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

var i32 = mir.Integer(4)

func codes(b *mir.BasicBlock) []int {
	var out []int
	for _, i := range b.Instrs {
		out = append(out, i.Code)
	}
	return out
}

// paramFunction starts a function whose v1 holds the first integer argument.
func paramFunction() (*mir.Function, *mir.BasicBlock, mir.Operand) {
	fn := mir.NewFunction("f")
	b := fn.NewBlock("entry")
	x := mir.VReg(i32, fn.NextVReg())
	b.Append(mir.NewInstruction(mir.OpMov, x, mir.PReg(i32, amd64.EDI, amd64.GR32)))
	return fn, b, x
}

func ret(b *mir.BasicBlock, v mir.Operand) {
	b.Append(mir.NewInstruction(mir.OpMov, mir.PReg(i32, amd64.EAX, amd64.GR32), v))
	r := mir.NewInstruction(mir.OpRet)
	r.ImplicitUses = []int{amd64.RAX}
	b.Append(r)
}

func TestLoadFoldsIntoALU(t *testing.T) {
	fn, b, x := paramFunction()
	addr := mir.VReg(mir.Pointer(), fn.NextVReg())
	val := mir.VReg(i32, fn.NextVReg())
	sum := mir.VReg(i32, fn.NextVReg())
	b.Append(
		mir.NewInstruction(mir.OpStackAddress, addr, mir.StackIndex(1)),
		mir.NewInstruction(mir.OpLoad, val, addr),
		mir.NewInstruction(mir.OpAdd, sum, x, val),
	)
	ret(b, sum)

	require.NoError(t, Select(fn, amd64.New()))
	assert.Equal(t, []int{amd64.MOV_RR, amd64.ADD_RM, amd64.MOV_RR, amd64.RET}, codes(b))

	add := b.Instrs[1]
	assert.Equal(t, mir.OperandStackIndex, add.Use(1).Kind)
	assert.Equal(t, int64(1), add.Use(2).Imm)
	assert.True(t, add.Use(3).IsInvalidReg())
}

func TestStoreBlocksLoadFolding(t *testing.T) {
	fn, b, x := paramFunction()
	addr := mir.VReg(mir.Pointer(), fn.NextVReg())
	val := mir.VReg(i32, fn.NextVReg())
	sum := mir.VReg(i32, fn.NextVReg())
	b.Append(
		mir.NewInstruction(mir.OpStackAddress, addr, mir.StackIndex(1)),
		mir.NewInstruction(mir.OpLoad, val, addr),
		mir.NewInstruction(mir.OpStore, mir.StackIndex(2), mir.Imm(mir.Integer(8), 1), mir.NoReg(),
			mir.Imm(mir.Integer(8), 0), mir.Imm(i32, 7)),
		mir.NewInstruction(mir.OpAdd, sum, x, val),
	)
	ret(b, sum)

	require.NoError(t, Select(fn, amd64.New()))
	assert.Equal(t, []int{amd64.MOV_RR, amd64.MOV_RM, amd64.MOV_MI, amd64.ADD_RR, amd64.MOV_RR, amd64.RET}, codes(b))
}

func TestBranchFusesCompare(t *testing.T) {
	fn, b, x := paramFunction()
	yes, no := fn.NewBlock("yes"), fn.NewBlock("no")
	cond := mir.VReg(mir.Integer(1), fn.NextVReg())
	b.Append(
		mir.NewCompare(mir.OpCmp, mir.CmpLess, cond, mir.Imm(i32, 3), x),
		mir.NewInstruction(mir.OpBranch, cond, mir.BlockRef(yes), mir.BlockRef(no)),
	)
	b.AddEdge(yes)
	b.AddEdge(no)
	ret(yes, x)
	ret(no, mir.Imm(i32, 0))

	require.NoError(t, Select(fn, amd64.New()))
	// 3 < x is rewritten as x > 3.
	assert.Equal(t, []int{amd64.MOV_RR, amd64.CMP_RI, amd64.JG, amd64.JMP}, codes(b))
	assert.Equal(t, yes, b.Instrs[2].Use(0).Block)
	assert.Equal(t, no, b.Instrs[3].Use(0).Block)
	assert.Equal(t, []int{amd64.MOV_RI, amd64.RET}, codes(no))
}

func TestCompareWithTwoUsersIsNotMerged(t *testing.T) {
	fn, b, x := paramFunction()
	cond := mir.VReg(mir.Integer(1), fn.NextVReg())
	wide := mir.VReg(i32, fn.NextVReg())
	other := mir.VReg(i32, fn.NextVReg())
	b.Append(
		mir.NewCompare(mir.OpCmp, mir.CmpEqual, cond, x, mir.Imm(i32, 0)),
		mir.NewInstruction(mir.OpZExt, wide, cond),
		mir.NewInstruction(mir.OpZExt, other, cond),
	)
	ret(b, wide)

	g := BuildGraph(fn)
	require.Len(t, g.Blocks, 1)
	// mov, cmp, two extensions, mov, ret
	assert.Len(t, g.Blocks[0].Trees, 6)
}

func TestCallEndsContext(t *testing.T) {
	fn, b, x := paramFunction()
	addr := mir.VReg(mir.Pointer(), fn.NextVReg())
	b.Append(mir.NewInstruction(mir.OpStackAddress, addr, mir.StackIndex(1)))
	b.Append(mir.NewInstruction(mir.OpCall, mir.Func("g")))
	val := mir.VReg(i32, fn.NextVReg())
	b.Append(mir.NewInstruction(mir.OpLoad, val, addr))
	ret(b, x)

	g := BuildGraph(fn)
	for _, tr := range g.Blocks[0].Trees {
		if tr.Root.Instr.Op == mir.OpLoad {
			assert.Nil(t, tr.Root.Child(0))
		}
	}
}

func TestSelectInstruction(t *testing.T) {
	fn, b, _ := paramFunction()
	reg := mir.VReg(mir.Integer(8), fn.NextVReg())
	spill := mir.NewInstruction(mir.OpStore, mir.StackIndex(3), mir.Imm(mir.Integer(8), 1), mir.NoReg(),
		mir.Imm(mir.Integer(8), 0), reg)
	out, err := SelectInstruction(amd64.New(), b, spill)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, amd64.MOV_MR, out[0].Code)
	assert.Equal(t, b, out[0].Block)
}

func TestAssignClasses(t *testing.T) {
	fn, b, x := paramFunction()
	other := mir.VReg(mir.Float(8), fn.NextVReg())
	b.Append(mir.NewInstruction(mir.OpFMov, other, mir.PReg(mir.Float(8), amd64.XMM0, 0)))
	ret(b, x)

	m := amd64.New()
	AssignClasses(fn, m.Registers())
	assert.Equal(t, amd64.GR32, b.Instrs[0].Def().Class)
	assert.Equal(t, amd64.GR32, b.Instrs[0].Use(0).Class)
	assert.Equal(t, amd64.FR64, b.Instrs[1].Def().Class)
	assert.Equal(t, amd64.FR64, b.Instrs[1].Use(0).Class)
}
