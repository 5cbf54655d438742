package amd64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

var (
	i32 = mir.Integer(4)
	i64 = mir.Integer(8)
)

func node(fn *mir.Function, i *mir.Instruction) *target.SelectionNode {
	b := fn.Entry()
	if b == nil {
		b = fn.NewBlock("entry")
	}
	i.Block = b
	return target.NewSelectionNode(i, b)
}

func vreg(fn *mir.Function, t mir.Type) mir.Operand { return mir.VReg(t, fn.NextVReg()) }

func generated(t *testing.T, m *Machine, n *target.SelectionNode) []int {
	t.Helper()
	tree := &target.SelectionTree{Root: n}
	require.NoError(t, m.Select(tree))
	var out []int
	for _, i := range tree.Generate() {
		out = append(out, i.Code)
	}
	return out
}

func TestRegisterAliasing(t *testing.T) {
	rs := New().regs
	assert.Equal(t, RAX, rs.Unit(AL))
	assert.Equal(t, RAX, rs.Unit(AH))
	assert.Equal(t, R9, rs.Unit(R9W))
	assert.Equal(t, XMM3, rs.Unit(XMM3))
	assert.Equal(t, ECX, rs.Sized(RCX, 4))
	assert.Equal(t, R11B, rs.Sized(R11D, 1))
	assert.Equal(t, AL, rs.Register(AH).Paired)
	assert.Equal(t, "r8d", rs.Name(R8D))
	assert.Equal(t, "sil", rs.Name(SIL))
	assert.Equal(t, GR16, rs.ClassOfRegister(DX))
	assert.Equal(t, FR64, rs.ClassOfRegister(XMM1))
	assert.Equal(t, FR32, rs.ClassOf(4, true))
	assert.Equal(t, EAX, rs.Registers(GR32)[0])
}

func TestABI(t *testing.T) {
	abi := New().ABI()
	assert.Equal(t, []int{RDI, RSI, RDX, RCX, R8, R9}, abi.IntArgRegisters())
	assert.Len(t, abi.FloatArgRegisters(), 8)
	assert.Equal(t, int64(16), abi.StackAlign())
	assert.Equal(t, int64(128), abi.RedZoneSize())
	assert.Contains(t, abi.CalleeSaved(), RBX)
	assert.NotContains(t, abi.CallerSaved(), RBX)
}

func TestLegalizeSignedDivision(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	def, a, b := vreg(fn, i32), vreg(fn, i32), vreg(fn, i32)
	n := node(fn, mir.NewInstruction(mir.OpSDiv, def, a, b))

	assert.Equal(t, []int{MOV_RR, CDQ, IDIV_R, MOV_RR}, generated(t, m, n))
	div := n.Targets[0]
	assert.False(t, div.HasDef())
	assert.Equal(t, []int{RAX, RDX}, div.ImplicitDefs)
	assert.True(t, div.Use(0).SameRegister(b))
	assert.Equal(t, EAX, n.Prologue[0].Def().Reg)
	assert.Equal(t, EAX, n.Epilogue[0].Use(0).Reg)
}

func TestLegalizeUnsignedRemainder(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	def, a := vreg(fn, i64), vreg(fn, i64)
	n := node(fn, mir.NewInstruction(mir.OpURem, def, a, mir.Imm(i64, 10)))

	// The immediate divisor is materialized first.
	assert.Equal(t, []int{MOV_RI, MOV_RR, MOV_RI, DIV_R, MOV_RR}, generated(t, m, n))
	assert.Equal(t, RDX, n.Epilogue[0].Use(0).Reg)
}

func TestNarrowDivisionIsRejected(t *testing.T) {
	fn := mir.NewFunction("f")
	n := node(fn, mir.NewInstruction(mir.OpSDiv, vreg(fn, mir.Integer(2)), vreg(fn, mir.Integer(2)), vreg(fn, mir.Integer(2))))
	err := New().Select(&target.SelectionTree{Root: n})
	assert.True(t, errors.IsLowering(err))
}

func TestFloatRemainderIsRejected(t *testing.T) {
	fn := mir.NewFunction("f")
	f64 := mir.Float(8)
	n := node(fn, mir.NewInstruction(mir.OpFRem, vreg(fn, f64), vreg(fn, f64), vreg(fn, f64)))
	err := New().Select(&target.SelectionTree{Root: n})
	assert.True(t, errors.IsLowering(err))
}

func TestVariableShiftUsesCL(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	def, a, count := vreg(fn, i64), vreg(fn, i64), vreg(fn, i64)
	n := node(fn, mir.NewInstruction(mir.OpShiftL, def, a, count))

	assert.Equal(t, []int{MOV_RR, SHL_RCL}, generated(t, m, n))
	assert.Equal(t, CL, n.Prologue[0].Def().Reg)
	assert.Equal(t, CL, n.Targets[0].Use(1).Reg)
}

func TestImmediateShiftCountIsMasked(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	n := node(fn, mir.NewInstruction(mir.OpAShiftR, vreg(fn, i64), vreg(fn, i64), mir.Imm(i64, 65)))
	assert.Equal(t, []int{SAR_RI}, generated(t, m, n))
	assert.Equal(t, int64(1), n.Targets[0].Use(1).Imm)
}

func TestCommutativeImmediateIsSwapped(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	a := vreg(fn, i32)
	n := node(fn, mir.NewInstruction(mir.OpAdd, vreg(fn, i32), mir.Imm(i32, 5), a))

	assert.Equal(t, []int{ADD_RI}, generated(t, m, n))
	assert.True(t, n.Targets[0].Use(0).SameRegister(a))
	assert.Equal(t, int64(5), n.Targets[0].Use(1).Imm)
}

func TestWideImmediateIsMaterialized(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	n := node(fn, mir.NewInstruction(mir.OpAnd, vreg(fn, i64), vreg(fn, i64), mir.Imm(i64, 1<<40)))
	assert.Equal(t, []int{MOV_RI, AND_RR}, generated(t, m, n))
}

func TestSubtractFromImmediate(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	n := node(fn, mir.NewInstruction(mir.OpSub, vreg(fn, i32), mir.Imm(i32, 1), vreg(fn, i32)))
	assert.Equal(t, []int{MOV_RI, SUB_RR}, generated(t, m, n))
}

func TestZeroExtendFromDoubleWord(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	def, src := vreg(fn, i64), vreg(fn, i32)
	n := node(fn, mir.NewInstruction(mir.OpZExt, def, src))

	assert.Equal(t, []int{MOV_RR}, generated(t, m, n))
	mov := n.Targets[0]
	assert.Equal(t, mir.OpSubregToReg, mov.Op)
	assert.Equal(t, 4, mov.Def().Type.Bytes)
	assert.Equal(t, GR32, mov.Class)
}

func TestMemberAddressFoldsIntoLoad(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	base, index := vreg(fn, mir.Pointer()), vreg(fn, i64)
	addr, val := vreg(fn, mir.Pointer()), vreg(fn, i32)
	member := node(fn, mir.NewInstruction(mir.OpMemberAddress, addr, base,
		mir.Imm(i64, 4), index, mir.Imm(i64, 8)))
	load := node(fn, mir.NewInstruction(mir.OpLoad, val, addr))
	load.SetChild(0, member)

	assert.Equal(t, []int{MOV_RM}, generated(t, m, load))
	ld := load.Targets[0]
	assert.True(t, ld.Use(0).SameRegister(base))
	assert.Equal(t, int64(4), ld.Use(1).Imm)
	assert.True(t, ld.Use(2).SameRegister(index))
	assert.Equal(t, int64(8), ld.Use(3).Imm)
}

func TestNestedMemberAddressFolds(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	slot, field, val := vreg(fn, mir.Pointer()), vreg(fn, mir.Pointer()), vreg(fn, i64)
	stack := node(fn, mir.NewInstruction(mir.OpStackAddress, slot, mir.StackIndex(2)))
	member := node(fn, mir.NewInstruction(mir.OpMemberAddress, field, slot,
		mir.Imm(i64, 1), mir.NoReg(), mir.Imm(i64, 16)))
	member.SetChild(0, stack)
	load := node(fn, mir.NewInstruction(mir.OpLoad, val, field))
	load.SetChild(0, member)

	assert.Equal(t, []int{MOV_RM}, generated(t, m, load))
	ld := load.Targets[0]
	assert.Equal(t, mir.OperandStackIndex, ld.Use(0).Kind)
	assert.Equal(t, int64(16), ld.Use(3).Imm)
}

func TestGlobalBaseTakesNoIndex(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	g, field, index := vreg(fn, mir.Pointer()), vreg(fn, mir.Pointer()), vreg(fn, i64)
	global := node(fn, mir.NewInstruction(mir.OpGlobalAddress, g, mir.Global("table")))
	member := node(fn, mir.NewInstruction(mir.OpMemberAddress, field, g,
		mir.Imm(i64, 8), index, mir.Imm(i64, 0)))
	member.SetChild(0, global)

	assert.Equal(t, []int{LEA, LEA}, generated(t, m, member))
	assert.Equal(t, mir.OperandGlobal, member.Children[0].Targets[0].Use(0).Kind)
}

func TestCompareProducesFlagValue(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	n := node(fn, mir.NewCompare(mir.OpUCmp, mir.CmpLess, vreg(fn, mir.Integer(1)), vreg(fn, i32), vreg(fn, i32)))
	assert.Equal(t, []int{CMP_RR, SETB}, generated(t, m, n))
}

func TestFloatImmediateNeedsConstantPool(t *testing.T) {
	fn := mir.NewFunction("f")
	f64 := mir.Float(8)
	n := node(fn, mir.NewInstruction(mir.OpFAdd, vreg(fn, f64), vreg(fn, f64), mir.FImm(f64, 1.5)))
	err := New().Select(&target.SelectionTree{Root: n})
	assert.True(t, errors.IsStructural(err))
}

func TestMoveHelpers(t *testing.T) {
	m := New()
	fn := mir.NewFunction("f")
	f32 := mir.Float(4)
	assert.Equal(t, MOVSS_RR, m.Move(vreg(fn, f32), vreg(fn, f32)).Code)
	assert.Equal(t, MOV_RI, m.Move(vreg(fn, i64), mir.Imm(i64, 3)).Code)
	mem := memory(mir.StackIndex(1), 1, mir.NoReg(), 0)
	assert.Equal(t, MOVSD_RM, m.Load(vreg(fn, mir.Float(8)), mem).Code)
	assert.Equal(t, MOV_MR, m.Store(mem, vreg(fn, i64)).Code)
	assert.Equal(t, "ADD_RI", m.InstructionName(ADD_RI))
}
