package emit

import (
	"math"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

var (
	i8  = mir.Integer(1)
	i32 = mir.Integer(4)
	i64 = mir.Integer(8)
	f64 = mir.Float(8)
)

func reg(t mir.Type, n int) mir.Operand {
	m := amd64.New()
	return mir.PReg(t, n, m.Registers().ClassOfRegister(n))
}

func imm(v int64) mir.Operand { return mir.Imm(i64, v) }

func inst(op mir.Opcode, code int, class mir.RegClass, ops ...mir.Operand) *mir.Instruction {
	i := mir.NewInstruction(op, ops...)
	i.Code = code
	i.Class = class
	return i
}

func sample(t *testing.T) *mir.Program {
	p := &mir.Program{}

	counter := &mir.GlobalDataArea{Name: "counter", Align: 8}
	require.NoError(t, counter.AddInteger(8, 42))
	buf := &mir.GlobalDataArea{Name: "buf", Local: true, Align: 8}
	buf.AddZero(16)
	msg := &mir.GlobalDataArea{Name: "msg", Const: true, Local: true, Align: 1}
	msg.AddString("hi\n\"x\"", true)
	half := &mir.GlobalDataArea{Name: ".LCPI0", Const: true, Local: true, Align: 8}
	half.AddDouble(0.5)
	p.Data = []*mir.GlobalDataArea{counter, buf, msg, half}

	fn := mir.NewFunction("add1")
	entry := fn.NewBlock("entry")
	done := fn.NewBlock("done")
	entry.Append(
		inst(mir.OpPush, amd64.PUSH_R, amd64.GR64, reg(i64, amd64.RBP)),
		inst(mir.OpMov, amd64.MOV_RR, amd64.GR64, reg(i64, amd64.RBP), reg(i64, amd64.RSP)),
		inst(mir.OpMov, amd64.MOV_RR, amd64.GR32, reg(i32, amd64.EAX), reg(i32, amd64.EDI)),
		inst(mir.OpAdd, amd64.ADD_RI, amd64.GR32, reg(i32, amd64.EAX), reg(i32, amd64.EAX), mir.Imm(i32, 1)),
		inst(mir.OpStore, amd64.MOV_MR, amd64.GR32,
			reg(i64, amd64.RBP), imm(1), mir.NoReg(), imm(-4), reg(i32, amd64.EAX)),
		inst(mir.OpLoad, amd64.MOV_RM, amd64.GR64,
			reg(i64, amd64.RCX), mir.Global("counter"), imm(1), mir.NoReg(), imm(0)),
		inst(mir.OpCmp, amd64.CMP_RI, amd64.GR32, reg(i32, amd64.EAX), mir.Imm(i32, 0)),
		inst(mir.OpBranch, amd64.JNE, mir.NoClass, mir.BlockRef(done)),
		inst(mir.OpMov, amd64.MOV_RI, amd64.GR64, reg(i64, amd64.RAX), imm(1<<32)),
	)
	done.Append(
		inst(mir.OpZExt, amd64.MOVZX_RM, amd64.GR8,
			reg(i32, amd64.EAX), reg(i64, amd64.RAX), imm(4), reg(i64, amd64.RCX), imm(8)),
		inst(mir.OpShiftL, amd64.SHL_RCL, amd64.GR32, reg(i32, amd64.EAX), reg(i32, amd64.EAX), reg(i8, amd64.CL)),
		inst(mir.OpCall, amd64.CALL, amd64.GR64, mir.Func("foo")),
		inst(mir.OpPop, amd64.POP_R, amd64.GR64, reg(i64, amd64.RBP)),
		inst(mir.OpRet, amd64.RET, mir.NoClass),
	)

	scale := mir.NewFunction("scale")
	scale.Local = true
	scale.NewBlock("entry").Append(
		inst(mir.OpLoad, amd64.MOVSD_RM, amd64.FR64,
			reg(f64, amd64.XMM1), mir.Global(".LCPI0"), imm(1), mir.NoReg(), imm(0)),
		inst(mir.OpSIToF, amd64.CVTSI2SD_RR, amd64.GR64, reg(f64, amd64.XMM0), reg(i64, amd64.RAX)),
		inst(mir.OpFMul, amd64.MULSD_RR, amd64.FR64, reg(f64, amd64.XMM0), reg(f64, amd64.XMM0), reg(f64, amd64.XMM1)),
		inst(mir.OpRet, amd64.RET, mir.NoClass),
	)
	p.Functions = []*mir.Function{fn, scale}
	return p
}

func TestEmitGolden(t *testing.T) {
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	for _, syntax := range Syntaxes() {
		t.Run(syntax, func(t *testing.T) {
			e, err := New(syntax, amd64.New())
			require.NoError(t, err)
			e.Ident = "ancl test"
			out, err := e.Emit(sample(t))
			require.NoError(t, err)
			g.Assert(t, "sample_"+syntax, []byte(out))
		})
	}
}

func TestUnknownSyntaxIsConfigError(t *testing.T) {
	_, err := New("masm", amd64.New())
	require.Error(t, err)
	cat, ok := errors.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfig, cat)
}

func TestEmitRejectsVirtualRegisters(t *testing.T) {
	p := &mir.Program{}
	fn := mir.NewFunction("f")
	v := mir.VReg(i64, fn.NextVReg())
	fn.NewBlock("entry").Append(inst(mir.OpMov, amd64.MOV_RI, amd64.GR64, v, imm(1)))
	p.Functions = []*mir.Function{fn}

	_, err := NewGAS(amd64.New()).Emit(p)
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
	assert.Contains(t, err.Error(), "emit f")
}

func TestEmitRejectsUnresolvedStackIndex(t *testing.T) {
	p := &mir.Program{}
	fn := mir.NewFunction("f")
	fn.NewBlock("entry").Append(inst(mir.OpLoad, amd64.MOV_RM, amd64.GR64,
		reg(i64, amd64.RAX), mir.StackIndex(3), imm(1), mir.NoReg(), imm(0)))
	p.Functions = []*mir.Function{fn}

	_, err := NewIntel(amd64.New()).Emit(p)
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
}

func TestEmitRejectsUnselectedInstruction(t *testing.T) {
	p := &mir.Program{}
	fn := mir.NewFunction("f")
	fn.NewBlock("entry").Append(mir.NewInstruction(mir.OpRet))
	p.Functions = []*mir.Function{fn}

	_, err := NewGAS(amd64.New()).Emit(p)
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
}

func TestMemoryOperands(t *testing.T) {
	m := amd64.New()
	g, x := &gas{m: m}, &intel{m: m}
	tests := []struct {
		ref        memRef
		gas, intel string
	}{
		{memRef{base: amd64.RBP, scale: 1, disp: -8}, "-8(%rbp)", "[rbp - 8]"},
		{memRef{base: amd64.RSP, scale: 1}, "(%rsp)", "[rsp]"},
		{memRef{base: amd64.RDI, scale: 8, index: amd64.RSI, disp: 16}, "16(%rdi,%rsi,8)", "[rdi + rsi*8 + 16]"},
		{memRef{symbol: "table", scale: 1, disp: 4}, "table+4(%rip)", "[rip + table + 4]"},
		{memRef{symbol: "table", scale: 1, disp: -4}, "table-4(%rip)", "[rip + table - 4]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.gas, g.memory(tt.ref))
		assert.Equal(t, tt.intel, x.memory(tt.ref))
	}
}

func TestGASMnemonics(t *testing.T) {
	m := amd64.New()
	e := NewGAS(m)
	fn := mir.NewFunction("f")
	tests := []struct {
		i    *mir.Instruction
		want string
	}{
		{inst(mir.OpSDiv, amd64.CQO, amd64.GR64), "cqto"},
		{inst(mir.OpSDiv, amd64.CDQ, amd64.GR32), "cltd"},
		{inst(mir.OpSExt, amd64.MOVSXD_RR, amd64.GR32, reg(i64, amd64.RAX), reg(i32, amd64.ECX)), "movslq\t%ecx, %rax"},
		{inst(mir.OpSExt, amd64.MOVSX_RR, amd64.GR16, reg(i64, amd64.RAX), reg(mir.Integer(2), amd64.CX)), "movswq\t%cx, %rax"},
		{inst(mir.OpCall, amd64.CALL_R, amd64.GR64, reg(i64, amd64.R11)), "call\t*%r11"},
		{inst(mir.OpCmp, amd64.SETL, mir.NoClass, reg(i8, amd64.AL)), "setl\t%al"},
		{inst(mir.OpUIToF, amd64.CVTSI2SS_RR, amd64.GR32, reg(mir.Float(4), amd64.XMM2), reg(i32, amd64.EDX)), "cvtsi2ssl\t%edx, %xmm2"},
		{inst(mir.OpFToSI, amd64.CVTTSD2SI_RR, amd64.FR64, reg(i64, amd64.RAX), reg(f64, amd64.XMM0)), "cvttsd2si\t%xmm0, %rax"},
		{inst(mir.OpMul, amd64.IMUL_RRI, amd64.GR64, reg(i64, amd64.RAX), reg(i64, amd64.RBX), imm(10)), "imulq\t$10, %rbx, %rax"},
		{inst(mir.OpStore, amd64.MOV_MI, amd64.GR8, reg(i64, amd64.RBP), imm(1), mir.NoReg(), imm(-1), mir.Imm(i8, 7)), "movb\t$7, -1(%rbp)"},
	}
	for _, tt := range tests {
		ops, ti, err := e.decode(fn, tt.i)
		require.NoError(t, err)
		assert.Equal(t, tt.want, e.syntax.Instruction(tt.i, ti.Name, ops))
	}
}

func TestIntelSizesMemoryOperands(t *testing.T) {
	m := amd64.New()
	e := NewIntel(m)
	fn := mir.NewFunction("f")
	tests := []struct {
		i    *mir.Instruction
		want string
	}{
		{inst(mir.OpStore, amd64.MOV_MI, amd64.GR64, reg(i64, amd64.RBP), imm(1), mir.NoReg(), imm(-16), imm(0)), "mov\tqword ptr [rbp - 16], 0"},
		{inst(mir.OpLoad, amd64.MOVSS_RM, amd64.FR32, reg(mir.Float(4), amd64.XMM0), reg(i64, amd64.RAX), imm(1), mir.NoReg(), imm(0)), "movss\txmm0, dword ptr [rax]"},
		{inst(mir.OpStackAddress, amd64.LEA, amd64.GR64, reg(i64, amd64.RDI), reg(i64, amd64.RBP), imm(1), mir.NoReg(), imm(-24)), "lea\trdi, [rbp - 24]"},
		{inst(mir.OpSDiv, amd64.IDIV_M, amd64.GR32, reg(i64, amd64.RBP), imm(1), mir.NoReg(), imm(-4)), "idiv\tdword ptr [rbp - 4]"},
		{inst(mir.OpAShiftR, amd64.SAR_RI, amd64.GR64, reg(i64, amd64.RDX), reg(i64, amd64.RDX), mir.Imm(i8, 63)), "sar\trdx, 63"},
		{inst(mir.OpMov, amd64.MOV_RI, amd64.GR64, reg(i64, amd64.RAX), imm(math.MinInt64)), "movabs\trax, -9223372036854775808"},
	}
	for _, tt := range tests {
		ops, ti, err := e.decode(fn, tt.i)
		require.NoError(t, err)
		assert.Equal(t, tt.want, e.syntax.Instruction(tt.i, ti.Name, ops))
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\"b\\c\n\t\001\377`, Escape("a\"b\\c\n\t\x01\xff"))
	assert.Equal(t, "plain text", Escape("plain text"))
}

func TestEmptyProgram(t *testing.T) {
	e := NewGAS(amd64.New())
	out, err := e.Emit(&mir.Program{})
	require.NoError(t, err)
	assert.Equal(t, "\t.section .note.GNU-stack,\"\",@progbits\n", out)
}
