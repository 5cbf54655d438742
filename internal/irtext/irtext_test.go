package irtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

func sampleProgram() *ir.Program {
	p := ir.NewProgram()
	i8, i32, i64 := ir.IntType(8), ir.IntType(32), ir.IntType(64)
	dbl := ir.FloatType(ir.Double)

	pair := p.AddStruct(ir.StructOf("Pair", i32, dbl))
	msg := p.NewGlobal("msg", ir.ArrayOf(i8, 6), ir.InternalLinkage, true)
	msg.SetStringInit("hi %d\n")
	counter := p.NewGlobal("counter", i32, ir.ExternalLinkage, false)
	counter.SetScalarInit(ir.ConstInt(i32, -3))
	table := p.NewGlobal("table", ir.ArrayOf(i32, 2), ir.ExternalLinkage, true)
	table.SetListInit(ir.ConstInt(i32, 1), ir.ConstInt(i32, 2))
	alias := p.NewGlobal("alias", ir.PointerTo(i32), ir.ExternalLinkage, false)
	alias.SetGlobalInit(counter)
	p.NewGlobal("zero", pair, ir.ExternalLinkage, false)

	printf := p.NewFunction("printf", ir.FunctionOf(i32, []*ir.Type{ir.PointerTo(i8)}, true), ir.ExternalLinkage)

	f := p.NewFunction("run", ir.FunctionOf(i32, []*ir.Type{i32, ir.PointerTo(pair)}, false),
		ir.ExternalLinkage, "n", "pp")
	entry := f.NewBlock("entry")
	small := f.NewBlock("small")
	big := f.NewBlock("big")
	merge := f.NewBlock("merge")
	other := f.NewBlock("other")

	b := ir.NewBuilder(f)
	b.SetInsertPoint(entry)
	field := b.Member(f.Params[1], ir.ConstInt(i32, 1), true, "field")
	d := b.Load(field, "d")
	half := b.Binary(ir.FMul, d, ir.ConstFloat(dbl, 0.5), "half")
	b.Store(half, field)
	wide := b.Cast(ir.SExt, f.Params[0], i64, "wide")
	b.Cast(ir.ITrunc, wide, i32, "narrow")
	cond := b.Compare(ir.SLess, f.Params[0], ir.ConstInt(i32, 10), "cond")
	b.CondBr(cond, small, big)

	b.SetInsertPoint(small)
	fmtp := b.Member(msg, ir.ConstInt(i64, 0), false, "fmt")
	b.Call(printf, []ir.Value{fmtp, f.Params[0]}, "printed")
	b.Br(merge)

	b.SetInsertPoint(big)
	b.StoreVolatile(ir.ConstInt(i32, 7), counter)
	b.Switch(f.Params[0], merge,
		ir.SwitchCase{Value: ir.ConstInt(i32, 100), Block: other},
		ir.SwitchCase{Value: ir.ConstInt(i32, 200), Block: other})

	b.SetInsertPoint(other)
	slot := b.Alloca(pair, "tmp")
	b.MemSet(slot, 0, 16)
	b.MemCopy(f.Params[1], slot, 16)
	b.Br(merge)

	b.SetInsertPoint(merge)
	phi := b.Phi(i32, "r")
	phi.SetIncoming(small, ir.ConstInt(i32, 1))
	phi.SetIncoming(big, ir.ConstInt(i32, 2))
	phi.SetIncoming(other, f.Params[0])
	b.Ret(phi)
	return p
}

func TestRoundTrip(t *testing.T) {
	want := Format(sampleProgram())
	prog, err := ParseString("sample.air", want)
	require.NoError(t, err)
	assert.Equal(t, want, Format(prog))

	run := prog.Function("run")
	require.NotNil(t, run)
	merge := run.Block("merge")
	require.NotNil(t, merge)
	assert.Len(t, merge.Preds, 3)
	assert.True(t, prog.Function("printf").IsVariadic())
	assert.Equal(t, ir.InitGlobal, prog.Global("alias").Init)
	assert.Equal(t, ir.InitNone, prog.Global("zero").Init)
	assert.Equal(t, "hi %d\n", prog.Global("msg").InitString)
}

func TestForwardReference(t *testing.T) {
	src := `
define i32 @f(i32 %n) {
entry:
  br label %b
c:
  %y = add i32 %x, 1
  ret i32 %y
b:
  %x = add i32 %n, 2
  br label %c
}
`
	prog, err := ParseString("fwd.air", src)
	require.NoError(t, err)
	f := prog.Function("f")
	y := f.Block("c").Instrs[0]
	x := f.Block("b").Instrs[0]
	assert.Same(t, x, y.Ops[0])
}

func TestPhiArgumentsFollowPredecessorOrder(t *testing.T) {
	src := `
define i32 @f(i1 %c) {
entry:
  br i1 %c, label %a, label %b
a:
  br label %m
b:
  br label %m
m:
  %r = phi i32 [ 2, %b ], [ 1, %a ]
  ret i32 %r
}
`
	prog, err := ParseString("phi.air", src)
	require.NoError(t, err)
	m := prog.Function("f").Block("m")
	phi := m.Phis()[0]
	assert.Equal(t, "a", phi.Incoming[0].Block.Name())
	assert.Equal(t, "1", phi.Incoming[0].Value.Ref())
}

func TestVersionHeader(t *testing.T) {
	_, err := ParseString("ok.air", "; ancl-ir 1.4.2\ndeclare void @g()\n")
	assert.NoError(t, err)

	_, err = ParseString("new.air", "; ancl-ir 2.0.0\ndeclare void @g()\n")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryInput, mustCategory(t, err))

	_, err = ParseString("bad.air", "; ancl-ir one\n")
	require.Error(t, err)
}

func mustCategory(t *testing.T, err error) errors.ErrorCategory {
	t.Helper()
	cat, ok := errors.CategoryOf(err)
	require.True(t, ok, "not a categorized error: %v", err)
	return cat
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined value", "define i32 @f() {\nentry:\n  ret i32 %nope\n}\n", "undefined value"},
		{"unknown opcode", "define void @f() {\nentry:\n  frob i32 1\n  ret void\n}\n", "unknown instruction"},
		{"undefined block", "define void @f() {\nentry:\n  br label %missing\n}\n", "undefined block"},
		{"unterminated", "define void @f() {\nentry:\n  ret void\n", "unterminated"},
		{"missing terminator", "define void @f() {\nentry:\n  %a = add i32 1, 2\n}\n", "terminator"},
		{"bad type", "@g = global q32 1\n", "expected type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString("bad.air", tt.src)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q lacks %q", err, tt.want)
		})
	}
}

func TestScanLine(t *testing.T) {
	toks, err := scanLine(`  %x.1 = fadd double -1.5e-3, NaN ; trailing`)
	require.NoError(t, err)
	texts := make([]string, len(toks))
	for i, tok := range toks {
		texts[i] = tok.String()
	}
	assert.Equal(t, []string{"%x.1", "=", "fadd", "double", "-1.5e-3", ",", "NaN"}, texts)
}
