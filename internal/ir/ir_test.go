package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/errors"
)

func diamond(t *testing.T) (*Program, *Function) {
	t.Helper()
	p := NewProgram()
	i32 := IntType(32)
	f := p.NewFunction("pick", FunctionOf(i32, []*Type{i32}, false), ExternalLinkage, "c")
	entry := f.NewBlock("entry")
	a := f.NewBlock("a")
	b := f.NewBlock("b")
	merge := f.NewBlock("merge")

	bld := NewBuilder(f)
	bld.SetInsertPoint(entry)
	cond := bld.Compare(SLess, f.Params[0], ConstInt(i32, 10), "cond")
	bld.CondBr(cond, a, b)
	bld.SetInsertPoint(a)
	bld.Br(merge)
	bld.SetInsertPoint(b)
	bld.Br(merge)
	bld.SetInsertPoint(merge)
	phi := bld.Phi(i32, "r")
	phi.SetIncoming(a, ConstInt(i32, 1))
	phi.SetIncoming(b, ConstInt(i32, 2))
	bld.Ret(phi)
	return p, f
}

func TestNameUniquing(t *testing.T) {
	p := NewProgram()
	i32 := IntType(32)
	f := p.NewFunction("f", FunctionOf(i32, []*Type{i32}, false), ExternalLinkage, "x")
	bld := NewBuilder(f)
	bld.SetInsertPoint(f.NewBlock("entry"))

	a := bld.Add(f.Params[0], f.Params[0], "x")
	b := bld.Add(a, a, "x")
	c := bld.Add(b, b, "")
	d := bld.Add(c, c, "")

	assert.Equal(t, "x.1", a.Name())
	assert.Equal(t, "x.2", b.Name())
	assert.Equal(t, "0", c.Name())
	assert.Equal(t, "1", d.Name())

	assert.Equal(t, "entry.1", f.NewBlock("entry").Name())
}

func TestBuilderTracksPredecessors(t *testing.T) {
	_, f := diamond(t)
	merge := f.Block("merge")
	require.Len(t, merge.Preds, 2)
	assert.Equal(t, "a", merge.Preds[0].Name())
	assert.Equal(t, "b", merge.Preds[1].Name())

	phi := merge.Phis()[0]
	v, ok := phi.IncomingFor(f.Block("b"))
	require.True(t, ok)
	assert.Equal(t, "2", v.Ref())
	require.NoError(t, Verify(f))
}

func TestVerifyRejectsBrokenFunctions(t *testing.T) {
	_, f := diamond(t)
	merge := f.Block("merge")
	merge.Preds = merge.Preds[:1]
	err := Verify(f)
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))

	_, f = diamond(t)
	a := f.Block("a")
	a.Remove(a.Terminator())
	err = Verify(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_TERMINATOR")
}

func TestReturnValue(t *testing.T) {
	_, f := diamond(t)
	v, ok := f.ReturnValue()
	require.True(t, ok)
	assert.Equal(t, "%r", v.Ref())

	p := NewProgram()
	i32 := IntType(32)
	g := p.NewFunction("g", FunctionOf(i32, []*Type{i32}, false), ExternalLinkage, "x")
	bld := NewBuilder(g)
	entry, then, els := g.NewBlock("entry"), g.NewBlock("then"), g.NewBlock("else")
	bld.SetInsertPoint(entry)
	bld.CondBr(bld.Compare(IEqual, g.Params[0], ConstInt(i32, 0), ""), then, els)
	bld.SetInsertPoint(then)
	bld.Ret(ConstInt(i32, 1))
	bld.SetInsertPoint(els)
	bld.Ret(ConstInt(i32, 2))

	_, ok = g.ReturnValue()
	assert.False(t, ok, "multi-return functions have no single return value")
}

func TestMemberResultType(t *testing.T) {
	i8, i64 := IntType(8), IntType(64)
	s := StructOf("S", i8, i64)
	arr := ArrayOf(i64, 4)

	assert.True(t, PointerTo(i64).Equal(MemberResultType(PointerTo(s), ConstInt(IntType(32), 1), true)))
	assert.True(t, PointerTo(i64).Equal(MemberResultType(PointerTo(arr), ConstInt(IntType(32), 3), true)))
	assert.True(t, PointerTo(s).Equal(MemberResultType(PointerTo(s), ConstInt(IntType(32), 3), false)))
}

func TestTypeEquality(t *testing.T) {
	assert.True(t, IntType(32).Equal(IntType(32)))
	assert.False(t, IntType(32).Equal(IntType(64)))
	assert.True(t, PointerTo(ArrayOf(FloatType(Double), 3)).Equal(PointerTo(ArrayOf(FloatType(Double), 3))))
	assert.True(t, StructOf("", IntType(8)).Equal(StructOf("", IntType(8))))
	assert.False(t, StructOf("A", IntType(8)).Equal(StructOf("B", IntType(8))))
	assert.Equal(t, "[4 x i8*]", ArrayOf(PointerTo(IntType(8)), 4).String())
}

func TestProgramString(t *testing.T) {
	p, _ := diamond(t)
	i8 := IntType(8)
	msg := p.NewGlobal("msg", ArrayOf(i8, 3), InternalLinkage, true)
	msg.SetStringInit("hi")
	ptr := p.NewGlobal("ptr", PointerTo(i8), ExternalLinkage, false)
	ptr.SetGlobalInit(msg)
	p.NewGlobal("zero", IntType(32), ExternalLinkage, false)

	out := p.String()
	for _, want := range []string{
		`@msg = internal constant [3 x i8] c"hi"`,
		"@ptr = global i8* @msg",
		"@zero = global i32\n",
		"define i32 @pick(i32 %c) {",
		"  %cond = icmp slt i32 %c, 10",
		"  br i1 %cond, label %a, label %b",
		"  %r = phi i32 [ 1, %a ], [ 2, %b ]",
		"  ret i32 %r",
	} {
		assert.True(t, strings.Contains(out, want), "missing %q in\n%s", want, out)
	}
}

func TestRemovePredDropsPhiArgument(t *testing.T) {
	_, f := diamond(t)
	merge := f.Block("merge")
	merge.RemovePred(f.Block("a"))
	phi := merge.Phis()[0]
	require.Len(t, phi.Incoming, 1)
	assert.Equal(t, "b", phi.Incoming[0].Block.Name())
}
