package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/cli"
	"github.com/orizon-lang/ancl/internal/errors"
)

const branchy = `
@counter = global i32 5

declare i32 @g(i32)

define i32 @sum(i32 %n) {
entry:
  %p = alloca i32
  store i32 0, i32* %p
  %c = icmp slt i32 %n, 10
  br i1 %c, label %small, label %big
small:
  %r = call i32 @g(i32 %n)
  store i32 %r, i32* %p
  br label %done
big:
  %v = load i32, i32* @counter
  store i32 %v, i32* %p
  br label %done
done:
  %x = load i32, i32* %p
  ret i32 %x
}
`

func newDriver(t *testing.T, mutate func(*cli.Config)) *Driver {
	t.Helper()
	cfg := cli.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	d, err := New(cfg, "test-session")
	require.NoError(t, err)
	return d
}

func TestCompileGAS(t *testing.T) {
	d := newDriver(t, nil)
	res, err := d.Compile(context.Background(), "branchy.air", []byte(branchy))
	require.NoError(t, err)

	asm := res.Assembly
	for _, want := range []string{
		"\t.data\n", "\t.globl counter\n", "counter:\n",
		"\t.text\n", "\t.globl sum\n", "sum:\n",
		".Lsum.done:\n", "\tcall\tg\n", "counter(%rip)", "\tpushq\t%rbp\n", "\tret\n",
		"\t.ident \"anclc " + cli.Version + " (session test-session)\"\n",
	} {
		assert.Contains(t, asm, want)
	}
	assert.True(t, strings.HasSuffix(asm, "\t.section .note.GNU-stack,\"\",@progbits\n"))
	assert.NotContains(t, asm, "declare", "declarations emit nothing")
	assert.NotContains(t, asm, "\ng:\n", "external callee is not defined")
}

func TestCompileIntel(t *testing.T) {
	d := newDriver(t, func(c *cli.Config) { c.Syntax = "intel" })
	res, err := d.Compile(context.Background(), "branchy.air", []byte(branchy))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Assembly, "\t.intel_syntax noprefix\n"))
	assert.Contains(t, res.Assembly, "\tcall\tg\n")
	assert.Contains(t, res.Assembly, "[rip + counter]")
	assert.NotContains(t, res.Assembly, "%")
}

func TestUnoptimizedKeepsStackSlots(t *testing.T) {
	d := newDriver(t, func(c *cli.Config) { c.Optimize = false })
	res, err := d.Compile(context.Background(), "branchy.air", []byte(branchy))
	require.NoError(t, err)
	assert.Contains(t, res.Dumps[StageOpt], "alloca")
	assert.Contains(t, res.Assembly, "(%rbp)")
}

func TestOptimizationPromotesAllocas(t *testing.T) {
	d := newDriver(t, nil)
	res, err := d.Compile(context.Background(), "branchy.air", []byte(branchy))
	require.NoError(t, err)
	assert.Contains(t, res.Dumps[StageIR], "alloca")
	assert.NotContains(t, res.Dumps[StageOpt], "alloca")
	assert.Contains(t, res.Dumps[StageOpt], "phi")
}

func TestEveryStageIsDumped(t *testing.T) {
	d := newDriver(t, nil)
	res, err := d.Compile(context.Background(), "branchy.air", []byte(branchy))
	require.NoError(t, err)
	for _, st := range Stages() {
		assert.NotEmpty(t, res.Dumps[st], "stage %s", st)
	}
	assert.Contains(t, res.Dumps[StageAlloc], "; intervals sum")
	assert.Equal(t, res.Assembly, res.Dumps[StageAsm])
}

func TestFRemIsLoweringError(t *testing.T) {
	src := `
define double @mod(double %a, double %b) {
entry:
  %q = frem double %a, %b
  ret double %q
}
`
	d := newDriver(t, nil)
	_, err := d.Compile(context.Background(), "frem.air", []byte(src))
	require.Error(t, err)
	assert.True(t, errors.IsLowering(err), "%v", err)
	assert.Equal(t, cli.ExitLowering, cli.ExitCode(err))
}

func TestMemberOfStoragelessTypeIsStructural(t *testing.T) {
	src := `
define void* @f(void* %p) {
entry:
  %r = member void* %p, i64 1
  ret void* %r
}
`
	d := newDriver(t, nil)
	_, err := d.Compile(context.Background(), "void.air", []byte(src))
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err), "%v", err)
	assert.ErrorIs(t, err, errors.Structural("NO_LAYOUT", "", nil))
	assert.Equal(t, cli.ExitStructural, cli.ExitCode(err))
}

func TestParseErrorIsInput(t *testing.T) {
	d := newDriver(t, nil)
	_, err := d.Compile(context.Background(), "bad.air", []byte("define void @f() {\nentry:\n  frob i32 1\n  ret void\n}\n"))
	require.Error(t, err)
	assert.Equal(t, cli.ExitInput, cli.ExitCode(err))
}

func TestCancelledContextStopsPipeline(t *testing.T) {
	d := newDriver(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := d.Compile(ctx, "branchy.air", []byte(branchy))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Assembly)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := cli.DefaultConfig()
	cfg.Allocator = "graph-coloring"
	_, err := New(cfg, "")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, cli.ExitCode(err))
}

func TestCompileFileWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "branchy.air")
	require.NoError(t, os.WriteFile(in, []byte(branchy), 0o644))
	d := newDriver(t, func(c *cli.Config) {
		c.DumpIR = filepath.Join(dir, "branchy.opt.air")
		c.DumpMIR = filepath.Join(dir, "branchy.mir")
	})

	res, err := d.CompileFile(context.Background(), in, "")
	require.NoError(t, err)

	asm, err := os.ReadFile(filepath.Join(dir, "branchy.s"))
	require.NoError(t, err)
	assert.Equal(t, res.Assembly, string(asm))
	for _, name := range []string{"branchy.opt.air", "branchy.mir"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestCompileFileMissingInput(t *testing.T) {
	d := newDriver(t, nil)
	_, err := d.CompileFile(context.Background(), filepath.Join(t.TempDir(), "none.air"), "")
	require.Error(t, err)
	assert.Equal(t, cli.ExitIO, cli.ExitCode(err))
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("alloc")
	require.NoError(t, err)
	assert.Equal(t, StageAlloc, st)

	_, err = ParseStage("link")
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "dir/x.s", OutputPath("dir/x.air"))
	assert.Equal(t, "noext.s", OutputPath("noext"))
}
