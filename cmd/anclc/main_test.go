package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/cli"
)

const addIR = `
define i32 @add(i32 %a, i32 %b) {
entry:
  %s = add i32 %a, %b
  ret i32 %s
}
`

func writeIR(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(addIR), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand(io.Discard)
	assert.Equal(t, "anclc", cmd.Use)
	for _, name := range []string{"compile", "dump", "watch", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand(io.Discard)
	syntax := cmd.PersistentFlags().Lookup("syntax")
	require.NotNil(t, syntax)
	assert.Equal(t, "gas", syntax.DefValue)
	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("O0"))
}

func TestCompileWritesAssembly(t *testing.T) {
	dir := t.TempDir()
	in := writeIR(t, dir, "add.air")

	code, _, stderr := runCLI(t, "compile", in)
	require.Equal(t, cli.ExitOK, code, stderr)
	asm, err := os.ReadFile(filepath.Join(dir, "add.s"))
	require.NoError(t, err)
	assert.Contains(t, string(asm), "add:\n")
	assert.Contains(t, string(asm), "\taddl\t")
}

func TestCompileToStdoutInIntelSyntax(t *testing.T) {
	in := writeIR(t, t.TempDir(), "add.air")
	code, stdout, stderr := runCLI(t, "compile", in, "-o", "-", "--syntax", "intel")
	require.Equal(t, cli.ExitOK, code, stderr)
	assert.Contains(t, stdout, ".intel_syntax noprefix")
	assert.Contains(t, stdout, "\tadd\t")
}

func TestConfigFileAndFlagOverride(t *testing.T) {
	dir := t.TempDir()
	in := writeIR(t, dir, "add.air")
	conf := filepath.Join(dir, "ancl.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("syntax: intel\n"), 0o644))

	_, stdout, _ := runCLI(t, "--config", conf, "compile", in, "-o", "-")
	assert.Contains(t, stdout, ".intel_syntax noprefix")

	_, stdout, _ = runCLI(t, "--config", conf, "--syntax", "gas", "compile", in, "-o", "-")
	assert.NotContains(t, stdout, ".intel_syntax")
}

func TestUnknownSyntaxExitsWithConfigCode(t *testing.T) {
	in := writeIR(t, t.TempDir(), "add.air")
	code, _, stderr := runCLI(t, "compile", in, "--syntax", "masm")
	assert.Equal(t, cli.ExitConfig, code)
	assert.Contains(t, stderr, "UNKNOWN_SYNTAX")
}

func TestMissingInputExitsWithIOCode(t *testing.T) {
	code, _, _ := runCLI(t, "compile", filepath.Join(t.TempDir(), "missing.air"))
	assert.Equal(t, cli.ExitIO, code)
}

func TestDumpStages(t *testing.T) {
	in := writeIR(t, t.TempDir(), "add.air")

	code, stdout, stderr := runCLI(t, "dump", in, "--stage", "ir")
	require.Equal(t, cli.ExitOK, code, stderr)
	assert.Contains(t, stdout, "define i32 @add")

	code, stdout, _ = runCLI(t, "dump", in, "--stage", "alloc")
	require.Equal(t, cli.ExitOK, code)
	assert.Contains(t, stdout, "; intervals add")

	code, _, _ = runCLI(t, "dump", in, "--stage", "link")
	assert.Equal(t, cli.ExitConfig, code)
}

func TestVersionJSON(t *testing.T) {
	code, stdout, _ := runCLI(t, "version", "--json")
	require.Equal(t, cli.ExitOK, code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "anclc", out["tool"])
}

func TestWatchRecompilesOnWrite(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	opts := &watchOptions{
		rootOptions: &rootOptions{config: cli.DefaultConfig(), logger: cli.NewLogger(io.Discard, false, false)},
		ready:       func() { close(ready) },
	}
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, opts, dir) }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
	writeIR(t, dir, "late.air")
	out := filepath.Join(dir, "late.s")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && len(data) > 0
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchInitialPass(t *testing.T) {
	dir := t.TempDir()
	writeIR(t, dir, "a.air")
	writeIR(t, dir, "b.air")
	opts := &watchOptions{
		rootOptions: &rootOptions{config: cli.DefaultConfig(), logger: cli.NewLogger(io.Discard, false, false)},
		Jobs:        2,
	}
	require.NoError(t, compileAll(context.Background(), opts, dir))
	for _, name := range []string{"a.s", "b.s"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
