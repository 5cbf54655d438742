// Package driver runs the whole compilation pipeline over one program:
// parse, optimize, lower, select, allocate, finalize frames and emit.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/cli"
	"github.com/orizon-lang/ancl/internal/emit"
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/frame"
	"github.com/orizon-lang/ancl/internal/ir"
	"github.com/orizon-lang/ancl/internal/irtext"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/mirgen"
	"github.com/orizon-lang/ancl/internal/opt"
	"github.com/orizon-lang/ancl/internal/regalloc"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

// Stage names a point of the pipeline whose program can be dumped.
type Stage string

const (
	StageIR    Stage = "ir"
	StageOpt   Stage = "opt"
	StageMIR   Stage = "mir"
	StageAlloc Stage = "alloc"
	StageAsm   Stage = "asm"
)

// Stages lists the dumpable stages in pipeline order.
func Stages() []Stage { return []Stage{StageIR, StageOpt, StageMIR, StageAlloc, StageAsm} }

// ParseStage maps a stage name to its Stage.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.Config("UNKNOWN_STAGE", fmt.Sprintf("unknown stage %q", s),
		map[string]interface{}{"stage": s})
}

// Result holds the output of one compile. Dumps has an entry for every
// stage the pipeline reached.
type Result struct {
	Assembly string
	Dumps    map[Stage]string
	Session  string
}

// Dump returns the program text recorded after st. It is safe on a nil
// result.
func (r *Result) Dump(st Stage) (string, bool) {
	if r == nil {
		return "", false
	}
	s, ok := r.Dumps[st]
	return s, ok
}

// Driver compiles programs with a fixed configuration.
type Driver struct {
	Config  *cli.Config
	Tool    string
	Session string

	machine *amd64.Machine
}

// New validates config and returns a driver for its target.
func New(config *cli.Config, session string) (*Driver, error) {
	if config == nil {
		config = cli.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Driver{Config: config, Tool: "anclc", Session: session, machine: amd64.New()}, nil
}

// Machine returns the target description used by d.
func (d *Driver) Machine() *amd64.Machine { return d.machine }

// Compile parses src as textual IR and runs the pipeline. name is used in
// diagnostics. Cancellation of ctx is checked between stages.
func (d *Driver) Compile(ctx context.Context, name string, src []byte) (*Result, error) {
	p, err := irtext.ParseBytes(name, src)
	if err != nil {
		return nil, err
	}
	return d.CompileProgram(ctx, p)
}

// CompileProgram runs the pipeline over an already built program.
func (d *Driver) CompileProgram(ctx context.Context, p *ir.Program) (*Result, error) {
	res := &Result{Dumps: make(map[Stage]string), Session: d.Session}
	m := d.machine
	cfg := d.Config

	res.Dumps[StageIR] = irtext.Format(p)
	for _, fn := range p.Functions {
		if err := ir.Verify(fn); err != nil {
			return res, fmt.Errorf("verify %s: %w", fn.Name(), err)
		}
	}

	if cfg.Optimize {
		if err := opt.RunProgram(p, cfg.Passes, cfg.OptIterations); err != nil {
			return res, err
		}
	}
	res.Dumps[StageOpt] = irtext.Format(p)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	mp, err := mirgen.Lower(p, m)
	if err != nil {
		return res, fmt.Errorf("lower: %w", err)
	}
	if err := isel.SelectProgram(mp, m); err != nil {
		return res, fmt.Errorf("select: %w", err)
	}
	res.Dumps[StageMIR] = mp.Format(m)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	allocs, err := regalloc.AllocateProgram(mp, m, regalloc.Strategy(cfg.Allocator))
	if err != nil {
		return res, fmt.Errorf("allocate: %w", err)
	}
	if err := frame.Finalize(mp, m); err != nil {
		return res, fmt.Errorf("frame: %w", err)
	}
	res.Dumps[StageAlloc] = allocDump(mp, m, allocs)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	e, err := emit.New(cfg.Syntax, m)
	if err != nil {
		return res, err
	}
	e.Ident = cli.Ident(d.Tool, d.Session)
	res.Assembly, err = e.Emit(mp)
	if err != nil {
		return res, err
	}
	res.Dumps[StageAsm] = res.Assembly

	tlog.V("driver").Printw("compiled", "session", d.Session, "functions", len(mp.Functions),
		"data", len(mp.Data), "syntax", e.Syntax())
	return res, nil
}

func allocDump(p *mir.Program, m *amd64.Machine, allocs []*regalloc.LinearScan) string {
	var b strings.Builder
	b.WriteString(p.Format(m))
	for k, ra := range allocs {
		fmt.Fprintf(&b, "\n; intervals %s\n%s", p.Functions[k].Name, ra)
	}
	return b.String()
}

// CompileFile compiles the file at path and writes the assembly to out. An
// empty out writes next to the input with a .s extension. The configured
// IR and MIR dump files are written as well.
func (d *Driver) CompileFile(ctx context.Context, path, out string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(path, err)
	}
	res, err := d.Compile(ctx, path, src)
	if err != nil {
		return res, fmt.Errorf("compile %s: %w", path, err)
	}
	if out == "" {
		out = OutputPath(path)
	}
	if err := writeFile(out, res.Assembly); err != nil {
		return res, err
	}
	if d.Config.DumpIR != "" {
		if err := writeFile(d.Config.DumpIR, res.Dumps[StageOpt]); err != nil {
			return res, err
		}
	}
	if d.Config.DumpMIR != "" {
		if err := writeFile(d.Config.DumpMIR, res.Dumps[StageAlloc]); err != nil {
			return res, err
		}
	}
	return res, nil
}

// OutputPath is the default assembly path for an input file.
func OutputPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".s"
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.IO(path, err)
	}
	return nil
}
