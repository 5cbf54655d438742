// Package emit writes finalized MIR as x86-64 assembly text in AT&T (GAS)
// or Intel syntax.
package emit

import (
	"fmt"
	"strconv"
	"strings"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

// Syntax renders the parts of the output that differ between assemblers.
type Syntax interface {
	Name() string
	// Header returns directives written before anything else.
	Header() []string
	// Instruction renders one decoded instruction without indentation.
	Instruction(i *mir.Instruction, mnemonic string, ops []operand) string
}

// Syntaxes lists the accepted syntax names.
func Syntaxes() []string { return []string{"gas", "intel"} }

// Emitter serializes a program.
type Emitter struct {
	m      *amd64.Machine
	syntax Syntax
	// Ident, when set, is written as an .ident directive.
	Ident string
	// NoteGNUStack controls the trailing .note.GNU-stack section.
	NoteGNUStack bool
}

// New returns an emitter for the named syntax.
func New(syntax string, m *amd64.Machine) (*Emitter, error) {
	e := &Emitter{m: m, NoteGNUStack: true}
	switch syntax {
	case "gas", "att", "":
		e.syntax = &gas{m: m}
	case "intel":
		e.syntax = &intel{m: m}
	default:
		return nil, errors.Config("UNKNOWN_SYNTAX", "unknown assembly syntax",
			map[string]interface{}{"syntax": syntax, "known": strings.Join(Syntaxes(), ",")})
	}
	return e, nil
}

// NewGAS returns an AT&T syntax emitter.
func NewGAS(m *amd64.Machine) *Emitter { return &Emitter{m: m, syntax: &gas{m: m}, NoteGNUStack: true} }

// NewIntel returns an Intel syntax emitter.
func NewIntel(m *amd64.Machine) *Emitter {
	return &Emitter{m: m, syntax: &intel{m: m}, NoteGNUStack: true}
}

// Syntax returns the syntax name of e.
func (e *Emitter) Syntax() string { return e.syntax.Name() }

// BlockLabel is the assembly label of b. The first block is labeled with the
// function name.
func BlockLabel(fn *mir.Function, b *mir.BasicBlock) string {
	if b == fn.Entry() {
		return fn.Name
	}
	return ".L" + fn.Name + "." + b.Name
}

// Emit renders p. Nothing is returned unless every function emits cleanly.
func (e *Emitter) Emit(p *mir.Program) (string, error) {
	var b strings.Builder
	for _, h := range e.syntax.Header() {
		fmt.Fprintf(&b, "\t%s\n", h)
	}
	e.writeData(&b, p.Data)
	if len(p.Functions) > 0 {
		b.WriteString("\t.text\n")
	}
	for _, fn := range p.Functions {
		if err := e.writeFunction(&b, fn); err != nil {
			return "", fmt.Errorf("emit %s: %w", fn.Name, err)
		}
	}
	if e.Ident != "" {
		fmt.Fprintf(&b, "\t.ident %s\n", strconv.Quote(e.Ident))
	}
	if e.NoteGNUStack {
		b.WriteString("\t.section .note.GNU-stack,\"\",@progbits\n")
	}
	tlog.V("emit").Printw("emitted", "syntax", e.syntax.Name(), "functions", len(p.Functions),
		"data", len(p.Data), "bytes", b.Len())
	return b.String(), nil
}

type section struct {
	directive string
	areas     []*mir.GlobalDataArea
}

func (e *Emitter) writeData(b *strings.Builder, data []*mir.GlobalDataArea) {
	sections := []*section{{directive: ".data"}, {directive: ".bss"}, {directive: ".section .rodata"}}
	for _, g := range data {
		switch {
		case g.Const:
			sections[2].areas = append(sections[2].areas, g)
		case g.IsInitialized():
			sections[0].areas = append(sections[0].areas, g)
		default:
			sections[1].areas = append(sections[1].areas, g)
		}
	}
	for _, s := range sections {
		if len(s.areas) == 0 {
			continue
		}
		fmt.Fprintf(b, "\t%s\n", s.directive)
		for _, g := range s.areas {
			if !g.Local {
				fmt.Fprintf(b, "\t.globl %s\n", g.Name)
			}
			if g.Align > 1 {
				fmt.Fprintf(b, "\t.align %d\n", g.Align)
			}
			fmt.Fprintf(b, "%s:\n", g.Name)
			for _, slot := range g.Slots {
				fmt.Fprintf(b, "\t%s\n", directive(slot))
			}
		}
	}
}

func (e *Emitter) writeFunction(b *strings.Builder, fn *mir.Function) error {
	if !fn.Local {
		fmt.Fprintf(b, "\t.globl %s\n", fn.Name)
	}
	for _, blk := range fn.Blocks {
		fmt.Fprintf(b, "%s:\n", BlockLabel(fn, blk))
		for _, i := range blk.Instrs {
			ops, ti, err := e.decode(fn, i)
			if err != nil {
				return errors.Annotate(err, "block", blk.Name)
			}
			fmt.Fprintf(b, "\t%s\n", e.syntax.Instruction(i, ti.Name, ops))
		}
	}
	return nil
}
