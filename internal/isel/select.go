package isel

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// Select replaces the generic instructions of fn with target instructions.
func Select(fn *mir.Function, m target.Machine) error {
	g := BuildGraph(fn)
	for _, bt := range g.Blocks {
		for _, t := range bt.Trees {
			if err := m.Select(t); err != nil {
				return errors.Annotate(errors.Annotate(err, "function", fn.Name), "block", bt.Block.Name)
			}
		}
	}
	for _, bt := range g.Blocks {
		b := bt.Block
		b.Instrs = nil
		for _, t := range bt.Trees {
			b.Append(t.Generate()...)
		}
	}
	if tlog.If("isel") {
		trees := 0
		for _, bt := range g.Blocks {
			trees += len(bt.Trees)
		}
		tlog.Printw("selected", "func", fn.Name, "trees", trees)
	}
	return nil
}

// SelectProgram runs Select over every function of p.
func SelectProgram(p *mir.Program, m target.Machine) error {
	for _, fn := range p.Functions {
		if err := Select(fn, m); err != nil {
			return err
		}
	}
	return nil
}

// SelectInstruction selects a single generic instruction built by a later
// pass for block b. Nothing is folded.
func SelectInstruction(m target.Machine, b *mir.BasicBlock, i *mir.Instruction) ([]*mir.Instruction, error) {
	if i.Code != 0 {
		return []*mir.Instruction{i}, nil
	}
	i.Block = b
	t := &target.SelectionTree{Root: target.NewSelectionNode(i, b)}
	if err := m.Select(t); err != nil {
		return nil, err
	}
	out := t.Generate()
	for _, o := range out {
		o.Block = b
	}
	return out, nil
}
