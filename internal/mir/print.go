package mir

import (
	"fmt"
	"strings"
)

// instructionNamer is optionally implemented by a RegisterNamer to render
// selected target instructions.
type instructionNamer interface {
	InstructionName(code int) string
}

// Format renders one instruction.
func (i *Instruction) Format(n RegisterNamer) string {
	var b strings.Builder
	start := 0
	if i.HasDef() {
		b.WriteString(i.Ops[0].Format(n))
		b.WriteString(" = ")
		start = 1
	}
	name := i.Op.String()
	if i.Op.IsCompare() {
		name += i.Cmp.String()
	}
	if in, ok := n.(instructionNamer); ok && i.Code != 0 {
		name = in.InstructionName(i.Code)
	}
	b.WriteString(name)
	for k, o := range i.Ops[start:] {
		if k == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(o.Format(n))
	}
	writeRegs(&b, " implicit-def", i.ImplicitDefs, n)
	writeRegs(&b, " implicit-use", i.ImplicitUses, n)
	return b.String()
}

func writeRegs(b *strings.Builder, label string, regs []int, n RegisterNamer) {
	if len(regs) == 0 {
		return
	}
	b.WriteString(label)
	for k, r := range regs {
		if k == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(",")
		}
		if n != nil {
			b.WriteString(n.RegisterName(r))
		} else {
			fmt.Fprintf(b, "r%d", r)
		}
	}
}

func (i *Instruction) String() string { return i.Format(nil) }

// Format renders the function with its frame layout.
func (f *Function) Format(n RegisterNamer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "function @%s(", f.Name)
	for k, p := range f.Params {
		if k > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %%v%d", p.Type, p.Reg)
		if p.StructPtr {
			b.WriteString(" structptr")
		}
	}
	b.WriteString(")")
	if f.Local {
		b.WriteString(" local")
	}
	b.WriteString(" {\n")

	fmt.Fprintf(&b, "  ; frame size=%d saved=%d", f.Locals.Size, f.Locals.CalleeSaved)
	if len(f.SavedRegs) > 0 {
		writeRegs(&b, " regs", f.SavedRegs, n)
	}
	b.WriteString("\n")
	for _, s := range f.Locals.Slots {
		if s.Fixed {
			fmt.Fprintf(&b, "  ;   stack.%d size=%d incoming+%d\n", s.Key, s.Size, s.ArgOffset)
			continue
		}
		fmt.Fprintf(&b, "  ;   stack.%d size=%d align=%d offset=%d\n", s.Key, s.Size, s.Align, s.Offset)
	}

	for _, blk := range f.Blocks {
		fmt.Fprintf(&b, "%s:", blk.Name)
		if len(blk.Preds) > 0 {
			names := make([]string, len(blk.Preds))
			for k, p := range blk.Preds {
				names[k] = "%" + p.Name
			}
			fmt.Fprintf(&b, " ; preds = %s", strings.Join(names, ", "))
		}
		b.WriteString("\n")
		for _, i := range blk.Instrs {
			b.WriteString("  ")
			b.WriteString(i.Format(n))
			b.WriteString("\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func (f *Function) String() string { return f.Format(nil) }

// Format renders a data area.
func (g *GlobalDataArea) Format() string {
	var b strings.Builder
	kind := "global"
	if g.Const {
		kind = "constant"
	}
	fmt.Fprintf(&b, "@%s = %s", g.Name, kind)
	if g.Local {
		b.WriteString(" local")
	}
	fmt.Fprintf(&b, " size=%d align=%d {", g.Size, g.Align)
	for k, s := range g.Slots {
		if k > 0 {
			b.WriteString(",")
		}
		b.WriteString(" ")
		switch s.Kind {
		case DataZero:
			fmt.Fprintf(&b, "zero %d", s.Value)
		case DataByte:
			fmt.Fprintf(&b, "byte %d", s.Value)
		case DataShort:
			fmt.Fprintf(&b, "short %d", s.Value)
		case DataLong:
			fmt.Fprintf(&b, "long %d", s.Value)
		case DataQuad:
			fmt.Fprintf(&b, "quad %d", s.Value)
		case DataASCII:
			fmt.Fprintf(&b, "ascii %q", s.Bytes)
		case DataASCIZ:
			fmt.Fprintf(&b, "asciz %q", s.Bytes)
		case DataLabel:
			fmt.Fprintf(&b, "quad @%s", s.Symbol)
		}
	}
	b.WriteString(" }\n")
	return b.String()
}

// Format renders the whole program.
func (p *Program) Format(n RegisterNamer) string {
	var b strings.Builder
	for _, d := range p.Data {
		b.WriteString(d.Format())
	}
	for _, f := range p.Functions {
		b.WriteString("\n")
		b.WriteString(f.Format(n))
	}
	return b.String()
}

func (p *Program) String() string { return p.Format(nil) }
