package ir

import (
	"fmt"
	"strconv"
	"strings"
)

func typedRef(v Value) string {
	if v == nil {
		return "<null>"
	}
	return v.Type().String() + " " + v.Ref()
}

func (i *Instruction) String() string {
	var b strings.Builder
	if i.HasResult() {
		b.WriteString(i.Ref())
		b.WriteString(" = ")
	}
	switch i.Op {
	case OpAlloca:
		fmt.Fprintf(&b, "alloca %s", i.AllocType)
	case OpLoad:
		b.WriteString("load ")
		if i.Volatile {
			b.WriteString("volatile ")
		}
		fmt.Fprintf(&b, "%s, %s", i.typ, typedRef(i.Ops[0]))
	case OpStore:
		b.WriteString("store ")
		if i.Volatile {
			b.WriteString("volatile ")
		}
		fmt.Fprintf(&b, "%s, %s", typedRef(i.Ops[0]), typedRef(i.Ops[1]))
	case OpBinary:
		fmt.Fprintf(&b, "%s %s %s, %s", i.BinOp, i.typ, i.Ops[0].Ref(), i.Ops[1].Ref())
	case OpCompare:
		fmt.Fprintf(&b, "%s %s %s, %s", i.Pred, i.Ops[0].Type(), i.Ops[0].Ref(), i.Ops[1].Ref())
	case OpCast:
		fmt.Fprintf(&b, "%s %s to %s", i.CastOp, typedRef(i.Ops[0]), i.typ)
	case OpMember:
		b.WriteString("member ")
		if i.Deref {
			b.WriteString("deref ")
		}
		fmt.Fprintf(&b, "%s, %s", typedRef(i.Ops[0]), typedRef(i.Ops[1]))
	case OpCall:
		fmt.Fprintf(&b, "call %s %s(", i.typ, i.Ops[0].Ref())
		for n, a := range i.Args() {
			if n > 0 {
				b.WriteString(", ")
			}
			b.WriteString(typedRef(a))
		}
		b.WriteString(")")
	case OpMemCopy:
		fmt.Fprintf(&b, "memcpy %s, %s, %d", typedRef(i.Ops[0]), typedRef(i.Ops[1]), i.Size)
	case OpMemSet:
		fmt.Fprintf(&b, "memset %s, %d, %d", typedRef(i.Ops[0]), i.Fill, i.Size)
	case OpPhi:
		fmt.Fprintf(&b, "phi %s ", i.typ)
		for n, arg := range i.Incoming {
			if n > 0 {
				b.WriteString(", ")
			}
			val := "undef"
			if arg.Value != nil {
				val = arg.Value.Ref()
			}
			fmt.Fprintf(&b, "[ %s, %%%s ]", val, arg.Block.Name())
		}
	case OpBranch:
		if i.IsConditional() {
			fmt.Fprintf(&b, "br %s, label %%%s, label %%%s", typedRef(i.Ops[0]), i.True.Name(), i.False.Name())
		} else {
			fmt.Fprintf(&b, "br label %%%s", i.True.Name())
		}
	case OpReturn:
		if len(i.Ops) == 0 {
			b.WriteString("ret void")
		} else {
			fmt.Fprintf(&b, "ret %s", typedRef(i.Ops[0]))
		}
	case OpSwitch:
		fmt.Fprintf(&b, "switch %s, label %%%s [", typedRef(i.Ops[0]), i.Default.Name())
		for _, c := range i.Cases {
			fmt.Fprintf(&b, " %s, label %%%s", typedRef(c.Value), c.Block.Name())
		}
		b.WriteString(" ]")
	}
	return b.String()
}

func (g *GlobalVariable) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s = ", g.name)
	if g.Linkage == InternalLinkage {
		b.WriteString("internal ")
	}
	if g.Const {
		b.WriteString("constant ")
	} else {
		b.WriteString("global ")
	}
	b.WriteString(g.ValueType.String())
	switch g.Init {
	case InitScalar:
		b.WriteString(" ")
		b.WriteString(g.InitValue.Ref())
	case InitList:
		b.WriteString(" [")
		for n, v := range g.InitList {
			if n > 0 {
				b.WriteString(",")
			}
			b.WriteString(" ")
			b.WriteString(typedRef(v))
		}
		b.WriteString(" ]")
	case InitString:
		b.WriteString(" c")
		b.WriteString(strconv.Quote(g.InitString))
	case InitGlobal:
		b.WriteString(" ")
		b.WriteString(g.InitRef.Ref())
	}
	return b.String()
}

func (f *Function) header() string {
	var b strings.Builder
	if f.IsDeclaration() {
		b.WriteString("declare ")
	} else {
		b.WriteString("define ")
	}
	if f.Linkage == InternalLinkage {
		b.WriteString("internal ")
	}
	if f.Inline {
		b.WriteString("inline ")
	}
	fmt.Fprintf(&b, "%s @%s(", f.typ.Ret, f.name)
	for n, p := range f.Params {
		if n > 0 {
			b.WriteString(", ")
		}
		if f.IsDeclaration() {
			b.WriteString(p.typ.String())
		} else {
			b.WriteString(p.String())
		}
	}
	if f.typ.Variadic {
		if len(f.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
	}
	b.WriteString(")")
	return b.String()
}

func (f *Function) String() string {
	if f.IsDeclaration() {
		return f.header() + "\n"
	}
	var b strings.Builder
	b.WriteString(f.header())
	b.WriteString(" {\n")
	for _, blk := range f.Blocks {
		fmt.Fprintf(&b, "%s:\n", blk.name)
		for _, i := range blk.Instrs {
			fmt.Fprintf(&b, "  %s\n", i)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func (p *Program) String() string {
	var b strings.Builder
	for _, t := range p.Structs {
		fmt.Fprintf(&b, "%%%s = type %s\n", t.Name, t.Body())
	}
	if len(p.Structs) > 0 {
		b.WriteString("\n")
	}
	for _, g := range p.Globals {
		b.WriteString(g.String())
		b.WriteString("\n")
	}
	if len(p.Globals) > 0 {
		b.WriteString("\n")
	}
	for n, f := range p.Functions {
		if n > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.String())
	}
	return b.String()
}
