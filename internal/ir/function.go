package ir

import (
	"fmt"
	"strconv"
)

// Linkage controls symbol visibility.
type Linkage int

const (
	ExternalLinkage Linkage = iota
	InternalLinkage
)

func (l Linkage) String() string {
	if l == InternalLinkage {
		return "internal"
	}
	return "external"
}

// Function is a global function value. A function without blocks is a
// declaration.
type Function struct {
	name    string
	typ     *Type
	Linkage Linkage
	Inline  bool

	Params []*Parameter
	Blocks []*BasicBlock

	instrNames namer
	blockNames namer
	nextBlock  int
}

func (f *Function) Type() *Type  { return f.typ }
func (f *Function) Name() string { return f.name }
func (f *Function) Ref() string  { return "@" + f.name }
func (*Function) isValue()       {}

// Signature returns the function type.
func (f *Function) Signature() *Type { return f.typ }

// ReturnType returns the declared result type.
func (f *Function) ReturnType() *Type { return f.typ.Ret }

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// IsVariadic reports whether the function accepts extra arguments.
func (f *Function) IsVariadic() bool { return f.typ.Variadic }

// Entry returns the first block.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock creates and appends a block with a unique name.
func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{name: f.blockNames.unique(name), ID: f.nextBlock, Parent: f}
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

// UniqueName returns name, or a suffixed variant if it was already used by
// another instruction or parameter of the function.
func (f *Function) UniqueName(name string) string {
	return f.instrNames.unique(name)
}

// RemoveBlock unlinks b from the function. Edges must be fixed by the caller.
func (f *Function) RemoveBlock(b *BasicBlock) {
	for n, cur := range f.Blocks {
		if cur == b {
			f.Blocks = append(f.Blocks[:n], f.Blocks[n+1:]...)
			b.Parent = nil
			return
		}
	}
}

// ReturnValue returns the value of the single Return in the function. Functions
// with several returns, or a void return, report false.
func (f *Function) ReturnValue() (Value, bool) {
	var found *Instruction
	for _, b := range f.Blocks {
		if t := b.Terminator(); t != nil && t.Op == OpReturn {
			if found != nil {
				return nil, false
			}
			found = t
		}
	}
	if found == nil || len(found.Ops) == 0 {
		return nil, false
	}
	return found.Ops[0], true
}

// Instructions calls fn for every instruction in block order.
func (f *Function) Instructions(fn func(*Instruction)) {
	for _, b := range f.Blocks {
		for _, i := range append([]*Instruction(nil), b.Instrs...) {
			fn(i)
		}
	}
}

// ReplaceAllUsesWith rewrites every use of old inside the function.
func (f *Function) ReplaceAllUsesWith(old, repl Value) {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			i.ReplaceUses(old, repl)
		}
	}
}

// Users returns the instructions reading v.
func (f *Function) Users(v Value) []*Instruction {
	var users []*Instruction
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if i.Uses(v) {
				users = append(users, i)
			}
		}
	}
	return users
}

// Block returns the block with the given name.
func (f *Function) Block(name string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.name == name {
			return b
		}
	}
	return nil
}

// LinkPredecessors rebuilds every predecessor list from the terminators.
func (f *Function) LinkPredecessors() {
	for _, b := range f.Blocks {
		b.Preds = b.Preds[:0]
	}
	for _, b := range f.Blocks {
		for _, s := range b.Successors() {
			s.AddPred(b)
		}
	}
}

// namer hands out unique names. A name used for the n-th time is suffixed
// with a running number; the empty name yields numeric temporaries.
type namer struct {
	seen map[string]int
	tmp  int
}

func (n *namer) unique(name string) string {
	if n.seen == nil {
		n.seen = make(map[string]int)
	}
	if name == "" {
		for {
			name = strconv.Itoa(n.tmp)
			n.tmp++
			if _, used := n.seen[name]; !used {
				n.seen[name] = 1
				return name
			}
		}
	}
	count, used := n.seen[name]
	if !used {
		n.seen[name] = 1
		return name
	}
	for {
		candidate := fmt.Sprintf("%s.%d", name, count)
		count++
		if _, taken := n.seen[candidate]; !taken {
			n.seen[name] = count
			n.seen[candidate] = 1
			return candidate
		}
	}
}

// InitKind tells how a global variable is initialized.
type InitKind int

const (
	InitNone InitKind = iota
	InitScalar
	InitList
	InitString
	InitGlobal
)

// GlobalVariable is a module-level variable. Its value type is ValueType and
// the variable itself is a pointer to it.
type GlobalVariable struct {
	name      string
	typ       *Type
	ValueType *Type
	Linkage   Linkage
	Const     bool

	Init       InitKind
	InitValue  Value
	InitList   []Value
	InitString string
	InitRef    *GlobalVariable
}

func (g *GlobalVariable) Type() *Type  { return g.typ }
func (g *GlobalVariable) Name() string { return g.name }
func (g *GlobalVariable) Ref() string  { return "@" + g.name }
func (*GlobalVariable) isValue()       {}

// SetScalarInit initializes the variable with a single constant.
func (g *GlobalVariable) SetScalarInit(v Value) {
	g.Init, g.InitValue = InitScalar, v
}

// SetListInit initializes an aggregate element by element.
func (g *GlobalVariable) SetListInit(vals ...Value) {
	g.Init, g.InitList = InitList, vals
}

// SetStringInit initializes a byte array with a string literal.
func (g *GlobalVariable) SetStringInit(s string) {
	g.Init, g.InitString = InitString, s
}

// SetGlobalInit initializes a pointer with the address of another global.
func (g *GlobalVariable) SetGlobalInit(ref *GlobalVariable) {
	g.Init, g.InitRef = InitGlobal, ref
}

// Program owns every global and function of one translation unit.
type Program struct {
	Globals   []*GlobalVariable
	Functions []*Function
	Structs   []*Type
}

// NewProgram creates an empty program.
func NewProgram() *Program { return &Program{} }

// NewGlobal adds a global variable of the given value type.
func (p *Program) NewGlobal(name string, valueType *Type, linkage Linkage, isConst bool) *GlobalVariable {
	g := &GlobalVariable{
		name:      name,
		typ:       PointerTo(valueType),
		ValueType: valueType,
		Linkage:   linkage,
		Const:     isConst,
	}
	p.Globals = append(p.Globals, g)
	return g
}

// NewFunction adds a function. Parameters are created from the signature and
// named from paramNames when given.
func (p *Program) NewFunction(name string, sig *Type, linkage Linkage, paramNames ...string) *Function {
	f := &Function{name: name, typ: sig, Linkage: linkage}
	for n, pt := range sig.Params {
		pname := ""
		if n < len(paramNames) {
			pname = paramNames[n]
		}
		f.Params = append(f.Params, &Parameter{
			typ:    pt,
			name:   f.instrNames.unique(pname),
			Index:  n,
			Parent: f,
		})
	}
	p.Functions = append(p.Functions, f)
	return f
}

// AddStruct registers a named struct type for printing.
func (p *Program) AddStruct(t *Type) *Type {
	p.Structs = append(p.Structs, t)
	return t
}

// Struct returns a registered named struct.
func (p *Program) Struct(name string) *Type {
	for _, t := range p.Structs {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Function returns the function with the given name.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.name == name {
			return f
		}
	}
	return nil
}

// Global returns the global variable with the given name.
func (p *Program) Global(name string) *GlobalVariable {
	for _, g := range p.Globals {
		if g.name == name {
			return g
		}
	}
	return nil
}
