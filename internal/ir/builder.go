package ir

import "fmt"

// Builder creates instructions at an insertion point. Every result gets a
// name that is unique within the function, and terminators register the
// current block as a predecessor of their targets.
type Builder struct {
	fn    *Function
	block *BasicBlock
}

// NewBuilder returns a builder for fn with no insertion point.
func NewBuilder(fn *Function) *Builder { return &Builder{fn: fn} }

// Function returns the function being built.
func (b *Builder) Function() *Function { return b.fn }

// SetInsertPoint appends subsequent instructions to blk.
func (b *Builder) SetInsertPoint(blk *BasicBlock) { b.block = blk }

// Block returns the current insertion block.
func (b *Builder) Block() *BasicBlock { return b.block }

func (b *Builder) insert(i *Instruction, name string) *Instruction {
	if i.HasResult() {
		i.name = b.fn.UniqueName(name)
	}
	b.block.Append(i)
	return i
}

// Alloca reserves a stack slot of type t and yields its address.
func (b *Builder) Alloca(t *Type, name string) *Instruction {
	return b.insert(&Instruction{Op: OpAlloca, typ: PointerTo(t), AllocType: t}, name)
}

// Load reads the value behind ptr.
func (b *Builder) Load(ptr Value, name string) *Instruction {
	return b.insert(&Instruction{Op: OpLoad, typ: ptr.Type().Elem, Ops: []Value{ptr}}, name)
}

// LoadVolatile reads the value behind ptr and is never removed.
func (b *Builder) LoadVolatile(ptr Value, name string) *Instruction {
	i := b.Load(ptr, name)
	i.Volatile = true
	return i
}

// Store writes v to ptr.
func (b *Builder) Store(v, ptr Value) *Instruction {
	return b.insert(&Instruction{Op: OpStore, typ: VoidType(), Ops: []Value{v, ptr}}, "")
}

// StoreVolatile writes v to ptr as a volatile access.
func (b *Builder) StoreVolatile(v, ptr Value) *Instruction {
	i := b.Store(v, ptr)
	i.Volatile = true
	return i
}

// Binary creates a binary operation. Both operands must have the same type.
func (b *Builder) Binary(op BinaryOp, l, r Value, name string) *Instruction {
	return b.insert(&Instruction{Op: OpBinary, typ: l.Type(), BinOp: op, Ops: []Value{l, r}}, name)
}

func (b *Builder) Add(l, r Value, name string) *Instruction { return b.Binary(Add, l, r, name) }
func (b *Builder) Sub(l, r Value, name string) *Instruction { return b.Binary(Sub, l, r, name) }
func (b *Builder) Mul(l, r Value, name string) *Instruction { return b.Binary(Mul, l, r, name) }

// Compare creates a comparison yielding an i1.
func (b *Builder) Compare(pred ComparePred, l, r Value, name string) *Instruction {
	return b.insert(&Instruction{Op: OpCompare, typ: BoolType(), Pred: pred, Ops: []Value{l, r}}, name)
}

// Cast converts v to type to.
func (b *Builder) Cast(op CastOp, v Value, to *Type, name string) *Instruction {
	return b.insert(&Instruction{Op: OpCast, typ: to, CastOp: op, Ops: []Value{v}}, name)
}

// Member computes an address inside the object ptr points to. With deref set
// and a struct pointee, index selects a field and must be a constant. With an
// array pointee, index selects an element. Otherwise index steps over whole
// pointee objects.
func (b *Builder) Member(ptr, index Value, deref bool, name string) *Instruction {
	return b.insert(&Instruction{
		Op:    OpMember,
		typ:   MemberResultType(ptr.Type(), index, deref),
		Deref: deref,
		Ops:   []Value{ptr, index},
	}, name)
}

// MemberResultType returns the result of projecting index out of ptrType.
func MemberResultType(ptrType *Type, index Value, deref bool) *Type {
	pointee := ptrType.Elem
	switch {
	case pointee.IsArray():
		return PointerTo(pointee.Elem)
	case deref && pointee.IsStruct():
		c, ok := index.(*IntConstant)
		if !ok || c.Value < 0 || int(c.Value) >= len(pointee.Fields) {
			panic(fmt.Sprintf("ir: invalid field index %s into %s", index.Ref(), pointee))
		}
		return PointerTo(pointee.Fields[c.Value])
	}
	return ptrType
}

// Call invokes callee. The result type is the callee signature's return type.
func (b *Builder) Call(callee Value, args []Value, name string) *Instruction {
	sig := callee.Type()
	if sig.IsPointer() {
		sig = sig.Elem
	}
	ops := append([]Value{callee}, args...)
	return b.insert(&Instruction{Op: OpCall, typ: sig.Ret, Ops: ops}, name)
}

// MemCopy copies size bytes from src to dst.
func (b *Builder) MemCopy(dst, src Value, size int64) *Instruction {
	return b.insert(&Instruction{Op: OpMemCopy, typ: VoidType(), Ops: []Value{dst, src}, Size: size}, "")
}

// MemSet fills count bytes at dst with fill.
func (b *Builder) MemSet(dst Value, fill uint8, count int64) *Instruction {
	return b.insert(&Instruction{Op: OpMemSet, typ: VoidType(), Ops: []Value{dst}, Fill: fill, Size: count}, "")
}

// Phi creates a phi at the head of the current block with one empty argument
// per predecessor known so far.
func (b *Builder) Phi(t *Type, name string) *Instruction {
	return NewPhi(b.block, t, name)
}

// NewPhi inserts a phi into blk, one argument slot per predecessor.
func NewPhi(blk *BasicBlock, t *Type, name string) *Instruction {
	phi := &Instruction{Op: OpPhi, typ: t, name: blk.Parent.UniqueName(name)}
	for _, p := range blk.Preds {
		phi.Incoming = append(phi.Incoming, PhiArg{Block: p})
	}
	blk.InsertPhi(phi)
	return phi
}

// Br jumps unconditionally to target.
func (b *Builder) Br(target *BasicBlock) *Instruction {
	i := b.insert(&Instruction{Op: OpBranch, typ: VoidType(), True: target}, "")
	target.AddPred(b.block)
	return i
}

// CondBr branches on cond.
func (b *Builder) CondBr(cond Value, t, f *BasicBlock) *Instruction {
	i := b.insert(&Instruction{Op: OpBranch, typ: VoidType(), Ops: []Value{cond}, True: t, False: f}, "")
	t.AddPred(b.block)
	f.AddPred(b.block)
	return i
}

// Ret returns v, or nothing when v is nil.
func (b *Builder) Ret(v Value) *Instruction {
	i := &Instruction{Op: OpReturn, typ: VoidType()}
	if v != nil {
		i.Ops = []Value{v}
	}
	return b.insert(i, "")
}

// Switch dispatches on v.
func (b *Builder) Switch(v Value, def *BasicBlock, cases ...SwitchCase) *Instruction {
	i := b.insert(&Instruction{Op: OpSwitch, typ: VoidType(), Ops: []Value{v}, Default: def, Cases: cases}, "")
	def.AddPred(b.block)
	for _, c := range cases {
		c.Block.AddPred(b.block)
	}
	return i
}
