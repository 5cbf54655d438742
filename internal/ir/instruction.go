package ir

// Opcode selects the instruction variant.
type Opcode int

const (
	OpAlloca Opcode = iota
	OpLoad
	OpStore
	OpBinary
	OpCompare
	OpCast
	OpMember
	OpCall
	OpMemCopy
	OpMemSet
	OpPhi
	OpBranch
	OpReturn
	OpSwitch
)

func (op Opcode) String() string {
	switch op {
	case OpAlloca:
		return "alloca"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpBinary:
		return "binary"
	case OpCompare:
		return "compare"
	case OpCast:
		return "cast"
	case OpMember:
		return "member"
	case OpCall:
		return "call"
	case OpMemCopy:
		return "memcpy"
	case OpMemSet:
		return "memset"
	case OpPhi:
		return "phi"
	case OpBranch:
		return "br"
	case OpReturn:
		return "ret"
	case OpSwitch:
		return "switch"
	}
	return "unknown"
}

// BinaryOp enumerates binary arithmetic and bitwise operations.
type BinaryOp int

const (
	Mul BinaryOp = iota
	FMul
	SDiv
	UDiv
	FDiv
	SRem
	URem
	FRem
	Add
	FAdd
	Sub
	FSub
	Shl
	LShr
	AShr
	And
	Xor
	Or
)

var binaryOpNames = [...]string{
	Mul: "mul", FMul: "fmul",
	SDiv: "sdiv", UDiv: "udiv", FDiv: "fdiv",
	SRem: "srem", URem: "urem", FRem: "frem",
	Add: "add", FAdd: "fadd",
	Sub: "sub", FSub: "fsub",
	Shl: "shl", LShr: "lshr", AShr: "ashr",
	And: "and", Xor: "xor", Or: "or",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "unknown"
}

// IsFloat reports whether the operation works on float operands.
func (op BinaryOp) IsFloat() bool {
	switch op {
	case FMul, FDiv, FRem, FAdd, FSub:
		return true
	}
	return false
}

// IsCommutative reports whether operand order does not matter.
func (op BinaryOp) IsCommutative() bool {
	switch op {
	case Mul, FMul, Add, FAdd, And, Xor, Or:
		return true
	}
	return false
}

// ComparePred enumerates comparison predicates.
type ComparePred int

const (
	ULess ComparePred = iota
	UGreater
	ULessEq
	UGreaterEq
	SLess
	SGreater
	SLessEq
	SGreaterEq
	IEqual
	INotEqual
	FLess
	FGreater
	FLessEq
	FGreaterEq
	FEqual
	FNotEqual
)

var comparePredNames = [...]string{
	ULess: "icmp ult", UGreater: "icmp ugt", ULessEq: "icmp ule", UGreaterEq: "icmp uge",
	SLess: "icmp slt", SGreater: "icmp sgt", SLessEq: "icmp sle", SGreaterEq: "icmp sge",
	IEqual: "icmp eq", INotEqual: "icmp ne",
	FLess: "fcmp lt", FGreater: "fcmp gt", FLessEq: "fcmp le", FGreaterEq: "fcmp ge",
	FEqual: "fcmp eq", FNotEqual: "fcmp ne",
}

func (p ComparePred) String() string {
	if int(p) < len(comparePredNames) {
		return comparePredNames[p]
	}
	return "unknown"
}

// IsUnsigned reports whether the predicate compares unsigned integers.
func (p ComparePred) IsUnsigned() bool { return p <= UGreaterEq }

// IsFloat reports whether the predicate compares floats.
func (p ComparePred) IsFloat() bool { return p >= FLess }

// IsEquality reports whether the predicate tests (in)equality.
func (p ComparePred) IsEquality() bool {
	return p == IEqual || p == INotEqual || p == FEqual || p == FNotEqual
}

// Swapped returns the predicate that holds with operands exchanged.
func (p ComparePred) Swapped() ComparePred {
	switch p {
	case ULess:
		return UGreater
	case UGreater:
		return ULess
	case ULessEq:
		return UGreaterEq
	case UGreaterEq:
		return ULessEq
	case SLess:
		return SGreater
	case SGreater:
		return SLess
	case SLessEq:
		return SGreaterEq
	case SGreaterEq:
		return SLessEq
	case FLess:
		return FGreater
	case FGreater:
		return FLess
	case FLessEq:
		return FGreaterEq
	case FGreaterEq:
		return FLessEq
	}
	return p
}

// CastOp enumerates conversions.
type CastOp int

const (
	ITrunc CastOp = iota
	FTrunc
	ZExt
	SExt
	FExt
	FToUI
	FToSI
	UIToF
	SIToF
	PtrToI
	IToPtr
	Bitcast
)

var castOpNames = [...]string{
	ITrunc: "itrunc", FTrunc: "ftrunc",
	ZExt: "zext", SExt: "sext", FExt: "fext",
	FToUI: "ftoui", FToSI: "ftosi",
	UIToF: "uitof", SIToF: "sitof",
	PtrToI: "ptrtoi", IToPtr: "itoptr",
	Bitcast: "bitcast",
}

func (op CastOp) String() string {
	if int(op) < len(castOpNames) {
		return castOpNames[op]
	}
	return "unknown"
}

// PhiArg is one incoming (predecessor, value) pair of a phi.
type PhiArg struct {
	Block *BasicBlock
	Value Value
}

// SwitchCase maps a case constant to its destination.
type SwitchCase struct {
	Value *IntConstant
	Block *BasicBlock
}

// Instruction is a tagged variant over all IR instructions. Op selects which
// payload fields are meaningful.
type Instruction struct {
	Op     Opcode
	typ    *Type
	name   string
	Parent *BasicBlock

	// Ops holds the value operands in a fixed per-opcode order:
	//   Load [ptr], Store [value ptr], Binary/Compare [l r], Cast [from],
	//   Member [ptr index], Call [callee args...], MemCopy [dst src],
	//   MemSet [dst], Branch [cond]?, Return [value]?, Switch [value].
	Ops []Value

	AllocType *Type
	Volatile  bool
	BinOp     BinaryOp
	Pred      ComparePred
	CastOp    CastOp
	Deref     bool
	Size      int64
	Fill      uint8

	Incoming []PhiArg

	True    *BasicBlock
	False   *BasicBlock
	Default *BasicBlock
	Cases   []SwitchCase
}

func (i *Instruction) Type() *Type  { return i.typ }
func (i *Instruction) Name() string { return i.name }
func (i *Instruction) Ref() string  { return "%" + i.name }
func (*Instruction) isValue()       {}

// SetName renames the instruction without uniquing.
func (i *Instruction) SetName(name string) { i.name = name }

// HasResult reports whether the instruction defines a value.
func (i *Instruction) HasResult() bool {
	switch i.Op {
	case OpStore, OpMemCopy, OpMemSet, OpBranch, OpReturn, OpSwitch:
		return false
	case OpCall:
		return !i.typ.IsVoid()
	}
	return true
}

// IsTerminator reports whether the instruction ends a basic block.
func (i *Instruction) IsTerminator() bool {
	return i.Op == OpBranch || i.Op == OpReturn || i.Op == OpSwitch
}

// IsConditional reports whether a branch has a condition.
func (i *Instruction) IsConditional() bool {
	return i.Op == OpBranch && len(i.Ops) == 1
}

// Operand returns the i-th value operand.
func (i *Instruction) Operand(n int) Value { return i.Ops[n] }

// SetOperand replaces the n-th value operand.
func (i *Instruction) SetOperand(n int, v Value) { i.Ops[n] = v }

// Operands returns every value read by the instruction, phi arguments included.
func (i *Instruction) Operands() []Value {
	if i.Op != OpPhi {
		return i.Ops
	}
	vals := make([]Value, 0, len(i.Incoming))
	for _, arg := range i.Incoming {
		if arg.Value != nil {
			vals = append(vals, arg.Value)
		}
	}
	return vals
}

// ReplaceUses rewrites every operand equal to old, phi arguments included.
// It reports whether anything changed.
func (i *Instruction) ReplaceUses(old, repl Value) bool {
	changed := false
	for n, v := range i.Ops {
		if v == old {
			i.Ops[n] = repl
			changed = true
		}
	}
	for n := range i.Incoming {
		if i.Incoming[n].Value == old {
			i.Incoming[n].Value = repl
			changed = true
		}
	}
	return changed
}

// Uses reports whether v is an operand of the instruction.
func (i *Instruction) Uses(v Value) bool {
	for _, op := range i.Ops {
		if op == v {
			return true
		}
	}
	for _, arg := range i.Incoming {
		if arg.Value == v {
			return true
		}
	}
	return false
}

// Successors returns the blocks a terminator transfers control to.
func (i *Instruction) Successors() []*BasicBlock {
	switch i.Op {
	case OpBranch:
		if i.False != nil {
			return []*BasicBlock{i.True, i.False}
		}
		return []*BasicBlock{i.True}
	case OpSwitch:
		succs := []*BasicBlock{i.Default}
		for _, c := range i.Cases {
			succs = append(succs, c.Block)
		}
		return succs
	}
	return nil
}

// ReplaceSuccessor retargets every edge to old so it reaches repl instead.
func (i *Instruction) ReplaceSuccessor(old, repl *BasicBlock) {
	switch i.Op {
	case OpBranch:
		if i.True == old {
			i.True = repl
		}
		if i.False == old {
			i.False = repl
		}
	case OpSwitch:
		if i.Default == old {
			i.Default = repl
		}
		for n := range i.Cases {
			if i.Cases[n].Block == old {
				i.Cases[n].Block = repl
			}
		}
	}
}

// MakeJump turns the terminator into an unconditional branch to target.
func (i *Instruction) MakeJump(target *BasicBlock) {
	i.Op = OpBranch
	i.Ops = nil
	i.True = target
	i.False = nil
	i.Default = nil
	i.Cases = nil
}

// IncomingFor returns the phi argument supplied by pred.
func (i *Instruction) IncomingFor(pred *BasicBlock) (Value, bool) {
	for _, arg := range i.Incoming {
		if arg.Block == pred {
			return arg.Value, true
		}
	}
	return nil, false
}

// SetIncoming sets the argument for pred, by identity. It reports whether
// pred was found.
func (i *Instruction) SetIncoming(pred *BasicBlock, v Value) bool {
	for n := range i.Incoming {
		if i.Incoming[n].Block == pred {
			i.Incoming[n].Value = v
			return true
		}
	}
	return false
}

// RemoveIncoming drops the argument supplied by pred.
func (i *Instruction) RemoveIncoming(pred *BasicBlock) {
	for n := range i.Incoming {
		if i.Incoming[n].Block == pred {
			i.Incoming = append(i.Incoming[:n], i.Incoming[n+1:]...)
			return
		}
	}
}

// Callee returns the called value of a call instruction.
func (i *Instruction) Callee() Value { return i.Ops[0] }

// Args returns the arguments of a call instruction.
func (i *Instruction) Args() []Value { return i.Ops[1:] }

// EraseFromParent unlinks the instruction from its block.
func (i *Instruction) EraseFromParent() {
	if i.Parent != nil {
		i.Parent.Remove(i)
	}
}
