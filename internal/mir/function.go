package mir

import "strconv"

// BasicBlock is an ordered instruction list with explicit edges.
type BasicBlock struct {
	Name   string
	Func   *Function
	Instrs []*Instruction
	Preds  []*BasicBlock
	Succs  []*BasicBlock
}

// Append adds instructions at the end of the block.
func (b *BasicBlock) Append(instrs ...*Instruction) {
	for _, i := range instrs {
		i.Block = b
	}
	b.Instrs = append(b.Instrs, instrs...)
}

// InsertAt inserts instructions before position pos.
func (b *BasicBlock) InsertAt(pos int, instrs ...*Instruction) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(b.Instrs) {
		pos = len(b.Instrs)
	}
	for _, i := range instrs {
		i.Block = b
	}
	tail := append(append([]*Instruction(nil), instrs...), b.Instrs[pos:]...)
	b.Instrs = append(b.Instrs[:pos], tail...)
}

// Prepend inserts instructions at the start of the block.
func (b *BasicBlock) Prepend(instrs ...*Instruction) { b.InsertAt(0, instrs...) }

// InsertBefore inserts instructions before mark, or at the end when mark is
// not in the block.
func (b *BasicBlock) InsertBefore(mark *Instruction, instrs ...*Instruction) {
	b.InsertAt(b.IndexOf(mark), instrs...)
}

// InsertAfter inserts instructions after mark.
func (b *BasicBlock) InsertAfter(mark *Instruction, instrs ...*Instruction) {
	pos := b.IndexOf(mark)
	if pos < len(b.Instrs) {
		pos++
	}
	b.InsertAt(pos, instrs...)
}

// IndexOf returns the position of i, or len(Instrs) when absent.
func (b *BasicBlock) IndexOf(i *Instruction) int {
	for n, x := range b.Instrs {
		if x == i {
			return n
		}
	}
	return len(b.Instrs)
}

// Remove deletes i from the block.
func (b *BasicBlock) Remove(i *Instruction) {
	if n := b.IndexOf(i); n < len(b.Instrs) {
		b.Instrs = append(b.Instrs[:n], b.Instrs[n+1:]...)
		i.Block = nil
	}
}

// TerminatorIndex returns the position of the first terminator, the point
// before which copies leaving the block must go. It is len(Instrs) when the
// block has no terminator yet.
func (b *BasicBlock) TerminatorIndex() int {
	for n, i := range b.Instrs {
		if i.IsTerminator() {
			return n
		}
	}
	return len(b.Instrs)
}

// PredIndex returns the position of p among the predecessors, or -1.
func (b *BasicBlock) PredIndex(p *BasicBlock) int {
	for n, x := range b.Preds {
		if x == p {
			return n
		}
	}
	return -1
}

// AddEdge links b to succ in both directions.
func (b *BasicBlock) AddEdge(succ *BasicBlock) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// Phis returns the leading phi instructions.
func (b *BasicBlock) Phis() []*Instruction {
	var phis []*Instruction
	for _, i := range b.Instrs {
		if i.Op != OpPhi {
			break
		}
		phis = append(phis, i)
	}
	return phis
}

// Param is an incoming function parameter after lowering.
type Param struct {
	Reg       int
	Type      Type
	StructPtr bool
}

// Function is a lowered function.
type Function struct {
	Name   string
	Params []Param
	Blocks []*BasicBlock
	Locals *LocalDataArea
	// Local marks internal linkage.
	Local bool
	// IsCaller is set when the body contains a call, so the red zone cannot
	// replace a stack adjustment.
	IsCaller bool
	// SavedRegs lists the callee-saved registers the allocator used.
	SavedRegs []int
	// FrameSize is the stack adjustment made by the prologue, 0 when the
	// locals live in the red zone.
	FrameSize int64

	nextVReg int
}

// NewFunction creates an empty function. Virtual register ids start at 1.
func NewFunction(name string) *Function {
	return &Function{Name: name, Locals: NewLocalDataArea(), nextVReg: 1}
}

// NextVReg allocates a fresh virtual register id.
func (f *Function) NextVReg() int {
	id := f.nextVReg
	f.nextVReg++
	return id
}

// VRegCount is one past the highest virtual register id handed out.
func (f *Function) VRegCount() int { return f.nextVReg }

// NewBlock appends an empty block.
func (f *Function) NewBlock(name string) *BasicBlock {
	b := &BasicBlock{Name: name, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Entry returns the first block.
func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Last returns the last block.
func (f *Function) Last() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[len(f.Blocks)-1]
}

// Instructions calls fn for every instruction in block order. The callback
// must not add or remove instructions.
func (f *Function) Instructions(fn func(*Instruction)) {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			fn(i)
		}
	}
}

// Program is the lowered translation unit.
type Program struct {
	Functions []*Function
	Data      []*GlobalDataArea

	constCount int
}

// NextConstLabel returns a fresh local label for the constant pool.
func (p *Program) NextConstLabel() string {
	label := ".LCPI" + strconv.Itoa(p.constCount)
	p.constCount++
	return label
}

// Function finds a function by name.
func (p *Program) Function(name string) *Function {
	for _, f := range p.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// DataArea finds a data area by name.
func (p *Program) DataArea(name string) *GlobalDataArea {
	for _, d := range p.Data {
		if d.Name == name {
			return d
		}
	}
	return nil
}
