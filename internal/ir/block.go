package ir

// BasicBlock is an ordered instruction sequence. Phis always precede the
// other instructions and a well-formed block ends with exactly one terminator.
type BasicBlock struct {
	name   string
	ID     int
	Parent *Function

	Instrs []*Instruction
	// Preds is maintained explicitly by whoever rewires edges.
	Preds []*BasicBlock
}

func (b *BasicBlock) Name() string { return b.name }

// SetName renames the block without uniquing.
func (b *BasicBlock) SetName(name string) { b.name = name }

func (b *BasicBlock) String() string { return b.name }

// Terminator returns the last instruction if it is a terminator.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.IsTerminator() {
		return nil
	}
	return last
}

// Successors returns the blocks reached by the terminator.
func (b *BasicBlock) Successors() []*BasicBlock {
	if term := b.Terminator(); term != nil {
		return term.Successors()
	}
	return nil
}

// Phis returns the leading phi instructions.
func (b *BasicBlock) Phis() []*Instruction {
	n := 0
	for n < len(b.Instrs) && b.Instrs[n].Op == OpPhi {
		n++
	}
	return b.Instrs[:n]
}

// HasPhis reports whether the block starts with a phi.
func (b *BasicBlock) HasPhis() bool {
	return len(b.Instrs) > 0 && b.Instrs[0].Op == OpPhi
}

// Append adds an instruction at the end of the block.
func (b *BasicBlock) Append(i *Instruction) {
	i.Parent = b
	b.Instrs = append(b.Instrs, i)
}

// InsertPhi adds a phi after the existing phis.
func (b *BasicBlock) InsertPhi(phi *Instruction) {
	phi.Parent = b
	n := len(b.Phis())
	b.Instrs = append(b.Instrs, nil)
	copy(b.Instrs[n+1:], b.Instrs[n:])
	b.Instrs[n] = phi
}

// InsertBefore inserts i in front of mark.
func (b *BasicBlock) InsertBefore(i, mark *Instruction) {
	i.Parent = b
	for n, cur := range b.Instrs {
		if cur == mark {
			b.Instrs = append(b.Instrs, nil)
			copy(b.Instrs[n+1:], b.Instrs[n:])
			b.Instrs[n] = i
			return
		}
	}
	b.Instrs = append(b.Instrs, i)
}

// Remove unlinks i from the block.
func (b *BasicBlock) Remove(i *Instruction) {
	for n, cur := range b.Instrs {
		if cur == i {
			b.Instrs = append(b.Instrs[:n], b.Instrs[n+1:]...)
			i.Parent = nil
			return
		}
	}
}

// PredIndex returns the position of pred in the predecessor list, or -1.
func (b *BasicBlock) PredIndex(pred *BasicBlock) int {
	for n, p := range b.Preds {
		if p == pred {
			return n
		}
	}
	return -1
}

// AddPred appends a predecessor.
func (b *BasicBlock) AddPred(pred *BasicBlock) {
	b.Preds = append(b.Preds, pred)
}

// RemovePred drops the first occurrence of pred and the matching phi arguments.
func (b *BasicBlock) RemovePred(pred *BasicBlock) {
	n := b.PredIndex(pred)
	if n < 0 {
		return
	}
	b.Preds = append(b.Preds[:n], b.Preds[n+1:]...)
	for _, phi := range b.Phis() {
		phi.RemoveIncoming(pred)
	}
}

// ReplacePred substitutes pred by repl in the predecessor list and in the
// phi arguments.
func (b *BasicBlock) ReplacePred(pred, repl *BasicBlock) {
	for n, p := range b.Preds {
		if p == pred {
			b.Preds[n] = repl
		}
	}
	for _, phi := range b.Phis() {
		for n := range phi.Incoming {
			if phi.Incoming[n].Block == pred {
				phi.Incoming[n].Block = repl
			}
		}
	}
}

// IsEntry reports whether b is its function's entry block.
func (b *BasicBlock) IsEntry() bool {
	return b.Parent != nil && len(b.Parent.Blocks) > 0 && b.Parent.Blocks[0] == b
}
