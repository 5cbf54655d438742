package opt

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/ir"
)

// Clean simplifies the control flow graph of fn until nothing changes, then
// drops blocks unreachable from the entry. It reports whether fn changed.
func Clean(fn *ir.Function) bool {
	if fn.IsDeclaration() {
		return false
	}
	changed := false
	for rounds := 0; ; rounds++ {
		if !cleanOnce(fn) {
			tlog.V("clean").Printw("cfg clean", "func", fn.Name(), "rounds", rounds, "blocks", len(fn.Blocks))
			break
		}
		changed = true
	}
	if removeUnreachable(fn) {
		changed = true
	}
	return changed
}

func cleanOnce(fn *ir.Function) bool {
	changed := false
	for _, b := range reversePostorder(fn) {
		if b.Parent == nil {
			continue
		}
		term := b.Terminator()
		if term == nil || term.Op != ir.OpBranch {
			continue
		}
		if term.IsConditional() {
			changed = foldRedundantBranch(b, term) || changed
			continue
		}
		succ := term.True
		switch {
		case succ == b:
		case isEmpty(b) && removeEmptyBlock(fn, b, succ):
			changed = true
		case len(succ.Preds) == 1 && !succ.IsEntry():
			changed = combineBlocks(fn, b, succ) || changed
		case isEmpty(succ) && succ.Terminator().IsConditional():
			changed = hoistBranch(b, succ) || changed
		}
	}
	return changed
}

// isEmpty reports whether b holds nothing but its terminator.
func isEmpty(b *ir.BasicBlock) bool {
	return len(b.Instrs) == 1 && b.Instrs[0].IsTerminator()
}

// foldRedundantBranch turns a conditional branch with equal targets into a
// jump.
func foldRedundantBranch(b *ir.BasicBlock, br *ir.Instruction) bool {
	if br.True != br.False {
		return false
	}
	target := br.True
	br.MakeJump(target)
	target.RemovePred(b)
	return true
}

// removeEmptyBlock redirects every predecessor of the jump-only block b to
// its successor.
func removeEmptyBlock(fn *ir.Function, b, succ *ir.BasicBlock) bool {
	if succ.HasPhis() {
		return false
	}
	if b.IsEntry() {
		if len(succ.Preds) != 1 {
			return false
		}
		succ.RemovePred(b)
		fn.RemoveBlock(b)
		setEntry(fn, succ)
		return true
	}
	for _, p := range append([]*ir.BasicBlock(nil), b.Preds...) {
		p.Terminator().ReplaceSuccessor(b, succ)
		succ.AddPred(p)
	}
	succ.RemovePred(b)
	b.Preds = nil
	fn.RemoveBlock(b)
	return true
}

// combineBlocks merges succ, whose only predecessor is b, into b.
func combineBlocks(fn *ir.Function, b, succ *ir.BasicBlock) bool {
	for _, phi := range succ.Phis() {
		fn.ReplaceAllUsesWith(phi, phi.Incoming[0].Value)
		phi.EraseFromParent()
	}
	b.Terminator().EraseFromParent()
	for _, i := range append([]*ir.Instruction(nil), succ.Instrs...) {
		succ.Remove(i)
		b.Append(i)
	}
	for _, s := range b.Successors() {
		s.ReplacePred(succ, b)
	}
	fn.RemoveBlock(succ)
	return true
}

// hoistBranch copies the conditional branch of the empty block succ into b,
// which jumped to it.
func hoistBranch(b, succ *ir.BasicBlock) bool {
	br := succ.Terminator()
	jump := b.Terminator()
	jump.Ops = []ir.Value{br.Ops[0]}
	jump.True, jump.False = br.True, br.False
	succ.RemovePred(b)
	for _, s := range []*ir.BasicBlock{br.True, br.False} {
		for _, phi := range s.Phis() {
			v, _ := phi.IncomingFor(succ)
			phi.Incoming = append(phi.Incoming, ir.PhiArg{Block: b, Value: v})
		}
		s.AddPred(b)
	}
	return true
}

// setEntry moves b to the front of the block list.
func setEntry(fn *ir.Function, b *ir.BasicBlock) {
	for n, cur := range fn.Blocks {
		if cur == b {
			copy(fn.Blocks[1:n+1], fn.Blocks[:n])
			fn.Blocks[0] = b
			return
		}
	}
}

// removeUnreachable deletes blocks not reachable from the entry and detaches
// them from the predecessor lists and phis of the survivors.
func removeUnreachable(fn *ir.Function) bool {
	reached := make(map[*ir.BasicBlock]bool)
	work := []*ir.BasicBlock{fn.Entry()}
	reached[fn.Entry()] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range b.Successors() {
			if !reached[s] {
				reached[s] = true
				work = append(work, s)
			}
		}
	}
	if len(reached) == len(fn.Blocks) {
		return false
	}
	for _, b := range append([]*ir.BasicBlock(nil), fn.Blocks...) {
		if !reached[b] {
			for _, s := range b.Successors() {
				s.RemovePred(b)
			}
			fn.RemoveBlock(b)
		}
	}
	return true
}

func reversePostorder(fn *ir.Function) []*ir.BasicBlock {
	visited := make(map[*ir.BasicBlock]bool)
	var post []*ir.BasicBlock
	var dfs func(*ir.BasicBlock)
	dfs = func(b *ir.BasicBlock) {
		visited[b] = true
		for _, s := range b.Successors() {
			if !visited[s] {
				dfs(s)
			}
		}
		post = append(post, b)
	}
	dfs(fn.Entry())
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
