// Package domtree computes dominator trees and dominance frontiers of IR
// functions, over the forward CFG or over the reverse CFG (post-dominance).
// Trees are immutable snapshots; rebuild after changing the CFG.
package domtree

import "github.com/orizon-lang/ancl/internal/ir"

const none = -1

// Tree answers dominance queries for one function.
type Tree struct {
	blocks []*ir.BasicBlock
	index  map[*ir.BasicBlock]int
	root   int

	idom     []int
	children [][]int
	frontier [][]int
	preorder []int
	enter    []int
	leave    []int
}

// New builds the dominator tree of fn rooted at its entry block.
func New(fn *ir.Function) *Tree {
	t := newTree(fn, false)
	succ := func(n int) []int { return t.indices(t.blocks[n].Successors()) }
	pred := func(n int) []int { return t.indices(t.blocks[n].Preds) }
	t.build(succ, pred)
	return t
}

// NewReverse builds the post-dominator tree of fn: the dominator tree of the
// reverse CFG rooted at a virtual exit node that succeeds every block without
// successors. Blocks that cannot reach an exit are not part of the tree.
func NewReverse(fn *ir.Function) *Tree {
	t := newTree(fn, true)
	exit := t.root
	var exits []int
	for n, b := range t.blocks[:exit] {
		if len(b.Successors()) == 0 {
			exits = append(exits, n)
		}
	}
	succ := func(n int) []int {
		if n == exit {
			return exits
		}
		return t.indices(t.blocks[n].Preds)
	}
	pred := func(n int) []int {
		if n == exit {
			return nil
		}
		succs := t.indices(t.blocks[n].Successors())
		if len(succs) == 0 {
			succs = append(succs, exit)
		}
		return succs
	}
	t.build(succ, pred)
	return t
}

func newTree(fn *ir.Function, reverse bool) *Tree {
	t := &Tree{index: make(map[*ir.BasicBlock]int, len(fn.Blocks))}
	t.blocks = append(t.blocks, fn.Blocks...)
	for n, b := range t.blocks {
		t.index[b] = n
	}
	if reverse {
		t.root = len(t.blocks)
		t.blocks = append(t.blocks, nil)
	}
	return t
}

func (t *Tree) indices(bs []*ir.BasicBlock) []int {
	out := make([]int, 0, len(bs))
	for _, b := range bs {
		if n, ok := t.index[b]; ok {
			out = append(out, n)
		}
	}
	return out
}

// build runs the iterative algorithm of Cooper, Harvey and Kennedy over the
// reverse postorder, then derives children, frontiers and preorder.
func (t *Tree) build(succ, pred func(int) []int) {
	size := len(t.blocks)
	order := make([]int, size)
	for n := range order {
		order[n] = none
	}

	var rpo []int
	visited := make([]bool, size)
	var dfs func(int)
	dfs = func(n int) {
		visited[n] = true
		for _, s := range succ(n) {
			if !visited[s] {
				dfs(s)
			}
		}
		rpo = append(rpo, n)
	}
	dfs(t.root)
	for i, j := 0, len(rpo)-1; i < j; i, j = i+1, j-1 {
		rpo[i], rpo[j] = rpo[j], rpo[i]
	}
	for pos, n := range rpo {
		order[n] = pos
	}

	t.idom = make([]int, size)
	for n := range t.idom {
		t.idom[n] = none
	}
	t.idom[t.root] = t.root

	intersect := func(a, b int) int {
		for a != b {
			for order[a] > order[b] {
				a = t.idom[a]
			}
			for order[b] > order[a] {
				b = t.idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, n := range rpo[1:] {
			newIdom := none
			for _, p := range pred(n) {
				if order[p] == none || t.idom[p] == none {
					continue
				}
				if newIdom == none {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != none && t.idom[n] != newIdom {
				t.idom[n] = newIdom
				changed = true
			}
		}
	}

	t.children = make([][]int, size)
	for _, n := range rpo[1:] {
		if d := t.idom[n]; d != none {
			t.children[d] = append(t.children[d], n)
		}
	}
	t.idom[t.root] = none

	t.frontier = make([][]int, size)
	for _, n := range rpo {
		preds := pred(n)
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			if order[p] == none {
				continue
			}
			for runner := p; runner != none && runner != t.idom[n]; runner = t.idom[runner] {
				t.addFrontier(runner, n)
			}
		}
	}

	t.enter = make([]int, size)
	t.leave = make([]int, size)
	for n := range t.enter {
		t.enter[n], t.leave[n] = none, none
	}
	clock := 0
	var walk func(int)
	walk = func(n int) {
		t.enter[n] = clock
		clock++
		t.preorder = append(t.preorder, n)
		for _, c := range t.children[n] {
			walk(c)
		}
		t.leave[n] = clock
		clock++
	}
	walk(t.root)
}

func (t *Tree) addFrontier(n, f int) {
	for _, x := range t.frontier[n] {
		if x == f {
			return
		}
	}
	t.frontier[n] = append(t.frontier[n], f)
}

func (t *Tree) node(b *ir.BasicBlock) (int, bool) {
	n, ok := t.index[b]
	return n, ok
}

func (t *Tree) toBlocks(ns []int) []*ir.BasicBlock {
	out := make([]*ir.BasicBlock, 0, len(ns))
	for _, n := range ns {
		if b := t.blocks[n]; b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Reachable reports whether b is part of the tree.
func (t *Tree) Reachable(b *ir.BasicBlock) bool {
	n, ok := t.node(b)
	return ok && t.enter[n] != none
}

// IDom returns the immediate dominator of b, or nil for the root, for
// unreachable blocks and for blocks immediately post-dominated by the
// virtual exit.
func (t *Tree) IDom(b *ir.BasicBlock) *ir.BasicBlock {
	n, ok := t.node(b)
	if !ok || t.idom[n] == none {
		return nil
	}
	return t.blocks[t.idom[n]]
}

// Dominates reports whether a dominates b. Every reachable block dominates
// itself.
func (t *Tree) Dominates(a, b *ir.BasicBlock) bool {
	na, okA := t.node(a)
	nb, okB := t.node(b)
	if !okA || !okB || t.enter[na] == none || t.enter[nb] == none {
		return false
	}
	return t.enter[na] <= t.enter[nb] && t.leave[nb] <= t.leave[na]
}

// StrictlyDominates reports whether a dominates b and a != b.
func (t *Tree) StrictlyDominates(a, b *ir.BasicBlock) bool {
	return a != b && t.Dominates(a, b)
}

// Children returns the blocks immediately dominated by b.
func (t *Tree) Children(b *ir.BasicBlock) []*ir.BasicBlock {
	n, ok := t.node(b)
	if !ok {
		return nil
	}
	return t.toBlocks(t.children[n])
}

// Roots returns the top-level blocks: the entry for a forward tree, the
// blocks immediately post-dominated by the virtual exit for a reverse one.
func (t *Tree) Roots() []*ir.BasicBlock {
	if t.blocks[t.root] != nil {
		return []*ir.BasicBlock{t.blocks[t.root]}
	}
	return t.toBlocks(t.children[t.root])
}

// Preorder returns the reachable blocks in dominator-tree preorder.
func (t *Tree) Preorder() []*ir.BasicBlock { return t.toBlocks(t.preorder) }

// Frontier returns the dominance frontier of b.
func (t *Tree) Frontier(b *ir.BasicBlock) []*ir.BasicBlock {
	n, ok := t.node(b)
	if !ok {
		return nil
	}
	return t.toBlocks(t.frontier[n])
}

// IteratedFrontier returns the closure of the dominance frontier over the
// given set of blocks, in discovery order.
func (t *Tree) IteratedFrontier(defs []*ir.BasicBlock) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	inResult := make(map[*ir.BasicBlock]bool)
	queued := make(map[*ir.BasicBlock]bool)
	work := append([]*ir.BasicBlock(nil), defs...)
	for _, b := range defs {
		queued[b] = true
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, f := range t.Frontier(b) {
			if inResult[f] {
				continue
			}
			inResult[f] = true
			out = append(out, f)
			if !queued[f] {
				queued[f] = true
				work = append(work, f)
			}
		}
	}
	return out
}
