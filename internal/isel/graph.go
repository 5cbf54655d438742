// Package isel builds selection trees over lowered MIR and drives a target's
// pattern matcher over them.
package isel

import (
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// BlockTrees holds the trees of one block in program order.
type BlockTrees struct {
	Block *mir.BasicBlock
	Trees []*target.SelectionTree
}

// Graph is the selection forest of a function.
type Graph struct {
	Blocks []*BlockTrees
}

// mergeable reports whether the result of i may be computed inside its
// single user's tree instead of where it is defined.
func mergeable(i *mir.Instruction) bool {
	switch i.Op {
	case mir.OpLoad, mir.OpStackAddress, mir.OpGlobalAddress, mir.OpMemberAddress,
		mir.OpCmp, mir.OpUCmp, mir.OpFCmp:
	default:
		return false
	}
	if len(i.ImplicitUses) > 0 || len(i.ImplicitDefs) > 0 {
		return false
	}
	for _, u := range i.Uses() {
		if u.IsPReg() {
			return false
		}
	}
	return true
}

// endsContext reports whether nothing may be moved across i.
func endsContext(i *mir.Instruction) bool {
	return i.Op == mir.OpCall || i.IsTerminator()
}

type pending struct {
	node  *target.SelectionNode
	epoch int
}

// BuildGraph groups the instructions of fn into selection trees. A
// definition becomes a child of its user when the user is its only use, both
// are in the same context (no call or terminator between them) and, for
// loads, no store intervenes.
func BuildGraph(fn *mir.Function) *Graph {
	uses := make(map[int]int)
	fn.Instructions(func(i *mir.Instruction) {
		for _, u := range i.Uses() {
			if u.IsVReg() {
				uses[u.Reg]++
			}
		}
	})

	g := &Graph{}
	for _, b := range fn.Blocks {
		bt := &BlockTrees{Block: b}
		var roots []*target.SelectionNode
		defs := make(map[int]pending)
		epoch := 0
		for _, i := range b.Instrs {
			n := target.NewSelectionNode(i, b)
			if i.Op != mir.OpPhi {
				for k, u := range i.Uses() {
					if !u.IsVReg() || uses[u.Reg] != 1 {
						continue
					}
					p, ok := defs[u.Reg]
					if !ok || (p.node.Instr.Op == mir.OpLoad && p.epoch != epoch) {
						continue
					}
					n.SetChild(k, p.node)
					delete(defs, u.Reg)
					roots = removeRoot(roots, p.node)
				}
			}
			roots = append(roots, n)
			if i.HasDef() && i.Def().IsVReg() && mergeable(i) {
				defs[i.Def().Reg] = pending{node: n, epoch: epoch}
			}
			if i.Op == mir.OpStore {
				epoch++
			}
			if endsContext(i) {
				defs = make(map[int]pending)
				epoch++
			}
		}
		for _, r := range roots {
			bt.Trees = append(bt.Trees, &target.SelectionTree{Root: r})
		}
		g.Blocks = append(g.Blocks, bt)
	}
	return g
}

func removeRoot(roots []*target.SelectionNode, n *target.SelectionNode) []*target.SelectionNode {
	for k := len(roots) - 1; k >= 0; k-- {
		if roots[k] == n {
			return append(roots[:k], roots[k+1:]...)
		}
	}
	return roots
}
