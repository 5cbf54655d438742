package target

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
)

// SelectionNode wraps one generic instruction. Children holds, per use, the
// node producing that use when it was merged into this tree, or nil.
type SelectionNode struct {
	Instr    *mir.Instruction
	Block    *mir.BasicBlock
	Children []*SelectionNode
	Parent   *SelectionNode

	// Targets are the selected instructions. Prologue and Epilogue surround
	// them, e.g. to materialize an operand or copy out an implicit result.
	Targets  []*mir.Instruction
	Prologue []*mir.Instruction
	Epilogue []*mir.Instruction

	selected bool
	folded   bool
}

// NewSelectionNode creates a leaf node with one empty child slot per use.
func NewSelectionNode(i *mir.Instruction, b *mir.BasicBlock) *SelectionNode {
	return &SelectionNode{Instr: i, Block: b, Children: make([]*SelectionNode, i.NumUses())}
}

// Child returns the node producing use n, or nil.
func (n *SelectionNode) Child(i int) *SelectionNode {
	if i < 0 || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// SetChild attaches c as the producer of use i.
func (n *SelectionNode) SetChild(i int, c *SelectionNode) {
	n.Children[i] = c
	c.Parent = n
}

// SwapUses exchanges two uses together with their producers.
func (n *SelectionNode) SwapUses(i, j int) {
	a, b := n.Instr.Use(i), n.Instr.Use(j)
	n.Instr.SetUse(i, b)
	n.Instr.SetUse(j, a)
	n.Children[i], n.Children[j] = n.Children[j], n.Children[i]
}

// Fold marks the node as absorbed by its parent. It emits nothing; its
// children are still selected and generated.
func (n *SelectionNode) Fold() {
	n.folded = true
	n.selected = true
}

func (n *SelectionNode) IsFolded() bool   { return n.folded }
func (n *SelectionNode) IsSelected() bool { return n.selected }

// MarkSelected records that the node's instructions are final.
func (n *SelectionNode) MarkSelected() { n.selected = true }

// Emit appends selected instructions.
func (n *SelectionNode) Emit(instrs ...*mir.Instruction) { n.Targets = append(n.Targets, instrs...) }

// EmitPrologue appends instructions that run before the selected ones.
func (n *SelectionNode) EmitPrologue(instrs ...*mir.Instruction) {
	n.Prologue = append(n.Prologue, instrs...)
}

// EmitEpilogue appends instructions that run after the selected ones.
func (n *SelectionNode) EmitEpilogue(instrs ...*mir.Instruction) {
	n.Epilogue = append(n.Epilogue, instrs...)
}

// SelectionTree is a tree of nodes rooted at an instruction whose result is
// not merged into another tree.
type SelectionTree struct {
	Root *SelectionNode
}

// Walk visits the nodes in preorder, so a parent can fold a child before the
// child is visited.
func (t *SelectionTree) Walk(fn func(*SelectionNode) error) error {
	return walk(t.Root, fn)
}

func walk(n *SelectionNode, fn func(*SelectionNode) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Generate returns the instructions of the tree in postorder.
func (t *SelectionTree) Generate() []*mir.Instruction {
	var out []*mir.Instruction
	generate(t.Root, &out)
	return out
}

func generate(n *SelectionNode, out *[]*mir.Instruction) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		generate(c, out)
	}
	if n.folded {
		return
	}
	*out = append(*out, n.Prologue...)
	*out = append(*out, n.Targets...)
	*out = append(*out, n.Epilogue...)
}

// LegalizationRules rewrite nodes whose operation has no single instruction
// form. Each rule reports whether it changed the node.
type LegalizationRules interface {
	LegalizeMul(n *SelectionNode) (bool, error)
	LegalizeDiv(n *SelectionNode) (bool, error)
	LegalizeRem(n *SelectionNode) (bool, error)
	LegalizeAdd(n *SelectionNode) (bool, error)
	LegalizeSub(n *SelectionNode) (bool, error)
	LegalizeShift(n *SelectionNode) (bool, error)
	LegalizeAnd(n *SelectionNode) (bool, error)
	LegalizeXor(n *SelectionNode) (bool, error)
	LegalizeOr(n *SelectionNode) (bool, error)
	LegalizeCmp(n *SelectionNode) (bool, error)
	LegalizeZExt(n *SelectionNode) (bool, error)
}

// Legalize applies the rule for the node's opcode.
func Legalize(rules LegalizationRules, n *SelectionNode) (bool, error) {
	switch n.Instr.Op {
	case mir.OpMul:
		return rules.LegalizeMul(n)
	case mir.OpSDiv, mir.OpUDiv:
		return rules.LegalizeDiv(n)
	case mir.OpSRem, mir.OpURem:
		return rules.LegalizeRem(n)
	case mir.OpAdd:
		return rules.LegalizeAdd(n)
	case mir.OpSub:
		return rules.LegalizeSub(n)
	case mir.OpShiftL, mir.OpLShiftR, mir.OpAShiftR:
		return rules.LegalizeShift(n)
	case mir.OpAnd:
		return rules.LegalizeAnd(n)
	case mir.OpXor:
		return rules.LegalizeXor(n)
	case mir.OpOr:
		return rules.LegalizeOr(n)
	case mir.OpCmp, mir.OpUCmp:
		return rules.LegalizeCmp(n)
	case mir.OpZExt:
		return rules.LegalizeZExt(n)
	case mir.OpFRem:
		return false, errors.Lowering("NO_LEGALIZATION", "floating point remainder has no legalization rule",
			map[string]interface{}{"op": n.Instr.Op.String()})
	}
	return false, nil
}
