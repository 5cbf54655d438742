package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
)

type recordingRules struct{ seen []string }

func (r *recordingRules) rule(name string) (bool, error) {
	r.seen = append(r.seen, name)
	return true, nil
}

func (r *recordingRules) LegalizeMul(*SelectionNode) (bool, error)   { return r.rule("mul") }
func (r *recordingRules) LegalizeDiv(*SelectionNode) (bool, error)   { return r.rule("div") }
func (r *recordingRules) LegalizeRem(*SelectionNode) (bool, error)   { return r.rule("rem") }
func (r *recordingRules) LegalizeAdd(*SelectionNode) (bool, error)   { return r.rule("add") }
func (r *recordingRules) LegalizeSub(*SelectionNode) (bool, error)   { return r.rule("sub") }
func (r *recordingRules) LegalizeShift(*SelectionNode) (bool, error) { return r.rule("shift") }
func (r *recordingRules) LegalizeAnd(*SelectionNode) (bool, error)   { return r.rule("and") }
func (r *recordingRules) LegalizeXor(*SelectionNode) (bool, error)   { return r.rule("xor") }
func (r *recordingRules) LegalizeOr(*SelectionNode) (bool, error)    { return r.rule("or") }
func (r *recordingRules) LegalizeCmp(*SelectionNode) (bool, error)   { return r.rule("cmp") }
func (r *recordingRules) LegalizeZExt(*SelectionNode) (bool, error)  { return r.rule("zext") }

func node(op mir.Opcode) *SelectionNode {
	i32 := mir.Integer(4)
	return NewSelectionNode(mir.NewInstruction(op, mir.VReg(i32, 1), mir.VReg(i32, 2), mir.VReg(i32, 3)), nil)
}

func TestLegalizeDispatch(t *testing.T) {
	r := &recordingRules{}
	for _, op := range []mir.Opcode{mir.OpUDiv, mir.OpSRem, mir.OpAShiftR, mir.OpUCmp, mir.OpZExt} {
		changed, err := Legalize(r, node(op))
		require.NoError(t, err)
		assert.True(t, changed)
	}
	assert.Equal(t, []string{"div", "rem", "shift", "cmp", "zext"}, r.seen)

	changed, err := Legalize(r, node(mir.OpFAdd))
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = Legalize(r, node(mir.OpFRem))
	require.Error(t, err)
	assert.True(t, errors.IsLowering(err))
}

func TestGeneratePostorderSkipsFolded(t *testing.T) {
	root := node(mir.OpAdd)
	left := node(mir.OpMul)
	right := node(mir.OpLoad)
	root.SetChild(0, left)
	root.SetChild(1, right)

	a, b, c, d := mir.NewInstruction(mir.OpMov), mir.NewInstruction(mir.OpMov),
		mir.NewInstruction(mir.OpMov), mir.NewInstruction(mir.OpMov)
	left.Emit(a)
	right.Emit(b)
	right.Fold()
	root.EmitPrologue(c)
	root.Emit(d)

	tree := &SelectionTree{Root: root}
	assert.Equal(t, []*mir.Instruction{a, c, d}, tree.Generate())

	var order []*SelectionNode
	require.NoError(t, tree.Walk(func(n *SelectionNode) error {
		order = append(order, n)
		return nil
	}))
	assert.Equal(t, []*SelectionNode{root, left, right}, order)
}

func TestSwapUses(t *testing.T) {
	n := node(mir.OpAdd)
	child := node(mir.OpMul)
	n.SetChild(0, child)
	n.SwapUses(0, 1)
	assert.Equal(t, 3, n.Instr.Use(0).Reg)
	assert.Equal(t, 2, n.Instr.Use(1).Reg)
	assert.Nil(t, n.Child(0))
	assert.Same(t, child, n.Child(1))
}
