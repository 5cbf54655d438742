package emit

import (
	"strconv"
	"strings"

	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

// gas prints AT&T syntax: sources first, % registers, $ immediates and
// width suffixes on integer mnemonics.
type gas struct {
	m *amd64.Machine
}

func (g *gas) Name() string     { return "gas" }
func (g *gas) Header() []string { return nil }

func (g *gas) Instruction(i *mir.Instruction, mnemonic string, ops []operand) string {
	mnemonic = g.mnemonic(i, mnemonic, ops)
	if len(ops) == 0 {
		return mnemonic
	}
	parts := make([]string, len(ops))
	for k, o := range ops {
		s := g.operand(o)
		if k == len(ops)-1 && isShiftByCL(i.Code) {
			s = "%cl"
		}
		parts[len(ops)-1-k] = s
	}
	if i.Code == amd64.CALL_R {
		parts[0] = "*" + parts[0]
	}
	return mnemonic + "\t" + strings.Join(parts, ", ")
}

func (g *gas) mnemonic(i *mir.Instruction, name string, ops []operand) string {
	switch {
	case i.Code == amd64.CDQ:
		return "cltd"
	case i.Code == amd64.CQO:
		return "cqto"
	case i.Code == amd64.MOVSXD_RR || i.Code == amd64.MOVSXD_RM:
		return "movslq"
	case isExtension(i.Code):
		dst := 8
		if r := g.m.Registers().Register(ops[0].reg); r != nil {
			dst = r.Bytes
		}
		return name[:4] + widthSuffix(classBytes(i.Class)) + widthSuffix(dst)
	case isIntToFloat(i.Code):
		return name + widthSuffix(classBytes(i.Class))
	case isWideImmediate(i, ops):
		return "movabsq"
	case sized[i.Code]:
		return name + widthSuffix(classBytes(i.Class))
	}
	return name
}

func (g *gas) operand(o operand) string {
	switch o.kind {
	case regOperand:
		return "%" + g.m.RegisterName(o.reg)
	case immOperand:
		return "$" + strconv.FormatInt(o.imm, 10)
	case labelOperand:
		return o.label
	}
	return g.memory(o.mem)
}

func (g *gas) memory(ref memRef) string {
	var b strings.Builder
	if ref.symbol != "" {
		b.WriteString(ref.symbol)
		if ref.disp > 0 {
			b.WriteString("+")
		}
		if ref.disp != 0 {
			b.WriteString(strconv.FormatInt(ref.disp, 10))
		}
		b.WriteString("(%rip)")
		return b.String()
	}
	if ref.disp != 0 || ref.base == 0 {
		b.WriteString(strconv.FormatInt(ref.disp, 10))
	}
	if ref.base == 0 {
		return b.String()
	}
	b.WriteString("(%" + g.m.RegisterName(ref.base))
	if ref.index != 0 {
		b.WriteString(",%" + g.m.RegisterName(ref.index) + "," + strconv.FormatInt(ref.scale, 10))
	}
	b.WriteString(")")
	return b.String()
}
