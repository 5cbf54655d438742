package emit

import (
	"strconv"
	"strings"

	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

// intel prints Intel syntax as accepted by GAS under .intel_syntax noprefix.
type intel struct {
	m *amd64.Machine
}

func (x *intel) Name() string     { return "intel" }
func (x *intel) Header() []string { return []string{".intel_syntax noprefix"} }

func (x *intel) Instruction(i *mir.Instruction, mnemonic string, ops []operand) string {
	if isWideImmediate(i, ops) {
		mnemonic = "movabs"
	}
	if len(ops) == 0 {
		return mnemonic
	}
	parts := make([]string, len(ops))
	for k, o := range ops {
		switch {
		case k == len(ops)-1 && isShiftByCL(i.Code):
			parts[k] = "cl"
		case o.kind == memOperand && i.Code == amd64.LEA:
			parts[k] = x.memory(o.mem)
		case o.kind == memOperand:
			parts[k] = ptrSize(memBytes(i)) + " ptr " + x.memory(o.mem)
		default:
			parts[k] = x.operand(o)
		}
	}
	return mnemonic + "\t" + strings.Join(parts, ", ")
}

func ptrSize(bytes int) string {
	switch bytes {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	}
	return "qword"
}

func (x *intel) operand(o operand) string {
	switch o.kind {
	case regOperand:
		return x.m.RegisterName(o.reg)
	case immOperand:
		return strconv.FormatInt(o.imm, 10)
	case labelOperand:
		return o.label
	}
	return x.memory(o.mem)
}

func (x *intel) memory(ref memRef) string {
	var terms []string
	switch {
	case ref.symbol != "":
		terms = append(terms, "rip", ref.symbol)
	case ref.base != 0:
		terms = append(terms, x.m.RegisterName(ref.base))
	}
	if ref.index != 0 {
		terms = append(terms, x.m.RegisterName(ref.index)+"*"+strconv.FormatInt(ref.scale, 10))
	}
	s := strings.Join(terms, " + ")
	switch {
	case ref.disp > 0 && s != "":
		s += " + " + strconv.FormatInt(ref.disp, 10)
	case ref.disp < 0 && s != "":
		s += " - " + strconv.FormatInt(-ref.disp, 10)
	case s == "":
		s = strconv.FormatInt(ref.disp, 10)
	}
	return "[" + s + "]"
}
