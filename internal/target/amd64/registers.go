// Package amd64 describes the x86-64 System V target: register file, calling
// convention, instruction templates, legalization rules and selection
// patterns.
package amd64

import (
	"fmt"

	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// Register numbers. Each width group lists the sixteen general purpose
// registers in the same order, so Sized can index into it.
const (
	NoRegister = iota

	RAX
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	EAX
	EBX
	ECX
	EDX
	ESI
	EDI
	EBP
	ESP
	R8D
	R9D
	R10D
	R11D
	R12D
	R13D
	R14D
	R15D

	AX
	BX
	CX
	DX
	SI
	DI
	BP
	SP
	R8W
	R9W
	R10W
	R11W
	R12W
	R13W
	R14W
	R15W

	AL
	BL
	CL
	DL
	SIL
	DIL
	BPL
	SPL
	R8B
	R9B
	R10B
	R11B
	R12B
	R13B
	R14B
	R15B

	AH
	BH
	CH
	DH

	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15

	RIP

	numRegisters
)

// Register classes.
const (
	GR8 mir.RegClass = iota + 1
	GR16
	GR32
	GR64
	FR32
	FR64
)

var gprNames = [16][4]string{
	{"rax", "eax", "ax", "al"},
	{"rbx", "ebx", "bx", "bl"},
	{"rcx", "ecx", "cx", "cl"},
	{"rdx", "edx", "dx", "dl"},
	{"rsi", "esi", "si", "sil"},
	{"rdi", "edi", "di", "dil"},
	{"rbp", "ebp", "bp", "bpl"},
	{"rsp", "esp", "sp", "spl"},
	{"r8", "r8d", "r8w", "r8b"},
	{"r9", "r9d", "r9w", "r9b"},
	{"r10", "r10d", "r10w", "r10b"},
	{"r11", "r11d", "r11w", "r11b"},
	{"r12", "r12d", "r12w", "r12b"},
	{"r13", "r13d", "r13w", "r13b"},
	{"r14", "r14d", "r14w", "r14b"},
	{"r15", "r15d", "r15w", "r15b"},
}

// allocOrder is the preference order of the general purpose registers:
// caller-saved first so short-lived values avoid a save in the prologue.
var allocOrder = []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11, RBX, R12, R13, R14, R15}

// RegisterSet is the AMD64 register file.
type RegisterSet struct {
	regs    [numRegisters]target.Register
	classes map[mir.RegClass][]int
}

var _ target.RegisterSet = (*RegisterSet)(nil)

func newRegisterSet() *RegisterSet {
	rs := &RegisterSet{classes: make(map[mir.RegClass][]int)}
	widths := [4]int{8, 4, 2, 1}
	bases := [4]int{RAX, EAX, AX, AL}
	for idx, names := range gprNames {
		for w := range widths {
			n := bases[w] + idx
			rs.regs[n] = target.Register{Name: names[w], Number: n, Bytes: widths[w]}
			if w > 0 {
				parent := bases[w-1] + idx
				rs.regs[n].Parent = parent
				rs.regs[parent].SubRegs = append(rs.regs[parent].SubRegs, n)
			}
		}
	}
	for k, name := range []string{"ah", "bh", "ch", "dh"} {
		n, low := AH+k, AL+k
		parent := AX + k
		rs.regs[n] = target.Register{Name: name, Number: n, Bytes: 1, Parent: parent, Paired: low}
		rs.regs[low].Paired = n
		rs.regs[parent].SubRegs = append(rs.regs[parent].SubRegs, n)
	}
	for k := 0; k < 16; k++ {
		n := XMM0 + k
		rs.regs[n] = target.Register{Name: fmt.Sprintf("xmm%d", k), Number: n, Bytes: 16, Float: true}
	}
	rs.regs[RIP] = target.Register{Name: "rip", Number: RIP, Bytes: 8}

	for w, class := range []mir.RegClass{GR64, GR32, GR16, GR8} {
		list := make([]int, len(allocOrder))
		for k, r := range allocOrder {
			list[k] = bases[w] + (r - RAX)
		}
		rs.classes[class] = list
	}
	xmm := make([]int, 16)
	for k := range xmm {
		xmm[k] = XMM0 + k
	}
	rs.classes[FR32] = xmm
	rs.classes[FR64] = xmm
	return rs
}

func (rs *RegisterSet) IsValid(n int) bool { return n > NoRegister && n < numRegisters }

func (rs *RegisterSet) Register(n int) *target.Register {
	if !rs.IsValid(n) {
		return nil
	}
	return &rs.regs[n]
}

func (rs *RegisterSet) Registers(class mir.RegClass) []int { return rs.classes[class] }

func (rs *RegisterSet) ClassOf(bytes int, float bool) mir.RegClass {
	if float {
		if bytes == 4 {
			return FR32
		}
		return FR64
	}
	switch bytes {
	case 1:
		return GR8
	case 2:
		return GR16
	case 4:
		return GR32
	}
	return GR64
}

func (rs *RegisterSet) ClassOfRegister(n int) mir.RegClass {
	r := rs.Register(n)
	if r == nil {
		return mir.NoClass
	}
	if r.Float {
		return FR64
	}
	return rs.ClassOf(r.Bytes, false)
}

func (rs *RegisterSet) GPClasses() []mir.RegClass { return []mir.RegClass{GR8, GR16, GR32, GR64} }
func (rs *RegisterSet) FPClasses() []mir.RegClass { return []mir.RegClass{FR32, FR64} }

var classNames = map[mir.RegClass]string{
	GR8: "GR8", GR16: "GR16", GR32: "GR32", GR64: "GR64", FR32: "FR32", FR64: "FR64",
}

func (rs *RegisterSet) ClassName(c mir.RegClass) string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class%d", int(c))
}

func (rs *RegisterSet) Unit(n int) int {
	for rs.IsValid(n) && rs.regs[n].Parent != NoRegister {
		n = rs.regs[n].Parent
	}
	return n
}

func (rs *RegisterSet) Sized(n, bytes int) int {
	u := rs.Unit(n)
	if u < RAX || u > R15 {
		return u
	}
	idx := u - RAX
	switch bytes {
	case 1:
		return AL + idx
	case 2:
		return AX + idx
	case 4:
		return EAX + idx
	}
	return u
}

func (rs *RegisterSet) SP() int  { return RSP }
func (rs *RegisterSet) ARP() int { return RBP }
func (rs *RegisterSet) IP() int  { return RIP }

// Name returns the assembly name of a register.
func (rs *RegisterSet) Name(n int) string {
	if r := rs.Register(n); r != nil {
		return r.Name
	}
	return fmt.Sprintf("reg%d", n)
}
