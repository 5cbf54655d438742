package amd64

import "github.com/orizon-lang/ancl/internal/target"

// ABI is the System V AMD64 calling convention.
type ABI struct{}

var _ target.ABI = ABI{}

func (ABI) StackAlign() int64         { return 16 }
func (ABI) RedZoneSize() int64        { return 128 }
func (ABI) MaxStructParamSize() int64 { return 16 }

func (ABI) IntArgRegisters() []int { return []int{RDI, RSI, RDX, RCX, R8, R9} }

func (ABI) FloatArgRegisters() []int {
	return []int{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}
}

func (ABI) IntReturnRegisters() []int   { return []int{RAX, RDX} }
func (ABI) FloatReturnRegisters() []int { return []int{XMM0, XMM1} }

func (ABI) CalleeSaved() []int { return []int{RBX, R12, R13, R14, R15} }

func (ABI) CallerSaved() []int {
	regs := []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}
	for k := 0; k < 16; k++ {
		regs = append(regs, XMM0+k)
	}
	return regs
}

func (ABI) VectorCountRegister() int { return AL }
