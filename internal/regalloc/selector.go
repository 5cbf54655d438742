package regalloc

import (
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// RegisterSelector tracks which physical registers are in use. Activating a
// register also occupies its parents and sub-registers, so overlapping
// registers are never handed out twice. Paired registers (AL and AH) share a
// parent but stay independent of each other.
type RegisterSelector struct {
	regs     target.RegisterSet
	count    map[int]int
	reserved map[int]bool
}

// NewRegisterSelector creates a selector with every register free. Reserved
// registers are never returned by SelectByClass.
func NewRegisterSelector(regs target.RegisterSet, reserved ...int) *RegisterSelector {
	s := &RegisterSelector{regs: regs, count: make(map[int]int), reserved: make(map[int]bool)}
	for _, r := range reserved {
		for _, a := range s.aliases(r) {
			s.reserved[a] = true
		}
	}
	return s
}

// aliases returns reg, its parents and all of its sub-registers.
func (s *RegisterSelector) aliases(reg int) []int {
	out := []int{reg}
	r := s.regs.Register(reg)
	if r == nil {
		return out
	}
	for p := r.Parent; p != 0; {
		out = append(out, p)
		pr := s.regs.Register(p)
		if pr == nil {
			break
		}
		p = pr.Parent
	}
	var down func(n int)
	down = func(n int) {
		nr := s.regs.Register(n)
		if nr == nil {
			return
		}
		for _, sub := range nr.SubRegs {
			out = append(out, sub)
			down(sub)
		}
	}
	down(reg)
	return out
}

// Activate marks reg and its aliases as in use.
func (s *RegisterSelector) Activate(reg int) {
	for _, a := range s.aliases(reg) {
		s.count[a]++
	}
}

// Deactivate releases one activation of reg and its aliases.
func (s *RegisterSelector) Deactivate(reg int) {
	for _, a := range s.aliases(reg) {
		if s.count[a] > 0 {
			s.count[a]--
		}
	}
}

// IsFree reports whether neither reg nor anything overlapping it is active.
func (s *RegisterSelector) IsFree(reg int) bool { return s.count[reg] == 0 }

// Free returns the free, unreserved registers of class in preference order.
func (s *RegisterSelector) Free(class mir.RegClass) []int {
	var out []int
	for _, r := range s.regs.Registers(class) {
		if !s.reserved[r] && s.IsFree(r) {
			out = append(out, r)
		}
	}
	return out
}

// SelectByClass returns the first free register of class accepted by ok,
// which may be nil.
func (s *RegisterSelector) SelectByClass(class mir.RegClass, ok func(reg int) bool) (int, bool) {
	for _, r := range s.Free(class) {
		if ok == nil || ok(r) {
			return r, true
		}
	}
	return 0, false
}
