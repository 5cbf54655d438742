package emit

import (
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

// sized lists the integer templates whose AT&T mnemonic takes a width
// suffix and whose Intel memory operands take a size keyword.
var sized = map[int]bool{}

func init() {
	for _, c := range []int{
		amd64.PUSH_R, amd64.POP_R,
		amd64.MOV_RR, amd64.MOV_RI, amd64.MOV_RM, amd64.MOV_MR, amd64.MOV_MI, amd64.LEA,
		amd64.ADD_RR, amd64.ADD_RI, amd64.ADD_RM, amd64.SUB_RR, amd64.SUB_RI, amd64.SUB_RM,
		amd64.AND_RR, amd64.AND_RI, amd64.AND_RM, amd64.OR_RR, amd64.OR_RI, amd64.OR_RM,
		amd64.XOR_RR, amd64.XOR_RI, amd64.XOR_RM,
		amd64.IMUL_RR, amd64.IMUL_RM, amd64.IMUL_RRI, amd64.IMUL_RMI,
		amd64.IDIV_R, amd64.IDIV_M, amd64.DIV_R, amd64.DIV_M,
		amd64.SHL_RI, amd64.SHL_RCL, amd64.SHR_RI, amd64.SHR_RCL, amd64.SAR_RI, amd64.SAR_RCL,
		amd64.CMP_RR, amd64.CMP_RI, amd64.CMP_RM,
	} {
		sized[c] = true
	}
}

func widthSuffix(bytes int) string {
	switch bytes {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	}
	return "q"
}

func isShiftByCL(code int) bool {
	return code == amd64.SHL_RCL || code == amd64.SHR_RCL || code == amd64.SAR_RCL
}

func isExtension(code int) bool {
	switch code {
	case amd64.MOVZX_RR, amd64.MOVZX_RM, amd64.MOVSX_RR, amd64.MOVSX_RM:
		return true
	}
	return false
}

func isIntToFloat(code int) bool {
	switch code {
	case amd64.CVTSI2SS_RR, amd64.CVTSI2SS_RM, amd64.CVTSI2SD_RR, amd64.CVTSI2SD_RM:
		return true
	}
	return false
}

// memBytes is the access width of the memory operand of i.
func memBytes(i *mir.Instruction) int {
	switch i.Code {
	case amd64.MOVSS_RM, amd64.MOVSS_MR, amd64.ADDSS_RM, amd64.SUBSS_RM, amd64.MULSS_RM,
		amd64.DIVSS_RM, amd64.UCOMISS_RM, amd64.CVTSS2SD_RM, amd64.CVTTSS2SI_RM:
		return 4
	case amd64.MOVSD_RM, amd64.MOVSD_MR, amd64.ADDSD_RM, amd64.SUBSD_RM, amd64.MULSD_RM,
		amd64.DIVSD_RM, amd64.UCOMISD_RM, amd64.CVTSD2SS_RM, amd64.CVTTSD2SI_RM:
		return 8
	}
	return classBytes(i.Class)
}
