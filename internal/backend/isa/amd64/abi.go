package amd64

import (
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/mir"
)

// Arguments and results follow the System V AMD64 calling convention:
// https://gitlab.com/x86-psABIs/x86-64-ABI

var (
	intArgRegs   = []mir.Reg{mir.RDI, mir.RSI, mir.RDX, mir.RCX, mir.R8, mir.R9}
	floatArgRegs = []mir.Reg{mir.XMM0, mir.XMM1, mir.XMM2, mir.XMM3, mir.XMM4, mir.XMM5, mir.XMM6, mir.XMM7}
)

const (
	intResultReg   = mir.RAX
	floatResultReg = mir.XMM0
)

// Scratch registers are never handed out by the allocators. They hold spilled operands while
// an instruction executes and intermediate values of multi-instruction sequences.
const (
	scratch1  = mir.R10
	scratch2  = mir.R11
	fscratch0 = mir.XMM13
	fscratch1 = mir.XMM14
	fscratch2 = mir.XMM15
)

var regInfo = &regalloc.RegisterInfo{
	AllocatableRegisters: [regalloc.RegTypeNum][]mir.Reg{
		// Argument registers are left out so that call sequences never overwrite a live value,
		// rax and rdx are taken by results and division.
		regalloc.RegTypeInt:   {mir.RBX, mir.R12, mir.R13, mir.R14, mir.R15},
		regalloc.RegTypeFloat: {mir.XMM8, mir.XMM9, mir.XMM10, mir.XMM11, mir.XMM12},
	},
	CalleeSavedRegisters: map[mir.Reg]struct{}{
		mir.RBX: {}, mir.R12: {}, mir.R13: {}, mir.R14: {}, mir.R15: {},
	},
	FixedRegisters: [regalloc.RegTypeNum][3]mir.Reg{
		regalloc.RegTypeInt:   {mir.RAX, mir.RAX, mir.RCX},
		regalloc.RegTypeFloat: {mir.XMM0, mir.XMM0, mir.XMM1},
	},
}

// argument is the placement of one call argument or incoming parameter.
type argument struct {
	index int
	// reg is mir.RegNone for arguments passed on the stack.
	reg mir.Reg
	// stackIndex is the position among the stack arguments, starting at the lowest address.
	stackIndex int
}

// assignArguments places each value of the given register classes.
func assignArguments(classes []regalloc.RegType) (args []argument, stackArgs int) {
	var ints, floats int
	for i, c := range classes {
		a := argument{index: i, stackIndex: -1}
		switch {
		case c == regalloc.RegTypeInt && ints < len(intArgRegs):
			a.reg = intArgRegs[ints]
			ints++
		case c == regalloc.RegTypeFloat && floats < len(floatArgRegs):
			a.reg = floatArgRegs[floats]
			floats++
		default:
			a.stackIndex = stackArgs
			stackArgs++
		}
		args = append(args, a)
	}
	return
}
