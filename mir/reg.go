package mir

import "fmt"

// Reg is a physical x86-64 register. Virtual registers never appear in MIR.
type Reg byte

const (
	RegNone Reg = iota
	RAX
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
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

	numRegs
)

// NumRegs is the number of Reg values including RegNone.
const NumRegs = int(numRegs)

var regNames = [...]string{
	RegNone: "none",
	RAX:     "rax",
	RCX:     "rcx",
	RDX:     "rdx",
	RBX:     "rbx",
	RSP:     "rsp",
	RBP:     "rbp",
	RSI:     "rsi",
	RDI:     "rdi",
	R8:      "r8",
	R9:      "r9",
	R10:     "r10",
	R11:     "r11",
	R12:     "r12",
	R13:     "r13",
	R14:     "r14",
	R15:     "r15",
	XMM0:    "xmm0",
	XMM1:    "xmm1",
	XMM2:    "xmm2",
	XMM3:    "xmm3",
	XMM4:    "xmm4",
	XMM5:    "xmm5",
	XMM6:    "xmm6",
	XMM7:    "xmm7",
	XMM8:    "xmm8",
	XMM9:    "xmm9",
	XMM10:   "xmm10",
	XMM11:   "xmm11",
	XMM12:   "xmm12",
	XMM13:   "xmm13",
	XMM14:   "xmm14",
	XMM15:   "xmm15",
}

// String implements fmt.Stringer.
func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", r)
}

// Valid returns true if r is a physical register.
func (r Reg) Valid() bool {
	return r != RegNone && r < numRegs
}

// IsFloat returns true if r is an XMM register.
func (r Reg) IsFloat() bool {
	return r >= XMM0 && r <= XMM15
}
