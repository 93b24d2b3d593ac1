package mir

import (
	"fmt"
	"math"
	"strings"
)

// Opcode is a target operation. Register and immediate forms of the same
// operation are distinct opcodes, as are integer and floating point ones.
type Opcode byte

const (
	OpcodeInvalid Opcode = iota

	// OpcodeMovRI loads the immediate into Op1. Narrow immediates are zero-extended.
	OpcodeMovRI
	// OpcodeFMovRI loads the floating point immediate into the XMM register Op1 as a double.
	OpcodeFMovRI
	// OpcodeMovRR copies Op2 to Op1.
	OpcodeMovRR
	// OpcodeMovRM stores Op2 to [Op1+offset].
	OpcodeMovRM
	// OpcodeMovMR loads [Op2+offset] into Op1.
	OpcodeMovMR
	// OpcodeFMovRR copies the double in Op2 to Op1.
	OpcodeFMovRR
	// OpcodeFMovRM stores the double in Op2 to [Op1+offset].
	OpcodeFMovRM
	// OpcodeFMovMR loads the double at [Op2+offset] into Op1.
	OpcodeFMovMR

	// OpcodeAddRR is `Op1 += Op2`.
	OpcodeAddRR
	// OpcodeAddRI is `Op1 += imm`.
	OpcodeAddRI
	OpcodeSubRR
	OpcodeSubRI
	OpcodeImulRR
	OpcodeImulRI
	// OpcodeNeg is `Op1 = -Op1`.
	OpcodeNeg
	// OpcodeCqo sign-extends rax into rdx:rax.
	OpcodeCqo
	// OpcodeIdiv divides rdx:rax by Op1, leaving the quotient in rax and the remainder in rdx.
	OpcodeIdiv

	// OpcodeCmpRR sets the flags from `Op1 - Op2`.
	OpcodeCmpRR
	// OpcodeCmpRI sets the flags from `Op1 - imm`.
	OpcodeCmpRI
	// OpcodeTestRR sets the flags from `Op1 & Op2`.
	OpcodeTestRR
	// OpcodeSetL and friends set the low byte of Op1 to the condition.
	OpcodeSetL
	OpcodeSetLE
	OpcodeSetG
	OpcodeSetGE
	OpcodeSetE
	OpcodeSetA
	OpcodeSetAE
	OpcodeSetNP
	// OpcodeAndB is `Op1 &= Op2` on the low bytes.
	OpcodeAndB
	// OpcodeMovZXB zero-extends the low byte of Op2 into Op1.
	OpcodeMovZXB

	OpcodeAddSD
	OpcodeSubSD
	OpcodeMulSD
	OpcodeDivSD
	// OpcodeRoundSD rounds Op2 into Op1 with the rounding mode in the immediate.
	OpcodeRoundSD
	// OpcodeUcomiSD sets the flags from the unordered comparison of Op1 and Op2.
	OpcodeUcomiSD

	// OpcodeJmp jumps to the block label.
	OpcodeJmp
	// OpcodeJe jumps to the block label if ZF is set.
	OpcodeJe
	// OpcodeJne jumps to the block label if ZF is clear.
	OpcodeJne
	// OpcodeCall calls the function symbol.
	OpcodeCall
	OpcodeRet
	OpcodePush
	OpcodePop

	opcodeEnd
)

var opcodeNames = [...]string{
	OpcodeInvalid: "invalid",
	OpcodeMovRI:   "movri",
	OpcodeFMovRI:  "fmovri",
	OpcodeMovRR:   "movrr",
	OpcodeMovRM:   "movrm",
	OpcodeMovMR:   "movmr",
	OpcodeFMovRR:  "fmovrr",
	OpcodeFMovRM:  "fmovrm",
	OpcodeFMovMR:  "fmovmr",
	OpcodeAddRR:   "addrr",
	OpcodeAddRI:   "addri",
	OpcodeSubRR:   "subrr",
	OpcodeSubRI:   "subri",
	OpcodeImulRR:  "imulrr",
	OpcodeImulRI:  "imulri",
	OpcodeNeg:     "neg",
	OpcodeCqo:     "cqo",
	OpcodeIdiv:    "idiv",
	OpcodeCmpRR:   "cmprr",
	OpcodeCmpRI:   "cmpri",
	OpcodeTestRR:  "testrr",
	OpcodeSetL:    "setl",
	OpcodeSetLE:   "setle",
	OpcodeSetG:    "setg",
	OpcodeSetGE:   "setge",
	OpcodeSetE:    "sete",
	OpcodeSetA:    "seta",
	OpcodeSetAE:   "setae",
	OpcodeSetNP:   "setnp",
	OpcodeAndB:    "andb",
	OpcodeMovZXB:  "movzxb",
	OpcodeAddSD:   "addsd",
	OpcodeSubSD:   "subsd",
	OpcodeMulSD:   "mulsd",
	OpcodeDivSD:   "divsd",
	OpcodeRoundSD: "roundsd",
	OpcodeUcomiSD: "ucomisd",
	OpcodeJmp:     "jmp",
	OpcodeJe:      "je",
	OpcodeJne:     "jne",
	OpcodeCall:    "call",
	OpcodeRet:     "ret",
	OpcodePush:    "push",
	OpcodePop:     "pop",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", o)
}

// Valid returns true if o is a known opcode.
func (o Opcode) Valid() bool {
	return o != OpcodeInvalid && o < opcodeEnd
}

// ExtraKind is the classification of Instruction.Extra.
type ExtraKind byte

const (
	ExtraNone ExtraKind = iota
	// ExtraImm is an immediate operand.
	ExtraImm
	// ExtraMem is a memory offset relative to a base register operand.
	ExtraMem
	// ExtraBlock is a branch target within the same function.
	ExtraBlock
	// ExtraFunc is a call target within the same module.
	ExtraFunc
)

// Extra is the third operand slot of an Instruction.
type Extra struct {
	Kind ExtraKind
	// Bits, Width and Float describe ExtraImm.
	Bits  uint64
	Width uint8
	Float bool
	// Offset describes ExtraMem.
	Offset int32
	// Block describes ExtraBlock.
	Block int
	// Func describes ExtraFunc.
	Func string
}

// Imm returns an immediate Extra.
func Imm(bits uint64, width uint8, float bool) Extra {
	return Extra{Kind: ExtraImm, Bits: bits, Width: width, Float: float}
}

// Mem returns a memory offset Extra.
func Mem(offset int32) Extra {
	return Extra{Kind: ExtraMem, Offset: offset}
}

// Label returns a block label Extra.
func Label(block int) Extra {
	return Extra{Kind: ExtraBlock, Block: block}
}

// Symbol returns a function symbol Extra.
func Symbol(name string) Extra {
	return Extra{Kind: ExtraFunc, Func: name}
}

// Value returns the integer immediate. Narrow immediates are zero-extended.
func (e Extra) Value() int64 {
	if e.Width >= 64 || e.Width == 0 {
		return int64(e.Bits)
	}
	return int64(e.Bits & (1<<e.Width - 1))
}

// Float64 returns the floating point immediate widened to double precision.
func (e Extra) Float64() float64 {
	if e.Width == 32 {
		return float64(math.Float32frombits(uint32(e.Bits)))
	}
	return math.Float64frombits(e.Bits)
}

func (e Extra) String() string {
	switch e.Kind {
	case ExtraImm:
		if e.Float {
			return fmt.Sprintf("$%v", e.Float64())
		}
		return fmt.Sprintf("$%d", e.Value())
	case ExtraMem:
		return fmt.Sprintf("%+d", e.Offset)
	case ExtraBlock:
		return fmt.Sprintf("blk%d", e.Block)
	case ExtraFunc:
		return e.Func
	}
	return ""
}

// Instruction is a single target instruction: opcode, up to two physical registers
// and an optional immediate, memory offset or label.
type Instruction struct {
	Opcode   Opcode
	Op1, Op2 Reg
	Extra    Extra
}

// String implements fmt.Stringer.
func (i *Instruction) String() string {
	switch i.Opcode {
	case OpcodeMovRM, OpcodeFMovRM:
		return fmt.Sprintf("%s [%s%s], %s", i.Opcode, i.Op1, i.Extra, i.Op2)
	case OpcodeMovMR, OpcodeFMovMR:
		return fmt.Sprintf("%s %s, [%s%s]", i.Opcode, i.Op1, i.Op2, i.Extra)
	}

	var args []string
	if i.Op1 != RegNone {
		args = append(args, i.Op1.String())
	}
	if i.Op2 != RegNone {
		args = append(args, i.Op2.String())
	}
	if i.Extra.Kind != ExtraNone {
		args = append(args, i.Extra.String())
	}
	if len(args) == 0 {
		return i.Opcode.String()
	}
	return i.Opcode.String() + " " + strings.Join(args, ", ")
}
