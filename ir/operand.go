package ir

import (
	"fmt"
	"math"
)

// VReg is an abstract virtual register produced by upstream stages. It carries no
// register class; the class is determined by the instruction that defines it.
type VReg uint32

// String implements fmt.Stringer.
func (v VReg) String() string {
	return fmt.Sprintf("v%d", v)
}

// OperandKind is the classification of an Operand.
type OperandKind byte

const (
	// OperandKindNone marks an absent operand slot. It is the zero value.
	OperandKindNone OperandKind = iota
	// OperandKindImm is a literal constant.
	OperandKindImm
	// OperandKindVReg is a virtual register.
	OperandKindVReg
)

// String implements fmt.Stringer.
func (k OperandKind) String() string {
	switch k {
	case OperandKindNone:
		return "none"
	case OperandKindImm:
		return "imm"
	case OperandKindVReg:
		return "vreg"
	}
	panic(fmt.Sprintf("BUG: unknown operand kind %d", k))
}

// Width is the bit width of an immediate literal.
type Width byte

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// Mask returns the bit mask covering the width.
func (w Width) Mask() uint64 {
	if w >= Width64 {
		return math.MaxUint64
	}
	return 1<<w - 1
}

// Operand is a tagged union of an immediate literal and a virtual register.
// The zero Operand is absent.
type Operand struct {
	kind  OperandKind
	width Width
	float bool
	bits  uint64
	reg   VReg
}

// Imm8 returns an 8-bit integer immediate.
func Imm8(v int8) Operand { return immInt(uint64(uint8(v)), Width8) }

// Imm16 returns a 16-bit integer immediate.
func Imm16(v int16) Operand { return immInt(uint64(uint16(v)), Width16) }

// Imm32 returns a 32-bit integer immediate.
func Imm32(v int32) Operand { return immInt(uint64(uint32(v)), Width32) }

// Imm64 returns a 64-bit integer immediate.
func Imm64(v int64) Operand { return immInt(uint64(v), Width64) }

// ImmF32 returns a single precision floating point immediate.
func ImmF32(v float32) Operand {
	return Operand{kind: OperandKindImm, width: Width32, float: true, bits: uint64(math.Float32bits(v))}
}

// ImmF64 returns a double precision floating point immediate.
func ImmF64(v float64) Operand {
	return Operand{kind: OperandKindImm, width: Width64, float: true, bits: math.Float64bits(v)}
}

// ImmBits returns an immediate from its raw bit pattern. Bits outside of the width are dropped.
func ImmBits(bits uint64, w Width, float bool) Operand {
	return Operand{kind: OperandKindImm, width: w, float: float, bits: bits & w.Mask()}
}

func immInt(bits uint64, w Width) Operand {
	return Operand{kind: OperandKindImm, width: w, bits: bits}
}

// Reg returns an operand referring to the virtual register v.
func Reg(v VReg) Operand {
	return Operand{kind: OperandKindVReg, reg: v}
}

// Kind returns the classification of this operand.
func (o Operand) Kind() OperandKind { return o.kind }

// Valid returns true if the operand is present.
func (o Operand) Valid() bool { return o.kind != OperandKindNone }

// IsImm returns true if the operand is an immediate.
func (o Operand) IsImm() bool { return o.kind == OperandKindImm }

// IsVReg returns true if the operand is a virtual register.
func (o Operand) IsVReg() bool { return o.kind == OperandKindVReg }

// IsFloat returns true if the operand is a floating point immediate.
func (o Operand) IsFloat() bool { return o.kind == OperandKindImm && o.float }

// Width returns the width of the immediate, or zero for non-immediates.
func (o Operand) Width() Width { return o.width }

// Bits returns the literal bit pattern of the immediate.
func (o Operand) Bits() uint64 { return o.bits }

// Int64 returns the immediate sign-extended from its width.
func (o Operand) Int64() int64 {
	switch o.width {
	case Width8:
		return int64(int8(o.bits))
	case Width16:
		return int64(int16(o.bits))
	case Width32:
		return int64(int32(o.bits))
	default:
		return int64(o.bits)
	}
}

// VReg returns the virtual register of the operand.
func (o Operand) VReg() VReg {
	if o.kind != OperandKindVReg {
		panic("BUG: VReg called on " + o.kind.String() + " operand")
	}
	return o.reg
}

// String implements fmt.Stringer.
func (o Operand) String() string {
	switch o.kind {
	case OperandKindNone:
		return "_"
	case OperandKindVReg:
		return o.reg.String()
	}
	if o.float {
		if o.width == Width32 {
			return fmt.Sprintf("#%v:f32", math.Float32frombits(uint32(o.bits)))
		}
		return fmt.Sprintf("#%v:f64", math.Float64frombits(o.bits))
	}
	return fmt.Sprintf("#%d:i%d", o.Int64(), o.width)
}
