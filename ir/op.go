package ir

import "fmt"

// Op is the operation of an IR Instruction.
type Op byte

const (
	OpInvalid Op = iota

	// OpIconst8 defines `dst` as the 8-bit integer literal `src1`: `dst = iconst8 #imm`.
	OpIconst8
	// OpIconst16 defines `dst` as the 16-bit integer literal `src1`.
	OpIconst16
	// OpIconst32 defines `dst` as the 32-bit integer literal `src1`.
	OpIconst32
	// OpIconst64 defines `dst` as the 64-bit integer literal `src1`.
	OpIconst64
	// OpFconst32 defines `dst` as the single precision literal `src1`.
	OpFconst32
	// OpFconst64 defines `dst` as the double precision literal `src1`.
	OpFconst64

	// OpMov copies the integer `src1` into `dst`: `dst = mov src1`.
	OpMov
	// OpMovf copies the floating point `src1` into `dst`.
	OpMovf

	// OpAddi is integer addition: `dst = addi src1, src2`.
	OpAddi
	// OpSubi is integer subtraction: `dst = src1 - src2`.
	OpSubi
	// OpMuli is signed integer multiplication.
	OpMuli
	// OpDivi is signed integer division, truncated towards zero.
	OpDivi
	// OpModi is the remainder of OpDivi, having the sign of the dividend.
	OpModi

	// OpAddf is floating point addition.
	OpAddf
	OpSubf
	OpMulf
	OpDivf
	// OpModf is `src1 - trunc(src1 / src2) * src2`.
	OpModf

	// OpLt is signed integer `dst = src1 < src2 ? 1 : 0`.
	OpLt
	OpLte
	OpGt
	OpGte
	OpEq

	// OpLtf is the ordered floating point comparison `src1 < src2`. Comparisons involving NaN are false.
	OpLtf
	OpLtef
	OpGtf
	OpGtef
	OpEqf

	// OpJmp unconditionally jumps to the block `Target`.
	OpJmp
	// OpBr jumps to `Target` if the integer `src1` is non-zero, otherwise to `Else`.
	OpBr

	// OpCall calls the function `Callee` with `Args`, defining `dst` with its result if present.
	OpCall

	// OpRet returns `src1` from the function. `src1` is absent for functions without result.
	OpRet

	opEnd
)

// Category is the coarse classification of an Op used for the first level of lowering dispatch.
type Category byte

const (
	CategoryInvalid Category = iota
	CategoryConst
	CategoryMove
	CategoryBinary
	CategoryBranch
	CategoryCall
	CategoryReturn
)

// String implements fmt.Stringer.
func (c Category) String() string {
	switch c {
	case CategoryInvalid:
		return "invalid"
	case CategoryConst:
		return "const"
	case CategoryMove:
		return "move"
	case CategoryBinary:
		return "binary"
	case CategoryBranch:
		return "branch"
	case CategoryCall:
		return "call"
	case CategoryReturn:
		return "return"
	}
	return fmt.Sprintf("Category(%d)", c)
}

// Category returns the category of the op, or CategoryInvalid for unknown values.
func (o Op) Category() Category {
	switch o {
	case OpIconst8, OpIconst16, OpIconst32, OpIconst64, OpFconst32, OpFconst64:
		return CategoryConst
	case OpMov, OpMovf:
		return CategoryMove
	case OpAddi, OpSubi, OpMuli, OpDivi, OpModi,
		OpAddf, OpSubf, OpMulf, OpDivf, OpModf,
		OpLt, OpLte, OpGt, OpGte, OpEq,
		OpLtf, OpLtef, OpGtf, OpGtef, OpEqf:
		return CategoryBinary
	case OpJmp, OpBr:
		return CategoryBranch
	case OpCall:
		return CategoryCall
	case OpRet:
		return CategoryReturn
	default:
		return CategoryInvalid
	}
}

// IsFloat returns true if the sources of the op are floating point values.
func (o Op) IsFloat() bool {
	switch o {
	case OpFconst32, OpFconst64, OpMovf,
		OpAddf, OpSubf, OpMulf, OpDivf, OpModf,
		OpLtf, OpLtef, OpGtf, OpGtef, OpEqf:
		return true
	}
	return false
}

// IsComparison returns true if the op produces a 0/1 integer from two sources.
func (o Op) IsComparison() bool {
	switch o {
	case OpLt, OpLte, OpGt, OpGte, OpEq, OpLtf, OpLtef, OpGtf, OpGtef, OpEqf:
		return true
	}
	return false
}

// IsCommutative returns true if the sources of the op can be swapped without changing the result.
func (o Op) IsCommutative() bool {
	switch o {
	case OpAddi, OpMuli, OpAddf, OpMulf, OpEq, OpEqf:
		return true
	}
	return false
}

// IsTerminator returns true if the op must end a block.
func (o Op) IsTerminator() bool {
	return o == OpJmp || o == OpBr || o == OpRet
}

// ConstWidth returns the width of the literal of a constant-materialization op.
func (o Op) ConstWidth() Width {
	switch o {
	case OpIconst8:
		return Width8
	case OpIconst16:
		return Width16
	case OpIconst32, OpFconst32:
		return Width32
	case OpIconst64, OpFconst64:
		return Width64
	}
	return 0
}

// ResultType returns the type of the value defined by the op. Calls are resolved by the callee.
func (o Op) ResultType() Type {
	switch o.Category() {
	case CategoryConst, CategoryMove:
		if o.IsFloat() {
			return TypeFloat
		}
		return TypeInt
	case CategoryBinary:
		if o.IsFloat() && !o.IsComparison() {
			return TypeFloat
		}
		return TypeInt
	}
	return TypeVoid
}

var opNames = [...]string{
	OpInvalid:  "invalid",
	OpIconst8:  "iconst8",
	OpIconst16: "iconst16",
	OpIconst32: "iconst32",
	OpIconst64: "iconst64",
	OpFconst32: "fconst32",
	OpFconst64: "fconst64",
	OpMov:      "mov",
	OpMovf:     "movf",
	OpAddi:     "addi",
	OpSubi:     "subi",
	OpMuli:     "muli",
	OpDivi:     "divi",
	OpModi:     "modi",
	OpAddf:     "addf",
	OpSubf:     "subf",
	OpMulf:     "mulf",
	OpDivf:     "divf",
	OpModf:     "modf",
	OpLt:       "lt",
	OpLte:      "lte",
	OpGt:       "gt",
	OpGte:      "gte",
	OpEq:       "eq",
	OpLtf:      "ltf",
	OpLtef:     "ltef",
	OpGtf:      "gtf",
	OpGtef:     "gtef",
	OpEqf:      "eqf",
	OpJmp:      "jmp",
	OpBr:       "br",
	OpCall:     "call",
	OpRet:      "ret",
}

// String implements fmt.Stringer.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// ParseOp returns the Op named s.
func ParseOp(s string) (Op, bool) {
	for op := OpInvalid + 1; op < opEnd; op++ {
		if opNames[op] == s {
			return op, true
		}
	}
	return OpInvalid, false
}

// Ops returns every valid Op in declaration order.
func Ops() []Op {
	ret := make([]Op, 0, opEnd-1)
	for op := OpInvalid + 1; op < opEnd; op++ {
		ret = append(ret, op)
	}
	return ret
}
