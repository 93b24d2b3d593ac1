package amd64

import (
	"math"

	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// source is a binary operand together with the slot it is read through.
type source struct {
	o    ir.Operand
	slot regalloc.Slot
}

// LowerBinary implements backend.Machine.
func (m *machine) LowerBinary(pos ir.Pos, inst *ir.Instruction) error {
	if err := checkDst(inst); err != nil {
		return err
	}
	a, b := source{inst.Src1, regalloc.SlotSrc1}, source{inst.Src2, regalloc.SlotSrc2}
	switch {
	case !a.o.Valid() || !b.o.Valid():
		return backend.Malformed("missing source")
	case a.o.IsImm() && b.o.IsImm():
		return backend.Malformed("both sources are immediates")
	}
	for _, s := range []source{a, b} {
		if s.o.IsImm() && s.o.IsFloat() != inst.Op.IsFloat() {
			return backend.Malformed("immediate %s does not match the op", s.o)
		}
	}

	if inst.Op.IsComparison() {
		d := m.dest(pos, inst.Dst.VReg(), scratch1)
		if inst.Op.IsFloat() {
			m.lowerFloatCompare(pos, inst.Op, d.reg, a, b)
		} else {
			m.lowerIntCompare(pos, inst.Op, d.reg, a, b)
		}
		m.emitRR(mir.OpcodeMovZXB, d.reg, d.reg)
		m.commit(d)
		return nil
	}

	float := inst.Op.IsFloat()
	d := m.dest(pos, inst.Dst.VReg(), scratchFor(float))
	switch inst.Op {
	case ir.OpAddi:
		m.twoAddress(pos, d.reg, a, b, mir.OpcodeAddRR, mir.OpcodeAddRI, inst.Op.IsCommutative())
	case ir.OpSubi:
		if a.o.IsImm() {
			// imm - b == -b + imm
			m.moveFrom(d.reg, m.fc.Alloc.Use(pos, b.slot, b.o.VReg()))
			m.emitR(mir.OpcodeNeg, d.reg)
			m.aluImm(mir.OpcodeAddRR, mir.OpcodeAddRI, d.reg, a.o)
		} else {
			m.twoAddress(pos, d.reg, a, b, mir.OpcodeSubRR, mir.OpcodeSubRI, inst.Op.IsCommutative())
		}
	case ir.OpMuli:
		m.twoAddress(pos, d.reg, a, b, mir.OpcodeImulRR, mir.OpcodeImulRI, inst.Op.IsCommutative())
	case ir.OpDivi, ir.OpModi:
		m.lowerDivMod(pos, inst.Op, d.reg, a, b)
	case ir.OpAddf:
		m.twoAddress(pos, d.reg, a, b, mir.OpcodeAddSD, mir.OpcodeInvalid, inst.Op.IsCommutative())
	case ir.OpSubf:
		m.twoAddress(pos, d.reg, a, b, mir.OpcodeSubSD, mir.OpcodeInvalid, inst.Op.IsCommutative())
	case ir.OpMulf:
		m.twoAddress(pos, d.reg, a, b, mir.OpcodeMulSD, mir.OpcodeInvalid, inst.Op.IsCommutative())
	case ir.OpDivf:
		m.twoAddress(pos, d.reg, a, b, mir.OpcodeDivSD, mir.OpcodeInvalid, inst.Op.IsCommutative())
	case ir.OpModf:
		m.lowerFloatMod(pos, d.reg, a, b)
	default:
		return backend.Malformed("not a binary operation")
	}
	m.commit(d)
	return nil
}

// holds returns true if s is a virtual register currently allocated to r.
func (m *machine) holds(pos ir.Pos, s source, r mir.Reg) bool {
	if !s.o.IsVReg() {
		return false
	}
	loc := m.fc.Alloc.Use(pos, s.slot, s.o.VReg())
	return !loc.OnStack() && loc.Reg == r
}

// twoAddress emits d = a op b. ri is the immediate form of rr, or mir.OpcodeInvalid if there is none.
// The sources are swapped when that saves a move and commutative allows it.
func (m *machine) twoAddress(pos ir.Pos, d mir.Reg, a, b source, rr, ri mir.Opcode, commutative bool) {
	if commutative && (a.o.IsImm() || (m.holds(pos, b, d) && !m.holds(pos, a, d))) {
		a, b = b, a
	}

	tmp := scratch2
	if d.IsFloat() {
		tmp = fscratch2
	}

	var rb mir.Reg
	switch {
	case b.o.IsImm():
		if ri == mir.OpcodeInvalid {
			m.loadImm(tmp, b.o)
			rb = tmp
		}
	default:
		loc := m.fc.Alloc.Use(pos, b.slot, b.o.VReg())
		switch {
		case loc.OnStack():
			m.load(tmp, loc.Slot)
			rb = tmp
		case loc.Reg == d && !m.holds(pos, a, d):
			// Loading a into d would overwrite b.
			m.mov(tmp, loc.Reg)
			rb = tmp
		default:
			rb = loc.Reg
		}
	}

	if a.o.IsImm() {
		m.loadImm(d, a.o)
	} else {
		m.moveFrom(d, m.fc.Alloc.Use(pos, a.slot, a.o.VReg()))
	}

	if rb == mir.RegNone {
		m.aluImm(rr, ri, d, b.o)
	} else {
		m.emitRR(rr, d, rb)
	}
}

// aluImm emits d = d op imm, going through scratch2 if imm doesn't fit the sign-extended
// 32-bit immediate field.
func (m *machine) aluImm(rr, ri mir.Opcode, d mir.Reg, imm ir.Operand) {
	if v := int64(imm.Bits()); fitsImm32(v) {
		m.emitRI(ri, d, v)
		return
	}
	m.loadImm(scratch2, imm)
	m.emitRR(rr, d, scratch2)
}

func fitsImm32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// lowerDivMod emits a signed division of rdx:rax, taking the quotient from rax or the remainder
// from rdx.
func (m *machine) lowerDivMod(pos ir.Pos, op ir.Op, d mir.Reg, a, b source) {
	var divisor mir.Reg
	if b.o.IsImm() {
		m.loadImm(scratch2, b.o)
		divisor = scratch2
	} else {
		loc := m.fc.Alloc.Use(pos, b.slot, b.o.VReg())
		switch {
		case loc.OnStack():
			m.load(scratch2, loc.Slot)
			divisor = scratch2
		case loc.Reg == mir.RAX || loc.Reg == mir.RDX:
			m.mov(scratch2, loc.Reg)
			divisor = scratch2
		default:
			divisor = loc.Reg
		}
	}

	if a.o.IsImm() {
		m.loadImm(mir.RAX, a.o)
	} else {
		m.moveFrom(mir.RAX, m.fc.Alloc.Use(pos, a.slot, a.o.VReg()))
	}
	m.emit(mir.Instruction{Opcode: mir.OpcodeCqo})
	m.emitR(mir.OpcodeIdiv, divisor)

	if op == ir.OpDivi {
		m.mov(d, mir.RAX)
	} else {
		m.mov(d, mir.RDX)
	}
}

// lowerFloatMod computes a - trunc(a/b)*b.
func (m *machine) lowerFloatMod(pos ir.Pos, d mir.Reg, a, b source) {
	ra := m.operandReg(pos, a.slot, a.o, fscratch1)
	rb := m.operandReg(pos, b.slot, b.o, fscratch2)
	t := fscratch0
	m.mov(t, ra)
	m.emitRR(mir.OpcodeDivSD, t, rb)
	m.emit(mir.Instruction{Opcode: mir.OpcodeRoundSD, Op1: t, Op2: t, Extra: mir.Imm(3, 8, false)})
	m.emitRR(mir.OpcodeMulSD, t, rb)
	m.mov(d, ra)
	m.emitRR(mir.OpcodeSubSD, d, t)
}

var (
	setcc = map[ir.Op]mir.Opcode{
		ir.OpLt:  mir.OpcodeSetL,
		ir.OpLte: mir.OpcodeSetLE,
		ir.OpGt:  mir.OpcodeSetG,
		ir.OpGte: mir.OpcodeSetGE,
		ir.OpEq:  mir.OpcodeSetE,
	}
	// mirrored holds the comparison that gives the same result with the operands swapped.
	mirrored = map[ir.Op]ir.Op{
		ir.OpLt:  ir.OpGt,
		ir.OpLte: ir.OpGte,
		ir.OpGt:  ir.OpLt,
		ir.OpGte: ir.OpLte,
		ir.OpEq:  ir.OpEq,
	}
)

// lowerIntCompare sets the low byte of d to a op b.
func (m *machine) lowerIntCompare(pos ir.Pos, op ir.Op, d mir.Reg, a, b source) {
	if a.o.IsImm() {
		a, b = b, a
		op = mirrored[op]
	}
	ra := m.useReg(pos, a.slot, a.o.VReg(), scratch1)
	if b.o.IsImm() {
		m.aluImm(mir.OpcodeCmpRR, mir.OpcodeCmpRI, ra, b.o)
	} else {
		m.emitRR(mir.OpcodeCmpRR, ra, m.useReg(pos, b.slot, b.o.VReg(), scratch2))
	}
	m.emitR(setcc[op], d)
}

// lowerFloatCompare sets the low byte of d to a op b. ucomisd reports unordered operands as
// below and equal with parity set, so only the above conditions are used and eq checks parity.
func (m *machine) lowerFloatCompare(pos ir.Pos, op ir.Op, d mir.Reg, a, b source) {
	ra := m.operandReg(pos, a.slot, a.o, fscratch1)
	rb := m.operandReg(pos, b.slot, b.o, fscratch2)
	switch op {
	case ir.OpLtf:
		m.emitRR(mir.OpcodeUcomiSD, rb, ra)
		m.emitR(mir.OpcodeSetA, d)
	case ir.OpLtef:
		m.emitRR(mir.OpcodeUcomiSD, rb, ra)
		m.emitR(mir.OpcodeSetAE, d)
	case ir.OpGtf:
		m.emitRR(mir.OpcodeUcomiSD, ra, rb)
		m.emitR(mir.OpcodeSetA, d)
	case ir.OpGtef:
		m.emitRR(mir.OpcodeUcomiSD, ra, rb)
		m.emitR(mir.OpcodeSetAE, d)
	case ir.OpEqf:
		m.emitRR(mir.OpcodeUcomiSD, ra, rb)
		m.emitR(mir.OpcodeSetE, d)
		m.emitR(mir.OpcodeSetNP, scratch2)
		m.emitRR(mir.OpcodeAndB, d, scratch2)
	}
}
