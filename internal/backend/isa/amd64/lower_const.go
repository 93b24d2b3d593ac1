package amd64

import (
	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// LowerConst implements backend.Machine.
func (m *machine) LowerConst(pos ir.Pos, inst *ir.Instruction) error {
	if err := checkDst(inst); err != nil {
		return err
	}
	lit := inst.Src1
	switch {
	case !lit.IsImm():
		return backend.Malformed("literal must be an immediate")
	case lit.IsFloat() != inst.Op.IsFloat() || lit.Width() != inst.Op.ConstWidth():
		return backend.Malformed("literal %s does not match the op", lit)
	case inst.Src2.Valid():
		return backend.Malformed("unexpected second source")
	}

	d := m.dest(pos, inst.Dst.VReg(), scratchFor(inst.Op.IsFloat()))
	m.loadImm(d.reg, lit)
	m.commit(d)
	return nil
}

// LowerMove implements backend.Machine.
func (m *machine) LowerMove(pos ir.Pos, inst *ir.Instruction) error {
	if err := checkDst(inst); err != nil {
		return err
	}
	float := inst.Op == ir.OpMovf
	src := inst.Src1
	if inst.Src2.Valid() {
		return backend.Malformed("unexpected second source")
	}

	dl := m.fc.Alloc.Def(pos, inst.Dst.VReg())
	switch src.Kind() {
	case ir.OperandKindImm:
		if src.IsFloat() != float {
			return backend.Malformed("immediate %s does not match the op", src)
		}
		if !dl.OnStack() {
			m.loadImm(dl.Reg, src)
			return nil
		}
		tmp := scratchFor(float)
		m.loadImm(tmp, src)
		m.store(dl.Slot, tmp)
	case ir.OperandKindVReg:
		sl := m.fc.Alloc.Use(pos, regalloc.SlotSrc1, src.VReg())
		switch {
		case !sl.OnStack():
			m.moveTo(dl, sl.Reg)
		case !dl.OnStack():
			m.load(dl.Reg, sl.Slot)
		case dl.Slot != sl.Slot:
			tmp := scratchFor(float)
			m.load(tmp, sl.Slot)
			m.store(dl.Slot, tmp)
		}
	default:
		return backend.Malformed("missing source")
	}
	return nil
}

// checkDst rejects instructions which define a value without a virtual register destination.
// It runs before anything is emitted for the instruction.
func checkDst(inst *ir.Instruction) error {
	switch inst.Dst.Kind() {
	case ir.OperandKindVReg:
		return nil
	case ir.OperandKindImm:
		return backend.Malformed("destination is an immediate")
	default:
		return backend.Malformed("missing destination")
	}
}

// resultReg returns the register values of type t are returned in.
func resultReg(t ir.Type) mir.Reg {
	if t == ir.TypeFloat {
		return floatResultReg
	}
	return intResultReg
}
