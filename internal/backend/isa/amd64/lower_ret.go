package amd64

import (
	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// LowerReturn implements backend.Machine.
func (m *machine) LowerReturn(pos ir.Pos, inst *ir.Instruction) error {
	if inst.Dst.Valid() || inst.Src2.Valid() {
		return backend.Malformed("unexpected operand")
	}

	src := inst.Src1
	switch src.Kind() {
	case ir.OperandKindImm:
		t := ir.TypeInt
		if src.IsFloat() {
			t = ir.TypeFloat
		}
		m.loadImm(resultReg(t), src)
	case ir.OperandKindVReg:
		v := src.VReg()
		m.moveFrom(resultReg(m.typeOf(v)), m.fc.Alloc.Use(pos, regalloc.SlotSrc1, v))
	default:
		if m.fc.Func.Result != ir.TypeVoid {
			return backend.Malformed("missing return value")
		}
	}

	m.epilogue()
	m.emit(mir.Instruction{Opcode: mir.OpcodeRet})
	return nil
}
