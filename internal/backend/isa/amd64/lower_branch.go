package amd64

import (
	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// LowerBranch implements backend.Machine.
//
// Jumps to the block laid out next are elided. A conditional branch on an immediate is
// resolved statically, one on a register tests it against zero.
func (m *machine) LowerBranch(pos ir.Pos, inst *ir.Instruction) error {
	if inst.Dst.Valid() || inst.Src2.Valid() {
		return backend.Malformed("unexpected operand")
	}

	switch inst.Op {
	case ir.OpJmp:
		if inst.Src1.Valid() {
			return backend.Malformed("unexpected operand")
		}
		m.jump(inst.Target)
	case ir.OpBr:
		cond := inst.Src1
		switch cond.Kind() {
		case ir.OperandKindImm:
			if cond.Bits() != 0 {
				m.jump(inst.Target)
			} else {
				m.jump(inst.Else)
			}
		case ir.OperandKindVReg:
			r := m.useReg(pos, regalloc.SlotSrc1, cond.VReg(), scratch1)
			m.emitRR(mir.OpcodeTestRR, r, r)
			switch {
			case inst.Target == inst.Else:
				m.jump(inst.Target)
			case m.fallsThrough(inst.Target):
				m.emit(mir.Instruction{Opcode: mir.OpcodeJe, Extra: m.label(inst.Else)})
			default:
				m.emit(mir.Instruction{Opcode: mir.OpcodeJne, Extra: m.label(inst.Target)})
				m.jump(inst.Else)
			}
		default:
			return backend.Malformed("missing condition")
		}
	default:
		return backend.Malformed("not a branch")
	}
	return nil
}

// jump emits an unconditional jump to t unless t is reached by falling through.
func (m *machine) jump(t ir.BlockID) {
	if m.fallsThrough(t) {
		return
	}
	m.emit(mir.Instruction{Opcode: mir.OpcodeJmp, Extra: m.label(t)})
}
