package amd64

import (
	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// LowerCall implements backend.Machine.
func (m *machine) LowerCall(pos ir.Pos, inst *ir.Instruction) error {
	if inst.Dst.IsImm() {
		return backend.Malformed("destination is an immediate")
	}
	if inst.Src1.Valid() || inst.Src2.Valid() {
		return backend.Malformed("unexpected operand")
	}
	callee := m.fc.Module.Function(inst.Callee)
	if callee == nil {
		return backend.Malformed("unknown callee %q", inst.Callee)
	}
	if len(inst.Args) != len(callee.Params) {
		return backend.Malformed("%s takes %d arguments, got %d", callee.Name, len(callee.Params), len(inst.Args))
	}
	for i, a := range inst.Args {
		if !a.Valid() {
			return backend.Malformed("missing argument %d", i)
		}
	}

	classes := make([]regalloc.RegType, len(callee.Params))
	for i, p := range callee.Params {
		classes[i] = regalloc.RegTypeOf(p.Type)
	}
	args, stackArgs := assignArguments(classes)

	// Stack arguments are pushed right to left, keeping rsp 16-byte aligned at the call.
	stackSize := int64(8 * stackArgs)
	if stackArgs%2 == 1 {
		m.emitRI(mir.OpcodeSubRI, mir.RSP, 8)
		stackSize += 8
	}
	for i := len(args) - 1; i >= 0; i-- {
		if a := args[i]; a.reg == mir.RegNone {
			m.pushArg(pos, a.index, inst.Args[a.index], classes[a.index])
		}
	}

	// The allocators never place values in argument registers, so the moves can't clobber each other.
	for _, a := range args {
		if o := inst.Args[a.index]; a.reg != mir.RegNone && o.IsVReg() {
			m.moveFrom(a.reg, m.fc.Alloc.Use(pos, regalloc.ArgSlot(a.index), o.VReg()))
		}
	}
	for _, a := range args {
		if o := inst.Args[a.index]; a.reg != mir.RegNone && o.IsImm() {
			m.loadImm(a.reg, o)
		}
	}

	m.emit(mir.Instruction{Opcode: mir.OpcodeCall, Extra: mir.Symbol(callee.Name)})
	if stackSize > 0 {
		m.emitRI(mir.OpcodeAddRI, mir.RSP, stackSize)
	}

	if inst.Dst.IsVReg() && callee.Result != ir.TypeVoid {
		float := callee.Result == ir.TypeFloat
		d := m.dest(pos, inst.Dst.VReg(), scratchFor(float))
		m.mov(d.reg, resultReg(callee.Result))
		m.commit(d)
	}
	return nil
}

func (m *machine) pushArg(pos ir.Pos, i int, o ir.Operand, class regalloc.RegType) {
	if class == regalloc.RegTypeFloat {
		r := m.operandReg(pos, regalloc.ArgSlot(i), o, fscratch2)
		m.emitRI(mir.OpcodeSubRI, mir.RSP, 8)
		m.emit(mir.Instruction{Opcode: mir.OpcodeFMovRM, Op1: mir.RSP, Op2: r, Extra: mir.Mem(0)})
		return
	}
	r := m.operandReg(pos, regalloc.ArgSlot(i), o, scratch2)
	m.emitR(mir.OpcodePush, r)
}
