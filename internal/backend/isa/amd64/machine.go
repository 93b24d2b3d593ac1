package amd64

import (
	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// NewMachine returns a new backend.Machine for amd64.
func NewMachine() backend.Machine {
	return &machine{}
}

// machine implements backend.Machine for amd64.
type machine struct {
	fc *backend.FunctionContext
	b  *mir.FunctionBuilder

	cur ir.BlockID

	// frame is true if the function sets up rbp and reserves frameSize bytes below it.
	frame     bool
	frameSize int32
	saved     []mir.Reg

	// labelBase is the MIR block of IR block 0. It is 1 when the prologue has its own block.
	labelBase int
}

// RegisterInfo implements backend.Machine.
func (m *machine) RegisterInfo() *regalloc.RegisterInfo { return regInfo }

// StartFunction implements backend.Machine.
func (m *machine) StartFunction(fc *backend.FunctionContext) {
	m.fc = fc
	m.b = mir.NewFunctionBuilder(fc.Func.Name)
	m.cur = -1
	m.labelBase = 0

	m.saved = fc.Alloc.CalleeSaved()
	slots := len(m.saved) + fc.Alloc.SpillSlots()
	m.frameSize = int32(8*slots+15) &^ 15
	m.frame = slots > 0 || m.hasCalls() || m.hasStackParams()
}

// StartBlock implements backend.Machine.
func (m *machine) StartBlock(id ir.BlockID) {
	m.cur = id
	m.b.StartBlock()
	if id == 0 {
		before := m.b.Len()
		m.prologue()
		if m.b.Len() > before {
			// Branches back to the entry block must not run the prologue again.
			m.labelBase = 1
			m.b.StartBlock()
		}
	}
}

// label returns the MIR label of the IR block id.
func (m *machine) label(id ir.BlockID) mir.Extra {
	return mir.Label(int(id) + m.labelBase)
}

// EndFunction implements backend.Machine.
func (m *machine) EndFunction() *mir.Function {
	fn := m.b.Finish()
	m.fc, m.b, m.saved = nil, nil, nil
	return fn
}

func (m *machine) hasCalls() bool {
	for _, blk := range m.fc.Func.Blocks {
		for i := range blk.Insts {
			if blk.Insts[i].Op == ir.OpCall {
				return true
			}
		}
	}
	return false
}

func (m *machine) hasStackParams() bool {
	for _, p := range m.params() {
		if _, ok := m.fc.Alloc.Param(m.fc.Func.Params[p.index].Reg); ok && p.reg == mir.RegNone {
			return true
		}
	}
	return false
}

func (m *machine) params() []argument {
	classes := make([]regalloc.RegType, len(m.fc.Func.Params))
	for i, p := range m.fc.Func.Params {
		classes[i] = regalloc.RegTypeOf(p.Type)
	}
	args, _ := assignArguments(classes)
	return args
}

// prologue sets up the frame and moves the parameters to their allocated locations.
func (m *machine) prologue() {
	if m.frame {
		m.emitR(mir.OpcodePush, mir.RBP)
		m.emitRR(mir.OpcodeMovRR, mir.RBP, mir.RSP)
		if m.frameSize > 0 {
			m.emitRI(mir.OpcodeSubRI, mir.RSP, int64(m.frameSize))
		}
		for i, r := range m.saved {
			m.emit(mir.Instruction{Opcode: mir.OpcodeMovRM, Op1: mir.RBP, Op2: r, Extra: mir.Mem(savedOffset(i))})
		}
	}

	for _, p := range m.params() {
		v := m.fc.Func.Params[p.index].Reg
		loc, ok := m.fc.Alloc.Param(v)
		if !ok {
			continue
		}
		float := m.fc.Func.Params[p.index].Type == ir.TypeFloat
		src := p.reg
		if src == mir.RegNone {
			// Stack arguments sit above the saved rbp and the return address.
			src = scratchFor(float)
			if !loc.OnStack() {
				src = loc.Reg
			}
			m.emit(mir.Instruction{Opcode: loadOpcode(float), Op1: src, Op2: mir.RBP, Extra: mir.Mem(int32(16 + 8*p.stackIndex))})
		}
		m.moveTo(loc, src)
	}
}

// epilogue restores the callee-saved registers and tears down the frame.
func (m *machine) epilogue() {
	if !m.frame {
		return
	}
	for i, r := range m.saved {
		m.emit(mir.Instruction{Opcode: mir.OpcodeMovMR, Op1: r, Op2: mir.RBP, Extra: mir.Mem(savedOffset(i))})
	}
	m.emitRR(mir.OpcodeMovRR, mir.RSP, mir.RBP)
	m.emitR(mir.OpcodePop, mir.RBP)
}

func savedOffset(i int) int32 {
	return int32(-8 * (i + 1))
}

func (m *machine) slotOffset(slot int) int32 {
	return int32(-8 * (len(m.saved) + slot + 1))
}

func (m *machine) emit(i mir.Instruction) {
	m.b.Append(i)
}

func (m *machine) emitR(op mir.Opcode, r mir.Reg) {
	m.emit(mir.Instruction{Opcode: op, Op1: r})
}

func (m *machine) emitRR(op mir.Opcode, dst, src mir.Reg) {
	m.emit(mir.Instruction{Opcode: op, Op1: dst, Op2: src})
}

func (m *machine) emitRI(op mir.Opcode, dst mir.Reg, v int64) {
	m.emit(mir.Instruction{Opcode: op, Op1: dst, Extra: mir.Imm(uint64(v), 64, false)})
}

// mov copies src to dst within a register class, eliding self moves.
func (m *machine) mov(dst, src mir.Reg) {
	if dst == src {
		return
	}
	if dst.IsFloat() {
		m.emitRR(mir.OpcodeFMovRR, dst, src)
	} else {
		m.emitRR(mir.OpcodeMovRR, dst, src)
	}
}

func loadOpcode(float bool) mir.Opcode {
	if float {
		return mir.OpcodeFMovMR
	}
	return mir.OpcodeMovMR
}

func storeOpcode(float bool) mir.Opcode {
	if float {
		return mir.OpcodeFMovRM
	}
	return mir.OpcodeMovRM
}

func scratchFor(float bool) mir.Reg {
	if float {
		return fscratch1
	}
	return scratch1
}

// load reloads the spill slot into dst.
func (m *machine) load(dst mir.Reg, slot int) {
	m.emit(mir.Instruction{Opcode: loadOpcode(dst.IsFloat()), Op1: dst, Op2: mir.RBP, Extra: mir.Mem(m.slotOffset(slot))})
}

// store writes src to the spill slot.
func (m *machine) store(slot int, src mir.Reg) {
	m.emit(mir.Instruction{Opcode: storeOpcode(src.IsFloat()), Op1: mir.RBP, Op2: src, Extra: mir.Mem(m.slotOffset(slot))})
}

// moveTo copies the register src to loc.
func (m *machine) moveTo(loc regalloc.Location, src mir.Reg) {
	if loc.OnStack() {
		m.store(loc.Slot, src)
	} else {
		m.mov(loc.Reg, src)
	}
}

// moveFrom copies loc to the register dst.
func (m *machine) moveFrom(dst mir.Reg, loc regalloc.Location) {
	if loc.OnStack() {
		m.load(dst, loc.Slot)
	} else {
		m.mov(dst, loc.Reg)
	}
}

func immExtra(o ir.Operand) mir.Extra {
	return mir.Imm(o.Bits(), uint8(o.Width()), o.IsFloat())
}

// loadImm materializes the immediate o into dst.
func (m *machine) loadImm(dst mir.Reg, o ir.Operand) {
	op := mir.OpcodeMovRI
	if dst.IsFloat() {
		op = mir.OpcodeFMovRI
	}
	m.emit(mir.Instruction{Opcode: op, Op1: dst, Extra: immExtra(o)})
}

// useReg returns the register holding the virtual register v read by slot, reloading it into
// scratch if it was spilled.
func (m *machine) useReg(pos ir.Pos, slot regalloc.Slot, v ir.VReg, scratch mir.Reg) mir.Reg {
	loc := m.fc.Alloc.Use(pos, slot, v)
	if !loc.OnStack() {
		return loc.Reg
	}
	m.load(scratch, loc.Slot)
	return scratch
}

// operandReg is useReg for operands which may be immediates, materialized into scratch.
func (m *machine) operandReg(pos ir.Pos, slot regalloc.Slot, o ir.Operand, scratch mir.Reg) mir.Reg {
	if o.IsImm() {
		m.loadImm(scratch, o)
		return scratch
	}
	return m.useReg(pos, slot, o.VReg(), scratch)
}

// destination is the register an instruction computes its result in.
type destination struct {
	reg mir.Reg
	loc regalloc.Location
}

// dest returns where the result for v is computed: its register, or scratch if v was spilled.
func (m *machine) dest(pos ir.Pos, v ir.VReg, scratch mir.Reg) destination {
	loc := m.fc.Alloc.Def(pos, v)
	if loc.OnStack() {
		return destination{reg: scratch, loc: loc}
	}
	return destination{reg: loc.Reg, loc: loc}
}

// commit writes a result computed in a scratch register back to its spill slot.
func (m *machine) commit(d destination) {
	if d.loc.OnStack() {
		m.store(d.loc.Slot, d.reg)
	}
}

// fallsThrough returns true if execution reaches block t by falling off the end of the current block.
func (m *machine) fallsThrough(t ir.BlockID) bool {
	blocks := m.fc.Func.Blocks
	for b := m.cur + 1; int(b) < len(blocks); b++ {
		if b == t {
			return true
		}
		if len(blocks[b].Insts) > 0 {
			return false
		}
	}
	return false
}

func (m *machine) typeOf(v ir.VReg) ir.Type {
	return m.fc.Types[v]
}
