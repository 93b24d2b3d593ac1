package backend

import (
	"fmt"

	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// mockMachine implements Machine for testing. Every call is recorded in log.
type mockMachine struct {
	log   *[]string
	rinfo *regalloc.RegisterInfo
	fc    *FunctionContext

	lowerConst  func(pos ir.Pos, inst *ir.Instruction) error
	lowerBinary func(pos ir.Pos, inst *ir.Instruction) error
}

var mockRegisterInfo = &regalloc.RegisterInfo{
	AllocatableRegisters: [regalloc.RegTypeNum][]mir.Reg{
		regalloc.RegTypeInt:   {mir.RBX, mir.R12},
		regalloc.RegTypeFloat: {mir.XMM8},
	},
	CalleeSavedRegisters: map[mir.Reg]struct{}{mir.RBX: {}, mir.R12: {}},
	FixedRegisters: [regalloc.RegTypeNum][3]mir.Reg{
		regalloc.RegTypeInt:   {mir.RAX, mir.RAX, mir.RCX},
		regalloc.RegTypeFloat: {mir.XMM0, mir.XMM0, mir.XMM1},
	},
}

func (m *mockMachine) record(format string, args ...interface{}) {
	*m.log = append(*m.log, fmt.Sprintf(format, args...))
}

// RegisterInfo implements Machine.RegisterInfo.
func (m *mockMachine) RegisterInfo() *regalloc.RegisterInfo { return m.rinfo }

// StartFunction implements Machine.StartFunction.
func (m *mockMachine) StartFunction(fc *FunctionContext) {
	m.fc = fc
	m.record("start %s", fc.Func.Name)
}

// StartBlock implements Machine.StartBlock.
func (m *mockMachine) StartBlock(id ir.BlockID) { m.record("block %s", id) }

// LowerConst implements Machine.LowerConst.
func (m *mockMachine) LowerConst(pos ir.Pos, inst *ir.Instruction) error {
	if m.lowerConst != nil {
		return m.lowerConst(pos, inst)
	}
	return m.lower("const", pos, inst)
}

// LowerMove implements Machine.LowerMove.
func (m *mockMachine) LowerMove(pos ir.Pos, inst *ir.Instruction) error {
	return m.lower("move", pos, inst)
}

// LowerBinary implements Machine.LowerBinary.
func (m *mockMachine) LowerBinary(pos ir.Pos, inst *ir.Instruction) error {
	if m.lowerBinary != nil {
		return m.lowerBinary(pos, inst)
	}
	return m.lower("binary", pos, inst)
}

// LowerBranch implements Machine.LowerBranch.
func (m *mockMachine) LowerBranch(pos ir.Pos, inst *ir.Instruction) error {
	return m.lower("branch", pos, inst)
}

// LowerCall implements Machine.LowerCall.
func (m *mockMachine) LowerCall(pos ir.Pos, inst *ir.Instruction) error {
	return m.lower("call", pos, inst)
}

// LowerReturn implements Machine.LowerReturn.
func (m *mockMachine) LowerReturn(pos ir.Pos, inst *ir.Instruction) error {
	return m.lower("return", pos, inst)
}

func (m *mockMachine) lower(cat string, pos ir.Pos, inst *ir.Instruction) error {
	m.record("%d: %s %s", pos, cat, inst.Op)
	return nil
}

// EndFunction implements Machine.EndFunction.
func (m *mockMachine) EndFunction() *mir.Function {
	m.record("end")
	b := mir.NewFunctionBuilder(m.fc.Func.Name)
	b.StartBlock()
	b.Append(mir.Instruction{Opcode: mir.OpcodeRet})
	return b.Finish()
}
