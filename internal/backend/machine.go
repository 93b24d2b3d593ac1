package backend

import (
	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// FunctionContext is what a Machine knows about the function being lowered.
type FunctionContext struct {
	Module *ir.Module
	Func   *ir.Function
	// Types is the register class of each virtual register of Func.
	Types map[ir.VReg]ir.Type
	Alloc regalloc.Allocation
}

// Machine is a backend for a specific ISA machine. A Machine lowers one function at a time
// and is not safe for concurrent use.
//
// The compiler classifies each IR instruction by ir.Category and calls the matching Lower
// method, in program order. A Lower method that returns an error must not have appended any
// instruction for that IR instruction when the error is about its operands.
type Machine interface {
	// RegisterInfo returns the register information of the ISA.
	RegisterInfo() *regalloc.RegisterInfo

	// StartFunction is called before lowering fc.Func.
	StartFunction(fc *FunctionContext)
	// StartBlock is called for each block of the function in order, including empty ones.
	StartBlock(id ir.BlockID)

	// LowerConst lowers a constant materialization.
	LowerConst(pos ir.Pos, inst *ir.Instruction) error
	// LowerMove lowers a register move.
	LowerMove(pos ir.Pos, inst *ir.Instruction) error
	// LowerBinary lowers an arithmetic operation or comparison.
	LowerBinary(pos ir.Pos, inst *ir.Instruction) error
	// LowerBranch lowers a jump or conditional branch.
	LowerBranch(pos ir.Pos, inst *ir.Instruction) error
	// LowerCall lowers a call.
	LowerCall(pos ir.Pos, inst *ir.Instruction) error
	// LowerReturn lowers a return.
	LowerReturn(pos ir.Pos, inst *ir.Instruction) error

	// EndFunction returns the lowered function.
	EndFunction() *mir.Function
}
