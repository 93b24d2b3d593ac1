// Package regalloc decides where the virtual registers of an IR function live during lowering.
//
// Two policies are provided: Fixed, the positional routing every function can be lowered with,
// and LinearScan, which allocates physical registers from liveness intervals and spills to the stack.
package regalloc

import (
	"fmt"

	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// RegType is the register class of a virtual register.
type RegType byte

const (
	RegTypeInvalid RegType = iota
	RegTypeInt
	RegTypeFloat
	RegTypeNum
)

// String implements fmt.Stringer.
func (r RegType) String() string {
	switch r {
	case RegTypeInt:
		return "int"
	case RegTypeFloat:
		return "float"
	}
	return "invalid"
}

// RegTypeOf returns the register class holding values of type t.
func RegTypeOf(t ir.Type) RegType {
	switch t {
	case ir.TypeInt:
		return RegTypeInt
	case ir.TypeFloat:
		return RegTypeFloat
	}
	return RegTypeInvalid
}

// RegisterInfo holds the statically-known ISA-specific register information.
type RegisterInfo struct {
	// AllocatableRegisters is indexed by RegType.
	// The order matters: the first element is the most preferred one when allocating.
	AllocatableRegisters [RegTypeNum][]mir.Reg
	CalleeSavedRegisters map[mir.Reg]struct{}
	// FixedRegisters holds the destination, first source and second source locations of the Fixed policy.
	FixedRegisters [RegTypeNum][3]mir.Reg
}

// Slot identifies an operand of an instruction.
type Slot int

const (
	SlotDst Slot = iota
	SlotSrc1
	SlotSrc2
	slotArg0
)

// ArgSlot returns the Slot of the i-th call argument.
func ArgSlot(i int) Slot { return slotArg0 + Slot(i) }

// Location is where a virtual register lives: a physical register, or a stack slot when Reg is mir.RegNone.
type Location struct {
	Reg  mir.Reg
	Slot int
}

// OnStack returns true if the location is a stack slot.
func (l Location) OnStack() bool { return l.Reg == mir.RegNone }

// String implements fmt.Stringer.
func (l Location) String() string {
	if l.OnStack() {
		return fmt.Sprintf("slot%d", l.Slot)
	}
	return l.Reg.String()
}

// Allocation is the result of running an Allocator on a function.
type Allocation interface {
	// Def returns the location the instruction at pos writes v to.
	Def(pos ir.Pos, v ir.VReg) Location
	// Use returns the location the operand in slot of the instruction at pos is read from.
	Use(pos ir.Pos, slot Slot, v ir.VReg) Location
	// Param returns the location of the parameter v after the entry sequence.
	// ok is false if the policy leaves parameters where the caller put them.
	Param(v ir.VReg) (loc Location, ok bool)
	// SpillSlots returns the number of 8-byte stack slots the allocation needs.
	SpillSlots() int
	// CalleeSaved returns the callee-saved registers the allocation uses.
	CalleeSaved() []mir.Reg
}

// Allocator assigns locations to the virtual registers of a function.
type Allocator interface {
	// Allocate runs on a validated function whose register classes are types.
	Allocate(fn *ir.Function, types map[ir.VReg]ir.Type) (Allocation, error)
}
