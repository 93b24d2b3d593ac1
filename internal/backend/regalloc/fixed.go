package regalloc

import (
	"tlog.app/go/errors"

	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// NewFixed returns the positional Allocator: the destination of every instruction lives in
// the first fixed register of its class, the first source in the second and the second
// source in the third. It ignores liveness, so it is only faithful for code in which every
// value is consumed by the instruction right after its definition.
func NewFixed(info *RegisterInfo) Allocator {
	return &fixed{info: info}
}

type fixed struct {
	info *RegisterInfo
}

// Allocate implements Allocator.Allocate.
func (f *fixed) Allocate(fn *ir.Function, types map[ir.VReg]ir.Type) (Allocation, error) {
	err := fn.Walk(func(_ ir.Pos, blk ir.BlockID, idx int, inst *ir.Instruction) error {
		if inst.Op != ir.OpCall {
			return nil
		}
		for i, a := range inst.Args {
			if a.IsVReg() && i >= 2 {
				return errors.New("%s[%d]: call %s: fixed routing places at most two register arguments, argument %d is %s",
					blk, idx, inst.Callee, i, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fixedAllocation{info: f.info, types: types}, nil
}

type fixedAllocation struct {
	info  *RegisterInfo
	types map[ir.VReg]ir.Type
}

func (a *fixedAllocation) reg(v ir.VReg, i int) Location {
	t := RegTypeOf(a.types[v])
	if t == RegTypeInvalid {
		panic("BUG: no register class for " + v.String())
	}
	return Location{Reg: a.info.FixedRegisters[t][i]}
}

// Def implements Allocation.Def.
func (a *fixedAllocation) Def(_ ir.Pos, v ir.VReg) Location {
	return a.reg(v, 0)
}

// Use implements Allocation.Use.
func (a *fixedAllocation) Use(_ ir.Pos, slot Slot, v ir.VReg) Location {
	switch slot {
	case SlotSrc1, ArgSlot(0):
		return a.reg(v, 1)
	case SlotSrc2, ArgSlot(1):
		return a.reg(v, 2)
	}
	panic("BUG: fixed routing has no location for the operand slot")
}

// Param implements Allocation.Param.
func (a *fixedAllocation) Param(ir.VReg) (Location, bool) { return Location{}, false }

// SpillSlots implements Allocation.SpillSlots.
func (a *fixedAllocation) SpillSlots() int { return 0 }

// CalleeSaved implements Allocation.CalleeSaved.
func (a *fixedAllocation) CalleeSaved() []mir.Reg { return nil }
