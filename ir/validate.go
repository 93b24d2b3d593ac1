package ir

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"tlog.app/go/errors"
)

// ErrMalformed is the root of every validation error.
var ErrMalformed = errors.New("malformed IR")

// ValidationError describes a single malformed instruction or function.
type ValidationError struct {
	Function string
	// Block and Index locate the instruction, Index is -1 for function level problems.
	Block BlockID
	Index int
	Op    Op
	Kinds [3]OperandKind
	Msg   string
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("func %s: %s", e.Function, e.Msg)
	}
	return fmt.Sprintf("func %s: %s[%d]: %s(%s, %s, %s): %s", e.Function, e.Block, e.Index,
		e.Op, e.Kinds[0], e.Kinds[1], e.Kinds[2], e.Msg)
}

// Unwrap returns ErrMalformed.
func (e *ValidationError) Unwrap() error { return ErrMalformed }

// Validate checks every function of the module and returns all problems found.
func Validate(m *Module) error {
	var errs *multierror.Error
	if err := ValidateNames(m); err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, f := range m.Functions {
		if _, err := ValidateFunction(m, f); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// ValidateNames checks that the function names of the module are unique, since calls refer
// to their callee by name.
func ValidateNames(m *Module) error {
	var errs *multierror.Error
	seen := make(map[string]struct{}, len(m.Functions))
	for _, f := range m.Functions {
		if _, ok := seen[f.Name]; ok {
			errs = multierror.Append(errs, &ValidationError{Function: f.Name, Index: -1, Msg: "duplicate function name"})
		}
		seen[f.Name] = struct{}{}
	}
	return errs.ErrorOrNil()
}

// ValidateFunction checks f against the rules of well-formed IR and returns the
// register class of every virtual register it defines.
//
// Sources must be defined earlier in program order, destinations of value producing
// operations must be virtual registers, operand classes must agree with the op, and
// every non-empty block reachable from the entry must end with its only terminator.
func ValidateFunction(m *Module, f *Function) (map[VReg]Type, error) {
	v := &validator{m: m, f: f, types: make(map[VReg]Type, len(f.Params))}
	for _, p := range f.Params {
		if p.Type != TypeInt && p.Type != TypeFloat {
			v.fail(-1, -1, nil, "parameter %s has type %s", p.Reg, p.Type)
			continue
		}
		if _, ok := v.types[p.Reg]; ok {
			v.fail(-1, -1, nil, "parameter %s declared twice", p.Reg)
		}
		v.types[p.Reg] = p.Type
	}

	_ = f.Walk(func(_ Pos, blk BlockID, idx int, inst *Instruction) error {
		v.instruction(blk, idx, inst)
		return nil
	})
	v.terminators()
	return v.types, v.errs.ErrorOrNil()
}

type validator struct {
	m     *Module
	f     *Function
	types map[VReg]Type
	errs  *multierror.Error
}

func (v *validator) fail(blk BlockID, idx int, inst *Instruction, format string, args ...interface{}) {
	e := &ValidationError{Function: v.f.Name, Block: blk, Index: idx, Msg: fmt.Sprintf(format, args...)}
	if inst != nil {
		e.Op, e.Kinds = inst.Op, inst.OperandKinds()
	}
	v.errs = multierror.Append(v.errs, e)
}

func (v *validator) instruction(blk BlockID, idx int, inst *Instruction) {
	cat := inst.Op.Category()
	if cat == CategoryInvalid {
		v.fail(blk, idx, inst, "unknown op")
		return
	}

	want := TypeInt
	if inst.Op.IsFloat() {
		want = TypeFloat
	}

	switch cat {
	case CategoryConst:
		switch {
		case !inst.Src1.IsImm():
			v.fail(blk, idx, inst, "literal must be an immediate")
		case inst.Src1.IsFloat() != inst.Op.IsFloat() || inst.Src1.Width() != inst.Op.ConstWidth():
			v.fail(blk, idx, inst, "literal %s does not match %s", inst.Src1, inst.Op)
		}
		v.absent(blk, idx, inst, inst.Src2, "second source")
	case CategoryMove:
		v.source(blk, idx, inst, inst.Src1, want, true)
		v.absent(blk, idx, inst, inst.Src2, "second source")
	case CategoryBinary:
		if inst.Src1.IsImm() && inst.Src2.IsImm() {
			v.fail(blk, idx, inst, "both sources are immediates")
		}
		v.source(blk, idx, inst, inst.Src1, want, true)
		v.source(blk, idx, inst, inst.Src2, want, true)
	case CategoryBranch:
		v.target(blk, idx, inst, inst.Target)
		if inst.Op == OpBr {
			v.target(blk, idx, inst, inst.Else)
			v.source(blk, idx, inst, inst.Src1, TypeInt, true)
		} else {
			v.absent(blk, idx, inst, inst.Src1, "source")
		}
		v.absent(blk, idx, inst, inst.Src2, "second source")
	case CategoryCall:
		v.call(blk, idx, inst)
	case CategoryReturn:
		v.source(blk, idx, inst, inst.Src1, v.f.Result, v.f.Result != TypeVoid)
		v.absent(blk, idx, inst, inst.Src2, "second source")
	}

	// Definitions follow the uses so that `v1 = addi v1, #1` needs an earlier v1.
	switch cat {
	case CategoryConst, CategoryMove, CategoryBinary:
		v.define(blk, idx, inst, inst.Op.ResultType(), true)
	case CategoryCall:
		if callee := v.m.Function(inst.Callee); callee != nil && callee.Result != TypeVoid {
			v.define(blk, idx, inst, callee.Result, false)
		} else {
			v.absent(blk, idx, inst, inst.Dst, "destination of a call without result")
		}
	default:
		v.absent(blk, idx, inst, inst.Dst, "destination")
	}
}

func (v *validator) source(blk BlockID, idx int, inst *Instruction, o Operand, want Type, required bool) {
	switch o.Kind() {
	case OperandKindNone:
		if required {
			v.fail(blk, idx, inst, "missing source")
		}
	case OperandKindImm:
		if want == TypeVoid {
			v.fail(blk, idx, inst, "unexpected source %s", o)
		} else if o.IsFloat() != (want == TypeFloat) {
			v.fail(blk, idx, inst, "immediate %s is not %s", o, want)
		}
	case OperandKindVReg:
		got, ok := v.types[o.VReg()]
		switch {
		case !ok:
			v.fail(blk, idx, inst, "%s is used before its definition", o)
		case want == TypeVoid:
			v.fail(blk, idx, inst, "unexpected source %s", o)
		case got != want:
			v.fail(blk, idx, inst, "%s is %s, want %s", o, got, want)
		}
	}
}

func (v *validator) absent(blk BlockID, idx int, inst *Instruction, o Operand, what string) {
	if o.Valid() {
		v.fail(blk, idx, inst, "unexpected %s %s", what, o)
	}
}

func (v *validator) define(blk BlockID, idx int, inst *Instruction, typ Type, required bool) {
	switch inst.Dst.Kind() {
	case OperandKindNone:
		if required {
			v.fail(blk, idx, inst, "missing destination")
		}
	case OperandKindImm:
		v.fail(blk, idx, inst, "destination is an immediate")
	case OperandKindVReg:
		r := inst.Dst.VReg()
		if prev, ok := v.types[r]; ok && prev != typ {
			v.fail(blk, idx, inst, "%s redefined as %s, was %s", r, typ, prev)
			return
		}
		v.types[r] = typ
	}
}

func (v *validator) target(blk BlockID, idx int, inst *Instruction, t BlockID) {
	if t < 0 || int(t) >= len(v.f.Blocks) {
		v.fail(blk, idx, inst, "branch target %s out of range", t)
	}
}

func (v *validator) call(blk BlockID, idx int, inst *Instruction) {
	v.absent(blk, idx, inst, inst.Src1, "source")
	v.absent(blk, idx, inst, inst.Src2, "second source")
	callee := v.m.Function(inst.Callee)
	if callee == nil {
		v.fail(blk, idx, inst, "unknown callee %q", inst.Callee)
		return
	}
	if len(inst.Args) != len(callee.Params) {
		v.fail(blk, idx, inst, "%s takes %d arguments, got %d", callee.Name, len(callee.Params), len(inst.Args))
		return
	}
	for i, a := range inst.Args {
		v.source(blk, idx, inst, a, callee.Params[i].Type, true)
	}
}

// terminators checks the block structure: a terminator ends a block and every
// non-empty block reachable from the entry ends with one. Empty blocks fall through.
func (v *validator) terminators() {
	blocks := v.f.Blocks
	for b, blk := range blocks {
		for i := 0; i < len(blk.Insts)-1; i++ {
			if blk.Insts[i].Op.IsTerminator() {
				v.fail(BlockID(b), i, &blk.Insts[i], "terminator in the middle of a block")
			}
		}
	}
	if len(blocks) == 0 {
		return
	}

	reachable := make([]bool, len(blocks))
	queue := []BlockID{0}
	reachable[0] = true
	visit := func(id BlockID) {
		if id >= 0 && int(id) < len(blocks) && !reachable[id] {
			reachable[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		insts := blocks[id].Insts
		if len(insts) == 0 {
			if int(id)+1 == len(blocks) {
				v.fail(id, -1, nil, "%s falls off the end of the function", id)
			}
			visit(id + 1)
			continue
		}
		last := &insts[len(insts)-1]
		switch last.Op {
		case OpJmp:
			visit(last.Target)
		case OpBr:
			visit(last.Target)
			visit(last.Else)
		case OpRet:
		default:
			v.fail(id, len(insts)-1, last, "block does not end with a terminator")
		}
	}
}
