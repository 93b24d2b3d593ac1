package backend

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jablang/jab/internal/backend/regalloc"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// compiler drives a Machine over the functions of one module.
type compiler struct {
	m      Machine
	module *ir.Module
	alloc  regalloc.Allocator
}

func newCompiler(m Machine, module *ir.Module, opts Options) *compiler {
	c := &compiler{m: m, module: module}
	if opts.OptLevel > 0 {
		c.alloc = regalloc.NewLinearScan(m.RegisterInfo())
	} else {
		c.alloc = regalloc.NewFixed(m.RegisterInfo())
	}
	return c
}

// lowerFunction lowers fn. On error no function is returned.
func (c *compiler) lowerFunction(ctx context.Context, fn *ir.Function) (_ *mir.Function, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "lower function", "name", fn.Name, "blocks", len(fn.Blocks))
	defer tr.Finish("err", &err)

	types, err := ir.ValidateFunction(c.module, fn)
	if err != nil {
		return nil, err
	}

	if tr.If("dump_ir") {
		tr.Printw("ir", "func", fn.String())
	}

	alloc, err := c.alloc.Allocate(fn, types)
	if err != nil {
		return nil, &LoweringError{Function: fn.Name, Index: -1, Reason: err.Error(), Err: ErrUnsupported}
	}

	c.m.StartFunction(&FunctionContext{Module: c.module, Func: fn, Types: types, Alloc: alloc})

	pos := ir.Pos(1)
	for b, blk := range fn.Blocks {
		c.m.StartBlock(ir.BlockID(b))
		for i := range blk.Insts {
			inst := &blk.Insts[i]
			if err = c.lowerInstr(pos, inst); err != nil {
				return nil, c.locate(err, fn, ir.BlockID(b), i, inst)
			}
			pos++
		}
	}

	ret := c.m.EndFunction()
	if tr.If("dump_mir") {
		tr.Printw("mir", "func", ret.String())
	}
	return ret, nil
}

// lowerInstr dispatches inst to the Machine by its category.
func (c *compiler) lowerInstr(pos ir.Pos, inst *ir.Instruction) error {
	switch inst.Op.Category() {
	case ir.CategoryConst:
		return c.m.LowerConst(pos, inst)
	case ir.CategoryMove:
		return c.m.LowerMove(pos, inst)
	case ir.CategoryBinary:
		return c.m.LowerBinary(pos, inst)
	case ir.CategoryBranch:
		return c.m.LowerBranch(pos, inst)
	case ir.CategoryCall:
		return c.m.LowerCall(pos, inst)
	case ir.CategoryReturn:
		return c.m.LowerReturn(pos, inst)
	default:
		return Malformed("unknown op")
	}
}

func (c *compiler) locate(err error, fn *ir.Function, blk ir.BlockID, idx int, inst *ir.Instruction) error {
	le, ok := err.(*LoweringError)
	if !ok {
		return errors.Wrap(err, "func %v: %v[%d]: %v", fn.Name, blk, idx, inst.Op)
	}
	le.Function, le.Block, le.Index = fn.Name, blk, idx
	le.Op, le.Kinds = inst.Op, inst.OperandKinds()
	return le
}
