package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

var testInfo = &RegisterInfo{
	AllocatableRegisters: [RegTypeNum][]mir.Reg{
		RegTypeInt:   {mir.RBX, mir.R12, mir.RSI},
		RegTypeFloat: {mir.XMM8, mir.XMM9},
	},
	CalleeSavedRegisters: map[mir.Reg]struct{}{mir.RBX: {}, mir.R12: {}},
	FixedRegisters: [RegTypeNum][3]mir.Reg{
		RegTypeInt:   {mir.RAX, mir.RAX, mir.RCX},
		RegTypeFloat: {mir.XMM0, mir.XMM0, mir.XMM1},
	},
}

func newFunc(t *testing.T, m *ir.Module, fn *ir.Function) map[ir.VReg]ir.Type {
	m.Functions = append(m.Functions, fn)
	types, err := ir.ValidateFunction(m, fn)
	require.NoError(t, err)
	return types
}

func loopFunc() *ir.Function {
	fn := ir.NewFunction("loop", ir.TypeInt)
	entry, _ := fn.NewBlock()
	body, bodyID := fn.NewBlock()
	exit, exitID := fn.NewBlock()
	entry.Append(
		ir.Const(ir.OpIconst64, 0, ir.Imm64(10)),
		ir.Const(ir.OpIconst64, 1, ir.Imm64(0)),
		ir.Jump(bodyID),
	)
	body.Append(
		ir.Binary(ir.OpAddi, ir.Reg(1), ir.Reg(1), ir.Reg(0)),
		ir.Binary(ir.OpSubi, ir.Reg(0), ir.Reg(0), ir.Imm64(1)),
		ir.Binary(ir.OpGt, ir.Reg(2), ir.Reg(0), ir.Imm64(0)),
		ir.Branch(ir.Reg(2), bodyID, exitID),
	)
	exit.Append(ir.Return(ir.Reg(1)))
	return fn
}

func TestFixed(t *testing.T) {
	fn := ir.NewFunction("f", ir.TypeFloat)
	b, _ := fn.NewBlock()
	b.Append(
		ir.Const(ir.OpIconst32, 0, ir.Imm32(1)),
		ir.Const(ir.OpFconst64, 1, ir.ImmF64(1)),
		ir.Return(ir.Reg(1)),
	)
	types := newFunc(t, &ir.Module{}, fn)

	a, err := NewFixed(testInfo).Allocate(fn, types)
	require.NoError(t, err)
	require.Equal(t, Location{Reg: mir.RAX}, a.Def(1, 0))
	require.Equal(t, Location{Reg: mir.RAX}, a.Use(1, SlotSrc1, 0))
	require.Equal(t, Location{Reg: mir.RCX}, a.Use(1, SlotSrc2, 0))
	require.Equal(t, Location{Reg: mir.RCX}, a.Use(1, ArgSlot(1), 0))
	require.Equal(t, Location{Reg: mir.XMM0}, a.Def(2, 1))
	require.Equal(t, Location{Reg: mir.XMM1}, a.Use(3, SlotSrc2, 1))
	require.Panics(t, func() { a.Use(1, ArgSlot(2), 0) })

	_, ok := a.Param(0)
	require.False(t, ok)
	require.Zero(t, a.SpillSlots())
	require.Nil(t, a.CalleeSaved())
}

func TestFixed_TooManyRegisterArguments(t *testing.T) {
	callee := ir.NewFunction("g", ir.TypeVoid,
		ir.Param{Reg: 0, Type: ir.TypeInt}, ir.Param{Reg: 1, Type: ir.TypeInt}, ir.Param{Reg: 2, Type: ir.TypeInt})
	cb, _ := callee.NewBlock()
	cb.Append(ir.Return(ir.Operand{}))

	fn := ir.NewFunction("f", ir.TypeVoid)
	b, _ := fn.NewBlock()
	b.Append(
		ir.Const(ir.OpIconst64, 0, ir.Imm64(1)),
		ir.Call(ir.Operand{}, "g", ir.Imm64(1), ir.Imm64(2), ir.Reg(0)),
		ir.Return(ir.Operand{}),
	)
	m := &ir.Module{Functions: []*ir.Function{callee}}
	types := newFunc(t, m, fn)

	_, err := NewFixed(testInfo).Allocate(fn, types)
	require.EqualError(t, err, "blk0[1]: call g: fixed routing places at most two register arguments, argument 2 is v0")
}

func TestBuildIntervals_Loop(t *testing.T) {
	fn := loopFunc()
	types := newFunc(t, &ir.Module{}, fn)

	var got []string
	for _, iv := range buildIntervals(fn, types) {
		got = append(got, iv.String())
	}
	require.Equal(t, []string{"v0:int[1,7]", "v1:int[2,8]", "v2:int[6,7]"}, got)
}

func TestBuildIntervals_Params(t *testing.T) {
	fn := ir.NewFunction("f", ir.TypeInt, ir.Param{Reg: 3, Type: ir.TypeInt})
	b, _ := fn.NewBlock()
	b.Append(ir.Binary(ir.OpAddi, ir.Reg(4), ir.Reg(3), ir.Imm32(1)), ir.Return(ir.Reg(4)))
	types := newFunc(t, &ir.Module{}, fn)

	ivs := buildIntervals(fn, types)
	require.Len(t, ivs, 2)
	require.Equal(t, "v3:int[0,1]", ivs[0].String())
	require.Equal(t, "v4:int[1,2]", ivs[1].String())
}

func TestLinearScan(t *testing.T) {
	t.Run("reuse", func(t *testing.T) {
		fn := ir.NewFunction("f", ir.TypeInt)
		b, _ := fn.NewBlock()
		b.Append(
			ir.Const(ir.OpIconst64, 0, ir.Imm64(1)),
			ir.Const(ir.OpIconst64, 1, ir.Imm64(2)),
			ir.Binary(ir.OpAddi, ir.Reg(2), ir.Reg(0), ir.Reg(1)),
			ir.Return(ir.Reg(2)),
		)
		types := newFunc(t, &ir.Module{}, fn)

		a, err := NewLinearScan(testInfo).Allocate(fn, types)
		require.NoError(t, err)
		require.Equal(t, Location{Reg: mir.RBX}, a.Def(1, 0))
		require.Equal(t, Location{Reg: mir.R12}, a.Def(2, 1))
		require.Equal(t, Location{Reg: mir.RBX}, a.Def(3, 2))
		require.Equal(t, Location{Reg: mir.R12}, a.Use(3, SlotSrc2, 1))
		require.Equal(t, []mir.Reg{mir.RBX, mir.R12}, a.CalleeSaved())
		require.Zero(t, a.SpillSlots())
	})

	t.Run("spill", func(t *testing.T) {
		info := *testInfo
		info.AllocatableRegisters[RegTypeInt] = []mir.Reg{mir.RSI}

		fn := ir.NewFunction("f", ir.TypeInt)
		b, _ := fn.NewBlock()
		b.Append(
			ir.Const(ir.OpIconst64, 0, ir.Imm64(1)),
			ir.Const(ir.OpIconst64, 1, ir.Imm64(2)),
			ir.Binary(ir.OpAddi, ir.Reg(2), ir.Reg(0), ir.Reg(1)),
			ir.Return(ir.Reg(2)),
		)
		types := newFunc(t, &ir.Module{}, fn)

		a, err := NewLinearScan(&info).Allocate(fn, types)
		require.NoError(t, err)
		require.Equal(t, Location{Reg: mir.RSI}, a.Def(1, 0))
		require.Equal(t, Location{Slot: 0}, a.Def(2, 1))
		require.True(t, a.Def(2, 1).OnStack())
		require.Equal(t, Location{Reg: mir.RSI}, a.Def(3, 2))
		require.Equal(t, 1, a.SpillSlots())
		require.Empty(t, a.CalleeSaved())
	})

	t.Run("spill the longest", func(t *testing.T) {
		info := *testInfo
		info.AllocatableRegisters[RegTypeInt] = []mir.Reg{mir.RSI}

		fn := ir.NewFunction("f", ir.TypeInt)
		b, _ := fn.NewBlock()
		b.Append(
			ir.Const(ir.OpIconst64, 0, ir.Imm64(1)),
			ir.Const(ir.OpIconst64, 1, ir.Imm64(2)),
			ir.Binary(ir.OpAddi, ir.Reg(2), ir.Reg(1), ir.Imm64(1)),
			ir.Binary(ir.OpAddi, ir.Reg(3), ir.Reg(2), ir.Reg(0)),
			ir.Return(ir.Reg(3)),
		)
		types := newFunc(t, &ir.Module{}, fn)

		a, err := NewLinearScan(&info).Allocate(fn, types)
		require.NoError(t, err)
		require.Equal(t, Location{Slot: 0}, a.Def(1, 0))
		require.Equal(t, Location{Reg: mir.RSI}, a.Def(2, 1))
		require.Equal(t, Location{Reg: mir.RSI}, a.Def(3, 2))
		require.Equal(t, Location{Reg: mir.RSI}, a.Def(4, 3))
	})

	t.Run("call", func(t *testing.T) {
		callee := ir.NewFunction("g", ir.TypeInt)
		cb, _ := callee.NewBlock()
		cb.Append(ir.Return(ir.Imm64(1)))

		fn := ir.NewFunction("f", ir.TypeInt)
		b, _ := fn.NewBlock()
		b.Append(
			ir.Const(ir.OpIconst64, 0, ir.Imm64(1)),
			ir.Const(ir.OpFconst64, 1, ir.ImmF64(2)),
			ir.Call(ir.Reg(2), "g"),
			ir.Binary(ir.OpAddi, ir.Reg(3), ir.Reg(0), ir.Reg(2)),
			ir.Binary(ir.OpAddf, ir.Reg(4), ir.Reg(1), ir.Reg(1)),
			ir.Return(ir.Reg(3)),
		)
		types := newFunc(t, &ir.Module{Functions: []*ir.Function{callee}}, fn)

		a, err := NewLinearScan(testInfo).Allocate(fn, types)
		require.NoError(t, err)
		require.Equal(t, Location{Reg: mir.RBX}, a.Def(1, 0))
		require.Equal(t, Location{Slot: 0}, a.Def(2, 1))
		require.Equal(t, Location{Reg: mir.R12}, a.Def(3, 2))
		require.Equal(t, Location{Reg: mir.RBX}, a.Def(4, 3))
		require.Equal(t, Location{Reg: mir.XMM8}, a.Def(5, 4))
		require.Equal(t, []mir.Reg{mir.RBX, mir.R12}, a.CalleeSaved())
		require.Equal(t, 1, a.SpillSlots())
	})

	t.Run("params", func(t *testing.T) {
		fn := ir.NewFunction("f", ir.TypeInt, ir.Param{Reg: 0, Type: ir.TypeInt}, ir.Param{Reg: 1, Type: ir.TypeFloat})
		b, _ := fn.NewBlock()
		b.Append(ir.Return(ir.Reg(0)))
		types := newFunc(t, &ir.Module{}, fn)

		a, err := NewLinearScan(testInfo).Allocate(fn, types)
		require.NoError(t, err)
		loc, ok := a.Param(0)
		require.True(t, ok)
		require.Equal(t, Location{Reg: mir.RBX}, loc)
		loc, ok = a.Param(1)
		require.True(t, ok)
		require.Equal(t, Location{Reg: mir.XMM8}, loc)
		_, ok = a.Param(7)
		require.False(t, ok)
	})

	t.Run("loop keeps values across the back edge", func(t *testing.T) {
		fn := loopFunc()
		types := newFunc(t, &ir.Module{}, fn)

		a, err := NewLinearScan(testInfo).Allocate(fn, types)
		require.NoError(t, err)
		v0, v1, v2 := a.Def(1, 0), a.Def(2, 1), a.Def(6, 2)
		require.NotEqual(t, v0, v1)
		require.NotEqual(t, v0, v2)
		require.NotEqual(t, v1, v2)
	})
}
