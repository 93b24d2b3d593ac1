package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

func newMock(log *[]string) func() Machine {
	return func() Machine { return &mockMachine{log: log, rinfo: mockRegisterInfo} }
}

func ints(n int) (ret []ir.Param) {
	for i := 0; i < n; i++ {
		ret = append(ret, ir.Param{Reg: ir.VReg(i), Type: ir.TypeInt})
	}
	return
}

// dispatchModule has one instruction of each category. main's blk1 is empty.
func dispatchModule() *ir.Module {
	main := ir.NewFunction("main", ir.TypeInt, ints(1)...)
	b0, _ := main.NewBlock()
	_, id1 := main.NewBlock()
	b2, id2 := main.NewBlock()
	b0.Append(
		ir.Const(ir.OpIconst64, 1, ir.Imm64(1)),
		ir.Move(ir.OpMov, 2, ir.Reg(1)),
		ir.Binary(ir.OpAddi, ir.Reg(3), ir.Reg(2), ir.Reg(0)),
		ir.Call(ir.Reg(4), "g", ir.Reg(3)),
		ir.Branch(ir.Reg(4), id1, id2),
	)
	b2.Append(ir.Return(ir.Reg(3)))

	g := ir.NewFunction("g", ir.TypeInt, ints(1)...)
	gb, _ := g.NewBlock()
	gb.Append(ir.Return(ir.Reg(0)))

	return &ir.Module{Name: "m", Functions: []*ir.Function{main, g}}
}

func TestLower_Dispatch(t *testing.T) {
	for _, opt := range []int{0, 1} {
		opt := opt
		t.Run(fmt.Sprintf("O%d", opt), func(t *testing.T) {
			var log []string
			m, err := Lower(context.Background(), dispatchModule(), Options{OptLevel: opt, Parallelism: 1}, newMock(&log))
			require.NoError(t, err)
			require.Equal(t, "m", m.Name)
			require.Len(t, m.Functions, 2)
			require.Equal(t, []string{
				"start main",
				"block blk0",
				"1: const iconst64",
				"2: move mov",
				"3: binary addi",
				"4: call call",
				"5: branch br",
				"block blk1",
				"block blk2",
				"6: return ret",
				"end",
				"start g",
				"block blk0",
				"1: return ret",
				"end",
			}, log)
		})
	}
}

func TestLower_Errors(t *testing.T) {
	t.Run("lowering error is located", func(t *testing.T) {
		var log []string
		_, err := Lower(context.Background(), dispatchModule(), Options{Parallelism: 1}, func() Machine {
			return &mockMachine{log: &log, rinfo: mockRegisterInfo, lowerBinary: func(ir.Pos, *ir.Instruction) error {
				return Malformed("boom")
			}}
		})
		require.ErrorIs(t, err, ErrMalformedIR)

		var le *LoweringError
		require.True(t, errors.As(err, &le))
		require.Equal(t, "main", le.Function)
		require.Equal(t, ir.BlockID(0), le.Block)
		require.Equal(t, 2, le.Index)
		require.Equal(t, ir.OpAddi, le.Op)
		require.Equal(t, [3]ir.OperandKind{ir.OperandKindVReg, ir.OperandKindVReg, ir.OperandKindVReg}, le.Kinds)
		require.Contains(t, err.Error(), "func main: blk0[2]: addi(vreg, vreg, vreg): boom")
		require.NotContains(t, log, "end")
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		var log []string
		boom := errors.New("boom")
		_, err := Lower(context.Background(), dispatchModule(), Options{Parallelism: 1}, func() Machine {
			return &mockMachine{log: &log, rinfo: mockRegisterInfo, lowerConst: func(ir.Pos, *ir.Instruction) error {
				return boom
			}}
		})
		require.ErrorIs(t, err, boom)
		require.Contains(t, err.Error(), "func main: blk0[0]: iconst64")
	})

	t.Run("malformed input never reaches the machine", func(t *testing.T) {
		fn := ir.NewFunction("f", ir.TypeInt)
		blk, _ := fn.NewBlock()
		blk.Append(ir.Return(ir.Reg(7)))

		var log []string
		_, err := Lower(context.Background(), &ir.Module{Functions: []*ir.Function{fn}}, Options{}, newMock(&log))
		require.ErrorIs(t, err, ErrMalformedIR)
		require.Contains(t, err.Error(), "v7 is used before its definition")
		require.Empty(t, log)
	})

	t.Run("duplicate function names", func(t *testing.T) {
		mod := dispatchModule()
		g := ir.NewFunction("g", ir.TypeVoid)
		gb, _ := g.NewBlock()
		gb.Append(ir.Return(ir.Operand{}))
		mod.Functions = append(mod.Functions, g)

		var log []string
		m, err := Lower(context.Background(), mod, Options{}, newMock(&log))
		require.Nil(t, m)
		require.ErrorIs(t, err, ErrMalformedIR)
		require.Contains(t, err.Error(), "func g: duplicate function name")
		require.Empty(t, log)
	})

	t.Run("fixed routing limits", func(t *testing.T) {
		fn := ir.NewFunction("f", ir.TypeVoid, ints(3)...)
		blk, _ := fn.NewBlock()
		blk.Append(ir.Call(ir.Operand{}, "f", ir.Reg(0), ir.Reg(1), ir.Reg(2)), ir.Return(ir.Operand{}))
		mod := &ir.Module{Functions: []*ir.Function{fn}}

		var log []string
		_, err := Lower(context.Background(), mod, Options{}, newMock(&log))
		require.ErrorIs(t, err, ErrUnsupported)

		var le *LoweringError
		require.True(t, errors.As(err, &le))
		require.Equal(t, -1, le.Index)
		require.Empty(t, log)

		_, err = Lower(context.Background(), mod, Options{OptLevel: 1}, newMock(&log))
		require.NoError(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var log []string
		_, err := Lower(ctx, dispatchModule(), Options{}, newMock(&log))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLower_EmptyFunction(t *testing.T) {
	var log []string
	m, err := Lower(context.Background(), &ir.Module{Functions: []*ir.Function{ir.NewFunction("e", ir.TypeVoid)}}, Options{}, newMock(&log))
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)
	require.Equal(t, []string{"start e", "end"}, log)
}

func TestLower_Parallel(t *testing.T) {
	mod := &ir.Module{Name: "many"}
	for i := 0; i < 32; i++ {
		fn := ir.NewFunction(fmt.Sprintf("f%d", i), ir.TypeInt)
		blk, _ := fn.NewBlock()
		blk.Append(ir.Return(ir.Imm64(int64(i))))
		mod.Functions = append(mod.Functions, fn)
	}

	var mu sync.Mutex
	var machines int
	newMachine := func() Machine {
		mu.Lock()
		defer mu.Unlock()
		machines++
		return &mockMachine{log: new([]string), rinfo: mockRegisterInfo}
	}

	var prev *mir.Module
	for _, n := range []int{1, 4, 0} {
		m, err := Lower(context.Background(), mod, Options{Parallelism: n}, newMachine)
		require.NoError(t, err)
		require.Len(t, m.Functions, len(mod.Functions))
		for i, fn := range m.Functions {
			require.Equal(t, mod.Functions[i].Name, fn.Name)
		}
		if prev != nil {
			require.Equal(t, prev, m)
		}
		prev = m
	}
	require.Equal(t, 3*len(mod.Functions), machines)
}
