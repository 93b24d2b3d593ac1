package irtext

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jablang/jab/ir"
)

const demo = `
name: demo
functions:
  - name: main
    result: int
    blocks:
      - - {op: iconst32, dst: v1, src: ["#5"]}
        - {op: call, dst: v2, callee: inc, args: [v1]}
        - {op: br, src: [v2], target: 1, else: 2}
      - - {op: ret, src: [v2]}
      - - {op: ret, src: ["#0:i64"]}
  - name: inc
    result: int
    params: [{reg: 0, type: int}]
    blocks:
      - - {op: addi, dst: v1, src: [v0, "#1"]}
        - {op: ret, src: [v1]}
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(demo))
	require.NoError(t, err)
	require.NoError(t, ir.Validate(m))

	require.Equal(t, "demo", m.Name)
	require.Len(t, m.Functions, 2)

	main := m.Functions[0]
	require.Equal(t, ir.TypeInt, main.Result)
	require.Len(t, main.Blocks, 3)
	require.Equal(t, []ir.Instruction{
		ir.Const(ir.OpIconst32, 1, ir.Imm32(5)),
		ir.Call(ir.Reg(2), "inc", ir.Reg(1)),
		ir.Branch(ir.Reg(2), 1, 2),
	}, main.Blocks[0].Insts)
	require.Equal(t, []ir.Instruction{ir.Return(ir.Imm64(0))}, main.Blocks[2].Insts)

	inc := m.Function("inc")
	require.Equal(t, []ir.Param{{Reg: 0, Type: ir.TypeInt}}, inc.Params)
	require.Equal(t, ir.Binary(ir.OpAddi, ir.Reg(1), ir.Reg(0), ir.Imm64(1)), inc.Blocks[0].Insts[0])
}

func TestParseOperand(t *testing.T) {
	for _, tc := range []struct {
		in  string
		op  ir.Op
		exp ir.Operand
	}{
		{in: "v7", exp: ir.Reg(7)},
		{in: "#5", op: ir.OpIconst8, exp: ir.Imm8(5)},
		{in: "#-1", op: ir.OpIconst16, exp: ir.Imm16(-1)},
		{in: "#5", op: ir.OpAddi, exp: ir.Imm64(5)},
		{in: "#-2:i32", op: ir.OpAddi, exp: ir.Imm32(-2)},
		{in: "#0xffffffff:i32", exp: ir.Imm32(-1)},
		{in: "#0x10:i8", exp: ir.Imm8(16)},
		{in: "#1.5", op: ir.OpFconst32, exp: ir.ImmF32(1.5)},
		{in: "#1.5", op: ir.OpAddf, exp: ir.ImmF64(1.5)},
		{in: "#0.25:f64", op: ir.OpRet, exp: ir.ImmF64(0.25)},
		{in: "#inf:f64", exp: ir.ImmF64(math.Inf(1))},
	} {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			o, err := parseOperand(tc.in, tc.op)
			require.NoError(t, err)
			require.Equal(t, tc.exp, o)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, tc := range []struct {
		name, in, err string
	}{
		{name: "yaml", in: "functions: [", err: "decode yaml"},
		{name: "unknown field", in: "functions: [{name: f, bogus: 1}]", err: "bogus"},
		{name: "result", in: "functions: [{name: f, result: str}]", err: `func f: unknown result type "str"`},
		{name: "param", in: "functions: [{name: f, params: [{reg: 0, type: void}]}]", err: "parameter v0"},
		{name: "op", in: "functions: [{name: f, blocks: [[{op: nop}]]}]", err: `blk0[0]: unknown op "nop"`},
		{name: "register", in: "functions: [{name: f, blocks: [[{op: ret, src: [vx]}]]}]", err: `bad register "vx"`},
		{name: "operand", in: "functions: [{name: f, blocks: [[{op: ret, src: [x]}]]}]", err: `bad operand "x"`},
		{name: "overflow", in: `functions: [{name: f, blocks: [[{op: iconst8, dst: v0, src: ["#300"]}]]}]`, err: "bad integer immediate"},
		{name: "suffix", in: `functions: [{name: f, blocks: [[{op: ret, src: ["#1:u8"]}]]}]`, err: "bad immediate suffix"},
		{name: "float", in: `functions: [{name: f, blocks: [[{op: fconst64, dst: v0, src: ["#x"]}]]}]`, err: "bad float immediate"},
		{name: "sources", in: "functions: [{name: f, blocks: [[{op: addi, dst: v0, src: [v1, v2, v3]}]]}]", err: "3 sources"},
		{name: "target", in: "functions: [{name: f, blocks: [[{op: jmp}]]}]", err: "missing target"},
		{name: "else", in: "functions: [{name: f, blocks: [[{op: br, src: [v0], target: 0}]]}]", err: "missing else"},
		{name: "callee", in: "functions: [{name: f, blocks: [[{op: call}]]}]", err: "missing callee"},
		{name: "stray fields", in: "functions: [{name: f, blocks: [[{op: ret, target: 1}]]}]", err: "branch or call fields on ret"},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.in))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	m, err := Parse(nil)
	require.NoError(t, err)
	require.Empty(t, m.Functions)
}
