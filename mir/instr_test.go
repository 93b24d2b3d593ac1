package mir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstruction_String(t *testing.T) {
	for _, tc := range []struct {
		in  Instruction
		exp string
	}{
		{in: Instruction{Opcode: OpcodeMovRI, Op1: RAX, Extra: Imm(5, 32, false)}, exp: "movri rax, $5"},
		{in: Instruction{Opcode: OpcodeMovRI, Op1: R11, Extra: Imm(0xff, 8, false)}, exp: "movri r11, $255"},
		{in: Instruction{Opcode: OpcodeFMovRI, Op1: XMM0, Extra: Imm(uint64(math.Float32bits(1.5)), 32, true)}, exp: "fmovri xmm0, $1.5"},
		{in: Instruction{Opcode: OpcodeAddRR, Op1: RAX, Op2: RCX}, exp: "addrr rax, rcx"},
		{in: Instruction{Opcode: OpcodeMovRM, Op1: RBP, Op2: RBX, Extra: Mem(-16)}, exp: "movrm [rbp-16], rbx"},
		{in: Instruction{Opcode: OpcodeFMovMR, Op1: XMM3, Op2: RSP, Extra: Mem(0)}, exp: "fmovmr xmm3, [rsp+0]"},
		{in: Instruction{Opcode: OpcodeJne, Extra: Label(2)}, exp: "jne blk2"},
		{in: Instruction{Opcode: OpcodeCall, Extra: Symbol("fib")}, exp: "call fib"},
		{in: Instruction{Opcode: OpcodeRet}, exp: "ret"},
		{in: Instruction{Opcode: OpcodeCqo}, exp: "cqo"},
	} {
		tc := tc
		t.Run(tc.exp, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.in.String())
		})
	}
}

func TestOpcode_String(t *testing.T) {
	for o := OpcodeInvalid + 1; o < opcodeEnd; o++ {
		require.True(t, o.Valid())
		require.NotEmpty(t, opcodeNames[o], int(o))
	}
	require.False(t, opcodeEnd.Valid())
	require.Equal(t, "Opcode(250)", Opcode(250).String())
}

func TestReg(t *testing.T) {
	require.Equal(t, "rax", RAX.String())
	require.Equal(t, "xmm15", XMM15.String())
	require.True(t, XMM0.IsFloat())
	require.False(t, R15.IsFloat())
	require.False(t, RegNone.Valid())
	require.True(t, R8.Valid())
	require.Equal(t, 33, NumRegs)
}

func TestFunctionBuilder(t *testing.T) {
	b := NewFunctionBuilder("f")
	require.Panics(t, func() { b.Append(Instruction{Opcode: OpcodeRet}) })

	b.StartBlock()
	b.Append(Instruction{Opcode: OpcodeMovRI, Op1: RAX, Extra: Imm(1, 64, false)})
	b.StartBlock()
	b.Append(Instruction{Opcode: OpcodeRet})
	require.Equal(t, 2, b.Len())

	fn := b.Finish()
	require.Equal(t, "f", fn.Name)
	require.Len(t, fn.Blocks, 2)
	require.Equal(t, []Instruction{
		{Opcode: OpcodeMovRI, Op1: RAX, Extra: Imm(1, 64, false)},
		{Opcode: OpcodeRet},
	}, fn.Instructions())
	require.Equal(t, "f:\nblk0:\n\tmovri rax, $1\nblk1:\n\tret\n", fn.String())
}
