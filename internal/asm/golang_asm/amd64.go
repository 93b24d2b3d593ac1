package golang_asm

import (
	"encoding/binary"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
	"tlog.app/go/errors"

	"github.com/jablang/jab/mir"
)

// Symbol is the location of an encoded function within the code.
type Symbol struct {
	Name   string
	Offset int
	Size   int
}

// Encode assembles the functions of m back to back into one piece of x86-64 code and returns
// it along with the location of every function, in module order. Calls are resolved against
// the functions of m.
func Encode(m *mir.Module) (code []byte, syms []Symbol, err error) {
	a, err := newAssembler("amd64")
	if err != nil {
		return nil, nil, err
	}

	e := &encoder{
		a:      a,
		starts: make([]int, len(m.Functions)),
		funcs:  make(map[string]int, len(m.Functions)),
	}
	for i, fn := range m.Functions {
		if _, ok := e.funcs[fn.Name]; ok {
			return nil, nil, errors.New("duplicate function %s", fn.Name)
		}
		e.funcs[fn.Name] = i
	}

	for i, fn := range m.Functions {
		e.starts[i] = a.Len()
		if err = e.encodeFunction(fn); err != nil {
			return nil, nil, errors.Wrap(err, "func %s", fn.Name)
		}
	}

	a.AddOnGenerateCallBack(e.resolveCalls)

	code, err = a.Assemble()
	if err != nil {
		return nil, nil, err
	}

	syms = make([]Symbol, len(m.Functions))
	for i, fn := range m.Functions {
		start := a.offset(e.starts[i], code)
		end := len(code)
		if i+1 < len(m.Functions) {
			end = a.offset(e.starts[i+1], code)
		}
		syms[i] = Symbol{Name: fn.Name, Offset: start, Size: end - start}
	}
	return code, syms, nil
}

type (
	encoder struct {
		a *assembler

		// starts holds the index of the first instruction of each function.
		starts []int
		funcs  map[string]int
		calls  []call
		jumps  []jump
	}

	// call is a rel32 call encoded as raw bytes, patched once the callee's offset is known.
	call struct {
		at     int
		callee int
	}

	jump struct {
		prog  *obj.Prog
		block int
	}
)

const callSize = 5

func (e *encoder) encodeFunction(fn *mir.Function) error {
	e.jumps = e.jumps[:0]
	blockStarts := make([]int, len(fn.Blocks))
	for b, blk := range fn.Blocks {
		blockStarts[b] = e.a.Len()
		for i := range blk.Insts {
			if err := e.encode(&blk.Insts[i]); err != nil {
				return errors.Wrap(err, "blk%d[%d]: %v", b, i, &blk.Insts[i])
			}
		}
	}

	end := e.a.Len()
	for _, j := range e.jumps {
		if j.block < 0 || j.block >= len(fn.Blocks) {
			return errors.New("jump to unknown block blk%d", j.block)
		}
		at := blockStarts[j.block]
		if at >= end {
			return errors.New("jump to blk%d past the end of the function", j.block)
		}
		j.prog.To.SetTarget(e.a.progs[at])
	}
	return nil
}

func (e *encoder) resolveCalls(code []byte) error {
	for _, c := range e.calls {
		pc := e.a.offset(c.at, code)
		target := e.a.offset(e.starts[c.callee], code)
		rel := int64(target) - int64(pc+callSize)
		binary.LittleEndian.PutUint32(code[pc+1:pc+callSize], uint32(int32(rel)))
	}
	return nil
}

type shape byte

const (
	shapeNone   shape = iota
	shapeR            // op1
	shapeRR           // op1, op2
	shapeRI           // op1, $imm
	shapeRRI          // op1, op2, $imm
	shapeStore        // [op1+off], op2
	shapeLoad         // op1, [op2+off]
	shapeLabel        // blk
	shapeSymbol       // function
)

// opcodes maps every MIR opcode to its golang-asm instruction. Two register forms are given in
// Go assembler order, source first, except for CMPQ which keeps the Intel order.
var opcodes = [...]struct {
	as    obj.As
	shape shape
}{
	mir.OpcodeMovRI:   {x86.AMOVQ, shapeRI},
	mir.OpcodeFMovRI:  {x86.AMOVQ, shapeRI},
	mir.OpcodeMovRR:   {x86.AMOVQ, shapeRR},
	mir.OpcodeMovRM:   {x86.AMOVQ, shapeStore},
	mir.OpcodeMovMR:   {x86.AMOVQ, shapeLoad},
	mir.OpcodeFMovRR:  {x86.AMOVSD, shapeRR},
	mir.OpcodeFMovRM:  {x86.AMOVSD, shapeStore},
	mir.OpcodeFMovMR:  {x86.AMOVSD, shapeLoad},
	mir.OpcodeAddRR:   {x86.AADDQ, shapeRR},
	mir.OpcodeAddRI:   {x86.AADDQ, shapeRI},
	mir.OpcodeSubRR:   {x86.ASUBQ, shapeRR},
	mir.OpcodeSubRI:   {x86.ASUBQ, shapeRI},
	mir.OpcodeImulRR:  {x86.AIMULQ, shapeRR},
	mir.OpcodeImulRI:  {x86.AIMULQ, shapeRI},
	mir.OpcodeNeg:     {x86.ANEGQ, shapeR},
	mir.OpcodeCqo:     {x86.ACQO, shapeNone},
	mir.OpcodeIdiv:    {x86.AIDIVQ, shapeR},
	mir.OpcodeCmpRR:   {x86.ACMPQ, shapeRR},
	mir.OpcodeCmpRI:   {x86.ACMPQ, shapeRI},
	mir.OpcodeTestRR:  {x86.ATESTQ, shapeRR},
	mir.OpcodeSetL:    {x86.ASETLT, shapeR},
	mir.OpcodeSetLE:   {x86.ASETLE, shapeR},
	mir.OpcodeSetG:    {x86.ASETGT, shapeR},
	mir.OpcodeSetGE:   {x86.ASETGE, shapeR},
	mir.OpcodeSetE:    {x86.ASETEQ, shapeR},
	mir.OpcodeSetA:    {x86.ASETHI, shapeR},
	mir.OpcodeSetAE:   {x86.ASETCC, shapeR},
	mir.OpcodeSetNP:   {x86.ASETPC, shapeR},
	mir.OpcodeAndB:    {x86.AANDB, shapeRR},
	mir.OpcodeMovZXB:  {x86.AMOVBQZX, shapeRR},
	mir.OpcodeAddSD:   {x86.AADDSD, shapeRR},
	mir.OpcodeSubSD:   {x86.ASUBSD, shapeRR},
	mir.OpcodeMulSD:   {x86.AMULSD, shapeRR},
	mir.OpcodeDivSD:   {x86.ADIVSD, shapeRR},
	mir.OpcodeRoundSD: {x86.AROUNDSD, shapeRRI},
	mir.OpcodeUcomiSD: {x86.AUCOMISD, shapeRR},
	mir.OpcodeJmp:     {obj.AJMP, shapeLabel},
	mir.OpcodeJe:      {x86.AJEQ, shapeLabel},
	mir.OpcodeJne:     {x86.AJNE, shapeLabel},
	mir.OpcodeCall:    {x86.ABYTE, shapeSymbol},
	mir.OpcodeRet:     {obj.ARET, shapeNone},
	mir.OpcodePush:    {x86.APUSHQ, shapeR},
	mir.OpcodePop:     {x86.APOPQ, shapeR},
}

var registers = [mir.NumRegs]int16{
	mir.RAX: x86.REG_AX, mir.RCX: x86.REG_CX, mir.RDX: x86.REG_DX, mir.RBX: x86.REG_BX,
	mir.RSP: x86.REG_SP, mir.RBP: x86.REG_BP, mir.RSI: x86.REG_SI, mir.RDI: x86.REG_DI,
	mir.R8: x86.REG_R8, mir.R9: x86.REG_R9, mir.R10: x86.REG_R10, mir.R11: x86.REG_R11,
	mir.R12: x86.REG_R12, mir.R13: x86.REG_R13, mir.R14: x86.REG_R14, mir.R15: x86.REG_R15,
	mir.XMM0: x86.REG_X0, mir.XMM1: x86.REG_X1, mir.XMM2: x86.REG_X2, mir.XMM3: x86.REG_X3,
	mir.XMM4: x86.REG_X4, mir.XMM5: x86.REG_X5, mir.XMM6: x86.REG_X6, mir.XMM7: x86.REG_X7,
	mir.XMM8: x86.REG_X8, mir.XMM9: x86.REG_X9, mir.XMM10: x86.REG_X10, mir.XMM11: x86.REG_X11,
	mir.XMM12: x86.REG_X12, mir.XMM13: x86.REG_X13, mir.XMM14: x86.REG_X14, mir.XMM15: x86.REG_X15,
}

// check verifies inst has the operands its opcode needs.
func check(inst *mir.Instruction) error {
	if !inst.Opcode.Valid() {
		return errors.New("unknown opcode %v", inst.Opcode)
	}
	sh := opcodes[inst.Opcode].shape

	var op1, op2 bool
	extra := mir.ExtraNone
	switch sh {
	case shapeR:
		op1 = true
	case shapeRR:
		op1, op2 = true, true
	case shapeRI:
		op1, extra = true, mir.ExtraImm
	case shapeRRI:
		op1, op2, extra = true, true, mir.ExtraImm
	case shapeStore, shapeLoad:
		op1, op2, extra = true, true, mir.ExtraMem
	case shapeLabel:
		extra = mir.ExtraBlock
	case shapeSymbol:
		extra = mir.ExtraFunc
	}

	switch {
	case op1 != inst.Op1.Valid():
		return errors.New("operand 1 is %v", inst.Op1)
	case op2 != inst.Op2.Valid():
		return errors.New("operand 2 is %v", inst.Op2)
	case extra != inst.Extra.Kind:
		return errors.New("unexpected extra operand %v", inst.Extra)
	}
	return nil
}

func regAddr(r mir.Reg) obj.Addr {
	return obj.Addr{Type: obj.TYPE_REG, Reg: registers[r]}
}

func constAddr(v int64) obj.Addr {
	return obj.Addr{Type: obj.TYPE_CONST, Offset: v}
}

func memAddr(base mir.Reg, off int32) obj.Addr {
	return obj.Addr{Type: obj.TYPE_MEM, Reg: registers[base], Offset: int64(off)}
}

func (e *encoder) add(as obj.As, from, to obj.Addr) *obj.Prog {
	p := e.a.NewProg()
	p.As = as
	p.From = from
	p.To = to
	e.a.AddInstruction(p)
	return p
}

func (e *encoder) encode(inst *mir.Instruction) error {
	if err := check(inst); err != nil {
		return err
	}

	op := opcodes[inst.Opcode]
	none := obj.Addr{}

	switch inst.Opcode {
	case mir.OpcodeMovRI:
		as := x86.AMOVQ
		if inst.Extra.Width < 64 {
			as = x86.AMOVL
		}
		e.add(as, constAddr(inst.Extra.Value()), regAddr(inst.Op1))
		return nil
	case mir.OpcodeFMovRI:
		e.fmovri(inst)
		return nil
	case mir.OpcodeCmpRR:
		e.add(op.as, regAddr(inst.Op1), regAddr(inst.Op2))
		return nil
	case mir.OpcodeCmpRI:
		e.add(op.as, regAddr(inst.Op1), constAddr(inst.Extra.Value()))
		return nil
	case mir.OpcodeIdiv, mir.OpcodePush:
		e.add(op.as, regAddr(inst.Op1), none)
		return nil
	case mir.OpcodeCall:
		callee, ok := e.funcs[inst.Extra.Func]
		if !ok {
			return errors.New("call to unknown function %s", inst.Extra.Func)
		}
		e.calls = append(e.calls, call{at: e.a.Len(), callee: callee})
		e.add(x86.ABYTE, constAddr(0xe8), none)
		for i := 1; i < callSize; i++ {
			e.add(x86.ABYTE, constAddr(0), none)
		}
		return nil
	}

	switch op.shape {
	case shapeNone:
		e.add(op.as, none, none)
	case shapeR:
		e.add(op.as, none, regAddr(inst.Op1))
	case shapeRR:
		e.add(op.as, regAddr(inst.Op2), regAddr(inst.Op1))
	case shapeRI:
		e.add(op.as, constAddr(inst.Extra.Value()), regAddr(inst.Op1))
	case shapeRRI:
		p := e.a.NewProg()
		p.As = op.as
		p.From = constAddr(inst.Extra.Value())
		p.RestArgs = append(p.RestArgs, regAddr(inst.Op2))
		p.To = regAddr(inst.Op1)
		e.a.AddInstruction(p)
	case shapeStore:
		e.add(op.as, regAddr(inst.Op2), memAddr(inst.Op1, inst.Extra.Offset))
	case shapeLoad:
		e.add(op.as, memAddr(inst.Op2, inst.Extra.Offset), regAddr(inst.Op1))
	case shapeLabel:
		p := e.add(op.as, none, obj.Addr{Type: obj.TYPE_BRANCH})
		e.jumps = append(e.jumps, jump{prog: p, block: inst.Extra.Block})
	}
	return nil
}

// fmovri loads a float immediate through the scratch general purpose register r11, widening
// single precision values to double.
func (e *encoder) fmovri(inst *mir.Instruction) {
	tmp := regAddr(mir.R11)
	if inst.Extra.Width == 32 {
		e.add(x86.AMOVL, constAddr(int64(uint32(inst.Extra.Bits))), tmp)
		e.add(x86.AMOVQ, tmp, regAddr(inst.Op1))
		e.add(x86.ACVTSS2SD, regAddr(inst.Op1), regAddr(inst.Op1))
		return
	}
	e.add(x86.AMOVQ, constAddr(int64(inst.Extra.Bits)), tmp)
	e.add(x86.AMOVQ, tmp, regAddr(inst.Op1))
}
