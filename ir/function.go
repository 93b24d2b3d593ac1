package ir

import (
	"fmt"
	"strings"
)

// Type is the register class of a value.
type Type byte

const (
	TypeVoid Type = iota
	TypeInt
	TypeFloat
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	}
	return fmt.Sprintf("Type(%d)", t)
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, bool) {
	switch s {
	case "", "void":
		return TypeVoid, true
	case "int":
		return TypeInt, true
	case "float":
		return TypeFloat, true
	}
	return TypeVoid, false
}

// BlockID is the index of a Block in Function.Blocks.
type BlockID int

// String implements fmt.Stringer.
func (b BlockID) String() string {
	return fmt.Sprintf("blk%d", b)
}

// Instruction is a single IR operation. Since Go doesn't have union type, the fields
// Target, Else, Callee and Args are only meaningful for branches and calls.
type Instruction struct {
	Op   Op
	Dst  Operand
	Src1 Operand
	Src2 Operand

	Target BlockID
	Else   BlockID

	Callee string
	Args   []Operand
}

// Const returns `dst = op imm`.
func Const(op Op, dst VReg, imm Operand) Instruction {
	return Instruction{Op: op, Dst: Reg(dst), Src1: imm}
}

// Move returns `dst = op src` where op is OpMov or OpMovf.
func Move(op Op, dst VReg, src Operand) Instruction {
	return Instruction{Op: op, Dst: Reg(dst), Src1: src}
}

// Binary returns `dst = op a, b`.
func Binary(op Op, dst, a, b Operand) Instruction {
	return Instruction{Op: op, Dst: dst, Src1: a, Src2: b}
}

// Jump returns an unconditional jump to target.
func Jump(target BlockID) Instruction {
	return Instruction{Op: OpJmp, Target: target}
}

// Branch returns a jump to then if cond is non-zero, otherwise to els.
func Branch(cond Operand, then, els BlockID) Instruction {
	return Instruction{Op: OpBr, Src1: cond, Target: then, Else: els}
}

// Call returns a call of callee. dst may be absent.
func Call(dst Operand, callee string, args ...Operand) Instruction {
	return Instruction{Op: OpCall, Dst: dst, Callee: callee, Args: args}
}

// Return returns `ret src`. src may be absent.
func Return(src Operand) Instruction {
	return Instruction{Op: OpRet, Src1: src}
}

// OperandKinds returns the kinds of the destination and the two sources.
func (i *Instruction) OperandKinds() [3]OperandKind {
	return [3]OperandKind{i.Dst.Kind(), i.Src1.Kind(), i.Src2.Kind()}
}

// String implements fmt.Stringer.
func (i *Instruction) String() string {
	var sb strings.Builder
	if i.Dst.Valid() {
		sb.WriteString(i.Dst.String())
		sb.WriteString(" = ")
	}
	sb.WriteString(i.Op.String())
	switch i.Op {
	case OpJmp:
		fmt.Fprintf(&sb, " %s", i.Target)
	case OpBr:
		fmt.Fprintf(&sb, " %s, %s, %s", i.Src1, i.Target, i.Else)
	case OpCall:
		args := make([]string, len(i.Args))
		for j, a := range i.Args {
			args[j] = a.String()
		}
		fmt.Fprintf(&sb, " %s(%s)", i.Callee, strings.Join(args, ", "))
	default:
		if i.Src1.Valid() {
			sb.WriteString(" ")
			sb.WriteString(i.Src1.String())
		}
		if i.Src2.Valid() {
			sb.WriteString(", ")
			sb.WriteString(i.Src2.String())
		}
	}
	return sb.String()
}

// Block is a straight-line sequence of instructions ending with a terminator.
type Block struct {
	Insts []Instruction
}

// Append adds the instructions to the end of the block.
func (b *Block) Append(insts ...Instruction) *Block {
	b.Insts = append(b.Insts, insts...)
	return b
}

// Param is a parameter of a Function, defined on entry.
type Param struct {
	Reg  VReg
	Type Type
}

// Function is a named sequence of blocks. Blocks[0] is the entry.
type Function struct {
	Name   string
	Params []Param
	Result Type
	Blocks []*Block
}

// NewFunction returns an empty Function.
func NewFunction(name string, result Type, params ...Param) *Function {
	return &Function{Name: name, Params: params, Result: result}
}

// NewBlock appends an empty block to the function.
func (f *Function) NewBlock() (*Block, BlockID) {
	b := &Block{}
	f.Blocks = append(f.Blocks, b)
	return b, BlockID(len(f.Blocks) - 1)
}

// Pos is the position of an instruction in program order within its function.
// Parameters are defined at position 0, instructions are numbered from 1.
type Pos int

// Walk calls fn on every instruction of the function in program order.
func (f *Function) Walk(fn func(pos Pos, blk BlockID, idx int, inst *Instruction) error) error {
	pos := Pos(1)
	for b, blk := range f.Blocks {
		for i := range blk.Insts {
			if err := fn(pos, BlockID(b), i, &blk.Insts[i]); err != nil {
				return err
			}
			pos++
		}
	}
	return nil
}

// NumInstructions returns the number of instructions in all blocks.
func (f *Function) NumInstructions() (n int) {
	for _, blk := range f.Blocks {
		n += len(blk.Insts)
	}
	return
}

// String implements fmt.Stringer.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s:%s", p.Reg, p.Type)
	}
	fmt.Fprintf(&sb, ") %s\n", f.Result)
	for b, blk := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", BlockID(b))
		for i := range blk.Insts {
			fmt.Fprintf(&sb, "\t%s\n", &blk.Insts[i])
		}
	}
	return sb.String()
}

// Module is a named collection of functions.
type Module struct {
	Name      string
	Functions []*Function
}

// Function returns the function named name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
