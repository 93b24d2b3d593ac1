package mir

import (
	"fmt"
	"strings"
)

// Block holds the instructions lowered from the IR block of the same index.
type Block struct {
	Insts []Instruction
}

// Function is the lowered form of an IR function.
type Function struct {
	Name   string
	Blocks []*Block
}

// Instructions returns every instruction of the function in layout order.
func (f *Function) Instructions() []Instruction {
	var ret []Instruction
	for _, b := range f.Blocks {
		ret = append(ret, b.Insts...)
	}
	return ret
}

// String implements fmt.Stringer.
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", f.Name)
	for i, b := range f.Blocks {
		fmt.Fprintf(&sb, "blk%d:\n", i)
		for j := range b.Insts {
			fmt.Fprintf(&sb, "\t%s\n", &b.Insts[j])
		}
	}
	return sb.String()
}

// Module is the lowered form of an IR module.
type Module struct {
	Name      string
	Functions []*Function
}

// String implements fmt.Stringer.
func (m *Module) String() string {
	var sb strings.Builder
	for i, f := range m.Functions {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}

// FunctionBuilder assembles a Function. Instructions can only be appended.
type FunctionBuilder struct {
	fn  *Function
	cur *Block
}

// NewFunctionBuilder returns a builder for a function named name.
func NewFunctionBuilder(name string) *FunctionBuilder {
	return &FunctionBuilder{fn: &Function{Name: name}}
}

// StartBlock starts the next block. Subsequent instructions are appended to it.
func (b *FunctionBuilder) StartBlock() {
	b.cur = &Block{}
	b.fn.Blocks = append(b.fn.Blocks, b.cur)
}

// Append appends the instruction to the current block.
func (b *FunctionBuilder) Append(inst Instruction) {
	if b.cur == nil {
		panic("BUG: Append before StartBlock")
	}
	b.cur.Insts = append(b.cur.Insts, inst)
}

// Len returns the number of instructions appended so far.
func (b *FunctionBuilder) Len() (n int) {
	for _, blk := range b.fn.Blocks {
		n += len(blk.Insts)
	}
	return
}

// Finish returns the built function. The builder must not be used afterwards.
func (b *FunctionBuilder) Finish() *Function {
	fn := b.fn
	b.fn, b.cur = nil, nil
	return fn
}
