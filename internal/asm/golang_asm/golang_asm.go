// Package golang_asm encodes MIR into x86-64 machine code with the golang-asm library.
package golang_asm

import (
	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"tlog.app/go/errors"
)

// assembler wraps a golang-asm builder and remembers the instructions in the order they were added.
type assembler struct {
	b     *goasm.Builder
	progs []*obj.Prog
	// onGenerateCallbacks are called with the machine code once it has been assembled.
	onGenerateCallbacks []func(code []byte) error
}

func newAssembler(arch string) (*assembler, error) {
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, errors.Wrap(err, "new assembly builder")
	}
	return &assembler{b: b}, nil
}

// Assemble returns the machine code after running the callbacks on it.
func (a *assembler) Assemble() ([]byte, error) {
	if len(a.progs) == 0 {
		return []byte{}, nil
	}
	code := a.b.Assemble()
	for _, cb := range a.onGenerateCallbacks {
		if err := cb(code); err != nil {
			return nil, err
		}
	}
	return code, nil
}

// AddOnGenerateCallBack registers cb to patch or inspect the assembled code.
func (a *assembler) AddOnGenerateCallBack(cb func(code []byte) error) {
	a.onGenerateCallbacks = append(a.onGenerateCallbacks, cb)
}

func (a *assembler) NewProg() *obj.Prog {
	return a.b.NewProg()
}

func (a *assembler) AddInstruction(p *obj.Prog) {
	a.b.AddInstruction(p)
	a.progs = append(a.progs, p)
}

// Len returns the number of instructions added so far. It is the index the next one gets.
func (a *assembler) Len() int { return len(a.progs) }

// offset returns the code offset of the i-th instruction, or the code size if i is past the last one.
// Only valid after Assemble.
func (a *assembler) offset(i int, code []byte) int {
	if i < len(a.progs) {
		return int(a.progs[i].Pc)
	}
	return len(code)
}
