// Package jab compiles jab IR modules into x86-64 machine code.
//
// Compilation happens in two steps: Lower selects instructions and assigns registers,
// producing a MIR module, and Encode assembles the MIR module into bytes. Compile runs both.
package jab

import (
	"context"

	"github.com/dustin/go-humanize"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jablang/jab/internal/asm/golang_asm"
	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

var (
	// ErrMalformedIR is returned for modules violating the IR rules, see ir.Validate.
	ErrMalformedIR = backend.ErrMalformedIR
	// ErrUnsupported is returned for well-formed modules the configuration cannot compile.
	ErrUnsupported = backend.ErrUnsupported
)

// LoweringError locates a lowering failure in the input module.
type LoweringError = backend.LoweringError

// Symbol is the location of a compiled function within Binary.Code.
type Symbol struct {
	Name   string
	Offset int
	Size   int
}

// Binary is the machine code of a module. Functions are laid out back to back in module order.
type Binary struct {
	Code    []byte
	Symbols []Symbol
}

// Symbol returns the symbol of the function named name.
func (b *Binary) Symbol(name string) (Symbol, bool) {
	for _, s := range b.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Lower lowers m into MIR for the configured target. A nil config means NewCompileConfig.
//
// m is only read. On error no module is returned.
func Lower(ctx context.Context, config *CompileConfig, m *ir.Module) (*mir.Module, error) {
	if config == nil {
		config = NewCompileConfig()
	}
	newMachine, ok := machines[config.target]
	if !ok {
		return nil, errors.Wrap(ErrUnsupported, "target %q", config.target)
	}
	return backend.Lower(ctx, m, config.options(), newMachine)
}

// Encode assembles m into x86-64 machine code.
func Encode(m *mir.Module) (*Binary, error) {
	code, syms, err := golang_asm.Encode(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode %s", m.Name)
	}

	b := &Binary{Code: code, Symbols: make([]Symbol, len(syms))}
	for i, s := range syms {
		b.Symbols[i] = Symbol{Name: s.Name, Offset: s.Offset, Size: s.Size}
	}
	return b, nil
}

// Compile lowers and encodes m.
func Compile(ctx context.Context, config *CompileConfig, m *ir.Module) (_ *Binary, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "module", m.Name)
	defer tr.Finish("err", &err)

	lowered, err := Lower(ctx, config, m)
	if err != nil {
		return nil, err
	}

	b, err := Encode(lowered)
	if err != nil {
		return nil, err
	}

	tr.Printw("compiled", "functions", len(b.Symbols), "size", humanize.Bytes(uint64(len(b.Code))))
	return b, nil
}
