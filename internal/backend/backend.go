// Package backend lowers IR modules into MIR with an ISA specific Machine.
package backend

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/tlog"

	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// Options are the read-only knobs of a lowering run.
type Options struct {
	// OptLevel selects the register assignment: 0 routes operands to fixed registers,
	// anything higher allocates registers with linear scan.
	OptLevel int
	// Parallelism bounds the number of functions lowered at once. Zero means GOMAXPROCS.
	Parallelism int
}

// Lower lowers every function of m, each with its own Machine from newMachine.
//
// Function names must be unique. Functions are independent of each other otherwise, so they
// are lowered concurrently and joined before returning. The result is the same for any Parallelism. If any function fails,
// no module is returned.
func Lower(ctx context.Context, m *ir.Module, opts Options, newMachine func() Machine) (_ *mir.Module, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower module", "name", m.Name, "functions", len(m.Functions), "opt", opts.OptLevel)
	defer tr.Finish("err", &err)

	if err = ir.ValidateNames(m); err != nil {
		return nil, err
	}

	n := opts.Parallelism
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	funcs := make([]*mir.Function, len(m.Functions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n)
	for i, fn := range m.Functions {
		i, fn := i, fn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := newCompiler(newMachine(), m, opts).lowerFunction(ctx, fn)
			if err != nil {
				return err
			}
			funcs[i] = f
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	return &mir.Module{Name: m.Name, Functions: funcs}, nil
}
