package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jablang/jab"
	"github.com/jablang/jab/internal/irtext"
	"github.com/jablang/jab/ir"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Args[1:], os.Exit)
}

type flags struct {
	target    string
	optLevel  int
	jobs      int
	verbosity string
	out       string
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, args []string, exit func(code int)) {
	cmd := newRootCmd(stdOut, stdErr)
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stdErr, "jabc: %v\n", err)
		exit(1)
		return
	}
	exit(0)
}

func newRootCmd(stdOut, stdErr io.Writer) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "jabc",
		Short:         "jabc compiles jab IR into x86-64 machine code",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	pf := root.PersistentFlags()
	pf.StringVar(&f.target, "target", jab.TargetAMD64, "target instruction set")
	pf.IntVarP(&f.optLevel, "opt-level", "O", 0, "optimization level: 0 routes operands through fixed registers, 1 allocates registers")
	pf.IntVarP(&f.jobs, "jobs", "j", 0, "functions lowered concurrently, 0 is one per CPU")
	pf.StringVar(&f.verbosity, "verbosity", "", "log topics to print, like dump_ir,dump_mir,regalloc")

	lower := &cobra.Command{
		Use:   "lower FILE",
		Short: "Print the MIR of an IR module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, m, err := setup(stdErr, &f, args[0])
			if err != nil {
				return err
			}

			lowered, err := jab.Lower(ctx, f.config(), m)
			if err != nil {
				return errors.Wrap(err, "lower %v", args[0])
			}

			fmt.Fprint(stdOut, lowered)
			return nil
		},
	}

	build := &cobra.Command{
		Use:   "build -o OUT FILE",
		Short: "Compile an IR module into raw machine code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, m, err := setup(stdErr, &f, args[0])
			if err != nil {
				return err
			}

			b, err := jab.Compile(ctx, f.config(), m)
			if err != nil {
				return errors.Wrap(err, "compile %v", args[0])
			}

			if err = os.WriteFile(f.out, b.Code, 0o644); err != nil {
				return errors.Wrap(err, "write output")
			}

			for _, s := range b.Symbols {
				fmt.Fprintf(stdOut, "%#08x %6d %s\n", s.Offset, s.Size, s.Name)
			}
			fmt.Fprintf(stdOut, "%s: %s\n", f.out, humanize.Bytes(uint64(len(b.Code))))
			return nil
		},
	}
	build.Flags().StringVarP(&f.out, "output", "o", "", "output file")
	_ = build.MarkFlagRequired("output")

	root.AddCommand(lower, build)
	return root
}

func (f *flags) config() *jab.CompileConfig {
	return jab.NewCompileConfig().
		WithTarget(f.target).
		WithOptimizationLevel(f.optLevel).
		WithParallelism(f.jobs)
}

// setup installs the logger and reads the module.
func setup(stdErr io.Writer, f *flags, path string) (context.Context, *ir.Module, error) {
	if f.optLevel < 0 {
		return nil, nil, errors.New("optimization level invalid: %d < 0", f.optLevel)
	}

	tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(stdErr, tlog.LstdFlags))
	tlog.DefaultLogger.SetVerbosity(f.verbosity)

	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read module")
	}

	m, err := irtext.Parse(data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse %v", path)
	}

	return ctx, m, nil
}
