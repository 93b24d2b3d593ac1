package jab

import (
	"fmt"
	"runtime"

	"github.com/jablang/jab/internal/backend"
	"github.com/jablang/jab/internal/backend/isa/amd64"
)

// TargetAMD64 is the x86-64 System V target.
const TargetAMD64 = "amd64"

// machines holds the backend of each supported target.
var machines = map[string]func() backend.Machine{
	TargetAMD64: amd64.NewMachine,
}

// CompileConfig controls how modules are lowered and encoded, with the defaults of NewCompileConfig.
// It is immutable: every With method returns a modified copy.
type CompileConfig struct {
	target      string
	optLevel    int
	parallelism int
}

// defaultConfig is the template of NewCompileConfig.
var defaultConfig = &CompileConfig{
	target:      TargetAMD64,
	optLevel:    0,
	parallelism: 0,
}

// NewCompileConfig returns the default configuration: amd64, fixed register routing, and one
// worker per CPU.
func NewCompileConfig() *CompileConfig {
	return defaultConfig.clone()
}

// clone ensures all fields are copied.
func (c *CompileConfig) clone() *CompileConfig {
	return &CompileConfig{
		target:      c.target,
		optLevel:    c.optLevel,
		parallelism: c.parallelism,
	}
}

// WithTarget selects the instruction set. Only TargetAMD64 is supported, others fail at Lower.
func (c *CompileConfig) WithTarget(target string) *CompileConfig {
	ret := c.clone()
	ret.target = target
	return ret
}

// WithOptimizationLevel selects the register assignment.
//
// Level 0 routes every operand through fixed registers, which is only faithful for code in which
// each value is consumed right after it is defined. Level 1 and above allocate registers with
// linear scan and support values living across instructions, branches and calls.
//
// Negative levels panic.
func (c *CompileConfig) WithOptimizationLevel(level int) *CompileConfig {
	if level < 0 {
		panic(fmt.Sprintf("optimization level invalid: %d < 0", level))
	}
	ret := c.clone()
	ret.optLevel = level
	return ret
}

// WithParallelism bounds the number of functions lowered concurrently. Zero or less means
// runtime.GOMAXPROCS. The result does not depend on it.
func (c *CompileConfig) WithParallelism(n int) *CompileConfig {
	ret := c.clone()
	if n < 0 {
		n = 0
	}
	ret.parallelism = n
	return ret
}

// Target returns the configured target.
func (c *CompileConfig) Target() string { return c.target }

// OptimizationLevel returns the configured optimization level.
func (c *CompileConfig) OptimizationLevel() int { return c.optLevel }

// Parallelism returns the effective number of concurrent workers.
func (c *CompileConfig) Parallelism() int {
	if c.parallelism == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.parallelism
}

func (c *CompileConfig) options() backend.Options {
	return backend.Options{OptLevel: c.optLevel, Parallelism: c.parallelism}
}
