// Package irtext reads IR modules written in YAML.
//
//	name: demo
//	functions:
//	  - name: main
//	    result: int
//	    params: [{reg: 0, type: int}]
//	    blocks:
//	      - - {op: iconst32, dst: v1, src: ["#5"]}
//	        - {op: addi, dst: v2, src: [v1, "#3"]}
//	        - {op: ret, src: [v2]}
//
// Operands are virtual registers `vN` or immediates `#N`, `#N:i8` to `#N:i64`, `#F:f32` and `#F:f64`.
// An immediate without a suffix takes its width and class from the op.
package irtext

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/jablang/jab/ir"
)

type (
	module struct {
		Name      string     `yaml:"name"`
		Functions []function `yaml:"functions"`
	}

	function struct {
		Name   string          `yaml:"name"`
		Result string          `yaml:"result"`
		Params []param         `yaml:"params"`
		Blocks [][]instruction `yaml:"blocks"`
	}

	param struct {
		Reg  uint32 `yaml:"reg"`
		Type string `yaml:"type"`
	}

	instruction struct {
		Op     string   `yaml:"op"`
		Dst    string   `yaml:"dst"`
		Src    []string `yaml:"src"`
		Target *int     `yaml:"target"`
		Else   *int     `yaml:"else"`
		Callee string   `yaml:"callee"`
		Args   []string `yaml:"args"`
	}
)

// Parse decodes a module from YAML. Unknown fields are rejected.
//
// The result is only syntactically checked, see ir.Validate.
func Parse(data []byte) (*ir.Module, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a module from r.
func Decode(r io.Reader) (*ir.Module, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)

	var m module
	if err := d.Decode(&m); err != nil {
		if err == io.EOF {
			return &ir.Module{}, nil
		}
		return nil, errors.Wrap(err, "decode yaml")
	}

	ret := &ir.Module{Name: m.Name, Functions: make([]*ir.Function, len(m.Functions))}
	for i := range m.Functions {
		fn, err := m.Functions[i].build()
		if err != nil {
			return nil, errors.Wrap(err, "func %s", m.Functions[i].Name)
		}
		ret.Functions[i] = fn
	}
	return ret, nil
}

func (f *function) build() (*ir.Function, error) {
	result, ok := ir.ParseType(f.Result)
	if !ok {
		return nil, errors.New("unknown result type %q", f.Result)
	}

	params := make([]ir.Param, len(f.Params))
	for i, p := range f.Params {
		typ, ok := ir.ParseType(p.Type)
		if !ok || typ == ir.TypeVoid {
			return nil, errors.New("parameter v%d: unknown type %q", p.Reg, p.Type)
		}
		params[i] = ir.Param{Reg: ir.VReg(p.Reg), Type: typ}
	}

	fn := ir.NewFunction(f.Name, result, params...)
	for b, insts := range f.Blocks {
		blk, _ := fn.NewBlock()
		for i := range insts {
			inst, err := insts[i].build()
			if err != nil {
				return nil, errors.Wrap(err, "%v[%d]", ir.BlockID(b), i)
			}
			blk.Append(inst)
		}
	}
	return fn, nil
}

func (in *instruction) build() (inst ir.Instruction, err error) {
	op, ok := ir.ParseOp(in.Op)
	if !ok {
		return inst, errors.New("unknown op %q", in.Op)
	}
	inst.Op = op

	if in.Dst != "" {
		inst.Dst, err = parseOperand(in.Dst, op)
		if err != nil {
			return inst, errors.Wrap(err, "dst")
		}
	}

	if len(in.Src) > 2 {
		return inst, errors.New("%d sources, at most 2 expected", len(in.Src))
	}
	src := [2]*ir.Operand{&inst.Src1, &inst.Src2}
	for i, s := range in.Src {
		*src[i], err = parseOperand(s, op)
		if err != nil {
			return inst, errors.Wrap(err, "src %d", i)
		}
	}

	switch op.Category() {
	case ir.CategoryBranch:
		if in.Target == nil {
			return inst, errors.New("missing target")
		}
		inst.Target = ir.BlockID(*in.Target)
		if op == ir.OpBr {
			if in.Else == nil {
				return inst, errors.New("missing else")
			}
			inst.Else = ir.BlockID(*in.Else)
		}
	case ir.CategoryCall:
		if in.Callee == "" {
			return inst, errors.New("missing callee")
		}
		inst.Callee = in.Callee
		// Argument classes are not known without the callee.
		for i, a := range in.Args {
			arg, err := parseOperand(a, ir.OpInvalid)
			if err != nil {
				return inst, errors.Wrap(err, "arg %d", i)
			}
			inst.Args = append(inst.Args, arg)
		}
	default:
		if in.Target != nil || in.Else != nil || in.Callee != "" || in.Args != nil {
			return inst, errors.New("branch or call fields on %v", op)
		}
	}

	return inst, nil
}

// parseOperand parses s in the context of op, which gives the defaults of unsuffixed immediates.
func parseOperand(s string, op ir.Op) (ir.Operand, error) {
	switch {
	case strings.HasPrefix(s, "v"):
		n, err := strconv.ParseUint(s[1:], 10, 32)
		if err != nil {
			return ir.Operand{}, errors.New("bad register %q", s)
		}
		return ir.Reg(ir.VReg(n)), nil
	case strings.HasPrefix(s, "#"):
		return parseImm(s, op)
	}
	return ir.Operand{}, errors.New("bad operand %q", s)
}

func parseImm(s string, op ir.Op) (ir.Operand, error) {
	lit, suffix, _ := strings.Cut(s[1:], ":")

	var w ir.Width
	var float bool
	switch suffix {
	case "i8":
		w = ir.Width8
	case "i16":
		w = ir.Width16
	case "i32":
		w = ir.Width32
	case "i64":
		w = ir.Width64
	case "f32":
		w, float = ir.Width32, true
	case "f64":
		w, float = ir.Width64, true
	case "":
		w, float = defaultImm(op)
	default:
		return ir.Operand{}, errors.New("bad immediate suffix in %q", s)
	}

	if float {
		v, err := strconv.ParseFloat(lit, int(w))
		if err != nil {
			return ir.Operand{}, errors.New("bad float immediate %q", s)
		}
		if w == ir.Width32 {
			return ir.ImmF32(float32(v)), nil
		}
		return ir.ImmF64(v), nil
	}

	if v, err := strconv.ParseInt(lit, 0, int(w)); err == nil {
		return ir.ImmBits(uint64(v), w, false), nil
	}
	// Unsigned spellings of the full width, like 0xffffffff for i32.
	v, err := strconv.ParseUint(lit, 0, int(w))
	if err != nil {
		return ir.Operand{}, errors.New("bad integer immediate %q", s)
	}
	return ir.ImmBits(v, w, false), nil
}

func defaultImm(op ir.Op) (ir.Width, bool) {
	if w := op.ConstWidth(); w != 0 {
		return w, op.IsFloat()
	}
	return ir.Width64, op.IsFloat()
}
