package regalloc

import (
	"fmt"
	"sort"

	"github.com/jablang/jab/ir"
)

// interval is the live range of a virtual register in program order, inclusive on both ends.
type interval struct {
	v          ir.VReg
	typ        RegType
	start, end ir.Pos
	// crossesCall is true if a call happens strictly inside the interval.
	crossesCall bool
}

func (i *interval) String() string {
	return fmt.Sprintf("%s:%s[%d,%d]", i.v, i.typ, i.start, i.end)
}

// buildIntervals computes one interval per virtual register of fn, spanning from its first
// definition to its last use. Intervals live across the header of a loop are extended to
// the back edge closing it. The result is sorted by start, then by register.
func buildIntervals(fn *ir.Function, types map[ir.VReg]ir.Type) []*interval {
	byReg := map[ir.VReg]*interval{}
	touch := func(v ir.VReg, pos ir.Pos) {
		iv, ok := byReg[v]
		if !ok {
			iv = &interval{v: v, typ: RegTypeOf(types[v]), start: pos, end: pos}
			byReg[v] = iv
			return
		}
		if pos < iv.start {
			iv.start = pos
		}
		if pos > iv.end {
			iv.end = pos
		}
	}
	for _, p := range fn.Params {
		touch(p.Reg, 0)
	}

	blockStart := make([]ir.Pos, len(fn.Blocks))
	type backEdge struct{ header, from ir.Pos }
	var backEdges []backEdge
	var calls []ir.Pos
	type branch struct {
		pos     ir.Pos
		targets []ir.BlockID
	}
	var branches []branch

	_ = fn.Walk(func(pos ir.Pos, blk ir.BlockID, idx int, inst *ir.Instruction) error {
		if idx == 0 {
			blockStart[blk] = pos
		}
		for _, o := range [...]ir.Operand{inst.Src1, inst.Src2} {
			if o.IsVReg() {
				touch(o.VReg(), pos)
			}
		}
		for _, a := range inst.Args {
			if a.IsVReg() {
				touch(a.VReg(), pos)
			}
		}
		if inst.Dst.IsVReg() {
			touch(inst.Dst.VReg(), pos)
		}
		switch inst.Op {
		case ir.OpCall:
			calls = append(calls, pos)
		case ir.OpJmp:
			branches = append(branches, branch{pos, []ir.BlockID{inst.Target}})
		case ir.OpBr:
			branches = append(branches, branch{pos, []ir.BlockID{inst.Target, inst.Else}})
		}
		return nil
	})

	// Empty blocks start where the next non-empty block does.
	next := ir.Pos(fn.NumInstructions() + 1)
	for b := len(fn.Blocks) - 1; b >= 0; b-- {
		if len(fn.Blocks[b].Insts) == 0 {
			blockStart[b] = next
		} else {
			next = blockStart[b]
		}
	}
	for _, br := range branches {
		for _, t := range br.targets {
			if h := blockStart[t]; h <= br.pos {
				backEdges = append(backEdges, backEdge{header: h, from: br.pos})
			}
		}
	}

	ret := make([]*interval, 0, len(byReg))
	for _, iv := range byReg {
		ret = append(ret, iv)
	}

	for changed := true; changed; {
		changed = false
		for _, e := range backEdges {
			for _, iv := range ret {
				if iv.start < e.header && iv.end >= e.header && iv.end < e.from {
					iv.end = e.from
					changed = true
				}
			}
		}
	}

	for _, iv := range ret {
		for _, c := range calls {
			if iv.start < c && c < iv.end {
				iv.crossesCall = true
				break
			}
		}
	}

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].start != ret[j].start {
			return ret[i].start < ret[j].start
		}
		return ret[i].v < ret[j].v
	})
	return ret
}
