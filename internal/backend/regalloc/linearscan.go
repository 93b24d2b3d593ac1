package regalloc

import (
	"sort"

	"tlog.app/go/tlog"

	"github.com/jablang/jab/ir"
	"github.com/jablang/jab/mir"
)

// NewLinearScan returns an Allocator implementing linear scan register allocation
// (Poletto and Sarkar, 1999) over the intervals of buildIntervals.
//
// Each virtual register gets a single location for its whole interval. Intervals crossing a
// call are restricted to callee-saved registers, and spilled when none is available.
func NewLinearScan(info *RegisterInfo) Allocator {
	return &linearScan{info: info}
}

type linearScan struct {
	info *RegisterInfo
}

type linearScanAllocation struct {
	locs        map[ir.VReg]Location
	params      map[ir.VReg]struct{}
	slots       int
	calleeSaved []mir.Reg
}

// Allocate implements Allocator.Allocate.
func (l *linearScan) Allocate(fn *ir.Function, types map[ir.VReg]ir.Type) (Allocation, error) {
	intervals := buildIntervals(fn, types)
	a := &linearScanAllocation{
		locs:   make(map[ir.VReg]Location, len(intervals)),
		params: make(map[ir.VReg]struct{}, len(fn.Params)),
	}
	for _, p := range fn.Params {
		a.params[p.Reg] = struct{}{}
	}

	var active []*interval // sorted by end.
	inUse := map[mir.Reg]*interval{}
	usedCalleeSaved := map[mir.Reg]struct{}{}

	for _, cur := range intervals {
		// Expire intervals ending no later than cur starts: the register of an operand
		// can be reused by the destination of the same instruction.
		n := 0
		for _, iv := range active {
			if iv.end <= cur.start {
				delete(inUse, a.locs[iv.v].Reg)
				continue
			}
			active[n] = iv
			n++
		}
		active = active[:n]

		candidates := l.candidates(cur)
		reg := mir.RegNone
		for _, r := range candidates {
			if _, busy := inUse[r]; !busy {
				reg = r
				break
			}
		}

		if reg == mir.RegNone {
			// Spill whichever of cur and the active intervals holding a candidate register ends last.
			var victim *interval
			for _, iv := range active {
				if contains(candidates, a.locs[iv.v].Reg) && (victim == nil || iv.end > victim.end) {
					victim = iv
				}
			}
			if victim == nil || victim.end <= cur.end {
				a.locs[cur.v] = a.spill()
				continue
			}
			reg = a.locs[victim.v].Reg
			a.locs[victim.v] = a.spill()
			active = remove(active, victim)
		}

		a.locs[cur.v] = Location{Reg: reg}
		inUse[reg] = cur
		if _, ok := l.info.CalleeSavedRegisters[reg]; ok {
			usedCalleeSaved[reg] = struct{}{}
		}
		active = insert(active, cur)
	}

	for _, regs := range l.info.AllocatableRegisters {
		for _, r := range regs {
			if _, ok := usedCalleeSaved[r]; ok {
				a.calleeSaved = append(a.calleeSaved, r)
			}
		}
	}

	tlog.V("regalloc").Printw("linear scan", "func", fn.Name, "intervals", len(intervals),
		"spill_slots", a.slots, "callee_saved", len(a.calleeSaved))
	return a, nil
}

func (l *linearScan) candidates(iv *interval) []mir.Reg {
	regs := l.info.AllocatableRegisters[iv.typ]
	if !iv.crossesCall {
		return regs
	}
	var ret []mir.Reg
	for _, r := range regs {
		if _, ok := l.info.CalleeSavedRegisters[r]; ok {
			ret = append(ret, r)
		}
	}
	return ret
}

func (a *linearScanAllocation) spill() Location {
	loc := Location{Slot: a.slots}
	a.slots++
	return loc
}

func contains(regs []mir.Reg, r mir.Reg) bool {
	for _, x := range regs {
		if x == r {
			return true
		}
	}
	return false
}

func insert(active []*interval, iv *interval) []*interval {
	i := sort.Search(len(active), func(i int) bool { return active[i].end > iv.end })
	active = append(active, nil)
	copy(active[i+1:], active[i:])
	active[i] = iv
	return active
}

func remove(active []*interval, iv *interval) []*interval {
	for i, x := range active {
		if x == iv {
			return append(active[:i], active[i+1:]...)
		}
	}
	return active
}

func (a *linearScanAllocation) loc(v ir.VReg) Location {
	loc, ok := a.locs[v]
	if !ok {
		panic("BUG: no location for " + v.String())
	}
	return loc
}

// Def implements Allocation.Def.
func (a *linearScanAllocation) Def(_ ir.Pos, v ir.VReg) Location { return a.loc(v) }

// Use implements Allocation.Use.
func (a *linearScanAllocation) Use(_ ir.Pos, _ Slot, v ir.VReg) Location { return a.loc(v) }

// Param implements Allocation.Param.
func (a *linearScanAllocation) Param(v ir.VReg) (Location, bool) {
	if _, ok := a.params[v]; !ok {
		return Location{}, false
	}
	return a.loc(v), true
}

// SpillSlots implements Allocation.SpillSlots.
func (a *linearScanAllocation) SpillSlots() int { return a.slots }

// CalleeSaved implements Allocation.CalleeSaved.
func (a *linearScanAllocation) CalleeSaved() []mir.Reg { return a.calleeSaved }
