package regalloc

import (
	"container/list"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"tlog.app/go/tlog"

	"github.com/cobalt-lang/cobalt/internal/arm"
	"github.com/cobalt-lang/cobalt/internal/mir"
)

// ColorMap is the graph-coloring result for one function: a color index
// into arm.GlobRegs for each variable, or -1 for variables that must live
// in memory across blocks.
type ColorMap map[mir.VarID]int32

// VRegMap maps MIR variables to the virtual registers lowering assigned
// them.
type VRegMap map[mir.VarID]arm.Reg

// noReg is the sentinel for "no register chosen yet".
const noReg = ^arm.Reg(0)

// binding ties a virtual register to the physical register currently
// holding it.
type binding struct {
	virt arm.Reg
	phys arm.Reg
}

// allocator holds the per-function allocation state. It lives for exactly
// one function and must not be reused.
type allocator struct {
	f      *arm.Function
	colors ColorMap
	vregs  VRegMap

	// Liveness results.
	liveIntervals map[arm.Reg]*Interval
	assignCount   map[arm.Reg]int
	affinity      map[arm.Reg]arm.Reg
	callPoints    []int
	blockStarts   map[int]int

	// Graph-coloring assignment.
	regMap            map[arm.Reg]arm.Reg
	regReverseMap     map[arm.Reg][]arm.Reg
	spilledCrossBlock map[arm.Reg]struct{}

	// Affinity collapse.
	collapse map[arm.Reg]arm.Reg

	// Rewrite state.
	active         map[arm.Reg]Interval
	activeBindings *list.List // of binding, oldest first
	spilledRegs    map[arm.Reg]Interval
	spillPositions map[arm.Reg]int
	wroteTo        map[arm.Reg]struct{}
	delayed        *binding
	sink           []arm.Inst

	usedGlobals arm.RegSet
	usedTemps   arm.RegSet

	stackSize   int
	stackOffset int
	bbReset     bool
	isLeafFunc  bool
	curCond     arm.ConditionCode
}

func newAllocator(f *arm.Function, colors ColorMap, vregs VRegMap) *allocator {
	return &allocator{
		f:      f,
		colors: colors,
		vregs:  vregs,

		liveIntervals: map[arm.Reg]*Interval{},
		assignCount:   map[arm.Reg]int{},
		affinity:      map[arm.Reg]arm.Reg{},
		blockStarts:   map[int]int{},

		regMap:            map[arm.Reg]arm.Reg{},
		regReverseMap:     map[arm.Reg][]arm.Reg{},
		spilledCrossBlock: map[arm.Reg]struct{}{},

		collapse: map[arm.Reg]arm.Reg{},

		active:         map[arm.Reg]Interval{},
		activeBindings: list.New(),
		spilledRegs:    map[arm.Reg]Interval{},
		spillPositions: map[arm.Reg]int{},
		wroteTo:        map[arm.Reg]struct{}{},

		stackSize:  f.StackSize,
		bbReset:    true,
		isLeafFunc: true,
		curCond:    arm.CondAlways,
	}
}

// allocRegs runs the whole allocation: liveness, assignment, affinity
// collapse, the rewrite walk and frame finalization.
func (a *allocator) allocRegs() error {
	a.scanLiveness()
	tlog.V("regalloc").Printw("liveness",
		"intervals", len(a.liveIntervals), "blocks", len(a.blockStarts), "calls", len(a.callPoints))
	a.constructRegMap()
	a.collapseAffinities()

	if err := a.rewrite(); err != nil {
		return err
	}
	a.f.Inst = a.sink
	a.finalizeFrame()
	a.f.StackSize = a.stackSize
	tlog.V("regalloc").Printw("frame finalized",
		"func", a.f.Name, "stack", a.stackSize, "leaf", a.isLeafFunc)
	return nil
}

// resolveCollapse follows collapse chains to their representative. Chains
// are acyclic by construction, so this terminates.
func (a *allocator) resolveCollapse(r arm.Reg) arm.Reg {
	for {
		next, ok := a.collapse[r]
		if !ok {
			return r
		}
		r = next
	}
}

// getOrAllocSpillPos returns r's spill slot, reserving a fresh 4-byte slot
// at the top of the frame on first use. Slots are immutable once assigned.
func (a *allocator) getOrAllocSpillPos(r arm.Reg) int {
	if pos, ok := a.spillPositions[r]; ok {
		return pos
	}
	pos := a.stackSize
	a.stackSize += 4
	a.spillPositions[r] = pos
	return pos
}

// findBinding returns the list element binding virt, or nil.
func (a *allocator) findBinding(virt arm.Reg) *list.Element {
	for e := a.activeBindings.Front(); e != nil; e = e.Next() {
		if e.Value.(binding).virt == virt {
			return e
		}
	}
	return nil
}

// removeBindingByPhys removes the first binding holding phys, if any.
func (a *allocator) removeBindingByPhys(phys arm.Reg) {
	for e := a.activeBindings.Front(); e != nil; e = e.Next() {
		if e.Value.(binding).phys == phys {
			a.activeBindings.Remove(e)
			return
		}
	}
}

// crossesCall reports whether any call site falls within [iv.Start,
// iv.End]. callPoints is sorted ascending.
func (a *allocator) crossesCall(iv Interval) bool {
	i := sort.SearchInts(a.callPoints, iv.Start)
	return i < len(a.callPoints) && a.callPoints[i] <= iv.End
}

// dumpActive renders the active set for diagnostics.
func (a *allocator) dumpActive() string {
	entries := lo.MapToSlice(a.active, func(r arm.Reg, iv Interval) string {
		return fmt.Sprintf("%v: %v", r, iv)
	})
	sort.Strings(entries)
	return strings.Join(entries, "\n")
}

func (a *allocator) traceActive() {
	l := tlog.V("regalloc")
	if l == nil {
		return
	}
	var bindings []string
	for e := a.activeBindings.Front(); e != nil; e = e.Next() {
		b := e.Value.(binding)
		bindings = append(bindings, fmt.Sprintf("%v->%v", b.virt, b.phys))
	}
	l.Printw("active", "regs", strings.ReplaceAll(a.dumpActive(), "\n", "; "), "bindings", strings.Join(bindings, "; "))
}
