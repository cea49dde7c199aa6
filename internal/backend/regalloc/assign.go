package regalloc

import (
	"sort"

	"github.com/samber/lo"
	"tlog.app/go/tlog"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

// constructRegMap consumes the graph-coloring result. Colored virtuals are
// bound to their callee-saved physical; color -1 reserves a cross-block
// spill slot; variables absent from the color map stay transients for the
// rewrite pass to allocate locally.
func (a *allocator) constructRegMap() {
	ids := lo.Keys(a.vregs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, varID := range ids {
		vreg := a.vregs[varID]
		color, ok := a.colors[varID]
		switch {
		case !ok:
			tlog.V("regalloc").Printw("local variable", "var", varID, "vreg", vreg)
		case color >= 0:
			phys := arm.GlobRegs[color]
			a.regMap[vreg] = phys
			a.regReverseMap[phys] = append(a.regReverseMap[phys], vreg)
			a.usedGlobals = a.usedGlobals.Add(phys)
			tlog.V("regalloc").Printw("graph assigned", "var", varID, "vreg", vreg, "reg", phys)
		default:
			a.spillPositions[vreg] = a.stackSize
			a.spilledCrossBlock[vreg] = struct{}{}
			tlog.V("regalloc").Printw("cross-block spill", "var", varID, "vreg", vreg, "slot", a.stackSize)
			a.stackSize += 4
		}
	}
}
