package regalloc

import (
	"sort"

	"github.com/samber/lo"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

// collapseAffinities fuses register pairs connected by a no-op copy. Three
// shapes are handled: a transient copied from a graph-assigned register, a
// graph-assigned register copied from a transient, and two transients.
// In every case the collapsed register's uses are redirected to the
// survivor during the rewrite, so the copy moves a register onto itself.
// The copy instruction is not removed: it is still emitted as that
// self-move.
func (a *allocator) collapseAffinities() {
	dsts := lo.Keys(a.affinity)
	sort.Slice(dsts, func(i, j int) bool { return dsts[i] < dsts[j] })

	for _, dst := range dsts {
		src := a.affinity[dst]

		_, srcGraph := a.regMap[src]
		_, dstGraph := a.regMap[dst]
		_, srcCross := a.spilledCrossBlock[src]
		_, dstCross := a.spilledCrossBlock[dst]

		switch {
		case srcGraph && !dstGraph && !dstCross && a.assignCount[dst] == 1:
			if !a.graphShareOverlaps(a.regMap[src], src, *a.liveIntervals[dst]) {
				a.collapse[dst] = src
			}
		case dstGraph && !srcGraph && !srcCross && a.assignCount[src] == 1:
			if !a.graphShareOverlaps(a.regMap[dst], src, *a.liveIntervals[src]) {
				a.collapse[src] = dst
			}
		case !srcGraph && !srcCross && !dstGraph && !dstCross:
			srcRoot := a.resolveCollapse(src)
			dstRoot := a.resolveCollapse(dst)
			if srcRoot == dstRoot {
				continue
			}
			liSrc := a.liveIntervals[srcRoot]
			liDst := a.liveIntervals[dstRoot]
			if !liSrc.Overlaps(*liDst) {
				liSrc.ExtendStart(liDst.Start)
				liSrc.ExtendEnd(liDst.End)
				a.collapse[dstRoot] = srcRoot
			}
		}
	}
}

// graphShareOverlaps reports whether any virtual other than exclude that
// the graph coloring also placed on phys is live during iv. Collapsing
// onto phys would be unsound in that case.
func (a *allocator) graphShareOverlaps(phys arm.Reg, exclude arm.Reg, iv Interval) bool {
	for _, vr := range a.regReverseMap[phys] {
		if vr == exclude {
			continue
		}
		if li, ok := a.liveIntervals[vr]; ok && li.Overlaps(iv) {
			return true
		}
	}
	return false
}
