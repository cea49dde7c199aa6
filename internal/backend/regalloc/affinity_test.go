package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

func TestCollapseTransientOntoGraphAssigned(t *testing.T) {
	v100, v101 := arm.VReg(100), arm.VReg(101)
	f := testFunc("f", 0,
		movImm(v100, 1),    // 2: define the colored source
		movReg(v101, v100), // 3: copy candidate
		movReg(0, v101),    // 4: single use of the destination
	)
	vregs, colors := vregsOf(1, v100, 0)
	runAlloc(t, f, colors, vregs)

	out := render(f)
	// The copy destination collapses onto the source's r4: the copy
	// degenerates and the use reads r4 directly.
	require.Contains(t, out, "mov r4, r4")
	require.Contains(t, out, "mov r0, r4")
	require.Equal(t, 0, countPrefix(out, "str "))
}

func TestCollapseRefusedWhenDestinationRewritten(t *testing.T) {
	v100, v101 := arm.VReg(100), arm.VReg(101)
	f := testFunc("f", 0,
		movImm(v100, 1),
		movReg(v101, v100), // copy candidate
		movImm(v101, 9),    // second assignment blocks the collapse
		movReg(0, v101),
	)
	vregs, colors := vregsOf(1, v100, 0)

	a := newAllocator(f, colors, vregs)
	a.scanLiveness()
	a.constructRegMap()
	a.collapseAffinities()
	require.Empty(t, a.collapse)
}

func TestCollapseRefusedOnSharedColorOverlap(t *testing.T) {
	v100, v101, v102 := arm.VReg(100), arm.VReg(101), arm.VReg(102)
	f := testFunc("f", 0,
		movImm(v100, 1),    // 2
		movReg(v101, v100), // 3: copy candidate
		movImm(v102, 5),    // 4: other virtual sharing r4, overlapping v101
		movReg(0, v101),    // 5
		movReg(1, v102),    // 6
	)
	// v100 and v102 both carry color 0.
	vregs, colors := vregsOf(1, v100, 0, 2, v102, 0)

	a := newAllocator(f, colors, vregs)
	a.scanLiveness()
	a.constructRegMap()
	a.collapseAffinities()
	require.Empty(t, a.collapse)
}

func TestCollapseFusesTransients(t *testing.T) {
	v100, v101 := arm.VReg(100), arm.VReg(101)
	f := testFunc("f", 0,
		movImm(v100, 1),    // 2
		movReg(v101, v100), // 3: v100 dies here, v101 is born
		movReg(0, v101),    // 4
	)
	a := newAllocator(f, nil, nil)
	a.scanLiveness()
	a.constructRegMap()
	a.collapseAffinities()

	require.Equal(t, map[arm.Reg]arm.Reg{v101: v100}, a.collapse)
	// The survivor's interval covers both ranges.
	require.Equal(t, Interval{Start: 2, End: 4}, *a.liveIntervals[v100])
}

func TestResolveCollapseIsIdempotent(t *testing.T) {
	a := newAllocator(testFunc("f", 0), nil, nil)
	a.collapse[arm.VReg(3)] = arm.VReg(2)
	a.collapse[arm.VReg(2)] = arm.VReg(1)

	once := a.resolveCollapse(arm.VReg(3))
	require.Equal(t, arm.VReg(1), once)
	require.Equal(t, once, a.resolveCollapse(once))
	require.Equal(t, arm.VReg(7), a.resolveCollapse(arm.VReg(7)))
}
