package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

func TestLivenessIntervalsAndCounts(t *testing.T) {
	v100, v101 := arm.VReg(100), arm.VReg(101)
	f := testFunc("f", 0,
		movImm(v100, 1),       // 2: write v100
		movImm(v101, 2),       // 3: write v101
		addReg(v100, v100, v101), // 4: reads + write v100
		cmpImm(v100, 0),       // 5: read v100
	)
	a := newAllocator(f, nil, nil)
	a.scanLiveness()

	require.Equal(t, Interval{Start: 2, End: 5}, *a.liveIntervals[v100])
	require.Equal(t, Interval{Start: 3, End: 4}, *a.liveIntervals[v101])
	require.Equal(t, 2, a.assignCount[v100])
	require.Equal(t, 1, a.assignCount[v101])
}

func TestLivenessCallPointsAndBlocks(t *testing.T) {
	f := testFunc("f", 0,
		label(".bb_f$0"),   // 2
		callTo("g", 2),     // 3
		label(".bb_f$17"),  // 4
		label(".not_a_bb"), // 5
		branch("done"),     // 6
	)
	a := newAllocator(f, nil, nil)
	a.scanLiveness()

	require.Equal(t, []int{3}, a.callPoints)
	require.Equal(t, map[int]int{2: 0, 4: 17}, a.blockStarts)
}

func TestLivenessIgnoresMalformedBlockLabels(t *testing.T) {
	f := testFunc("f", 0,
		label(".bb_f$oops"), // malformed id
		label(".bb_f"),      // no id at all
		label(".bb_f$3"),
	)
	a := newAllocator(f, nil, nil)
	a.scanLiveness()

	require.Equal(t, map[int]int{4: 3}, a.blockStarts)
}

func TestLivenessLoadStoreShapes(t *testing.T) {
	v100, v101 := arm.VReg(100), arm.VReg(101)
	f := testFunc("f", 0,
		// 2: ldr v100, [v101, r0]
		&arm.LoadStoreInst{Op: arm.OpLdR, Rd: v100, Mem: arm.MemRefOf(arm.MemoryOperand{
			R1: v101, Offset: arm.RegOperand(0),
		})},
		// 3: str v100, [v101, #4]
		&arm.LoadStoreInst{Op: arm.OpStR, Rd: v100, Mem: arm.MemRefOf(arm.MemOff(v101, 4))},
	)
	a := newAllocator(f, nil, nil)
	a.scanLiveness()

	require.Equal(t, Interval{Start: 2, End: 3}, *a.liveIntervals[v100])
	require.Equal(t, Interval{Start: 2, End: 3}, *a.liveIntervals[v101])
	require.Equal(t, 1, a.assignCount[v100])
	require.Zero(t, a.assignCount[v101])
	require.Equal(t, Interval{Start: 2, End: 2}, *a.liveIntervals[arm.Reg(0)])
}

func TestLivenessAffinityCandidates(t *testing.T) {
	v100, v101, v102 := arm.VReg(100), arm.VReg(101), arm.VReg(102)
	f := testFunc("f", 0,
		movReg(v101, v100), // virtual copy: recorded
		movReg(0, v100),    // physical destination: not recorded
		&arm.Arith2Inst{Op: arm.OpMov, R1: v102, R2: arm.Operand2{
			Kind: arm.Operand2Reg,
			Reg:  arm.RegisterOperand{Reg: v100, Shift: arm.ShiftLsl, ShiftAmount: 2},
		}}, // shifted source: not recorded
		&arm.Arith2Inst{Op: arm.OpMvn, R1: v102, R2: arm.RegOperand(v100)}, // not a plain mov
	)
	a := newAllocator(f, nil, nil)
	a.scanLiveness()

	require.Equal(t, map[arm.Reg]arm.Reg{v101: v100}, a.affinity)
}
