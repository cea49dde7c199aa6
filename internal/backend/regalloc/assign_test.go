package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobalt-lang/cobalt/internal/arm"
	"github.com/cobalt-lang/cobalt/internal/mir"
)

func TestConstructRegMap(t *testing.T) {
	v100, v101, v102 := arm.VReg(100), arm.VReg(101), arm.VReg(102)
	f := testFunc("f", 0)
	f.StackSize = 8
	a := newAllocator(f, ColorMap{1: 0, 2: -1}, VRegMap{1: v100, 2: v101, 3: v102})
	a.constructRegMap()

	// Color 0 is the first callee-saved register.
	require.Equal(t, map[arm.Reg]arm.Reg{v100: 4}, a.regMap)
	require.Equal(t, []arm.Reg{v100}, a.regReverseMap[4])
	require.True(t, a.usedGlobals.Has(4))

	// Color -1 reserves a fresh slot above the preexisting frame.
	require.Equal(t, map[arm.Reg]int{v101: 8}, a.spillPositions)
	require.Contains(t, a.spilledCrossBlock, v101)
	require.Equal(t, 12, a.stackSize)

	// Uncolored variables stay transients.
	require.NotContains(t, a.regMap, v102)
	require.NotContains(t, a.spilledCrossBlock, v102)
}

func TestConstructRegMapSlotOrderIsDeterministic(t *testing.T) {
	f := testFunc("f", 0)
	vregs := VRegMap{}
	colors := ColorMap{}
	for i := 0; i < 8; i++ {
		vregs[mir.VarID(i)] = arm.VReg(uint32(100 + i))
		colors[mir.VarID(i)] = -1
	}
	a := newAllocator(f, colors, vregs)
	a.constructRegMap()

	// Slots follow ascending variable id regardless of map iteration order.
	for i := 0; i < 8; i++ {
		require.Equal(t, i*4, a.spillPositions[arm.VReg(uint32(100+i))])
	}
	require.Equal(t, 32, a.stackSize)
}
