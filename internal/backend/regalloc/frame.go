package regalloc

import (
	"slices"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

// stackAdjustImmLimit bounds the frame sizes subtracted with a direct
// immediate: sizes below it use the immediate, sizes of this value or larger
// go through the scratch register.
const stackAdjustImmLimit = 1024

// finalizeFrame completes the prologue and epilogue after the rewrite: the
// push/pop sets gain every register the allocation touched, the stack
// pointer adjustment is inserted with the immediate or scratch-register
// strategy, and the frame-pointer bookkeeping is deleted when the function
// neither spills nor takes stack parameters. Each step checks whether its
// edit is already in place, so finalizing an already-finalized function is
// a no-op.
func (a *allocator) finalizeFrame() {
	insts := a.f.Inst
	first, ok := insts[0].(*arm.PushPopInst)
	if !ok || first.Op != arm.OpPush {
		panic("BUG: function does not start with the entry push")
	}
	last, ok := insts[len(insts)-1].(*arm.PushPopInst)
	if !ok || last.Op != arm.OpPop {
		panic("BUG: function does not end with the exit pop")
	}

	used := a.usedGlobals.Union(a.usedTemps)
	first.Regs = first.Regs.Union(used)
	last.Regs = last.Regs.Union(used)

	useStackParam := a.f.ParamCount > 4
	offsetSize := int32(first.Regs.Len() * 4)

	if !useStackParam && a.stackSize == 0 {
		first.Regs = first.Regs.Remove(arm.RegFP)
		last.Regs = last.Regs.Remove(arm.RegFP)
	}

	if useStackParam && !prologueHas(insts, isFPAdjust(arm.OpAdd, offsetSize)) {
		// FP must skip the pushed registers to address incoming stack
		// arguments.
		insts = slices.Insert[[]arm.Inst, arm.Inst](insts, 2, &arm.Arith3Inst{
			Op: arm.OpAdd, Rd: arm.RegFP, R1: arm.RegFP, R2: arm.Imm(offsetSize),
		})
	}

	switch {
	case a.stackSize == 0:
		if !useStackParam && len(insts) > 1 && isMovFPSP(insts[1]) {
			insts = slices.Delete(insts, 1, 2)
		}
	case a.stackSize < stackAdjustImmLimit:
		if !prologueHas(insts, isSPAdjustImm(a.stackSize)) {
			insts = slices.Insert[[]arm.Inst, arm.Inst](insts, 2, &arm.Arith3Inst{
				Op: arm.OpSub, Rd: arm.RegSP, R1: arm.RegSP, R2: arm.Imm(int32(a.stackSize)),
			})
		}
	default:
		if !prologueHas(insts, isScratchImm(a.stackSize)) {
			insts = slices.Insert[[]arm.Inst, arm.Inst](insts, 2,
				&arm.Arith2Inst{Op: arm.OpMov, R1: arm.RegScratch, R2: arm.Imm(int32(a.stackSize))},
				&arm.Arith3Inst{Op: arm.OpSub, Rd: arm.RegSP, R1: arm.RegSP, R2: arm.RegOperand(arm.RegScratch)},
			)
		}
	}

	if a.stackSize == 0 {
		if n := len(insts); n >= 2 && isMovSPFP(insts[n-2]) {
			insts = slices.Delete(insts, n-2, n-1)
		}
	}

	if useStackParam && !epilogueHas(insts, isFPAdjust(arm.OpSub, offsetSize)) {
		pos := len(insts) - 1
		if pos > 0 && isMovSPFP(insts[pos-1]) {
			pos--
		}
		insts = slices.Insert[[]arm.Inst, arm.Inst](insts, pos, &arm.Arith3Inst{
			Op: arm.OpSub, Rd: arm.RegFP, R1: arm.RegFP, R2: arm.Imm(offsetSize),
		})
	}

	if first.Regs == 0 {
		insts = slices.Delete(insts, 0, 1)
	}
	if last.Regs == 0 {
		insts = slices.Delete(insts, len(insts)-1, len(insts))
	}
	a.f.Inst = insts
}

// prologueHas reports whether one of the few instructions following the
// entry push matches pred.
func prologueHas(insts []arm.Inst, pred func(arm.Inst) bool) bool {
	for k := 1; k < len(insts) && k <= 4; k++ {
		if pred(insts[k]) {
			return true
		}
	}
	return false
}

// epilogueHas is the mirror of prologueHas over the instructions just
// before the exit pop.
func epilogueHas(insts []arm.Inst, pred func(arm.Inst) bool) bool {
	for k := len(insts) - 2; k >= 0 && k >= len(insts)-5; k-- {
		if pred(insts[k]) {
			return true
		}
	}
	return false
}

func isMovFPSP(in arm.Inst) bool {
	x, ok := in.(*arm.Arith2Inst)
	return ok && x.Op == arm.OpMov && x.R1 == arm.RegFP &&
		x.R2 == arm.RegOperand(arm.RegSP) && x.Cond == arm.CondAlways
}

func isMovSPFP(in arm.Inst) bool {
	x, ok := in.(*arm.Arith2Inst)
	return ok && x.Op == arm.OpMov && x.R1 == arm.RegSP &&
		x.R2 == arm.RegOperand(arm.RegFP) && x.Cond == arm.CondAlways
}

func isFPAdjust(op arm.OpCode, offset int32) func(arm.Inst) bool {
	return func(in arm.Inst) bool {
		x, ok := in.(*arm.Arith3Inst)
		return ok && x.Op == op && x.Rd == arm.RegFP && x.R1 == arm.RegFP &&
			x.R2 == arm.Imm(offset)
	}
}

func isSPAdjustImm(size int) func(arm.Inst) bool {
	return func(in arm.Inst) bool {
		x, ok := in.(*arm.Arith3Inst)
		return ok && x.Op == arm.OpSub && x.Rd == arm.RegSP && x.R1 == arm.RegSP &&
			x.R2 == arm.Imm(int32(size))
	}
}

func isScratchImm(size int) func(arm.Inst) bool {
	return func(in arm.Inst) bool {
		x, ok := in.(*arm.Arith2Inst)
		return ok && x.Op == arm.OpMov && x.R1 == arm.RegScratch &&
			x.R2 == arm.Imm(int32(size))
	}
}
