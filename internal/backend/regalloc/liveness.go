package regalloc

import (
	"tlog.app/go/tlog"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

// scanLiveness is the first linear pass: it records the live interval and
// write count of every register, call sites, basic-block start points and
// copy-affinity candidates.
func (a *allocator) scanLiveness() {
	for i, inst := range a.f.Inst {
		switch x := inst.(type) {
		case *arm.PureInst:
			// No operands.
		case *arm.Arith4Inst:
			a.readAt(x.R1, i)
			a.readAt(x.R2, i)
			a.readAt(x.R3, i)
			a.writeAt(x.Rd, i)
		case *arm.Arith3Inst:
			a.readAt(x.R1, i)
			a.readOperand2At(x.R2, i)
			a.writeAt(x.Rd, i)
		case *arm.Arith2Inst:
			if x.Op == arm.OpMov || x.Op == arm.OpMovT || x.Op == arm.OpMvn {
				a.writeAt(x.R1, i)
				a.noteAffinity(x)
			} else {
				a.readAt(x.R1, i)
			}
			a.readOperand2At(x.R2, i)
		case *arm.BrInst:
			if x.Op == arm.OpBl {
				a.callPoints = append(a.callPoints, i)
			}
		case *arm.LoadStoreInst:
			if x.Op == arm.OpLdR {
				a.writeAt(x.Rd, i)
			} else {
				a.readAt(x.Rd, i)
			}
			if !x.Mem.IsLabel() {
				a.readMemAt(x.Mem.Mem, i)
			}
		case *arm.MultLoadStoreInst:
			if x.Op == arm.OpLdM {
				for _, rd := range x.Regs {
					a.writeAt(rd, i)
				}
			} else {
				for _, rd := range x.Regs {
					a.readAt(rd, i)
				}
			}
			a.readAt(x.Rn, i)
		case *arm.PushPopInst:
			if x.Op == arm.OpPush {
				x.Regs.Range(func(r arm.Reg) { a.writeAt(r, i) })
			} else {
				x.Regs.Range(func(r arm.Reg) { a.readAt(r, i) })
			}
		case *arm.LabelInst:
			id, ok, err := arm.ParseBBLabel(x.Label)
			if err != nil {
				tlog.Printw("ignoring malformed basic block label", "label", x.Label, "err", err)
				continue
			}
			if ok {
				a.blockStarts[i] = id
			}
		default:
			// Branch targets and control pseudos carry no register operands.
		}
	}
}

// noteAffinity records a copy-affinity candidate for a plain register move
// with no shift, when both sides are virtual. The collapse pass later
// decides whether the copy can be fused away.
func (a *allocator) noteAffinity(x *arm.Arith2Inst) {
	if x.Op != arm.OpMov || !x.R2.IsReg() {
		return
	}
	src := x.R2.Reg
	if src.Shift != arm.ShiftLsl || src.ShiftAmount != 0 {
		return
	}
	if !arm.IsVirtual(x.R1) || !arm.IsVirtual(src.Reg) {
		return
	}
	if _, ok := a.affinity[x.R1]; !ok {
		a.affinity[x.R1] = src.Reg
	}
}

// readAt records a read of r at point i: the interval's end moves forward.
func (a *allocator) readAt(r arm.Reg, i int) {
	if iv, ok := a.liveIntervals[r]; ok {
		iv.ExtendEnd(i)
		return
	}
	iv := NewInterval(i)
	a.liveIntervals[r] = &iv
}

// writeAt records a write of r at point i: the interval's start moves
// backward and the write count increments.
func (a *allocator) writeAt(r arm.Reg, i int) {
	if iv, ok := a.liveIntervals[r]; ok {
		iv.ExtendStart(i)
	} else {
		iv := NewInterval(i)
		a.liveIntervals[r] = &iv
	}
	a.assignCount[r]++
}

func (a *allocator) readOperand2At(o arm.Operand2, i int) {
	if o.IsReg() {
		a.readAt(o.Reg.Reg, i)
	}
}

func (a *allocator) readMemAt(m arm.MemoryOperand, i int) {
	a.readAt(m.R1, i)
	a.readOperand2At(m.Offset, i)
}
