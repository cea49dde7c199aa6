package regalloc

import (
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

type writeKind byte

const (
	writePhys writeKind = iota
	writeGraph
	writeSpill
	writeTransient
)

// writeAction is the record pre-resolved for a write operand: the register
// id before substitution, the chosen physical, and how to post-process it.
type writeAction struct {
	from arm.Reg
	with arm.Reg
	kind writeKind
}

// rewrite is the second linear pass. Each instruction has its reads
// materialized into physical registers, expired active entries dropped,
// writes pre-resolved, the instruction emitted into the sink, and write
// bookkeeping recorded, in that order. A pending delayed store is drained
// at the end of every iteration.
func (a *allocator) rewrite() error {
	for i, inst := range a.f.Inst {
		a.curCond = inst.Condition()
		tlog.V("regalloc").Printw("rewrite", "i", i, "inst", inst)

		switch x := inst.(type) {
		case *arm.Arith3Inst:
			if err := a.replaceReadReg(&x.R1, i); err != nil {
				return err
			}
			if err := a.replaceReadOperand2(&x.R2, i); err != nil {
				return err
			}
			a.invalidateExpired(i)
			a.wroteTo[x.Rd] = struct{}{}
			prw, err := a.preReplaceWrite(&x.Rd, i, nil)
			if err != nil {
				return err
			}
			a.emit(x)
			a.replaceWrite(prw, i)

		case *arm.Arith4Inst:
			if err := a.replaceReadReg(&x.R1, i); err != nil {
				return err
			}
			if err := a.replaceReadReg(&x.R2, i); err != nil {
				return err
			}
			if err := a.replaceReadReg(&x.R3, i); err != nil {
				return err
			}
			a.invalidateExpired(i)
			a.wroteTo[x.Rd] = struct{}{}
			prw, err := a.preReplaceWrite(&x.Rd, i, nil)
			if err != nil {
				return err
			}
			a.emit(x)
			a.replaceWrite(prw, i)

		case *arm.Arith2Inst:
			if err := a.rewriteArith2(x, i); err != nil {
				return err
			}

		case *arm.LoadStoreInst:
			if !x.Mem.IsLabel() {
				if err := a.replaceReadMem(&x.Mem.Mem, i); err != nil {
					return err
				}
			}
			if x.Op == arm.OpLdR {
				a.invalidateExpired(i)
				a.wroteTo[x.Rd] = struct{}{}
				prw, err := a.preReplaceWrite(&x.Rd, i, nil)
				if err != nil {
					return err
				}
				a.emit(x)
				a.replaceWrite(prw, i)
			} else {
				if err := a.replaceReadReg(&x.Rd, i); err != nil {
					return err
				}
				a.invalidateExpired(i)
				a.emit(x)
			}

		case *arm.MultLoadStoreInst:
			return errors.New("rewriting %v: multi load/store not implemented", x.Op)

		case *arm.PushPopInst:
			a.invalidateExpired(i)
			a.emit(x)

		case *arm.LabelInst:
			a.invalidateExpired(i)
			a.emit(x)
			// Keep a PC-relative literal label adjacent to its anchoring
			// load or store.
			if n := len(a.sink); strings.HasPrefix(x.Label, arm.LdPCLabelPrefix) && n >= 2 {
				if _, ok := a.sink[n-2].(*arm.LoadStoreInst); ok {
					a.sink[n-2], a.sink[n-1] = a.sink[n-1], a.sink[n-2]
				}
			}
			if strings.HasPrefix(x.Label, ".bb") {
				a.bbReset = true
			}

		case *arm.BrInst:
			a.invalidateExpired(i)
			switch x.Op {
			case arm.OpBl:
				a.flushForCall(x)
			case arm.OpB:
				if a.bbReset && x.Cond == arm.CondAlways {
					a.flushBlockBoundary()
				}
				a.emit(x)
			default:
				a.emit(x)
			}

		case *arm.CtrlInst:
			if x.Key == arm.OffsetStackKey {
				delta, ok := x.Val.(int)
				if !ok {
					return errors.New("offset_stack carries %T, want int", x.Val)
				}
				a.stackOffset += delta
			}
			a.invalidateExpired(i)
			a.emit(x)

		default:
			a.invalidateExpired(i)
			a.emit(inst)
		}

		a.drainDelayed(i)
	}
	return nil
}

func (a *allocator) rewriteArith2(x *arm.Arith2Inst, i int) error {
	switch x.Op {
	case arm.OpMov, arm.OpMvn:
		if err := a.replaceReadOperand2(&x.R2, i); err != nil {
			return err
		}
		a.invalidateExpired(i)
		a.wroteTo[x.R1] = struct{}{}
		prw, err := a.preReplaceWrite(&x.R1, i, nil)
		if err != nil {
			return err
		}
		a.emit(x)
		a.replaceWrite(prw, i)
		return nil

	case arm.OpMovT:
		// movt reads the low half of its destination, so the register is
		// materialized first and the write reuses that physical.
		orig := x.R1
		if err := a.replaceReadReg(&x.R1, i); err != nil {
			return err
		}
		a.invalidateExpired(i)
		a.wroteTo[x.R1] = struct{}{}
		pre := x.R1
		prw, err := a.preReplaceWrite(&orig, i, &pre)
		if err != nil {
			return err
		}
		a.emit(x)
		a.replaceWrite(prw, i)
		return nil

	default:
		if err := a.replaceReadReg(&x.R1, i); err != nil {
			return err
		}
		if err := a.replaceReadOperand2(&x.R2, i); err != nil {
			return err
		}
		a.invalidateExpired(i)
		a.emit(x)
		return nil
	}
}

func (a *allocator) emit(inst arm.Inst) {
	a.sink = append(a.sink, inst)
}

// replaceReadReg substitutes a physical register for *r in place,
// reloading from the spill slot when the value was evicted.
func (a *allocator) replaceReadReg(r *arm.Reg, i int) error {
	v := a.resolveCollapse(*r)
	*r = v
	if !arm.IsVirtual(v) {
		return nil
	}
	if phys, ok := a.regMap[v]; ok {
		*r = phys
		return nil
	}
	if spilled, ok := a.spilledRegs[v]; ok {
		pos := a.getOrAllocSpillPos(v)
		delete(a.spilledRegs, v)
		rd, err := a.allocTransient(spilled.WithStart(i), v)
		if err != nil {
			return err
		}
		mem := arm.MemOff(arm.RegSP, int32(pos+a.stackOffset))
		if a.tailMatchesStore(rd, mem) {
			// The value is still in rd; drop the store and re-emit it after
			// the current instruction instead of reloading.
			a.sink = a.sink[:len(a.sink)-1]
			a.delayed = &binding{virt: v, phys: rd}
		} else {
			a.emit(&arm.LoadStoreInst{Op: arm.OpLdR, Rd: rd, Mem: arm.MemRefOf(mem), Cond: a.curCond})
		}
		*r = rd
		return nil
	}
	li, ok := a.liveIntervals[v]
	if !ok {
		panic("BUG: read of a register with no live interval")
	}
	rd, err := a.allocTransient(*li, v)
	if err != nil {
		return err
	}
	*r = rd
	return nil
}

func (a *allocator) replaceReadOperand2(o *arm.Operand2, i int) error {
	if !o.IsReg() {
		return nil
	}
	return a.replaceReadReg(&o.Reg.Reg, i)
}

func (a *allocator) replaceReadMem(m *arm.MemoryOperand, i int) error {
	if err := a.replaceReadReg(&m.R1, i); err != nil {
		return err
	}
	if m.Offset.IsReg() {
		return a.replaceReadReg(&m.Offset.Reg.Reg, i)
	}
	return nil
}

// invalidateExpired drops every active entry whose interval ended at or
// before pos, together with its binding.
func (a *allocator) invalidateExpired(pos int) {
	for r, iv := range a.active {
		if iv.End <= pos {
			delete(a.active, r)
			a.removeBindingByPhys(r)
		}
	}
}

// preReplaceWrite resolves a write operand to a physical register and
// returns the record replaceWrite finishes after the instruction is
// emitted. pre, when non-nil, is a physical register already chosen for
// this operand by an earlier read of the same instruction.
func (a *allocator) preReplaceWrite(r *arm.Reg, i int, pre *arm.Reg) (writeAction, error) {
	v := a.resolveCollapse(*r)
	from := v
	if !arm.IsVirtual(v) {
		a.forceFree(v, true, true)
		*r = v
		return writeAction{from: from, with: v, kind: writePhys}, nil
	}
	if phys, ok := a.regMap[v]; ok {
		*r = phys
		return writeAction{from: from, with: phys, kind: writeGraph}, nil
	}
	if _, ok := a.spilledCrossBlock[v]; ok {
		var rd arm.Reg
		switch {
		case pre != nil:
			rd = *pre
		default:
			if e := a.findBinding(v); e != nil {
				rd = e.Value.(binding).phys
				a.activeBindings.MoveToBack(e)
			} else {
				li, ok := a.liveIntervals[v]
				if !ok {
					panic("BUG: write of a register with no live interval")
				}
				var err error
				rd, err = a.allocTransient(li.WithStart(i), v)
				if err != nil {
					return writeAction{}, err
				}
			}
		}
		*r = rd
		return writeAction{from: from, with: rd, kind: writeSpill}, nil
	}
	if spilled, ok := a.spilledRegs[v]; ok {
		a.getOrAllocSpillPos(v)
		delete(a.spilledRegs, v)
		var rd arm.Reg
		if pre != nil {
			rd = *pre
		} else {
			var err error
			rd, err = a.allocTransient(spilled.WithStart(i), v)
			if err != nil {
				return writeAction{}, err
			}
		}
		*r = rd
		return writeAction{from: from, with: rd, kind: writeSpill}, nil
	}
	li, ok := a.liveIntervals[v]
	if !ok {
		panic("BUG: write of a register with no live interval")
	}
	rd, err := a.allocTransient(*li, v)
	if err != nil {
		return writeAction{}, err
	}
	*r = rd
	return writeAction{from: from, with: rd, kind: writeTransient}, nil
}

// replaceWrite performs the post-emit bookkeeping for a write operand.
func (a *allocator) replaceWrite(act writeAction, i int) {
	switch act.kind {
	case writePhys:
		a.active[act.with] = Interval{Start: i, End: pointMax}
	case writeSpill:
		pos := a.getOrAllocSpillPos(act.from)
		mem := arm.MemOff(arm.RegSP, int32(pos+a.stackOffset))
		if !a.tailMatchesStore(act.with, mem) {
			a.emit(&arm.LoadStoreInst{Op: arm.OpStR, Rd: act.with, Mem: arm.MemRefOf(mem), Cond: a.curCond})
		}
		delete(a.wroteTo, act.from)
	case writeGraph, writeTransient:
		// Nothing to record.
	}
}

// tailMatchesStore reports whether the most recently emitted instruction is
// a store of rd to mem under the current condition.
func (a *allocator) tailMatchesStore(rd arm.Reg, mem arm.MemoryOperand) bool {
	if len(a.sink) == 0 {
		return false
	}
	st, ok := a.sink[len(a.sink)-1].(*arm.LoadStoreInst)
	return ok && st.Op == arm.OpStR && st.Rd == rd &&
		!st.Mem.IsLabel() && st.Mem.Mem == mem && st.Cond == a.curCond
}

// allocTransient picks a physical register for a transient with the given
// live interval, evicting the oldest binding when the files are full.
func (a *allocator) allocTransient(iv Interval, orig arm.Reg) (arm.Reg, error) {
	if e := a.findBinding(orig); e != nil {
		b := e.Value.(binding)
		a.activeBindings.MoveToBack(e)
		return b.phys, nil
	}

	chosen := noReg
	tryTemps := func() {
		if chosen != noReg {
			return
		}
		for _, r := range arm.TempRegs {
			if _, busy := a.active[r]; !busy {
				chosen = r
				return
			}
		}
	}
	tryGlobs := func() {
		if chosen != noReg {
			return
		}
		for _, r := range arm.GlobRegs {
			if _, busy := a.active[r]; busy {
				continue
			}
			if a.usedGlobals.Has(r) {
				continue
			}
			chosen = r
			a.usedTemps = a.usedTemps.Add(r)
			return
		}
	}
	if a.crossesCall(iv) {
		// The value must survive a call, so prefer a callee-saved register
		// the graph coloring left unused.
		tryGlobs()
		tryTemps()
	} else {
		tryTemps()
		tryGlobs()
	}

	if chosen == noReg {
		front := a.activeBindings.Front()
		if front == nil {
			return noReg, errors.New(
				"cannot allocate a register: every active register is an unbound temporary\nactive:\n%s",
				a.dumpActive())
		}
		victim := front.Value.(binding)
		a.activeBindings.Remove(front)
		victimIv := a.active[victim.phys]
		victimIv.Start = iv.Start
		pos := a.getOrAllocSpillPos(victim.virt)
		a.emit(&arm.LoadStoreInst{
			Op:   arm.OpStR,
			Rd:   victim.phys,
			Mem:  arm.MemRefOf(arm.MemOff(arm.RegSP, int32(pos+a.stackOffset))),
			Cond: a.curCond,
		})
		tlog.V("regalloc").Printw("evicting", "phys", victim.phys, "virt", victim.virt, "slot", pos)
		a.spilledRegs[victim.virt] = victimIv
		delete(a.active, victim.phys)
		chosen = victim.phys
	}

	a.active[chosen] = iv
	a.activeBindings.PushBack(binding{virt: orig, phys: chosen})
	a.traceActive()
	return chosen, nil
}

// forceFree evicts whatever virtual is bound to r, storing it back to its
// spill slot when writeBack is set.
func (a *allocator) forceFree(r arm.Reg, alsoEraseBinding, writeBack bool) {
	iv, ok := a.active[r]
	if !ok {
		return
	}
	for e := a.activeBindings.Front(); e != nil; e = e.Next() {
		b := e.Value.(binding)
		if b.phys != r {
			continue
		}
		pos := a.getOrAllocSpillPos(b.virt)
		if writeBack {
			a.emit(&arm.LoadStoreInst{
				Op:   arm.OpStR,
				Rd:   r,
				Mem:  arm.MemRefOf(arm.MemOff(arm.RegSP, int32(pos+a.stackOffset))),
				Cond: a.curCond,
			})
		}
		a.spilledRegs[b.virt] = iv
		delete(a.active, r)
		if alsoEraseBinding {
			a.activeBindings.Remove(e)
		}
		return
	}
	// r is active but unbound: an explicitly written physical register.
}

// flushForCall frees the caller-saved registers around a bl. The low
// argument registers pass values and are simply clobbered; the rest are
// stored back.
func (a *allocator) flushForCall(x *arm.BrInst) {
	a.isLeafFunc = false
	regCnt := x.ParamCount
	if regCnt > 4 {
		regCnt = 4
	}
	for k := 0; k < regCnt; k++ {
		delete(a.active, arm.Reg(k))
	}
	for k := regCnt; k < 4; k++ {
		a.forceFree(arm.Reg(k), true, true)
	}
	a.forceFree(arm.RegScratch, true, true)
	a.forceFree(arm.RegLR, true, true)
	a.emit(x)
	for _, r := range []arm.Reg{0, 1, 2, 3, arm.RegScratch, arm.RegLR} {
		delete(a.active, r)
	}
}

// flushBlockBoundary stores back every cross-block binding before the
// branch that ends the block, writing back only bindings that were
// written since materialization.
func (a *allocator) flushBlockBoundary() {
	for e := a.activeBindings.Front(); e != nil; {
		next := e.Next()
		b := e.Value.(binding)
		if _, cross := a.spilledCrossBlock[b.virt]; cross {
			_, wrote := a.wroteTo[b.virt]
			a.forceFree(b.phys, false, wrote)
			delete(a.active, b.phys)
			a.activeBindings.Remove(e)
		}
		e = next
	}
	a.wroteTo = map[arm.Reg]struct{}{}
	a.bbReset = false
}

// drainDelayed re-emits the store elided by the last load, if one is
// pending.
func (a *allocator) drainDelayed(i int) {
	if a.delayed == nil {
		return
	}
	d := *a.delayed
	a.delayed = nil
	a.replaceWrite(writeAction{from: d.virt, with: d.phys, kind: writeSpill}, i)
}
