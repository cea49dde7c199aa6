package arm

import (
	"fmt"
	"strings"
)

// Reg is a dense register identifier. Physical registers occupy the low,
// fixed ranges; virtual registers occupy a disjoint high range. The layout
// is:
//
//	[0, 16)          general purpose (r0..r15)
//	[16, 48)         double vector (d0..d31)
//	[48, 64)         quad vector (q0..q15)
//	[64, 1<<31)      virtual general purpose
//	[1<<31, 3<<30)   virtual double vector
//	[3<<30, ^0]      virtual quad vector
type Reg uint32

// RegKind classifies a register id into one of the physical or virtual
// register files.
type RegKind byte

const (
	RegKindGeneralPurpose RegKind = iota
	RegKindDoubleVector
	RegKindQuadVector
	RegKindVirtualGeneralPurpose
	RegKindVirtualDoubleVector
	RegKindVirtualQuadVector
)

const (
	regGPBegin      Reg = 0
	regDoubleBegin  Reg = 16
	regQuadBegin    Reg = 48
	regVGPBegin     Reg = 64
	regVDoubleBegin Reg = 1 << 31
	regVQuadBegin   Reg = 3 << 30
)

// Fixed-role physical registers.
const (
	RegFP      Reg = 11
	RegScratch Reg = 12 // ip; materializes large immediates
	RegSP      Reg = 13
	RegLR      Reg = 14
	RegPC      Reg = 15
)

// GlobRegs are the callee-saved general purpose registers handed out by the
// graph-coloring pass. The slice index matches the color index convention:
// color 0 maps to r4.
var GlobRegs = []Reg{4, 5, 6, 7, 8, 9, 10}

// TempRegs are the caller-saved general purpose registers preferred for
// short-lived transients. They are flushed at call sites.
var TempRegs = []Reg{0, 1, 2, 3}

// KindOf returns the RegKind the given id falls into.
func KindOf(r Reg) RegKind {
	switch {
	case r < regDoubleBegin:
		return RegKindGeneralPurpose
	case r < regQuadBegin:
		return RegKindDoubleVector
	case r < regVGPBegin:
		return RegKindQuadVector
	case r < regVDoubleBegin:
		return RegKindVirtualGeneralPurpose
	case r < regVQuadBegin:
		return RegKindVirtualDoubleVector
	default:
		return RegKindVirtualQuadVector
	}
}

// Num returns the register number within its file, e.g. Num of d3 is 3.
func Num(r Reg) uint32 {
	switch {
	case r < regDoubleBegin:
		return uint32(r)
	case r < regVGPBegin:
		if r < regQuadBegin {
			return uint32(r - regDoubleBegin)
		}
		return uint32(r - regQuadBegin)
	case r < regVDoubleBegin:
		return uint32(r - regVGPBegin)
	case r < regVQuadBegin:
		return uint32(r - regVDoubleBegin)
	default:
		return uint32(r - regVQuadBegin)
	}
}

// MakeReg builds a register id from a kind and a number within that kind.
func MakeReg(k RegKind, num uint32) Reg {
	switch k {
	case RegKindGeneralPurpose:
		return Reg(num) + regGPBegin
	case RegKindDoubleVector:
		return Reg(num) + regDoubleBegin
	case RegKindQuadVector:
		return Reg(num) + regQuadBegin
	case RegKindVirtualGeneralPurpose:
		return Reg(num) + regVGPBegin
	case RegKindVirtualDoubleVector:
		return Reg(num) + regVDoubleBegin
	case RegKindVirtualQuadVector:
		return Reg(num) + regVQuadBegin
	default:
		return Reg(num)
	}
}

// VReg is shorthand for MakeReg(RegKindVirtualGeneralPurpose, num).
func VReg(num uint32) Reg {
	return MakeReg(RegKindVirtualGeneralPurpose, num)
}

// IsVirtual reports whether the id names a virtual register of any file.
// It is total over Reg.
func IsVirtual(r Reg) bool {
	return r >= regVGPBegin
}

// String implements fmt.Stringer, using the assembler aliases for the
// fixed-role registers.
func (r Reg) String() string {
	switch r {
	case RegSP:
		return "sp"
	case RegLR:
		return "lr"
	case RegPC:
		return "pc"
	}
	switch KindOf(r) {
	case RegKindGeneralPurpose:
		return fmt.Sprintf("r%d", Num(r))
	case RegKindDoubleVector:
		return fmt.Sprintf("d%d", Num(r))
	case RegKindQuadVector:
		return fmt.Sprintf("q%d", Num(r))
	case RegKindVirtualGeneralPurpose:
		return fmt.Sprintf("v%d", Num(r))
	case RegKindVirtualDoubleVector:
		return fmt.Sprintf("vd%d", Num(r))
	default:
		return fmt.Sprintf("vq%d", Num(r))
	}
}

// NewRegSet returns a RegSet holding the given registers.
func NewRegSet(regs ...Reg) RegSet {
	var ret RegSet
	for _, r := range regs {
		ret = ret.Add(r)
	}
	return ret
}

// RegSet is a set of physical registers, one bit per id. Ids of 64 and
// above (virtual registers) are silently ignored; only physical registers
// belong in push/pop lists and used-register bookkeeping.
type RegSet uint64

// Has reports whether r is in the set.
func (rs RegSet) Has(r Reg) bool {
	return r < 64 && rs&(1<<r) != 0
}

// Add returns the set with r included.
func (rs RegSet) Add(r Reg) RegSet {
	if r >= 64 {
		return rs
	}
	return rs | 1<<r
}

// Remove returns the set with r excluded.
func (rs RegSet) Remove(r Reg) RegSet {
	if r >= 64 {
		return rs
	}
	return rs &^ (1 << r)
}

// Union returns the union of the two sets.
func (rs RegSet) Union(other RegSet) RegSet {
	return rs | other
}

// Len returns the number of registers in the set.
func (rs RegSet) Len() int {
	n := 0
	for i := Reg(0); i < 64; i++ {
		if rs.Has(i) {
			n++
		}
	}
	return n
}

// Range calls f for each register in the set in ascending id order.
func (rs RegSet) Range(f func(r Reg)) {
	for i := Reg(0); i < 64; i++ {
		if rs.Has(i) {
			f(i)
		}
	}
}

// String implements fmt.Stringer.
func (rs RegSet) String() string {
	var names []string
	rs.Range(func(r Reg) {
		names = append(names, r.String())
	})
	return "{" + strings.Join(names, ", ") + "}"
}
