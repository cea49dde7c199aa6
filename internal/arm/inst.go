package arm

import (
	"fmt"
	"strings"
)

// OpCode enumerates the instruction mnemonics the backend emits.
type OpCode byte

const (
	OpNop OpCode = iota
	OpB
	OpBl
	OpBx
	OpCbz
	OpCbnz
	OpMov
	OpMovT
	OpMvn
	OpAdd
	OpSub
	OpRsb
	OpMul
	OpSMMul
	OpMla
	OpSMMla
	OpSDiv
	OpLsl
	OpLsr
	OpAsr
	OpAnd
	OpOrr
	OpEor
	OpBic
	OpCmp
	OpCmn
	OpLdR
	OpLdM
	OpStR
	OpStM
	OpPush
	OpPop
)

var opNames = map[OpCode]string{
	OpNop: "nop", OpB: "b", OpBl: "bl", OpBx: "bx", OpCbz: "cbz", OpCbnz: "cbnz",
	OpMov: "mov", OpMovT: "movt", OpMvn: "mvn",
	OpAdd: "add", OpSub: "sub", OpRsb: "rsb",
	OpMul: "mul", OpSMMul: "smmul", OpMla: "mla", OpSMMla: "smmla", OpSDiv: "sdiv",
	OpLsl: "lsl", OpLsr: "lsr", OpAsr: "asr",
	OpAnd: "and", OpOrr: "orr", OpEor: "eor", OpBic: "bic",
	OpCmp: "cmp", OpCmn: "cmn",
	OpLdR: "ldr", OpLdM: "ldm", OpStR: "str", OpStM: "stm",
	OpPush: "push", OpPop: "pop",
}

// String implements fmt.Stringer.
func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("?%d", byte(op))
}

// Inst is the sealed instruction sum type. Every concrete variant lives in
// this package; passes dispatch with exhaustive type switches.
type Inst interface {
	fmt.Stringer
	// Condition returns the condition code the instruction executes under.
	Condition() ConditionCode
	isInst()
}

// PureInst is an operand-less instruction such as nop.
type PureInst struct {
	Op   OpCode
	Cond ConditionCode
}

func (i *PureInst) Condition() ConditionCode { return i.Cond }
func (*PureInst) isInst()                    {}

func (i *PureInst) String() string {
	return i.Op.String() + i.Cond.String()
}

// Arith2Inst is a two-operand instruction: mov/movt/mvn write R1, the
// comparison forms read it.
type Arith2Inst struct {
	Op   OpCode
	R1   Reg
	R2   Operand2
	Cond ConditionCode
}

func (i *Arith2Inst) Condition() ConditionCode { return i.Cond }
func (*Arith2Inst) isInst()                    {}

func (i *Arith2Inst) String() string {
	if i.Op == OpBx {
		return fmt.Sprintf("%v%v %v", i.Op, i.Cond, i.R1)
	}
	return fmt.Sprintf("%v%v %v, %v", i.Op, i.Cond, i.R1, i.R2)
}

// Arith3Inst is the common three-operand form: Rd = R1 op R2.
type Arith3Inst struct {
	Op   OpCode
	Rd   Reg
	R1   Reg
	R2   Operand2
	Cond ConditionCode
}

func (i *Arith3Inst) Condition() ConditionCode { return i.Cond }
func (*Arith3Inst) isInst()                    {}

func (i *Arith3Inst) String() string {
	return fmt.Sprintf("%v%v %v, %v, %v", i.Op, i.Cond, i.Rd, i.R1, i.R2)
}

// Arith4Inst is the multiply-accumulate form: Rd = R1 op R2 with R3.
type Arith4Inst struct {
	Op   OpCode
	Rd   Reg
	R1   Reg
	R2   Reg
	R3   Reg
	Cond ConditionCode
}

func (i *Arith4Inst) Condition() ConditionCode { return i.Cond }
func (*Arith4Inst) isInst()                    {}

func (i *Arith4Inst) String() string {
	return fmt.Sprintf("%v%v %v, %v, %v, %v", i.Op, i.Cond, i.Rd, i.R1, i.R2, i.R3)
}

// BrInst is a branch or branch-and-link to a label. ParamCount is the
// argument arity of the callee for bl, set by lowering.
type BrInst struct {
	Op         OpCode
	Target     string
	ParamCount int
	Cond       ConditionCode
}

func (i *BrInst) Condition() ConditionCode { return i.Cond }
func (*BrInst) isInst()                    {}

func (i *BrInst) String() string {
	return fmt.Sprintf("%v%v %s", i.Op, i.Cond, i.Target)
}

// MemRef is the memory argument of a load or store: either a literal label
// reference or a MemoryOperand.
type MemRef struct {
	Label string
	Mem   MemoryOperand
}

// MemRefOf wraps a MemoryOperand.
func MemRefOf(m MemoryOperand) MemRef {
	return MemRef{Mem: m}
}

// IsLabel reports whether the reference names a literal label.
func (m MemRef) IsLabel() bool {
	return m.Label != ""
}

// String implements fmt.Stringer.
func (m MemRef) String() string {
	if m.IsLabel() {
		return m.Label
	}
	return m.Mem.String()
}

// LoadStoreInst is a single-register ldr or str.
type LoadStoreInst struct {
	Op   OpCode
	Rd   Reg
	Mem  MemRef
	Cond ConditionCode
}

func (i *LoadStoreInst) Condition() ConditionCode { return i.Cond }
func (*LoadStoreInst) isInst()                    {}

func (i *LoadStoreInst) String() string {
	return fmt.Sprintf("%v%v %v, %v", i.Op, i.Cond, i.Rd, i.Mem)
}

// MultLoadStoreInst is ldm/stm over a register list.
type MultLoadStoreInst struct {
	Op   OpCode
	Rn   Reg
	Regs []Reg
	Cond ConditionCode
}

func (i *MultLoadStoreInst) Condition() ConditionCode { return i.Cond }
func (*MultLoadStoreInst) isInst()                    {}

func (i *MultLoadStoreInst) String() string {
	names := make([]string, len(i.Regs))
	for k, r := range i.Regs {
		names[k] = r.String()
	}
	return fmt.Sprintf("%v%v %v, {%s}", i.Op, i.Cond, i.Rn, strings.Join(names, ", "))
}

// PushPopInst is push/pop over a register set.
type PushPopInst struct {
	Op   OpCode
	Regs RegSet
	Cond ConditionCode
}

func (i *PushPopInst) Condition() ConditionCode { return i.Cond }
func (*PushPopInst) isInst()                    {}

func (i *PushPopInst) String() string {
	var names []string
	i.Regs.Range(func(r Reg) {
		names = append(names, r.String())
	})
	return fmt.Sprintf("%v%v {%s}", i.Op, i.Cond, strings.Join(names, ", "))
}

// LabelInst is a pseudo-instruction marking a label definition.
type LabelInst struct {
	Label string
}

func (i *LabelInst) Condition() ConditionCode { return CondAlways }
func (*LabelInst) isInst()                    {}

func (i *LabelInst) String() string {
	return i.Label + ":"
}

// CtrlInst is a control pseudo-instruction. AsmOption renders as an
// assembler directive; otherwise it is an internal marker such as
// offset_stack and renders as a comment.
type CtrlInst struct {
	Key       string
	Val       any
	AsmOption bool
}

func (i *CtrlInst) Condition() ConditionCode { return CondAlways }
func (*CtrlInst) isInst()                    {}

func (i *CtrlInst) String() string {
	if i.AsmOption {
		return fmt.Sprintf(".%s %v", i.Key, i.Val)
	}
	return fmt.Sprintf("@ %s(value=%v)", i.Key, i.Val)
}

// OffsetStackKey is the CtrlInst key carrying a stack-offset delta used to
// model transient stack allocations between instructions.
const OffsetStackKey = "offset_stack"

// NewOffsetStack returns the control pseudo-instruction adjusting the
// dynamic stack offset by delta bytes.
func NewOffsetStack(delta int) *CtrlInst {
	return &CtrlInst{Key: OffsetStackKey, Val: delta}
}
