package regalloc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobalt-lang/cobalt/internal/arm"
	"github.com/cobalt-lang/cobalt/internal/mir"
)

// testFunc builds a function the way lowering hands it to the allocator:
// the body wrapped in the empty entry push and exit pop plus the frame
// pointer moves.
func testFunc(name string, params int, body ...arm.Inst) *arm.Function {
	insts := []arm.Inst{
		&arm.PushPopInst{Op: arm.OpPush, Regs: arm.NewRegSet(arm.RegFP, arm.RegLR)},
		&arm.Arith2Inst{Op: arm.OpMov, R1: arm.RegFP, R2: arm.RegOperand(arm.RegSP)},
	}
	insts = append(insts, body...)
	insts = append(insts,
		&arm.Arith2Inst{Op: arm.OpMov, R1: arm.RegSP, R2: arm.RegOperand(arm.RegFP)},
		&arm.PushPopInst{Op: arm.OpPop, Regs: arm.NewRegSet(arm.RegFP, arm.RegPC)},
	)
	return &arm.Function{Name: name, ParamCount: params, Inst: insts}
}

func runAlloc(t *testing.T, f *arm.Function, colors ColorMap, vregs VRegMap) {
	t.Helper()
	mod := &arm.Module{Functions: []*arm.Function{f}}
	inputs := &SideInputs{
		Colors: map[string]ColorMap{f.Name: colors},
		VRegs:  map[string]VRegMap{f.Name: vregs},
	}
	require.NoError(t, Run(mod, inputs))
}

func render(f *arm.Function) []string {
	out := make([]string, len(f.Inst))
	for i, in := range f.Inst {
		out[i] = in.String()
	}
	return out
}

func indexOf(stream []string, want string) int {
	for i, s := range stream {
		if s == want {
			return i
		}
	}
	return -1
}

func countPrefix(stream []string, prefix string) int {
	n := 0
	for _, s := range stream {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func movImm(rd arm.Reg, v int32) *arm.Arith2Inst {
	return &arm.Arith2Inst{Op: arm.OpMov, R1: rd, R2: arm.Imm(v)}
}

func movReg(rd, rs arm.Reg) *arm.Arith2Inst {
	return &arm.Arith2Inst{Op: arm.OpMov, R1: rd, R2: arm.RegOperand(rs)}
}

func cmpImm(r arm.Reg, v int32) *arm.Arith2Inst {
	return &arm.Arith2Inst{Op: arm.OpCmp, R1: r, R2: arm.Imm(v)}
}

func cmpReg(r1, r2 arm.Reg) *arm.Arith2Inst {
	return &arm.Arith2Inst{Op: arm.OpCmp, R1: r1, R2: arm.RegOperand(r2)}
}

func addReg(rd, r1, r2 arm.Reg) *arm.Arith3Inst {
	return &arm.Arith3Inst{Op: arm.OpAdd, Rd: rd, R1: r1, R2: arm.RegOperand(r2)}
}

func label(s string) *arm.LabelInst {
	return &arm.LabelInst{Label: s}
}

func branch(target string) *arm.BrInst {
	return &arm.BrInst{Op: arm.OpB, Target: target}
}

func callTo(target string, params int) *arm.BrInst {
	return &arm.BrInst{Op: arm.OpBl, Target: target, ParamCount: params}
}

func vregsOf(pairs ...any) (VRegMap, ColorMap) {
	vregs := VRegMap{}
	colors := ColorMap{}
	for i := 0; i < len(pairs); i += 3 {
		id := mir.VarID(pairs[i].(int))
		vregs[id] = pairs[i+1].(arm.Reg)
		if c := pairs[i+2].(int); c != noColor {
			colors[id] = int32(c)
		}
	}
	return vregs, colors
}

// noColor marks a variable absent from the color map (a transient).
const noColor = -1000
