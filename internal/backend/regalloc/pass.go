// Package regalloc rewrites a function's instruction stream so that every
// operand names a real hardware register. Long-lived values arrive
// pre-assigned by the graph-coloring pass; short-lived transients are
// placed by a local linear scan, spilling to stack slots when the
// register files run out.
package regalloc

import (
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/cobalt-lang/cobalt/internal/arm"
)

// SideInputs carries the per-function results of the earlier passes, keyed
// by function name. Functions absent from either map are treated as having
// no graph-colored variables: every virtual register becomes a transient.
type SideInputs struct {
	// Colors is the graph-coloring result.
	Colors map[string]ColorMap
	// VRegs is the MIR-variable to virtual-register mapping from lowering.
	VRegs map[string]VRegMap
}

// Run applies register allocation to every function of the module. A
// failing function aborts the pass; the module is then partially rewritten
// and must be discarded by the caller.
func Run(mod *arm.Module, inputs *SideInputs) error {
	if env.Bool("COBALT_REGALLOC_TRACE") {
		tlog.DefaultLogger.SetVerbosity("regalloc")
	}
	dump := env.Bool("COBALT_DUMP_AFTER_PASS")

	for _, f := range mod.Functions {
		tlog.V("regalloc").Printw("allocating registers",
			"func", f.Name, "insts", len(f.Inst), "params", f.ParamCount)
		a := newAllocator(f, inputs.Colors[f.Name], inputs.VRegs[f.Name])
		if err := a.allocRegs(); err != nil {
			return errors.Wrap(err, "func %v", f.Name)
		}
		if dump {
			fmt.Fprintln(os.Stderr, f)
		}
	}
	return nil
}
