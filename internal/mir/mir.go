// Package mir holds the thin identifiers the backend shares with the
// mid-level IR. The backend never inspects MIR itself; it only keys side
// inputs (coloring results, variable-to-register mappings) by these ids.
package mir

import "fmt"

// VarID identifies a MIR variable.
type VarID uint32

// String implements fmt.Stringer.
func (v VarID) String() string {
	return fmt.Sprintf("$%d", uint32(v))
}
