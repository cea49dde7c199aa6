package arm

import (
	"fmt"
	"strconv"
	"strings"
)

// NamedConst pairs a pool label with its value.
type NamedConst struct {
	Name  string
	Value ConstValue
}

// Function is one assembly function: an ordered instruction vector plus the
// frame metadata the register allocator reads and grows.
type Function struct {
	Name string
	Inst []Inst
	// ParamCount is the declared arity; only whether it exceeds the four
	// register-passed arguments matters to the backend.
	ParamCount int
	// StackSize is the frame size in bytes, grown by spill slots.
	StackSize int
	// LocalConst are function-local literal pools.
	LocalConst []NamedConst
}

// String renders the function in GNU assembler syntax.
func (f *Function) String() string {
	var b strings.Builder
	for _, c := range f.LocalConst {
		fmt.Fprintf(&b, "%s:\n%v\n", c.Name, c.Value)
	}
	fmt.Fprintf(&b, "\t.globl %s\n", f.Name)
	fmt.Fprintf(&b, "%s:\n", f.Name)
	b.WriteString("\t.fnstart\n")
	for _, inst := range f.Inst {
		if _, isLabel := inst.(*LabelInst); !isLabel {
			b.WriteByte('\t')
		}
		b.WriteString(inst.String())
		b.WriteByte('\n')
	}
	b.WriteString("\t.fnend\n")
	return b.String()
}

// Module is a translation unit: its functions and module-level constants.
type Module struct {
	Functions []*Function
	Consts    []NamedConst
}

// String renders the whole module.
func (m *Module) String() string {
	var b strings.Builder
	b.WriteString(".text\n")
	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	b.WriteString(".data\n")
	for _, c := range m.Consts {
		fmt.Fprintf(&b, "%s:\n%v\n", c.Name, c.Value)
	}
	return b.String()
}

// BBLabelPrefix starts every basic-block label.
const BBLabelPrefix = ".bb_"

// LdPCLabelPrefix starts every PC-relative literal label.
const LdPCLabelPrefix = ".ld_pc"

// FormatBBLabel builds the basic-block label for block id within fn,
// matching the form ParseBBLabel accepts.
func FormatBBLabel(fn string, id int) string {
	return fmt.Sprintf("%s%s$%d", BBLabelPrefix, fn, id)
}

// ParseBBLabel extracts the block id from a basic-block label of the form
// ".bb_<name>$<id>". It returns ok=false for labels without the prefix and
// an error for labels that carry the prefix but a malformed id suffix.
func ParseBBLabel(label string) (id int, ok bool, err error) {
	if !strings.HasPrefix(label, BBLabelPrefix) {
		return 0, false, nil
	}
	dollar := strings.LastIndexByte(label, '$')
	if dollar < 0 {
		return 0, false, fmt.Errorf("block label %q has no $id suffix", label)
	}
	id, err = strconv.Atoi(label[dollar+1:])
	if err != nil {
		return 0, false, fmt.Errorf("block label %q has a malformed id: %v", label, err)
	}
	return id, true, nil
}
