package codegen

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RenderOptions tune the C++ output.
type RenderOptions struct {
	// Function names the function that receives the instruction body.
	Function string
	// Header is written as a comment block at the top of the file.
	Header string
}

// RenderCPP writes the plan as C++ source: globals, one pointer declaration
// per variable and a setup function holding the instructions in order.
func RenderCPP(w io.Writer, plan *Plan, opts RenderOptions) error {
	if plan == nil {
		return fmt.Errorf("render: plan is nil")
	}
	fn := strings.TrimSpace(opts.Function)
	if fn == "" {
		fn = "setup"
	}
	out := bufio.NewWriter(w)

	header := strings.TrimSpace(opts.Header)
	if plan.BuildID != "" {
		if header != "" {
			header += "\n"
		}
		header += "Build " + plan.BuildID
	}
	if header != "" {
		for _, line := range strings.Split(header, "\n") {
			fmt.Fprintf(out, "// %s\n", line)
		}
		out.WriteString("\n")
	}

	for _, global := range plan.Globals {
		fmt.Fprintln(out, global)
	}
	for _, v := range plan.Variables {
		fmt.Fprintf(out, "%s *%s;\n", v.Class, v.ID)
	}
	if len(plan.Globals) > 0 || len(plan.Variables) > 0 {
		out.WriteString("\n")
	}

	fmt.Fprintf(out, "void %s() {\n", fn)
	for i, inst := range plan.Instructions {
		stmt, err := Statement(inst)
		if err != nil {
			return fmt.Errorf("render instruction %d: %w", i, err)
		}
		fmt.Fprintf(out, "  %s\n", stmt)
	}
	out.WriteString("}\n")
	return out.Flush()
}

// Statement renders a single instruction as a C++ statement.
func Statement(inst Instruction) (string, error) {
	switch inst.Kind {
	case KindNew:
		if inst.Class == "" {
			return "", fmt.Errorf("new %s: class is empty", inst.Target)
		}
		return fmt.Sprintf("%s = new %s();", inst.Target, inst.Class), nil
	case KindRegisterComponent:
		return fmt.Sprintf("App.register_component(%s);", inst.Target), nil
	case KindCall:
		if inst.Method == "" {
			return "", fmt.Errorf("call on %s: method is empty", inst.Target)
		}
		args := make([]string, len(inst.Args))
		for i, arg := range inst.Args {
			args[i] = arg.Literal()
		}
		return fmt.Sprintf("%s->%s(%s);", inst.Target, inst.Method, strings.Join(args, ", ")), nil
	default:
		return "", fmt.Errorf("unknown instruction kind %q", inst.Kind)
	}
}
