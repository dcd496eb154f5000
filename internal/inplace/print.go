package inplace

import (
	"fmt"
	"io"
	"strings"

	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// FprintPlan writes a readable form of p to w.
//
// Format:
//
//	plan inplace Outer at f.emp:9:9 in main:
//	  captures: a.v: i32, b: i64
//	  steps:
//	    value a.v = 1
//	    value b = tick()
//	  ops:
//	    store +0 a.v i32
//	    store +8 b i64
func FprintPlan(w io.Writer, p *Plan) {
	fmt.Fprintf(w, "plan inplace %s at %s", p.Type, p.Pos)
	if p.Func != "" {
		fmt.Fprintf(w, " in %s", p.Func)
	}
	fmt.Fprintf(w, ":\n")
	if !types.IsSized(p.Type) {
		fmt.Fprintf(w, "  count: %s\n", p.Count)
	}
	fmt.Fprintf(w, "  captures: %s\n", p.Captures)

	fmt.Fprintf(w, "  steps:\n")
	for _, st := range p.Steps {
		fmt.Fprintf(w, "    %s\n", st)
	}
	fmt.Fprintf(w, "  ops:\n")
	for _, op := range p.Ops {
		fmt.Fprintf(w, "    %s\n", opString(op))
	}
}

func (st Step) String() string {
	switch st.Kind {
	case StepNested:
		return fmt.Sprintf("nested plan at %s", st.Nested.Pos)
	case StepVar:
		return fmt.Sprintf("var %s = %s", st.ID, st.Var.Name())
	case StepAddr:
		return fmt.Sprintf("addr %s = &%s", st.ID, st.Var.Name())
	}
	return fmt.Sprintf("%s %s = %s", st.Kind, st.ID, syntax.ExprString(st.Expr))
}

func (c Count) String() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Init != "":
		return "len(" + c.Init + ")"
	case c.From != nil:
		return fmt.Sprintf("count of plan at %s", c.From.Pos)
	}
	return fmt.Sprint(c.N)
}

func opString(op Op) string {
	switch op := op.(type) {
	case *StoreOp:
		return fmt.Sprintf("store +%d %s %s", op.Offset, op.ID, op.Type)
	case *RepeatOp:
		return fmt.Sprintf("repeat +%d %s %s x %s", op.Offset, op.ID, op.Elem, op.Count)
	case *ZeroOp:
		return fmt.Sprintf("zero +%d %d", op.Offset, op.Size)
	case *InitOp:
		return fmt.Sprintf("init +%d %s %s", op.Offset, op.ID, op.Type)
	case *NestedOp:
		return fmt.Sprintf("nested +%d plan at %s", op.Offset, op.Plan.Pos)
	case *ExecOp:
		binds := make([]string, len(op.Binds))
		for i, b := range op.Binds {
			if b.Borrowed {
				binds[i] = "&" + b.ID
			} else {
				binds[i] = b.ID
			}
		}
		return fmt.Sprintf("exec +%d %s block at %s [%s]", op.Offset, op.Type, op.Block.Pos(), strings.Join(binds, ", "))
	}
	return fmt.Sprintf("%T", op)
}
