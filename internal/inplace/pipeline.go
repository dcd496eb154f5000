package inplace

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/you-not-fish/emplace/internal/types"
)

// Pass is a single stage a plan goes through before it is accepted.
type Pass struct {
	Name string
	Fn   func(c *Checker, p *Plan)
}

// PassConfig controls pass execution behavior.
type PassConfig struct {
	DumpBefore string    // dump the plan before this pass ("*" for all)
	DumpAfter  string    // dump the plan after this pass ("*" for all)
	DumpFunc   string    // restrict dumps to plans in this function
	Verify     bool      // verify plans before and after each pass
	Out        io.Writer // dump destination; os.Stderr if nil
}

// Passes lists the plan passes in the order they run.
var Passes = []Pass{
	{Name: "order", Fn: (*Checker).checkOrder},
	{Name: "compose", Fn: func(c *Checker, p *Plan) {
		c.compose(p)
		c.layoutEnv(p)
	}},
	{Name: "unwind", Fn: func(c *Checker, p *Plan) {
		for _, err := range c.checkUnwindSafety(p, c.conf.Policy) {
			c.errorf(err.Pos, "%s", err.Msg)
		}
	}},
}

// acceptPlan runs the passes on a candidate plan and records it in
// Info.Plans if none of them reports an error. Nested plans are accepted
// as part of the plan they are composed into.
func (c *Checker) acceptPlan(p *Plan) {
	if p.nested {
		return
	}
	before := c.errors
	if err := runPasses(c, p, Passes, c.conf.Passes); err != nil {
		c.errorf(p.Pos, "%v", err)
		return
	}
	if c.errors == before {
		c.info.Plans[p.Expr] = p
	}
}

// runPasses executes the given passes on p in order.
func runPasses(c *Checker, p *Plan, passes []Pass, cfg PassConfig) error {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	for _, pass := range passes {
		if shouldDump(cfg.DumpBefore, pass.Name) && matchFunc(cfg.DumpFunc, p.Func) {
			fmt.Fprintf(out, "--- before %s (%s) ---\n", pass.Name, p.Func)
			FprintPlan(out, p)
			fmt.Fprintln(out)
		}

		if cfg.Verify {
			if err := VerifyPlan(p); err != nil {
				return fmt.Errorf("verify before %s: %w", pass.Name, err)
			}
		}

		pass.Fn(c, p)

		if cfg.Verify {
			if err := VerifyPlan(p); err != nil {
				return fmt.Errorf("verify after %s: %w", pass.Name, err)
			}
		}

		if shouldDump(cfg.DumpAfter, pass.Name) && matchFunc(cfg.DumpFunc, p.Func) {
			fmt.Fprintf(out, "--- after %s (%s) ---\n", pass.Name, p.Func)
			FprintPlan(out, p)
			fmt.Fprintln(out)
		}
	}
	return nil
}

func shouldDump(pattern, name string) bool {
	return pattern == "*" || pattern == name
}

func matchFunc(filter, name string) bool {
	return filter == "" || filter == name
}

// VerifyPlan checks the structural integrity of a plan: every step fills
// a declared capture, every op reads one of the right type and writes
// inside the value, and the element count refers to something that
// exists. It returns an error describing all violations found, or nil.
func VerifyPlan(p *Plan) error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	sizes := types.DefaultSizes

	filled := make(map[string]bool)
	nested := make(map[*Plan]bool)
	for i, st := range p.Steps {
		if st.Kind == StepNested {
			if st.Nested == nil {
				add("step %d: nested step without plan", i)
			} else {
				nested[st.Nested] = true
			}
			continue
		}
		if p.Captures.Lookup(st.ID) == nil {
			add("step %d: capture %s not declared", i, st.ID)
		}
		if filled[st.ID] {
			add("step %d: capture %s filled twice", i, st.ID)
		}
		filled[st.ID] = true
		if (st.Kind == StepVar || st.Kind == StepAddr) != (st.Var != nil) {
			add("step %d: %s step with wrong operand", i, st.Kind)
		}
	}
	for _, d := range p.Captures.Decls() {
		if !filled[d.ID] {
			add("capture %s is never filled", d.ID)
		}
	}

	capture := func(i int, id string, want types.Type) {
		d := p.Captures.Lookup(id)
		if d == nil {
			add("op %d: capture %s not declared", i, id)
			return
		}
		if want != nil && !types.Identical(d.Type, want) {
			add("op %d: capture %s has type %s, want %s", i, id, d.Type, want)
		}
	}

	limit := int64(-1)
	if types.IsSized(p.Type) {
		limit = sizes.Sizeof(p.Type)
	}
	within := func(i int, off, size int64) {
		if off < 0 || limit >= 0 && off+size > limit {
			add("op %d: writes [%d, %d) outside %s of size %d", i, off, off+size, p.Type, limit)
		}
	}

	for i, op := range p.Ops {
		switch op := op.(type) {
		case *StoreOp:
			capture(i, op.ID, op.Type)
			within(i, op.Offset, sizes.Sizeof(op.Type))
		case *RepeatOp:
			capture(i, op.ID, op.Elem)
			n := int64(0)
			if op.Count.Static() {
				n = op.Count.N
			}
			within(i, op.Offset, n*sizes.Sizeof(op.Elem))
		case *ZeroOp:
			within(i, op.Offset, op.Size)
		case *InitOp:
			capture(i, op.ID, types.NewInplace(op.Type))
			within(i, op.Offset, sizes.Sizeof(op.Type))
		case *NestedOp:
			if !nested[op.Plan] {
				add("op %d: nested plan has no nested step", i)
			}
			within(i, op.Offset, sizes.Sizeof(op.Plan.Type))
		case *ExecOp:
			for _, b := range op.Binds {
				capture(i, b.ID, nil)
			}
			within(i, op.Offset, sizes.Sizeof(op.Type))
		default:
			add("op %d: unknown op %T", i, op)
		}
	}

	if !types.IsSized(p.Type) {
		switch cnt := p.Count; {
		case cnt.ID != "":
			if d := p.Captures.Lookup(cnt.ID); d == nil || !types.IsInteger(d.Type) {
				add("count capture %s is not an integer capture", cnt.ID)
			}
		case cnt.Init != "":
			if d := p.Captures.Lookup(cnt.Init); d == nil || !types.IsInplace(d.Type) {
				add("count capture %s is not a deferred value", cnt.Init)
			}
		case cnt.From != nil:
			if !nested[cnt.From] {
				add("count taken from a plan that is not nested")
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("plan verification failed:\n  %s", strings.Join(errs, "\n  "))
}
