package inplace

import (
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// A Plan describes how a deferral site builds its value: the eager steps
// that run when the deferred value is created, the captures those steps
// fill, and the ops that write the value into its destination when it is
// materialized.
type Plan struct {
	Pos      syntax.Pos
	Expr     syntax.Expr // the deferral site
	Func     string      // enclosing function
	Type     types.Type  // the type being constructed
	Captures *CaptureSet
	Steps    []Step // in source order
	Ops      []Op   // in source order
	Count    Count  // element count of the unsized tail, if any

	nested bool // composed into an enclosing plan

	// Environment of the non-deferred captures, set by acceptPlan.
	env       *CaptureSet
	envLayout types.Layout
}

// StepKind identifies an eager step.
type StepKind int

const (
	StepValue  StepKind = iota // evaluate Expr into capture ID
	StepCount                  // evaluate the element count Expr into capture ID
	StepInit                   // evaluate the deferred value Expr; absorbed at creation
	StepNested                 // run the steps of Nested
	StepVar                    // move or copy variable Var into capture ID
	StepAddr                   // store the address of Var in capture ID
)

var stepNames = [...]string{
	StepValue:  "value",
	StepCount:  "count",
	StepInit:   "init",
	StepNested: "nested",
	StepVar:    "var",
	StepAddr:   "addr",
}

func (k StepKind) String() string { return stepNames[k] }

// Step is one eager evaluation performed when a deferred value is created.
type Step struct {
	Kind   StepKind
	ID     string
	Expr   syntax.Expr
	Var    *types.Var
	Nested *Plan
}

// Count is the element count of an unsized value. Exactly one source is
// set, or none for a static count N.
type Count struct {
	N    int64  // static count
	ID   string // capture holding the count
	From *Plan  // count of a nested plan
	Init string // count of the deferred value in capture Init
}

// Static reports whether the count is known at compile time.
func (c Count) Static() bool {
	return c.ID == "" && c.From == nil && c.Init == ""
}

func (c Count) rename(r map[string]string) Count {
	c.ID = renamed(r, c.ID)
	c.Init = renamed(r, c.Init)
	return c
}

// renamed returns the new name of capture id under r.
func renamed(r map[string]string, id string) string {
	if n, ok := r[id]; ok {
		return n
	}
	return id
}

// An Op writes part of the value into the destination at Offset.
type Op interface {
	offset() int64
	rebase(delta int64, r map[string]string) Op
}

// StoreOp stores the captured value ID.
type StoreOp struct {
	Offset int64
	ID     string
	Type   types.Type
}

// RepeatOp stores Count copies of the captured element ID.
type RepeatOp struct {
	Offset int64
	ID     string
	Elem   types.Type
	Count  Count
}

// ZeroOp clears Size bytes for fields the literal omits.
type ZeroOp struct {
	Offset int64
	Size   int64
}

// InitOp materializes the deferred value captured as ID. It only appears
// in plans; deferred values absorb it when they are created.
type InitOp struct {
	Offset int64
	ID     string
	Type   types.Type
	Expr   syntax.Expr
}

// NestedOp materializes a nested plan in place. Composition splices it
// away before a plan is accepted.
type NestedOp struct {
	Offset int64
	Plan   *Plan
}

// ExecOp runs a deferred block and stores its value.
type ExecOp struct {
	Offset int64
	Block  *syntax.BlockExpr
	Type   types.Type
	Binds  []Bind
}

// Bind connects a free variable of a deferred block to its capture.
type Bind struct {
	Var      *types.Var
	ID       string
	Borrowed bool
}

func (op *StoreOp) offset() int64  { return op.Offset }
func (op *RepeatOp) offset() int64 { return op.Offset }
func (op *ZeroOp) offset() int64   { return op.Offset }
func (op *InitOp) offset() int64   { return op.Offset }
func (op *NestedOp) offset() int64 { return op.Offset }
func (op *ExecOp) offset() int64   { return op.Offset }

func (op *StoreOp) rebase(delta int64, r map[string]string) Op {
	return &StoreOp{Offset: op.Offset + delta, ID: renamed(r, op.ID), Type: op.Type}
}

func (op *RepeatOp) rebase(delta int64, r map[string]string) Op {
	return &RepeatOp{Offset: op.Offset + delta, ID: renamed(r, op.ID), Elem: op.Elem, Count: op.Count.rename(r)}
}

func (op *ZeroOp) rebase(delta int64, r map[string]string) Op {
	return &ZeroOp{Offset: op.Offset + delta, Size: op.Size}
}

func (op *InitOp) rebase(delta int64, r map[string]string) Op {
	return &InitOp{Offset: op.Offset + delta, ID: renamed(r, op.ID), Type: op.Type, Expr: op.Expr}
}

func (op *NestedOp) rebase(delta int64, r map[string]string) Op {
	return &NestedOp{Offset: op.Offset + delta, Plan: op.Plan}
}

func (op *ExecOp) rebase(delta int64, r map[string]string) Op {
	binds := make([]Bind, len(op.Binds))
	for i, b := range op.Binds {
		binds[i] = Bind{Var: b.Var, ID: renamed(r, b.ID), Borrowed: b.Borrowed}
	}
	return &ExecOp{Offset: op.Offset + delta, Block: op.Block, Type: op.Type, Binds: binds}
}

// newPlan starts a plan for the deferral site e.
func (c *Checker) newPlan(e syntax.Expr, T types.Type) *Plan {
	p := &Plan{
		Pos:      e.Pos(),
		Expr:     e,
		Type:     T,
		Captures: NewCaptureSet(),
	}
	if c.fn != nil {
		p.Func = c.fn.Name()
	}
	return p
}

// addPlan registers a plan as a candidate for acceptance.
func (c *Checker) addPlan(p *Plan) {
	c.plans = append(c.plans, p)
	c.planOf[p.Expr] = p
}

// value adds an eager value step and returns its capture ID.
func (p *Plan) value(hint string, e syntax.Expr, T types.Type) string {
	id := p.Captures.Add(hint, T, Owned)
	p.Steps = append(p.Steps, Step{Kind: StepValue, ID: id, Expr: e})
	return id
}

// Env returns the captures stored in the environment of a deferred value
// created from p, with their offsets, and the environment layout.
func (p *Plan) Env() (*CaptureSet, types.Layout) {
	return p.env, p.envLayout
}

// Layout returns the layout of the value p constructs when its unsized
// tail holds n elements.
func (p *Plan) Layout(sizes *types.Sizes, n int64) types.Layout {
	return sizes.LayoutUnsized(p.Type, n)
}
