package inplace

import (
	"github.com/you-not-fish/emplace/internal/types"
)

// compose splices every nested plan into p. Afterwards p has no nested
// steps or ops: its captures are the union of all nested captures,
// renamed where they collide, and its ops write the whole value in one
// pass.
func (c *Checker) compose(p *Plan) {
	caps := NewCaptureSet()
	f := flatten(p, caps)
	p.Captures = caps
	p.Steps = f.steps
	p.Ops = f.ops
	p.Count = f.count
}

type flat struct {
	steps []Step
	ops   []Op
	count Count
}

// flatten renames the captures of q into dst and returns its steps and
// ops with nested plans spliced in. Offsets are relative to q.
func flatten(q *Plan, dst *CaptureSet) flat {
	r := make(map[string]string)
	subs := make(map[*Plan]flat)

	var f flat
	for _, st := range q.Steps {
		if st.Kind == StepNested {
			sub := flatten(st.Nested, dst)
			subs[st.Nested] = sub
			f.steps = append(f.steps, sub.steps...)
			continue
		}
		d := q.Captures.Lookup(st.ID)
		id := dst.Add(st.ID, d.Type, d.Mode)
		r[st.ID] = id
		st.ID = id
		f.steps = append(f.steps, st)
	}

	for _, op := range q.Ops {
		if n, ok := op.(*NestedOp); ok {
			for _, sop := range subs[n.Plan].ops {
				f.ops = append(f.ops, sop.rebase(n.Offset, nil))
			}
			continue
		}
		f.ops = append(f.ops, op.rebase(0, r))
	}

	if q.Count.From != nil {
		f.count = subs[q.Count.From].count
	} else {
		f.count = q.Count.rename(r)
	}
	return f
}

// layoutEnv computes the environment of p: every capture except the
// deferred values that are absorbed when a deferred value is created.
func (c *Checker) layoutEnv(p *Plan) {
	env := NewCaptureSet()
	for _, d := range p.Captures.Decls() {
		if !types.IsInplace(d.Type) {
			env.Add(d.ID, d.Type, d.Mode)
		}
	}
	p.envLayout = env.Layout(c.conf.Sizes)
	for _, d := range env.Decls() {
		p.Captures.Lookup(d.ID).Offset = d.Offset
	}
	p.env = env
}
