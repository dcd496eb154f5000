package inplace

import (
	"errors"
	"fmt"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/rtabi"
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

var (
	// ErrConsumed is returned when a deferred value is used after it was
	// materialized, dropped or absorbed.
	ErrConsumed = errors.New("deferred value already consumed")

	// ErrMisaligned is returned when a destination is not aligned for
	// the value's layout. The deferred value is not consumed.
	ErrMisaligned = errors.New("misaligned destination")

	// ErrOutOfBounds is returned when a destination does not fit in
	// memory. The deferred value is not consumed.
	ErrOutOfBounds = errors.New("destination out of bounds")

	// ErrForeignMemory is returned when a deferred value is materialized
	// into a memory other than the one holding its captures.
	ErrForeignMemory = errors.New("destination in foreign memory")

	// ErrAborted is returned when an initializer trapped and the abort
	// handler returned.
	ErrAborted = errors.New("initializer aborted")
)

// State is the life-cycle state of a deferred value.
type State uint32

const (
	Pending      State = iota // not yet consumed
	Materialized              // written into a destination
	Dropped                   // destroyed with its captures
	Absorbed                  // merged into an enclosing deferred value
)

var stateNames = [...]string{
	Pending:      "pending",
	Materialized: "materialized",
	Dropped:      "dropped",
	Absorbed:     "absorbed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

var serial atomix.Uint32

// DeferredValue is a value of type T that has not been constructed yet.
// It holds the values its initializer captured and the ops that write T
// into a destination. It is consumed exactly once: by MaterializeInto, by
// Drop, or by being absorbed into an enclosing deferred value.
type DeferredValue struct {
	id  uint32
	pos syntax.Pos
	fn  string
	typ types.Type
	len int64

	caps  *CaptureSet
	slots map[string]mem.Addr // capture storage
	ops   []Op                // StoreOp, RepeatOp, ZeroOp and ExecOp only
	env   []envBlock          // heap blocks holding the captures

	mc    *Machine
	gate  *kont.Affine[error, action]
	state atomix.Uint32
}

type envBlock struct {
	addr   mem.Addr
	layout types.Layout
}

type actionKind int

const (
	actMaterialize actionKind = iota
	actDrop
	actAbsorb
)

type action struct {
	kind actionKind
	dest mem.Addr
}

// ID returns a number identifying the deferred value in dumps.
func (dv *DeferredValue) ID() uint32 { return dv.id }

// Variant implements Dual.
func (dv *DeferredValue) Variant() Variant { return FormDeferred }

// Type returns the type of the value dv constructs.
func (dv *DeferredValue) Type() types.Type { return dv.typ }

// Len returns the element count of the unsized tail of the value.
func (dv *DeferredValue) Len() int64 { return dv.len }

// Captures returns the captured values, including those of absorbed
// deferred values.
func (dv *DeferredValue) Captures() *CaptureSet { return dv.caps }

// State returns the life-cycle state.
func (dv *DeferredValue) State() State { return State(dv.state.Load()) }

// Drop destroys the captured values without constructing the value.
func (dv *DeferredValue) Drop() error {
	err, ok := dv.gate.TryResume(action{kind: actDrop})
	if !ok {
		return ErrConsumed
	}
	return err
}

func (dv *DeferredValue) resume(a action) error {
	switch a.kind {
	case actMaterialize:
		dv.state.Store(uint32(Materialized))
		dv.mc.stats.materialized.Add(1)
		return dv.run(a.dest)
	case actDrop:
		dv.state.Store(uint32(Dropped))
		dv.mc.stats.dropped.Add(1)
		return dv.release()
	}
	dv.state.Store(uint32(Absorbed))
	dv.mc.stats.absorbed.Add(1)
	return nil
}

// absorb takes over the captures and ops of inner, which must be
// pending, writing its value at offset off.
func (dv *DeferredValue) absorb(inner *DeferredValue, off int64) error {
	if _, ok := inner.gate.TryResume(action{kind: actAbsorb}); !ok {
		return ErrConsumed
	}
	r := make(map[string]string)
	for _, d := range inner.caps.Decls() {
		id := dv.caps.Add(d.ID, d.Type, d.Mode)
		r[d.ID] = id
		dv.slots[id] = inner.slots[d.ID]
	}
	for _, op := range inner.ops {
		dv.ops = append(dv.ops, op.rebase(off, r))
	}
	dv.env = append(dv.env, inner.env...)
	return nil
}

// release drops the owned captures and frees the environment.
func (dv *DeferredValue) release() error {
	var errs []error
	for _, d := range dv.caps.Decls() {
		if d.Mode == Owned && types.NeedsDrop(d.Type) {
			if err := dv.mc.drop(dv.slots[d.ID], d.Type, 0); err != nil {
				errs = append(errs, err)
			}
		}
	}
	dv.free()
	return errors.Join(errs...)
}

func (dv *DeferredValue) free() {
	for i := len(dv.env) - 1; i >= 0; i-- {
		dv.mc.alloc.Free(dv.env[i].addr, dv.env[i].layout)
	}
	dv.env = nil
}

// newDeferred creates a deferred value from an accepted plan: it runs
// the eager steps in order, storing their values in a fresh environment,
// and absorbs the deferred values captured by InitOps. If a step fails,
// everything captured so far is dropped once and the error returned
// joined with those of the drops.
func (m *Machine) newDeferred(p *Plan) (*DeferredValue, error) {
	if p == nil {
		return nil, fmt.Errorf("internal error: no plan for deferral site")
	}
	dv := &DeferredValue{
		id:    serial.Add(1),
		pos:   p.Pos,
		fn:    p.Func,
		typ:   p.Type,
		caps:  NewCaptureSet(),
		slots: make(map[string]mem.Addr),
		mc:    m,
	}
	dv.gate = kont.Once(dv.resume)

	env, layout := p.Env()
	var base mem.Addr
	if layout.Size > 0 {
		a, err := m.alloc.Allocate(layout)
		if err != nil {
			return nil, m.trapf(p.Pos, err, "cannot allocate deferred value environment")
		}
		base = a
		dv.env = append(dv.env, envBlock{addr: a, layout: layout})
	}
	if env != nil {
		for _, d := range env.Decls() {
			dv.caps.Add(d.ID, d.Type, d.Mode)
			dv.slots[d.ID] = base + mem.Addr(d.Offset)
		}
	}

	inner := make(map[string]*DeferredValue)
	var filled []*Decl
	fail := func(err error) (*DeferredValue, error) {
		var errs []error
		for i := len(filled) - 1; i >= 0; i-- {
			d := filled[i]
			var derr error
			if in, ok := inner[d.ID]; ok {
				derr = in.Drop()
			} else if d.Mode == Owned && !types.IsInplace(d.Type) {
				derr = m.drop(dv.slots[d.ID], d.Type, 0)
			}
			if derr != nil {
				errs = append(errs, derr)
			}
		}
		dv.gate.Discard()
		dv.free()
		if len(errs) > 0 {
			return nil, errors.Join(append([]error{err}, errs...)...)
		}
		return nil, err
	}

	for _, st := range p.Steps {
		d := p.Captures.Lookup(st.ID)
		slot := dv.slots[st.ID]
		switch st.Kind {
		case StepValue, StepCount:
			// A site converted by ConvDefer is its own value step.
			conv := m.info.Conversions[st.Expr] &^ ConvDefer
			if err := m.into(st.Expr, slot, d.Type, conv); err != nil {
				return fail(err)
			}
		case StepVar:
			if err := m.moveVar(st.Var, slot); err != nil {
				return fail(err)
			}
		case StepAddr:
			a, err := m.varAddr(st.Var)
			if err == nil {
				err = m.mem.Store(slot, rtabi.SizePtr, uint64(a))
			}
			if err != nil {
				return fail(err)
			}
		case StepInit:
			v, err := m.value(st.Expr, d.Type, 0)
			if err != nil {
				return fail(err)
			}
			inner[st.ID] = v.(*DeferredValue)
		default:
			return fail(fmt.Errorf("internal error: %s step in accepted plan", st.Kind))
		}
		filled = append(filled, d)
	}

	if !types.IsSized(p.Type) {
		n, err := m.count(p.Count, dv.slots, p.Captures, inner)
		if err != nil {
			return fail(err)
		}
		if n < 0 {
			return fail(m.trapf(p.Pos, nil, "negative length %d", n))
		}
		dv.len = n
	}

	ops := make([]Op, 0, len(p.Ops))
	for _, op := range p.Ops {
		if r, ok := op.(*RepeatOp); ok && !r.Count.Static() {
			n, err := m.count(r.Count, dv.slots, p.Captures, nil)
			if err != nil {
				return fail(err)
			}
			if n < 0 {
				return fail(m.trapf(p.Pos, nil, "negative length %d", n))
			}
			op = &RepeatOp{Offset: r.Offset, ID: r.ID, Elem: r.Elem, Count: Count{N: n}}
		}
		ops = append(ops, op)
	}

	// Nothing can fail past this point.
	for _, op := range ops {
		in, ok := op.(*InitOp)
		if !ok {
			dv.ops = append(dv.ops, op)
			continue
		}
		if err := dv.absorb(inner[in.ID], in.Offset); err != nil {
			return nil, fmt.Errorf("internal error: %w", err)
		}
	}

	m.stats.created.Add(1)
	return dv, nil
}

// count evaluates an element count. A count in a capture is read from
// its slot; a count of a captured deferred value is its length.
func (m *Machine) count(c Count, slots map[string]mem.Addr, caps *CaptureSet, inner map[string]*DeferredValue) (int64, error) {
	switch {
	case c.ID != "":
		T := caps.Lookup(c.ID).Type
		w, err := m.load(slots[c.ID], T)
		if err != nil {
			return 0, err
		}
		if types.IsUnsigned(T) {
			if uint64(w) > 1<<62 {
				return -1, nil
			}
			return int64(w), nil
		}
		return w.Int(T), nil
	case c.Init != "":
		return inner[c.Init].len, nil
	}
	return c.N, nil
}
