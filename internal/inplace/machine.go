package inplace

import (
	"errors"
	"fmt"
	"io"
	"os"

	"code.hybscloud.com/atomix"
	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// maxDepth bounds source call nesting.
const maxDepth = 4096

// Machine evaluates a checked program against a memory. It is the
// reference semantics of eager evaluation, deferral and materialization.
type Machine struct {
	prog  *Program
	conf  *Config
	info  *Info
	sizes *types.Sizes
	mem   *mem.Memory
	alloc mem.Allocator

	frame *frame
	depth int
	stats machineStats

	// Out receives the output of host functions that print.
	Out io.Writer
}

type machineStats struct {
	created      atomix.Uint32
	materialized atomix.Uint32
	dropped      atomix.Uint32
	absorbed     atomix.Uint32
}

// Stats counts memory traffic and deferred value life cycles.
type Stats struct {
	mem.Stats
	Created      uint32
	Materialized uint32
	Dropped      uint32
	Absorbed     uint32
}

// Live returns the number of deferred values created and not consumed.
func (s Stats) Live() uint32 {
	return s.Created - s.Materialized - s.Dropped - s.Absorbed
}

func newMachine(p *Program, m *mem.Memory, alloc mem.Allocator) *Machine {
	return &Machine{
		prog:  p,
		conf:  p.conf,
		info:  p.Info,
		sizes: p.conf.Sizes,
		mem:   m,
		alloc: alloc,
		Out:   os.Stdout,
	}
}

// Memory returns the memory the machine runs against.
func (m *Machine) Memory() *mem.Memory { return m.mem }

// Allocator returns the allocator used for environments and results.
func (m *Machine) Allocator() mem.Allocator { return m.alloc }

// Sizes returns the layout rules of the program.
func (m *Machine) Sizes() *types.Sizes { return m.sizes }

// Stats returns a snapshot of the counters.
func (m *Machine) Stats() Stats {
	return Stats{
		Stats:        m.mem.Stats(),
		Created:      m.stats.created.Load(),
		Materialized: m.stats.materialized.Load(),
		Dropped:      m.stats.dropped.Load(),
		Absorbed:     m.stats.absorbed.Load(),
	}
}

// Trap is a run-time failure of eager code: overflow, a failed bounds
// check, panic, or a failing host call. Frames it unwinds through drop
// the values they own.
type Trap struct {
	Pos syntax.Pos
	Msg string
	Err error // underlying cause, if any
}

func (t *Trap) Error() string {
	if t.Err != nil {
		return fmt.Sprintf("%s: %s: %v", t.Pos, t.Msg, t.Err)
	}
	return fmt.Sprintf("%s: %s", t.Pos, t.Msg)
}

func (t *Trap) Unwrap() error { return t.Err }

// trapf returns a trap. Under the Abort policy the abort handler runs
// first.
func (m *Machine) trapf(pos syntax.Pos, err error, format string, args ...any) error {
	t := &Trap{Pos: pos, Msg: fmt.Sprintf(format, args...), Err: err}
	if m.conf.Policy == Abort {
		return m.abort(t)
	}
	return t
}

// propagation carries the failure of e? to the enclosing function.
type propagation struct {
	err error
}

func (p *propagation) Error() string { return "unhandled ? propagation: " + p.err.Error() }

// ----------------------------------------------------------------------------
// Frames

// frame holds the locals of a running function or deferred block.
// Memory-typed locals live in slots; deferred values and results in vals.
type frame struct {
	name   string
	slots  map[*types.Var]mem.Addr
	vals   map[*types.Var]Value
	owned  []*types.Var // dropped in reverse order at exit unless moved
	moved  map[*types.Var]bool
	mark   mem.Mark
	ret    Value
	result types.Type
	dest   mem.Addr // destination of an aggregate result
}

func (m *Machine) newFrame(name string) *frame {
	return &frame{
		name:  name,
		slots: make(map[*types.Var]mem.Addr),
		vals:  make(map[*types.Var]Value),
		moved: make(map[*types.Var]bool),
		mark:  m.mem.SP(),
	}
}

// exitFrame drops what the frame still owns and pops its stack.
func (m *Machine) exitFrame(fr *frame) error {
	var errs []error
	for i := len(fr.owned) - 1; i >= 0; i-- {
		v := fr.owned[i]
		if fr.moved[v] {
			continue
		}
		fr.moved[v] = true
		if err := m.dropVar(fr, v); err != nil {
			errs = append(errs, err)
		}
	}
	m.mem.Release(fr.mark)
	return errors.Join(errs...)
}

func (m *Machine) dropVar(fr *frame, v *types.Var) error {
	if isHandle(v.Type()) {
		return m.dropHandle(fr.vals[v])
	}
	return m.drop(fr.slots[v], v.Type(), 0)
}

// declare gives v a slot in the current frame.
func (m *Machine) declare(v *types.Var) (mem.Addr, error) {
	if isHandle(v.Type()) {
		return mem.Null, nil
	}
	a, err := m.mem.Push(m.sizes.Layout(v.Type()))
	if err != nil {
		return mem.Null, m.trapf(v.Pos(), err, "cannot allocate %s", v.Name())
	}
	m.frame.slots[v] = a
	return a, nil
}

func (m *Machine) varAddr(v *types.Var) (mem.Addr, error) {
	a, ok := m.frame.slots[v]
	if !ok {
		return mem.Null, fmt.Errorf("internal error: no storage for %s", v.Name())
	}
	return a, nil
}

// moveVar copies the bytes of v to dest. A non-copyable v is moved.
func (m *Machine) moveVar(v *types.Var, dest mem.Addr) error {
	src, err := m.varAddr(v)
	if err != nil {
		return err
	}
	b, err := m.mem.Bytes(src, m.sizes.Sizeof(v.Type()))
	if err != nil {
		return err
	}
	if err := m.mem.Write(dest, b); err != nil {
		return err
	}
	if !types.IsCopy(v.Type()) {
		m.frame.moved[v] = true
	}
	return nil
}

// ----------------------------------------------------------------------------
// Memory access

func (m *Machine) load(a mem.Addr, T types.Type) (Word, error) {
	w, err := m.mem.Load(a, m.sizes.Sizeof(T))
	return Word(w), err
}

func (m *Machine) store(a mem.Addr, T types.Type, w Word) error {
	return m.mem.Store(a, m.sizes.Sizeof(T), uint64(w))
}

// ----------------------------------------------------------------------------
// Drops

// drop destroys the value of type T at a: the drop hook of a named type
// runs first, then the fields or elements are dropped in order.
func (m *Machine) drop(a mem.Addr, T types.Type, n int64) error {
	if T == nil || !types.NeedsDrop(T) {
		return nil
	}
	var errs []error
	if nt, ok := T.(*types.Named); ok && nt.HasDrop() {
		if err := m.runDropHook(nt, a); err != nil {
			errs = append(errs, err)
		}
	}
	switch u := T.Underlying().(type) {
	case *types.Struct:
		m.sizes.ComputeLayout(u)
		for i, f := range u.Fields() {
			if err := m.drop(a+mem.Addr(u.Offset(i)), f.Type(), n); err != nil {
				errs = append(errs, err)
			}
		}
	case *types.Array:
		errs = append(errs, m.dropElems(a, u.Elem(), u.Len()))
	case *types.Slice:
		errs = append(errs, m.dropElems(a, u.Elem(), n))
	}
	return errors.Join(errs...)
}

func (m *Machine) dropElems(a mem.Addr, elem types.Type, n int64) error {
	size := m.sizes.Sizeof(elem)
	var errs []error
	for i := int64(0); i < n; i++ {
		errs = append(errs, m.drop(a+mem.Addr(i*size), elem, 0))
	}
	return errors.Join(errs...)
}

func (m *Machine) dropObject(obj Object) error {
	return m.drop(obj.Addr, obj.Type, obj.Len)
}

// DropObject destroys the value at obj. Containers holding materialized
// values call it when they release them.
func (m *Machine) DropObject(obj Object) error {
	return m.dropObject(obj)
}

// runDropHook calls the drop hook of T on the value at a.
func (m *Machine) runDropHook(T *types.Named, a mem.Addr) error {
	if hook, ok := m.host().Drops[T.Obj().Name()]; ok {
		return hook(m, Object{Addr: a, Type: T})
	}
	fn := T.LookupMethod("drop")
	if fn == nil {
		return nil
	}
	decl := m.prog.funcs[fn]
	recv := fn.Signature().Recv()

	saved := m.frame
	fr := m.newFrame(T.Obj().Name() + ".drop")
	p, err := m.mem.Push(m.sizes.Layout(recv.Type()))
	if err == nil {
		fr.slots[recv] = p
		err = m.mem.Store(p, m.sizes.Sizeof(recv.Type()), uint64(a))
	}
	if err == nil {
		m.frame = fr
		err = m.stmts(decl.Body.Stmts)
		m.frame = saved
	}
	return errors.Join(err, m.exitFrame(fr))
}

// dropHandle drops a deferred value or the payload of a result.
func (m *Machine) dropHandle(v Value) error {
	switch v := v.(type) {
	case *DeferredValue:
		if v.State() == Pending {
			return v.Drop()
		}
	case Result:
		if r, ok := v.GetRight(); ok {
			return m.dropHandle(r)
		}
	case Object:
		return m.dropObject(v)
	}
	return nil
}

func (m *Machine) host() *Host {
	if m.conf.Host == nil {
		return emptyHost
	}
	return m.conf.Host
}

// ----------------------------------------------------------------------------
// Entry point

// Call runs the source function name with the given arguments: a Word
// for a basic or pointer parameter, an Object for an aggregate (moved
// in), a *DeferredValue for an inplace parameter. An aggregate result is
// placed in a block from the machine's allocator.
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	fn := m.prog.Func(name)
	if fn == nil || fn.Signature() == nil {
		return nil, fmt.Errorf("no function %s", name)
	}
	sig := fn.Signature()
	if len(args) != sig.NumParams() {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", name, sig.NumParams(), len(args))
	}

	var dest mem.Addr
	var result Value
	if T := sig.Result(); T != nil && !isScalar(T) && !isHandle(T) {
		l := m.sizes.Layout(T)
		a, err := m.alloc.Allocate(l)
		if err != nil {
			return nil, err
		}
		dest = a
		result = Object{Addr: a, Type: T}
	}

	params := func(fr *frame) error {
		for i, p := range sig.Params() {
			if err := m.bindArg(fr, p, args[i]); err != nil {
				return err
			}
		}
		return nil
	}
	v, err := m.invoke(fn, params, dest)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return v, nil
}

func (m *Machine) bindArg(fr *frame, p *types.Var, arg Value) error {
	T := p.Type()
	if isHandle(T) {
		fr.vals[p] = arg
		fr.owned = append(fr.owned, p)
		return nil
	}
	slot, err := m.mem.Push(m.sizes.Layout(T))
	if err != nil {
		return err
	}
	fr.slots[p] = slot
	switch a := arg.(type) {
	case Word:
		err = m.store(slot, T, a)
	case Object:
		err = m.mem.Copy(slot, a.Addr, m.sizes.Sizeof(T))
	default:
		err = fmt.Errorf("cannot pass %T as %s", arg, T)
	}
	if err == nil {
		fr.owned = append(fr.owned, p)
	}
	return err
}
