package inplace

import (
	"errors"
	"testing"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/types"
)

// sink is the target of a test dual operation: every argument is moved
// into a fresh heap block.
type sink struct {
	objs []Object
}

func newSink() *sink { return &sink{} }

// put is written once against Dual and instantiated for both forms.
func put[D Dual](mc *Machine, s *sink, d D) (Value, error) {
	a, err := mc.Allocator().Allocate(LayoutOfDual(mc.Sizes(), d))
	if err != nil {
		return nil, errors.Join(err, d.Drop())
	}
	if err := d.MaterializeInto(a); err != nil {
		return nil, err
	}
	s.objs = append(s.objs, Object{Addr: a, Type: d.Type(), Len: d.Len()})
	return nil, nil
}

func (s *sink) op(name string, elem types.Type) *DualOp {
	return NewDualOp(name, elem, nil,
		func(mc *Machine, d *Direct) (Value, error) { return put(mc, s, d) },
		func(mc *Machine, dv *DeferredValue) (Value, error) { return put(mc, s, dv) })
}

func TestResolve(t *testing.T) {
	i64 := types.Typ[types.Int64]
	anyOp := newSink().op("any", nil)
	ints := newSink().op("ints", i64)
	directOnly := NewDualOp("direct_only", nil, nil,
		func(mc *Machine, d *Direct) (Value, error) { return nil, nil }, nil)

	tests := []struct {
		op      *DualOp
		arg     types.Type
		form    Variant
		elem    types.Type
		wantErr bool
	}{
		{anyOp, i64, FormDirect, i64, false},
		{anyOp, types.NewInplace(i64), FormDeferred, i64, false},
		{anyOp, types.NewInplace(types.NewSlice(i64)), FormDeferred, types.NewSlice(i64), false},
		{anyOp, types.NewSlice(i64), FormDirect, nil, true},
		{anyOp, types.NewResult(i64), FormDirect, nil, true},
		{ints, types.Typ[types.Int32], FormDirect, nil, true},
		{ints, types.NewInplace(i64), FormDeferred, i64, false},
		{directOnly, types.NewInplace(i64), FormDeferred, nil, true},
	}
	for _, tt := range tests {
		form, elem, err := Resolve(tt.op, tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%s, %s) error = %v, want error %v", tt.op.Name, tt.arg, err, tt.wantErr)
			continue
		}
		if form != tt.form {
			t.Errorf("Resolve(%s, %s) form = %v, want %v", tt.op.Name, tt.arg, form, tt.form)
		}
		if !tt.wantErr && !types.Identical(elem, tt.elem) {
			t.Errorf("Resolve(%s, %s) elem = %s, want %s", tt.op.Name, tt.arg, elem, tt.elem)
		}
	}

	if _, _, err := Resolve(directOnly, types.NewInplace(i64)); !errors.Is(err, ErrNoForm) {
		t.Errorf("missing form: %v", err)
	}
}

func TestDualEquivalence(t *testing.T) {
	s := newSink()
	conf := &Config{Host: newTestHost(&recorder{})}
	conf.Host.DefineDual(s.op("push", nil))
	mc, _ := newTestMachine(t, pairDecls+`
func direct() {
	push(Pair{a: 1, b: 2})
}

func deferred() {
	push(inplace Pair{a: 1, b: 2})
}

func words() {
	push(inplace []u32{9; 5})
}
`, conf)

	forms := map[Variant]int{}
	for _, f := range mc.info.Dispatch {
		forms[f]++
	}
	if forms[FormDirect] != 1 || forms[FormDeferred] != 2 {
		t.Errorf("dispatch forms = %v", forms)
	}

	before := mc.Stats()
	call(t, mc, "direct")
	mid := mc.Stats()
	call(t, mc, "deferred")
	after := mc.Stats()

	if mid.Copies-before.Copies != 1 {
		t.Errorf("direct form made %d copies, want 1", mid.Copies-before.Copies)
	}
	if after.Copies != mid.Copies || after.Temps != mid.Temps {
		t.Errorf("deferred form made %d copies and %d temps", after.Copies-mid.Copies, after.Temps-mid.Temps)
	}
	if len(s.objs) != 2 {
		t.Fatalf("sink holds %d values", len(s.objs))
	}
	if got, want := bytesAt(t, mc, s.objs[1].Addr, 16), bytesAt(t, mc, s.objs[0].Addr, 16); got != want {
		t.Errorf("deferred %x, direct %x", got, want)
	}

	call(t, mc, "words")
	w := s.objs[2]
	if w.Len != 5 || LayoutOfDirect(mc.Sizes(), w).Size != 20 {
		t.Errorf("words object = %+v", w)
	}
	if got := mc.Format(w.Type, w); got != "[9, 9, 9, 9, 9]" {
		t.Errorf("words = %s", got)
	}
	if st := mc.Stats(); st.Live() != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDualDropsUnconsumed(t *testing.T) {
	r := &recorder{}
	conf := &Config{Host: newTestHost(r)}
	conf.Host.DefineDual(NewDualOp("ignore", nil, nil,
		func(mc *Machine, d *Direct) (Value, error) { return nil, nil },
		func(mc *Machine, dv *DeferredValue) (Value, error) { return nil, nil }))
	mc, _ := newTestMachine(t, pairDecls+`
func main() {
	var a = Res{id: 1}
	var b = Res{id: 2}
	ignore(a)
	ignore(inplace Box{r: b, n: 0})
	note(0)
}
`, conf)
	call(t, mc, "main")
	if got := r.String(); got != "drop 1; drop 2; note 0" {
		t.Errorf("log = %q", got)
	}
}

func TestDirectConsumedOnce(t *testing.T) {
	m := mem.New(64, 64)
	mc := &Machine{mem: m, sizes: types.DefaultSizes}
	i64 := types.Typ[types.Int64]
	src := m.HeapBase()
	m.Store(src, 8, 5)
	d := &Direct{obj: Object{Addr: src, Type: i64}, mc: mc}
	if d.Variant() != FormDirect || d.Len() != 0 || !types.Identical(d.Type(), i64) {
		t.Errorf("Direct = %v %d %s", d.Variant(), d.Len(), d.Type())
	}
	if err := d.MaterializeInto(src + 3); !errors.Is(err, ErrMisaligned) {
		t.Errorf("misaligned: %v", err)
	}
	if err := d.MaterializeInto(src + 8); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Load(src+8, 8); v != 5 {
		t.Errorf("moved value = %d", v)
	}
	if err := d.Drop(); !errors.Is(err, ErrConsumed) {
		t.Errorf("drop after move: %v", err)
	}
}
