package inplace

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/types"
)

const pairDecls = `
package main

type Pair struct {
	a i64
	b i64
}

type A struct {
	v i32
}

type Outer struct {
	a A
	b i64
}

type Res struct {
	id i64
}

type Box struct {
	r Res
	n i64
}
`

// newTestMachine checks src and returns a machine over a fresh memory.
// If conf has no host, the test host recording into the returned
// recorder is installed.
func newTestMachine(t *testing.T, src string, conf *Config) (*Machine, *recorder) {
	t.Helper()
	r := &recorder{}
	if conf == nil {
		conf = &Config{}
	}
	if conf.Host == nil {
		conf.Host = newTestHost(r)
	}
	prog, errs := parseAndCheck(src, conf)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors:\n%s", strings.Join(errs, "\n"))
	}
	mc := prog.NewMachine(mem.New(1<<12, 1<<14), nil)
	mc.Out = io.Discard
	return mc, r
}

func call(t *testing.T, mc *Machine, name string, args ...Value) Value {
	t.Helper()
	v, err := mc.Call(name, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func deferredResult(t *testing.T, v Value) *DeferredValue {
	t.Helper()
	dv, ok := v.(*DeferredValue)
	if !ok {
		t.Fatalf("result is %T, want *DeferredValue", v)
	}
	return dv
}

// alloc returns a fresh heap block for a value of type T with n tail
// elements.
func alloc(t *testing.T, mc *Machine, T types.Type, n int64) mem.Addr {
	t.Helper()
	a, err := mc.Allocator().Allocate(mc.Sizes().LayoutUnsized(T, n))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func bytesAt(t *testing.T, mc *Machine, a mem.Addr, n int64) string {
	t.Helper()
	b, err := mc.Memory().Bytes(a, n)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func load(t *testing.T, mc *Machine, a mem.Addr, size int64) uint64 {
	t.Helper()
	v, err := mc.Memory().Load(a, size)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestMaterializeMatchesDirect(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func direct(x i64) Pair {
	return Pair{a: x, b: 4}
}

func deferred(x i64) inplace Pair {
	return Pair{a: x, b: 4}
}
`, nil)
	i64 := types.Typ[types.Int64]
	obj := call(t, mc, "direct", IntWord(i64, -3)).(Object)
	dv := deferredResult(t, call(t, mc, "deferred", IntWord(i64, -3)))

	dest := alloc(t, mc, dv.Type(), 0)
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	size := mc.Sizes().Sizeof(obj.Type)
	if got, want := bytesAt(t, mc, dest, size), bytesAt(t, mc, obj.Addr, size); got != want {
		t.Errorf("materialized bytes %x, direct %x", got, want)
	}
	if got := mc.Format(dv.Type(), Object{Addr: dest, Type: dv.Type()}); got != "Pair{a: -3, b: 4}" {
		t.Errorf("Format = %q", got)
	}
	if dv.State() != Materialized {
		t.Errorf("state = %v", dv.State())
	}
}

func TestNestedMaterializesInOnePass(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func nested() inplace Outer {
	return Outer{a: inplace A{v: 1}, b: 2}
}

func plain() Outer {
	return Outer{a: A{v: 1}, b: 2}
}
`, nil)
	before := mc.Stats()
	dv := deferredResult(t, call(t, mc, "nested"))
	dest := alloc(t, mc, dv.Type(), 0)
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	after := mc.Stats()
	if after.Temps != before.Temps || after.Copies != before.Copies {
		t.Errorf("temps %d copies %d, want none", after.Temps-before.Temps, after.Copies-before.Copies)
	}
	if after.Created-before.Created != 1 {
		t.Errorf("created %d deferred values, want 1", after.Created-before.Created)
	}
	if load(t, mc, dest, 4) != 1 || load(t, mc, dest+8, 8) != 2 {
		t.Errorf("Outer = %s", mc.Format(dv.Type(), Object{Addr: dest, Type: dv.Type()}))
	}

	obj := call(t, mc, "plain").(Object)
	if got, want := bytesAt(t, mc, dest, 16), bytesAt(t, mc, obj.Addr, 16); got != want {
		t.Errorf("composed %x, direct %x", got, want)
	}
}

func TestAbsorbRuntimeInner(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func inner(v i32) inplace A {
	return A{v: v}
}

func outer(v i32) inplace Outer {
	return Outer{a: inner(v), b: 5}
}
`, nil)
	dv := deferredResult(t, call(t, mc, "outer", IntWord(types.Typ[types.Int32], 9)))
	st := mc.Stats()
	if st.Created != 2 || st.Absorbed != 1 || st.Live() != 1 {
		t.Fatalf("stats after creation: %+v", st)
	}
	dest := alloc(t, mc, dv.Type(), 0)
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	if got := mc.Format(dv.Type(), Object{Addr: dest, Type: dv.Type()}); got != "Outer{a: A{v: 9}, b: 5}" {
		t.Errorf("Format = %q", got)
	}
	if mc.Stats().Live() != 0 {
		t.Errorf("live deferred values: %+v", mc.Stats())
	}
}

func TestExactlyOnce(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func make() inplace Pair {
	return Pair{a: 1, b: 2}
}
`, nil)
	dv := deferredResult(t, call(t, mc, "make"))
	dest := alloc(t, mc, dv.Type(), 0)
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	if err := dv.MaterializeInto(dest); !errors.Is(err, ErrConsumed) {
		t.Errorf("second materialize: %v", err)
	}
	if err := dv.Drop(); !errors.Is(err, ErrConsumed) {
		t.Errorf("drop after materialize: %v", err)
	}
	if dv.State() != Materialized {
		t.Errorf("state = %v after repeated consumption", dv.State())
	}

	dv = deferredResult(t, call(t, mc, "make"))
	if err := dv.Drop(); err != nil {
		t.Fatal(err)
	}
	if dv.State() != Dropped {
		t.Errorf("state = %v", dv.State())
	}
	if err := dv.MaterializeInto(dest); !errors.Is(err, ErrConsumed) {
		t.Errorf("materialize after drop: %v", err)
	}
	if err := dv.Drop(); !errors.Is(err, ErrConsumed) {
		t.Errorf("second drop: %v", err)
	}

	outer := deferredResult(t, call(t, mc, "make"))
	inner := deferredResult(t, call(t, mc, "make"))
	if err := outer.absorb(inner, 0); err != nil {
		t.Fatal(err)
	}
	if err := outer.absorb(inner, 0); !errors.Is(err, ErrConsumed) {
		t.Errorf("second absorb: %v", err)
	}
	if inner.State() != Absorbed {
		t.Errorf("absorbed state = %v", inner.State())
	}
	if err := outer.Drop(); err != nil {
		t.Fatal(err)
	}

	st := mc.Stats()
	if st.Created != 4 || st.Materialized != 1 || st.Dropped != 2 || st.Absorbed != 1 || st.Live() != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestBadDestinationDoesNotConsume(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func make() inplace Pair {
	return Pair{a: 1, b: 2}
}
`, nil)
	dv := deferredResult(t, call(t, mc, "make"))
	dest := alloc(t, mc, dv.Type(), 0)

	if err := dv.MaterializeInto(dest + 4); !errors.Is(err, ErrMisaligned) {
		t.Errorf("misaligned: %v", err)
	}
	if err := dv.MaterializeInto(mem.Addr(mc.Memory().Size())); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("out of bounds: %v", err)
	}
	other := mem.New(64, 64)
	if err := Materialize(dv, other, other.HeapBase()); !errors.Is(err, ErrForeignMemory) {
		t.Errorf("foreign memory: %v", err)
	}
	if dv.State() != Pending {
		t.Fatalf("state = %v after rejected destinations", dv.State())
	}
	if err := Materialize(dv, mc.Memory(), dest); err != nil {
		t.Fatal(err)
	}
	if load(t, mc, dest+8, 8) != 2 {
		t.Error("value not written")
	}
}

func TestLayoutSoundness(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
type Buf struct {
	n i64
	data []u8
}

func words(n i64) inplace []u32 {
	return []u32{7; n}
}

func buf(n i64) inplace Buf {
	return Buf{n: n, data: []u8{1; n}}
}

func pair(x i64, y i64) inplace Pair {
	return inplace {
		Pair{a: y, b: x}
	}
}
`, nil)
	i64 := types.Typ[types.Int64]

	dv := deferredResult(t, call(t, mc, "words", IntWord(i64, 5)))
	if dv.Len() != 5 {
		t.Fatalf("Len = %d", dv.Len())
	}
	if l := LayoutOfDeferred(dv); l != (types.Layout{Size: 20, Align: 4}) {
		t.Errorf("words layout = %v", l)
	}
	dest := alloc(t, mc, dv.Type(), dv.Len())
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	for i := range int64(5) {
		if v := load(t, mc, dest+mem.Addr(4*i), 4); v != 7 {
			t.Errorf("words[%d] = %d", i, v)
		}
	}

	dv = deferredResult(t, call(t, mc, "buf", IntWord(i64, 3)))
	if l := LayoutOfDeferred(dv); l != (types.Layout{Size: 16, Align: 8}) {
		t.Errorf("buf layout = %v", l)
	}
	dest = alloc(t, mc, dv.Type(), dv.Len())
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	if got := bytesAt(t, mc, dest, 11); got != "\x03\x00\x00\x00\x00\x00\x00\x00\x01\x01\x01" {
		t.Errorf("buf bytes %x", got)
	}

	dv = deferredResult(t, call(t, mc, "pair", IntWord(i64, 1), IntWord(i64, 2)))
	if l := LayoutOfDeferred(dv); l != mc.Sizes().Layout(dv.Type()) {
		t.Errorf("pair layout = %v", l)
	}
	if env := EnvLayout(dv); env.Size < 16 {
		t.Errorf("env layout = %v, want room for two captures", env)
	}
	if err := dv.Drop(); err != nil {
		t.Fatal(err)
	}
}

func TestNegativeLength(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func words(n i64) inplace []u32 {
	return []u32{7; n}
}
`, nil)
	_, err := mc.Call("words", IntWord(types.Typ[types.Int64], -1))
	var trap *Trap
	if !errors.As(err, &trap) || !strings.Contains(trap.Msg, "negative length -1") {
		t.Fatalf("err = %v", err)
	}
	if st := mc.Stats(); st.Created != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEvaluationOrder(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "captures run at creation",
			body: `
	var d = inplace Pair{a: tick(), b: tick()}
	note(100)
	var p Pair = d
	note(p.a)
	note(p.b)`,
			want: "tick 1; tick 2; note 100; note 1; note 2",
		},
		{
			name: "blocks run at materialization",
			body: `
	var d = inplace {
		note(10)
		Pair{a: 1, b: 2}
	}
	note(1)
	var p Pair = d
	note(p.a + p.b)`,
			want: "note 1; note 10; note 3",
		},
		{
			name: "dropped block never runs",
			body: `
	var d = inplace {
		note(10)
		Pair{a: 1, b: 2}
	}
	note(1)`,
			want: "note 1",
		},
		{
			name: "fields in source order",
			body: `
	var p Pair = inplace Pair{b: tick(), a: tick()}
	note(p.a)
	note(p.b)`,
			want: "tick 1; tick 2; note 2; note 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, r := newTestMachine(t, pairDecls+"\nfunc main() {"+tt.body+"\n}\n", nil)
			call(t, mc, "main")
			if got := r.String(); got != tt.want {
				t.Errorf("log = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDropExactlyOnce(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unconstructed value runs no hook",
			body: `
	var a = inplace Res{id: 1}
	var b = inplace Res{id: 2}
	var r Res = b`,
			want: "drop 2",
		},
		{
			name: "pending value drops its captures",
			body: `
	var r = Res{id: 7}
	var d = inplace Box{r: r, n: 1}
	note(0)`,
			want: "note 0; drop 7",
		},
		{
			name: "materialized value owns its captures",
			body: `
	var r = Res{id: 7}
	var d = inplace Box{r: r, n: 1}
	var b Box = d
	note(0)`,
			want: "note 0; drop 7",
		},
		{
			name: "locals in reverse order",
			body: `
	var x = Res{id: 1}
	var y = Res{id: 2}
	var z = Res{id: 3}`,
			want: "drop 3; drop 2; drop 1",
		},
		{
			name: "assignment drops the old value",
			body: `
	var x = Res{id: 1}
	x = Res{id: 2}
	note(0)`,
			want: "drop 1; note 0; drop 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, r := newTestMachine(t, pairDecls+"\nfunc main() {"+tt.body+"\n}\n", nil)
			call(t, mc, "main")
			if got := r.String(); got != tt.want {
				t.Errorf("log = %q, want %q", got, tt.want)
			}
			if st := mc.Stats(); st.Live() != 0 {
				t.Errorf("stats = %+v", st)
			}
		})
	}
}

func TestSourceDropHook(t *testing.T) {
	mc, r := newTestMachine(t, `
package main

type Guard struct {
	id i64
}

func (g *Guard) drop() {
	note(g.id)
}

type Pair struct {
	first Guard
	second Guard
}

func main() {
	var p Pair = inplace Pair{first: Guard{id: 1}, second: Guard{id: 2}}
	note(0)
}
`, nil)
	call(t, mc, "main")
	if got := r.String(); got != "note 0; note 1; note 2" {
		t.Errorf("log = %q", got)
	}
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"overflow", "var x i64 = 9223372036854775807\n\tnote(x + 1)", "i64 overflow in x + 1"},
		{"divide", "var x i64 = 0\n\tnote(1 / x)", "integer divide by zero"},
		{"index", "var a = [3]i64{1, 2, 3}\n\tvar i i64 = 3\n\tnote(a[i])", "index out of range [3] with length 3"},
		{"panic", "panic(4)", "panic(4)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc, _ := newTestMachine(t, "package main\n\nfunc main() {\n\t"+tt.body+"\n}\n", nil)
			_, err := mc.Call("main")
			var trap *Trap
			if !errors.As(err, &trap) {
				t.Fatalf("err = %v, want trap", err)
			}
			if !strings.Contains(trap.Msg, tt.msg) {
				t.Errorf("trap %q, want %q", trap.Msg, tt.msg)
			}
		})
	}
}

func TestTrapDropsLocals(t *testing.T) {
	mc, r := newTestMachine(t, pairDecls+`
func main() {
	var x = Res{id: 1}
	var y = Res{id: 2}
	var d = inplace Box{r: y, n: 3}
	panic()
}
`, nil)
	if _, err := mc.Call("main"); err == nil {
		t.Fatal("expected trap")
	}
	if got := r.String(); got != "drop 2; drop 1" {
		t.Errorf("log = %q", got)
	}
}

func TestWrappingOverflow(t *testing.T) {
	mc, r := newTestMachine(t, `
package main

func main() {
	var x i64 = 9223372036854775807
	note(x + 1)
	var y u8 = 255
	var z u8 = y + 2
	note(0 - 1)
}
`, &Config{Overflow: OverflowWrapping})
	call(t, mc, "main")
	if got := r.String(); got != "note -9223372036854775808; note -1" {
		t.Errorf("log = %q", got)
	}
}

func TestTryPropagation(t *testing.T) {
	mc, r := newTestMachine(t, pairDecls+`
func f(ok bool) Result[i64] {
	check(ok)?
	note(1)
	return 42
}

func g(ok bool) Result[inplace Pair] {
	check(ok)?
	return Pair{a: 5, b: 6}
}

func h(ok bool) Result[i64] {
	var x = Res{id: 9}
	var p Pair = g(ok)?
	return p.a + p.b
}
`, nil)
	for _, ok := range []bool{true, false} {
		v := call(t, mc, "f", BoolWord(ok)).(Result)
		if ok {
			w, _ := v.GetRight()
			if !v.IsRight() || w.(Word) != 42 {
				t.Errorf("f(true) = %v", v)
			}
		} else if e, _ := v.GetLeft(); !v.IsLeft() || e.Error() != "check failed" {
			t.Errorf("f(false) = %v", v)
		}
	}
	if got := r.String(); got != "note 1" {
		t.Errorf("log = %q", got)
	}

	r.log = nil
	v := call(t, mc, "h", BoolWord(false)).(Result)
	if !v.IsLeft() {
		t.Errorf("h(false) = %v", v)
	}
	if got := r.String(); got != "drop 9" {
		t.Errorf("log = %q", got)
	}
	v = call(t, mc, "h", BoolWord(true)).(Result)
	if w, _ := v.GetRight(); w.(Word) != 11 {
		t.Errorf("h(true) = %v", v)
	}
	if st := mc.Stats(); st.Live() != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestAbortPolicy(t *testing.T) {
	src := pairDecls + `
func make(x i64) inplace Pair {
	return inplace {
		Pair{a: x + 1, b: 0}
	}
}
`
	expectErrorsConf(t, src, nil, "initializer may unwind: checked + may overflow: x + 1")

	var aborted []error
	conf := &Config{Policy: Abort, Abort: func(err error) { aborted = append(aborted, err) }}
	mc, _ := newTestMachine(t, src, conf)
	i64 := types.Typ[types.Int64]

	dv := deferredResult(t, call(t, mc, "make", IntWord(i64, 1)))
	dest := alloc(t, mc, dv.Type(), 0)
	if err := dv.MaterializeInto(dest); err != nil {
		t.Fatal(err)
	}
	if load(t, mc, dest, 8) != 2 {
		t.Error("a != 2")
	}

	dv = deferredResult(t, call(t, mc, "make", IntWord(i64, math.MaxInt64)))
	err := dv.MaterializeInto(dest)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	var trap *Trap
	if !errors.As(err, &trap) {
		t.Errorf("err = %v, want wrapped trap", err)
	}
	if len(aborted) != 1 {
		t.Errorf("abort handler ran %d times", len(aborted))
	}
	if dv.State() != Materialized {
		t.Errorf("state = %v", dv.State())
	}
}

func TestAbortDefaultPanics(t *testing.T) {
	mc, _ := newTestMachine(t, pairDecls+`
func make(x i64) inplace Pair {
	return inplace {
		Pair{a: x + 1, b: 0}
	}
}
`, &Config{Policy: Abort})
	dv := deferredResult(t, call(t, mc, "make", IntWord(types.Typ[types.Int64], math.MaxInt64)))
	dest := alloc(t, mc, dv.Type(), 0)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	dv.MaterializeInto(dest)
}

func TestEnvAllocationFailure(t *testing.T) {
	r := &recorder{}
	conf := &Config{Host: newTestHost(r)}
	prog, errs := parseAndCheck(pairDecls+`
func make(x i64) inplace Box {
	var r = Res{id: x}
	return Box{r: r, n: 1}
}
`, conf)
	if len(errs) > 0 {
		t.Fatal(errs)
	}
	m := mem.New(1<<10, 1<<10)
	mc := prog.NewMachine(m, &mem.Failing{Allocator: mem.NewArena(m)})
	_, err := mc.Call("make", IntWord(types.Typ[types.Int64], 4))
	if !errors.Is(err, mem.ErrOutOfMemory) {
		t.Fatalf("err = %v", err)
	}
	if got := r.String(); got != "drop 4" {
		t.Errorf("log = %q", got)
	}
}

func TestFailedCreationReportsDropErrors(t *testing.T) {
	errBad := errors.New("bad drop")
	h := newTestHost(&recorder{})
	h.DefineDrop("Bad", func(mc *Machine, obj Object) error {
		return errBad
	})
	mc, _ := newTestMachine(t, pairDecls+`
type Bad struct {
	id i64
}

type Held struct {
	b Bad
	n i64
}

func make(x i64) inplace Held {
	var b = Bad{id: x}
	return Held{b: b, n: 10 / x}
}
`, &Config{Host: h})
	_, err := mc.Call("make", IntWord(types.Typ[types.Int64], 0))
	var trap *Trap
	if !errors.As(err, &trap) {
		t.Fatalf("err = %v, want a trap", err)
	}
	if !errors.Is(err, errBad) {
		t.Errorf("err = %v, want the drop error joined", err)
	}
	if st := mc.Stats(); st.Created != 0 || st.Live() != 0 {
		t.Errorf("stats = %+v", st)
	}
}
