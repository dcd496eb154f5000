package inplace

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// recorder collects the observable effects of the test host.
type recorder struct {
	log   []string
	ticks int64
}

func (r *recorder) String() string { return strings.Join(r.log, "; ") }

// newTestHost returns a host with:
//
//	tick() i64              effect; returns 1, 2, 3, ...
//	note(v i64)             effect; logs v
//	check(ok bool) Result[bool]
//	risky() i64             may unwind
//	Res                     drop hook logging the id field
func newTestHost(r *recorder) *Host {
	i64 := types.Typ[types.Int64]
	h := NewHost()
	h.Define(&HostFunc{
		Name:    "tick",
		Result:  i64,
		Effects: true,
		Fn: func(mc *Machine, args []Arg) (Value, error) {
			r.ticks++
			r.log = append(r.log, fmt.Sprintf("tick %d", r.ticks))
			return Word(r.ticks), nil
		},
	})
	h.Define(&HostFunc{
		Name:    "note",
		Params:  []types.Type{i64},
		Effects: true,
		Fn: func(mc *Machine, args []Arg) (Value, error) {
			r.log = append(r.log, fmt.Sprintf("note %d", args[0].Value.(Word).Int(i64)))
			return nil, nil
		},
	})
	h.Define(&HostFunc{
		Name:   "check",
		Params: []types.Type{types.Typ[types.Bool]},
		Result: types.NewResult(types.Typ[types.Bool]),
		Fn: func(mc *Machine, args []Arg) (Value, error) {
			if !args[0].Value.(Word).Bool() {
				return nil, errors.New("check failed")
			}
			return BoolWord(true), nil
		},
	})
	h.Define(&HostFunc{
		Name:      "risky",
		Result:    i64,
		MayUnwind: true,
		Fn: func(mc *Machine, args []Arg) (Value, error) {
			return Word(7), nil
		},
	})
	h.DefineDrop("Res", func(mc *Machine, obj Object) error {
		id, err := mc.Memory().Load(obj.Addr, 8)
		r.log = append(r.log, fmt.Sprintf("drop %d", id))
		return err
	})
	return h
}

// parseAndCheck parses source code and runs the checker with conf.
// Returns the program and any errors.
func parseAndCheck(src string, conf *Config) (*Program, []string) {
	var errs []string
	errh := func(pos syntax.Pos, msg string) {
		errs = append(errs, pos.String()+": "+msg)
	}

	p := syntax.NewParser("test.emp", strings.NewReader(src), errh)
	file := p.Parse()
	if len(errs) > 0 {
		return nil, errs
	}

	if conf == nil {
		conf = &Config{}
	}
	if conf.Host == nil {
		conf.Host = newTestHost(&recorder{})
	}
	conf.Error = errh

	prog, _ := Check("test.emp", file, conf, nil)
	return prog, errs
}

// expectNoErrors checks that the source code checks without errors.
func expectNoErrors(t *testing.T, src string) *Program {
	t.Helper()
	prog, errs := parseAndCheck(src, nil)
	if len(errs) > 0 {
		t.Errorf("unexpected errors:\n%s", strings.Join(errs, "\n"))
	}
	return prog
}

// expectErrors checks that checking produces expected error substrings.
func expectErrors(t *testing.T, src string, expectedMsgs ...string) {
	t.Helper()
	expectErrorsConf(t, src, nil, expectedMsgs...)
}

func expectErrorsConf(t *testing.T, src string, conf *Config, expectedMsgs ...string) {
	t.Helper()
	_, errs := parseAndCheck(src, conf)
	if len(errs) == 0 {
		t.Errorf("expected errors containing %v, got none", expectedMsgs)
		return
	}
	errText := strings.Join(errs, "\n")
	for _, msg := range expectedMsgs {
		if !strings.Contains(errText, msg) {
			t.Errorf("expected error containing %q, got:\n%s", msg, errText)
		}
	}
}

const pointDecls = `
package main

type Point struct {
	x i32
	y i32
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
`

func TestCheckWellFormed(t *testing.T) {
	expectNoErrors(t, pointDecls+`
func make_point(a i32) inplace Point {
	return Point{x: a, y: 2}
}

func make_outer() inplace Outer {
	return Outer{a: inplace A{v: 1}, b: 2}
}

func try_point(ok bool) Result[inplace Point] {
	check(ok)?
	return Point{x: 1, y: 2}
}

func main() {
	var p Point = make_point(1)
	var o Outer = inplace Outer{a: A{v: 1}, b: tick()}
	q := inplace Point{x: p.x, y: 3}
	var r Point = q
	note(o.b)
	var big = inplace []u32{1; 1000}
	var arr = [4]i64{7; 4}
	note(arr[2] + o.b)
}
`)
}

func TestCheckConversionShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"variable", "p := Point{x: 1, y: 2}\n\tvar d inplace Point = p",
			"cannot defer variable p: its value is already constructed"},
		{"constructed call", "var d inplace Point = origin()",
			"cannot defer origin(): a Point that is already constructed cannot be built in place"},
		{"unsized into local", "var d = inplace []i32{1, 2}\n\tvar s []i32 = d",
			"unsized type []i32 not allowed here"},
		{"non-copyable repeat", "var d = inplace []Res{Res{id: 1}; 3}",
			"repeat of non-copyable element type Res"},
		{"unsized block", "var d = inplace { []i32{1, 2} }",
			"cannot defer block of unsized type []i32"},
		{"block without tail", "var d = inplace { note(1) }",
			"deferred block must end with an expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectErrors(t, pointDecls+`
func origin() Point {
	return Point{x: 0, y: 0}
}

func main() {
	`+tt.body+`
}
`, tt.want)
		})
	}
}

func TestCheckMoves(t *testing.T) {
	expectErrors(t, pointDecls+`
func main() {
	var d = inplace Point{x: 1, y: 2}
	var p Point = d
	var q Point = d
}
`, "use of moved value d")

	expectErrors(t, pointDecls+`
func take(r Res) {
}

func main() {
	var r = Res{id: 1}
	take(r)
	take(r)
}
`, "use of moved value r")

	expectErrors(t, pointDecls+`
func main() {
	var o = Outer{a: A{v: 1}, b: 2}
	var p = &o
	var a A = p.a
	var r = Res{id: 1}
	var w = [2]Res{Res{id: 1}, Res{id: 2}}
	var x Res = w[0]
}
`, "cannot move out of w[0]")
}

func TestCheckDeferredBlocks(t *testing.T) {
	expectErrors(t, pointDecls+`
func main() {
	var n i32 = 1
	var d = inplace {
		n = 2
		Point{x: n, y: 0}
	}
}
`, "cannot assign to n: captured by deferred block")

	expectErrors(t, pointDecls+`
func main() {
	var p = Point{x: 1, y: 2}
	var d = inplace {
		var q = &p
		Point{x: q.x, y: 0}
	}
	p = Point{x: 3, y: 4}
}
`, "cannot assign to p: borrowed by deferred block")

	expectErrors(t, pointDecls+`
func f() Result[inplace Point] {
	return inplace {
		check(true)?
		Point{x: 1, y: 2}
	}
}
`, "? operator in deferred block")

	expectErrors(t, pointDecls+`
func main() {
	var inner = inplace Point{x: 1, y: 2}
	var d = inplace {
		var p Point = inner
		p
	}
}
`, "deferred block cannot capture inner of type inplace Point")

	expectErrors(t, pointDecls+`
func main() {
	var d = inplace {
		return
		Point{x: 1, y: 2}
	}
}
`, "return in deferred block")
}

func TestCheckTry(t *testing.T) {
	expectErrors(t, `
package main

func main() {
	check(true)?
}
`, "? used in function main that does not return a Result")

	expectNoErrors(t, `
package main

func f(ok bool) Result[i64] {
	check(ok)?
	return 42
}
`)
}

func TestCheckEscape(t *testing.T) {
	expectErrors(t, pointDecls+`
func f() inplace Point {
	var p = Point{x: 1, y: 2}
	return inplace {
		var q = &p
		Point{x: q.y, y: q.x}
	}
}
`, "cannot return", "holds a pointer to local p")
}

func TestCheckDropHooks(t *testing.T) {
	expectNoErrors(t, `
package main

type Guard struct {
	id i64
}

func (g *Guard) drop() {
	note(g.id)
}

func main() {
	var g = Guard{id: 3}
}
`)

	expectErrors(t, `
package main

type Guard struct {
	id i64
}

func (g *Guard) close() {
}
`, "methods are not supported; only a drop hook may have a receiver")

	expectErrors(t, `
package main

type Guard struct {
	id i64
}

func (g *Guard) drop() {
}

func main() {
	var g = Guard{id: 1}
	g.drop()
}
`, "methods are not supported: cannot call g.drop")

	expectErrors(t, `
package main

type Guard struct {
	id i64
}

func (g *Guard) drop() {
}

func main() {
	var g = Guard{id: 1}
	var h = g.drop
}
`, "cannot call drop hook Guard.drop directly")
}

func TestCheckDualCalls(t *testing.T) {
	conf := &Config{Host: newTestHost(&recorder{})}
	conf.Host.DefineDual(newSink().op("push", nil))
	_, errs := parseAndCheck(pointDecls+`
func main() {
	push(Point{x: 1, y: 2})
	push(inplace Point{x: 3, y: 4})
	push(inplace []i32{1; 3})
	push(Outer{a: A{v: 1}, b: 2})
}
`, conf)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors:\n%s", strings.Join(errs, "\n"))
	}

	conf = &Config{Host: newTestHost(&recorder{})}
	conf.Host.DefineDual(newSink().op("push_int", types.Typ[types.Int64]))
	expectErrorsConf(t, pointDecls+`
func main() {
	push_int(A{v: 1})
}
`, conf, "cannot use A{v: 1} in call to push_int: element type A does not match i64")
}

func TestCheckUnsizedRules(t *testing.T) {
	expectErrors(t, `
package main

type Buf struct {
	n i64
	data []u8
}

func main() {
	var b Buf = inplace Buf{n: 2, data: []u8{1, 2}}
}
`, "unsized type Buf not allowed here")

	expectNoErrors(t, `
package main

type Buf struct {
	n i64
	data []u8
}

func make_buf(n i64) inplace Buf {
	return Buf{n: n, data: []u8{0; n}}
}
`)
}
