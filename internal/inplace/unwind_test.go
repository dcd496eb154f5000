package inplace

import (
	"fmt"
	"strings"
	"testing"
)

// lineOf returns the 1-based line of the first occurrence of s in src.
func lineOf(src, s string) int {
	i := strings.Index(src, s)
	if i < 0 {
		return -1
	}
	return strings.Count(src[:i], "\n") + 1
}

const unwindDecls = pairDecls + `
func helper(x i64) i64 {
	return x * 2
}

func safe(x i64) i64 {
	return x
}
`

func TestUnwindRejections(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"add", "x + 1", "initializer may unwind: checked + may overflow: x + 1"},
		{"negate", "-x", "initializer may unwind: checked - may overflow: -x"},
		{"divide", "10 / x", "initializer may unwind: / may divide by zero: 10 / x"},
		{"remainder by -1", "x % -1", "initializer may unwind: % by -1 may overflow: x % -1"},
		{"index", "a[x]", "initializer may unwind: index may be out of bounds: a[x]"},
		{"callee", "helper(x)", "initializer may unwind: call of helper may unwind (checked * may overflow at test.emp:"},
		{"host", "risky()", "initializer may unwind: host function risky may unwind: risky()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := unwindDecls + `
func f(a [4]i64, x i64) inplace Pair {
	return inplace {
		Pair{a: ` + tt.expr + `, b: 0}
	}
}
`
			_, errs := parseAndCheck(src, nil)
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1:\n%s", len(errs), strings.Join(errs, "\n"))
			}
			if !strings.Contains(errs[0], tt.want) {
				t.Errorf("error %q, want %q", errs[0], tt.want)
			}
			pos := fmt.Sprintf("test.emp:%d:", lineOf(src, "Pair{a: "+tt.expr))
			if !strings.HasPrefix(errs[0], pos) {
				t.Errorf("error %q not reported at %s", errs[0], pos)
			}

			if _, errs := parseAndCheck(src, &Config{Policy: Abort}); len(errs) > 0 {
				t.Errorf("abort policy rejected the initializer:\n%s", strings.Join(errs, "\n"))
			}
		})
	}
}

func TestUnwindPanic(t *testing.T) {
	src := pairDecls + `
func f() inplace Pair {
	return inplace {
		panic()
		Pair{a: 1, b: 2}
	}
}
`
	expectErrors(t, src, "initializer may unwind: panic: panic()")
	if _, errs := parseAndCheck(src, &Config{Policy: Abort}); len(errs) > 0 {
		t.Errorf("abort policy: %v", errs)
	}
}

func TestUnwindAccepts(t *testing.T) {
	tests := []struct {
		name string
		expr string
		conf *Config
	}{
		{"constant", "1 + 2", nil},
		{"safe call", "safe(x)", nil},
		{"constant divisor", "x / 2", nil},
		{"constant index", "a[3]", nil},
		{"wrapping add", "x + 1", &Config{Overflow: OverflowWrapping}},
		{"eager capture", "x", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := parseAndCheck(unwindDecls+`
func f(a [4]i64, x i64) inplace Pair {
	return inplace {
		Pair{a: `+tt.expr+`, b: 0}
	}
}
`, tt.conf)
			if len(errs) > 0 {
				t.Errorf("unexpected errors:\n%s", strings.Join(errs, "\n"))
			}
		})
	}

	// Arithmetic evaluated when the deferred value is created is not part
	// of the initializer.
	expectNoErrors(t, unwindDecls+`
func g(x i64) inplace Pair {
	return Pair{a: x + 1, b: helper(x)}
}
`)
}

func TestOrderRejection(t *testing.T) {
	expectErrors(t, pairDecls+`
func main() {
	var p Pair = inplace Pair{
		a: inplace {
			note(1)
			1
		},
		b: tick(),
	}
}
`, "deferral would reorder side effects: tick() would run before the deferred effects of")

	expectNoErrors(t, pairDecls+`
func main() {
	var p Pair = inplace Pair{
		a: tick(),
		b: inplace {
			note(1)
			1
		},
	}
}
`)
}

func TestUnwindDeferredCreation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"callee", "var k = y\n\t\tmk(k)",
			"initializer may unwind: call of mk may unwind (allocating the deferred value environment may fail at test.emp:"},
		{"literal", "var k = y\n\t\tinplace Pair{a: k, b: 0}",
			"initializer may unwind: allocating the deferred value environment may fail: inplace Pair{a: k, b: 0}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := pairDecls + `
func mk(k i64) inplace Pair {
	return Pair{a: k, b: 0}
}

func f(y i64) inplace Pair {
	return inplace {
		` + tt.body + `
	}
}
`
			expectErrors(t, src, tt.want)
			if _, errs := parseAndCheck(src, &Config{Policy: Abort}); len(errs) > 0 {
				t.Errorf("abort policy rejected the initializer:\n%s", strings.Join(errs, "\n"))
			}
		})
	}
}
