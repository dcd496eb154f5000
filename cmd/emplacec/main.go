// Package main implements the emplacec driver. It checks a source file,
// reports how every deferral site is built, and runs the program on the
// reference evaluator.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/you-not-fish/emplace/internal/container"
	"github.com/you-not-fish/emplace/internal/inplace"
	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// Driver flags
var (
	noASI      = flag.Bool("no-asi", false, "Disable automatic semicolon insertion")
	emitAST    = flag.Bool("emit-ast", false, "Output AST")
	emitPlan   = flag.Bool("emit-plan", false, "Output the plan of every deferral site")
	emitLayout = flag.Bool("emit-layout", false, "Output struct layouts")
	run        = flag.Bool("run", false, "Run main on the reference evaluator")
	policy     = flag.String("policy", "unwind", "Abnormal-termination policy (unwind or abort)")
	overflow   = flag.String("overflow", "checked", "Integer overflow semantics (checked or wrapping)")
	heap       = flag.Int64("heap", 1<<20, "Heap size in bytes for -run")
	stack      = flag.Int64("stack", 1<<16, "Stack size in bytes for -run")
	stats      = flag.Bool("stats", false, "Print memory and deferred value statistics after -run")
	version    = flag.Bool("version", false, "Print version")
	trace      = flag.Bool("trace", false, "Output timing trace")
	dumpFunc   = flag.String("dump-func", "", "Only dump plans of a specific function")
	verify     = flag.Bool("verify", false, "Verify plans before and after each pass")
	dumpBefore = flag.String("dump-before", "", "Dump plans before pass (name or \"*\")")
	dumpAfter  = flag.String("dump-after", "", "Dump plans after pass (name or \"*\")")
)

// Version information
const Version = "0.1.0-dev"

// Exit codes
const (
	exitOK    = 0
	exitError = 1 // usage, syntax or type errors
	exitTrap  = 2 // the program trapped
	exitAbort = 134
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "emplacec %s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: emplacec [options] <file.emp>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *version {
		fmt.Printf("emplacec version %s\n", Version)
		fmt.Printf("go version %s\n", runtime.Version())
		os.Exit(exitOK)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: no input file")
		fmt.Fprintln(os.Stderr, "usage: emplacec [options] <file.emp>")
		os.Exit(exitError)
	}

	filename := args[0]

	switch {
	case *emitAST:
		os.Exit(runEmitAST(filename))
	case *emitLayout:
		os.Exit(runEmitLayout(filename))
	case *emitPlan:
		os.Exit(runEmitPlan(filename))
	case *run:
		os.Exit(runProgram(filename, os.Stdout))
	}

	// Without an action, check the file and report errors only.
	if _, _, ok := load(filename); !ok {
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}

// phase prints the time spent since start when -trace is set.
func phase(name string, start time.Time) {
	if *trace {
		fmt.Fprintf(os.Stderr, "trace: %-8s %v\n", name, time.Since(start))
	}
}

// parse reads and parses filename, printing syntax errors to stderr.
func parse(filename string) (*syntax.File, bool) {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, false
	}
	defer f.Close()

	start := time.Now()
	var errs []string
	errh := func(pos syntax.Pos, msg string) {
		errs = append(errs, fmt.Sprintf("%s: %s", pos, msg))
	}
	p := syntax.NewParser(filename, f, errh)
	if *noASI {
		p.SetASIEnabled(false)
	}
	file := p.Parse()
	phase("parse", start)

	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e)
	}
	return file, len(errs) == 0
}

// config builds the checker configuration from the flags.
func config(h *inplace.Host) (*inplace.Config, error) {
	pol, err := inplace.ParsePolicy(*policy)
	if err != nil {
		return nil, err
	}
	ovf, err := inplace.ParseOverflow(*overflow)
	if err != nil {
		return nil, err
	}
	return &inplace.Config{
		Sizes:    types.DefaultSizes,
		Policy:   pol,
		Overflow: ovf,
		Host:     h,
		Passes: inplace.PassConfig{
			DumpBefore: *dumpBefore,
			DumpAfter:  *dumpAfter,
			DumpFunc:   *dumpFunc,
			Verify:     *verify,
			Out:        os.Stderr,
		},
		Abort: func(err error) {
			fmt.Fprintf(os.Stderr, "abort: %v\n", err)
		},
	}, nil
}

// load parses and checks filename against the driver's host. Errors are
// printed to stderr.
func load(filename string) (*inplace.Program, *driverHost, bool) {
	file, ok := parse(filename)
	if !ok {
		return nil, nil, false
	}

	dh := newDriverHost()
	conf, err := config(dh.Host)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, nil, false
	}
	var errs []string
	conf.Error = func(pos syntax.Pos, msg string) {
		errs = append(errs, fmt.Sprintf("%s: %s", pos, msg))
	}

	start := time.Now()
	prog, _ := inplace.Check(filename, file, conf, nil)
	phase("check", start)

	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e)
	}
	return prog, dh, len(errs) == 0
}

// runEmitAST parses the input file and outputs the AST.
func runEmitAST(filename string) int {
	file, ok := parse(filename)
	if file != nil {
		syntax.Fprint(os.Stdout, file)
	}
	if !ok {
		return exitError
	}
	return exitOK
}

// runEmitPlan checks the input file and outputs the accepted plan of
// every deferral site in source order.
func runEmitPlan(filename string) int {
	prog, _, ok := load(filename)
	if !ok {
		return exitError
	}
	for i, p := range prog.Plans() {
		if *dumpFunc != "" && p.Func != *dumpFunc {
			continue
		}
		if i > 0 {
			fmt.Println()
		}
		inplace.FprintPlan(os.Stdout, p)
		_, env := p.Env()
		fmt.Printf("  env: %s\n", env)
		if types.IsSized(p.Type) {
			fmt.Printf("  value: %s\n", p.Layout(types.DefaultSizes, 0))
		}
	}
	return exitOK
}

// runEmitLayout checks the input file and outputs struct layouts.
func runEmitLayout(filename string) int {
	prog, _, ok := load(filename)
	if prog == nil {
		return exitError
	}

	sizes := types.DefaultSizes
	fmt.Println("=== Struct Layouts ===")
	fmt.Println()

	for _, decl := range prog.File.Decls {
		td, isType := decl.(*syntax.TypeDecl)
		if !isType {
			continue
		}
		tn, isName := prog.Info.Defs[td.Name].(*types.TypeName)
		if !isName {
			continue
		}
		named, isNamed := tn.Type().(*types.Named)
		if !isNamed {
			continue
		}
		st, isStruct := named.Underlying().(*types.Struct)
		if !isStruct {
			continue
		}
		sizes.ComputeLayout(st)

		fmt.Printf("type %s struct {\n", td.Name.Value)
		for i, field := range st.Fields() {
			fmt.Printf("    %-10s %-15s // offset: %d, size: %d, align: %d\n",
				field.Name(), field.Type(), st.Offset(i), sizes.Sizeof(field.Type()), sizes.Alignof(field.Type()))
		}
		fmt.Printf("}\n")
		if elem := types.UnsizedElem(named); elem != nil {
			fmt.Printf("// size: %d + %d per element, align: %d\n", st.Size(), sizes.Sizeof(elem), st.Align())
		} else {
			fmt.Printf("// size: %d, align: %d\n", st.Size(), st.Align())
		}
		if named.HasDrop() {
			fmt.Printf("// has drop hook\n")
		}
		fmt.Println()
	}

	if !ok {
		return exitError
	}
	return exitOK
}

// runProgram checks the input file and runs its main function. Program
// output goes to out; traps are reported on stderr.
func runProgram(filename string, out io.Writer) int {
	prog, dh, ok := load(filename)
	if !ok {
		return exitError
	}
	if prog.Func("main") == nil {
		fmt.Fprintf(os.Stderr, "%s: no main function\n", filename)
		return exitError
	}

	m := mem.New(*stack, *heap)
	mc := prog.NewMachine(m, nil)
	mc.Out = out

	start := time.Now()
	_, err := mc.Call("main")
	phase("run", start)

	if dh.array.Len() > 0 {
		fmt.Fprintf(out, "array (%d):\n%s", dh.array.Len(), dh.array.Format(mc))
	}
	if rerr := dh.array.Release(mc); rerr != nil && err == nil {
		err = rerr
	}
	if *stats {
		printStats(os.Stderr, mc.Stats())
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, inplace.ErrAborted):
		fmt.Fprintf(os.Stderr, "aborted: %v\n", err)
		return exitAbort
	}
	var trap *inplace.Trap
	if errors.As(err, &trap) {
		fmt.Fprintf(os.Stderr, "%s: trap: %s\n", trap.Pos, trapMessage(trap))
		return exitTrap
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitTrap
}

func trapMessage(t *inplace.Trap) string {
	if t.Err != nil {
		return t.Msg + ": " + t.Err.Error()
	}
	return t.Msg
}

func printStats(w io.Writer, st inplace.Stats) {
	fmt.Fprintf(w, "stores: %d, copies: %d (%d bytes), temps: %d\n",
		st.Stores, st.Copies, st.BytesCopied, st.Temps)
	fmt.Fprintf(w, "deferred: created %d, materialized %d, dropped %d, absorbed %d, live %d\n",
		st.Created, st.Materialized, st.Dropped, st.Absorbed, st.Live())
}

// driverHost is the host environment programs run against.
type driverHost struct {
	*inplace.Host
	array *container.DstArray
	ticks int64
}

// newDriverHost returns a host with these functions:
//
//	print(args...)      prints its arguments separated by spaces
//	tick() i64          returns 1, 2, 3, ... in call order
//	check(ok bool) Result[bool]
//	push(v ?inplace T) bool
//
// push appends to an array that is printed when the program ends.
func newDriverHost() *driverHost {
	dh := &driverHost{Host: inplace.NewHost(), array: container.New(nil, nil)}
	i64 := types.Typ[types.Int64]

	dh.Define(&inplace.HostFunc{
		Name:     "print",
		Params:   []types.Type{nil},
		Variadic: true,
		Effects:  true,
		Fn: func(mc *inplace.Machine, args []inplace.Arg) (inplace.Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = mc.Format(a.Type, a.Value)
			}
			_, err := fmt.Fprintln(mc.Out, strings.Join(parts, " "))
			return nil, err
		},
	})
	dh.Define(&inplace.HostFunc{
		Name:    "tick",
		Result:  i64,
		Effects: true,
		Fn: func(mc *inplace.Machine, args []inplace.Arg) (inplace.Value, error) {
			dh.ticks++
			return inplace.IntWord(i64, dh.ticks), nil
		},
	})
	dh.Define(&inplace.HostFunc{
		Name:   "check",
		Params: []types.Type{types.Typ[types.Bool]},
		Result: types.NewResult(types.Typ[types.Bool]),
		Fn: func(mc *inplace.Machine, args []inplace.Arg) (inplace.Value, error) {
			if !args[0].Value.(inplace.Word).Bool() {
				return nil, errors.New("check failed")
			}
			return inplace.BoolWord(true), nil
		},
	})
	dh.DefineDual(dh.array.PushOp("push"))
	return dh
}
