package inplace

import (
	"fmt"
	"go/constant"
	"sort"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/syntax"
	"github.com/you-not-fish/emplace/internal/types"
)

// Policy is the abnormal-termination policy of the target.
type Policy int

const (
	// Unwind means a trap unwinds the stack, running drops on the way.
	// Initializers must be proven free of unwinding operations.
	Unwind Policy = iota

	// Abort means a trap terminates the program. No partial value can
	// ever be observed, so every initializer is acceptable.
	Abort
)

func (p Policy) String() string {
	switch p {
	case Unwind:
		return "unwind"
	case Abort:
		return "abort"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy parses "unwind" or "abort".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "unwind":
		return Unwind, nil
	case "abort":
		return Abort, nil
	}
	return Unwind, fmt.Errorf("unknown policy %q (want unwind or abort)", s)
}

// Overflow selects the semantics of integer overflow.
type Overflow int

const (
	// OverflowChecked traps on overflow of + - * and unary -.
	OverflowChecked Overflow = iota

	// OverflowWrapping wraps around silently.
	OverflowWrapping
)

func (o Overflow) String() string {
	switch o {
	case OverflowChecked:
		return "checked"
	case OverflowWrapping:
		return "wrapping"
	}
	return fmt.Sprintf("Overflow(%d)", int(o))
}

// ParseOverflow parses "checked" or "wrapping".
func ParseOverflow(s string) (Overflow, error) {
	switch s {
	case "checked":
		return OverflowChecked, nil
	case "wrapping":
		return OverflowWrapping, nil
	}
	return OverflowChecked, fmt.Errorf("unknown overflow mode %q (want checked or wrapping)", s)
}

// Config specifies the configuration for checking and running a program.
type Config struct {
	// Error is called for each compile-time error.
	// If nil, errors are silently ignored.
	Error ErrorHandler

	// Sizes provides type size and alignment information.
	// If nil, types.DefaultSizes is used.
	Sizes *types.Sizes

	// Policy is the abnormal-termination policy initializers are checked
	// against.
	Policy Policy

	// Overflow selects checked or wrapping integer arithmetic.
	Overflow Overflow

	// Host supplies host functions, drop hooks and dual operations.
	// If nil, only source declarations are available.
	Host *Host

	// Passes controls plan dumps and verification.
	Passes PassConfig

	// Abort is called when a trap occurs inside an initializer. The
	// default panics with the trap.
	Abort func(error)
}

// Conversion records implicit conversions applied to an expression.
type Conversion uint8

const (
	// ConvDefer converts a T into an inplace T because the target type asks
	// for one. The plan is recorded in Info.Plans.
	ConvDefer Conversion = 1 << iota

	// ConvMaterialize converts an inplace T into a T by running its
	// initializer at the target location.
	ConvMaterialize

	// ConvWrap converts a value into a successful Result.
	ConvWrap
)

func (k Conversion) String() string {
	s := ""
	for _, c := range []struct {
		bit  Conversion
		name string
	}{{ConvDefer, "defer"}, {ConvMaterialize, "materialize"}, {ConvWrap, "wrap"}} {
		if k&c.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += c.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Info holds the results of checking.
type Info struct {
	// Types maps expressions to their type and value information.
	Types map[syntax.Expr]TypeAndValue

	// Defs maps defining identifiers to their declared objects.
	Defs map[*syntax.Name]types.Object

	// Uses maps referencing identifiers to their referenced objects.
	Uses map[*syntax.Name]types.Object

	// Scopes maps AST nodes to their scopes.
	Scopes map[syntax.Node]*types.Scope

	// Plans maps each deferral site to its accepted plan: inplace
	// expressions and expressions converted by Defer.
	Plans map[syntax.Expr]*Plan

	// Conversions maps expressions to the implicit conversions applied
	// to their value.
	Conversions map[syntax.Expr]Conversion

	// Dispatch maps calls of dual operations to the resolved form.
	Dispatch map[*syntax.CallExpr]Variant
}

// TypeAndValue holds the type and value information for an expression.
type TypeAndValue struct {
	Type  types.Type     // expression type
	Value constant.Value // constant value (nil if not constant)
	mode  operandMode    // operand mode
}

// IsVoid reports whether the expression has no value.
func (tv TypeAndValue) IsVoid() bool {
	return tv.mode == novalue
}

// IsType reports whether the expression is a type expression.
func (tv TypeAndValue) IsType() bool {
	return tv.mode == typexpr
}

// IsConstant reports whether the expression is a constant.
func (tv TypeAndValue) IsConstant() bool {
	return tv.mode == constant_
}

// IsAddressable reports whether the expression denotes a location.
func (tv TypeAndValue) IsAddressable() bool {
	return tv.mode == variable
}

// IsValue reports whether the expression has a value.
func (tv TypeAndValue) IsValue() bool {
	return tv.mode == constant_ || tv.mode == variable || tv.mode == value
}

func (info *Info) init() {
	if info.Types == nil {
		info.Types = make(map[syntax.Expr]TypeAndValue)
	}
	if info.Defs == nil {
		info.Defs = make(map[*syntax.Name]types.Object)
	}
	if info.Uses == nil {
		info.Uses = make(map[*syntax.Name]types.Object)
	}
	if info.Scopes == nil {
		info.Scopes = make(map[syntax.Node]*types.Scope)
	}
	if info.Plans == nil {
		info.Plans = make(map[syntax.Expr]*Plan)
	}
	if info.Conversions == nil {
		info.Conversions = make(map[syntax.Expr]Conversion)
	}
	if info.Dispatch == nil {
		info.Dispatch = make(map[*syntax.CallExpr]Variant)
	}
}

// Program is a checked file ready to run.
type Program struct {
	File  *syntax.File
	Info  *Info
	Scope *types.Scope // package scope

	conf   *Config
	funcs  map[*types.FuncObj]*syntax.FuncDecl
	byName map[string]*types.FuncObj
}

// Func returns the source function with the given name, or nil.
func (p *Program) Func(name string) *types.FuncObj {
	return p.byName[name]
}

// Plans returns the accepted plans in source order.
func (p *Program) Plans() []*Plan {
	var list []*Plan
	for _, pl := range p.Info.Plans {
		list = append(list, pl)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Pos.Before(list[j].Pos)
	})
	return list
}

// Config returns the configuration the program was checked with.
func (p *Program) Config() *Config {
	return p.conf
}

// NewMachine returns an evaluator for p running against m. Heap blocks
// requested by host operations come from alloc; if alloc is nil an Arena
// over m is used.
func (p *Program) NewMachine(m *mem.Memory, alloc mem.Allocator) *Machine {
	if alloc == nil {
		alloc = mem.NewArena(m)
	}
	return newMachine(p, m, alloc)
}

// Check type-checks a parsed file, builds and validates the plan of every
// deferral site, and returns the program. It returns the first error
// encountered, if any.
func Check(filename string, file *syntax.File, conf *Config, info *Info) (*Program, error) {
	if conf == nil {
		conf = &Config{}
	}
	if conf.Sizes == nil {
		conf.Sizes = types.DefaultSizes
	}
	if info == nil {
		info = &Info{}
	}
	info.init()

	c := &Checker{
		conf:     conf,
		info:     info,
		filename: filename,
		funcs:    make(map[*types.FuncObj]*syntax.FuncDecl),
		vars:     make(map[*types.Var]*varState),
		fx:       make(map[*types.FuncObj]*funcFacts),
		planOf:   make(map[syntax.Expr]*Plan),
	}

	c.checkFile(file)

	prog := &Program{
		File:   file,
		Info:   info,
		Scope:  c.pkg,
		conf:   conf,
		funcs:  c.funcs,
		byName: make(map[string]*types.FuncObj),
	}
	for fn := range c.funcs {
		if fn.Signature() != nil && fn.Signature().Recv() == nil {
			prog.byName[fn.Name()] = fn
		}
	}

	if c.errors > 0 {
		return prog, c.first
	}
	return prog, nil
}
