package inplace

import (
	"fmt"
	"strings"

	"github.com/you-not-fish/emplace/internal/rtabi"
	"github.com/you-not-fish/emplace/internal/types"
)

// Mode says how a capture holds its value.
type Mode int

const (
	// Owned captures hold the value and are responsible for dropping it.
	Owned Mode = iota

	// Borrowed captures hold the address of a variable that outlives the
	// deferred value.
	Borrowed
)

func (m Mode) String() string {
	if m == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// Decl is one captured value of a deferred value's environment.
type Decl struct {
	ID     string
	Type   types.Type
	Mode   Mode
	Offset int64 // offset in the environment, set by Layout
}

// CaptureSet is the ordered list of values a deferred value has captured.
// IDs are unique; Add renames on collision.
type CaptureSet struct {
	decls []*Decl
	index map[string]int
}

// NewCaptureSet returns an empty capture set.
func NewCaptureSet() *CaptureSet {
	return &CaptureSet{index: make(map[string]int)}
}

// Add appends a capture named after hint and returns its ID. If hint is
// taken, the ID is hint#1, hint#2, and so on.
func (s *CaptureSet) Add(hint string, T types.Type, mode Mode) string {
	if hint == "" {
		hint = "v"
	}
	id := hint
	for n := 1; ; n++ {
		if _, taken := s.index[id]; !taken {
			break
		}
		id = fmt.Sprintf("%s#%d", baseID(hint), n)
	}
	s.index[id] = len(s.decls)
	s.decls = append(s.decls, &Decl{ID: id, Type: T, Mode: mode})
	return id
}

// baseID strips a #n suffix so renamed IDs do not grow a chain of
// suffixes.
func baseID(id string) string {
	if i := strings.LastIndexByte(id, '#'); i > 0 {
		return id[:i]
	}
	return id
}

// Lookup returns the capture with the given ID, or nil.
func (s *CaptureSet) Lookup(id string) *Decl {
	if i, ok := s.index[id]; ok {
		return s.decls[i]
	}
	return nil
}

// Decls returns the captures in order.
func (s *CaptureSet) Decls() []*Decl { return s.decls }

// Len returns the number of captures.
func (s *CaptureSet) Len() int { return len(s.decls) }

// Clone returns an independent copy of s.
func (s *CaptureSet) Clone() *CaptureSet {
	t := NewCaptureSet()
	for _, d := range s.decls {
		dd := *d
		t.index[dd.ID] = len(t.decls)
		t.decls = append(t.decls, &dd)
	}
	return t
}

// Layout assigns each capture its offset in the environment and returns
// the environment's layout. Owned captures take the layout of their type,
// borrowed ones a pointer. A captured deferred value occupies a handle.
func (s *CaptureSet) Layout(sizes *types.Sizes) types.Layout {
	var off int64
	align := int64(1)
	for _, d := range s.decls {
		l := d.storage(sizes)
		off = types.AlignUp(off, l.Align)
		d.Offset = off
		off += l.Size
		align = max(align, l.Align)
	}
	return types.Layout{Size: types.AlignUp(off, align), Align: align}
}

// storage returns the layout of the capture's slot in the environment.
func (d *Decl) storage(sizes *types.Sizes) types.Layout {
	if d.Mode == Borrowed {
		return types.Layout{Size: rtabi.SizePtr, Align: rtabi.AlignPtr}
	}
	return sizes.Layout(d.Type)
}

// String renders the set as "x: i32, p: &Point, ...".
func (s *CaptureSet) String() string {
	var b strings.Builder
	for i, d := range s.decls {
		if i > 0 {
			b.WriteString(", ")
		}
		if d.Mode == Borrowed {
			fmt.Fprintf(&b, "%s: &%s", d.ID, d.Type)
		} else {
			fmt.Fprintf(&b, "%s: %s", d.ID, d.Type)
		}
	}
	return b.String()
}
