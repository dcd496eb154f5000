package syntax

import "fmt"

// Pos is a source position. Columns count bytes. The zero Pos is
// invalid and prints as "?".
type Pos struct {
	filename string
	line     uint32
	col      uint32
}

// NewPos returns the 1-based position line:col in filename.
func NewPos(filename string, line, col uint32) Pos {
	return Pos{filename: filename, line: line, col: col}
}

func (p Pos) String() string {
	switch {
	case !p.IsValid():
		return "?"
	case p.filename == "":
		return fmt.Sprintf("%d:%d", p.line, p.col)
	}
	return fmt.Sprintf("%s:%d:%d", p.filename, p.line, p.col)
}

func (p Pos) IsValid() bool    { return p.line > 0 }
func (p Pos) Line() uint32     { return p.line }
func (p Pos) Col() uint32      { return p.col }
func (p Pos) Filename() string { return p.filename }

// Before reports whether p occurs before q. Both must be in the same
// file. Plans and diagnostics are ordered this way.
func (p Pos) Before(q Pos) bool {
	return p.line < q.line || p.line == q.line && p.col < q.col
}
