// Package rtabi defines the target data layout shared by the checker,
// the layout queries, and the reference memory model.
package rtabi

// Target configuration
const (
	// TargetName names the data layout below in diagnostics and -emit-layout.
	TargetName = "lp64-le"

	// LittleEndian is the byte order used for scalar stores.
	LittleEndian = true
)

// Scalar sizes in bytes
const (
	SizeBool = 1
	SizeI8   = 1
	SizeI16  = 2
	SizeI32  = 4
	SizeI64  = 8
	SizeF32  = 4
	SizeF64  = 8
	SizePtr  = 8 // borrowed pointer and deferred-value handle
)

// Scalar alignments in bytes
const (
	AlignBool = 1
	AlignI8   = 1
	AlignI16  = 2
	AlignI32  = 4
	AlignI64  = 8
	AlignF32  = 4
	AlignF64  = 8
	AlignPtr  = 8
)

// Unsized value metadata.
// A reference to an unsized value is a fat pointer { ptr, len }.
const (
	SizeFatPtr  = 16
	AlignFatPtr = 8
	SizeLen     = 8 // element count carried as size metadata
)

// Memory model constants
const (
	// NullAddr is never handed out by an allocator.
	NullAddr = 0

	// MaxAlign is the largest alignment any type may require.
	MaxAlign = 8
)
