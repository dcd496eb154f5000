package inplace

import (
	"github.com/you-not-fish/emplace/internal/types"
)

// LayoutOfDirect returns the layout of a constructed value. An unsized
// value uses its element count.
func LayoutOfDirect(sizes *types.Sizes, obj Object) types.Layout {
	return sizes.LayoutUnsized(obj.Type, obj.Len)
}

// LayoutOfDeferred returns the layout of the value dv will construct,
// not that of its captures. A destination of exactly this layout is
// enough to materialize dv.
func LayoutOfDeferred(dv *DeferredValue) types.Layout {
	return dv.mc.sizes.LayoutUnsized(dv.typ, dv.len)
}

// LayoutOfDual returns the layout of whichever form d has.
func LayoutOfDual(sizes *types.Sizes, d Dual) types.Layout {
	switch d := d.(type) {
	case *Direct:
		return LayoutOfDirect(sizes, d.obj)
	case *DeferredValue:
		return LayoutOfDeferred(d)
	}
	return sizes.LayoutUnsized(d.Type(), d.Len())
}

// EnvLayout returns the storage the captures of dv occupy, which is
// independent of the layout of the value itself.
func EnvLayout(dv *DeferredValue) types.Layout {
	var l types.Layout
	l.Align = 1
	for _, b := range dv.env {
		l.Size = types.AlignUp(l.Size, b.layout.Align) + b.layout.Size
		l.Align = max(l.Align, b.layout.Align)
	}
	return l
}
