package inplace

import (
	"errors"
	"fmt"

	"github.com/you-not-fish/emplace/internal/mem"
	"github.com/you-not-fish/emplace/internal/rtabi"
	"github.com/you-not-fish/emplace/internal/types"
)

// Materialize writes the value dv constructs into dest in m, consuming
// dv. A misaligned or out of bounds destination is reported without
// consuming dv, so the caller can still drop it.
func Materialize(dv *DeferredValue, m *mem.Memory, dest mem.Addr) error {
	if m != dv.mc.mem {
		return ErrForeignMemory
	}
	return dv.MaterializeInto(dest)
}

// MaterializeInto implements Dual.
func (dv *DeferredValue) MaterializeInto(dest mem.Addr) error {
	if dv.State() != Pending {
		return ErrConsumed
	}
	if err := dv.mc.checkDest(dest, dv.typ, dv.len); err != nil {
		return err
	}
	err, ok := dv.gate.TryResume(action{kind: actMaterialize, dest: dest})
	if !ok {
		return ErrConsumed
	}
	return err
}

// checkDest reports whether dest can hold a value of type T with n tail
// elements.
func (m *Machine) checkDest(dest mem.Addr, T types.Type, n int64) error {
	l := m.sizes.LayoutUnsized(T, n)
	if int64(dest)%l.Align != 0 {
		return fmt.Errorf("%w: %#x for %s (align %d)", ErrMisaligned, int64(dest), T, l.Align)
	}
	if !m.mem.InBounds(dest, l.Size) {
		return fmt.Errorf("%w: %#x for %s (size %d)", ErrOutOfBounds, int64(dest), T, l.Size)
	}
	return nil
}

// run executes the initializer ops in order. Captures moved into the
// value are owned by it afterwards; a block drops the captures it does
// not move. The environment is freed in every case.
func (dv *DeferredValue) run(dest mem.Addr) error {
	m := dv.mc
	defer dv.free()
	for _, op := range dv.ops {
		if err := dv.exec(op, dest+mem.Addr(op.offset())); err != nil {
			return m.abort(err)
		}
	}
	return nil
}

func (dv *DeferredValue) exec(op Op, dest mem.Addr) error {
	m := dv.mc
	switch op := op.(type) {
	case *StoreOp:
		b, err := m.mem.Bytes(dv.slots[op.ID], m.sizes.Sizeof(op.Type))
		if err != nil {
			return err
		}
		return m.mem.Write(dest, b)

	case *RepeatOp:
		size := m.sizes.Sizeof(op.Elem)
		b, err := m.mem.Bytes(dv.slots[op.ID], size)
		if err != nil {
			return err
		}
		for i := int64(0); i < op.Count.N; i++ {
			if err := m.mem.Write(dest+mem.Addr(i*size), b); err != nil {
				return err
			}
		}
		return nil

	case *ZeroOp:
		return m.mem.Zero(dest, op.Size)

	case *ExecOp:
		return m.execBlock(dv, op, dest)
	}
	return fmt.Errorf("internal error: %T in deferred value", op)
}

// execBlock runs a deferred block in a frame of its own. Owned captures
// become the storage of their variables; borrowed ones are followed to
// the variable they point at.
func (m *Machine) execBlock(dv *DeferredValue, op *ExecOp, dest mem.Addr) error {
	fr := m.newFrame(dv.fn)
	for _, b := range op.Binds {
		slot := dv.slots[b.ID]
		if b.Borrowed {
			p, err := m.mem.Load(slot, rtabi.SizePtr)
			if err != nil {
				return err
			}
			fr.slots[b.Var] = mem.Addr(p)
			continue
		}
		fr.slots[b.Var] = slot
		fr.owned = append(fr.owned, b.Var)
	}

	saved := m.frame
	m.frame = fr
	body := op.Block.Body
	err := m.stmts(body.Init())
	if err == nil {
		err = m.evalInto(body.Tail(), dest, op.Type)
	}
	m.frame = saved
	return errors.Join(err, m.exitFrame(fr))
}

// abort hands an initializer failure to the configured abort handler.
func (m *Machine) abort(err error) error {
	if errors.Is(err, ErrAborted) {
		return err
	}
	if m.conf.Abort == nil {
		panic(err)
	}
	m.conf.Abort(err)
	return fmt.Errorf("%w: %w", ErrAborted, err)
}
