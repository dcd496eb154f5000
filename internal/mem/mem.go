// Package mem is the byte-addressed reference memory that deferred values
// materialize into. Address 0 is never valid. The low part of the address
// space is a stack of temporaries and local slots; the rest is handed out
// by an Allocator.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"code.hybscloud.com/atomix"
	"github.com/you-not-fish/emplace/internal/rtabi"
	"github.com/you-not-fish/emplace/internal/types"
)

// Addr is a byte address in a Memory.
type Addr int64

// Null is the address no allocation ever returns.
const Null Addr = rtabi.NullAddr

var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrFault is returned for an access outside the memory.
	ErrFault = errors.New("memory fault")

	// ErrStackOverflow is returned when the stack region is exhausted.
	ErrStackOverflow = errors.New("stack overflow")
)

// Stats counts memory traffic. Copies counts whole-value copies made by
// Copy; Temps counts stack temporaries pushed with PushTemp.
type Stats struct {
	Stores      uint32
	Copies      uint32
	BytesCopied uint32
	Temps       uint32
}

// Memory is a flat little-endian byte array split into a stack region
// [StackBase, HeapBase) and a heap region [HeapBase, Size).
type Memory struct {
	buf      []byte
	heapBase Addr
	sp       Addr // next free stack byte

	stores      atomix.Uint32
	copies      atomix.Uint32
	bytesCopied atomix.Uint32
	temps       atomix.Uint32
}

// StackBase is the first stack address. Everything below it is reserved
// so that Null is never a valid object address.
const StackBase Addr = rtabi.MaxAlign

// New creates a Memory with the given stack and heap capacities in bytes.
func New(stackSize, heapSize int64) *Memory {
	stackSize = types.AlignUp(stackSize, rtabi.MaxAlign)
	heapBase := StackBase + Addr(stackSize)
	return &Memory{
		buf:      make([]byte, int64(heapBase)+heapSize),
		heapBase: heapBase,
		sp:       StackBase,
	}
}

// Size returns the total size of the address space.
func (m *Memory) Size() int64 { return int64(len(m.buf)) }

// HeapBase returns the first heap address.
func (m *Memory) HeapBase() Addr { return m.heapBase }

// Stats returns a snapshot of the traffic counters.
func (m *Memory) Stats() Stats {
	return Stats{
		Stores:      m.stores.Load(),
		Copies:      m.copies.Load(),
		BytesCopied: m.bytesCopied.Load(),
		Temps:       m.temps.Load(),
	}
}

// InBounds reports whether [a, a+n) lies inside the memory and does not
// touch the reserved null page.
func (m *Memory) InBounds(a Addr, n int64) bool {
	return a >= StackBase && n >= 0 && int64(a)+n <= int64(len(m.buf))
}

func (m *Memory) check(a Addr, n int64) error {
	if !m.InBounds(a, n) {
		return fmt.Errorf("%w: [%#x, %#x)", ErrFault, int64(a), int64(a)+n)
	}
	return nil
}

// Bytes returns the n bytes at a. The slice aliases the memory.
func (m *Memory) Bytes(a Addr, n int64) ([]byte, error) {
	if err := m.check(a, n); err != nil {
		return nil, err
	}
	return m.buf[a : int64(a)+n], nil
}

// Store writes the low size bytes of bits at a in little-endian order.
func (m *Memory) Store(a Addr, size int64, bits uint64) error {
	if err := m.check(a, size); err != nil {
		return err
	}
	b := m.buf[a : int64(a)+size]
	switch size {
	case 1:
		b[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(b, bits)
	default:
		return fmt.Errorf("store of %d bytes", size)
	}
	m.stores.Add(1)
	return nil
}

// Write stores b at a. It counts as one store whatever the length.
func (m *Memory) Write(a Addr, b []byte) error {
	if err := m.check(a, int64(len(b))); err != nil {
		return err
	}
	copy(m.buf[a:], b)
	m.stores.Add(1)
	return nil
}

// Load reads size bytes at a as a little-endian unsigned integer.
func (m *Memory) Load(a Addr, size int64) (uint64, error) {
	if err := m.check(a, size); err != nil {
		return 0, err
	}
	b := m.buf[a : int64(a)+size]
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, fmt.Errorf("load of %d bytes", size)
}

// Copy copies n bytes from src to dst. Each call counts as one value copy.
func (m *Memory) Copy(dst, src Addr, n int64) error {
	if err := m.check(src, n); err != nil {
		return err
	}
	if err := m.check(dst, n); err != nil {
		return err
	}
	copy(m.buf[dst:int64(dst)+n], m.buf[src:int64(src)+n])
	m.copies.Add(1)
	m.bytesCopied.Add(uint32(n))
	return nil
}

// Zero clears n bytes at a.
func (m *Memory) Zero(a Addr, n int64) error {
	if err := m.check(a, n); err != nil {
		return err
	}
	clear(m.buf[a : int64(a)+n])
	return nil
}

// ----------------------------------------------------------------------------
// Stack

// Mark is a stack position returned by SP and restored by Release.
type Mark Addr

// SP returns the current stack position.
func (m *Memory) SP() Mark { return Mark(m.sp) }

// Push reserves stack space for a value with layout l and returns its
// address. Local variable slots are allocated this way.
func (m *Memory) Push(l types.Layout) (Addr, error) {
	a := Addr(types.AlignUp(int64(m.sp), max(l.Align, 1)))
	if int64(a)+l.Size > int64(m.heapBase) {
		return Null, ErrStackOverflow
	}
	m.sp = a + Addr(l.Size)
	return a, nil
}

// PushTemp is Push for an intermediate value that will be copied to its
// final location afterwards. It is counted in Stats.Temps.
func (m *Memory) PushTemp(l types.Layout) (Addr, error) {
	a, err := m.Push(l)
	if err == nil {
		m.temps.Add(1)
	}
	return a, err
}

// Release pops the stack back to mark.
func (m *Memory) Release(mark Mark) {
	if Addr(mark) >= StackBase && Addr(mark) <= m.sp {
		m.sp = Addr(mark)
	}
}
