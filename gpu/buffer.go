package gpu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrBufferMapped is returned when a mapped buffer is used by the device or
// mapped a second time.
var ErrBufferMapped = errors.New("gpu: buffer is mapped")

// WordSize is the size in bytes of one buffer element.
const WordSize = 4

// Usage declares how a buffer may be used.
type Usage uint32

const (
	UsageStorage Usage = 1 << iota
	UsageCopySrc
	UsageCopyDst
	UsageMapRead
	UsageVertex
)

// Has reports whether all bits of other are set.
func (u Usage) Has(other Usage) bool { return u&other == other }

// BufferDescriptor describes a buffer to create. Size is in bytes.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage Usage
}

// Buffer is device memory of 32-bit words. Programs reach buffers through
// kernel bindings; the host reads them through a mapped staging buffer.
type Buffer struct {
	label  string
	usage  Usage
	data   []uint32
	mapped atomic.Bool
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	if desc.Size%WordSize != 0 {
		return nil, fmt.Errorf("gpu: buffer %q: size %d is not a multiple of %d", desc.Label, desc.Size, WordSize)
	}
	if desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("gpu: buffer %q: size %d exceeds limit %d", desc.Label, desc.Size, d.limits.MaxBufferSize)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("gpu: buffer %q: no usage", desc.Label)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return &Buffer{
		label: desc.Label,
		usage: desc.Usage,
		data:  make([]uint32, desc.Size/WordSize),
	}, nil
}

// CreateBufferInit allocates a buffer holding a copy of words.
func (d *Device) CreateBufferInit(label string, usage Usage, words []uint32) (*Buffer, error) {
	b, err := d.CreateBuffer(BufferDescriptor{
		Label: label,
		Size:  uint64(len(words)) * WordSize,
		Usage: usage,
	})
	if err != nil {
		return nil, err
	}
	copy(b.data, words)
	return b, nil
}

// Label returns the buffer label.
func (b *Buffer) Label() string { return b.label }

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() Usage { return b.usage }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.data)) * WordSize }

// Len returns the number of words.
func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) U32(i uint32) uint32       { return b.data[i] }
func (b *Buffer) SetU32(i uint32, v uint32) { b.data[i] = v }

func (b *Buffer) F32(i uint32) float32 { return math.Float32frombits(b.data[i]) }

func (b *Buffer) SetF32(i uint32, v float32) { b.data[i] = math.Float32bits(v) }

// Vec4 reads the i-th vec4 (words 4i..4i+3).
func (b *Buffer) Vec4(i uint32) mgl32.Vec4 {
	w := b.data[i*4 : i*4+4 : i*4+4]
	return mgl32.Vec4{
		math.Float32frombits(w[0]),
		math.Float32frombits(w[1]),
		math.Float32frombits(w[2]),
		math.Float32frombits(w[3]),
	}
}

// SetVec4 writes the i-th vec4.
func (b *Buffer) SetVec4(i uint32, v mgl32.Vec4) {
	w := b.data[i*4 : i*4+4 : i*4+4]
	w[0] = math.Float32bits(v[0])
	w[1] = math.Float32bits(v[1])
	w[2] = math.Float32bits(v[2])
	w[3] = math.Float32bits(v[3])
}

// AtomicAddU32 adds delta to word i and returns the previous value.
func (b *Buffer) AtomicAddU32(i uint32, delta uint32) uint32 {
	return atomic.AddUint32(&b.data[i], delta) - delta
}

// ReadView is the read-only face of a buffer handed to programs through a
// read-only binding.
type ReadView struct {
	b *Buffer
}

func (v ReadView) Len() int                  { return len(v.b.data) }
func (v ReadView) U32(i uint32) uint32       { return v.b.data[i] }
func (v ReadView) F32(i uint32) float32      { return v.b.F32(i) }
func (v ReadView) Vec4(i uint32) mgl32.Vec4  { return v.b.Vec4(i) }
func (v ReadView) Label() string             { return v.b.label }

// WithMapped maps a MapRead buffer once all previously submitted work has
// completed, calls fn with its contents and unmaps it, whatever fn returns.
// The slice passed to fn must not be retained.
func (b *Buffer) WithMapped(ctx context.Context, q *Queue, fn func(words []uint32) error) error {
	if !b.usage.Has(UsageMapRead) {
		return fmt.Errorf("gpu: buffer %q: map requires MapRead usage", b.label)
	}
	if err := q.WaitIdle(ctx); err != nil {
		return fmt.Errorf("mapping %q: %w", b.label, err)
	}
	if !b.mapped.CompareAndSwap(false, true) {
		return fmt.Errorf("mapping %q: %w", b.label, ErrBufferMapped)
	}
	defer b.mapped.Store(false)

	return fn(b.data)
}
