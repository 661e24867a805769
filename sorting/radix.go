// Package sorting implements a device radix sort of uint32 keys carrying
// uint32 values.
//
// Each 8-bit digit, least significant first, takes three dispatches:
//
//   - count: digit histogram over all keys, plus one histogram per workgroup
//   - prescan: exclusive scan of the 256 bucket counters in one workgroup,
//     then per-workgroup bucket offsets derived from it
//   - reorder: every element claims the next slot of its bucket within its
//     workgroup's range and is written to the output buffers
//
// The outputs are copied back over the inputs before the next digit. Elements
// of one workgroup claim slots in index order and workgroup ranges are laid
// out in workgroup order, so each digit pass is stable and the whole sort is
// correct.
package sorting

import (
	"fmt"

	"github.com/pthm-cable/sphfluid/gpu"
)

const (
	// BlockBits is the digit width in bits.
	BlockBits = 8
	// BucketCount is the number of buckets per digit.
	BucketCount = 1 << BlockBits
	// DigitMask extracts one digit after shifting.
	DigitMask = BucketCount - 1
	// PassCount is the number of digit passes for 32-bit keys.
	PassCount = (32 + BlockBits - 1) / BlockBits
	// WorkgroupSize is the invocation count of the count and reorder kernels.
	WorkgroupSize = 256
)

// Digit returns the digit of key examined by pass.
func Digit(key uint32, pass uint32) uint32 {
	return (key >> (pass * BlockBits)) & DigitMask
}

// RadixSort sorts n (key, value) pairs held in two device buffers in place.
type RadixSort struct {
	n         uint32
	numBlocks uint32

	keys, vals       *gpu.Buffer
	outKeys, outVals *gpu.Buffer
	counters         *gpu.Buffer
	blocks           *gpu.Buffer

	count   *gpu.Kernel
	prescan *gpu.Kernel
	reorder *gpu.Kernel
}

// New creates a sort over the first n words of keys and vals. Both buffers
// need Storage and CopyDst usage. A sort with n = 0 encodes nothing.
func New(dev *gpu.Device, keys, vals *gpu.Buffer, n uint32) (*RadixSort, error) {
	s := &RadixSort{n: n, keys: keys, vals: vals}
	if n == 0 {
		return s, nil
	}

	for _, b := range []*gpu.Buffer{keys, vals} {
		if uint32(b.Len()) < n {
			return nil, fmt.Errorf("radix sort: buffer %q holds %d words, need %d", b.Label(), b.Len(), n)
		}
		if !b.Usage().Has(gpu.UsageStorage | gpu.UsageCopyDst) {
			return nil, fmt.Errorf("radix sort: buffer %q needs Storage and CopyDst usage", b.Label())
		}
	}

	s.numBlocks = gpu.WorkgroupCount(n, WorkgroupSize)

	var err error
	scratch := gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst
	if s.outKeys, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "radix sort keys out", Size: uint64(n) * gpu.WordSize, Usage: scratch}); err != nil {
		return nil, fmt.Errorf("creating radix sort buffers: %w", err)
	}
	if s.outVals, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "radix sort values out", Size: uint64(n) * gpu.WordSize, Usage: scratch}); err != nil {
		return nil, fmt.Errorf("creating radix sort buffers: %w", err)
	}
	if s.counters, err = NewCounterBuffer(dev); err != nil {
		return nil, fmt.Errorf("creating radix sort buffers: %w", err)
	}
	if s.blocks, err = NewBlockBuffer(dev, s.numBlocks); err != nil {
		return nil, fmt.Errorf("creating radix sort buffers: %w", err)
	}

	if s.count, err = NewCountKernel(dev, keys, s.counters, s.blocks, n); err != nil {
		return nil, err
	}
	if s.prescan, err = NewPrescanKernel(dev, s.counters, s.blocks, s.numBlocks); err != nil {
		return nil, err
	}
	if s.reorder, err = newReorderKernel(dev, keys, vals, s.blocks, s.outKeys, s.outVals, n); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of sorted pairs.
func (s *RadixSort) Len() uint32 { return s.n }

// Encode appends every pass of the sort to enc.
func (s *RadixSort) Encode(enc *gpu.Encoder) {
	if s.n == 0 {
		return
	}
	size := uint64(s.n) * gpu.WordSize
	for pass := uint32(0); pass < PassCount; pass++ {
		enc.ClearBuffer(s.counters)
		enc.ClearBuffer(s.blocks)
		s.count.Execute(enc, pass)
		s.prescan.Execute(enc)
		s.reorder.Execute(enc, pass)
		enc.CopyBufferToBuffer(s.outKeys, 0, s.keys, 0, size)
		enc.CopyBufferToBuffer(s.outVals, 0, s.vals, 0, size)
	}
}

// NewCounterBuffer allocates the per-bucket counter array.
func NewCounterBuffer(dev *gpu.Device) (*gpu.Buffer, error) {
	return dev.CreateBuffer(gpu.BufferDescriptor{
		Label: "radix sort counters",
		Size:  BucketCount * gpu.WordSize,
		Usage: gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst,
	})
}

// NewBlockBuffer allocates per-workgroup bucket counters for numBlocks
// workgroups, row-major by workgroup.
func NewBlockBuffer(dev *gpu.Device, numBlocks uint32) (*gpu.Buffer, error) {
	return dev.CreateBuffer(gpu.BufferDescriptor{
		Label: "radix sort block counters",
		Size:  uint64(numBlocks) * BucketCount * gpu.WordSize,
		Usage: gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst,
	})
}
