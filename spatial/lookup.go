package spatial

import (
	"fmt"

	"github.com/pthm-cable/sphfluid/gpu"
	"github.com/pthm-cable/sphfluid/sorting"
)

// WorkgroupSize is the invocation count of the fill and build-index kernels.
const WorkgroupSize = 256

// Lookup rebuilds the sorted (key, value) table and the cell start index from
// a position buffer.
type Lookup struct {
	grid Grid
	n    uint32

	keys  *gpu.Buffer
	vals  *gpu.Buffer
	index *gpu.Buffer

	sort  *sorting.RadixSort
	fill  *gpu.Kernel
	build *gpu.Kernel
}

// New creates a lookup over positions, a buffer of vec4 (one per particle).
func New(dev *gpu.Device, grid Grid, positions *gpu.Buffer) (*Lookup, error) {
	n := uint32(positions.Len() / 4)
	if n == 0 {
		return nil, fmt.Errorf("spatial: position buffer %q holds no particles", positions.Label())
	}
	if grid.CellTotal() == 0 {
		return nil, fmt.Errorf("spatial: grid has no cells")
	}

	l := &Lookup{grid: grid, n: n}
	usage := gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst

	var err error
	if l.keys, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "spatial keys", Size: uint64(n) * gpu.WordSize, Usage: usage}); err != nil {
		return nil, fmt.Errorf("creating spatial lookup: %w", err)
	}
	if l.vals, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "spatial values", Size: uint64(n) * gpu.WordSize, Usage: usage}); err != nil {
		return nil, fmt.Errorf("creating spatial lookup: %w", err)
	}
	if l.index, err = dev.CreateBuffer(gpu.BufferDescriptor{Label: "spatial cell index", Size: uint64(grid.CellTotal()) * gpu.WordSize, Usage: usage}); err != nil {
		return nil, fmt.Errorf("creating spatial lookup: %w", err)
	}

	if l.sort, err = sorting.New(dev, l.keys, l.vals, n); err != nil {
		return nil, fmt.Errorf("creating spatial lookup: %w", err)
	}
	if l.fill, err = newFillKernel(dev, grid, positions, l.keys, l.vals, n); err != nil {
		return nil, err
	}
	if l.build, err = newBuildIndexKernel(dev, grid, l.keys, l.index, n); err != nil {
		return nil, err
	}
	return l, nil
}

// Encode appends fill, sort and build-index to enc.
func (l *Lookup) Encode(enc *gpu.Encoder) {
	l.fill.Execute(enc)
	l.sort.Encode(enc)
	l.build.Execute(enc)
}

// Grid returns the grid the lookup was built over.
func (l *Lookup) Grid() Grid { return l.grid }

// Len returns the particle count.
func (l *Lookup) Len() uint32 { return l.n }

// Keys returns the sorted cell keys.
func (l *Lookup) Keys() *gpu.Buffer { return l.keys }

// Values returns the particle indices in key order.
func (l *Lookup) Values() *gpu.Buffer { return l.vals }

// Index returns the cell start index.
func (l *Lookup) Index() *gpu.Buffer { return l.index }

// Bindings: 0 positions (read), 1 keys (read_write), 2 values (read_write).
func newFillKernel(dev *gpu.Device, grid Grid, positions, keys, vals *gpu.Buffer, n uint32) (*gpu.Kernel, error) {
	k, err := dev.NewKernel(gpu.KernelDescriptor{
		Label: "spatial fill",
		Bindings: []gpu.Binding{
			{Slot: 0, Buffer: positions, Access: gpu.ReadOnly},
			{Slot: 1, Buffer: keys, Access: gpu.ReadWrite},
			{Slot: 2, Buffer: vals, Access: gpu.ReadWrite},
		},
		WorkgroupSize: WorkgroupSize,
		Workgroups:    [3]uint32{gpu.WorkgroupCount(n, WorkgroupSize), 1, 1},
		Program: func(inv *gpu.Invocation) {
			pos := inv.Load(0)
			keys := inv.Store(1)
			vals := inv.Store(2)
			inv.ForEach(n, func(gid uint32) {
				keys.SetU32(gid, grid.Key(pos.Vec4(gid).Vec3()))
				vals.SetU32(gid, gid)
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating spatial fill kernel: %w", err)
	}
	return k, nil
}

// newBuildIndexKernel writes the cell start index from sorted keys. The thread
// at the first element of a run owns the cells after the previous run's key
// up to its own key; the last thread also owns every cell after its key.
//
// Bindings: 0 sorted keys (read), 1 cell index (read_write).
func newBuildIndexKernel(dev *gpu.Device, grid Grid, keys, index *gpu.Buffer, n uint32) (*gpu.Kernel, error) {
	total := grid.CellTotal()
	k, err := dev.NewKernel(gpu.KernelDescriptor{
		Label: "spatial build index",
		Bindings: []gpu.Binding{
			{Slot: 0, Buffer: keys, Access: gpu.ReadOnly},
			{Slot: 1, Buffer: index, Access: gpu.ReadWrite},
		},
		WorkgroupSize: WorkgroupSize,
		Workgroups:    [3]uint32{gpu.WorkgroupCount(n, WorkgroupSize), 1, 1},
		Program: func(inv *gpu.Invocation) {
			keys := inv.Load(0)
			index := inv.Store(1)
			inv.ForEach(n, func(gid uint32) {
				key := keys.U32(gid)
				if gid == 0 {
					for c := uint32(0); c <= key; c++ {
						index.SetU32(c, 0)
					}
				} else if prev := keys.U32(gid - 1); prev != key {
					for c := prev + 1; c <= key; c++ {
						index.SetU32(c, gid)
					}
				}
				if gid == n-1 {
					for c := key + 1; c < total; c++ {
						index.SetU32(c, n)
					}
				}
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating spatial build index kernel: %w", err)
	}
	return k, nil
}
