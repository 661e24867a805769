package sorting

import (
	"fmt"

	"github.com/pthm-cable/sphfluid/gpu"
)

// NewCountKernel builds the counting pass over n keys. The pass index is the
// only push constant. counters must be cleared before each pass; blocks may
// be nil when per-workgroup histograms are not needed.
//
// Bindings: 0 keys (read), 1 counters (read_write), 2 blocks (read_write).
func NewCountKernel(dev *gpu.Device, keys, counters, blocks *gpu.Buffer, n uint32) (*gpu.Kernel, error) {
	numBlocks := gpu.WorkgroupCount(n, WorkgroupSize)
	bindings := []gpu.Binding{
		{Slot: 0, Buffer: keys, Access: gpu.ReadOnly},
		{Slot: 1, Buffer: counters, Access: gpu.ReadWrite},
	}
	withBlocks := blocks != nil
	if withBlocks {
		if uint32(blocks.Len()) < numBlocks*BucketCount {
			return nil, fmt.Errorf("radix sort: block counters hold %d words, need %d", blocks.Len(), numBlocks*BucketCount)
		}
		bindings = append(bindings, gpu.Binding{Slot: 2, Buffer: blocks, Access: gpu.ReadWrite})
	}

	k, err := dev.NewKernel(gpu.KernelDescriptor{
		Label:             "radix count",
		Bindings:          bindings,
		PushConstantWords: 1,
		WorkgroupSize:     WorkgroupSize,
		Workgroups:        [3]uint32{numBlocks, 1, 1},
		Program: func(inv *gpu.Invocation) {
			keys := inv.Load(0)
			counters := inv.Store(1)
			pass := inv.PushU32(0)

			if !withBlocks {
				inv.ForEach(n, func(gid uint32) {
					counters.AtomicAddU32(Digit(keys.U32(gid), pass), 1)
				})
				return
			}

			blocks := inv.Store(2)
			row := inv.LinearWorkgroup() * BucketCount
			inv.ForEach(n, func(gid uint32) {
				d := Digit(keys.U32(gid), pass)
				counters.AtomicAddU32(d, 1)
				blocks.AtomicAddU32(row+d, 1)
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating radix count kernel: %w", err)
	}
	return k, nil
}

// NewPrescanKernel builds the prefix-scan pass: one workgroup of BucketCount
// invocations turns counters into exclusive prefix sums in place. When
// numBlocks > 0 it also rewrites blocks so that blocks[b][d] is the first
// output slot of digit d for workgroup b.
//
// Bindings: 0 counters (read_write), 1 blocks (read_write).
func NewPrescanKernel(dev *gpu.Device, counters, blocks *gpu.Buffer, numBlocks uint32) (*gpu.Kernel, error) {
	bindings := []gpu.Binding{{Slot: 0, Buffer: counters, Access: gpu.ReadWrite}}
	if numBlocks > 0 {
		if blocks == nil || uint32(blocks.Len()) < numBlocks*BucketCount {
			return nil, fmt.Errorf("radix sort: block counters too small for %d workgroups", numBlocks)
		}
		bindings = append(bindings, gpu.Binding{Slot: 1, Buffer: blocks, Access: gpu.ReadWrite})
	}

	k, err := dev.NewKernel(gpu.KernelDescriptor{
		Label:         "radix prescan",
		Bindings:      bindings,
		WorkgroupSize: BucketCount,
		Workgroups:    [3]uint32{1, 1, 1},
		Program: func(inv *gpu.Invocation) {
			counters := inv.Store(0)

			// Workgroup shared memory. Each loop over thid is one phase
			// between barriers.
			var temp [BucketCount]uint32
			for thid := uint32(0); thid < BucketCount; thid++ {
				temp[thid] = counters.U32(thid)
			}
			blellochScan(&temp)
			for thid := uint32(0); thid < BucketCount; thid++ {
				counters.SetU32(thid, temp[thid])
			}

			if numBlocks == 0 {
				return
			}
			blocks := inv.Store(1)
			for d := uint32(0); d < BucketCount; d++ {
				next := temp[d]
				for b := uint32(0); b < numBlocks; b++ {
					i := b*BucketCount + d
					c := blocks.U32(i)
					blocks.SetU32(i, next)
					next += c
				}
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating radix prescan kernel: %w", err)
	}
	return k, nil
}

// blellochScan turns temp into its exclusive prefix sum with the work
// efficient up-sweep / down-sweep scan.
func blellochScan(temp *[BucketCount]uint32) {
	const n = BucketCount

	offset := uint32(1)
	for d := uint32(n >> 1); d > 0; d >>= 1 {
		for thid := uint32(0); thid < d; thid++ {
			ai := offset*(2*thid+1) - 1
			bi := offset*(2*thid+2) - 1
			temp[bi] += temp[ai]
		}
		offset <<= 1
	}

	temp[n-1] = 0

	for d := uint32(1); d < n; d <<= 1 {
		offset >>= 1
		for thid := uint32(0); thid < d; thid++ {
			ai := offset*(2*thid+1) - 1
			bi := offset*(2*thid+2) - 1
			t := temp[ai]
			temp[ai] = temp[bi]
			temp[bi] += t
		}
	}
}

// newReorderKernel builds the scatter pass.
//
// Bindings: 0 keys (read), 1 values (read), 2 block offsets (read_write),
// 3 keys out (read_write), 4 values out (read_write).
func newReorderKernel(dev *gpu.Device, keys, vals, blocks, outKeys, outVals *gpu.Buffer, n uint32) (*gpu.Kernel, error) {
	k, err := dev.NewKernel(gpu.KernelDescriptor{
		Label: "radix reorder",
		Bindings: []gpu.Binding{
			{Slot: 0, Buffer: keys, Access: gpu.ReadOnly},
			{Slot: 1, Buffer: vals, Access: gpu.ReadOnly},
			{Slot: 2, Buffer: blocks, Access: gpu.ReadWrite},
			{Slot: 3, Buffer: outKeys, Access: gpu.ReadWrite},
			{Slot: 4, Buffer: outVals, Access: gpu.ReadWrite},
		},
		PushConstantWords: 1,
		WorkgroupSize:     WorkgroupSize,
		Workgroups:        [3]uint32{gpu.WorkgroupCount(n, WorkgroupSize), 1, 1},
		Program: func(inv *gpu.Invocation) {
			keys := inv.Load(0)
			vals := inv.Load(1)
			blocks := inv.Store(2)
			outKeys := inv.Store(3)
			outVals := inv.Store(4)
			pass := inv.PushU32(0)

			row := inv.LinearWorkgroup() * BucketCount
			inv.ForEach(n, func(gid uint32) {
				key := keys.U32(gid)
				slot := blocks.AtomicAddU32(row+Digit(key, pass), 1)
				outKeys.SetU32(slot, key)
				outVals.SetU32(slot, vals.U32(gid))
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating radix reorder kernel: %w", err)
	}
	return k, nil
}
