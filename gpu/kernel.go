package gpu

import (
	"fmt"
	"math"
)

// Access is the access mode of a kernel binding.
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadWrite {
		return "read_write"
	}
	return "read"
}

// Binding attaches a buffer to a program slot.
type Binding struct {
	Slot   int
	Buffer *Buffer
	Access Access
}

// Program is the body of a compute kernel. It runs once per workgroup and
// iterates its local invocations itself, usually through Invocation.ForEach.
type Program func(inv *Invocation)

// KernelDescriptor describes a kernel to create.
type KernelDescriptor struct {
	Label             string
	Program           Program
	Bindings          []Binding
	PushConstantWords int
	WorkgroupSize     uint32    // 0 = Limits.MaxWorkgroupSize
	Workgroups        [3]uint32 // dispatch extent in workgroups
}

// Kernel binds a fixed set of buffers to one program with a fixed dispatch
// extent. It is the unit of work appended to an encoder.
type Kernel struct {
	label      string
	program    Program
	bindings   []Binding // indexed by slot
	pushWords  int
	wgSize     uint32
	workgroups [3]uint32
}

// WorkgroupCount returns how many workgroups of size cover n invocations.
func WorkgroupCount(n, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return (n + size - 1) / size
}

// NewKernel validates the descriptor and creates a kernel.
func (d *Device) NewKernel(desc KernelDescriptor) (*Kernel, error) {
	if desc.Program == nil {
		return nil, fmt.Errorf("gpu: kernel %q: no program", desc.Label)
	}

	wgSize := desc.WorkgroupSize
	if wgSize == 0 {
		wgSize = d.limits.MaxWorkgroupSize
	}
	if wgSize > d.limits.MaxWorkgroupSize {
		return nil, fmt.Errorf("gpu: kernel %q: workgroup size %d exceeds limit %d", desc.Label, wgSize, d.limits.MaxWorkgroupSize)
	}

	for axis, n := range desc.Workgroups {
		if n == 0 {
			return nil, fmt.Errorf("gpu: kernel %q: zero workgroups on axis %d", desc.Label, axis)
		}
		if n > d.limits.MaxWorkgroupsPerDimension {
			return nil, fmt.Errorf("gpu: kernel %q: %d workgroups on axis %d exceeds limit %d",
				desc.Label, n, axis, d.limits.MaxWorkgroupsPerDimension)
		}
	}
	total := uint64(desc.Workgroups[0]) * uint64(desc.Workgroups[1]) * uint64(desc.Workgroups[2])
	if total > math.MaxInt32 {
		return nil, fmt.Errorf("gpu: kernel %q: %d workgroups in total", desc.Label, total)
	}

	if desc.PushConstantWords < 0 || desc.PushConstantWords > d.limits.MaxPushConstantWords {
		return nil, fmt.Errorf("gpu: kernel %q: %d push constant words (limit %d)",
			desc.Label, desc.PushConstantWords, d.limits.MaxPushConstantWords)
	}

	if len(desc.Bindings) > d.limits.MaxBindings {
		return nil, fmt.Errorf("gpu: kernel %q: %d bindings (limit %d)", desc.Label, len(desc.Bindings), d.limits.MaxBindings)
	}
	bindings := make([]Binding, d.limits.MaxBindings)
	for _, b := range desc.Bindings {
		if b.Slot < 0 || b.Slot >= d.limits.MaxBindings {
			return nil, fmt.Errorf("gpu: kernel %q: binding slot %d out of range", desc.Label, b.Slot)
		}
		if bindings[b.Slot].Buffer != nil {
			return nil, fmt.Errorf("gpu: kernel %q: binding slot %d bound twice", desc.Label, b.Slot)
		}
		if b.Buffer == nil {
			return nil, fmt.Errorf("gpu: kernel %q: binding slot %d has no buffer", desc.Label, b.Slot)
		}
		if !b.Buffer.usage.Has(UsageStorage) {
			return nil, fmt.Errorf("gpu: kernel %q: buffer %q bound at slot %d lacks Storage usage",
				desc.Label, b.Buffer.label, b.Slot)
		}
		bindings[b.Slot] = b
	}

	return &Kernel{
		label:      desc.Label,
		program:    desc.Program,
		bindings:   bindings,
		pushWords:  desc.PushConstantWords,
		wgSize:     wgSize,
		workgroups: desc.Workgroups,
	}, nil
}

// Label returns the kernel label.
func (k *Kernel) Label() string { return k.label }

// Workgroups returns the dispatch extent.
func (k *Kernel) Workgroups() [3]uint32 { return k.workgroups }

// WorkgroupSize returns the number of invocations per workgroup.
func (k *Kernel) WorkgroupSize() uint32 { return k.wgSize }

// Execute appends one dispatch of the kernel to enc. It performs no
// synchronisation; ordering comes from the encoder alone.
func (k *Kernel) Execute(enc *Encoder, push ...uint32) {
	if len(push) != k.pushWords {
		enc.fail(fmt.Errorf("gpu: kernel %q: got %d push constant words, want %d", k.label, len(push), k.pushWords))
		return
	}
	enc.record(&dispatchCmd{kernel: k, push: append([]uint32(nil), push...)})
}

// buffers lists the bound buffers.
func (k *Kernel) buffers() []*Buffer {
	var out []*Buffer
	for _, b := range k.bindings {
		if b.Buffer != nil {
			out = append(out, b.Buffer)
		}
	}
	return out
}

// dispatch runs every workgroup of the kernel on the worker pool.
func (k *Kernel) dispatch(pool *workerPool, push []uint32) {
	nx, ny := k.workgroups[0], k.workgroups[1]
	total := int(k.workgroups[0] * k.workgroups[1] * k.workgroups[2])

	pool.run(total, func(start, end int) {
		inv := Invocation{
			WorkgroupSize: k.wgSize,
			NumWorkgroups: k.workgroups,
			kernel:        k,
			push:          push,
		}
		for linear := start; linear < end; linear++ {
			l := uint32(linear)
			inv.WorkgroupID = [3]uint32{l % nx, (l / nx) % ny, l / (nx * ny)}
			inv.linear = l
			k.program(&inv)
		}
	})
}

// Invocation is the per-workgroup context of a running program.
type Invocation struct {
	WorkgroupID   [3]uint32
	WorkgroupSize uint32
	NumWorkgroups [3]uint32

	kernel *Kernel
	push   []uint32
	linear uint32
}

// LinearWorkgroup returns the flattened workgroup index.
func (inv *Invocation) LinearWorkgroup() uint32 { return inv.linear }

// Load returns the buffer bound at slot for reading.
func (inv *Invocation) Load(slot int) ReadView {
	b := inv.binding(slot)
	return ReadView{b: b.Buffer}
}

// Store returns the buffer bound at slot for writing. Storing through a
// read-only binding is a validation fault and loses the device.
func (inv *Invocation) Store(slot int) *Buffer {
	b := inv.binding(slot)
	if b.Access != ReadWrite {
		panic(fmt.Sprintf("kernel %q: write to read-only binding %d (%q)", inv.kernel.label, slot, b.Buffer.label))
	}
	return b.Buffer
}

func (inv *Invocation) binding(slot int) Binding {
	if slot < 0 || slot >= len(inv.kernel.bindings) || inv.kernel.bindings[slot].Buffer == nil {
		panic(fmt.Sprintf("kernel %q: nothing bound at slot %d", inv.kernel.label, slot))
	}
	return inv.kernel.bindings[slot]
}

// PushU32 returns push constant word i.
func (inv *Invocation) PushU32(i int) uint32 { return inv.push[i] }

// PushF32 returns push constant word i as a float.
func (inv *Invocation) PushF32(i int) float32 { return math.Float32frombits(inv.push[i]) }

// ForEach calls fn for each local invocation of a 1D dispatch whose global
// id is below n. Invocations past n are no-ops.
func (inv *Invocation) ForEach(n uint32, fn func(gid uint32)) {
	base := inv.linear * inv.WorkgroupSize
	if base >= n {
		return
	}
	end := min(base+inv.WorkgroupSize, n)
	for gid := base; gid < end; gid++ {
		fn(gid)
	}
}
