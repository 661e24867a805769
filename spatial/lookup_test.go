package spatial

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sphfluid/gpu"
)

func newTestDevice(t *testing.T) *gpu.Device {
	t.Helper()
	d, err := gpu.NewDevice(gpu.DeviceOptions{Label: t.Name()})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func positionBuffer(t *testing.T, d *gpu.Device, ps []mgl32.Vec3) *gpu.Buffer {
	t.Helper()
	vs := make([]mgl32.Vec4, len(ps))
	for i, p := range ps {
		vs[i] = p.Vec4(1)
	}
	b, err := d.CreateBufferInit("positions", gpu.UsageStorage|gpu.UsageCopySrc, gpu.Vec4ToWords(vs))
	require.NoError(t, err)
	return b
}

func run(t *testing.T, d *gpu.Device, l *Lookup) (keys, vals, index []uint32) {
	t.Helper()
	enc := d.NewEncoder("lookup")
	l.Encode(enc)
	cb, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, d.Queue().Submit(cb))

	ctx := context.Background()
	keys, err = gpu.ReadUint32(ctx, d, l.Keys())
	require.NoError(t, err)
	vals, err = gpu.ReadUint32(ctx, d, l.Values())
	require.NoError(t, err)
	index, err = gpu.ReadUint32(ctx, d, l.Index())
	require.NoError(t, err)
	return keys, vals, index
}

func TestNewGrid(t *testing.T) {
	tests := []struct {
		name   string
		bounds mgl32.Vec3
		size   float32
		want   [3]uint32
		err    bool
	}{
		{"exact", mgl32.Vec3{3, 3, 3}, 1, [3]uint32{3, 3, 3}, false},
		{"rounds up", mgl32.Vec3{3, 2, 1}, 0.15, [3]uint32{20, 14, 7}, false},
		{"smaller than a cell", mgl32.Vec3{0.1, 0.1, 0.1}, 1, [3]uint32{1, 1, 1}, false},
		{"zero cell size", mgl32.Vec3{1, 1, 1}, 0, [3]uint32{}, true},
		{"empty bounds", mgl32.Vec3{1, 0, 1}, 0.1, [3]uint32{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGrid(tt.bounds, tt.size)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Counts)
		})
	}
}

func TestCellOfClamps(t *testing.T) {
	g, err := NewGrid(mgl32.Vec3{3, 3, 3}, 1)
	require.NoError(t, err)

	nan := float32(math.NaN())
	assert.Equal(t, [3]uint32{0, 0, 0}, g.CellOf(mgl32.Vec3{-5, -0.1, nan}))
	assert.Equal(t, [3]uint32{2, 2, 2}, g.CellOf(mgl32.Vec3{3, 7, 100}))
	assert.Equal(t, [3]uint32{1, 0, 2}, g.CellOf(mgl32.Vec3{1.5, 0.99, 2.01}))
	assert.Equal(t, uint32(1*9+0*3+2), g.Key(mgl32.Vec3{1.5, 0.99, 2.01}))
}

// A 3x3x3 lattice with spacing equal to the cell size puts exactly one
// particle in each cell.
func TestLookupLattice(t *testing.T) {
	d := newTestDevice(t)
	g, err := NewGrid(mgl32.Vec3{3, 3, 3}, 1)
	require.NoError(t, err)

	var ps []mgl32.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				ps = append(ps, mgl32.Vec3{float32(i), float32(j), float32(k)})
			}
		}
	}
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(ps), func(a, b int) { ps[a], ps[b] = ps[b], ps[a] })

	l, err := New(d, g, positionBuffer(t, d, ps))
	require.NoError(t, err)
	keys, vals, index := run(t, d, l)

	for c := uint32(0); c < 27; c++ {
		assert.Equal(t, c, keys[c])
		p := ps[vals[c]]
		assert.Equal(t, c, uint32(p[0])*9+uint32(p[1])*3+uint32(p[2]), "particle %d in slot %d", vals[c], c)
		assert.Equal(t, c, index[c])
	}
}

func TestLookupIndexWithEmptyCells(t *testing.T) {
	d := newTestDevice(t)
	g, err := NewGrid(mgl32.Vec3{4, 4, 4}, 1)
	require.NoError(t, err)

	// Clustered so most cells stay empty, including the first and last.
	rng := rand.New(rand.NewSource(2))
	ps := make([]mgl32.Vec3, 300)
	for i := range ps {
		ps[i] = mgl32.Vec3{1 + rng.Float32()*2, 1 + rng.Float32()*2, 1 + rng.Float32()}
	}

	l, err := New(d, g, positionBuffer(t, d, ps))
	require.NoError(t, err)
	keys, vals, index := run(t, d, l)

	want := make([]uint32, g.CellTotal())
	for _, p := range ps {
		want[g.Key(p)]++
	}

	n := uint32(len(ps))
	for c := uint32(0); c < g.CellTotal(); c++ {
		end := n
		if c+1 < g.CellTotal() {
			end = index[c+1]
		}
		require.LessOrEqual(t, index[c], end, "cell %d", c)
		assert.Equal(t, want[c], end-index[c], "run length of cell %d", c)
		for s := index[c]; s < end; s++ {
			assert.Equal(t, c, keys[s])
			assert.Equal(t, c, g.Key(ps[vals[s]]))
		}
	}
}

func TestLookupSingleParticle(t *testing.T) {
	d := newTestDevice(t)
	g, err := NewGrid(mgl32.Vec3{2, 2, 2}, 1)
	require.NoError(t, err)

	l, err := New(d, g, positionBuffer(t, d, []mgl32.Vec3{{1.5, 0.5, 1.5}}))
	require.NoError(t, err)
	_, _, index := run(t, d, l)

	// Key 5: cells 0..5 start at 0, the rest are past the end.
	assert.Equal(t, []uint32{0, 0, 0, 0, 0, 0, 1, 1}, index)
}

// A kernel walking ForEachNeighbor must find exactly the pairs a brute force
// scan finds within the cell size.
func TestNeighborSearchMatchesBruteForce(t *testing.T) {
	d := newTestDevice(t)
	const n = 700
	const h = float32(0.15)

	bounds := mgl32.Vec3{1, 0.6, 0.45}
	g, err := NewGrid(bounds, h)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	ps := make([]mgl32.Vec3, n)
	for i := range ps {
		ps[i] = mgl32.Vec3{rng.Float32() * bounds[0], rng.Float32() * bounds[1], rng.Float32() * bounds[2]}
	}
	// Coincident particles are mutual neighbours.
	ps[1] = ps[0]

	positions := positionBuffer(t, d, ps)
	l, err := New(d, g, positions)
	require.NoError(t, err)

	found, err := d.CreateBuffer(gpu.BufferDescriptor{Label: "found", Size: n * n * gpu.WordSize, Usage: gpu.UsageStorage | gpu.UsageCopySrc})
	require.NoError(t, err)

	k, err := d.NewKernel(gpu.KernelDescriptor{
		Label: "neighbours",
		Bindings: []gpu.Binding{
			{Slot: 0, Buffer: positions, Access: gpu.ReadOnly},
			{Slot: 1, Buffer: l.Index(), Access: gpu.ReadOnly},
			{Slot: 2, Buffer: l.Values(), Access: gpu.ReadOnly},
			{Slot: 3, Buffer: found, Access: gpu.ReadWrite},
		},
		WorkgroupSize: 64,
		Workgroups:    [3]uint32{gpu.WorkgroupCount(n, 64), 1, 1},
		Program: func(inv *gpu.Invocation) {
			pos := inv.Load(0)
			index := inv.Load(1)
			vals := inv.Load(2)
			out := inv.Store(3)
			inv.ForEach(n, func(i uint32) {
				pi := pos.Vec4(i).Vec3()
				g.ForEachNeighbor(index, vals, pi, func(j uint32) {
					r := pi.Sub(pos.Vec4(j).Vec3())
					if r.Dot(r) <= h*h {
						out.AtomicAddU32(i*n+j, 1)
					}
				})
			})
		},
	})
	require.NoError(t, err)

	enc := d.NewEncoder("neighbours")
	l.Encode(enc)
	k.Execute(enc)
	cb, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, d.Queue().Submit(cb))

	got, err := gpu.ReadUint32(context.Background(), d, found)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := ps[i].Sub(ps[j])
			want := uint32(0)
			if r.Dot(r) <= h*h {
				want = 1
			}
			if got[i*n+j] != want {
				t.Fatalf("pair (%d, %d): found %d times, want %d", i, j, got[i*n+j], want)
			}
		}
	}
	assert.Equal(t, uint32(1), got[0*n+1])
}

func TestNewRejectsEmptyPositions(t *testing.T) {
	d := newTestDevice(t)
	g, err := NewGrid(mgl32.Vec3{1, 1, 1}, 0.5)
	require.NoError(t, err)
	empty, err := d.CreateBuffer(gpu.BufferDescriptor{Label: "empty", Usage: gpu.UsageStorage})
	require.NoError(t, err)

	_, err = New(d, g, empty)
	assert.Error(t, err)
}
