package sph

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/gpu"
	"github.com/pthm-cable/sphfluid/scene"
)

func newTestDevice(t *testing.T) *gpu.Device {
	t.Helper()
	d, err := gpu.NewDevice(gpu.DeviceOptions{Label: t.Name()})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// newSceneSolver builds a solver over the default scene with fewer particles.
func newSceneSolver(t *testing.T, d *gpu.Device, particles int) *Solver {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Simulation.ParticleCount = particles
	require.NoError(t, cfg.Prepare())

	sc, err := scene.Build(scene.LayoutFromConfig(cfg))
	require.NoError(t, err)
	positions, velocities := sc.Pack()

	s, err := New(d, ParamsFromConfig(cfg), positions, velocities)
	require.NoError(t, err)
	return s
}

func encode(t *testing.T, d *gpu.Device, fn func(enc *gpu.Encoder)) {
	t.Helper()
	enc := d.NewEncoder("frame")
	fn(enc)
	cb, err := enc.Finish()
	require.NoError(t, err)
	require.NoError(t, d.Queue().Submit(cb))
}

func TestPauseIsIdempotent(t *testing.T) {
	d := newTestDevice(t)
	s := newSceneSolver(t, d, 1500)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		encode(t, d, func(enc *gpu.Encoder) { s.Encode(enc, FrameInput{DT: 0.004}) })
	}
	assert.Equal(t, Running, s.State())
	before, err := s.Snapshot(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		encode(t, d, func(enc *gpu.Encoder) { s.Encode(enc, FrameInput{Paused: true, DT: 0.004}) })
	}
	assert.Equal(t, Paused, s.State())
	assert.Equal(t, uint64(5), s.Steps())

	after, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestParticlesStayInsideBox(t *testing.T) {
	d := newTestDevice(t)
	p := Params{
		ParticleCount:   600,
		GhostCount:      0,
		SmoothingRadius: 0.15,
		Mass:            0.12,
		Damping:         0.6,
		GasConstant:     60,
		RestDensity:     200,
		Viscosity:       0.1,
		Gravity:         mgl32.Vec3{0, -1, 0},
		Bounds:          mgl32.Vec3{1, 0.8, 0.6},
	}

	// Random positions and violent velocities so most particles hit a wall.
	rng := rand.New(rand.NewSource(5))
	positions := make([]mgl32.Vec4, p.ParticleCount)
	velocities := make([]mgl32.Vec4, p.ParticleCount)
	for i := range positions {
		positions[i] = mgl32.Vec4{rng.Float32() * p.Bounds[0], rng.Float32() * p.Bounds[1], rng.Float32() * p.Bounds[2], 1}
		velocities[i] = mgl32.Vec4{rng.Float32()*20 - 10, rng.Float32()*20 - 10, rng.Float32()*20 - 10, 0}
	}

	s, err := New(d, p, positions, velocities)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		encode(t, d, func(enc *gpu.Encoder) { s.Encode(enc, FrameInput{DT: 0.02}) })
	}

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	for i, x := range snap.Positions {
		for a := 0; a < 3; a++ {
			if !(x[a] >= 0 && x[a] <= p.Bounds[a]) {
				t.Fatalf("particle %d escaped on axis %d: %v", i, a, x)
			}
		}
		assert.Equal(t, float32(1), x.W())
	}
}

// With dt = 0 and zero initial velocity, positions do not move, so the
// densities read back belong to the initial positions.
func TestDensityMatchesBruteForce(t *testing.T) {
	d := newTestDevice(t)
	s := newSceneSolver(t, d, 1200)
	p := s.Params()

	snap0, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	encode(t, d, func(enc *gpu.Encoder) { s.Step(enc, 0) })
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, snap0.Positions, snap.Positions)

	kern := NewKernels(p.SmoothingRadius)
	h2 := p.SmoothingRadius * p.SmoothingRadius
	for i := p.GhostCount; i < p.ParticleCount; i++ {
		pi := snap.Positions[i].Vec3()
		var want float64
		for j := range snap.Positions {
			r := pi.Sub(snap.Positions[j].Vec3())
			if r2 := r.Dot(r); r2 <= h2 {
				want += float64(p.Mass * kern.Poly6(r2))
			}
		}
		got := snap.Densities[i]
		require.Greater(t, got, float32(0), "particle %d", i)
		require.InEpsilon(t, want, float64(got), 1e-4, "particle %d", i)
	}
}

func TestGhostsAreNeverWritten(t *testing.T) {
	d := newTestDevice(t)
	s := newSceneSolver(t, d, 1500)
	p := s.Params()

	initial, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		encode(t, d, func(enc *gpu.Encoder) { s.Encode(enc, FrameInput{DT: 0.004}) })
	}
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	g := p.GhostCount
	assert.Equal(t, initial.Positions[:g], snap.Positions[:g])
	assert.Equal(t, initial.Velocities[:g], snap.Velocities[:g])
	assert.Equal(t, initial.Forces[:g], snap.Forces[:g])
	for i := uint32(0); i < g; i++ {
		require.Equal(t, p.RestDensity, snap.Densities[i], "ghost %d", i)
	}

	// Fluid did move.
	assert.NotEqual(t, initial.Positions[g:], snap.Positions[g:])
	assert.InDelta(t, 0.04, s.SimTime(), 1e-6)
}

func TestPressureForcesAreSymmetric(t *testing.T) {
	d := newTestDevice(t)
	p := Params{
		ParticleCount:   2,
		SmoothingRadius: 0.15,
		Mass:            0.12,
		GasConstant:     60,
		RestDensity:     1,
		Viscosity:       0.1,
		Bounds:          mgl32.Vec3{1, 1, 1},
	}
	positions := []mgl32.Vec4{{0.45, 0.5, 0.5, 1}, {0.5, 0.5, 0.5, 1}}
	s, err := New(d, p, positions, make([]mgl32.Vec4, 2))
	require.NoError(t, err)

	encode(t, d, func(enc *gpu.Encoder) { s.Step(enc, 0) })
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	f0, f1 := snap.Forces[0], snap.Forces[1]
	assert.Less(t, f0.X(), float32(0), "left particle pushed left")
	assert.InDelta(t, -f0.X(), f1.X(), 1e-3)
	assert.Equal(t, float32(0), f0.Y())
	assert.Equal(t, float32(0), f0.Z())
	assert.Equal(t, snap.Densities[0], snap.Densities[1])
}

func TestDisplayBuffer(t *testing.T) {
	d := newTestDevice(t)
	s := newSceneSolver(t, d, 1500)
	p := s.Params()

	assert.Equal(t, DrawInfo{VerticesPerInstance: 4, InstanceCount: 1500}, s.DrawInfo())
	assert.True(t, s.DisplayBuffer().Usage().Has(gpu.UsageVertex))

	// Paused frames still write the display buffer.
	encode(t, d, func(enc *gpu.Encoder) { s.Encode(enc, FrameInput{Paused: true}) })
	vs, err := s.ReadDisplay(context.Background())
	require.NoError(t, err)
	require.Len(t, vs, int(p.ParticleCount))

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	for i, v := range vs {
		assert.Equal(t, snap.Positions[i], v.Position)
		if uint32(i) < p.GhostCount {
			assert.Equal(t, ghostColor, v.Color)
		} else {
			assert.Equal(t, DensityColor(snap.Densities[i], p.RestDensity), v.Color)
		}
	}
}

func TestDensityColorRamp(t *testing.T) {
	assert.Equal(t, sparseColor, DensityColor(0, 200))
	assert.Equal(t, restColor, DensityColor(200, 200))
	assert.Equal(t, denseColor, DensityColor(1000, 200))
}

func TestDeviceLossSurfacesFromSnapshot(t *testing.T) {
	d := newTestDevice(t)
	s := newSceneSolver(t, d, 1500)

	boom, err := d.NewKernel(gpu.KernelDescriptor{
		Label:      "fault",
		Workgroups: [3]uint32{1, 1, 1},
		Program:    func(*gpu.Invocation) { panic("fault") },
	})
	require.NoError(t, err)

	encode(t, d, func(enc *gpu.Encoder) {
		s.Encode(enc, FrameInput{DT: 0.004})
		boom.Execute(enc)
	})

	_, err = s.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrDeviceLost))
}

func TestNewRejectsBadInput(t *testing.T) {
	d := newTestDevice(t)
	p := Params{
		ParticleCount:   4,
		GhostCount:      4,
		SmoothingRadius: 0.1,
		Mass:            1,
		RestDensity:     1,
		Bounds:          mgl32.Vec3{1, 1, 1},
	}
	ps := make([]mgl32.Vec4, 4)
	_, err := New(d, p, ps, ps)
	assert.Error(t, err, "ghosts must leave room for fluid")

	p.GhostCount = 1
	_, err = New(d, p, ps[:3], ps)
	assert.Error(t, err, "length mismatch")
}

func TestKernels(t *testing.T) {
	k := NewKernels(0.15)
	h := k.Radius()

	assert.Greater(t, k.Poly6(0), k.Poly6(0.01))
	assert.Equal(t, float32(0), k.Poly6(h*h))
	assert.Equal(t, float32(0), k.SpikyGrad(h))
	assert.Equal(t, float32(0), k.ViscLaplacian(h+0.01))

	// poly6 integrates to one over the ball of radius h.
	const steps = 2000
	var sum float64
	dr := float64(h) / steps
	for i := 0; i < steps; i++ {
		r := (float64(i) + 0.5) * dr
		sum += 4 * math.Pi * r * r * float64(k.Poly6(float32(r*r))) * dr
	}
	assert.InDelta(t, 1, sum, 1e-3)
}
