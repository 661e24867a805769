// Package sph implements the SPH solver: per unpaused frame it rebuilds the
// spatial lookup and dispatches density, force and integration kernels, and
// on every frame it writes the display vertex buffer.
package sph

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sphfluid/gpu"
	"github.com/pthm-cable/sphfluid/spatial"
)

// WorkgroupSize is the invocation count of the solver kernels.
const WorkgroupSize = 256

// State is the solver run state.
type State int

const (
	Paused State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "paused"
}

// FrameInput is supplied by the orchestrator every frame.
type FrameInput struct {
	Paused bool
	DT     float32
}

// Solver owns every simulation buffer and kernel.
type Solver struct {
	dev    *gpu.Device
	params Params
	kern   Kernels
	lookup *spatial.Lookup

	positions  *gpu.Buffer // vec4, w = 1
	velocities *gpu.Buffer // vec4
	densities  *gpu.Buffer // f32
	forces     *gpu.Buffer // vec4
	display    *gpu.Buffer // DisplayVertex

	density   *gpu.Kernel
	force     *gpu.Kernel
	integrate *gpu.Kernel
	draw      *gpu.Kernel

	state   State
	steps   uint64
	simTime float64
}

// New uploads the initial particles and builds the solver. positions and
// velocities hold ParticleCount entries with ghosts first.
func New(dev *gpu.Device, p Params, positions, velocities []mgl32.Vec4) (*Solver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(positions) != int(p.ParticleCount) || len(velocities) != int(p.ParticleCount) {
		return nil, fmt.Errorf("sph: got %d positions and %d velocities for %d particles",
			len(positions), len(velocities), p.ParticleCount)
	}

	grid, err := spatial.NewGrid(p.Bounds, p.SmoothingRadius)
	if err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}

	s := &Solver{dev: dev, params: p, kern: NewKernels(p.SmoothingRadius)}
	storage := gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst

	if s.positions, err = dev.CreateBufferInit("positions", storage, gpu.Vec4ToWords(positions)); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	if s.velocities, err = dev.CreateBufferInit("velocities", storage, gpu.Vec4ToWords(velocities)); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	rest := make([]float32, p.ParticleCount)
	for i := range rest {
		rest[i] = p.RestDensity
	}
	if s.densities, err = dev.CreateBufferInit("densities", storage, gpu.Float32ToWords(rest)); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	if s.forces, err = dev.CreateBuffer(gpu.BufferDescriptor{
		Label: "forces",
		Size:  uint64(p.ParticleCount) * 4 * gpu.WordSize,
		Usage: storage,
	}); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	if s.display, err = dev.CreateBuffer(gpu.BufferDescriptor{
		Label: "display vertices",
		Size:  uint64(p.ParticleCount) * DisplayVertexWords * gpu.WordSize,
		Usage: gpu.UsageStorage | gpu.UsageVertex | gpu.UsageCopySrc,
	}); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}

	if s.lookup, err = spatial.New(dev, grid, s.positions); err != nil {
		return nil, fmt.Errorf("creating solver: %w", err)
	}
	if s.density, err = s.newDensityKernel(); err != nil {
		return nil, err
	}
	if s.force, err = s.newForceKernel(); err != nil {
		return nil, err
	}
	if s.integrate, err = s.newIntegrateKernel(); err != nil {
		return nil, err
	}
	if s.draw, err = s.newDisplayKernel(); err != nil {
		return nil, err
	}
	return s, nil
}

// Encode appends one frame to enc. Unpaused frames step the simulation by
// in.DT; every frame rewrites the display buffer.
func (s *Solver) Encode(enc *gpu.Encoder, in FrameInput) {
	if in.Paused {
		s.state = Paused
	} else {
		s.state = Running
		s.Step(enc, in.DT)
	}
	s.draw.Execute(enc)
}

// Step appends one physics step of dt without touching the display buffer.
// It does not change the run state.
func (s *Solver) Step(enc *gpu.Encoder, dt float32) {
	s.lookup.Encode(enc)
	s.density.Execute(enc)
	s.force.Execute(enc)
	s.integrate.Execute(enc, gpu.Float32ToWords([]float32{dt})...)
	s.steps++
	s.simTime += float64(dt)
}

// Params returns the simulation record.
func (s *Solver) Params() Params { return s.params }

// State returns the state set by the last Encode.
func (s *Solver) State() State { return s.state }

// Steps returns the number of physics steps encoded.
func (s *Solver) Steps() uint64 { return s.steps }

// SimTime returns the simulated time encoded so far.
func (s *Solver) SimTime() float64 { return s.simTime }

// Grid returns the neighbour grid.
func (s *Solver) Grid() spatial.Grid { return s.lookup.Grid() }

// Positions returns the position buffer.
func (s *Solver) Positions() *gpu.Buffer { return s.positions }

// Snapshot is a host copy of the particle state.
type Snapshot struct {
	GhostCount uint32
	Positions  []mgl32.Vec4
	Velocities []mgl32.Vec4
	Densities  []float32
	Forces     []mgl32.Vec4
}

// Snapshot reads the particle buffers back after all submitted work.
func (s *Solver) Snapshot(ctx context.Context) (*Snapshot, error) {
	enc := s.dev.NewEncoder("snapshot")
	srcs := []*gpu.Buffer{s.positions, s.velocities, s.densities, s.forces}
	staging := make([]*gpu.Buffer, len(srcs))
	for i, src := range srcs {
		b, err := s.dev.Stage(enc, src)
		if err != nil {
			return nil, fmt.Errorf("reading snapshot: %w", err)
		}
		staging[i] = b
	}
	cb, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := s.dev.Queue().Submit(cb); err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	words := make([][]uint32, len(staging))
	for i, b := range staging {
		if words[i], err = s.dev.ReadStaged(ctx, b); err != nil {
			return nil, fmt.Errorf("reading snapshot: %w", err)
		}
	}
	return &Snapshot{
		GhostCount: s.params.GhostCount,
		Positions:  gpu.WordsToVec4(words[0]),
		Velocities: gpu.WordsToVec4(words[1]),
		Densities:  gpu.WordsToFloat32(words[2]),
		Forces:     gpu.WordsToVec4(words[3]),
	}, nil
}

// fluidKernel fills the common descriptor fields of a kernel with one
// invocation per fluid particle.
func (s *Solver) fluidKernel(label string, bindings []gpu.Binding, program gpu.Program) gpu.KernelDescriptor {
	return gpu.KernelDescriptor{
		Label:         label,
		Bindings:      bindings,
		WorkgroupSize: WorkgroupSize,
		Workgroups:    [3]uint32{gpu.WorkgroupCount(s.params.FluidCount(), WorkgroupSize), 1, 1},
		Program:       program,
	}
}

// Bindings: 0 positions, 1 cell index, 2 sorted values (read), 3 densities (read_write).
func (s *Solver) newDensityKernel() (*gpu.Kernel, error) {
	grid := s.lookup.Grid()
	kern := s.kern
	ghosts, fluid := s.params.GhostCount, s.params.FluidCount()
	mass := s.params.Mass
	h2 := kern.h2

	k, err := s.dev.NewKernel(s.fluidKernel("sph density", []gpu.Binding{
		{Slot: 0, Buffer: s.positions, Access: gpu.ReadOnly},
		{Slot: 1, Buffer: s.lookup.Index(), Access: gpu.ReadOnly},
		{Slot: 2, Buffer: s.lookup.Values(), Access: gpu.ReadOnly},
		{Slot: 3, Buffer: s.densities, Access: gpu.ReadWrite},
	}, func(inv *gpu.Invocation) {
		pos := inv.Load(0)
		index := inv.Load(1)
		vals := inv.Load(2)
		dens := inv.Store(3)
		inv.ForEach(fluid, func(t uint32) {
			i := ghosts + t
			pi := pos.Vec4(i).Vec3()
			var rho float32
			grid.ForEachNeighbor(index, vals, pi, func(j uint32) {
				r := pi.Sub(pos.Vec4(j).Vec3())
				if r2 := r.Dot(r); r2 <= h2 {
					rho += mass * kern.Poly6(r2)
				}
			})
			dens.SetF32(i, rho)
		})
	}))
	if err != nil {
		return nil, fmt.Errorf("creating density kernel: %w", err)
	}
	return k, nil
}

// Bindings: 0 positions, 1 velocities, 2 densities, 3 cell index, 4 sorted
// values (read), 5 forces (read_write).
func (s *Solver) newForceKernel() (*gpu.Kernel, error) {
	grid := s.lookup.Grid()
	kern := s.kern
	p := s.params
	ghosts, fluid := p.GhostCount, p.FluidCount()
	h2 := kern.h2

	k, err := s.dev.NewKernel(s.fluidKernel("sph force", []gpu.Binding{
		{Slot: 0, Buffer: s.positions, Access: gpu.ReadOnly},
		{Slot: 1, Buffer: s.velocities, Access: gpu.ReadOnly},
		{Slot: 2, Buffer: s.densities, Access: gpu.ReadOnly},
		{Slot: 3, Buffer: s.lookup.Index(), Access: gpu.ReadOnly},
		{Slot: 4, Buffer: s.lookup.Values(), Access: gpu.ReadOnly},
		{Slot: 5, Buffer: s.forces, Access: gpu.ReadWrite},
	}, func(inv *gpu.Invocation) {
		pos := inv.Load(0)
		vel := inv.Load(1)
		dens := inv.Load(2)
		index := inv.Load(3)
		vals := inv.Load(4)
		forces := inv.Store(5)
		inv.ForEach(fluid, func(t uint32) {
			i := ghosts + t
			pi := pos.Vec4(i).Vec3()
			vi := vel.Vec4(i).Vec3()
			rhoi := dens.F32(i)
			pressi := p.GasConstant * (rhoi - p.RestDensity)

			var fPress, fVisc mgl32.Vec3
			grid.ForEachNeighbor(index, vals, pi, func(j uint32) {
				if j == i {
					return
				}
				rij := pi.Sub(pos.Vec4(j).Vec3())
				r2 := rij.Dot(rij)
				if r2 > h2 {
					return
				}
				r := sqrt32(r2)
				rhoj := dens.F32(j)
				// Coincident particles have no pressure direction but still share velocity
				if r > 0 {
					pressj := p.GasConstant * (rhoj - p.RestDensity)
					mag := p.Mass * (pressi + pressj) / (2 * rhoj) * kern.SpikyGrad(r) / r
					fPress = fPress.Add(rij.Mul(mag))
				}
				dv := vel.Vec4(j).Vec3().Sub(vi)
				fVisc = fVisc.Add(dv.Mul(p.Viscosity * p.Mass / rhoj * kern.ViscLaplacian(r)))
			})

			f := fPress.Add(fVisc).Add(p.Gravity.Mul(rhoi))
			forces.SetVec4(i, f.Vec4(0))
		})
	}))
	if err != nil {
		return nil, fmt.Errorf("creating force kernel: %w", err)
	}
	return k, nil
}

// Push constants: 0 dt.
// Bindings: 0 densities, 1 forces (read), 2 positions, 3 velocities (read_write).
func (s *Solver) newIntegrateKernel() (*gpu.Kernel, error) {
	p := s.params
	ghosts, fluid := p.GhostCount, p.FluidCount()

	desc := s.fluidKernel("sph integrate", []gpu.Binding{
		{Slot: 0, Buffer: s.densities, Access: gpu.ReadOnly},
		{Slot: 1, Buffer: s.forces, Access: gpu.ReadOnly},
		{Slot: 2, Buffer: s.positions, Access: gpu.ReadWrite},
		{Slot: 3, Buffer: s.velocities, Access: gpu.ReadWrite},
	}, func(inv *gpu.Invocation) {
		dens := inv.Load(0)
		forces := inv.Load(1)
		pos := inv.Store(2)
		vel := inv.Store(3)
		dt := inv.PushF32(0)
		inv.ForEach(fluid, func(t uint32) {
			i := ghosts + t
			a := forces.Vec4(i).Vec3().Mul(1 / dens.F32(i))
			v := vel.Vec4(i).Vec3().Add(a.Mul(dt))
			x := pos.Vec4(i).Vec3().Add(v.Mul(dt))
			for axis := 0; axis < 3; axis++ {
				switch {
				case !(x[axis] >= 0):
					x[axis] = 0
					v[axis] = -v[axis] * p.Damping
				case x[axis] > p.Bounds[axis]:
					x[axis] = p.Bounds[axis]
					v[axis] = -v[axis] * p.Damping
				}
			}
			pos.SetVec4(i, x.Vec4(1))
			vel.SetVec4(i, v.Vec4(0))
		})
	})
	desc.PushConstantWords = 1

	k, err := s.dev.NewKernel(desc)
	if err != nil {
		return nil, fmt.Errorf("creating integrate kernel: %w", err)
	}
	return k, nil
}
