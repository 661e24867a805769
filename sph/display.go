package sph

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sphfluid/gpu"
)

// DisplayVertexWords is the size of one DisplayVertex in buffer words.
const DisplayVertexWords = 8

// VerticesPerInstance is the quad drawn per particle.
const VerticesPerInstance = 4

// DisplayVertex is one particle as the renderer sees it.
type DisplayVertex struct {
	Position mgl32.Vec4
	Color    mgl32.Vec4
}

// DrawInfo is the instanced draw call for the display buffer.
type DrawInfo struct {
	VerticesPerInstance uint32
	InstanceCount       uint32
}

var (
	ghostColor = mgl32.Vec4{0.55, 0.55, 0.55, 1}
	// Density ramp from half to one and a half times rest density.
	sparseColor = mgl32.Vec4{0.15, 0.45, 1.0, 1}
	restColor   = mgl32.Vec4{0.35, 0.85, 0.95, 1}
	denseColor  = mgl32.Vec4{1.0, 0.35, 0.2, 1}
)

// DensityColor maps a density to the display colour ramp.
func DensityColor(rho, rest float32) mgl32.Vec4 {
	t := mgl32.Clamp(rho/rest-0.5, 0, 1) * 2
	if t < 1 {
		return lerp4(sparseColor, restColor, t)
	}
	return lerp4(restColor, denseColor, t-1)
}

func lerp4(a, b mgl32.Vec4, t float32) mgl32.Vec4 {
	return a.Mul(1 - t).Add(b.Mul(t))
}

// DisplayBuffer returns the vertex buffer written by the display pass.
func (s *Solver) DisplayBuffer() *gpu.Buffer { return s.display }

// DrawInfo returns the instanced draw parameters for the display buffer.
func (s *Solver) DrawInfo() DrawInfo {
	return DrawInfo{VerticesPerInstance: VerticesPerInstance, InstanceCount: s.params.ParticleCount}
}

// ReadDisplay copies the display buffer to the host for renderers that draw
// from host memory.
func (s *Solver) ReadDisplay(ctx context.Context) ([]DisplayVertex, error) {
	words, err := gpu.ReadUint32(ctx, s.dev, s.display)
	if err != nil {
		return nil, fmt.Errorf("reading display buffer: %w", err)
	}
	vs := gpu.WordsToVec4(words)
	out := make([]DisplayVertex, len(vs)/2)
	for i := range out {
		out[i] = DisplayVertex{Position: vs[2*i], Color: vs[2*i+1]}
	}
	return out, nil
}

// Bindings: 0 positions, 1 densities (read), 2 display vertices (read_write).
func (s *Solver) newDisplayKernel() (*gpu.Kernel, error) {
	n := s.params.ParticleCount
	ghosts := s.params.GhostCount
	rest := s.params.RestDensity

	k, err := s.dev.NewKernel(gpu.KernelDescriptor{
		Label: "sph display",
		Bindings: []gpu.Binding{
			{Slot: 0, Buffer: s.positions, Access: gpu.ReadOnly},
			{Slot: 1, Buffer: s.densities, Access: gpu.ReadOnly},
			{Slot: 2, Buffer: s.display, Access: gpu.ReadWrite},
		},
		WorkgroupSize: WorkgroupSize,
		Workgroups:    [3]uint32{gpu.WorkgroupCount(n, WorkgroupSize), 1, 1},
		Program: func(inv *gpu.Invocation) {
			pos := inv.Load(0)
			dens := inv.Load(1)
			out := inv.Store(2)
			inv.ForEach(n, func(i uint32) {
				color := ghostColor
				if i >= ghosts {
					color = DensityColor(dens.F32(i), rest)
				}
				out.SetVec4(2*i, pos.Vec4(i))
				out.SetVec4(2*i+1, color)
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating display kernel: %w", err)
	}
	return k, nil
}
