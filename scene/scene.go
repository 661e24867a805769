// Package scene builds the initial particle layout: two static floor layers
// of ghost particles and a jittered block of fluid resting on them.
package scene

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/mlange-42/ark/ecs"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/sphfluid/components"
	"github.com/pthm-cable/sphfluid/config"
)

// Layout describes the initial particle arrangement.
type Layout struct {
	Bounds     mgl32.Vec3
	Spacing    float32 // Lattice spacing of ghosts and fluid
	FluidCount int
	FillWidth  float32 // Fraction of Bounds.X the fluid block may occupy
	Jitter     float32 // Noise amplitude as a fraction of Spacing
	NoiseScale float32
	Seed       int64
}

// LayoutFromConfig returns the layout described by cfg.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{
		Bounds:     mgl32.Vec3(cfg.Derived.Bounds32),
		Spacing:    cfg.Derived.FluidSpacing,
		FluidCount: cfg.Derived.FluidCount,
		FillWidth:  float32(cfg.Scene.FillWidth),
		Jitter:     float32(cfg.Scene.Jitter),
		NoiseScale: float32(cfg.Scene.NoiseScale),
		Seed:       cfg.Scene.Seed,
	}
}

// Scene holds the particles as ECS entities.
type Scene struct {
	world *ecs.World

	ghostMapper *ecs.Map3[components.Position, components.Velocity, components.Ghost]
	fluidMapper *ecs.Map3[components.Position, components.Velocity, components.Fluid]
	ghostFilter *ecs.Filter2[components.Position, components.Ghost]
	fluidFilter *ecs.Filter3[components.Position, components.Velocity, components.Fluid]

	ghosts int
	fluids int
}

// Build creates the ghost layers and the fluid block.
func Build(l Layout) (*Scene, error) {
	if !(l.Spacing > 0) {
		return nil, fmt.Errorf("scene: spacing must be positive, got %v", l.Spacing)
	}
	world := ecs.NewWorld()
	s := &Scene{
		world:       world,
		ghostMapper: ecs.NewMap3[components.Position, components.Velocity, components.Ghost](world),
		fluidMapper: ecs.NewMap3[components.Position, components.Velocity, components.Fluid](world),
		ghostFilter: ecs.NewFilter2[components.Position, components.Ghost](world),
		fluidFilter: ecs.NewFilter3[components.Position, components.Velocity, components.Fluid](world),
	}
	s.addGhosts(l)
	if err := s.addFluid(l); err != nil {
		return nil, err
	}
	return s, nil
}

// latticeCount returns the number of lattice points at spacing in [0, extent].
func latticeCount(extent, spacing float32) int {
	return config.LatticeCount(float64(extent), float64(spacing))
}

// addGhosts tiles the floor with two layers, at y = 0 and y = spacing.
func (s *Scene) addGhosts(l Layout) {
	nx := latticeCount(l.Bounds.X(), l.Spacing)
	nz := latticeCount(l.Bounds.Z(), l.Spacing)
	var vel components.Velocity
	var tag components.Ghost
	for layer := 0; layer < 2; layer++ {
		for i := 0; i < nx; i++ {
			for k := 0; k < nz; k++ {
				pos := components.Position{Vec3: mgl32.Vec3{
					float32(i) * l.Spacing,
					float32(layer) * l.Spacing,
					float32(k) * l.Spacing,
				}}
				s.ghostMapper.NewEntity(&pos, &vel, &tag)
				s.ghosts++
			}
		}
	}
}

// addFluid stacks fluid particles row by row on top of the ghost layers,
// filling x up to FillWidth*Bounds.X and the whole depth, then offsets each
// by coherent noise.
func (s *Scene) addFluid(l Layout) error {
	if l.FluidCount <= 0 {
		return fmt.Errorf("scene: no fluid particles")
	}
	half := l.Spacing / 2
	width := l.FillWidth * l.Bounds.X()
	nx := max(int((width-half)/l.Spacing)+1, 1)
	nz := max(int((l.Bounds.Z()-half)/l.Spacing)+1, 1)
	perLayer := nx * nz
	layers := (l.FluidCount + perLayer - 1) / perLayer

	base := 2*l.Spacing + half
	if top := base + float32(layers-1)*l.Spacing; top > l.Bounds.Y() {
		return fmt.Errorf("scene: %d fluid particles need %d layers up to y=%.3f, box height is %.3f",
			l.FluidCount, layers, top, l.Bounds.Y())
	}

	noise := opensimplex.NewNormalized32(l.Seed)
	amp := l.Jitter * l.Spacing
	var vel components.Velocity
	var tag components.Fluid
	for n := 0; n < l.FluidCount; n++ {
		layer := n / perLayer
		i := (n % perLayer) / nz
		k := n % nz
		p := mgl32.Vec3{
			half + float32(i)*l.Spacing,
			base + float32(layer)*l.Spacing,
			half + float32(k)*l.Spacing,
		}
		if amp > 0 {
			q := p.Mul(l.NoiseScale)
			p = p.Add(mgl32.Vec3{
				amp * (2*noise.Eval3(q.X(), q.Y(), q.Z()) - 1),
				amp * (2*noise.Eval3(q.Y()+31.7, q.Z(), q.X()) - 1),
				amp * (2*noise.Eval3(q.Z()-17.3, q.X(), q.Y()) - 1),
			})
		}
		pos := components.Position{Vec3: clampInto(p, l.Bounds)}
		s.fluidMapper.NewEntity(&pos, &vel, &tag)
		s.fluids++
	}
	return nil
}

func clampInto(p, bounds mgl32.Vec3) mgl32.Vec3 {
	for a := 0; a < 3; a++ {
		p[a] = float32(math.Min(math.Max(float64(p[a]), 0), float64(bounds[a])))
	}
	return p
}

// GhostCount returns the number of ghost particles.
func (s *Scene) GhostCount() int { return s.ghosts }

// FluidCount returns the number of fluid particles.
func (s *Scene) FluidCount() int { return s.fluids }

// Len returns the total particle count.
func (s *Scene) Len() int { return s.ghosts + s.fluids }

// Pack flattens the scene into position (w = 1) and velocity arrays with all
// ghosts before all fluid particles.
func (s *Scene) Pack() (positions, velocities []mgl32.Vec4) {
	positions = make([]mgl32.Vec4, 0, s.Len())
	velocities = make([]mgl32.Vec4, 0, s.Len())

	gq := s.ghostFilter.Query()
	for gq.Next() {
		pos, _ := gq.Get()
		positions = append(positions, pos.Vec4(1))
		velocities = append(velocities, mgl32.Vec4{})
	}

	fq := s.fluidFilter.Query()
	for fq.Next() {
		pos, vel, _ := fq.Get()
		positions = append(positions, pos.Vec4(1))
		velocities = append(velocities, vel.Vec4(0))
	}
	return positions, velocities
}
