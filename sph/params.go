package sph

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/pthm-cable/sphfluid/config"
)

// Params is the immutable per-run simulation record. Changing any field
// means building a new Solver.
type Params struct {
	ParticleCount   uint32 // Ghosts included
	GhostCount      uint32
	SmoothingRadius float32
	Mass            float32
	Damping         float32
	GasConstant     float32
	RestDensity     float32
	Viscosity       float32
	Gravity         mgl32.Vec3
	Bounds          mgl32.Vec3
}

// ParamsFromConfig returns the simulation record described by cfg.
func ParamsFromConfig(cfg *config.Config) Params {
	s := cfg.Simulation
	return Params{
		ParticleCount:   uint32(s.ParticleCount),
		GhostCount:      uint32(cfg.Derived.GhostCount),
		SmoothingRadius: float32(s.SmoothingRadius),
		Mass:            float32(s.Mass),
		Damping:         float32(s.Damping),
		GasConstant:     float32(s.GasConstant),
		RestDensity:     float32(s.RestDensity),
		Viscosity:       float32(s.Viscosity),
		Gravity:         mgl32.Vec3(cfg.Derived.Gravity32),
		Bounds:          mgl32.Vec3(cfg.Derived.Bounds32),
	}
}

// FluidCount returns the number of integrated particles.
func (p Params) FluidCount() uint32 { return p.ParticleCount - p.GhostCount }

// Validate checks the invariants the kernels rely on.
func (p Params) Validate() error {
	switch {
	case p.GhostCount >= p.ParticleCount:
		return fmt.Errorf("sph: ghost count %d must be below particle count %d", p.GhostCount, p.ParticleCount)
	case !(p.SmoothingRadius > 0):
		return fmt.Errorf("sph: smoothing radius must be positive, got %v", p.SmoothingRadius)
	case !(p.Mass > 0):
		return fmt.Errorf("sph: mass must be positive, got %v", p.Mass)
	case !(p.RestDensity > 0):
		return fmt.Errorf("sph: rest density must be positive, got %v", p.RestDensity)
	case p.Damping < 0 || p.Damping > 1:
		return fmt.Errorf("sph: damping must be in [0, 1], got %v", p.Damping)
	}
	for a := 0; a < 3; a++ {
		if !(p.Bounds[a] > 0) {
			return fmt.Errorf("sph: bounds must be positive, got %v", p.Bounds)
		}
	}
	return nil
}
