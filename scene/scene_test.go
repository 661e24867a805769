package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sphfluid/config"
)

func TestBuildFromDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	s, err := Build(LayoutFromConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, cfg.Derived.GhostCount, s.GhostCount())
	assert.Equal(t, cfg.Derived.FluidCount, s.FluidCount())
	assert.Equal(t, cfg.Simulation.ParticleCount, s.Len())

	positions, velocities := s.Pack()
	require.Len(t, positions, s.Len())
	require.Len(t, velocities, s.Len())

	spacing := cfg.Derived.FluidSpacing
	bounds := mgl32.Vec3(cfg.Derived.Bounds32)
	for i, p := range positions {
		assert.Equal(t, float32(1), p.W(), "particle %d", i)
		for a := 0; a < 3; a++ {
			require.GreaterOrEqual(t, p[a], float32(0), "particle %d axis %d", i, a)
			require.LessOrEqual(t, p[a], bounds[a], "particle %d axis %d", i, a)
		}
		if i < s.GhostCount() {
			// Ghosts come first and sit on the two floor layers.
			assert.True(t, p.Y() == 0 || p.Y() == spacing, "ghost %d at y=%v", i, p.Y())
		} else {
			assert.Greater(t, p.Y(), spacing, "fluid %d at y=%v", i, p.Y())
		}
	}
}

func TestBuildWithoutJitterIsLattice(t *testing.T) {
	l := Layout{
		Bounds:     mgl32.Vec3{1, 1, 0.5},
		Spacing:    0.125,
		FluidCount: 30,
		FillWidth:  0.5,
	}
	s, err := Build(l)
	require.NoError(t, err)

	// 9 x 5 floor points, two layers.
	assert.Equal(t, 2*9*5, s.GhostCount())

	positions, _ := s.Pack()
	first := positions[s.GhostCount()]
	assert.Equal(t, mgl32.Vec4{0.0625, 0.3125, 0.0625, 1}, first)
	last := positions[len(positions)-1]
	// 4 x 4 per layer: particle 29 is the second layer's 14th.
	assert.Equal(t, mgl32.Vec4{0.0625 + 3*0.125, 0.4375, 0.0625 + 1*0.125, 1}, last)
}

func TestBuildRejectsOverfullBox(t *testing.T) {
	l := Layout{
		Bounds:     mgl32.Vec3{0.5, 0.5, 0.5},
		Spacing:    0.1,
		FluidCount: 10000,
		FillWidth:  1,
	}
	_, err := Build(l)
	assert.Error(t, err)
}

func TestBuildIsDeterministic(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	a, err := Build(LayoutFromConfig(cfg))
	require.NoError(t, err)
	b, err := Build(LayoutFromConfig(cfg))
	require.NoError(t, err)

	pa, _ := a.Pack()
	pb, _ := b.Pack()
	assert.Equal(t, pa, pb)
}

func TestBuildMatchesDerivedCountsWhenSpacingDividesBounds(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Simulation.Mass = 0.125
	cfg.Simulation.RestDensity = 1000
	require.NoError(t, cfg.Prepare())

	s, err := Build(LayoutFromConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, cfg.Derived.GhostCount, s.GhostCount())
	assert.Equal(t, cfg.Simulation.ParticleCount, s.Len())

	positions, velocities := s.Pack()
	assert.Len(t, positions, cfg.Simulation.ParticleCount)
	assert.Len(t, velocities, cfg.Simulation.ParticleCount)
}
