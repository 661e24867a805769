package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatticeDensitySelfTerm(t *testing.T) {
	// Spacing beyond h leaves only the particle itself
	h := 0.15
	got := LatticeDensity(h, 1, 0.2)
	want := 315 / (64 * math.Pi * h * h * h)
	assert.InEpsilon(t, want, got, 1e-4)
}

func TestLatticeDensityScalesWithMass(t *testing.T) {
	one := LatticeDensity(0.15, 1, 0.08)
	two := LatticeDensity(0.15, 2, 0.08)
	assert.InEpsilon(t, 2*one, two, 1e-6)
}

func TestLatticeDensityGrowsWithNeighbours(t *testing.T) {
	sparse := LatticeDensity(0.15, 0.1, 0.12)
	dense := LatticeDensity(0.15, 0.1, 0.06)
	assert.Greater(t, dense, sparse)
}

func TestCalibrateMass(t *testing.T) {
	const h, rest = 0.15, 200.0
	mass, err := CalibrateMass(h, rest, 0.12, 200)
	require.NoError(t, err)
	require.Greater(t, mass, 0.0)

	rho := LatticeDensity(h, mass, math.Cbrt(mass/rest))
	assert.InEpsilon(t, rest, rho, 0.01)
}
