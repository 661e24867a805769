package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/sphfluid/sph"
)

// LatticeDensity returns the SPH density of an interior particle of an
// infinite cubic lattice with the given spacing, self term included.
func LatticeDensity(h, mass, spacing float64) float64 {
	k := sph.NewKernels(float32(h))
	reach := int(math.Floor(h / spacing))
	h2 := h * h

	var sum float64
	for i := -reach; i <= reach; i++ {
		for j := -reach; j <= reach; j++ {
			for l := -reach; l <= reach; l++ {
				r2 := float64(i*i+j*j+l*l) * spacing * spacing
				if r2 <= h2 {
					sum += float64(k.Poly6(float32(r2)))
				}
			}
		}
	}
	return mass * sum
}

// CalibrateMass searches for the particle mass at which a lattice at the
// rest spacing cbrt(mass/rest) has SPH density equal to rest.
func CalibrateMass(h, rest, initialMass float64, maxEvals int) (float64, error) {
	residual := func(mass float64) float64 {
		if mass <= 0 {
			return math.Inf(1)
		}
		rho := LatticeDensity(h, mass, math.Cbrt(mass/rest))
		d := rho/rest - 1
		return d * d
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return residual(x[0]) },
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 50,
		},
	}
	method := &optimize.NelderMead{SimplexSize: initialMass * 0.1}

	result, err := optimize.Minimize(problem, []float64{initialMass}, settings, method)
	if err != nil {
		return 0, fmt.Errorf("minimizing lattice residual: %w", err)
	}
	return result.X[0], nil
}
