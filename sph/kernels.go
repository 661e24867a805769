package sph

import "math"

// Kernels holds the smoothing kernels for one smoothing radius h. All of them
// vanish for r >= h.
//
//	poly6(r)           = 315 / (64 pi h^9) * (h^2 - r^2)^3
//	|grad spiky(r)|    = 45 / (pi h^6) * (h - r)^2
//	laplacian visc(r)  = 45 / (pi h^6) * (h - r)
type Kernels struct {
	h, h2 float32

	poly6Coef float32
	spikyCoef float32
	viscCoef  float32
}

// NewKernels precomputes the kernel coefficients for radius h.
func NewKernels(h float32) Kernels {
	hh := float64(h)
	return Kernels{
		h:         h,
		h2:        h * h,
		poly6Coef: float32(315 / (64 * math.Pi * math.Pow(hh, 9))),
		spikyCoef: float32(45 / (math.Pi * math.Pow(hh, 6))),
		viscCoef:  float32(45 / (math.Pi * math.Pow(hh, 6))),
	}
}

// Radius returns h.
func (k Kernels) Radius() float32 { return k.h }

// Poly6 evaluates the density kernel at squared distance r2.
func (k Kernels) Poly6(r2 float32) float32 {
	if r2 >= k.h2 {
		return 0
	}
	d := k.h2 - r2
	return k.poly6Coef * d * d * d
}

// SpikyGrad returns the magnitude of the spiky kernel gradient at distance r.
// The gradient points from the neighbour towards the particle.
func (k Kernels) SpikyGrad(r float32) float32 {
	if r >= k.h {
		return 0
	}
	d := k.h - r
	return k.spikyCoef * d * d
}

// ViscLaplacian evaluates the viscosity kernel Laplacian at distance r.
func (k Kernels) ViscLaplacian(r float32) float32 {
	if r >= k.h {
		return 0
	}
	return k.viscCoef * (k.h - r)
}

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }
