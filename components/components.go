// Package components defines ECS components for the initial particle layout.
package components

import "github.com/go-gl/mathgl/mgl32"

// Position is a particle position in box coordinates.
type Position struct {
	mgl32.Vec3
}

// Velocity is a particle velocity.
type Velocity struct {
	mgl32.Vec3
}

// Ghost tags a static boundary particle. Ghosts are never integrated.
type Ghost struct{}

// Fluid tags a simulated particle.
type Fluid struct{}
