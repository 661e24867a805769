// Package camera provides an orbit camera around the simulation box.
package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera orbits a target point. Angles are in degrees.
type Camera struct {
	Target   mgl32.Vec3
	Distance float32
	Yaw      float32 // Around +Y, 0 looks down -Z
	Pitch    float32 // Above the XZ plane

	// Vertical field of view in degrees
	FovY float32

	MinDistance, MaxDistance float32

	home struct{ distance, yaw, pitch float32 }
}

// Sensitivity is degrees of rotation per dragged pixel.
const Sensitivity = 0.3

const maxPitch = 89

// New creates a camera looking at target.
func New(target mgl32.Vec3, distance, yaw, pitch float32) *Camera {
	c := &Camera{
		Target:      target,
		FovY:        45,
		MinDistance: 0.5,
		MaxDistance: 50,
	}
	c.home.distance, c.home.yaw, c.home.pitch = distance, yaw, pitch
	c.Reset()
	return c
}

// Eye returns the camera position in world coordinates.
func (c *Camera) Eye() mgl32.Vec3 {
	yaw := mgl32.DegToRad(c.Yaw)
	pitch := mgl32.DegToRad(c.Pitch)
	cp := float32(math.Cos(float64(pitch)))
	offset := mgl32.Vec3{
		cp * float32(math.Sin(float64(yaw))),
		float32(math.Sin(float64(pitch))),
		cp * float32(math.Cos(float64(yaw))),
	}
	return c.Target.Add(offset.Mul(c.Distance))
}

// Up is the camera up vector.
func (c *Camera) Up() mgl32.Vec3 {
	return mgl32.Vec3{0, 1, 0}
}

// View returns the view matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye(), c.Target, c.Up())
}

// Projection returns the perspective matrix for the given aspect ratio.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(c.FovY), aspect, 0.01, 1000)
}

// WorldToScreen projects p into a viewport of the given size. ok is false
// for points behind the camera.
func (c *Camera) WorldToScreen(p mgl32.Vec3, viewportW, viewportH float32) (sx, sy float32, ok bool) {
	clip := c.Projection(viewportW/viewportH).Mul4(c.View()).Mul4x1(p.Vec4(1))
	if clip.W() <= 0 {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	sx = (ndc.X() + 1) / 2 * viewportW
	sy = (1 - ndc.Y()) / 2 * viewportH
	return sx, sy, true
}

// Orbit rotates by a mouse drag in screen pixels.
func (c *Camera) Orbit(dx, dy float32) {
	c.Yaw = float32(math.Mod(float64(c.Yaw-dx*Sensitivity), 360))
	c.Pitch = clamp(c.Pitch+dy*Sensitivity, -maxPitch, maxPitch)
}

// ZoomBy scales the distance to the target, clamped to min/max.
func (c *Camera) ZoomBy(factor float32) {
	if factor <= 0 {
		return
	}
	c.Distance = clamp(c.Distance*factor, c.MinDistance, c.MaxDistance)
}

// Reset returns the camera to the position it was created with.
func (c *Camera) Reset() {
	c.Distance = clamp(c.home.distance, c.MinDistance, c.MaxDistance)
	c.Yaw = c.home.yaw
	c.Pitch = clamp(c.home.pitch, -maxPitch, maxPitch)
}

func clamp(x, min, max float32) float32 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
