package renderer

import (
	"github.com/go-gl/mathgl/mgl32"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/sphfluid/camera"
	"github.com/pthm-cable/sphfluid/sph"
)

// ParticleRenderer draws the solver's display vertices inside a 3D pass.
type ParticleRenderer struct {
	Size float32 // Cube edge in world units
}

// NewParticleRenderer creates a particle renderer.
func NewParticleRenderer(size float32) *ParticleRenderer {
	return &ParticleRenderer{Size: size}
}

// Draw renders one cube per vertex. Call between BeginScene and EndScene.
func (r *ParticleRenderer) Draw(vertices []sph.DisplayVertex) {
	for i := range vertices {
		v := &vertices[i]
		pos := rl.Vector3{X: v.Position.X(), Y: v.Position.Y(), Z: v.Position.Z()}
		rl.DrawCube(pos, r.Size, r.Size, r.Size, toColor(v.Color))
	}
}

// DrawBox draws the simulation domain [0, bounds] as a wireframe.
func DrawBox(bounds mgl32.Vec3) {
	center := bounds.Mul(0.5)
	rl.DrawCubeWiresV(
		rl.Vector3{X: center.X(), Y: center.Y(), Z: center.Z()},
		rl.Vector3{X: bounds.X(), Y: bounds.Y(), Z: bounds.Z()},
		rl.Color{R: 160, G: 170, B: 180, A: 255},
	)
}

// BeginScene starts a 3D pass seen from cam.
func BeginScene(cam *camera.Camera) {
	eye, target, up := cam.Eye(), cam.Target, cam.Up()
	rl.BeginMode3D(rl.Camera3D{
		Position:   rl.Vector3{X: eye.X(), Y: eye.Y(), Z: eye.Z()},
		Target:     rl.Vector3{X: target.X(), Y: target.Y(), Z: target.Z()},
		Up:         rl.Vector3{X: up.X(), Y: up.Y(), Z: up.Z()},
		Fovy:       cam.FovY,
		Projection: rl.CameraPerspective,
	})
}

// EndScene ends the 3D pass.
func EndScene() {
	rl.EndMode3D()
}

func toColor(c mgl32.Vec4) rl.Color {
	return rl.Color{
		R: unit8(c.X()),
		G: unit8(c.Y()),
		B: unit8(c.Z()),
		A: unit8(c.W()),
	}
}

// unit8 maps [0, 1] to [0, 255].
func unit8(x float32) uint8 {
	if !(x > 0) {
		return 0
	}
	if x >= 1 {
		return 255
	}
	return uint8(x*255 + 0.5)
}
