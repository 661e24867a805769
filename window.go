package main

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/sphfluid/camera"
	"github.com/pthm-cable/sphfluid/game"
	"github.com/pthm-cable/sphfluid/renderer"
	"github.com/pthm-cable/sphfluid/sph"
	"github.com/pthm-cable/sphfluid/ui"
)

// viewer owns the window-side state of a graphical run.
type viewer struct {
	g          *game.Game
	cam        *camera.Camera
	background *renderer.BackgroundRenderer
	particles  *renderer.ParticleRenderer
	overlays   *ui.OverlayRegistry
	hud        *ui.HUD
	bounds     mgl32.Vec3
	ghosts     int
}

func newViewer(g *game.Game) *viewer {
	cfg := g.Config()
	r := cfg.Render
	bounds := mgl32.Vec3(cfg.Derived.Bounds32)
	overlays := ui.NewOverlayRegistry()

	return &viewer{
		g:          g,
		cam:        camera.New(bounds.Mul(0.5), float32(r.CameraDistance), float32(r.CameraYaw), float32(r.CameraPitch)),
		background: renderer.NewBackgroundRenderer(int32(cfg.Screen.Width), int32(cfg.Screen.Height)),
		particles:  renderer.NewParticleRenderer(float32(r.ParticleSize)),
		overlays:   overlays,
		hud:        ui.NewHUD(overlays, float32(r.ParticleSize), float32(r.ParticleSizeMin), float32(r.ParticleSizeMax)),
		bounds:     bounds,
		ghosts:     cfg.Derived.GhostCount,
	}
}

// runWindow opens the window and runs frames until it is closed, ctx is
// done or maxFrames frames were submitted (0 = unlimited).
func runWindow(ctx context.Context, g *game.Game, maxFrames int64) error {
	cfg := g.Config()
	rl.SetConfigFlags(rl.FlagWindowResizable | rl.FlagMsaa4xHint)
	rl.InitWindow(int32(cfg.Screen.Width), int32(cfg.Screen.Height), cfg.Screen.Title)
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	v := newViewer(g)
	var clock game.Clock

	for !rl.WindowShouldClose() && ctx.Err() == nil {
		v.handleInput()

		dt := clock.Tick(time.Now(), g.Paused())
		if err := g.UpdateAndPresent(ctx, dt, v.draw); err != nil {
			return err
		}

		if maxFrames > 0 && g.Frame() >= maxFrames {
			break
		}
	}
	return nil
}

func (v *viewer) handleInput() {
	if rl.IsWindowResized() {
		v.background.Resize(int32(rl.GetScreenWidth()), int32(rl.GetScreenHeight()))
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		v.g.TogglePaused()
	}
	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	v.overlays.HandleInput()

	// Camera: drag with the right button so the HUD keeps the left one
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		v.cam.Orbit(d.X, d.Y)
	}
	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		v.cam.ZoomBy(1 - wheel*0.1)
	}
	if rl.IsKeyPressed(rl.KeyHome) {
		v.cam.Reset()
	}
}

func (v *viewer) draw(vertices []sph.DisplayVertex) {
	rl.BeginDrawing()
	v.background.Draw()

	renderer.BeginScene(v.cam)
	v.particles.Size = v.hud.ParticleSize
	if v.overlays.IsEnabled(ui.OverlayGhosts) {
		v.particles.Draw(vertices)
	} else {
		v.particles.Draw(vertices[v.ghosts:])
	}
	if v.overlays.IsEnabled(ui.OverlayBox) {
		renderer.DrawBox(v.bounds)
	}
	renderer.EndScene()

	solver := v.g.Solver()
	cfg := v.g.Config()
	actions := v.hud.Draw(ui.HUDData{
		Frame:        v.g.Frame(),
		Steps:        solver.Steps(),
		SimTime:      solver.SimTime(),
		Particles:    len(vertices),
		Fluid:        cfg.Derived.FluidCount,
		FPS:          rl.GetFPS(),
		Paused:       v.g.Paused(),
		FrameTimes:   v.g.Perf().FrameTimes(),
		FrameBudget:  1000 / float64(max(cfg.Screen.TargetFPS, 1)),
		Stats:        v.g.LastStats(),
		ScreenWidth:  int32(rl.GetScreenWidth()),
		ScreenHeight: int32(rl.GetScreenHeight()),
	})
	rl.EndDrawing()

	if actions.TogglePause {
		v.g.TogglePaused()
	}
}
