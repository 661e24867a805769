package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/sphfluid/inspector"
	"github.com/pthm-cable/sphfluid/telemetry"
)

// HUDData holds everything the HUD shows for one frame.
type HUDData struct {
	Frame     int64
	Steps     uint64
	SimTime   float64
	Particles int
	Fluid     int
	FPS       int32
	Paused    bool

	FrameTimes   []float64 // Milliseconds, oldest first
	FrameBudget  float64   // Milliseconds
	Stats        telemetry.FrameStats
	ScreenWidth  int32
	ScreenHeight int32
}

// HUDActions reports what the user did in the HUD this frame.
type HUDActions struct {
	TogglePause bool
}

// HUD renders the heads-up display and owns the particle size setting.
type HUD struct {
	renderer *Renderer
	overlays *OverlayRegistry

	ParticleSize             float32
	minParticle, maxParticle float32
}

// NewHUD creates a HUD. The particle size slider spans [minSize, maxSize].
func NewHUD(overlays *OverlayRegistry, size, minSize, maxSize float32) *HUD {
	return &HUD{
		renderer:     NewRenderer(),
		overlays:     overlays,
		ParticleSize: size,
		minParticle:  minSize,
		maxParticle:  maxSize,
	}
}

const (
	panelWidth = 260
	plotHeight = 80
)

// Draw renders the HUD and returns the user's actions.
func (h *HUD) Draw(data HUDData) HUDActions {
	var actions HUDActions
	r := h.renderer
	pad := r.Theme.Padding
	x := pad
	y := pad

	// Status panel
	r.DrawPanel(x, y, panelWidth, 150)
	cy := y + pad
	status := "Running"
	if data.Paused {
		status = "PAUSED"
	}
	rl.DrawText(status, x+pad, cy, 20, rl.Yellow)
	cy += 26
	cy = r.DrawLabelValue(x+pad, cy, "Frame", fmt.Sprintf("%d", data.Frame))
	cy = r.DrawLabelValue(x+pad, cy, "Sim time", fmt.Sprintf("%.2fs (%d steps)", data.SimTime, data.Steps))
	cy = r.DrawLabelValue(x+pad, cy, "Particles", fmt.Sprintf("%d (%d fluid)", data.Particles, data.Fluid))
	cy = r.DrawLabelValue(x+pad, cy, "FPS", fmt.Sprintf("%d", data.FPS))

	label := "Pause"
	if data.Paused {
		label = "Resume"
	}
	if gui.Button(rl.Rectangle{X: float32(x + pad), Y: float32(cy + 4), Width: 100, Height: 24}, label) {
		actions.TogglePause = true
	}
	y += 150 + pad

	// Particle size
	r.DrawPanel(x, y, panelWidth, 50)
	rl.DrawText("Particle size", x+pad, y+6, r.Theme.FontSize, r.Theme.LabelColor)
	h.ParticleSize = gui.SliderBar(
		rl.Rectangle{X: float32(x + pad), Y: float32(y + 24), Width: panelWidth - 80, Height: 16},
		"", fmt.Sprintf("%.3f", h.ParticleSize),
		h.ParticleSize, h.minParticle, h.maxParticle,
	)
	y += 50 + pad

	if h.overlays.IsEnabled(OverlayFramePlot) {
		maxMS := 2 * data.FrameBudget
		for _, v := range data.FrameTimes {
			if v > maxMS {
				maxMS = v
			}
		}
		r.DrawPlot(x, y, panelWidth, plotHeight, data.FrameTimes, maxMS, data.FrameBudget, "Frame time")
		y += plotHeight + pad
	}

	if h.overlays.IsEnabled(OverlayStats) && data.Stats.Frame > 0 {
		fields := inspector.Fields(data.Stats)
		height := int32(len(fields))*r.Theme.LineHeight + r.Theme.LineHeight + 2*pad + 4
		r.DrawPanel(x, y, panelWidth, height)
		cy := r.DrawSectionHeader(x+pad, y+pad, "Fluid")
		for _, f := range fields {
			cy = r.DrawField(x+pad, cy, f, panelWidth-2*pad)
		}
	}

	legend := "[Space] Pause  [Drag] Orbit  [Wheel] Zoom  [Home] Reset view  " + h.overlays.Legend()
	rl.DrawText(legend, pad, data.ScreenHeight-22, r.Theme.FontSize, rl.Gray)

	return actions
}
