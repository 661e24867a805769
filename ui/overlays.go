package ui

import (
	"fmt"
	"strings"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// OverlayID uniquely identifies an overlay.
type OverlayID string

// Standard overlay IDs.
const (
	OverlayBox       OverlayID = "box"
	OverlayGhosts    OverlayID = "ghosts"
	OverlayStats     OverlayID = "stats"
	OverlayFramePlot OverlayID = "frame_plot"
)

// OverlayDescriptor defines an overlay that can be toggled.
type OverlayDescriptor struct {
	ID       OverlayID
	Name     string
	Key      int32  // Keyboard key to toggle (0 = no key)
	KeyLabel string // Key label for display
	Default  bool
}

// OverlayRegistry manages overlay state.
type OverlayRegistry struct {
	order   []OverlayDescriptor
	enabled map[OverlayID]bool
}

// NewOverlayRegistry creates a registry with the standard overlays.
func NewOverlayRegistry() *OverlayRegistry {
	r := &OverlayRegistry{enabled: make(map[OverlayID]bool)}
	r.Register(OverlayDescriptor{ID: OverlayBox, Name: "Box", Key: rl.KeyB, KeyLabel: "B", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayGhosts, Name: "Ghosts", Key: rl.KeyG, KeyLabel: "G", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayStats, Name: "Stats", Key: rl.KeyI, KeyLabel: "I", Default: true})
	r.Register(OverlayDescriptor{ID: OverlayFramePlot, Name: "Frame times", Key: rl.KeyF, KeyLabel: "F", Default: true})
	return r
}

// Register adds an overlay in its default state.
func (r *OverlayRegistry) Register(d OverlayDescriptor) {
	r.order = append(r.order, d)
	r.enabled[d.ID] = d.Default
}

// IsEnabled reports whether an overlay is shown.
func (r *OverlayRegistry) IsEnabled(id OverlayID) bool {
	return r.enabled[id]
}

// Toggle flips an overlay and returns its new state.
func (r *OverlayRegistry) Toggle(id OverlayID) bool {
	r.enabled[id] = !r.enabled[id]
	return r.enabled[id]
}

// HandleInput toggles overlays whose key was pressed this frame.
func (r *OverlayRegistry) HandleInput() {
	for _, d := range r.order {
		if d.Key != 0 && rl.IsKeyPressed(d.Key) {
			r.Toggle(d.ID)
		}
	}
}

// Legend returns the key bindings, e.g. "[B] Box".
func (r *OverlayRegistry) Legend() string {
	parts := make([]string, 0, len(r.order))
	for _, d := range r.order {
		if d.KeyLabel != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", d.KeyLabel, d.Name))
		}
	}
	return strings.Join(parts, "  ")
}
