package renderer

import rl "github.com/gen2brain/raylib-go/raylib"

// BackgroundRenderer fills the screen with a vertical gradient.
type BackgroundRenderer struct {
	screenW, screenH int32
	top, bottom      rl.Color
}

// NewBackgroundRenderer creates a background of the given size.
func NewBackgroundRenderer(screenW, screenH int32) *BackgroundRenderer {
	return &BackgroundRenderer{
		screenW: screenW,
		screenH: screenH,
		top:     rl.Color{R: 24, G: 28, B: 36, A: 255},
		bottom:  rl.Color{R: 8, G: 10, B: 14, A: 255},
	}
}

// Resize updates the screen size.
func (b *BackgroundRenderer) Resize(screenW, screenH int32) {
	b.screenW, b.screenH = screenW, screenH
}

// Draw clears the frame with the gradient.
func (b *BackgroundRenderer) Draw() {
	rl.DrawRectangleGradientV(0, 0, b.screenW, b.screenH, b.top, b.bottom)
}
