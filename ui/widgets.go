package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/sphfluid/inspector"
)

// Renderer handles all UI drawing with consistent styling.
type Renderer struct {
	Theme Theme
}

// NewRenderer creates a renderer with the default theme.
func NewRenderer() *Renderer {
	return &Renderer{Theme: DefaultTheme()}
}

// DrawPanel draws a panel background with border.
func (r *Renderer) DrawPanel(x, y, width, height int32) {
	rl.DrawRectangle(x, y, width, height, r.Theme.PanelBg)
	rl.DrawRectangleLines(x, y, width, height, r.Theme.PanelBorder)
}

// DrawSectionHeader draws a section header and returns the new Y position.
func (r *Renderer) DrawSectionHeader(x, y int32, title string) int32 {
	rl.DrawText(title, x, y, r.Theme.HeaderFontSize, r.Theme.SectionHeader)
	return y + r.Theme.LineHeight + 2
}

// DrawLabelValue draws a label and value on the same line.
func (r *Renderer) DrawLabelValue(x, y int32, label, value string) int32 {
	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.LabelColor)
	rl.DrawText(value, x+r.Theme.LabelWidth, y, r.Theme.FontSize, r.Theme.ValueColor)
	return y + r.Theme.LineHeight
}

// DrawBar draws a progress bar for a value in [0, 1] with its text.
func (r *Renderer) DrawBar(x, y int32, label string, fraction float32, text string, width int32) int32 {
	barX := x + r.Theme.LabelWidth
	barWidth := width - r.Theme.LabelWidth - 50

	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.LabelColor)
	rl.DrawRectangle(barX, y+2, barWidth, r.Theme.BarHeight, r.Theme.BarBg)
	rl.DrawRectangle(barX, y+2, int32(float32(barWidth)*fraction), r.Theme.BarHeight, r.Theme.BarFill)
	rl.DrawText(text, barX+barWidth+5, y, r.Theme.FontSize, r.Theme.ValueColor)

	return y + r.Theme.LineHeight + 2
}

// DrawField renders one inspected field and returns the new Y position.
func (r *Renderer) DrawField(x, y int32, f inspector.Field, width int32) int32 {
	switch f.Widget {
	case inspector.WidgetBar:
		return r.DrawBar(x, y, f.Label, f.Fraction(), f.Text(), width)
	case inspector.WidgetBool:
		text := "no"
		if b, _ := f.Value.(bool); b {
			text = "yes"
		}
		return r.DrawLabelValue(x, y, f.Label, text)
	default:
		return r.DrawLabelValue(x, y, f.Label, f.Text())
	}
}

// DrawPlot draws samples oldest to newest across the rectangle, scaled so
// that maxValue reaches the top. A horizontal line marks budget when it is
// positive.
func (r *Renderer) DrawPlot(x, y, width, height int32, samples []float64, maxValue, budget float64, title string) {
	r.DrawPanel(x, y, width, height)
	rl.DrawText(title, x+4, y+2, r.Theme.FontSize, r.Theme.LabelColor)
	if maxValue <= 0 {
		return
	}

	scaleY := func(v float64) float32 {
		if v > maxValue {
			v = maxValue
		}
		return float32(y+height) - float32(v/maxValue)*float32(height)
	}

	if budget > 0 && budget < maxValue {
		by := int32(scaleY(budget))
		rl.DrawLine(x, by, x+width, by, r.Theme.PlotBudget)
	}
	if len(samples) < 2 {
		return
	}

	step := float32(width) / float32(len(samples)-1)
	points := make([]rl.Vector2, len(samples))
	for i, v := range samples {
		points[i] = rl.Vector2{X: float32(x) + float32(i)*step, Y: scaleY(v)}
	}
	rl.DrawLineStrip(points, r.Theme.PlotLine)

	last := samples[len(samples)-1]
	label := fmt.Sprintf("%.1f ms", last)
	rl.DrawText(label, x+width-rl.MeasureText(label, r.Theme.FontSize)-4, y+2, r.Theme.FontSize, r.Theme.ValueColor)
}
