package game

import (
	"math"
	"time"
)

// Clock measures the simulated time of each frame. Time spent paused is
// never handed to the solver.
type Clock struct {
	last    time.Time
	running bool
}

// Tick returns the seconds since the previous running frame. The first
// running frame after construction or a pause returns 0.
func (c *Clock) Tick(now time.Time, paused bool) float32 {
	if paused {
		c.running = false
		return 0
	}
	if !c.running {
		c.running = true
		c.last = now
		return 0
	}
	dt := now.Sub(c.last).Seconds()
	c.last = now
	return float32(dt)
}

// Substeps splits a frame time into n equal steps no longer than maxStep.
// Frame time beyond maxStep*maxSubsteps is dropped.
func Substeps(dt, maxStep float32, maxSubsteps int) (n int, step float32) {
	if !(dt > 0) || !(maxStep > 0) {
		return 0, 0
	}
	if limit := maxStep * float32(maxSubsteps); dt > limit {
		dt = limit
	}
	n = int(math.Ceil(float64(dt / maxStep)))
	n = min(max(n, 1), maxSubsteps)
	return n, dt / float32(n)
}
