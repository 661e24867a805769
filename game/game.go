// Package game runs the frame loop: it owns the compute device and the
// solver, turns wall-clock time and pause state into encoded work, and
// reports statistics on a fixed frame cadence.
package game

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/gpu"
	"github.com/pthm-cable/sphfluid/scene"
	"github.com/pthm-cable/sphfluid/sph"
	"github.com/pthm-cable/sphfluid/telemetry"
)

// Options configures a Game.
type Options struct {
	Config    *config.Config
	Headless  bool // Starts running instead of paused
	LogStats  bool
	OutputDir string
	Hub       *telemetry.Hub // Optional websocket stream
}

// Game holds the complete simulation state.
type Game struct {
	cfg    *config.Config
	dev    *gpu.Device
	solver *sph.Solver

	frame  int64
	paused bool
	closed bool

	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager
	hub       *telemetry.Hub
	logStats  bool
	lastStats telemetry.FrameStats
}

// New builds the scene, the device and the solver.
func New(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("game: nil config")
	}

	sc, err := scene.Build(scene.LayoutFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("building scene: %w", err)
	}
	positions, velocities := sc.Pack()

	dev, err := gpu.NewDevice(gpu.DeviceOptions{Label: "sph", Workers: cfg.GPU.Workers})
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}

	solver, err := sph.New(dev, sph.ParamsFromConfig(cfg), positions, velocities)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("creating solver: %w", err)
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		dev.Close()
		return nil, err
	}
	if err := output.WriteConfig(cfg); err != nil {
		output.Close()
		dev.Close()
		return nil, err
	}

	g := &Game{
		cfg:      cfg,
		dev:      dev,
		solver:   solver,
		paused:   !opts.Headless,
		perf:     telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		output:   output,
		hub:      opts.Hub,
		logStats: opts.LogStats,
	}

	grid := solver.Grid()
	slog.Info("simulation ready",
		"particles", len(positions),
		"ghosts", sc.GhostCount(),
		"fluid", sc.FluidCount(),
		"cells", grid.CellTotal(),
		"spacing", cfg.Derived.FluidSpacing,
		"paused", g.paused,
	)
	return g, nil
}

// Close waits for submitted work and releases the device and output files.
// Closing twice is a no-op.
func (g *Game) Close() {
	if g.closed {
		return
	}
	g.closed = true
	if err := g.output.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
	g.dev.Close()
}

// Frame returns the number of frames submitted.
func (g *Game) Frame() int64 { return g.frame }

// Paused reports whether the simulation is paused.
func (g *Game) Paused() bool { return g.paused }

// SetPaused pauses or resumes the simulation from the next frame.
func (g *Game) SetPaused(p bool) {
	if p != g.paused {
		slog.Info("pause toggled", "paused", p, "frame", g.frame)
	}
	g.paused = p
}

// TogglePaused flips the pause state.
func (g *Game) TogglePaused() { g.SetPaused(!g.paused) }

// Solver returns the SPH solver.
func (g *Game) Solver() *sph.Solver { return g.solver }

// Config returns the run configuration.
func (g *Game) Config() *config.Config { return g.cfg }

// Perf returns the frame timing collector.
func (g *Game) Perf() *telemetry.PerfCollector { return g.perf }

// LastStats returns the most recent frame statistics.
func (g *Game) LastStats() telemetry.FrameStats { return g.lastStats }

// Presenter draws the display vertices read back after a frame.
type Presenter func(vertices []sph.DisplayVertex)

// Update encodes and submits one frame. dt is the wall-clock frame time in
// seconds; it is ignored while paused. The returned error wraps
// gpu.ErrDeviceLost when the device has failed.
func (g *Game) Update(ctx context.Context, dt float32) error {
	return g.UpdateAndPresent(ctx, dt, nil)
}

// UpdateAndPresent is Update followed by a read-back of the display buffer
// handed to present. A nil present skips the read-back.
func (g *Game) UpdateAndPresent(ctx context.Context, dt float32, present Presenter) error {
	g.applyControls()
	g.perf.RecordFrame()

	g.perf.StartFrame()
	defer g.perf.EndFrame()
	g.perf.StartPhase(telemetry.PhaseEncode)

	enc := g.dev.NewEncoder("frame")
	n, step := 0, float32(0)
	if !g.paused {
		sim := g.cfg.Simulation
		n, step = Substeps(dt, float32(sim.MaxTimeStep), sim.MaxSubsteps)
	}
	if n == 0 {
		g.solver.Encode(enc, sph.FrameInput{Paused: true})
	} else {
		for i := 0; i < n-1; i++ {
			g.solver.Step(enc, step)
		}
		g.solver.Encode(enc, sph.FrameInput{DT: step})
	}

	g.perf.StartPhase(telemetry.PhaseSubmit)
	cb, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("encoding frame %d: %w", g.frame, err)
	}
	if err := g.dev.Queue().Submit(cb); err != nil {
		return fmt.Errorf("submitting frame %d: %w", g.frame, err)
	}
	g.frame++

	if present != nil {
		g.perf.StartPhase(telemetry.PhaseSync)
		vertices, err := g.solver.ReadDisplay(ctx)
		if err != nil {
			return fmt.Errorf("reading display at frame %d: %w", g.frame, err)
		}
		g.perf.StartPhase(telemetry.PhaseRender)
		present(vertices)
	}

	if every := g.cfg.Telemetry.StatsInterval; every > 0 && g.frame%int64(every) == 0 {
		if err := g.report(ctx); err != nil {
			return err
		}
	}
	return nil
}

// applyControls drains pause requests from websocket clients.
func (g *Game) applyControls() {
	if g.hub == nil {
		return
	}
	for {
		select {
		case c := <-g.hub.Controls():
			if c.Paused != nil {
				g.SetPaused(*c.Paused)
			}
		default:
			return
		}
	}
}

// report reads a snapshot back and publishes statistics.
func (g *Game) report(ctx context.Context) error {
	g.perf.StartPhase(telemetry.PhaseSync)
	snap, err := g.solver.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("reading snapshot at frame %d: %w", g.frame, err)
	}

	g.perf.StartPhase(telemetry.PhaseTelemetry)
	stats := telemetry.ComputeFrameStats(snap, g.solver.Params(), g.frame, g.solver.Steps(), g.solver.SimTime())
	g.lastStats = stats

	perf := g.perf.Stats()
	perf.Kernels = g.dev.KernelTimings()

	if g.logStats {
		slog.Info("stats", "frame_stats", stats, "perf", perf)
	}
	if stats.Escaped > 0 {
		slog.Warn("particles outside the box", "frame", g.frame, "escaped", stats.Escaped)
	}

	if err := g.output.WriteStats(stats); err != nil {
		slog.Error("failed to write stats", "error", err)
	}
	if err := g.output.WritePerf(perf, g.frame); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if g.hub != nil {
		if err := g.hub.Broadcast(stats); err != nil {
			slog.Error("failed to broadcast stats", "error", err)
		}
	}
	return nil
}

// RunHeadless advances the simulation with the fixed headless frame time
// until maxFrames frames were submitted (0 = unlimited) or ctx is done.
func (g *Game) RunHeadless(ctx context.Context, maxFrames int64) error {
	dt := float32(g.cfg.Simulation.HeadlessDT)
	for maxFrames <= 0 || g.frame < maxFrames {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := g.Update(ctx, dt); err != nil {
			return err
		}
	}

	if err := g.dev.Queue().WaitIdle(context.Background()); err != nil {
		return fmt.Errorf("finishing frame %d: %w", g.frame, err)
	}
	slog.Info("headless run finished",
		"frames", g.frame,
		"steps", g.solver.Steps(),
		"sim_time", g.solver.SimTime(),
	)
	return nil
}
