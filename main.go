package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/game"
	"github.com/pthm-cable/sphfluid/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	headless := flag.Bool("headless", false, "Run without a window, starting unpaused")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	maxFrames := flag.Int64("max-frames", 0, "Stop after N frames (0 = unlimited)")
	serve := flag.String("serve", "", "Address for the websocket stats stream, e.g. :8080 (empty = off)")
	seed := flag.Int64("seed", 0, "Scene noise seed (0 = use config)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *seed != 0 {
		cfg.Scene.Seed = *seed
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hub *telemetry.Hub
	if *serve != "" {
		hub = telemetry.NewHub()
		go func() {
			if err := hub.Serve(ctx, *serve); err != nil {
				slog.Error("stats server stopped", "error", err)
			}
		}()
	}

	g, err := game.New(game.Options{
		Config:    cfg,
		Headless:  *headless,
		LogStats:  *logStats,
		OutputDir: *outputDir,
		Hub:       hub,
	})
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}

	if *headless {
		slog.Info("starting headless simulation",
			"seed", cfg.Scene.Seed,
			"max_frames", *maxFrames,
			"dt", cfg.Simulation.HeadlessDT,
		)
		err = g.RunHeadless(ctx, *maxFrames)
	} else {
		err = runWindow(ctx, g, *maxFrames)
	}
	g.Close()

	if err != nil {
		slog.Error("simulation stopped", "frame", g.Frame(), "error", err)
		os.Exit(1)
	}
}
