// Package main calibrates SPH parameters: it solves for the particle mass at
// which a resting lattice reaches rest density, then optionally tunes the
// pressure and damping constants with CMA-ES on short headless runs.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/sphfluid/config"
)

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	outputDir := flag.String("output", "", "Output directory for results")
	massEvals := flag.Int("mass-evals", 200, "Maximum evaluations for the mass search")
	settleFrames := flag.Int64("settle-frames", 0, "Frames per settle run (0 = skip the settle search)")
	seeds := flag.Int("seeds", 2, "Number of seeds per settle evaluation")
	maxEvals := flag.Int("max-evals", 60, "Maximum number of settle evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	// Simulation runs log at info; keep the terminal for progress lines
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sim := &baseCfg.Simulation

	// Phase 1: mass
	before := LatticeDensity(sim.SmoothingRadius, sim.Mass, math.Cbrt(sim.Mass/sim.RestDensity))
	mass, err := CalibrateMass(sim.SmoothingRadius, sim.RestDensity, sim.Mass, *massEvals)
	if err != nil {
		log.Fatalf("mass calibration failed: %v", err)
	}
	spacing := math.Cbrt(mass / sim.RestDensity)
	after := LatticeDensity(sim.SmoothingRadius, mass, spacing)
	fmt.Printf("Mass: %.6f -> %.6f (lattice density %.2f -> %.2f, rest %.2f, spacing %.4f)\n",
		sim.Mass, mass, before, after, sim.RestDensity, spacing)

	sim.Mass = mass
	if err := baseCfg.Prepare(); err != nil {
		log.Fatalf("calibrated config is invalid: %v", err)
	}

	if *settleFrames > 0 {
		best := settle(baseCfg, *outputDir, *settleFrames, *seeds, *maxEvals, *population)
		NewParamVector().ApplyToConfig(baseCfg, best)
		if err := baseCfg.Prepare(); err != nil {
			log.Fatalf("tuned config is invalid: %v", err)
		}
	}

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := baseCfg.WriteYAML(configOutPath); err != nil {
		log.Fatalf("failed to write best config: %v", err)
	}
	fmt.Printf("Best config saved to: %s\n", configOutPath)
}

// settle runs the CMA-ES search and returns the best raw parameter values.
func settle(baseCfg *config.Config, outputDir string, frames int64, seeds, maxEvals, population int) []float64 {
	params := NewParamVector()

	evalSeeds := make([]int64, seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, frames, evalSeeds, baseCfg)

	dim := params.Dim()
	initX := params.Normalize(params.ExtractFromConfig(baseCfg))

	popSize := population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}
	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Concurrent:      0,
	}
	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logPath := filepath.Join(outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "fitness", "compression", "kinetic_energy", "escaped"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	logWriter.Write(header)

	evalCount := 0
	bestFitness := math.Inf(1)
	bestParams := params.ExtractFromConfig(baseCfg)
	startTime := time.Now()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			clamped := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(clamped)
			evalCount++

			if fitness < bestFitness {
				bestFitness = fitness
				bestParams = clamped
			}

			stats := evaluator.LastStats()
			row := []string{
				strconv.Itoa(evalCount),
				fmt.Sprintf("%.6f", fitness),
				fmt.Sprintf("%.6f", stats.Compression),
				fmt.Sprintf("%.6f", stats.KineticEnergy),
				strconv.Itoa(stats.Escaped),
			}
			for _, v := range clamped {
				row = append(row, fmt.Sprintf("%.6f", v))
			}
			logWriter.Write(row)
			logWriter.Flush()

			elapsed := time.Since(startTime)
			remaining := time.Duration(maxEvals-evalCount) * (elapsed / time.Duration(evalCount))
			fmt.Printf("Eval %d/%d: fitness=%.4f compression=%.3f escaped=%d (best=%.4f) | elapsed: %s, ETA: %s\n",
				evalCount, maxEvals, fitness, stats.Compression, stats.Escaped, bestFitness,
				formatDuration(elapsed), formatDuration(remaining))

			return fitness
		},
	}

	fmt.Printf("Starting CMA-ES settle search with %d parameters, population=%d, max_evals=%d\n",
		dim, popSize, maxEvals)
	fmt.Printf("Seeds per evaluation: %d, frames per run: %d\n", seeds, frames)

	if _, err := optimize.Minimize(problem, initX, settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}

	fmt.Printf("\nSettle search complete after %d evaluations in %s, best fitness %.4f\n",
		evalCount, formatDuration(time.Since(startTime)), bestFitness)
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, bestParams[i])
	}
	return bestParams
}
