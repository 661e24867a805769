package main

import (
	"context"
	"math"
	"sync"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/game"
	"github.com/pthm-cable/sphfluid/telemetry"
)

// escapePenalty is added per particle that left the box or went non-finite.
const escapePenalty = 1e3

// FitnessEvaluator runs headless simulations and scores how well the fluid
// settles. Lower is better.
type FitnessEvaluator struct {
	params     *ParamVector
	frames     int64
	seeds      []int64
	baseConfig *config.Config

	mu        sync.Mutex
	lastStats telemetry.FrameStats
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, frames int64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		frames:     frames,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastStats returns the final frame statistics of the most recent run.
func (fe *FitnessEvaluator) LastStats() telemetry.FrameStats {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastStats
}

// Evaluate scores a raw parameter vector averaged over all seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	scores := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			stats, err := fe.run(x, s)
			if err != nil {
				scores[idx] = math.Inf(1)
				return
			}
			scores[idx] = SettleScore(stats)
			fe.mu.Lock()
			fe.lastStats = stats
			fe.mu.Unlock()
		}(i, seed)
	}
	wg.Wait()

	var total float64
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

func (fe *FitnessEvaluator) run(x []float64, seed int64) (telemetry.FrameStats, error) {
	cfg := *fe.baseConfig
	fe.params.ApplyToConfig(&cfg, x)
	cfg.Scene.Seed = seed
	cfg.Telemetry.StatsInterval = int(fe.frames)
	if err := cfg.Prepare(); err != nil {
		return telemetry.FrameStats{}, err
	}

	g, err := game.New(game.Options{Config: &cfg, Headless: true})
	if err != nil {
		return telemetry.FrameStats{}, err
	}
	defer g.Close()

	if err := g.RunHeadless(context.Background(), fe.frames); err != nil {
		return telemetry.FrameStats{}, err
	}
	return g.LastStats(), nil
}

// SettleScore combines compression, kinetic energy per fluid particle and
// escaped particles into a single cost.
func SettleScore(s telemetry.FrameStats) float64 {
	score := s.Compression + float64(s.Escaped)*escapePenalty
	if s.Fluid > 0 {
		score += s.KineticEnergy / float64(s.Fluid)
	}
	if math.IsNaN(score) {
		return math.Inf(1)
	}
	return score
}
