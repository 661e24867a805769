package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/telemetry"
)

func TestParamVectorNormalize(t *testing.T) {
	pv := NewParamVector()
	raw := []float64{60, 0.1, 0.6}

	norm := pv.Normalize(raw)
	for _, v := range norm {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDeltaSlice(t, raw, pv.Denormalize(norm), 1e-9)
}

func TestParamVectorClamp(t *testing.T) {
	pv := NewParamVector()
	got := pv.Clamp([]float64{-5, 2, 0.5})
	assert.Equal(t, []float64{10, 1, 0.5}, got)
}

func TestParamVectorConfigRoundTrip(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	pv := NewParamVector()
	pv.ApplyToConfig(cfg, []float64{120, 0.3, 0.9})
	assert.Equal(t, []float64{120, 0.3, 0.9}, pv.ExtractFromConfig(cfg))
	assert.Equal(t, 120.0, cfg.Simulation.GasConstant)
}

func TestSettleScore(t *testing.T) {
	calm := telemetry.FrameStats{Fluid: 100, Compression: 0.1, KineticEnergy: 1}
	assert.InDelta(t, 0.11, SettleScore(calm), 1e-12)

	escaped := calm
	escaped.Escaped = 2
	assert.Greater(t, SettleScore(escaped), 1000.0)

	broken := telemetry.FrameStats{Fluid: 10, Compression: math.NaN()}
	assert.True(t, math.IsInf(SettleScore(broken), 1))
}
