package game

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/sphfluid/config"
	"github.com/pthm-cable/sphfluid/sph"
	"github.com/pthm-cable/sphfluid/telemetry"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Simulation.ParticleCount = 1500
	cfg.Telemetry.StatsInterval = 5
	cfg.GPU.Workers = 2
	require.NoError(t, cfg.Prepare())
	return cfg
}

func newGame(t *testing.T, opts Options) *Game {
	t.Helper()
	if opts.Config == nil {
		opts.Config = smallConfig(t)
	}
	g, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func TestWindowedGameStartsPaused(t *testing.T) {
	g := newGame(t, Options{})
	ctx := context.Background()

	assert.True(t, g.Paused())
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Update(ctx, 0.016))
	}
	assert.Equal(t, int64(3), g.Frame())
	assert.Equal(t, uint64(0), g.Solver().Steps())

	g.TogglePaused()
	require.NoError(t, g.Update(ctx, 0.016))
	assert.Equal(t, uint64(4), g.Solver().Steps(), "0.016s splits into four 0.004s steps")
}

func TestUpdateWithZeroTimeDoesNotStep(t *testing.T) {
	g := newGame(t, Options{Headless: true})
	require.NoError(t, g.Update(context.Background(), 0))
	assert.Equal(t, uint64(0), g.Solver().Steps())
	assert.Equal(t, int64(1), g.Frame())
}

func TestFailedFrameIsStillTimed(t *testing.T) {
	g := newGame(t, Options{Headless: true})
	require.NoError(t, g.Update(context.Background(), 0.016))
	g.dev.Close()

	require.Error(t, g.Update(context.Background(), 0.016))
	assert.Equal(t, int64(1), g.Frame())
	assert.Len(t, g.Perf().FrameTimes(), 2)
}

func TestRunHeadlessWritesOutput(t *testing.T) {
	dir := t.TempDir()
	g := newGame(t, Options{Headless: true, OutputDir: dir})

	require.NoError(t, g.RunHeadless(context.Background(), 10))
	assert.Equal(t, int64(10), g.Frame())
	assert.InDelta(t, 10*0.016, g.Solver().SimTime(), 1e-6)

	stats := g.LastStats()
	assert.Equal(t, int64(10), stats.Frame)
	assert.Equal(t, g.Config().Derived.FluidCount, stats.Fluid)
	assert.Zero(t, stats.Escaped)
	assert.Greater(t, stats.DensityMean, 0.0)

	g.Close()
	data, err := os.ReadFile(filepath.Join(dir, "stats.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3, "header plus rows at frames 5 and 10")
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "perf.csv"))
}

func TestRunHeadlessStopsOnCancel(t *testing.T) {
	g := newGame(t, Options{Headless: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, g.RunHeadless(ctx, 0))
	assert.Equal(t, int64(0), g.Frame())
}

func TestHubControlsPause(t *testing.T) {
	hub := telemetry.NewHub()
	g := newGame(t, Options{Headless: true, Hub: hub})

	paused := true
	sendControl(t, hub, telemetry.Control{Paused: &paused})

	require.NoError(t, g.Update(context.Background(), 0.016))
	assert.True(t, g.Paused())
	assert.Equal(t, uint64(0), g.Solver().Steps())
}

func TestNewRejectsNilConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func sendControl(t *testing.T, hub *telemetry.Hub, c telemetry.Control) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(c))
	require.Eventually(t, func() bool { return len(hub.Controls()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestPresentReceivesDisplayVertices(t *testing.T) {
	g := newGame(t, Options{Headless: true})

	var got []sph.DisplayVertex
	require.NoError(t, g.UpdateAndPresent(context.Background(), 0.016, func(vs []sph.DisplayVertex) { got = vs }))
	require.Len(t, got, int(g.Solver().Params().ParticleCount))

	_, hasRender := g.Perf().Stats().PhaseAvg["render"]
	assert.True(t, hasRender)
}
