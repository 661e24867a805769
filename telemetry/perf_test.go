package telemetry

import (
	"testing"
	"time"

	"github.com/pthm-cable/sphfluid/gpu"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseEncode)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseSubmit)
		time.Sleep(200 * time.Microsecond)
		pc.EndFrame()
	}

	stats := pc.Stats()

	if stats.AvgFrameDuration <= 0 {
		t.Error("expected positive average frame duration")
	}
	if _, ok := stats.PhaseAvg[PhaseEncode]; !ok {
		t.Error("expected encode phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseSubmit]; !ok {
		t.Error("expected submit phase to be tracked")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartFrame()
		pc.StartPhase(PhaseEncode)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.AvgFrameDuration <= 0 {
		t.Error("expected positive average frame duration after window filled")
	}
	if stats.FramesPerSecond <= 0 {
		t.Error("expected positive frames per second")
	}
	if got := len(pc.FrameTimes()); got != 5 {
		t.Errorf("expected 5 frame times, got %d", got)
	}
}

func TestPerfCollector_FrameTimesOldestFirst(t *testing.T) {
	pc := NewPerfCollector(3)

	for _, d := range []time.Duration{1, 2, 3, 4} {
		pc.StartFrame()
		time.Sleep(d * time.Millisecond)
		pc.EndFrame()
	}

	times := pc.FrameTimes()
	if len(times) != 3 {
		t.Fatalf("expected 3 frame times, got %d", len(times))
	}
	// The 1ms frame has been overwritten; the 4ms frame is last.
	if times[0] < 2 || times[2] < 4 {
		t.Errorf("unexpected order %v", times)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartFrame()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(1 * time.Millisecond)
		pc.EndFrame()
	}

	stats := pc.Stats()
	if stats.PhasePct["slow"] <= stats.PhasePct["fast"] {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", stats.PhasePct["slow"], stats.PhasePct["fast"])
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	stats := NewPerfCollector(10).Stats()

	if stats.AvgFrameDuration != 0 {
		t.Error("expected zero avg frame duration for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected non-nil phase maps")
	}
}

func TestPerfStats_ToCSVSumsKernels(t *testing.T) {
	stats := PerfStats{
		Kernels: []gpu.KernelTiming{
			{Label: "sph force", Dispatches: 60, Total: 3 * time.Millisecond},
			{Label: "sph density", Dispatches: 60, Total: 2 * time.Millisecond},
		},
	}
	row := stats.ToCSV(120)
	if row.Frame != 120 || row.DeviceUS != 5000 || row.SlowKernel != "sph force" {
		t.Errorf("unexpected row %+v", row)
	}
}
