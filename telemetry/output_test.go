package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/sphfluid/config"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("expected nil manager for empty dir")
	}
	// Every method is a no-op on nil.
	if err := om.WriteStats(FrameStats{}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 0); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
	if om.Dir() != "" {
		t.Error("expected empty dir")
	}
}

func TestOutputManagerWritesHeaderOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	for frame := int64(1); frame <= 3; frame++ {
		if err := om.WriteStats(FrameStats{Frame: frame, Fluid: 10}); err != nil {
			t.Fatal(err)
		}
		if err := om.WritePerf(PerfStats{}, frame); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"stats.csv", "perf.csv"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 4 {
			t.Fatalf("%s: expected header plus 3 rows, got %d lines", name, len(lines))
		}
		if !strings.HasPrefix(lines[0], "frame,") {
			t.Errorf("%s: unexpected header %q", name, lines[0])
		}
		if !strings.HasPrefix(lines[3], "3,") {
			t.Errorf("%s: unexpected last row %q", name, lines[3])
		}
	}

	reloaded, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Simulation != cfg.Simulation {
		t.Error("config.yaml did not round trip")
	}
}
