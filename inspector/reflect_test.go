package inspector

import (
	"testing"

	"github.com/pthm-cable/sphfluid/telemetry"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		tag     string
		widget  Widget
		options map[string]string
	}{
		{"", WidgetLabel, map[string]string{}},
		{"bar", WidgetBar, map[string]string{}},
		{"bar,max:200", WidgetBar, map[string]string{"max": "200"}},
		{"label, fmt:%.1f", WidgetLabel, map[string]string{"fmt": "%.1f"}},
		{"skip", WidgetSkip, map[string]string{}},
	}
	for _, tt := range tests {
		w, opts := ParseTag(tt.tag)
		if w != tt.widget {
			t.Errorf("ParseTag(%q) widget = %v, want %v", tt.tag, w, tt.widget)
		}
		if len(opts) != len(tt.options) {
			t.Errorf("ParseTag(%q) options = %v, want %v", tt.tag, opts, tt.options)
		}
		for k, v := range tt.options {
			if opts[k] != v {
				t.Errorf("ParseTag(%q) option %s = %q, want %q", tt.tag, k, opts[k], v)
			}
		}
	}
}

func TestFieldsOfFrameStats(t *testing.T) {
	stats := telemetry.FrameStats{
		Frame:       120,
		Steps:       480,
		DensityMean: 201.25,
		Compression: 0.25,
	}
	fields := Fields(&stats)

	byName := make(map[string]Field)
	for _, f := range fields {
		byName[f.Name] = f
	}
	if _, ok := byName["Steps"]; ok {
		t.Error("skip-tagged field should be left out")
	}
	if fields[0].Name != "Frame" {
		t.Errorf("expected declaration order, first field is %s", fields[0].Name)
	}

	mean := byName["DensityMean"]
	if mean.Label != "Density mean" || mean.Text() != "201.2" {
		t.Errorf("unexpected density field %q = %q", mean.Label, mean.Text())
	}

	comp := byName["Compression"]
	if comp.Widget != WidgetBar || comp.Fraction() != 0.25 {
		t.Errorf("unexpected compression field %+v", comp)
	}
}

func TestFieldDefaults(t *testing.T) {
	type sample struct {
		Ratio   float64 `inspect:"bar,max:4"`
		Visible bool
		Count   int
		hidden  int
	}
	fields := Fields(sample{Ratio: 10, Visible: true, Count: 3, hidden: 1})
	if len(fields) != 3 {
		t.Fatalf("expected 3 exported fields, got %d", len(fields))
	}
	if f := fields[0]; f.Max != 4 || f.Fraction() != 1 {
		t.Errorf("bar should clamp to full scale, got %+v", f)
	}
	if fields[1].Widget != WidgetBool {
		t.Error("untagged bool should use the bool widget")
	}
	if fields[2].Text() != "3" {
		t.Errorf("expected int text 3, got %q", fields[2].Text())
	}
	if Fields(42) != nil {
		t.Error("non-struct should yield no fields")
	}
}

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"Frame":         "Frame",
		"MaxSpeed":      "Max speed",
		"KineticEnergy": "Kinetic energy",
		"FPS":           "FPS",
	}
	for in, want := range tests {
		if got := Label(in); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}
