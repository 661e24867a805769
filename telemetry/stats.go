package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/sphfluid/sph"
)

// FrameStats summarises the fluid particles of one snapshot.
type FrameStats struct {
	Frame   int64   `csv:"frame" json:"frame" inspect:"label"`
	Steps   uint64  `csv:"steps" json:"steps" inspect:"skip"`
	SimTime float64 `csv:"sim_time" json:"sim_time" inspect:"label,fmt:%.2fs"`
	Fluid   int     `csv:"fluid" json:"fluid" inspect:"skip"`

	// Density distribution
	DensityMean float64 `csv:"density_mean" json:"density_mean" inspect:"label,fmt:%.1f"`
	DensityStd  float64 `csv:"density_std" json:"density_std" inspect:"label,fmt:%.1f"`
	DensityP10  float64 `csv:"density_p10" json:"density_p10" inspect:"skip"`
	DensityP50  float64 `csv:"density_p50" json:"density_p50" inspect:"skip"`
	DensityP90  float64 `csv:"density_p90" json:"density_p90" inspect:"skip"`
	// Mean |rho - rho0| / rho0
	Compression float64 `csv:"compression" json:"compression" inspect:"bar,max:1"`

	PressureMean  float64 `csv:"pressure_mean" json:"pressure_mean" inspect:"label,fmt:%.1f"`
	MeanSpeed     float64 `csv:"mean_speed" json:"mean_speed" inspect:"label,fmt:%.3f"`
	MaxSpeed      float64 `csv:"max_speed" json:"max_speed" inspect:"label,fmt:%.3f"`
	KineticEnergy float64 `csv:"kinetic_energy" json:"kinetic_energy" inspect:"label,fmt:%.4f"`
	MeanHeight    float64 `csv:"mean_height" json:"mean_height" inspect:"label,fmt:%.3f"`

	// Fluid particles outside the box or with non-finite state. Always zero
	// for a healthy run.
	Escaped int `csv:"escaped" json:"escaped" inspect:"label"`
}

// ComputeFrameStats reduces a snapshot to FrameStats. Ghost particles are
// ignored.
func ComputeFrameStats(snap *sph.Snapshot, p sph.Params, frame int64, steps uint64, simTime float64) FrameStats {
	fs := FrameStats{Frame: frame, Steps: steps, SimTime: simTime}

	fluid := snap.Densities[snap.GhostCount:]
	n := len(fluid)
	fs.Fluid = n
	if n == 0 {
		return fs
	}

	density := make([]float64, n)
	speed := make([]float64, n)
	height := make([]float64, n)
	deviation := make([]float64, n)
	for t := range fluid {
		i := int(snap.GhostCount) + t
		density[t] = float64(fluid[t])
		v := snap.Velocities[i].Vec3()
		speed[t] = float64(v.Len())
		x := snap.Positions[i]
		height[t] = float64(x.Y())
		deviation[t] = math.Abs(density[t]-float64(p.RestDensity)) / float64(p.RestDensity)

		for a := 0; a < 3; a++ {
			if !(x[a] >= 0 && x[a] <= p.Bounds[a]) || math.IsNaN(speed[t]) {
				fs.Escaped++
				break
			}
		}
	}

	fs.DensityMean, fs.DensityStd = stat.MeanStdDev(density, nil)
	fs.PressureMean = float64(p.GasConstant) * (fs.DensityMean - float64(p.RestDensity))
	fs.Compression = stat.Mean(deviation, nil)
	fs.MeanHeight = stat.Mean(height, nil)
	fs.MeanSpeed = stat.Mean(speed, nil)
	fs.MaxSpeed = floats.Max(speed)
	fs.KineticEnergy = 0.5 * float64(p.Mass) * floats.Dot(speed, speed)

	sort.Float64s(density)
	fs.DensityP10 = stat.Quantile(0.10, stat.LinInterp, density, nil)
	fs.DensityP50 = stat.Quantile(0.50, stat.LinInterp, density, nil)
	fs.DensityP90 = stat.Quantile(0.90, stat.LinInterp, density, nil)
	return fs
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("frame", s.Frame),
		slog.Uint64("steps", s.Steps),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("fluid", s.Fluid),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_std", s.DensityStd),
		slog.Float64("density_p10", s.DensityP10),
		slog.Float64("density_p50", s.DensityP50),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("compression", s.Compression),
		slog.Float64("pressure_mean", s.PressureMean),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("mean_height", s.MeanHeight),
		slog.Int("escaped", s.Escaped),
	)
}
