// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalid is wrapped by every validation failure returned from Prepare.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all simulation configuration parameters.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Scene      SceneConfig      `yaml:"scene"`
	GPU        GPUConfig        `yaml:"gpu"`
	Screen     ScreenConfig     `yaml:"screen"`
	Render     RenderConfig     `yaml:"render"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds the SPH parameters. They are fixed for a run.
type SimulationConfig struct {
	ParticleCount   int        `yaml:"particle_count"` // Ghosts included
	SmoothingRadius float64    `yaml:"smoothing_radius"`
	Mass            float64    `yaml:"mass"`
	Damping         float64    `yaml:"damping"` // Fraction of velocity kept on wall bounce
	GasConstant     float64    `yaml:"gas_constant"`
	RestDensity     float64    `yaml:"rest_density"`
	Viscosity       float64    `yaml:"viscosity"`
	Gravity         [3]float64 `yaml:"gravity"`
	MaxTimeStep     float64    `yaml:"max_time_step"` // Longest single integration step
	MaxSubsteps     int        `yaml:"max_substeps"`  // Frame time beyond MaxTimeStep*MaxSubsteps is dropped
	HeadlessDT      float64    `yaml:"headless_dt"`   // Fixed frame time without a window
}

// SceneConfig holds the initial particle layout.
type SceneConfig struct {
	Bounds     [3]float64 `yaml:"bounds"`      // Box extents; the box spans [0, bounds]
	FillWidth  float64    `yaml:"fill_width"`  // Fraction of bounds.x filled with fluid
	Jitter     float64    `yaml:"jitter"`      // Noise offset as a fraction of spacing
	NoiseScale float64    `yaml:"noise_scale"` // Noise frequency in 1/world units
	Seed       int64      `yaml:"seed"`
}

// GPUConfig holds compute device parameters.
type GPUConfig struct {
	Workers int `yaml:"workers"` // Worker goroutines (0 = GOMAXPROCS)
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	TargetFPS int    `yaml:"target_fps"`
	Title     string `yaml:"title"`
}

// RenderConfig holds drawing and camera settings.
type RenderConfig struct {
	ParticleSize    float64 `yaml:"particle_size"`
	ParticleSizeMin float64 `yaml:"particle_size_min"`
	ParticleSizeMax float64 `yaml:"particle_size_max"`
	CameraDistance  float64 `yaml:"camera_distance"`
	CameraYaw       float64 `yaml:"camera_yaw"`   // Degrees
	CameraPitch     float64 `yaml:"camera_pitch"` // Degrees
	FrameHistory    int     `yaml:"frame_history"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsInterval       int `yaml:"stats_interval"` // Frames between stats snapshots
	PerfCollectorWindow int `yaml:"perf_collector_window"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Bounds32     [3]float32 // Scene.Bounds as float32
	Gravity32    [3]float32 // Simulation.Gravity as float32
	CellCount    [3]int     // Grid cells per axis, ceil(bounds / smoothing_radius)
	CellTotal    int
	FluidSpacing float32 // Lattice spacing at which mass fills rest-density volume
	GhostCount   int     // Two floor layers at FluidSpacing
	FluidCount   int
	MaxFrameTime float32 // MaxTimeStep * MaxSubsteps
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Prepare validates the configuration and computes derived values. Call it
// again after changing fields by hand.
func (c *Config) Prepare() error {
	if err := c.validate(); err != nil {
		return err
	}
	c.computeDerived()
	if c.Derived.GhostCount >= c.Simulation.ParticleCount {
		return fmt.Errorf("%w: particle_count %d leaves no fluid after %d ghost particles",
			ErrInvalid, c.Simulation.ParticleCount, c.Derived.GhostCount)
	}
	return nil
}

func (c *Config) validate() error {
	s := c.Simulation
	positive := []struct {
		name string
		v    float64
	}{
		{"simulation.smoothing_radius", s.SmoothingRadius},
		{"simulation.mass", s.Mass},
		{"simulation.rest_density", s.RestDensity},
		{"simulation.max_time_step", s.MaxTimeStep},
		{"simulation.headless_dt", s.HeadlessDT},
		{"scene.bounds.x", c.Scene.Bounds[0]},
		{"scene.bounds.y", c.Scene.Bounds[1]},
		{"scene.bounds.z", c.Scene.Bounds[2]},
		{"scene.fill_width", c.Scene.FillWidth},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, p.name, p.v)
		}
	}

	switch {
	case s.ParticleCount <= 0:
		return fmt.Errorf("%w: simulation.particle_count must be positive, got %d", ErrInvalid, s.ParticleCount)
	case s.GasConstant < 0 || s.Viscosity < 0:
		return fmt.Errorf("%w: gas_constant and viscosity must not be negative", ErrInvalid)
	case s.Damping < 0 || s.Damping > 1:
		return fmt.Errorf("%w: simulation.damping must be in [0, 1], got %v", ErrInvalid, s.Damping)
	case s.MaxSubsteps < 1:
		return fmt.Errorf("%w: simulation.max_substeps must be at least 1, got %d", ErrInvalid, s.MaxSubsteps)
	case c.Scene.FillWidth > 1:
		return fmt.Errorf("%w: scene.fill_width must be at most 1, got %v", ErrInvalid, c.Scene.FillWidth)
	case c.Scene.Jitter < 0 || c.Scene.Jitter >= 0.5:
		return fmt.Errorf("%w: scene.jitter must be in [0, 0.5), got %v", ErrInvalid, c.Scene.Jitter)
	case c.GPU.Workers < 0:
		return fmt.Errorf("%w: gpu.workers must not be negative", ErrInvalid)
	case c.Telemetry.StatsInterval < 0:
		return fmt.Errorf("%w: telemetry.stats_interval must not be negative", ErrInvalid)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	s := c.Simulation
	c.Derived.CellTotal = 1
	for a := 0; a < 3; a++ {
		c.Derived.Bounds32[a] = float32(c.Scene.Bounds[a])
		c.Derived.Gravity32[a] = float32(s.Gravity[a])
		c.Derived.CellCount[a] = max(int(math.Ceil(c.Scene.Bounds[a]/s.SmoothingRadius)), 1)
		c.Derived.CellTotal *= c.Derived.CellCount[a]
	}

	// Count ghosts at the float32 spacing and bounds the scene lays them out with
	c.Derived.FluidSpacing = float32(math.Cbrt(s.Mass / s.RestDensity))
	spacing := float64(c.Derived.FluidSpacing)
	nx := LatticeCount(float64(c.Derived.Bounds32[0]), spacing)
	nz := LatticeCount(float64(c.Derived.Bounds32[2]), spacing)
	c.Derived.GhostCount = 2 * nx * nz
	c.Derived.FluidCount = s.ParticleCount - c.Derived.GhostCount
	c.Derived.MaxFrameTime = float32(s.MaxTimeStep * float64(s.MaxSubsteps))
}

// LatticeCount returns how many lattice points at spacing fit in [0, extent].
func LatticeCount(extent, spacing float64) int {
	return int(math.Floor(extent/spacing)) + 1
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
