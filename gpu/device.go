// Package gpu provides the compute device the simulation runs on: storage
// buffers of 32-bit words, compute kernels dispatched over workgroup grids,
// command encoders and a single ordered submission queue.
//
// The device executes programs on a persistent pool of worker goroutines.
// Commands in one command buffer run strictly in order and a dispatch
// completes before the next command starts, so a write made by one kernel is
// visible to every later kernel in the same stream without explicit barriers.
package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// ErrDeviceLost is returned by every operation after a command faulted.
var ErrDeviceLost = errors.New("gpu: device lost")

// Limits bounds what a device accepts at resource creation time.
type Limits struct {
	MaxWorkgroupSize          uint32
	MaxWorkgroupsPerDimension uint32
	MaxPushConstantWords      int
	MaxBindings               int
	MaxBufferSize             uint64
}

// DefaultLimits mirrors the baseline limits of desktop compute APIs.
func DefaultLimits() Limits {
	return Limits{
		MaxWorkgroupSize:          256,
		MaxWorkgroupsPerDimension: 65535,
		MaxPushConstantWords:      4,
		MaxBindings:               8,
		MaxBufferSize:             1 << 30,
	}
}

// DeviceOptions configures NewDevice.
type DeviceOptions struct {
	Label   string
	Workers int // 0 = GOMAXPROCS
	Limits  Limits
	Logger  *slog.Logger
}

// KernelTiming accumulates execution time for one kernel label.
type KernelTiming struct {
	Label      string
	Dispatches int
	Total      time.Duration
}

// Device is a compute context. All buffers, kernels and encoders are created
// from a device and are only valid with the device that created them.
type Device struct {
	label  string
	limits Limits
	logger *slog.Logger
	pool   *workerPool
	queue  *Queue

	mu      sync.Mutex
	lost    error
	closed  bool
	timings map[string]*KernelTiming
}

// NewDevice creates a device and starts its queue and worker pool.
// It is the one factory used by the application and by tests.
func NewDevice(opts DeviceOptions) (*Device, error) {
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	if limits.MaxWorkgroupSize == 0 || limits.MaxWorkgroupsPerDimension == 0 {
		return nil, fmt.Errorf("gpu: invalid limits %+v", limits)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	label := opts.Label
	if label == "" {
		label = "device"
	}

	d := &Device{
		label:   label,
		limits:  limits,
		logger:  logger.With("device", label),
		pool:    newWorkerPool(workers),
		timings: make(map[string]*KernelTiming),
	}
	d.pool.start()
	d.queue = newQueue(d)

	d.logger.Debug("device created", "workers", workers)
	return d, nil
}

// Label returns the device label.
func (d *Device) Label() string { return d.label }

// Limits returns the device limits.
func (d *Device) Limits() Limits { return d.limits }

// Queue returns the device's submission queue.
func (d *Device) Queue() *Queue { return d.queue }

// Err returns the device-lost error, or nil while the device is healthy.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// markLost records the first fault. Later faults are ignored.
func (d *Device) markLost(cause error) {
	d.mu.Lock()
	if d.lost == nil {
		d.lost = fmt.Errorf("%w: %v", ErrDeviceLost, cause)
		d.logger.Error("device lost", "error", cause)
	}
	d.mu.Unlock()
}

// Close drains the queue and stops the worker pool. Closing twice is a no-op.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.queue.close()
	d.pool.stop()
}

func (d *Device) recordTiming(label string, dur time.Duration) {
	d.mu.Lock()
	t, ok := d.timings[label]
	if !ok {
		t = &KernelTiming{Label: label}
		d.timings[label] = t
	}
	t.Dispatches++
	t.Total += dur
	d.mu.Unlock()
}

// KernelTimings returns accumulated timings sorted by total time, descending,
// and resets the accumulators.
func (d *Device) KernelTimings() []KernelTiming {
	d.mu.Lock()
	out := make([]KernelTiming, 0, len(d.timings))
	for _, t := range d.timings {
		out = append(out, *t)
	}
	d.timings = make(map[string]*KernelTiming)
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	return out
}
