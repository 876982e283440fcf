package gpu

import (
	"context"
	"fmt"
	"sync"
)

// Config selects and tunes the device platform.
type Config struct {
	// Enabled turns device support on. When false the accelerator exposes no
	// devices and searches run on CPU workers only.
	Enabled bool

	// PreferredBackend is tried first; BackendNone means auto-detect.
	PreferredBackend Backend

	// FallbackOnError keeps the accelerator usable (with no devices) when
	// no platform can be initialized, instead of failing.
	FallbackOnError bool

	// HostDevices is the number of devices the host platform emulates.
	HostDevices int

	// HostParallelism bounds concurrent workgroups per emulated device.
	HostParallelism int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         false,
		FallbackOnError: true,
		HostDevices:     1,
	}
}

// Accelerator owns the selected Platform and tracks dispatch statistics
// across every device it opened.
//
// Usage:
//
//	accel, err := gpu.NewAccelerator(&gpu.Config{Enabled: true})
//	if err != nil {
//		// no platform and no fallback
//	}
//	defer accel.Release()
//
//	dev, err := accel.Open(0)
//	err = dev.Dispatch(ctx, kernel, launch, out)
type Accelerator struct {
	backend  Backend
	platform Platform
	config   *Config

	mu     sync.RWMutex
	stats  AcceleratorStats
	opened []Device
}

// AcceleratorStats tracks device usage.
type AcceleratorStats struct {
	KernelLaunches  int64
	Workgroups      int64
	Candidates      int64
	BytesDownloaded int64
	Failures        int64
}

// NewAccelerator creates an accelerator with the first platform that has at
// least one device. Preferred backend first, then OpenCL. The host platform
// is only used when asked for explicitly.
func NewAccelerator(config *Config) (*Accelerator, error) {
	if config == nil {
		config = DefaultConfig()
	}

	accel := &Accelerator{
		config:  config,
		backend: BackendNone,
	}

	if !config.Enabled {
		return accel, nil
	}

	if err := accel.initBackend(config.PreferredBackend); err != nil {
		if config.FallbackOnError {
			return accel, nil
		}
		return nil, err
	}

	return accel, nil
}

// NewAcceleratorWithPlatform wraps an already-built platform. Used to plug
// in platforms the accelerator cannot detect itself.
func NewAcceleratorWithPlatform(p Platform) *Accelerator {
	return &Accelerator{
		config:   &Config{Enabled: true},
		backend:  p.Backend(),
		platform: p,
	}
}

func (a *Accelerator) initBackend(preferred Backend) error {
	var backends []Backend
	if preferred != BackendNone {
		backends = append(backends, preferred)
	}
	if preferred != BackendOpenCL {
		backends = append(backends, BackendOpenCL)
	}

	for _, backend := range backends {
		if err := a.tryBackend(backend); err == nil {
			return nil
		}
	}
	return ErrGPUNotAvailable
}

func (a *Accelerator) tryBackend(backend Backend) error {
	var p Platform
	switch backend {
	case BackendOpenCL:
		p = NewOpenCLPlatform()
	case BackendHost:
		p = NewHostPlatform(a.config.HostDevices, a.config.HostParallelism)
	default:
		return ErrGPUNotAvailable
	}
	if len(p.Devices()) == 0 {
		return ErrGPUNotAvailable
	}
	a.platform = p
	a.backend = backend
	return nil
}

// IsEnabled returns whether a device platform is active.
func (a *Accelerator) IsEnabled() bool {
	return a.backend != BackendNone
}

// Backend returns the active backend.
func (a *Accelerator) Backend() Backend {
	return a.backend
}

// Platform returns the active platform, or nil.
func (a *Accelerator) Platform() Platform {
	return a.platform
}

// Devices lists the devices of the active platform.
func (a *Accelerator) Devices() []DeviceInfo {
	if a.platform == nil {
		return nil
	}
	return a.platform.Devices()
}

// Open opens device index on the active platform. With no platform every
// index is out of range.
func (a *Accelerator) Open(index int) (Device, error) {
	if a.platform == nil {
		return nil, fmt.Errorf("%w: %d (have 0)", ErrInvalidDevice, index)
	}
	dev, err := a.platform.Open(index)
	if err != nil {
		return nil, err
	}
	d := &trackedDevice{Device: dev, accel: a}
	a.mu.Lock()
	a.opened = append(a.opened, d)
	a.mu.Unlock()
	return d, nil
}

// Stats returns device usage statistics.
func (a *Accelerator) Stats() AcceleratorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Release frees every device opened through the accelerator.
func (a *Accelerator) Release() {
	a.mu.Lock()
	opened := a.opened
	a.opened = nil
	a.mu.Unlock()
	for _, d := range opened {
		d.Release()
	}
}

type trackedDevice struct {
	Device
	accel *Accelerator
	once  sync.Once
}

func (d *trackedDevice) Dispatch(ctx context.Context, k Kernel, l Launch, out []byte) error {
	err := d.Device.Dispatch(ctx, k, l, out)

	d.accel.mu.Lock()
	d.accel.stats.KernelLaunches++
	if err != nil {
		d.accel.stats.Failures++
	} else {
		d.accel.stats.Workgroups += int64(l.Groups())
		d.accel.stats.Candidates += int64(l.Count)
		d.accel.stats.BytesDownloaded += int64(len(out))
	}
	d.accel.mu.Unlock()
	return err
}

func (d *trackedDevice) Release() {
	d.once.Do(d.Device.Release)
}
