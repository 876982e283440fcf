// Package gpu provides the device layer candidate hashing can be pushed to.
//
// A Platform enumerates devices by index and opens them; a Device runs a
// Kernel (hash transform + input prefix) over a Launch (a contiguous slice of
// the candidate sequence, split into workgroups of GroupSize) and writes the
// digests to a flat output buffer, digest i at out[i*size:(i+1)*size].
//
// Platforms:
//   - opencl: real devices through the OpenCL bridge (build tag "opencl")
//   - host:   devices emulated on the host, one goroutine per workgroup
//
// The Accelerator picks a platform and keeps dispatch statistics.
package gpu

import (
	"context"
	"errors"
	"strconv"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/hash"
)

// Errors
var (
	ErrGPUNotAvailable   = errors.New("gpu: no compute platform available")
	ErrInvalidDevice     = errors.New("gpu: device index out of range")
	ErrKernelUnsupported = errors.New("gpu: kernel not supported by device")
	ErrBufferSize        = errors.New("gpu: output buffer size mismatch")
	ErrInvalidGroupSize  = errors.New("gpu: group size must be positive")
	ErrDeviceReleased    = errors.New("gpu: device released")
)

// Backend names a device platform.
type Backend string

const (
	BackendNone   Backend = "none"
	BackendOpenCL Backend = "opencl"
	BackendHost   Backend = "host"
)

// ParseBackend maps a configuration string to a Backend. The empty string and
// "auto" select BackendNone, which means "detect".
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "auto", "none":
		return BackendNone, nil
	case "opencl":
		return BackendOpenCL, nil
	case "host":
		return BackendHost, nil
	default:
		return BackendNone, errors.New("gpu: unknown backend " + s)
	}
}

// DeviceInfo describes one enumerable device.
type DeviceInfo struct {
	Index        int
	Name         string
	Vendor       string
	MemoryMB     int
	MaxGroupSize int
	Backend      Backend
}

// Kernel is the work every device thread performs: hash Prefix || decimal(c).
type Kernel struct {
	Transform hash.Transform
	Prefix    []byte
}

// Launch selects which candidates a dispatch covers and how it is split.
type Launch struct {
	Range     candidate.Range
	First     uint64
	Count     int
	GroupSize int
}

// LaunchFor builds the Launch covering batch.
func LaunchFor(batch candidate.Batch, groupSize int) Launch {
	return Launch{Range: batch.Range, First: batch.First, Count: batch.Count, GroupSize: groupSize}
}

// Groups returns the number of workgroups the launch is split into.
func (l Launch) Groups() int {
	if l.GroupSize <= 0 || l.Count == 0 {
		return 0
	}
	return (l.Count + l.GroupSize - 1) / l.GroupSize
}

// Device is an opened compute device. A Device is owned by a single worker.
type Device interface {
	Info() DeviceInfo
	// Dispatch runs k over l and blocks until every digest is in out.
	// len(out) must equal l.Count * k.Transform.Size().
	Dispatch(ctx context.Context, k Kernel, l Launch, out []byte) error
	Release()
}

// Platform enumerates and opens devices.
type Platform interface {
	Backend() Backend
	Devices() []DeviceInfo
	// Open returns ErrInvalidDevice (wrapped) when index is out of range.
	Open(index int) (Device, error)
}

func checkLaunch(k Kernel, l Launch, out []byte) error {
	if l.GroupSize <= 0 {
		return ErrInvalidGroupSize
	}
	if len(out) != l.Count*k.Transform.Size() {
		return ErrBufferSize
	}
	return nil
}

// List formats the devices of p one per line as "index: name".
func List(p Platform) []string {
	if p == nil {
		return nil
	}
	devs := p.Devices()
	lines := make([]string, 0, len(devs))
	for _, d := range devs {
		lines = append(lines, strconv.Itoa(d.Index)+": "+d.Name)
	}
	return lines
}
