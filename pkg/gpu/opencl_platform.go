package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/orneryd/fistulosum/pkg/gpu/opencl"
)

// OpenCLPlatform exposes OpenCL devices. Only the sha256 transform has a
// device kernel; other transforms fail with ErrKernelUnsupported.
type OpenCLPlatform struct {
	once    sync.Once
	devices []DeviceInfo
}

// NewOpenCLPlatform returns the OpenCL platform. Devices are enumerated on
// first use.
func NewOpenCLPlatform() *OpenCLPlatform {
	return &OpenCLPlatform{}
}

// Backend returns BackendOpenCL.
func (p *OpenCLPlatform) Backend() Backend { return BackendOpenCL }

// Devices lists every OpenCL device across all platforms.
func (p *OpenCLPlatform) Devices() []DeviceInfo {
	p.once.Do(func() {
		n := opencl.DeviceCount()
		for i := 0; i < n; i++ {
			name, err := opencl.DeviceName(i)
			if err != nil {
				name = "Unknown"
			}
			p.devices = append(p.devices, DeviceInfo{Index: i, Name: name, Backend: BackendOpenCL})
		}
	})
	return p.devices
}

// Open builds the kernel on device index.
func (p *OpenCLPlatform) Open(index int) (Device, error) {
	if n := len(p.Devices()); index < 0 || index >= n {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrInvalidDevice, index, n)
	}
	dev, err := opencl.NewDevice(index)
	if err != nil {
		return nil, err
	}
	return &openclDevice{dev: dev}, nil
}

type openclDevice struct {
	dev *opencl.Device
}

func (d *openclDevice) Info() DeviceInfo {
	return DeviceInfo{
		Index:        d.dev.ID(),
		Name:         d.dev.Name(),
		Vendor:       d.dev.Vendor(),
		MemoryMB:     d.dev.MemoryMB(),
		MaxGroupSize: d.dev.MaxWorkGroupSize(),
		Backend:      BackendOpenCL,
	}
}

func (d *openclDevice) Release() { d.dev.Release() }

func (d *openclDevice) Dispatch(ctx context.Context, k Kernel, l Launch, out []byte) error {
	if err := checkLaunch(k, l, out); err != nil {
		return err
	}
	if k.Transform.Name() != "sha256" {
		return fmt.Errorf("%w: %s on opencl", ErrKernelUnsupported, k.Transform.Name())
	}
	if len(k.Prefix) > opencl.MaxPrefixLen {
		return fmt.Errorf("%w: prefix longer than %d bytes", ErrKernelUnsupported, opencl.MaxPrefixLen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.dev.SHA256Candidates(k.Prefix, l.Range.Start, l.Range.Step, l.First, l.Count, l.GroupSize, out)
}
