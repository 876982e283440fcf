//go:build !opencl

package opencl

import (
	"errors"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: OpenCL is not available (build without opencl tag)")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrPrefixTooLong      = errors.New("opencl: prefix does not fit a single sha256 block")
	ErrBufferSize         = errors.New("opencl: output buffer size mismatch")
)

// Device represents an OpenCL device (stub).
type Device struct{}

// IsAvailable returns false on systems without OpenCL.
func IsAvailable() bool {
	return false
}

// DeviceCount returns 0 on systems without OpenCL.
func DeviceCount() int {
	return 0
}

// DeviceName returns an error on systems without OpenCL.
func DeviceName(index int) (string, error) {
	return "", ErrOpenCLNotAvailable
}

// NewDevice returns an error on systems without OpenCL.
func NewDevice(deviceID int) (*Device, error) {
	return nil, ErrOpenCLNotAvailable
}

// Release is a no-op stub.
func (d *Device) Release() {}

// ID returns 0.
func (d *Device) ID() int { return 0 }

// Name returns empty string.
func (d *Device) Name() string { return "" }

// Vendor returns empty string.
func (d *Device) Vendor() string { return "" }

// MemoryMB returns 0.
func (d *Device) MemoryMB() int { return 0 }

// MaxWorkGroupSize returns 0.
func (d *Device) MaxWorkGroupSize() int { return 0 }

// SHA256Candidates returns an error.
func (d *Device) SHA256Candidates(prefix []byte, start, step, first uint64, count, groupSize int, out []byte) error {
	return ErrOpenCLNotAvailable
}
