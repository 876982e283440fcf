package search

import (
	"errors"
	"fmt"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/gpu"
)

// Errors
var (
	// ErrInvalidIndex is matched by a DeviceError for a device index the
	// platform does not have.
	ErrInvalidIndex = gpu.ErrInvalidDevice

	// ErrDeviceInit is matched by a DeviceError for any other device
	// initialization failure.
	ErrDeviceInit = errors.New("search: device initialization failed")

	ErrNoWorkers        = errors.New("search: no workers (threads is 0 and no devices)")
	ErrInvalidBatchSize = errors.New("search: batch size must be positive")
	ErrInvalidGroupSize = errors.New("search: group size must be positive")
	ErrInvalidThreads   = errors.New("search: threads must not be negative")
	ErrInvalidMatches   = errors.New("search: num_matches must not be negative")
	ErrInvalidRate      = errors.New("search: rate must not be negative")
	ErrAlreadyRun       = errors.New("search: coordinator already ran")
)

// DeviceError reports a device that could not be opened. It is returned
// before any worker starts.
type DeviceError struct {
	Device int
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("search: device %d: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is reports ErrDeviceInit for every failure that is not an invalid index.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceInit && !errors.Is(e.Err, ErrInvalidIndex)
}

// ComputeError reports a batch that failed to hash. It aborts the run.
type ComputeError struct {
	Worker int
	Device string
	Batch  candidate.Batch
	Err    error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("search: worker %d (%s) batch %s: %v", e.Worker, e.Device, e.Batch, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }
