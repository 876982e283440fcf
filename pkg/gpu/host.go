package gpu

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/orneryd/fistulosum/pkg/pool"
)

// HostPlatform emulates compute devices on the host CPU. Each workgroup of a
// launch runs on its own goroutine, at most Parallelism at a time, which
// mirrors how a GPU schedules workgroups onto compute units.
type HostPlatform struct {
	devices     int
	parallelism int
}

// NewHostPlatform returns a platform exposing n emulated devices whose
// launches run up to parallelism workgroups at once (0 = runtime.NumCPU).
func NewHostPlatform(n, parallelism int) *HostPlatform {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return &HostPlatform{devices: n, parallelism: parallelism}
}

// Backend returns BackendHost.
func (p *HostPlatform) Backend() Backend { return BackendHost }

// Devices lists the emulated devices.
func (p *HostPlatform) Devices() []DeviceInfo {
	out := make([]DeviceInfo, p.devices)
	for i := range out {
		out[i] = p.info(i)
	}
	return out
}

func (p *HostPlatform) info(i int) DeviceInfo {
	return DeviceInfo{
		Index:        i,
		Name:         fmt.Sprintf("host emulated device #%d", i),
		Vendor:       "host",
		MaxGroupSize: 1024,
		Backend:      BackendHost,
	}
}

// Open returns emulated device index.
func (p *HostPlatform) Open(index int) (Device, error) {
	if index < 0 || index >= p.devices {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrInvalidDevice, index, p.devices)
	}
	return &hostDevice{info: p.info(index), parallelism: p.parallelism}, nil
}

type hostDevice struct {
	info        DeviceInfo
	parallelism int
	released    bool
}

func (d *hostDevice) Info() DeviceInfo { return d.info }

func (d *hostDevice) Release() { d.released = true }

func (d *hostDevice) Dispatch(ctx context.Context, k Kernel, l Launch, out []byte) error {
	if d.released {
		return ErrDeviceReleased
	}
	if err := checkLaunch(k, l, out); err != nil {
		return err
	}

	size := k.Transform.Size()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)

	for group := 0; group < l.Groups(); group++ {
		lo := group * l.GroupSize
		hi := min(lo+l.GroupSize, l.Count)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			in := pool.GetInputBuffer()
			defer func() { pool.PutInputBuffer(in) }()

			for i := lo; i < hi; i++ {
				c := l.Range.At(l.First + uint64(i))
				in = hash.AppendInput(in[:0], k.Prefix, c)
				slot := out[i*size : i*size : (i+1)*size]
				if got := k.Transform.Sum(slot, in); len(got) != size {
					return fmt.Errorf("%w: %s wrote %d bytes, want %d", ErrKernelUnsupported, k.Transform.Name(), len(got), size)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
