// Package compute turns batches of candidates into hash results.
//
// A Backend is either a CPU backend, which hashes on the calling goroutine,
// or a device backend, which launches the batch on a gpu.Device as
// ceil(count/group_size) workgroups and reads the digests back. Workers only
// see the Backend interface.
//
// A Backend is owned by one worker and is not safe for concurrent use.
// Results returned by HashBatch, including their Digest slices, stay valid
// until the next HashBatch or Close call on the same Backend.
package compute

import (
	"context"
	"errors"
	"fmt"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/gpu"
	"github.com/orneryd/fistulosum/pkg/hash"
	"github.com/orneryd/fistulosum/pkg/pool"
)

// ErrClosed is returned by HashBatch after Close.
var ErrClosed = errors.New("compute: backend closed")

// Kind distinguishes CPU and device backends.
type Kind int

const (
	KindCPU Kind = iota
	KindGPU
)

func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGPU:
		return "gpu"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Job is what every candidate goes through: Transform(Prefix || decimal(c)),
// rendered with Encoding.
type Job struct {
	Transform hash.Transform
	Prefix    []byte
	Encoding  hash.Encoding
}

// Backend hashes batches.
type Backend interface {
	Name() string
	Kind() Kind
	// HashBatch appends one result per candidate of batch to dst, in batch
	// order, and returns the extended slice.
	HashBatch(ctx context.Context, batch candidate.Batch, dst []hash.Result) ([]hash.Result, error)
	Close() error
}

// slab is the flat digest buffer a backend writes a batch into.
type slab struct {
	buf []byte
}

func (s *slab) get(n int) []byte {
	if cap(s.buf) < n {
		s.release()
		s.buf = pool.GetDigestBuffer(n)
	}
	s.buf = s.buf[:n]
	return s.buf
}

func (s *slab) release() {
	if s.buf != nil {
		pool.PutDigestBuffer(s.buf)
		s.buf = nil
	}
}

// appendResults slices digests into per-candidate results.
func appendResults(dst []hash.Result, batch candidate.Batch, digests []byte, size int, enc hash.Encoding) []hash.Result {
	for i := 0; i < batch.Count; i++ {
		d := digests[i*size : (i+1)*size : (i+1)*size]
		dst = append(dst, hash.Result{
			Candidate: batch.At(i),
			Digest:    d,
			Text:      enc.EncodeToString(d),
		})
	}
	return dst
}

// CPU hashes on the calling goroutine.
type CPU struct {
	name   string
	job    Job
	input  []byte
	out    slab
	closed bool
}

// NewCPU returns a CPU backend.
func NewCPU(name string, job Job) *CPU {
	return &CPU{name: name, job: job, input: pool.GetInputBuffer()}
}

// Name returns the backend name given at construction.
func (c *CPU) Name() string { return c.name }

// Kind returns KindCPU.
func (c *CPU) Kind() Kind { return KindCPU }

// HashBatch hashes every candidate in batch.
func (c *CPU) HashBatch(ctx context.Context, batch candidate.Batch, dst []hash.Result) ([]hash.Result, error) {
	if c.closed {
		return dst, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return dst, err
	}
	size := c.job.Transform.Size()
	digests := c.out.get(batch.Count * size)
	for i := 0; i < batch.Count; i++ {
		c.input = hash.AppendInput(c.input[:0], c.job.Prefix, batch.At(i))
		if got := c.job.Transform.Sum(digests[i*size:i*size:(i+1)*size], c.input); len(got) != size {
			return dst, fmt.Errorf("compute: %s produced %d bytes, want %d", c.job.Transform.Name(), len(got), size)
		}
	}
	return appendResults(dst, batch, digests, size, c.job.Encoding), nil
}

// Close returns the backend's buffers to the pool.
func (c *CPU) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	pool.PutInputBuffer(c.input)
	c.input = nil
	c.out.release()
	return nil
}

// Device hashes on a gpu.Device.
type Device struct {
	dev       gpu.Device
	kernel    gpu.Kernel
	enc       hash.Encoding
	groupSize int
	out       slab
	closed    bool
}

// NewDevice returns a backend launching batches on dev in workgroups of
// groupSize. The backend owns dev and releases it on Close.
func NewDevice(dev gpu.Device, groupSize int, job Job) (*Device, error) {
	if groupSize <= 0 {
		return nil, gpu.ErrInvalidGroupSize
	}
	return &Device{
		dev:       dev,
		kernel:    gpu.Kernel{Transform: job.Transform, Prefix: job.Prefix},
		enc:       job.Encoding,
		groupSize: groupSize,
	}, nil
}

// Name returns the device name.
func (d *Device) Name() string { return d.dev.Info().Name }

// Kind returns KindGPU.
func (d *Device) Kind() Kind { return KindGPU }

// Info returns the underlying device description.
func (d *Device) Info() gpu.DeviceInfo { return d.dev.Info() }

// HashBatch launches batch on the device and waits for the digests.
func (d *Device) HashBatch(ctx context.Context, batch candidate.Batch, dst []hash.Result) ([]hash.Result, error) {
	if d.closed {
		return dst, ErrClosed
	}
	size := d.kernel.Transform.Size()
	digests := d.out.get(batch.Count * size)
	if err := d.dev.Dispatch(ctx, d.kernel, gpu.LaunchFor(batch, d.groupSize), digests); err != nil {
		return dst, err
	}
	return appendResults(dst, batch, digests, size, d.enc), nil
}

// Close releases the device.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.out.release()
	d.dev.Release()
	return nil
}
