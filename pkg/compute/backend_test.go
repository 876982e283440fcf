package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/fistulosum/pkg/candidate"
	"github.com/orneryd/fistulosum/pkg/gpu"
	"github.com/orneryd/fistulosum/pkg/hash"
)

func testJob(t *testing.T, name string) Job {
	t.Helper()
	tr, err := hash.Lookup(name)
	require.NoError(t, err)
	return Job{Transform: tr, Prefix: []byte("job-"), Encoding: hash.Hex}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "cpu", KindCPU.String())
	assert.Equal(t, "gpu", KindGPU.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}

func TestCPU_HashBatch(t *testing.T) {
	job := testJob(t, "sha256")
	b := NewCPU("cpu-0", job)
	defer b.Close()

	assert.Equal(t, "cpu-0", b.Name())
	assert.Equal(t, KindCPU, b.Kind())

	g := candidate.NewGenerator(candidate.Range{Start: 10, Step: 3}, 0)
	batch, _ := g.NextBatch(8)

	results, err := b.HashBatch(context.Background(), batch, nil)
	require.NoError(t, err)
	require.Len(t, results, 8)

	for i, r := range results {
		assert.Equal(t, batch.At(i), r.Candidate)
		want := job.Transform.Sum(nil, hash.AppendInput(nil, job.Prefix, r.Candidate))
		assert.Equal(t, want, r.Digest)
		assert.Equal(t, hash.Hex.EncodeToString(want), r.Text)
	}
}

func TestCPU_AppendsToDst(t *testing.T) {
	b := NewCPU("cpu", testJob(t, "xxh64"))
	defer b.Close()

	batch, _ := candidate.NewGenerator(candidate.Range{Step: 1}, 0).NextBatch(3)
	dst := []hash.Result{{Candidate: 999}}
	out, err := b.HashBatch(context.Background(), batch, dst)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, uint64(999), out[0].Candidate)
	assert.Equal(t, uint64(0), out[1].Candidate)
}

func TestCPU_EmptyBatch(t *testing.T) {
	b := NewCPU("cpu", testJob(t, "sha256"))
	defer b.Close()

	out, err := b.HashBatch(context.Background(), candidate.Batch{Range: candidate.Range{Step: 1}}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCPU_Closed(t *testing.T) {
	b := NewCPU("cpu", testJob(t, "sha256"))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	batch, _ := candidate.NewGenerator(candidate.Range{Step: 1}, 0).NextBatch(1)
	_, err := b.HashBatch(context.Background(), batch, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDevice_MatchesCPU(t *testing.T) {
	job := testJob(t, "blake2b-256")

	dev, err := gpu.NewHostPlatform(1, 2).Open(0)
	require.NoError(t, err)
	d, err := NewDevice(dev, 16, job)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, KindGPU, d.Kind())
	assert.Equal(t, "host emulated device #0", d.Name())

	c := NewCPU("cpu", job)
	defer c.Close()

	batch, _ := candidate.NewGenerator(candidate.Range{Start: 5, Step: 2, Limit: 100}, 0).NextBatch(50)

	fromDevice, err := d.HashBatch(context.Background(), batch, nil)
	require.NoError(t, err)
	fromCPU, err := c.HashBatch(context.Background(), batch, nil)
	require.NoError(t, err)

	assert.Equal(t, fromCPU, fromDevice)
}

func TestNewDevice_InvalidGroupSize(t *testing.T) {
	dev, err := gpu.NewHostPlatform(1, 1).Open(0)
	require.NoError(t, err)
	_, err = NewDevice(dev, 0, testJob(t, "sha256"))
	assert.ErrorIs(t, err, gpu.ErrInvalidGroupSize)
}

type failingDevice struct {
	released bool
}

var errBoom = errors.New("boom")

func (f *failingDevice) Info() gpu.DeviceInfo { return gpu.DeviceInfo{Name: "failing"} }
func (f *failingDevice) Dispatch(context.Context, gpu.Kernel, gpu.Launch, []byte) error {
	return errBoom
}
func (f *failingDevice) Release() { f.released = true }

func TestDevice_DispatchError(t *testing.T) {
	fd := &failingDevice{}
	d, err := NewDevice(fd, 4, testJob(t, "sha256"))
	require.NoError(t, err)

	batch, _ := candidate.NewGenerator(candidate.Range{Step: 1}, 0).NextBatch(4)
	_, err = d.HashBatch(context.Background(), batch, nil)
	assert.ErrorIs(t, err, errBoom)

	require.NoError(t, d.Close())
	assert.True(t, fd.released)

	_, err = d.HashBatch(context.Background(), batch, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCPUFeatures(t *testing.T) {
	for _, f := range CPUFeatures() {
		assert.NotEmpty(t, f)
	}
}
