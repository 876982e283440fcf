// Package opencl runs candidate hashing on OpenCL devices.
//
// Devices are enumerated across every OpenCL platform on the host, in
// platform order, and addressed by that flat index. This is the same index
// the `fistulosum devices` listing prints.
//
// # Requirements
//
// For AMD GPUs on Linux:
//   - ROCm (Radeon Open Compute): https://rocm.docs.amd.com/
//   - Or AMD GPU drivers with OpenCL support
//
// For Intel GPUs:
//   - Intel oneAPI or Intel OpenCL runtime
//
// For NVIDIA GPUs:
//   - NVIDIA drivers with OpenCL support
//
// # Build Tags
//
// The cgo bridge is only compiled when the "opencl" build tag is present:
//
//	go build -tags opencl ./cmd/fistulosum
//
// Without the tag a stub reports zero devices and every call returns
// ErrOpenCLNotAvailable.
//
// # Kernels
//
// One kernel is built per device: sha256_candidates. Work item i builds the
// input prefix || decimal(start + (first+i)*step) in private memory and
// writes its 32-byte digest to out[i*32]. The input must fit a single SHA-256
// block, which limits the prefix to MaxPrefixLen bytes. The local work size
// is the configured group size, clamped to the device maximum.
//
// # Example
//
//	device, err := opencl.NewDevice(0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer device.Release()
//
//	out := make([]byte, 32*count)
//	err = device.SHA256Candidates([]byte("seed-"), start, 1, 0, count, 256, out)
package opencl

// MaxPrefixLen is the longest prefix the sha256_candidates kernel accepts:
// 55 bytes of single-block payload minus the 20 digits of the largest uint64.
const MaxPrefixLen = 35

// DigestSize is the number of bytes each work item writes.
const DigestSize = 32
