//go:build opencl

package opencl

/*
#cgo linux CFLAGS: -I/opt/rocm/include -I/usr/include
#cgo linux LDFLAGS: -L/opt/rocm/lib -L/usr/lib/x86_64-linux-gnu -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#cgo windows LDFLAGS: -lOpenCL

#define CL_TARGET_OPENCL_VERSION 120

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>
#include <stdio.h>

#define OPENCL_ERRLEN 256

static const char* opencl_error_string(cl_int error) {
    switch (error) {
        case CL_SUCCESS: return "CL_SUCCESS";
        case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
        case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
        case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
        case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
        case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
        case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
        case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
        case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
        case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
        case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
        case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
        case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
        case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
        case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
        case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
        case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
        case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
        case CL_INVALID_GLOBAL_WORK_SIZE: return "CL_INVALID_GLOBAL_WORK_SIZE";
        default: return "Unknown OpenCL error";
    }
}

static const char* kernel_source =
"#define ROTR(x, n) rotate((x), (uint)(32 - (n)))\n"
"\n"
"__constant uint K[64] = {\n"
"    0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,\n"
"    0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,\n"
"    0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,\n"
"    0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,\n"
"    0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,\n"
"    0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,\n"
"    0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,\n"
"    0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2\n"
"};\n"
"\n"
"__kernel void sha256_candidates(\n"
"    __global const uchar* prefix,\n"
"    const uint prefix_len,\n"
"    const ulong start,\n"
"    const ulong step,\n"
"    const ulong first,\n"
"    const uint count,\n"
"    __global uchar* out\n"
") {\n"
"    uint gid = get_global_id(0);\n"
"    if (gid >= count) return;\n"
"\n"
"    uchar msg[64];\n"
"    for (int i = 0; i < 64; i++) msg[i] = 0;\n"
"\n"
"    uint len = 0;\n"
"    for (uint i = 0; i < prefix_len; i++) msg[len++] = prefix[i];\n"
"\n"
"    ulong c = start + (first + gid) * step;\n"
"    uchar digits[20];\n"
"    int nd = 0;\n"
"    do {\n"
"        digits[nd++] = (uchar)('0' + (c % 10));\n"
"        c /= 10;\n"
"    } while (c != 0);\n"
"    while (nd > 0) msg[len++] = digits[--nd];\n"
"\n"
"    msg[len] = 0x80;\n"
"    ulong bits = (ulong)len * 8;\n"
"    for (int i = 0; i < 8; i++) msg[63 - i] = (uchar)(bits >> (8 * i));\n"
"\n"
"    uint w[64];\n"
"    for (int i = 0; i < 16; i++) {\n"
"        w[i] = ((uint)msg[4 * i] << 24) | ((uint)msg[4 * i + 1] << 16) |\n"
"               ((uint)msg[4 * i + 2] << 8) | (uint)msg[4 * i + 3];\n"
"    }\n"
"    for (int i = 16; i < 64; i++) {\n"
"        uint s0 = ROTR(w[i - 15], 7) ^ ROTR(w[i - 15], 18) ^ (w[i - 15] >> 3);\n"
"        uint s1 = ROTR(w[i - 2], 17) ^ ROTR(w[i - 2], 19) ^ (w[i - 2] >> 10);\n"
"        w[i] = w[i - 16] + s0 + w[i - 7] + s1;\n"
"    }\n"
"\n"
"    uint h0 = 0x6a09e667, h1 = 0xbb67ae85, h2 = 0x3c6ef372, h3 = 0xa54ff53a;\n"
"    uint h4 = 0x510e527f, h5 = 0x9b05688c, h6 = 0x1f83d9ab, h7 = 0x5be0cd19;\n"
"    uint a = h0, b = h1, cc = h2, d = h3, e = h4, f = h5, g = h6, h = h7;\n"
"\n"
"    for (int i = 0; i < 64; i++) {\n"
"        uint S1 = ROTR(e, 6) ^ ROTR(e, 11) ^ ROTR(e, 25);\n"
"        uint ch = (e & f) ^ (~e & g);\n"
"        uint t1 = h + S1 + ch + K[i] + w[i];\n"
"        uint S0 = ROTR(a, 2) ^ ROTR(a, 13) ^ ROTR(a, 22);\n"
"        uint maj = (a & b) ^ (a & cc) ^ (b & cc);\n"
"        uint t2 = S0 + maj;\n"
"        h = g;\n"
"        g = f;\n"
"        f = e;\n"
"        e = d + t1;\n"
"        d = cc;\n"
"        cc = b;\n"
"        b = a;\n"
"        a = t1 + t2;\n"
"    }\n"
"\n"
"    uint state[8] = { h0 + a, h1 + b, h2 + cc, h3 + d, h4 + e, h5 + f, h6 + g, h7 + h };\n"
"    __global uchar* dst = out + (size_t)gid * 32;\n"
"    for (int i = 0; i < 8; i++) {\n"
"        dst[4 * i]     = (uchar)(state[i] >> 24);\n"
"        dst[4 * i + 1] = (uchar)(state[i] >> 16);\n"
"        dst[4 * i + 2] = (uchar)(state[i] >> 8);\n"
"        dst[4 * i + 3] = (uchar)(state[i]);\n"
"    }\n"
"}\n";

typedef struct {
    cl_device_id device;
    cl_context context;
    cl_command_queue queue;
    cl_program program;
    cl_kernel kernel;
    int device_id;
} OpenCLDevice;

// Devices of every type across all platforms, in platform order. Fills out
// (up to max entries) when non-NULL and returns the total count.
static int opencl_list_devices(cl_device_id* out, int max) {
    cl_uint num_platforms;
    if (clGetPlatformIDs(0, NULL, &num_platforms) != CL_SUCCESS || num_platforms == 0) {
        return 0;
    }
    cl_platform_id* platforms = (cl_platform_id*)malloc(num_platforms * sizeof(cl_platform_id));
    clGetPlatformIDs(num_platforms, platforms, NULL);

    int total = 0;
    for (cl_uint i = 0; i < num_platforms; i++) {
        cl_uint n;
        if (clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_ALL, 0, NULL, &n) != CL_SUCCESS || n == 0) {
            continue;
        }
        if (out && total < max) {
            cl_device_id* devs = (cl_device_id*)malloc(n * sizeof(cl_device_id));
            clGetDeviceIDs(platforms[i], CL_DEVICE_TYPE_ALL, n, devs, NULL);
            for (cl_uint j = 0; j < n && total + (int)j < max; j++) {
                out[total + j] = devs[j];
            }
            free(devs);
        }
        total += n;
    }
    free(platforms);
    return total;
}

static int opencl_get_device_count() {
    return opencl_list_devices(NULL, 0);
}

static int opencl_get_device(int index, cl_device_id* out) {
    int count = opencl_get_device_count();
    if (index < 0 || index >= count) {
        return -1;
    }
    cl_device_id* devs = (cl_device_id*)malloc(count * sizeof(cl_device_id));
    opencl_list_devices(devs, count);
    *out = devs[index];
    free(devs);
    return 0;
}

static int opencl_device_name_by_index(int index, char* name, size_t len) {
    cl_device_id dev;
    if (opencl_get_device(index, &dev) != 0) {
        return -1;
    }
    if (clGetDeviceInfo(dev, CL_DEVICE_NAME, len, name, NULL) != CL_SUCCESS) {
        return -1;
    }
    return 0;
}

static OpenCLDevice* opencl_create_device(int device_id, char* errbuf) {
    OpenCLDevice* dev = (OpenCLDevice*)calloc(1, sizeof(OpenCLDevice));
    if (!dev) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to allocate device struct");
        return NULL;
    }
    dev->device_id = device_id;

    if (opencl_get_device(device_id, &dev->device) != 0) {
        snprintf(errbuf, OPENCL_ERRLEN, "device %d not found", device_id);
        free(dev);
        return NULL;
    }

    cl_int err;
    dev->context = clCreateContext(NULL, 1, &dev->device, NULL, NULL, &err);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to create context: %s", opencl_error_string(err));
        free(dev);
        return NULL;
    }

    dev->queue = clCreateCommandQueue(dev->context, dev->device, 0, &err);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to create command queue: %s", opencl_error_string(err));
        clReleaseContext(dev->context);
        free(dev);
        return NULL;
    }

    size_t source_len = strlen(kernel_source);
    dev->program = clCreateProgramWithSource(dev->context, 1, &kernel_source, &source_len, &err);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to create program: %s", opencl_error_string(err));
        clReleaseCommandQueue(dev->queue);
        clReleaseContext(dev->context);
        free(dev);
        return NULL;
    }

    err = clBuildProgram(dev->program, 1, &dev->device, NULL, NULL, NULL);
    if (err != CL_SUCCESS) {
        size_t log_size = 0;
        clGetProgramBuildInfo(dev->program, dev->device, CL_PROGRAM_BUILD_LOG, 0, NULL, &log_size);
        char* log = (char*)malloc(log_size + 1);
        clGetProgramBuildInfo(dev->program, dev->device, CL_PROGRAM_BUILD_LOG, log_size, log, NULL);
        log[log_size] = '\0';
        snprintf(errbuf, OPENCL_ERRLEN, "failed to build program: %s", log);
        free(log);
        clReleaseProgram(dev->program);
        clReleaseCommandQueue(dev->queue);
        clReleaseContext(dev->context);
        free(dev);
        return NULL;
    }

    dev->kernel = clCreateKernel(dev->program, "sha256_candidates", &err);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to create kernel sha256_candidates: %s", opencl_error_string(err));
        clReleaseProgram(dev->program);
        clReleaseCommandQueue(dev->queue);
        clReleaseContext(dev->context);
        free(dev);
        return NULL;
    }

    return dev;
}

static void opencl_release_device(OpenCLDevice* dev) {
    if (dev) {
        if (dev->kernel) clReleaseKernel(dev->kernel);
        if (dev->program) clReleaseProgram(dev->program);
        if (dev->queue) clReleaseCommandQueue(dev->queue);
        if (dev->context) clReleaseContext(dev->context);
        free(dev);
    }
}

static void opencl_device_string(OpenCLDevice* dev, cl_device_info param, char* out, size_t len) {
    if (clGetDeviceInfo(dev->device, param, len, out, NULL) != CL_SUCCESS) {
        snprintf(out, len, "Unknown");
    }
}

static unsigned long long opencl_device_memory(OpenCLDevice* dev) {
    cl_ulong mem_size;
    if (clGetDeviceInfo(dev->device, CL_DEVICE_GLOBAL_MEM_SIZE, sizeof(mem_size), &mem_size, NULL) != CL_SUCCESS) {
        return 0;
    }
    return (unsigned long long)mem_size;
}

static size_t opencl_max_work_group_size(OpenCLDevice* dev) {
    size_t max_size;
    if (clGetDeviceInfo(dev->device, CL_DEVICE_MAX_WORK_GROUP_SIZE, sizeof(max_size), &max_size, NULL) != CL_SUCCESS) {
        return 64;
    }
    return max_size;
}

static int opencl_sha256_candidates(OpenCLDevice* dev, const unsigned char* prefix, unsigned int prefix_len,
                                    unsigned long long start, unsigned long long step, unsigned long long first,
                                    unsigned int count, size_t group_size, unsigned char* out, char* errbuf) {
    cl_int err;
    unsigned char dummy = 0;
    size_t prefix_size = prefix_len > 0 ? prefix_len : 1;
    cl_mem prefix_mem = clCreateBuffer(dev->context, CL_MEM_READ_ONLY | CL_MEM_COPY_HOST_PTR,
                                       prefix_size, prefix_len > 0 ? (void*)prefix : (void*)&dummy, &err);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to create prefix buffer: %s", opencl_error_string(err));
        return -1;
    }

    size_t out_size = (size_t)count * 32;
    cl_mem out_mem = clCreateBuffer(dev->context, CL_MEM_WRITE_ONLY, out_size, NULL, &err);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to create output buffer: %s", opencl_error_string(err));
        clReleaseMemObject(prefix_mem);
        return -1;
    }

    cl_uint plen = prefix_len;
    cl_ulong cstart = start, cstep = step, cfirst = first;
    cl_uint ccount = count;
    err = clSetKernelArg(dev->kernel, 0, sizeof(cl_mem), &prefix_mem);
    err |= clSetKernelArg(dev->kernel, 1, sizeof(cl_uint), &plen);
    err |= clSetKernelArg(dev->kernel, 2, sizeof(cl_ulong), &cstart);
    err |= clSetKernelArg(dev->kernel, 3, sizeof(cl_ulong), &cstep);
    err |= clSetKernelArg(dev->kernel, 4, sizeof(cl_ulong), &cfirst);
    err |= clSetKernelArg(dev->kernel, 5, sizeof(cl_uint), &ccount);
    err |= clSetKernelArg(dev->kernel, 6, sizeof(cl_mem), &out_mem);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to set kernel args: %s", opencl_error_string(err));
        clReleaseMemObject(out_mem);
        clReleaseMemObject(prefix_mem);
        return -1;
    }

    size_t global_size = count;
    size_t* local = NULL;
    if (group_size > 0) {
        global_size = ((count + group_size - 1) / group_size) * group_size;
        local = &group_size;
    }
    err = clEnqueueNDRangeKernel(dev->queue, dev->kernel, 1, NULL, &global_size, local, 0, NULL, NULL);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to enqueue kernel: %s", opencl_error_string(err));
        clReleaseMemObject(out_mem);
        clReleaseMemObject(prefix_mem);
        return -1;
    }

    err = clEnqueueReadBuffer(dev->queue, out_mem, CL_TRUE, 0, out_size, out, 0, NULL, NULL);
    if (err != CL_SUCCESS) {
        snprintf(errbuf, OPENCL_ERRLEN, "failed to read output buffer: %s", opencl_error_string(err));
        clReleaseMemObject(out_mem);
        clReleaseMemObject(prefix_mem);
        return -1;
    }

    clReleaseMemObject(out_mem);
    clReleaseMemObject(prefix_mem);
    return 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// Errors
var (
	ErrOpenCLNotAvailable = errors.New("opencl: no OpenCL devices found")
	ErrDeviceCreation     = errors.New("opencl: failed to create OpenCL device")
	ErrKernelExecution    = errors.New("opencl: kernel execution failed")
	ErrPrefixTooLong      = errors.New("opencl: prefix does not fit a single sha256 block")
	ErrBufferSize         = errors.New("opencl: output buffer size mismatch")
)

// Device is an OpenCL device with the sha256_candidates kernel built.
// A Device is owned by one caller at a time; the mutex only guards the
// kernel argument state against misuse.
type Device struct {
	mu       sync.Mutex
	ptr      *C.OpenCLDevice
	id       int
	name     string
	vendor   string
	memoryMB int
	maxGroup int
}

// IsAvailable reports whether at least one OpenCL device is present.
func IsAvailable() bool {
	return DeviceCount() > 0
}

// DeviceCount returns the number of OpenCL devices across all platforms.
func DeviceCount() int {
	return int(C.opencl_get_device_count())
}

// DeviceName returns the name of device index without creating a context.
func DeviceName(index int) (string, error) {
	var buf [256]C.char
	if C.opencl_device_name_by_index(C.int(index), &buf[0], C.size_t(len(buf))) != 0 {
		return "", fmt.Errorf("%w: device %d not found", ErrDeviceCreation, index)
	}
	return C.GoString(&buf[0]), nil
}

// NewDevice opens device deviceID and builds its kernel.
func NewDevice(deviceID int) (*Device, error) {
	var errbuf [C.OPENCL_ERRLEN]C.char
	ptr := C.opencl_create_device(C.int(deviceID), &errbuf[0])
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceCreation, C.GoString(&errbuf[0]))
	}

	var name, vendor [256]C.char
	C.opencl_device_string(ptr, C.CL_DEVICE_NAME, &name[0], C.size_t(len(name)))
	C.opencl_device_string(ptr, C.CL_DEVICE_VENDOR, &vendor[0], C.size_t(len(vendor)))

	return &Device{
		ptr:      ptr,
		id:       deviceID,
		name:     C.GoString(&name[0]),
		vendor:   C.GoString(&vendor[0]),
		memoryMB: int(C.opencl_device_memory(ptr) / (1024 * 1024)),
		maxGroup: int(C.opencl_max_work_group_size(ptr)),
	}, nil
}

// Release frees the device's OpenCL objects.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr != nil {
		C.opencl_release_device(d.ptr)
		d.ptr = nil
	}
}

// ID returns the flat device index.
func (d *Device) ID() int { return d.id }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Vendor returns the device vendor.
func (d *Device) Vendor() string { return d.vendor }

// MemoryMB returns global memory in megabytes.
func (d *Device) MemoryMB() int { return d.memoryMB }

// MaxWorkGroupSize returns the largest local work size the device accepts.
func (d *Device) MaxWorkGroupSize() int { return d.maxGroup }

// SHA256Candidates hashes count candidates, start + (first+i)*step for
// i in [0, count), each as prefix || decimal, writing 32-byte digests to out.
// groupSize is the local work size; 0 lets the driver choose.
func (d *Device) SHA256Candidates(prefix []byte, start, step, first uint64, count, groupSize int, out []byte) error {
	if len(prefix) > MaxPrefixLen {
		return ErrPrefixTooLong
	}
	if len(out) != count*DigestSize {
		return ErrBufferSize
	}
	if count == 0 {
		return nil
	}
	if groupSize > d.maxGroup {
		groupSize = d.maxGroup
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptr == nil {
		return fmt.Errorf("%w: device released", ErrKernelExecution)
	}

	var p *C.uchar
	if len(prefix) > 0 {
		p = (*C.uchar)(unsafe.Pointer(&prefix[0]))
	}
	var errbuf [C.OPENCL_ERRLEN]C.char
	rc := C.opencl_sha256_candidates(d.ptr, p, C.uint(len(prefix)),
		C.ulonglong(start), C.ulonglong(step), C.ulonglong(first),
		C.uint(count), C.size_t(groupSize), (*C.uchar)(unsafe.Pointer(&out[0])), &errbuf[0])
	if rc != 0 {
		return fmt.Errorf("%w: %s", ErrKernelExecution, C.GoString(&errbuf[0]))
	}
	return nil
}
