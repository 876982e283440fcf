package compute

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures lists the instruction set extensions relevant to hashing that
// the host CPU supports.
func CPUFeatures() []string {
	var f []string
	add := func(ok bool, name string) {
		if ok {
			f = append(f, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasSSE42, "sse4.2")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasAES, "aes")
		add(cpu.X86.HasBMI2, "bmi2")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasSHA2, "sha2")
		add(cpu.ARM64.HasSHA3, "sha3")
		add(cpu.ARM64.HasSHA512, "sha512")
		add(cpu.ARM64.HasAES, "aes")
	}
	return f
}
