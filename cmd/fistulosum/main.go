// Command fistulosum searches for inputs whose hash matches a pattern.
//
// Candidates "<prefix><n>" for n = start, start+step, ... are hashed on CPU
// threads and compute devices until enough hashes match one of the given
// regular expressions.
//
// Usage:
//
//	fistulosum [flags] PATTERN...
//	fistulosum devices
//	fistulosum runs [show RUN-ID]
//
// Flags:
//
//	-B, --batch-size SIZE    candidates per batch
//	-D, --device ID          device to use (repeatable)
//	-G, --group-size SIZE    device workgroup size
//	-n, --num-matches N      matches to find before exiting (default 1)
//	-q, --quiet              only print matches
//	-T, --threads N          CPU threads (default: number of CPUs)
//	-l, --list               list devices and exit
//	-c, --config FILE        YAML config file
//
// Exit codes:
//
//	0  target reached, or interrupted
//	1  usage, configuration or pattern error
//	2  device or compute failure
//	3  candidate space exhausted before the target
//
// Example:
//
//	# Three sha256 hashes of "vanity-<n>" starting with four zeros
//	fistulosum -n 3 --prefix vanity- '^0000'
//
//	# Two emulated devices plus no CPU threads
//	fistulosum --backend host -D 0 -D 1 -T 0 'cafe$'
package main

import (
	"os"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
