//go:build linux

package render

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// availableMemoryGB prefers MemAvailable from /proc/meminfo. Kernels
// older than 3.14 lack it; sysinfo(2) free plus buffer memory is used
// there.
func availableMemoryGB() (float64, error) {
	if f, err := os.Open("/proc/meminfo"); err == nil {
		defer f.Close()
		if gb, err := parseMemAvailable(f); err == nil {
			return gb, nil
		}
	}
	return sysinfoMemoryGB()
}

func sysinfoMemoryGB() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	bytes := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	return float64(bytes) / (1 << 30), nil
}
