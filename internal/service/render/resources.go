package render

import (
	"bufio"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
)

// defaultMemoryGB is assumed when available memory cannot be probed.
const defaultMemoryGB = 8.0

type Resources struct {
	CPUs     int
	MemoryGB float64
}

// DetectResources probes logical CPUs and available memory once.
func DetectResources() Resources {
	mem, err := availableMemoryGB()
	if err != nil || mem <= 0 {
		mem = defaultMemoryGB
	}
	return Resources{CPUs: runtime.NumCPU(), MemoryGB: mem}
}

// parseMemAvailable reads the MemAvailable line of a /proc/meminfo
// listing and returns it in GB. It counts reclaimable page cache.
func parseMemAvailable(r io.Reader) (float64, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("unexpected MemAvailable line %q", line)
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("MemAvailable: %w", err)
		}
		return float64(kb) / (1 << 20), nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemAvailable not found")
}
