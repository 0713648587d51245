package render

import "math"

// WorkerCount sizes the render pool from CPU count and available memory.
//
//	cpus == 1            -> 1
//	cpus == 2            -> 2 with >= 8 GB, else 1
//	cpus > 2, mem < 4    -> max(1, min(2, cpus/2))
//	cpus > 2, mem < 8    -> max(2, min(3, cpus/2))
//	cpus > 2, mem >= 8   -> max(2, round(cpus*0.75))
//
// A positive override replaces the tier. The result never exceeds tasks
// and is at least 1.
func WorkerCount(cpus int, memGB float64, tasks int, override int) int {
	n := tierWorkers(cpus, memGB)
	if override > 0 {
		n = override
	}
	if tasks > 0 && n > tasks {
		n = tasks
	}
	return max(1, n)
}

func tierWorkers(cpus int, memGB float64) int {
	switch {
	case cpus <= 1:
		return 1
	case cpus == 2:
		if memGB >= 8 {
			return 2
		}
		return 1
	case memGB < 4:
		return max(1, min(2, cpus/2))
	case memGB < 8:
		return max(2, min(3, cpus/2))
	default:
		return max(2, int(math.Round(float64(cpus)*0.75)))
	}
}
