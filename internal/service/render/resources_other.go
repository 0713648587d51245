//go:build !linux

package render

import "errors"

func availableMemoryGB() (float64, error) {
	return 0, errors.New("memory probe not supported on this platform")
}
