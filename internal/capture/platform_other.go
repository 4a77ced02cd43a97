//go:build !darwin

package capture

import "fmt"

// NewPlatformSource returns the native screen capturer for this OS.
func NewPlatformSource(displayIndex int) (Source, error) {
	return nil, fmt.Errorf("capture: no native screen capture on this platform (display %d)", displayIndex)
}
