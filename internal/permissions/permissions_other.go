//go:build !darwin

package permissions

// Platforms other than macOS have no per-app capture or input grants.

func HasScreenRecording() bool     { return true }
func RequestScreenRecording() bool { return true }
func HasAccessibility() bool       { return true }
func RequestAccessibility() bool   { return true }
