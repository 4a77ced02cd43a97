// Package permissions probes the macOS privacy grants the host needs:
// Screen Recording for capture and Accessibility for input injection.
package permissions

import "go.uber.org/zap"

// Status is the result of a probe.
type Status struct {
	ScreenRecording bool
	Accessibility   bool
}

// Probe checks both grants without prompting.
func Probe() Status {
	return Status{ScreenRecording: HasScreenRecording(), Accessibility: HasAccessibility()}
}

// Ensure prompts for every missing grant and logs what is still missing.
// It returns the status seen before prompting.
func Ensure(log *zap.Logger, needInput bool) Status {
	st := Probe()
	if !st.ScreenRecording {
		RequestScreenRecording()
		log.Warn("screen recording permission missing; grant it in System Settings and restart")
	}
	if needInput && !st.Accessibility {
		RequestAccessibility()
		log.Warn("accessibility permission missing; remote input will be ignored until granted")
	}
	return st
}
