package permissions

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation -framework CoreGraphics
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <CoreGraphics/CoreGraphics.h>

// axTrusted checks the Accessibility grant, showing the system prompt when
// prompt is non-zero.
static int axTrusted(int prompt) {
    const void* keys[] = { kAXTrustedCheckOptionPrompt };
    const void* values[] = { prompt ? kCFBooleanTrue : kCFBooleanFalse };
    CFDictionaryRef opts = CFDictionaryCreate(NULL, keys, values, 1,
        &kCFTypeDictionaryKeyCallBacks, &kCFTypeDictionaryValueCallBacks);
    Boolean trusted = AXIsProcessTrustedWithOptions(opts);
    CFRelease(opts);
    return trusted ? 1 : 0;
}
*/
import "C"

// HasScreenRecording reports the Screen Recording grant without prompting.
func HasScreenRecording() bool { return bool(C.CGPreflightScreenCaptureAccess()) }

// RequestScreenRecording shows the system dialog if the grant is missing.
// A grant given in the dialog only takes effect after a restart.
func RequestScreenRecording() bool { return bool(C.CGRequestScreenCaptureAccess()) }

// HasAccessibility reports the Accessibility grant without prompting.
func HasAccessibility() bool { return C.axTrusted(0) != 0 }

// RequestAccessibility opens the Accessibility pane if the grant is missing.
func RequestAccessibility() bool { return C.axTrusted(1) != 0 }
