//go:build darwin

package capture

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>
#include <dlfcn.h>

// CGWindowListCreateImage is unavailable in the macOS 15 SDK headers but still
// present in the CoreGraphics dylib. Load it dynamically.
typedef CGImageRef (*windowListImageFn)(CGRect, uint32_t, uint32_t, uint32_t);

static windowListImageFn windowListImage(void) {
    static windowListImageFn fn = NULL;
    if (!fn) {
        fn = (windowListImageFn)dlsym(RTLD_DEFAULT, "CGWindowListCreateImage");
    }
    return fn;
}

// snapshot returns a retained image of everything on screen within the
// display's bounds, or NULL.
static CGImageRef snapshot(CGDirectDisplayID displayID) {
    windowListImageFn fn = windowListImage();
    if (!fn) {
        return NULL;
    }
    // kCGWindowListOptionOnScreenOnly, kCGNullWindowID, kCGWindowImageDefault
    return fn(CGDisplayBounds(displayID), 1, 0, 0);
}

// drawBGRA renders image into dst, which holds width*height 32-bit pixels
// in little-endian BGRA order.
static int drawBGRA(CGImageRef image, void* dst, size_t width, size_t height) {
    CGColorSpaceRef cs = CGColorSpaceCreateDeviceRGB();
    CGContextRef ctx = CGBitmapContextCreate(dst, width, height, 8, width * 4, cs,
        kCGImageAlphaPremultipliedFirst | kCGBitmapByteOrder32Little);
    CGColorSpaceRelease(cs);
    if (!ctx) {
        return 0;
    }
    CGContextDrawImage(ctx, CGRectMake(0, 0, width, height), image);
    CGContextRelease(ctx);
    return 1;
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
	"unsafe"
)

// CGSource implements Source using CoreGraphics.
type CGSource struct {
	mu           sync.Mutex
	displayIndex int
	displayID    C.CGDirectDisplayID
}

// NewCGSource creates a screen capturer for the given display.
func NewCGSource(displayIndex int) (*CGSource, error) {
	s := &CGSource{displayIndex: displayIndex}
	if err := s.Reinitialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPlatformSource returns the native screen capturer for this OS.
func NewPlatformSource(displayIndex int) (Source, error) {
	return NewCGSource(displayIndex)
}

// Reinitialize re-resolves the display, which picks up hot-plugged or
// re-arranged monitors.
func (s *CGSource) Reinitialize() error {
	var displayID C.CGDirectDisplayID
	if s.displayIndex == 0 {
		displayID = C.CGMainDisplayID()
	} else {
		var displays [16]C.CGDirectDisplayID
		var count C.uint32_t
		C.CGGetActiveDisplayList(16, &displays[0], &count)
		if s.displayIndex >= int(count) {
			return fmt.Errorf("display index %d out of range (have %d displays)", s.displayIndex, count)
		}
		displayID = displays[s.displayIndex]
	}

	s.mu.Lock()
	s.displayID = displayID
	s.mu.Unlock()
	return nil
}

// Capture grabs the current contents of the display. A failed grab (for
// example while the display is asleep) is reported as ErrNotReady.
func (s *CGSource) Capture() (*Frame, error) {
	s.mu.Lock()
	displayID := s.displayID
	s.mu.Unlock()

	img := C.snapshot(displayID)
	if img == nil {
		return nil, ErrNotReady
	}
	defer C.CGImageRelease(img)

	w, h := int(C.CGImageGetWidth(img)), int(C.CGImageGetHeight(img))
	if w <= 0 || h <= 0 {
		return nil, ErrNotReady
	}
	pix := make([]byte, w*h*4)
	if C.drawBGRA(img, unsafe.Pointer(&pix[0]), C.size_t(w), C.size_t(h)) == 0 {
		return nil, fmt.Errorf("capture: bitmap context for display %d", s.displayIndex)
	}
	return &Frame{
		Pix:       pix,
		Width:     w,
		Height:    h,
		Layout:    LayoutBGRA,
		Timestamp: time.Now(),
	}, nil
}
