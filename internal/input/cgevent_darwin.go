package input

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <stdbool.h>
#include <CoreGraphics/CoreGraphics.h>

void moveMouse(double x, double y) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, kCGEventMouseMoved,
        CGPointMake(x, y), kCGMouseButtonLeft);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}

void mouseButton(double x, double y, int button, bool down) {
    CGEventType type;
    CGMouseButton btn;
    switch (button) {
        case 1:  type = down ? kCGEventRightMouseDown : kCGEventRightMouseUp; btn = kCGMouseButtonRight;  break;
        case 2:  type = down ? kCGEventOtherMouseDown : kCGEventOtherMouseUp; btn = kCGMouseButtonCenter; break;
        default: type = down ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;   btn = kCGMouseButtonLeft;   break;
    }
    CGEventRef event = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), btn);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}

void mouseScroll(int dx, int dy) {
    CGEventRef event = CGEventCreateScrollWheelEvent(NULL,
        kCGScrollEventUnitPixel, 2, dy, dx);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}

void keyCode(CGKeyCode keyCode, bool down, CGEventFlags flags) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, keyCode, down);
    CGEventSetFlags(event, flags);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}

void keyChar(UniChar ch, bool down, CGEventFlags flags) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, 0, down);
    CGEventKeyboardSetUnicodeString(event, 1, &ch);
    CGEventSetFlags(event, flags);
    CGEventPost(kCGHIDEventTap, event);
    CFRelease(event);
}
*/
import "C"

import (
	"sync"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/junsooki/airdesk/internal/logging"
)

const (
	flagShift   = 0x00020000 // kCGEventFlagMaskShift
	flagControl = 0x00040000 // kCGEventFlagMaskControl
	flagAlt     = 0x00080000 // kCGEventFlagMaskAlternate
	flagCommand = 0x00100000 // kCGEventFlagMaskCommand
)

var modifierFlags = map[Key]uint64{
	KeyShift:   flagShift,
	KeyControl: flagControl,
	KeyAlt:     flagAlt,
	KeyMeta:    flagCommand,
}

// macKeyCodes maps keys to macOS virtual key codes.
var macKeyCodes = map[Key]uint16{
	"a": 0x00, "s": 0x01, "d": 0x02, "f": 0x03, "h": 0x04, "g": 0x05, "z": 0x06, "x": 0x07,
	"c": 0x08, "v": 0x09, "b": 0x0B, "q": 0x0C, "w": 0x0D, "e": 0x0E, "r": 0x0F, "y": 0x10,
	"t": 0x11, "1": 0x12, "2": 0x13, "3": 0x14, "4": 0x15, "6": 0x16, "5": 0x17, "=": 0x18,
	"9": 0x19, "7": 0x1A, "-": 0x1B, "8": 0x1C, "0": 0x1D, "]": 0x1E, "o": 0x1F, "u": 0x20,
	"[": 0x21, "i": 0x22, "p": 0x23, "l": 0x25, "j": 0x26, "'": 0x27, "k": 0x28, ";": 0x29,
	`\`: 0x2A, ",": 0x2B, "/": 0x2C, "n": 0x2D, "m": 0x2E, ".": 0x2F, "`": 0x32,

	KeyEnter: 0x24, KeyTab: 0x30, KeySpace: 0x31, KeyBackspace: 0x33, KeyEscape: 0x35,
	KeyMeta: 0x37, KeyShift: 0x38, KeyCapsLock: 0x39, KeyAlt: 0x3A, KeyControl: 0x3B,
	KeyArrowLeft: 0x7B, KeyArrowRight: 0x7C, KeyArrowDown: 0x7D, KeyArrowUp: 0x7E,
	KeyInsert: 0x72, KeyHome: 0x73, KeyPageUp: 0x74, KeyDelete: 0x75, KeyEnd: 0x77, KeyPageDown: 0x79,
	"F1": 0x7A, "F2": 0x78, "F3": 0x63, "F4": 0x76, "F5": 0x60, "F6": 0x61,
	"F7": 0x62, "F8": 0x64, "F9": 0x65, "F10": 0x6D, "F11": 0x67, "F12": 0x6F,
}

// CGSink injects input via CoreGraphics CGEvent APIs. Held modifiers are
// tracked so later key events carry the matching flags.
type CGSink struct {
	mu    sync.Mutex
	flags uint64
	log   *zap.Logger
}

// NewPlatformSink returns the CoreGraphics injector.
func NewPlatformSink(l *zap.Logger) (Sink, error) {
	return &CGSink{log: logging.OrNop(l).Named("input.cgevent")}, nil
}

func (s *CGSink) MoveMouse(x, y float64) error {
	C.moveMouse(C.double(x), C.double(y))
	return nil
}

func (s *CGSink) MouseButton(b MouseButton, down bool, x, y float64) error {
	C.mouseButton(C.double(x), C.double(y), C.int(b), C.bool(down))
	return nil
}

func (s *CGSink) Scroll(dx, dy float64) error {
	C.mouseScroll(C.int(dx), C.int(dy))
	return nil
}

func (s *CGSink) Key(k Key, down bool) error {
	s.mu.Lock()
	if f, ok := modifierFlags[k]; ok {
		if down {
			s.flags |= f
		} else {
			s.flags &^= f
		}
	}
	flags := s.flags
	s.mu.Unlock()

	if code, ok := macKeyCodes[k]; ok {
		C.keyCode(C.CGKeyCode(code), C.bool(down), C.CGEventFlags(flags))
		return nil
	}
	if k.Named() {
		s.log.Debug("no mac key code", zap.String("key", string(k)))
		return nil
	}
	for _, u := range utf16.Encode([]rune(string(k))) {
		C.keyChar(C.UniChar(u), C.bool(down), C.CGEventFlags(flags))
	}
	return nil
}
