// Package input replays viewer input on the captured machine. Events arrive
// as JSON on the input channel, are resolved to platform-neutral keys and
// buttons, and are played through a Sink with a fixed pause after every
// primitive so the OS input queue keeps up.
package input

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies the kind of input event.
type EventType string

const (
	EventMouseMove   EventType = "mouse_move"
	EventMouseDown   EventType = "mouse_down"
	EventMouseUp     EventType = "mouse_up"
	EventMouseClick  EventType = "mouse_click"
	EventMouseScroll EventType = "mouse_scroll"
	EventKeyDown     EventType = "key_down"
	EventKeyUp       EventType = "key_up"
	// EventKeyPress presses the event's modifiers, clicks the key and
	// releases the modifiers.
	EventKeyPress EventType = "key_press"
)

// ErrUnknownEvent is returned for an event type this package does not know.
var ErrUnknownEvent = errors.New("input: unknown event type")

// MouseButton identifies a mouse button.
type MouseButton int

const (
	MouseButtonLeft   MouseButton = 0
	MouseButtonRight  MouseButton = 1
	MouseButtonMiddle MouseButton = 2
)

// ParseMouseButton accepts "left", "right" and "middle". Anything else is left.
func ParseMouseButton(s string) MouseButton {
	switch s {
	case "right":
		return MouseButtonRight
	case "middle":
		return MouseButtonMiddle
	default:
		return MouseButtonLeft
	}
}

// Modifiers is a bit set of held modifier keys.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// Has reports whether every bit of m2 is set in m.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// pressOrder is the order modifiers go down in; they come up in reverse.
var pressOrder = []struct {
	mod Modifiers
	key Key
}{
	{ModCtrl, KeyControl},
	{ModAlt, KeyAlt},
	{ModShift, KeyShift},
	{ModMeta, KeyMeta},
}

// Keys returns the held modifier keys in press order.
func (m Modifiers) Keys() []Key {
	var keys []Key
	for _, p := range pressOrder {
		if m.Has(p.mod) {
			keys = append(keys, p.key)
		}
	}
	return keys
}

// Event is the wire format for input events on the input channel. Code is
// a DOM KeyboardEvent.code such as "KeyA"; Key is the matching
// KeyboardEvent.key and is used when Code is not in the table.
type Event struct {
	Type      EventType   `json:"type"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
	Button    MouseButton `json:"button,omitempty"`
	Code      string      `json:"code,omitempty"`
	Key       string      `json:"key,omitempty"`
	Modifiers Modifiers   `json:"modifiers,omitempty"`
	ScrollDX  float64     `json:"scrollDX,omitempty"`
	ScrollDY  float64     `json:"scrollDY,omitempty"`
}

// ParseEvent decodes one JSON event.
func ParseEvent(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("input: decode event: %w", err)
	}
	switch e.Type {
	case EventMouseMove, EventMouseDown, EventMouseUp, EventMouseClick, EventMouseScroll,
		EventKeyDown, EventKeyUp, EventKeyPress:
		return e, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
}

// Marshal encodes e for the input channel.
func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }
