package input

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Key is a platform-neutral key: one of the named keys below, or a single
// character such as "a" or "/".
type Key string

const (
	KeyEnter      Key = "Enter"
	KeyTab        Key = "Tab"
	KeySpace      Key = "Space"
	KeyBackspace  Key = "Backspace"
	KeyEscape     Key = "Escape"
	KeyDelete     Key = "Delete"
	KeyInsert     Key = "Insert"
	KeyHome       Key = "Home"
	KeyEnd        Key = "End"
	KeyPageUp     Key = "PageUp"
	KeyPageDown   Key = "PageDown"
	KeyArrowLeft  Key = "ArrowLeft"
	KeyArrowRight Key = "ArrowRight"
	KeyArrowUp    Key = "ArrowUp"
	KeyArrowDown  Key = "ArrowDown"
	KeyCapsLock   Key = "CapsLock"
	KeyControl    Key = "Control"
	KeyAlt        Key = "Alt"
	KeyShift      Key = "Shift"
	KeyMeta       Key = "Meta"
)

// FunctionKey returns F1 through F12.
func FunctionKey(n int) Key { return Key(fmt.Sprintf("F%d", n)) }

var namedKeys = map[Key]bool{}

var codeTable = buildCodeTable()

func buildCodeTable() map[string]Key {
	t := map[string]Key{
		"Enter":        KeyEnter,
		"NumpadEnter":  KeyEnter,
		"Tab":          KeyTab,
		"Space":        KeySpace,
		"Backspace":    KeyBackspace,
		"Escape":       KeyEscape,
		"Delete":       KeyDelete,
		"Insert":       KeyInsert,
		"Home":         KeyHome,
		"End":          KeyEnd,
		"PageUp":       KeyPageUp,
		"PageDown":     KeyPageDown,
		"ArrowLeft":    KeyArrowLeft,
		"ArrowRight":   KeyArrowRight,
		"ArrowUp":      KeyArrowUp,
		"ArrowDown":    KeyArrowDown,
		"CapsLock":     KeyCapsLock,
		"ControlLeft":  KeyControl,
		"ControlRight": KeyControl,
		"AltLeft":      KeyAlt,
		"AltRight":     KeyAlt,
		"ShiftLeft":    KeyShift,
		"ShiftRight":   KeyShift,
		"MetaLeft":     KeyMeta,
		"MetaRight":    KeyMeta,
		"OSLeft":       KeyMeta,
		"OSRight":      KeyMeta,

		"Minus":        "-",
		"Equal":        "=",
		"BracketLeft":  "[",
		"BracketRight": "]",
		"Backslash":    `\`,
		"Semicolon":    ";",
		"Quote":        "'",
		"Comma":        ",",
		"Period":       ".",
		"Slash":        "/",
		"Backquote":    "`",

		"NumpadAdd":      "+",
		"NumpadSubtract": "-",
		"NumpadMultiply": "*",
		"NumpadDivide":   "/",
		"NumpadDecimal":  ".",
	}
	for _, k := range t {
		if utf8.RuneCountInString(string(k)) > 1 {
			namedKeys[k] = true
		}
	}
	for c := 'a'; c <= 'z'; c++ {
		t["Key"+string(unicode.ToUpper(c))] = Key(string(c))
	}
	for d := '0'; d <= '9'; d++ {
		t["Digit"+string(d)] = Key(string(d))
		t["Numpad"+string(d)] = Key(string(d))
	}
	for n := 1; n <= 12; n++ {
		k := FunctionKey(n)
		t[string(k)] = k
		namedKeys[k] = true
	}
	return t
}

// Resolve maps a DOM code to a Key, falling back to the DOM key value when
// it names a known key or is a single printable character. ok is false when
// neither resolves.
func Resolve(code, key string) (Key, bool) {
	if k, ok := codeTable[code]; ok {
		return k, true
	}
	switch {
	case key == " ":
		return KeySpace, true
	case namedKeys[Key(key)]:
		return Key(key), true
	}
	if r, n := utf8.DecodeRuneInString(key); n > 0 && n == len(key) && r != utf8.RuneError && unicode.IsPrint(r) {
		return Key(key), true
	}
	return "", false
}

// Named reports whether k is a named key rather than a character.
func (k Key) Named() bool { return namedKeys[k] }
