package display

import (
	"image"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/airdesk/internal/input"
)

// EbitenDisplay renders the remote screen using Ebitengine and captures input.
type EbitenDisplay struct {
	mu          sync.Mutex
	frame       *image.RGBA
	dirty       bool
	ebitenImage *ebiten.Image
	onInput     InputCallback
	title       string
	closed      atomic.Bool

	prevMouseX int
	prevMouseY int
	keys       []ebiten.Key
}

var _ Display = (*EbitenDisplay)(nil)

// NewEbitenDisplay creates an Ebitengine-based display.
func NewEbitenDisplay(title string, onInput InputCallback) *EbitenDisplay {
	return &EbitenDisplay{
		onInput: onInput,
		title:   title,
	}
}

// SetFrame updates the displayed frame (called from network goroutine).
func (d *EbitenDisplay) SetFrame(img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = img
	d.dirty = true
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

// Close makes Run return after the current tick. It is safe to call from
// any goroutine.
func (d *EbitenDisplay) Close() { d.closed.Store(true) }

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	if d.closed.Load() {
		return ebiten.Termination
	}
	d.mu.Lock()
	frame := d.frame
	d.mu.Unlock()
	if frame == nil || d.onInput == nil {
		return nil
	}
	sw, sh := ebiten.WindowSize()
	fit := newViewport(float64(sw), float64(sh), float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy()))
	d.captureMouseInput(fit)
	d.captureKeyboardInput()
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	frame, dirty := d.frame, d.dirty
	d.dirty = false
	d.mu.Unlock()

	if frame == nil {
		return
	}

	if d.ebitenImage == nil ||
		d.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
		d.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
		d.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
		dirty = true
	}
	if dirty {
		d.ebitenImage.WritePixels(frame.Pix)
	}

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	fit := newViewport(float64(sw), float64(sh), float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy()))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(fit.scale, fit.scale)
	op.GeoM.Translate(fit.offsetX, fit.offsetY)
	screen.DrawImage(d.ebitenImage, op)
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// --- Input capture ---

func (d *EbitenDisplay) captureMouseInput(fit viewport) {
	mx, my := ebiten.CursorPosition()
	remoteX, remoteY := fit.toFrame(float64(mx), float64(my))

	if mx != d.prevMouseX || my != d.prevMouseY {
		d.prevMouseX = mx
		d.prevMouseY = my
		d.onInput(input.Event{Type: input.EventMouseMove, X: remoteX, Y: remoteY})
	}

	buttons := []struct {
		eb  ebiten.MouseButton
		btn input.MouseButton
	}{
		{ebiten.MouseButtonLeft, input.MouseButtonLeft},
		{ebiten.MouseButtonRight, input.MouseButtonRight},
		{ebiten.MouseButtonMiddle, input.MouseButtonMiddle},
	}
	for _, b := range buttons {
		if inpututil.IsMouseButtonJustPressed(b.eb) {
			d.onInput(input.Event{Type: input.EventMouseDown, X: remoteX, Y: remoteY, Button: b.btn})
		}
		if inpututil.IsMouseButtonJustReleased(b.eb) {
			d.onInput(input.Event{Type: input.EventMouseUp, X: remoteX, Y: remoteY, Button: b.btn})
		}
	}

	if dx, dy := ebiten.Wheel(); dx != 0 || dy != 0 {
		d.onInput(input.Event{Type: input.EventMouseScroll, ScrollDX: dx, ScrollDY: dy})
	}
}

func (d *EbitenDisplay) captureKeyboardInput() {
	mods := currentModifiers()
	d.keys = inpututil.AppendJustPressedKeys(d.keys[:0])
	for _, k := range d.keys {
		if code, ok := domCode(k); ok {
			d.onInput(input.Event{Type: input.EventKeyDown, Code: code, Modifiers: mods})
		}
	}
	d.keys = inpututil.AppendJustReleasedKeys(d.keys[:0])
	for _, k := range d.keys {
		if code, ok := domCode(k); ok {
			d.onInput(input.Event{Type: input.EventKeyUp, Code: code, Modifiers: mods})
		}
	}
}

func currentModifiers() input.Modifiers {
	var m input.Modifiers
	if ebiten.IsKeyPressed(ebiten.KeyShift) {
		m |= input.ModShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) {
		m |= input.ModCtrl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) {
		m |= input.ModAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) {
		m |= input.ModMeta
	}
	return m
}

// domCode returns the KeyboardEvent.code for k. Ebitengine names its
// physical keys after DOM codes, minus the "Key" prefix on letters. The
// side-agnostic aliases are skipped since their sided keys report too.
func domCode(k ebiten.Key) (string, bool) {
	switch k {
	case ebiten.KeyAlt, ebiten.KeyControl, ebiten.KeyShift, ebiten.KeyMeta:
		return "", false
	}
	name := k.String()
	if len(name) == 1 && name[0] >= 'A' && name[0] <= 'Z' {
		return "Key" + name, true
	}
	return name, name != ""
}

// viewport maps between window and frame coordinates with letterboxing.
type viewport struct {
	scale, offsetX, offsetY float64
}

func newViewport(viewW, viewH, frameW, frameH float64) viewport {
	scale := math.Min(viewW/frameW, viewH/frameH)
	return viewport{
		scale:   scale,
		offsetX: (viewW - frameW*scale) / 2,
		offsetY: (viewH - frameH*scale) / 2,
	}
}

func (v viewport) toFrame(x, y float64) (float64, float64) {
	return (x - v.offsetX) / v.scale, (y - v.offsetY) / v.scale
}
