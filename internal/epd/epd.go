// Package epd drives SSD1681-family monochrome e-paper panels over 4-wire
// SPI. A Device owns an off-screen canvas and a protocol state machine;
// drawing calls only touch memory, and Show pushes the canvas through the
// orientation transform to the panel RAM and triggers a refresh waveform.
package epd

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"epd1in54/internal/canvas"
	"epd1in54/internal/pbm"
)

// ErrAsleep is returned when a panel operation is attempted while the
// controller is in deep sleep. Wake is the only way out of deep sleep.
var ErrAsleep = errors.New("display is in deep sleep")

// State is the phase of the panel protocol the driver is in.
type State uint8

const (
	StateUninitialized State = iota
	StateResetting
	StateConfiguring
	StateIdle
	StateWriting
	StateRefreshing
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResetting:
		return "resetting"
	case StateConfiguring:
		return "configuring"
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateRefreshing:
		return "refreshing"
	case StateSleeping:
		return "sleeping"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// PartialUpdate selects the refresh waveform for Show.
type PartialUpdate bool

const (
	// Full runs the complete waveform: slower, but clears ghosting.
	Full PartialUpdate = false
	// Partial runs the fast waveform. Repeated partial refreshes
	// accumulate artifacts; interleave a Full one now and then.
	Partial PartialUpdate = true
)

// Opts holds the panel parameters for New. The zero value of every field
// falls back to the 1.54" panel defaults.
type Opts struct {
	// Width and Height of the panel in pixels.
	Width  int
	Height int
	// BusyTimeout bounds every wait on the busy line.
	BusyTimeout time.Duration
	// Font renders DrawText glyphs.
	Font font.Face
}

// EPD1in54 is the 1.54" 200x200 monochrome panel.
var EPD1in54 = Opts{Width: 200, Height: 200}

// Device is the driver for one panel. All methods are synchronous and
// blocking; the device holds no internal locking, so concurrent callers
// must serialize access themselves.
type Device struct {
	bus    Bus
	canvas *canvas.Canvas
	orient canvas.Orientation
	font   font.Face

	width       int
	height      int
	busyTimeout time.Duration

	state State
	dirty bool
}

// New builds a Device over bus and runs the power-on sequence. On return
// the panel is configured and idle with a blank, clean canvas; nothing is
// pushed to the glass until the first Show after a drawing call.
func New(bus Bus, opts *Opts) (*Device, error) {
	if bus == nil {
		return nil, errors.New("epd: nil bus")
	}
	if opts == nil {
		opts = &EPD1in54
	}

	width := opts.Width
	if width == 0 {
		width = EPD1in54.Width
	}
	height := opts.Height
	if height == 0 {
		height = EPD1in54.Height
	}
	c, err := canvas.New(width, height)
	if err != nil {
		return nil, fmt.Errorf("epd: %w", err)
	}

	timeout := opts.BusyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	}
	face := opts.Font
	if face == nil {
		face = basicfont.Face7x13
	}

	d := &Device{
		bus:         bus,
		canvas:      c,
		font:        face,
		width:       width,
		height:      height,
		busyTimeout: timeout,
		state:       StateUninitialized,
	}
	if err := d.initialize(); err != nil {
		return nil, err
	}
	return d, nil
}

// initialize runs the reset pulse and the register configuration that
// brings the controller from any state to Idle. On failure the state is
// left at the phase being attempted.
func (d *Device) initialize() error {
	d.state = StateResetting
	if err := d.bus.PulseReset(); err != nil {
		return err
	}
	if err := d.bus.WaitReady(d.busyTimeout); err != nil {
		return err
	}

	d.state = StateConfiguring
	if err := d.bus.SendCommand(swReset); err != nil {
		return err
	}
	if err := d.bus.WaitReady(d.busyTimeout); err != nil {
		return err
	}

	rows := d.height - 1
	if err := d.command(driverOutputControl, byte(rows), byte(rows>>8), 0x00); err != nil {
		return err
	}
	// Y decrement, X increment: rows scan bottom-up in RAM order.
	if err := d.command(dataEntryModeSetting, 0x01); err != nil {
		return err
	}
	if err := d.command(setRAMXAddressStartEndPosition, 0x00, byte(d.width/8-1)); err != nil {
		return err
	}
	if err := d.command(setRAMYAddressStartEndPosition, byte(rows), byte(rows>>8), 0x00, 0x00); err != nil {
		return err
	}
	if err := d.command(borderWaveformControl, 0x01); err != nil {
		return err
	}
	// Sense the on-chip temperature so the controller tunes its timing.
	if err := d.command(temperatureSensorControl, 0x80); err != nil {
		return err
	}
	// Load the factory waveform for the sensed temperature.
	if err := d.command(displayUpdateControl2, sequenceLoadLUT); err != nil {
		return err
	}
	if err := d.bus.SendCommand(masterActivation); err != nil {
		return err
	}
	if err := d.bus.WaitReady(d.busyTimeout); err != nil {
		return err
	}

	d.state = StateIdle
	log.Debug().Int("width", d.width).Int("height", d.height).Msg("epd: panel configured")
	return nil
}

// command writes an opcode followed by its payload bytes.
func (d *Device) command(cmd byte, data ...byte) error {
	if err := d.bus.SendCommand(cmd); err != nil {
		return err
	}
	for _, b := range data {
		if err := d.bus.SendData(b); err != nil {
			return err
		}
	}
	return nil
}

// Show writes the canvas to the panel RAM in physical orientation and
// triggers a refresh with the chosen waveform. When nothing has changed
// since the last successful Show it returns immediately without any bus
// traffic. The dirty flag clears only after the refresh completes, so a
// failed Show can be retried as a whole.
func (d *Device) Show(mode PartialUpdate) error {
	if d.state == StateSleeping {
		return fmt.Errorf("epd: show: %w", ErrAsleep)
	}
	if !d.dirty {
		return nil
	}

	d.state = StateWriting
	if err := d.bus.SendCommand(writeRAM); err != nil {
		return err
	}
	if err := d.bus.SendDataBulk(d.canvas.Transformed(d.orient)); err != nil {
		return err
	}

	d.state = StateRefreshing
	sel := sequenceFull
	if mode == Partial {
		sel = sequencePartial
	}
	if err := d.command(displayUpdateControl2, sel); err != nil {
		return err
	}
	if err := d.bus.SendCommand(masterActivation); err != nil {
		return err
	}
	if err := d.bus.WaitReady(d.busyTimeout); err != nil {
		return err
	}

	d.state = StateIdle
	d.dirty = false
	log.Debug().Bool("partial", bool(mode)).Msg("epd: refresh complete")
	return nil
}

// Sleep puts the controller in deep sleep to stop it drawing power between
// refreshes. The busy line is dead in deep sleep, so no wait follows the
// command. Sleeping twice is a no-op.
func (d *Device) Sleep() error {
	if d.state == StateSleeping {
		return nil
	}
	if err := d.command(deepSleepMode, deepSleepMode1); err != nil {
		return err
	}
	d.state = StateSleeping
	log.Debug().Msg("epd: deep sleep")
	return nil
}

// Wake resets and reconfigures the controller. Deep sleep invalidates the
// panel RAM, so the device is marked dirty and the next Show rewrites
// everything.
func (d *Device) Wake() error {
	if err := d.initialize(); err != nil {
		return err
	}
	d.dirty = true
	log.Debug().Msg("epd: awake")
	return nil
}

// LoadLUT writes a custom waveform table to the controller. The payload is
// passed through untouched.
func (d *Device) LoadLUT(lut []byte) error {
	if d.state == StateSleeping {
		return fmt.Errorf("epd: load lut: %w", ErrAsleep)
	}
	if err := d.bus.SendCommand(writeLUTRegister); err != nil {
		return err
	}
	return d.bus.SendDataBulk(lut)
}

// Clear fills every canvas byte with pattern. 0xFF is blank paper, 0x00 is
// solid ink.
func (d *Device) Clear(pattern byte) {
	d.canvas.Fill(pattern)
	d.dirty = true
}

// SetPixel sets one canvas pixel. Out-of-bounds coordinates are clipped.
func (d *Device) SetPixel(x, y int, col canvas.Color) {
	d.canvas.SetPixel(x, y, col)
	d.dirty = true
}

// DrawLine draws a line between two points.
func (d *Device) DrawLine(x0, y0, x1, y1 int, col canvas.Color) {
	d.canvas.Line(x0, y0, x1, y1, col)
	d.dirty = true
}

// DrawRect draws a rectangle outline.
func (d *Device) DrawRect(x, y, w, h int, col canvas.Color) {
	d.canvas.Rect(x, y, w, h, col)
	d.dirty = true
}

// FillRect fills a rectangle.
func (d *Device) FillRect(x, y, w, h int, col canvas.Color) {
	d.canvas.FillRect(x, y, w, h, col)
	d.dirty = true
}

// DrawText renders s with the configured font, top-left corner at (x,y).
func (d *Device) DrawText(x, y int, s string, col canvas.Color) {
	d.canvas.Text(d.font, x, y, s, col)
	d.dirty = true
}

// DrawImage replaces the canvas with a pre-packed 1bpp buffer of exactly
// width*height/8 bytes.
func (d *Device) DrawImage(buf []byte) error {
	if err := d.canvas.SetBytes(buf); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

// LoadPBM reads a binary PBM stream whose dimensions must match the panel
// and copies its raster into the canvas unchanged. The canvas is untouched
// when the stream is malformed or the wrong size.
func (d *Device) LoadPBM(r io.Reader) error {
	img, err := pbm.Decode(r)
	if err != nil {
		return err
	}
	if img.Width != d.width || img.Height != d.height {
		return fmt.Errorf("epd: pbm is %dx%d, panel is %dx%d: %w",
			img.Width, img.Height, d.width, d.height, canvas.ErrSizeMismatch)
	}
	if err := d.canvas.SetBytes(img.Bits); err != nil {
		return err
	}
	d.dirty = true
	return nil
}

// SetRotation sets the output rotation in degrees (0, 90, 180 or 270).
// Quarter turns need a square panel; both violations are rejected without
// touching the stored orientation.
func (d *Device) SetRotation(degrees int) error {
	r, err := canvas.NewRotation(degrees)
	if err != nil {
		return err
	}
	if (r == canvas.Rotate90 || r == canvas.Rotate270) && d.width != d.height {
		return fmt.Errorf("epd: rotation %d needs a square panel, have %dx%d",
			degrees, d.width, d.height)
	}
	d.orient.Rotation = r
	d.dirty = true
	return nil
}

// SetFlip mirrors the output horizontally and/or vertically. Flips apply
// before the rotation.
func (d *Device) SetFlip(horizontal, vertical bool) {
	d.orient.FlipHorizontal = horizontal
	d.orient.FlipVertical = vertical
	d.dirty = true
}

// State reports the protocol phase the driver is in.
func (d *Device) State() State { return d.state }

// Dirty reports whether the canvas or orientation changed since the last
// successful Show.
func (d *Device) Dirty() bool { return d.dirty }

// Bounds returns the drawable area in logical coordinates.
func (d *Device) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.width, d.height)
}

// Buffer returns a copy of the logical canvas bytes, before any
// orientation transform.
func (d *Device) Buffer() []byte {
	return bytes.Clone(d.canvas.Bytes())
}

func (d *Device) String() string {
	return fmt.Sprintf("epd.Device{%dx%d, %s}", d.width, d.height, d.state)
}
