// Package canvas implements the in-memory 1bpp framebuffer for a monochrome
// e-paper panel: MSB-first, row-major bit packing plus the geometric drawing
// primitives and the flip/rotation transform applied when the buffer is sent
// to the panel.
package canvas

import (
	"errors"
	"fmt"
)

// Color is the ink value passed to drawing calls. The packed buffer stores
// one bit per pixel: 1 is blank paper, 0 is ink.
type Color uint8

const (
	// Black drives the pixel dark (clears the bit).
	Black Color = 0x00
	// White leaves the pixel blank (sets the bit).
	White Color = 0x01
)

// ErrSizeMismatch is returned when a supplied buffer or image does not match
// the canvas dimensions.
var ErrSizeMismatch = errors.New("buffer size does not match canvas dimensions")

// Canvas is a fixed-size monochrome pixel store.
//
// Pixel (x,y) lives at byte index x/8 + y*(width/8), bit 7-(x%8). Width and
// height never change after construction and the backing buffer is always
// exactly width*height/8 bytes.
type Canvas struct {
	width  int
	height int
	buf    []byte
}

// New allocates a canvas of the given dimensions with every pixel blank.
// Width must be a positive multiple of 8 so rows stay byte-aligned; height
// must be positive.
func New(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas: invalid dimensions %dx%d", width, height)
	}
	if width%8 != 0 {
		return nil, fmt.Errorf("canvas: width %d is not a multiple of 8", width)
	}
	c := &Canvas{
		width:  width,
		height: height,
		buf:    make([]byte, width*height/8),
	}
	c.Fill(0xFF)
	return c, nil
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.width }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.height }

// Bytes returns the live backing buffer. Callers that need a stable copy
// must make one.
func (c *Canvas) Bytes() []byte { return c.buf }

// SetBytes replaces the whole buffer with a copy of p. The length must match
// the canvas exactly, otherwise ErrSizeMismatch is returned and the canvas
// is left untouched.
func (c *Canvas) SetBytes(p []byte) error {
	if len(p) != len(c.buf) {
		return fmt.Errorf("canvas: got %d bytes, want %d: %w", len(p), len(c.buf), ErrSizeMismatch)
	}
	copy(c.buf, p)
	return nil
}

// Fill overwrites every byte of the buffer with the given pattern. 0xFF is
// all-blank, 0x00 is all-ink.
func (c *Canvas) Fill(pattern byte) {
	for i := range c.buf {
		c.buf[i] = pattern
	}
}

// SetPixel sets a single pixel. Coordinates outside the canvas are clipped
// silently.
func (c *Canvas) SetPixel(x, y int, col Color) {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return
	}
	i := x/8 + y*(c.width/8)
	mask := byte(0x80 >> (x & 7))
	if col == Black {
		c.buf[i] &^= mask
	} else {
		c.buf[i] |= mask
	}
}

// Pixel reads a single pixel. Out-of-bounds coordinates read as White.
func (c *Canvas) Pixel(x, y int) Color {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return White
	}
	if c.buf[x/8+y*(c.width/8)]&(0x80>>(x&7)) != 0 {
		return White
	}
	return Black
}

// Line draws a line between two points using Bresenham's algorithm. Both
// endpoints are included; out-of-bounds portions are clipped.
func (c *Canvas) Line(x0, y0, x1, y1 int, col Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy

	for {
		c.SetPixel(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// Rect draws the outline of a w*h rectangle with its top-left corner at
// (x,y).
func (c *Canvas) Rect(x, y, w, h int, col Color) {
	if w <= 0 || h <= 0 {
		return
	}
	c.hline(x, x+w-1, y, col)
	c.hline(x, x+w-1, y+h-1, col)
	c.vline(x, y, y+h-1, col)
	c.vline(x+w-1, y, y+h-1, col)
}

// FillRect fills a w*h rectangle with its top-left corner at (x,y).
func (c *Canvas) FillRect(x, y, w, h int, col Color) {
	if w <= 0 || h <= 0 {
		return
	}
	for dy := 0; dy < h; dy++ {
		c.hline(x, x+w-1, y+dy, col)
	}
}

func (c *Canvas) hline(x0, x1, y int, col Color) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	for x := x0; x <= x1; x++ {
		c.SetPixel(x, y, col)
	}
}

func (c *Canvas) vline(x, y0, y1 int, col Color) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		c.SetPixel(x, y, col)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
