package canvas

import (
	"errors"
	"fmt"
)

// ErrInvalidRotation is returned for rotation angles other than 0, 90, 180
// or 270 degrees.
var ErrInvalidRotation = errors.New("rotation must be one of 0, 90, 180, 270 degrees")

// Rotation is a display rotation in degrees, restricted to the four right
// angles. The zero value is no rotation.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// NewRotation validates an angle in degrees. Anything outside the four
// permitted values is rejected with ErrInvalidRotation.
func NewRotation(degrees int) (Rotation, error) {
	switch degrees {
	case 0, 90, 180, 270:
		return Rotation(degrees), nil
	}
	return 0, fmt.Errorf("canvas: %d degrees: %w", degrees, ErrInvalidRotation)
}

// Orientation describes how the logical canvas maps onto the physical panel.
// Flips are applied before the rotation; the two orders are not equivalent,
// so this ordering is part of the contract. The zero value is the identity
// mapping.
//
// Rotate90 and Rotate270 swap the roles of width and height and are only
// correct on a square canvas, which holds for the panels this driver
// targets. Device.SetRotation enforces the precondition.
type Orientation struct {
	FlipHorizontal bool
	FlipVertical   bool
	Rotation       Rotation
}

// Transformed returns a new buffer holding the canvas content in physical
// panel order under the given orientation. The canvas itself is never
// modified; with the zero Orientation the result is byte-for-byte equal to
// the canvas buffer.
//
// Every pixel is visited once per call. The cost is paid here rather than in
// the drawing primitives because orientation can change independently of
// content.
func (c *Canvas) Transformed(o Orientation) []byte {
	out := make([]byte, len(c.buf))
	stride := c.width / 8

	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			if c.buf[x/8+y*stride]&(0x80>>(x&7)) == 0 {
				continue
			}

			tx, ty := x, y
			if o.FlipHorizontal {
				tx = c.width - 1 - tx
			}
			if o.FlipVertical {
				ty = c.height - 1 - ty
			}
			switch o.Rotation {
			case Rotate90:
				tx, ty = ty, c.width-1-tx
			case Rotate180:
				tx, ty = c.width-1-tx, c.height-1-ty
			case Rotate270:
				tx, ty = c.height-1-ty, tx
			}

			out[tx/8+ty*stride] |= 0x80 >> (tx & 7)
		}
	}
	return out
}
