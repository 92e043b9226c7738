// Package convert packs ordinary Go images into the 1bpp layout the panel
// RAM uses, letting the tool display PNG or JPEG files directly.
package convert

import (
	"fmt"
	"image"
	"image/color"
)

// Pack converts img into packed 1bpp bytes of exactly width*height/8
// length.
//
// Requirements / behavior:
//
//   - img bounds must be exactly width x height.
//   - Packing is row-major, MSB-first:
//     byteIndex = y * (width/8) + (x >> 3)
//     mask      = 0x80 >> (x & 7)
//   - Every bit starts at 1 (blank paper); pixels classified as ink clear
//     their bit.
//   - Transparent pixels (alpha < 128) are treated as blank.
func Pack(img image.Image, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width%8 != 0 {
		return nil, fmt.Errorf("convert: invalid target geometry %dx%d", width, height)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("convert: expected %dx%d, got %dx%d", width, height, b.Dx(), b.Dy())
	}

	stride := width / 8
	out := make([]byte, stride*height)
	for i := range out {
		out[i] = 0xFF
	}

	// Fast path: read NRGBA pixels straight from Pix instead of going
	// through At() for every pixel.
	if n, ok := img.(*image.NRGBA); ok {
		for py := 0; py < height; py++ {
			row := n.PixOffset(b.Min.X, b.Min.Y+py)
			for px := 0; px < width; px++ {
				i := row + px*4
				if n.Pix[i+3] < 128 {
					continue
				}
				if !ink(n.Pix[i], n.Pix[i+1], n.Pix[i+2]) {
					continue
				}
				out[py*stride+(px>>3)] &^= byte(0x80 >> (px & 7))
			}
		}
		return out, nil
	}

	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+px, b.Min.Y+py)).(color.NRGBA)
			if c.A < 128 {
				continue
			}
			if !ink(c.R, c.G, c.B) {
				continue
			}
			out[py*stride+(px>>3)] &^= byte(0x80 >> (px & 7))
		}
	}
	return out, nil
}

// ink decides whether a pixel prints dark on the monochrome panel.
//
// Luma Y = 0.299R + 0.587G + 0.114B with a midpoint threshold: anything
// darker than half-brightness becomes ink.
func ink(r, g, b uint8) bool {
	y := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return y < 128
}
