package canvas

import (
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Text draws a string with its top-left corner at (x,y), rasterizing glyphs
// through the given face and blitting the resulting coverage masks pixel by
// pixel. Mask coverage of 50% or more becomes ink; glyphs the face does not
// know are skipped. Pixels falling outside the canvas are clipped like any
// other drawing call.
func (c *Canvas) Text(face font.Face, x, y int, s string, col Color) {
	if face == nil {
		return
	}

	m := face.Metrics()
	dot := fixed.P(x, y+m.Ascent.Ceil())
	prev := rune(-1)

	for _, r := range s {
		if prev >= 0 {
			dot.X += face.Kern(prev, r)
		}
		dr, mask, maskp, advance, ok := face.Glyph(dot, r)
		if !ok {
			prev = r
			continue
		}
		for gy := dr.Min.Y; gy < dr.Max.Y; gy++ {
			for gx := dr.Min.X; gx < dr.Max.X; gx++ {
				_, _, _, a := mask.At(maskp.X+gx-dr.Min.X, maskp.Y+gy-dr.Min.Y).RGBA()
				if a >= 0x8000 {
					c.SetPixel(gx, gy, col)
				}
			}
		}
		dot.X += advance
		prev = r
	}
}
