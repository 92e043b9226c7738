package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/basicfont"
)

func TestNewValidatesDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		width   int
		height  int
		wantErr bool
	}{
		{name: "valid square", width: 200, height: 200, wantErr: false},
		{name: "valid rectangle", width: 128, height: 64, wantErr: false},
		{name: "zero width", width: 0, height: 200, wantErr: true},
		{name: "zero height", width: 200, height: 0, wantErr: true},
		{name: "negative width", width: -8, height: 8, wantErr: true},
		{name: "width not byte aligned", width: 100, height: 100, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(tt.width, tt.height)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.width, c.Width())
			assert.Equal(t, tt.height, c.Height())
			assert.Len(t, c.Bytes(), tt.width*tt.height/8)
		})
	}
}

func TestNewStartsBlank(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)
	for i, b := range c.Bytes() {
		require.Equalf(t, byte(0xFF), b, "byte %d", i)
	}
}

func TestSetPixelPacking(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		x, y     int
		wantByte int
		wantMask byte
	}{
		{name: "origin is MSB of first byte", x: 0, y: 0, wantByte: 0, wantMask: 0x80},
		{name: "x=7 is LSB of first byte", x: 7, y: 0, wantByte: 0, wantMask: 0x01},
		{name: "x=8 starts second byte", x: 8, y: 0, wantByte: 1, wantMask: 0x80},
		{name: "second row advances by stride", x: 0, y: 1, wantByte: 2, wantMask: 0x80},
		{name: "last pixel", x: 15, y: 7, wantByte: 15, wantMask: 0x01},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := New(16, 8)
			require.NoError(t, err)

			c.SetPixel(tt.x, tt.y, Black)
			assert.Equal(t, Black, c.Pixel(tt.x, tt.y))
			for i, b := range c.Bytes() {
				if i == tt.wantByte {
					assert.Equal(t, 0xFF&^tt.wantMask, b)
				} else {
					assert.Equalf(t, byte(0xFF), b, "byte %d must stay blank", i)
				}
			}

			c.SetPixel(tt.x, tt.y, White)
			assert.Equal(t, White, c.Pixel(tt.x, tt.y))
			assert.Equal(t, byte(0xFF), c.Bytes()[tt.wantByte])
		})
	}
}

func TestSetPixelClipsOutOfBounds(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)

	for _, p := range [][2]int{{-1, 0}, {0, -1}, {16, 0}, {0, 8}, {-100, 200}} {
		c.SetPixel(p[0], p[1], Black)
	}
	for _, b := range c.Bytes() {
		require.Equal(t, byte(0xFF), b)
	}
	assert.Equal(t, White, c.Pixel(-1, 0))
	assert.Equal(t, White, c.Pixel(16, 0))
}

func TestFill(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)

	c.Fill(0x00)
	for _, b := range c.Bytes() {
		require.Equal(t, byte(0x00), b)
	}

	c.Fill(0xA5)
	for _, b := range c.Bytes() {
		require.Equal(t, byte(0xA5), b)
	}
}

func TestSetBytes(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)

	err = c.SetBytes(make([]byte, 5))
	assert.ErrorIs(t, err, ErrSizeMismatch)
	for _, b := range c.Bytes() {
		require.Equal(t, byte(0xFF), b, "failed SetBytes must not touch the canvas")
	}

	src := make([]byte, 16)
	for i := range src {
		src[i] = byte(i)
	}
	require.NoError(t, c.SetBytes(src))
	assert.Equal(t, src, c.Bytes())

	src[0] = 0xEE
	assert.Equal(t, byte(0x00), c.Bytes()[0], "SetBytes must copy, not alias")
}

func TestLine(t *testing.T) {
	t.Parallel()

	t.Run("horizontal", func(t *testing.T) {
		t.Parallel()

		c, err := New(16, 8)
		require.NoError(t, err)
		c.Line(2, 3, 6, 3, Black)
		for x := 2; x <= 6; x++ {
			assert.Equalf(t, Black, c.Pixel(x, 3), "pixel (%d,3)", x)
		}
		assert.Equal(t, White, c.Pixel(1, 3))
		assert.Equal(t, White, c.Pixel(7, 3))
	})

	t.Run("diagonal hits every step", func(t *testing.T) {
		t.Parallel()

		c, err := New(16, 8)
		require.NoError(t, err)
		c.Line(0, 0, 3, 3, Black)
		for i := 0; i <= 3; i++ {
			assert.Equalf(t, Black, c.Pixel(i, i), "pixel (%d,%d)", i, i)
		}
	})

	t.Run("endpoints are always included", func(t *testing.T) {
		t.Parallel()

		segments := [][4]int{
			{1, 1, 9, 5},
			{9, 5, 1, 1},
			{2, 0, 5, 7},
			{14, 7, 3, 2},
		}
		for _, s := range segments {
			c, err := New(16, 8)
			require.NoError(t, err)
			c.Line(s[0], s[1], s[2], s[3], Black)
			assert.Equalf(t, Black, c.Pixel(s[0], s[1]), "start of %v", s)
			assert.Equalf(t, Black, c.Pixel(s[2], s[3]), "end of %v", s)
		}
	})

	t.Run("steep line visits every row once", func(t *testing.T) {
		t.Parallel()

		c, err := New(16, 8)
		require.NoError(t, err)
		c.Line(2, 0, 5, 7, Black)
		for y := 0; y < 8; y++ {
			ink := 0
			for x := 0; x < 16; x++ {
				if c.Pixel(x, y) == Black {
					ink++
				}
			}
			assert.Equalf(t, 1, ink, "row %d", y)
		}
	})

	t.Run("endpoints off canvas clip", func(t *testing.T) {
		t.Parallel()

		c, err := New(16, 8)
		require.NoError(t, err)
		c.Line(-4, 3, 20, 3, Black)
		for x := 0; x < 16; x++ {
			assert.Equalf(t, Black, c.Pixel(x, 3), "pixel (%d,3)", x)
		}
	})
}

func TestRect(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)
	c.Rect(2, 1, 5, 4, Black)

	for x := 2; x <= 6; x++ {
		assert.Equal(t, Black, c.Pixel(x, 1), "top edge")
		assert.Equal(t, Black, c.Pixel(x, 4), "bottom edge")
	}
	for y := 1; y <= 4; y++ {
		assert.Equal(t, Black, c.Pixel(2, y), "left edge")
		assert.Equal(t, Black, c.Pixel(6, y), "right edge")
	}
	assert.Equal(t, White, c.Pixel(3, 2), "interior stays blank")
	assert.Equal(t, White, c.Pixel(5, 3), "interior stays blank")
}

func TestFillRect(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)
	c.FillRect(2, 1, 5, 4, Black)

	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			want := White
			if x >= 2 && x <= 6 && y >= 1 && y <= 4 {
				want = Black
			}
			assert.Equalf(t, want, c.Pixel(x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestRectDegenerate(t *testing.T) {
	t.Parallel()

	c, err := New(16, 8)
	require.NoError(t, err)
	c.Rect(2, 2, 0, 4, Black)
	c.FillRect(2, 2, 4, -1, Black)
	for _, b := range c.Bytes() {
		require.Equal(t, byte(0xFF), b)
	}
}

func TestText(t *testing.T) {
	t.Parallel()

	t.Run("draws ink inside the glyph box", func(t *testing.T) {
		t.Parallel()

		c, err := New(64, 16)
		require.NoError(t, err)
		c.Text(basicfont.Face7x13, 0, 0, "Hi", Black)

		ink := 0
		for y := 0; y < 16; y++ {
			for x := 0; x < 2*7; x++ {
				if c.Pixel(x, y) == Black {
					ink++
				}
			}
		}
		assert.Positive(t, ink, "expected some ink for the glyphs")

		for y := 0; y < 16; y++ {
			for x := 3 * 7; x < 64; x++ {
				require.Equalf(t, White, c.Pixel(x, y), "pixel (%d,%d) beyond the text", x, y)
			}
		}
	})

	t.Run("clips at the canvas edge", func(t *testing.T) {
		t.Parallel()

		c, err := New(16, 16)
		require.NoError(t, err)
		c.Text(basicfont.Face7x13, 12, 10, "wide string", Black)
	})

	t.Run("nil face is a no-op", func(t *testing.T) {
		t.Parallel()

		c, err := New(16, 8)
		require.NoError(t, err)
		c.Text(nil, 0, 0, "x", Black)
		for _, b := range c.Bytes() {
			require.Equal(t, byte(0xFF), b)
		}
	})
}
