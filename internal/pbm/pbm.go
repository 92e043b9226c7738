// Package pbm reads and writes the binary (P4) flavor of the portable
// bitmap format, restricted to the subset the display pipeline uses: a
// magic line, optional # comment lines, one "width height" line, then the
// packed raster.
package pbm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrFormat is returned for streams that are not well-formed binary PBM.
var ErrFormat = errors.New("not a binary PBM (P4) stream")

// Image is a decoded bitmap. Bits holds (Width+7)/8 * Height bytes exactly
// as stored in the stream: row-major, MSB-first, rows padded to whole
// bytes.
type Image struct {
	Width  int
	Height int
	Bits   []byte
}

// maxDim caps decoded dimensions. No panel this pipeline feeds comes
// anywhere near it, and it keeps the raster size computable in an int.
const maxDim = 1 << 14

// Decode parses a P4 stream. The header is validated before the raster is
// allocated or read, so a malformed stream never yields a partial Image
// and never costs more memory than the header line itself. Header
// problems, including a stream that ends inside the header, report
// ErrFormat; a raster shorter than the header promises reports
// io.ErrUnexpectedEOF.
func Decode(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)

	magic, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("pbm: reading magic: %w", err)
	}
	if strings.TrimSpace(magic) != "P4" {
		return nil, fmt.Errorf("pbm: magic %q: %w", strings.TrimSpace(magic), ErrFormat)
	}

	line, err := readLine(br)
	for err == nil && strings.HasPrefix(line, "#") {
		line, err = readLine(br)
	}
	if err != nil {
		return nil, fmt.Errorf("pbm: reading dimensions: %w", err)
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		return nil, fmt.Errorf("pbm: dimension line %q: %w", strings.TrimSpace(line), ErrFormat)
	}
	width, err := strconv.Atoi(fields[0])
	if err != nil || width <= 0 || width > maxDim {
		return nil, fmt.Errorf("pbm: width %q: %w", fields[0], ErrFormat)
	}
	height, err := strconv.Atoi(fields[1])
	if err != nil || height <= 0 || height > maxDim {
		return nil, fmt.Errorf("pbm: height %q: %w", fields[1], ErrFormat)
	}

	bits := make([]byte, (width+7)/8*height)
	if _, err := io.ReadFull(br, bits); err != nil {
		return nil, fmt.Errorf("pbm: raster truncated: %w", err)
	}
	return &Image{Width: width, Height: height, Bits: bits}, nil
}

// Encode writes bits as a P4 stream. The raster length must match the
// dimensions.
func Encode(w io.Writer, width, height int, bits []byte) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("pbm: invalid dimensions %dx%d", width, height)
	}
	if want := (width + 7) / 8 * height; len(bits) != want {
		return fmt.Errorf("pbm: got %d raster bytes, want %d", len(bits), want)
	}
	if _, err := fmt.Fprintf(w, "P4\n%d %d\n", width, height); err != nil {
		return fmt.Errorf("pbm: writing header: %w", err)
	}
	if _, err := w.Write(bits); err != nil {
		return fmt.Errorf("pbm: writing raster: %w", err)
	}
	return nil
}

// readLine returns the next line including its terminator. A final line
// without a newline still counts; a stream that ends before the line
// starts is malformed.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line != "" {
			return line, nil
		}
		return "", ErrFormat
	}
	if err != nil {
		return "", err
	}
	return line, nil
}
