// Package compositor blends positioned coverage bitmaps onto an RGBA frame.
package compositor

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	ErrInvalidLayer = errors.New("invalid layer")
	ErrInvalidFrame = errors.New("invalid frame")
)

// Color is a packed tint, big-endian red, green, blue and an inverted alpha
// byte (255 is fully transparent).
type Color uint32

// RGBA packs a straight alpha tint into a Color.
func RGBA(r, g, b, a uint8) Color {
	return Color(r)<<24 | Color(g)<<16 | Color(b)<<8 | Color(255-a)
}

// Tint returns the tint as RGBA with the alpha byte inverted back.
func (c Color) Tint() [4]uint8 {
	return [4]uint8{
		uint8(c >> 24),
		uint8(c >> 16),
		uint8(c >> 8),
		255 - uint8(c),
	}
}

func (c Color) String() string {
	t := c.Tint()
	return fmt.Sprintf("#%.2x%.2x%.2x%.2x", t[0], t[1], t[2], t[3])
}

// Layer is a coverage bitmap drawn with a single tint at X, Y.
type Layer struct {
	X      int
	Y      int
	Width  int
	Height int
	Bitmap []byte // row-major, Width*Height coverage values
	Color  Color
}

func (l Layer) validate() error {
	if l.Width < 0 || l.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrInvalidLayer, l.Width, l.Height)
	}
	if l.Width != 0 && l.Height > math.MaxInt/l.Width {
		return fmt.Errorf("%w: size %dx%d overflows", ErrInvalidLayer, l.Width, l.Height)
	}
	if len(l.Bitmap) != l.Width*l.Height {
		return fmt.Errorf("%w: bitmap length %d for %dx%d", ErrInvalidLayer, len(l.Bitmap), l.Width, l.Height)
	}
	return nil
}

// Bounds is the layer rectangle in frame coordinates, saturated at
// math.MaxInt.
func (l Layer) Bounds() image.Rectangle {
	return image.Rect(l.X, l.Y, satAdd(l.X, l.Width), satAdd(l.Y, l.Height))
}

// satAdd adds a non-negative n to pos
func satAdd(pos, n int) int {
	if pos > math.MaxInt-n {
		return math.MaxInt
	}
	return pos + n
}

// clip returns the part [lo, hi) of the span pos, pos+n inside [0, size)
func clip(pos, n, size int) (lo, hi int) {
	if pos >= size || pos <= -n {
		return 0, 0
	}
	lo = max(pos, 0)
	visible := n - (lo - pos)
	return lo, lo + min(visible, size-lo)
}

func validFrame(dst []byte, frameWidth, frameHeight int) error {
	if frameWidth < 0 || frameHeight < 0 ||
		(frameWidth != 0 && frameHeight > math.MaxInt/4/frameWidth) ||
		len(dst) != frameWidth*frameHeight*4 {
		return fmt.Errorf("%w: buffer length %d for %dx%d", ErrInvalidFrame, len(dst), frameWidth, frameHeight)
	}
	return nil
}

// Composite blends l onto dst, a row-major RGBA buffer of
// frameWidth*frameHeight pixels. Pixels of l outside the frame are skipped.
func Composite(dst []byte, frameWidth, frameHeight int, l Layer) error {
	if err := validFrame(dst, frameWidth, frameHeight); err != nil {
		return err
	}
	if err := l.validate(); err != nil {
		return err
	}

	x0, x1 := clip(l.X, l.Width, frameWidth)
	y0, y1 := clip(l.Y, l.Height, frameHeight)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	tint := l.Color.Tint()
	for dy := y0; dy < y1; dy++ {
		src := l.Bitmap[(dy-l.Y)*l.Width:]
		for dx := x0; dx < x1; dx++ {
			k := uint16(src[dx-l.X])
			p := dst[(dy*frameWidth+dx)*4:][:4]
			for i := range p {
				p[i] = uint8((k*uint16(tint[i]) + (255-k)*uint16(p[i])) / 255)
			}
		}
	}

	return nil
}

// Frame is an RGBA destination buffer, straight alpha, 4 bytes per pixel.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// NewFrame returns a transparent black frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// Fill sets every pixel to c.
func (f *Frame) Fill(c [4]uint8) {
	for i := 0; i < len(f.Pix); i += 4 {
		copy(f.Pix[i:i+4], c[:])
	}
}

// At returns the RGBA bytes of pixel x, y.
func (f *Frame) At(x, y int) [4]uint8 {
	var c [4]uint8
	copy(c[:], f.Pix[(y*f.Width+x)*4:])
	return c
}

func (f *Frame) Composite(l Layer) error {
	return Composite(f.Pix, f.Width, f.Height, l)
}

// CompositeAll composites ls in order, later layers on top. It stops at the
// first rejected layer.
func (f *Frame) CompositeAll(ls []Layer) error {
	for i, l := range ls {
		if err := f.Composite(l); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

// Image returns an image sharing the frame buffer.
func (f *Frame) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
