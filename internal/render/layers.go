package render

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/wader/subsnap/internal/compositor"
)

// LayersFromImage splits a straight alpha image into one row high layers,
// one per horizontal run of pixels with the same RGB. Alpha becomes the
// coverage and the tint is opaque, so compositing the layers onto a
// transparent frame gives the image alpha with colors weighted by it.
func LayersFromImage(m image.Image) []compositor.Layer {
	n, ok := m.(*image.NRGBA)
	if !ok {
		b := m.Bounds()
		n = image.NewNRGBA(b)
		draw.Draw(n, b, m, b.Min, draw.Src)
	}

	var ls []compositor.Layer
	b := n.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		x := b.Min.X
		for x < b.Max.X {
			c := n.NRGBAAt(x, y)
			if c.A == 0 {
				x++
				continue
			}
			start := x
			var bitmap []byte
			for ; x < b.Max.X; x++ {
				r := n.NRGBAAt(x, y)
				if r.A == 0 || !sameRGB(r, c) {
					break
				}
				bitmap = append(bitmap, r.A)
			}
			ls = append(ls, compositor.Layer{
				X:      start - b.Min.X,
				Y:      y - b.Min.Y,
				Width:  len(bitmap),
				Height: 1,
				Bitmap: bitmap,
				Color:  compositor.RGBA(c.R, c.G, c.B, 255),
			})
		}
	}

	return ls
}

// LayersFromPremultiplied is LayersFromImage for an image whose 8-bit color
// channels are already multiplied by alpha, what blending onto transparent
// black leaves behind. Colors are divided back by alpha, rounded, before
// the split so edge pixels are not weighted by their coverage twice.
func LayersFromPremultiplied(m image.Image) []compositor.Layer {
	b := m.Bounds()
	n := image.NewNRGBA(b)
	if src, ok := m.(*image.NRGBA); ok {
		// raw bytes, draw would round trip thru premultiplied 16 bit
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(n.Pix[n.PixOffset(b.Min.X, y):][:b.Dx()*4], src.Pix[src.PixOffset(b.Min.X, y):])
		}
	} else {
		draw.Draw(n, b, m, b.Min, draw.Src)
	}
	for i := 0; i < len(n.Pix); i += 4 {
		p := n.Pix[i : i+4 : i+4]
		a := uint32(p[3])
		if a == 0 || a == 255 {
			continue
		}
		for j := 0; j < 3; j++ {
			p[j] = uint8(min(255, (uint32(p[j])*255+a/2)/a))
		}
	}
	return LayersFromImage(n)
}

func sameRGB(a, b color.NRGBA) bool {
	return a.R == b.R && a.G == b.G && a.B == b.B
}
