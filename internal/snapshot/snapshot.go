// Package snapshot renders the subtitle frame at a timestamp into a PNG file.
package snapshot

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/wader/subsnap/internal/compositor"
	"github.com/wader/subsnap/internal/render"
	"go.uber.org/zap"
)

type Options struct {
	Output     string
	Subtitle   string
	Encoding   string
	Timestamp  time.Duration
	FrameSize  render.FrameSize
	Fonts      render.Fonts
	Background [4]uint8 // RGBA, straight alpha
	Logger     *zap.Logger
}

// DefaultOptions renders a 1920x1080 frame with a transparent background
func DefaultOptions() Options {
	return Options{
		Encoding:  "UTF-8",
		FrameSize: render.FrameSize{Width: 1920, Height: 1080},
		Fonts: render.Fonts{
			DefaultFamily: "sans-serif",
			Provider:      render.FontProviderAutodetect,
		},
	}
}

type Result struct {
	Frame  *compositor.Frame
	Layers int
}

func tintHex(c compositor.Color) string {
	t := c.Tint()
	return colorful.Color{R: float64(t[0]) / 255, G: float64(t[1]) / 255, B: float64(t[2]) / 255}.Hex()
}

// Run renders opts.Subtitle at opts.Timestamp with lib and writes the
// composited frame to opts.Output.
func Run(ctx context.Context, lib render.Library, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r, err := lib.NewRenderer()
	if err != nil {
		return Result{}, fmt.Errorf("new renderer: %w", err)
	}
	r.SetFrameSize(opts.FrameSize)
	if err := r.SetFonts(opts.Fonts); err != nil {
		return Result{}, fmt.Errorf("set fonts: %w", err)
	}

	track, err := lib.NewTrackFromFile(ctx, opts.Subtitle, opts.Encoding)
	if err != nil {
		return Result{}, fmt.Errorf("load track: %w", err)
	}
	defer track.Close()

	layers, err := r.RenderFrame(ctx, track, opts.Timestamp)
	if err != nil {
		return Result{}, fmt.Errorf("render frame: %w", err)
	}
	log.Info("rendered",
		zap.Stringer("track", track),
		zap.Duration("timestamp", opts.Timestamp),
		zap.Int("layers", len(layers)))

	frame := compositor.NewFrame(opts.FrameSize.Width, opts.FrameSize.Height)
	frame.Fill(opts.Background)
	for i, l := range layers {
		if ce := log.Check(zap.DebugLevel, "layer"); ce != nil {
			ce.Write(
				zap.Int("index", i),
				zap.Stringer("bounds", l.Bounds()),
				zap.String("tint", tintHex(l.Color)),
				zap.Uint8("alpha", l.Color.Tint()[3]))
		}
		if err := frame.Composite(l); err != nil {
			return Result{}, fmt.Errorf("composite layer %d: %w", i, err)
		}
	}

	if err := writePNG(opts.Output, frame); err != nil {
		return Result{}, fmt.Errorf("write image: %w", err)
	}
	log.Info("wrote image", zap.String("path", opts.Output), zap.Stringer("size", opts.FrameSize))

	return Result{Frame: frame, Layers: len(layers)}, nil
}

// rgbaImage makes image/png always pick 8-bit RGBA, it writes RGB for
// images that report being opaque
type rgbaImage struct{ *image.NRGBA }

func (rgbaImage) Opaque() bool { return false }

func writePNG(path string, frame *compositor.Frame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if err := png.Encode(w, rgbaImage{frame.Image()}); err != nil {
		return err
	}
	return w.Flush()
}
