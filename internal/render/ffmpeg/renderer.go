package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wader/subsnap/internal/compositor"
	"github.com/wader/subsnap/internal/goffmpeg"
	"github.com/wader/subsnap/internal/render"
	"go.uber.org/zap"
)

// Renderer renders one frame per RenderFrame call by running ffmpeg.
type Renderer struct {
	lib   *Library
	size  render.FrameSize
	fonts render.Fonts
}

func (r *Renderer) SetFrameSize(fs render.FrameSize) { r.size = fs }

// SetFonts only accepts providers ffmpeg's libass can use, fontconfig
// (autodetect picks it on the platforms ffmpeg is usually built for).
func (r *Renderer) SetFonts(f render.Fonts) error {
	switch f.Provider {
	case render.FontProviderAutodetect, render.FontProviderFontconfig:
	default:
		return fmt.Errorf("%w with ffmpeg: %s", render.ErrUnsupportedFontProvider, f.Provider)
	}
	r.fonts = f
	return nil
}

func (r *Renderer) fontsDir() string {
	if r.fonts.FontsDir != "" {
		return r.fonts.FontsDir
	}
	if r.fonts.DefaultFont != "" {
		return filepath.Dir(r.fonts.DefaultFont)
	}
	return ""
}

func (r *Renderer) env() []string {
	if r.fonts.ConfigPath == "" {
		return nil
	}
	return []string{"FONTCONFIG_FILE=" + r.fonts.ConfigPath}
}

func (r *Renderer) filterGraph(t *Track, source string, si int, charenc string, ts time.Duration) goffmpeg.FilterGraph {
	subtitlesOpts := map[string]string{
		// without alpha the filter leaves the alpha channel of the
		// transparent frame untouched
		"alpha":    "1",
		"filename": source,
		"si":       strconv.Itoa(si),
	}
	if charenc != "" {
		subtitlesOpts["charenc"] = charenc
	}
	if d := r.fontsDir(); d != "" {
		subtitlesOpts["fontsdir"] = d
	}
	if r.fonts.DefaultFamily != "" && !t.IsASS() {
		subtitlesOpts["force_style"] = "FontName=" + r.fonts.DefaultFamily
	}

	return goffmpeg.FilterGraph{
		{
			// one transparent frame, 1ms time base
			{Name: "color", Options: map[string]string{
				"color":    "black@0",
				"size":     r.size.String(),
				"rate":     "1000",
				"duration": "0.001",
			}},
			{Name: "format", Options: map[string]string{"pix_fmts": "rgba"}},
			{Name: "setpts", Options: map[string]string{"expr": goffmpeg.DurationToSeconds(ts) + "/TB"}},
			{Name: "subtitles", Options: subtitlesOpts, Outputs: []string{"out"}},
		},
	}
}

func (r *Renderer) command(fg *goffmpeg.FilterGraph, out *bytes.Buffer) *goffmpeg.FFmpegCmd {
	return &goffmpeg.FFmpegCmd{
		FilterGraph: fg,
		Outputs: []*goffmpeg.Output{
			{
				Maps: []*goffmpeg.Map{
					{Specifier: "[out]", Codec: "png", Options: map[string]string{"pix_fmt": "rgba"}},
				},
				Format: "image2pipe",
				Flags:  []string{"-frames:v", "1"},
				File:   out,
			},
		},
		Env:          r.env(),
		Stderr:       r.lib.stderr,
		StderrLineFn: r.lib.stderrLine,
		DebugLog:     r.lib.log,
	}
}

func (r *Renderer) RenderFrame(ctx context.Context, track render.Track, ts time.Duration) ([]compositor.Layer, error) {
	t, ok := track.(*Track)
	if !ok {
		return nil, errors.New("track was not loaded by the ffmpeg library")
	}
	if r.size.Width <= 0 || r.size.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %s", r.size)
	}
	// no cue starts before zero
	if ts < 0 {
		return nil, nil
	}
	if d := t.probe.Duration(); d > 0 && ts > d {
		r.lib.log.Debug("timestamp after end of track",
			zap.String("path", t.path),
			zap.Duration("duration", d))
	}

	source, si, charenc, err := t.source(ctx, r.fonts.EmbeddedFonts)
	if err != nil {
		return nil, err
	}

	fg := r.filterGraph(t, source, si, charenc, ts)
	b := &bytes.Buffer{}
	c := r.command(&fg, b)
	c.Context = ctx
	if err := c.Run(); err != nil {
		return nil, fmt.Errorf("%s: render %s: %w", t.path, ts, err)
	}

	m, err := png.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: decode rendered frame: %w", t.path, err)
	}
	if s := m.Bounds().Size(); s.X != r.size.Width || s.Y != r.size.Height {
		return nil, fmt.Errorf("%s: rendered frame is %dx%d, expected %s", t.path, s.X, s.Y, r.size)
	}

	// colors were blended onto black@0
	ls := render.LayersFromPremultiplied(m)
	r.lib.log.Debug("rendered frame",
		zap.String("path", t.path),
		zap.Duration("timestamp", ts),
		zap.Int("layers", len(ls)))

	return ls, nil
}
