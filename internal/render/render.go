// Package render describes the subtitle renderer subsnap drives.
package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wader/subsnap/internal/compositor"
)

var (
	ErrNoSubtitleStream        = errors.New("no subtitle stream")
	ErrBitmapSubtitle          = errors.New("bitmap subtitles are not supported")
	ErrUnsupportedFontProvider = errors.New("unsupported font provider")
)

type FrameSize struct {
	Width  int
	Height int
}

// ParseFrameSize parses WxH
func ParseFrameSize(s string) (FrameSize, error) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return FrameSize{}, fmt.Errorf("invalid frame size %q, expected WxH", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return FrameSize{}, fmt.Errorf("invalid frame width %q", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return FrameSize{}, fmt.Errorf("invalid frame height %q", parts[1])
	}
	if w <= 0 || h <= 0 {
		return FrameSize{}, fmt.Errorf("invalid frame size %dx%d", w, h)
	}
	return FrameSize{Width: w, Height: h}, nil
}

func (fs FrameSize) String() string { return fmt.Sprintf("%dx%d", fs.Width, fs.Height) }

// Set implements flag.Value
func (fs *FrameSize) Set(s string) error {
	v, err := ParseFrameSize(s)
	if err != nil {
		return err
	}
	*fs = v
	return nil
}

type FontProvider int

const (
	FontProviderNone FontProvider = iota
	FontProviderAutodetect
	FontProviderCoreText
	FontProviderFontconfig
	FontProviderDirectWrite
)

var fontProviderNames = map[FontProvider]string{
	FontProviderNone:        "none",
	FontProviderAutodetect:  "autodetect",
	FontProviderCoreText:    "coretext",
	FontProviderFontconfig:  "fontconfig",
	FontProviderDirectWrite: "directwrite",
}

func ParseFontProvider(s string) (FontProvider, error) {
	for p, n := range fontProviderNames {
		if strings.EqualFold(s, n) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFontProvider, s)
}

func (p FontProvider) String() string {
	if s, ok := fontProviderNames[p]; ok {
		return s
	}
	return fmt.Sprintf("unknown (%d)", int(p))
}

// Set implements flag.Value
func (p *FontProvider) Set(s string) error {
	v, err := ParseFontProvider(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Fonts is the renderer font resolution config.
type Fonts struct {
	DefaultFont   string // font file used when nothing else matches
	DefaultFamily string
	Provider      FontProvider
	ConfigPath    string // fontconfig config file
	FontsDir      string
	EmbeddedFonts bool // use fonts attached to the subtitle container
}

// Track is a loaded subtitle track.
type Track interface {
	Path() string
	String() string
	Close() error
}

type Renderer interface {
	SetFrameSize(fs FrameSize)
	SetFonts(f Fonts) error
	// RenderFrame returns the layers visible at t in draw order. No layers
	// and no error means nothing is visible.
	RenderFrame(ctx context.Context, track Track, t time.Duration) ([]compositor.Layer, error)
}

// Library creates renderers and loads tracks.
type Library interface {
	NewRenderer() (Renderer, error)
	NewTrackFromFile(ctx context.Context, path string, encoding string) (Track, error)
}
