// Package ffmpeg renders subtitles with the libass backed ffmpeg subtitles
// filter.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wader/subsnap/internal/goffmpeg"
	"github.com/wader/subsnap/internal/goffmpeg/features"
	"github.com/wader/subsnap/internal/render"
	"go.uber.org/zap"
)

var (
	ErrMissingFilter      = errors.New("missing filter")
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// subtitles filter got its alpha option in 5.0
const minMajorVersion = 5

// checkVersion accepts git builds, they have no parsable major version
func checkVersion(v features.VersionParts) error {
	if v.Major != 0 && v.Major < minMajorVersion {
		return fmt.Errorf("%w %s, need %d.0 or later", ErrUnsupportedVersion, v, minMajorVersion)
	}
	return nil
}

// filters used by the render graph, subtitles is only there if ffmpeg is
// built with libass
var requiredFilters = []string{"color", "format", "setpts", "subtitles"}

type Options struct {
	Logger *zap.Logger
	Stderr io.Writer // ffmpeg and ffprobe stderr, nil to only keep it for errors
}

var _ render.Library = (*Library)(nil)

// Library is a ffmpeg binary known to be able to render subtitles.
type Library struct {
	Version features.VersionParts

	log    *zap.Logger
	stderr io.Writer
}

func New(ctx context.Context, opts Options) (*Library, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	v, err := goffmpeg.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", goffmpeg.FFmpegPath, err)
	}
	if err := checkVersion(v); err != nil {
		return nil, fmt.Errorf("%s: %w", goffmpeg.FFmpegPath, err)
	}
	fs, err := goffmpeg.Filters(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", goffmpeg.FFmpegPath, err)
	}
	for _, name := range requiredFilters {
		if !features.HasFilter(fs, name) {
			return nil, fmt.Errorf("%s %s: %w %s", goffmpeg.FFmpegPath, v, ErrMissingFilter, name)
		}
	}

	log.Info("using ffmpeg",
		zap.String("path", goffmpeg.FFmpegPath),
		zap.Stringer("version", v))

	return &Library{
		Version: v,
		log:     log,
		stderr:  opts.Stderr,
	}, nil
}

// stderrLine logs messages from the subtitles filter, ffmpeg prefixes
// libass messages with the filter instance name
func (l *Library) stderrLine(line string) {
	if !strings.HasPrefix(line, "[Parsed_subtitles") {
		return
	}
	if _, msg, ok := strings.Cut(line, "] "); ok {
		line = msg
	}
	l.log.Info("libass", zap.String("message", strings.TrimRight(line, "\r\n")))
}

func (l *Library) NewRenderer() (render.Renderer, error) {
	return &Renderer{
		lib:  l,
		size: render.FrameSize{Width: 1920, Height: 1080},
		fonts: render.Fonts{
			DefaultFamily: "sans-serif",
			Provider:      render.FontProviderAutodetect,
		},
	}, nil
}

func (l *Library) NewTrackFromFile(ctx context.Context, path string, encoding string) (render.Track, error) {
	return loadTrack(ctx, l, path, encoding)
}
