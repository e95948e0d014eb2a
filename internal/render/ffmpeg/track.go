package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wader/subsnap/internal/goffmpeg"
	"github.com/wader/subsnap/internal/render"
	"go.uber.org/zap"
)

var bitmapCodecs = map[string]bool{
	"dvb_subtitle":      true,
	"dvb_teletext":      true,
	"dvd_subtitle":      true,
	"hdmv_pgs_subtitle": true,
	"xsub":              true,
}

// same codec names libass reads as is, other text formats are converted
var assCodecs = map[string]bool{
	"ass": true,
	"ssa": true,
}

func isFontAttachment(s goffmpeg.FFProbeStream) bool {
	if strings.Contains(s.Tags.MIMEType, "font") ||
		strings.Contains(s.Tags.MIMEType, "opentype") ||
		strings.Contains(s.Tags.MIMEType, "truetype") {
		return true
	}
	switch strings.ToLower(filepath.Ext(s.Tags.Filename)) {
	case ".ttf", ".otf", ".ttc", ".woff", ".woff2":
		return true
	}
	return false
}

// Track is the first subtitle stream of a file
type Track struct {
	path     string
	encoding string
	probe    goffmpeg.FFProbeResult
	stream   goffmpeg.FFProbeStream
	// index among subtitle streams, what the subtitles filter calls si and
	// the s:N map specifier, always 0 as the first stream is used
	subtitleIndex int
	fonts         []goffmpeg.FFProbeStream

	lib        *Library
	tmpDir     string
	standalone string
}

func loadTrack(ctx context.Context, l *Library, path string, encoding string) (*Track, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if encoding == "" {
		encoding = "UTF-8"
	}

	fp := goffmpeg.FFProbeCmd{
		Context: ctx,
		Input: goffmpeg.Input{
			File:    path,
			Options: map[string]string{"sub_charenc": encoding},
		},
		Stderr:   l.stderr,
		DebugLog: l.log,
	}
	pr, err := fp.Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t, err := newTrack(l, path, encoding, pr)
	if err != nil {
		return nil, err
	}

	l.log.Info("loaded track",
		zap.String("path", path),
		zap.String("format", pr.FormatName()),
		zap.Stringer("stream", t.stream),
		zap.Int("subtitle_streams", len(pr.StreamsCodecType(goffmpeg.CodecTypeSubtitle))),
		zap.Int("font_attachments", len(t.fonts)))

	return t, nil
}

// newTrack picks the first subtitle stream of an ffprobe result
func newTrack(l *Library, path string, encoding string, pr goffmpeg.FFProbeResult) (*Track, error) {
	s, ok := pr.FindFirstStreamCodecType(goffmpeg.CodecTypeSubtitle)
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", path, pr, render.ErrNoSubtitleStream)
	}
	if bitmapCodecs[s.CodecName] {
		return nil, fmt.Errorf("%s: %s: %w", path, s.CodecName, render.ErrBitmapSubtitle)
	}

	t := &Track{
		path:          path,
		encoding:      encoding,
		probe:         pr,
		stream:        s,
		subtitleIndex: 0,
		lib:           l,
	}
	for _, a := range pr.StreamsCodecType(goffmpeg.CodecTypeAttachment) {
		if isFontAttachment(a) {
			t.fonts = append(t.fonts, a)
		}
	}
	return t, nil
}

func (t *Track) Path() string { return t.path }

func (t *Track) String() string {
	return fmt.Sprintf("%s: %s %s", t.path, t.probe.FormatName(), t.stream)
}

// IsASS reports if the stream is ASS/SSA and so carries its own styles
func (t *Track) IsASS() bool { return assCodecs[t.stream.CodecName] }

// FontAttachments font streams attached to the container
func (t *Track) FontAttachments() []goffmpeg.FFProbeStream { return t.fonts }

// source returns file, subtitle stream index and character encoding to
// give the subtitles filter. Without embedded fonts, files that have font
// attachments are first extracted to a standalone ASS file so that libass
// never sees the attachments.
func (t *Track) source(ctx context.Context, embeddedFonts bool) (string, int, string, error) {
	if embeddedFonts || len(t.fonts) == 0 {
		return t.path, t.subtitleIndex, t.encoding, nil
	}
	if t.standalone != "" {
		return t.standalone, 0, "UTF-8", nil
	}

	dir, err := os.MkdirTemp("", "subsnap")
	if err != nil {
		return "", 0, "", err
	}
	t.tmpDir = dir
	out := filepath.Join(dir, "track.ass")

	codec := "ass"
	if t.IsASS() {
		codec = "copy"
	}
	in := &goffmpeg.Input{
		File:    t.path,
		Options: map[string]string{"sub_charenc": t.encoding},
	}
	c := goffmpeg.FFmpegCmd{
		Context: ctx,
		Flags:   []string{"-y"},
		Inputs:  []*goffmpeg.Input{in},
		Outputs: []*goffmpeg.Output{
			{
				Maps:   []*goffmpeg.Map{{Input: in, Specifier: fmt.Sprintf("s:%d", t.subtitleIndex), Codec: codec}},
				Format: "ass",
				File:   out,
			},
		},
		Stderr:   t.lib.stderr,
		DebugLog: t.lib.log,
	}
	if err := c.Run(); err != nil {
		return "", 0, "", fmt.Errorf("%s: extract subtitle stream: %w", t.path, err)
	}

	t.lib.log.Debug("extracted subtitle stream without attachments",
		zap.String("path", t.path),
		zap.String("standalone", out),
		zap.Int("font_attachments", len(t.fonts)))

	t.standalone = out
	return t.standalone, 0, "UTF-8", nil
}

func (t *Track) Close() error {
	if t.tmpDir == "" {
		return nil
	}
	err := os.RemoveAll(t.tmpDir)
	t.tmpDir = ""
	t.standalone = ""
	return err
}
