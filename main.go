package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/wader/subsnap/internal/goffmpeg"
	"github.com/wader/subsnap/internal/iterm2"
	"github.com/wader/subsnap/internal/render/ffmpeg"
	"github.com/wader/subsnap/internal/snapshot"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	opts    snapshot.Options
	bg      string
	bgAlpha uint
	preview bool
	verbose bool
	debug   bool
	ffmpeg  string
	ffprobe string
}

func newFlagSet(c *config, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("subsnap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] <image file> <subtitle file> <time ms>\n", fs.Name())
		fs.PrintDefaults()
	}

	fs.Var(&c.opts.FrameSize, "size", "Frame size WxH")
	fs.StringVar(&c.opts.Fonts.DefaultFamily, "font", c.opts.Fonts.DefaultFamily, "Default font family")
	fs.StringVar(&c.opts.Fonts.DefaultFont, "fontfile", "", "Default font file")
	fs.StringVar(&c.opts.Fonts.FontsDir, "fontsdir", "", "Additional fonts directory")
	fs.Var(&c.opts.Fonts.Provider, "fontprovider", "Font provider none, autodetect, coretext, fontconfig or directwrite")
	fs.StringVar(&c.opts.Fonts.ConfigPath, "fontconfig", "", "Fontconfig config file")
	fs.BoolVar(&c.opts.Fonts.EmbeddedFonts, "embedded-fonts", false, "Use fonts attached to the subtitle container")
	fs.StringVar(&c.opts.Encoding, "charenc", c.opts.Encoding, "Subtitle character encoding")
	fs.StringVar(&c.bg, "bg", "#000000", "Background color #rrggbb")
	fs.UintVar(&c.bgAlpha, "bg-alpha", 0, "Background alpha 0-255")
	fs.BoolVar(&c.preview, "i", false, "Show written image inline (iTerm2)")
	fs.StringVar(&c.ffmpeg, "ffmpeg", goffmpeg.FFmpegPath, "ffmpeg binary")
	fs.StringVar(&c.ffprobe, "ffprobe", goffmpeg.FFprobePath, "ffprobe binary")
	fs.BoolVar(&c.verbose, "v", false, "Verbose")
	fs.BoolVar(&c.debug, "d", false, "Debug")

	return fs
}

func parseBackground(hex string, alpha uint) ([4]uint8, error) {
	if alpha > 255 {
		return [4]uint8{}, fmt.Errorf("background alpha %d not in 0-255", alpha)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return [4]uint8{}, fmt.Errorf("background color: %w", err)
	}
	r, g, b := c.RGB255()
	return [4]uint8{r, g, b, uint8(alpha)}, nil
}

func newLogger(w io.Writer, verbose bool, debug bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.InfoLevel
	}
	if debug {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core, zap.Development())
}

func run(ctx context.Context, args []string, stdout *os.File, stderr io.Writer) int {
	c := &config{opts: snapshot.DefaultOptions()}
	fs := newFlagSet(c, stderr)
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	// missing arguments is not an error
	if fs.NArg() < 3 {
		fs.Usage()
		return 0
	}

	if err := func() error {
		c.opts.Output = fs.Arg(0)
		c.opts.Subtitle = fs.Arg(1)
		ms, err := strconv.ParseInt(fs.Arg(2), 10, 64)
		if err != nil {
			return fmt.Errorf("time %q: %w", fs.Arg(2), err)
		}
		c.opts.Timestamp = time.Duration(ms) * time.Millisecond

		c.opts.Background, err = parseBackground(c.bg, c.bgAlpha)
		if err != nil {
			return err
		}

		log := newLogger(stderr, c.verbose, c.debug)
		defer func() { _ = log.Sync() }()
		c.opts.Logger = log

		goffmpeg.FFmpegPath = c.ffmpeg
		goffmpeg.FFprobePath = c.ffprobe

		libOpts := ffmpeg.Options{Logger: log}
		if c.debug {
			libOpts.Stderr = stderr
		}
		lib, err := ffmpeg.New(ctx, libOpts)
		if err != nil {
			return err
		}

		r, err := snapshot.Run(ctx, lib, c.opts)
		if err != nil {
			return err
		}

		if c.preview {
			if !iterm2.IsCompatible() {
				log.Warn("not an iterm2 terminal, skipping preview")
				return nil
			}
			cols, err := iterm2.Columns(stdout)
			if err != nil {
				log.Warn("preview width", zap.Error(err))
			}
			if err := iterm2.Image(stdout, r.Frame.Image(), cols); err != nil {
				return err
			}
			fmt.Fprintln(stdout)
		}

		return nil
	}(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	return 0
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
