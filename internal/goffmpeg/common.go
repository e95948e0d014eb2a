package goffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wader/subsnap/internal/goffmpeg/features"
	"github.com/wader/subsnap/internal/goffmpeg/internal/execextra"
	"github.com/wader/subsnap/internal/goffmpeg/internal/linebuffer"
)

const defaultStderrLines = 100

func newCommand(ctx context.Context, path string, env []string) *execextra.Cmd {
	var c *execextra.Cmd
	if ctx != nil {
		c = execextra.CommandContext(ctx, path)
	} else {
		c = execextra.Command(path)
	}
	if len(env) > 0 {
		c.Env = append(os.Environ(), env...)
	}
	return c
}

type stderrCapture struct {
	tail   *linebuffer.LastLines
	lineFn *linebuffer.Fn
}

// captureStderr keeps the last nrLines lines of stderr for error messages,
// w gets all of it and lineFn each line if not nil
func captureStderr(c *execextra.Cmd, nrLines int, w io.Writer, lineFn func(line string)) *stderrCapture {
	if nrLines == 0 {
		nrLines = defaultStderrLines
	}
	sc := &stderrCapture{tail: linebuffer.NewLastLines(nrLines)}
	ws := []io.Writer{sc.tail}
	if w != nil {
		ws = append(ws, w)
	}
	if lineFn != nil {
		sc.lineFn = linebuffer.NewFn(lineFn)
		ws = append(ws, sc.lineFn)
	}
	c.Stderr = io.MultiWriter(ws...)
	return sc
}

// flush unterminated last line, call after wait
func (sc *stderrCapture) flush() {
	sc.tail.Close()
	if sc.lineFn != nil {
		sc.lineFn.Close()
	}
}

func (sc *stderrCapture) String() string {
	if sc == nil {
		return ""
	}
	return sc.tail.String()
}

// Note that the error message might include command details that are sensitive
func (sc *stderrCapture) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", err, sc)
}

// Version return ffmpeg version
func Version(ctx context.Context) (features.VersionParts, error) {
	return features.Version(ctx, FFmpegPath)
}

// Filters return names and descriptions of available filters
func Filters(ctx context.Context) ([]features.Filter, error) {
	return features.Filters(ctx, FFmpegPath)
}
