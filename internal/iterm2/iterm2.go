// Package iterm2 shows images inline in iTerm2 compatible terminals.
package iterm2

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"golang.org/x/term"
)

// TODO: query the terminal with a device attributes request instead
func IsCompatible() bool {
	return os.Getenv("TERM_PROGRAM") == "iTerm.app"
}

// Columns returns the width of the terminal f in cells.
func Columns(f *os.File) (int, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, fmt.Errorf("%s: not a terminal", f.Name())
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0, err
	}
	return w, nil
}

// Image writes m as an inline image. widthCells scales the image to that
// many cells keeping aspect ratio, zero uses the image size.
func Image(w io.Writer, m image.Image, widthCells int) error {
	args := "inline=1"
	if widthCells > 0 {
		args += fmt.Sprintf(";width=%d", widthCells)
	}
	if _, err := fmt.Fprintf(w, "\x1b]1337;File=%s:", args); err != nil {
		return err
	}
	bw := base64.NewEncoder(base64.StdEncoding, w)
	if err := png.Encode(bw, m); err != nil {
		return err
	}
	if err := bw.Close(); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\x07")); err != nil {
		return err
	}
	return nil
}
