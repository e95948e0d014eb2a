// Package execextra is exec.Cmd that can connect io.Readers and io.Writers
// to extra file descriptors in the child process, ffmpeg opens them as
// pipe:N.
package execextra

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
)

type closeOnce struct {
	*os.File

	once sync.Once
	err  error
}

func (c *closeOnce) Close() error {
	c.once.Do(func() { c.err = c.File.Close() })
	return c.err
}

func closeAll(cs []io.Closer) {
	for _, c := range cs {
		c.Close()
	}
}

// Command see exec.Command
func Command(name string, arg ...string) *Cmd {
	return &Cmd{Cmd: exec.Command(name, arg...)}
}

// CommandContext see exec.CommandContext
func CommandContext(ctx context.Context, name string, arg ...string) *Cmd {
	return &Cmd{Cmd: exec.CommandContext(ctx, name, arg...)}
}

// Cmd is an exec.Cmd with extra file descriptor pipes
type Cmd struct {
	*exec.Cmd

	childEnds  []io.Closer // closed after start
	parentEnds []io.Closer // closed after wait
	copyFns    []func() error
	copyErrCh  chan error
}

// child sees ExtraFiles[i] as fd i+3
func (c *Cmd) addChildFile(f *os.File) uintptr {
	c.ExtraFiles = append(c.ExtraFiles, f)
	return uintptr(len(c.ExtraFiles)) + 2
}

// ExtraIn connects r to a readable fd in the child process and returns the
// fd number. Files are passed as is, other readers are copied thru a pipe
// while the process runs.
func (c *Cmd) ExtraIn(r io.Reader) (childFD uintptr, err error) {
	if f, ok := r.(*os.File); ok {
		return c.addChildFile(f), nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	wc := &closeOnce{File: pw}
	c.childEnds = append(c.childEnds, pr)
	c.parentEnds = append(c.parentEnds, wc)
	c.copyFns = append(c.copyFns, func() error {
		_, err := io.Copy(wc, r)
		wc.Close()
		return err
	})

	return c.addChildFile(pr), nil
}

// ExtraOut connects w to a writable fd in the child process and returns the
// fd number. Same rules as ExtraIn.
func (c *Cmd) ExtraOut(w io.Writer) (childFD uintptr, err error) {
	if f, ok := w.(*os.File); ok {
		return c.addChildFile(f), nil
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	rc := &closeOnce{File: pr}
	c.childEnds = append(c.childEnds, pw)
	c.parentEnds = append(c.parentEnds, rc)
	c.copyFns = append(c.copyFns, func() error {
		_, err := io.Copy(w, rc)
		rc.Close()
		return err
	})

	return c.addChildFile(pw), nil
}

// Abort closes all pipes set up so far. Use when the command will not be
// started, for example when building arguments failed half way.
func (c *Cmd) Abort() {
	closeAll(c.childEnds)
	closeAll(c.parentEnds)
	c.childEnds = nil
	c.parentEnds = nil
	c.copyFns = nil
}

// Start see exec.Cmd.Start
func (c *Cmd) Start() error {
	if err := c.Cmd.Start(); err != nil {
		c.Abort()
		return err
	}
	closeAll(c.childEnds)
	c.childEnds = nil

	c.copyErrCh = make(chan error, len(c.copyFns))
	for _, fn := range c.copyFns {
		go func() {
			c.copyErrCh <- fn()
		}()
	}

	return nil
}

// Wait see exec.Cmd.Wait. Waits for all copies to finish, a process error
// takes precedence over a copy error.
func (c *Cmd) Wait() error {
	err := c.Cmd.Wait()

	var copyErr error
	for range c.copyFns {
		if err := <-c.copyErrCh; err != nil && copyErr == nil {
			copyErr = err
		}
	}
	closeAll(c.parentEnds)

	if err != nil {
		return err
	}
	return copyErr
}

// Run see exec.Cmd.Run
func (c *Cmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}
