// Package linebuffer splits writes into lines
package linebuffer

import (
	"bytes"
	"strings"
)

// Fn calls function for each line written, line ending included
type Fn struct {
	buf bytes.Buffer
	fn  func(line string)
}

// NewFn create new buffer that calls function foreach line written
func NewFn(fn func(line string)) *Fn {
	return &Fn{fn: fn}
}

func (fn *Fn) Write(p []byte) (n int, err error) {
	fn.buf.Write(p)
	b := fn.buf.Bytes()
	pos := 0

	for {
		i := bytes.IndexAny(b[pos:], "\n\r")
		if i < 0 {
			break
		}

		fn.fn(string(b[pos : pos+i+1]))
		pos += i + 1
	}
	rest := append([]byte(nil), b[pos:]...)
	fn.buf.Reset()
	fn.buf.Write(rest)

	return len(p), nil
}

// Close flushes any data left in the buffer as a line
func (fn *Fn) Close() error {
	if fn.buf.Len() > 0 {
		fn.fn(fn.buf.String())
	}
	fn.buf.Reset()
	return nil
}

// LastLines buffers the last n lines
type LastLines struct {
	Fn
	current int
	count   int
	lines   []string
}

// NewLastLines creates a new limited line buffer that buffers the last n lines
func NewLastLines(limit int) *LastLines {
	ll := &LastLines{
		lines: make([]string, limit),
	}
	ll.fn = ll.addLine
	return ll
}

func (lb *LastLines) addLine(line string) {
	lb.lines[lb.current] = line
	lb.current = (lb.current + 1) % len(lb.lines)
	if lb.count < len(lb.lines) {
		lb.count++
	}
}

// Lines returns the buffered lines, oldest first
func (lb *LastLines) Lines() []string {
	ls := make([]string, 0, lb.count)
	start := lb.current - lb.count + len(lb.lines)
	for i := 0; i < lb.count; i++ {
		ls = append(ls, lb.lines[(start+i)%len(lb.lines)])
	}
	return ls
}

// String returns last n lines as a string
func (lb *LastLines) String() string {
	return strings.Join(lb.Lines(), "")
}
