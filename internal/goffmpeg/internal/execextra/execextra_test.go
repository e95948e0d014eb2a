package execextra

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/wader/osleaktest"
)

func leakChecks(t *testing.T) func() {
	leakFn := leaktest.Check(t)
	osLeakFn := osleaktest.Check(t)
	return func() {
		leakFn()
		osLeakFn()
	}
}

func dd(t *testing.T, in uintptr, out uintptr) []string {
	t.Helper()
	return []string{fmt.Sprintf("if=/dev/fd/%d", in), fmt.Sprintf("of=/dev/fd/%d", out)}
}

type errWriter struct{ err error }

func (w errWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestExtraInOut(t *testing.T) {
	defer leakChecks(t)()

	testCases := []struct {
		input []byte
	}{
		{input: []byte("hello")},
		{input: nil},
		{input: bytes.Repeat([]byte("0123456789abcdef"), 64*1024)}, // larger than a pipe buffer
	}
	for i, tC := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			c := Command("dd")
			inFD, err := c.ExtraIn(bytes.NewReader(tC.input))
			if err != nil {
				t.Fatal(err)
			}
			out := &bytes.Buffer{}
			outFD, err := c.ExtraOut(out)
			if err != nil {
				t.Fatal(err)
			}
			if inFD != 3 || outFD != 4 {
				t.Errorf("expected fds 3 and 4, got %d and %d", inFD, outFD)
			}
			c.Args = append(c.Args, dd(t, inFD, outFD)...)
			if err := c.Run(); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(tC.input, out.Bytes()) {
				t.Errorf("expected %d bytes, got %d", len(tC.input), out.Len())
			}
		})
	}
}

func TestExtraFile(t *testing.T) {
	defer leakChecks(t)()

	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	c := Command("dd")
	inFD, err := c.ExtraIn(bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatal(err)
	}
	outFD, err := c.ExtraOut(f)
	if err != nil {
		t.Fatal(err)
	}
	c.Args = append(c.Args, dd(t, inFD, outFD)...)
	if err := c.Run(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("expected hello, got %q", b)
	}
}

func TestCopyError(t *testing.T) {
	defer leakChecks(t)()

	c := Command("dd")
	inFD, err := c.ExtraIn(bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatal(err)
	}
	outFD, err := c.ExtraOut(errWriter{err: errors.New("write failed")})
	if err != nil {
		t.Fatal(err)
	}
	c.Args = append(c.Args, dd(t, inFD, outFD)...)
	if err := c.Run(); err == nil {
		t.Error("expected error")
	}
}

func TestStartErrorClosesPipes(t *testing.T) {
	defer leakChecks(t)()

	c := Command("does-not-exist-execextra")
	if _, err := c.ExtraIn(bytes.NewBufferString("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExtraOut(&bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err == nil {
		t.Fatal("expected start error")
	}
}

func TestAbort(t *testing.T) {
	defer leakChecks(t)()

	c := Command("dd")
	if _, err := c.ExtraIn(bytes.NewBufferString("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExtraOut(&bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}
	c.Abort()
	// second abort is a no-op
	c.Abort()
}
