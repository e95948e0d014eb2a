package snapshot_test

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/wader/subsnap/internal/compositor"
	"github.com/wader/subsnap/internal/render"
	"github.com/wader/subsnap/internal/snapshot"
	"go.uber.org/zap/zaptest"
)

type fakeTrack struct {
	path   string
	closed bool
}

func (t *fakeTrack) Path() string   { return t.path }
func (t *fakeTrack) String() string { return t.path }
func (t *fakeTrack) Close() error   { t.closed = true; return nil }

type fakeRenderer struct {
	lib *fakeLibrary
}

func (r *fakeRenderer) SetFrameSize(fs render.FrameSize) { r.lib.size = fs }
func (r *fakeRenderer) SetFonts(f render.Fonts) error {
	if r.lib.fontsErr != nil {
		return r.lib.fontsErr
	}
	r.lib.fonts = f
	return nil
}
func (r *fakeRenderer) RenderFrame(ctx context.Context, track render.Track, ts time.Duration) ([]compositor.Layer, error) {
	r.lib.renderedAt = ts
	return r.lib.layers, r.lib.renderErr
}

type fakeLibrary struct {
	layers      []compositor.Layer
	rendererErr error
	fontsErr    error
	trackErr    error
	renderErr   error

	size       render.FrameSize
	fonts      render.Fonts
	encoding   string
	renderedAt time.Duration
	track      *fakeTrack
}

func (l *fakeLibrary) NewRenderer() (render.Renderer, error) {
	if l.rendererErr != nil {
		return nil, l.rendererErr
	}
	return &fakeRenderer{lib: l}, nil
}

func (l *fakeLibrary) NewTrackFromFile(ctx context.Context, path string, encoding string) (render.Track, error) {
	if l.trackErr != nil {
		return nil, l.trackErr
	}
	l.encoding = encoding
	l.track = &fakeTrack{path: path}
	return l.track, nil
}

func testOptions(t *testing.T) snapshot.Options {
	opts := snapshot.DefaultOptions()
	opts.Output = filepath.Join(t.TempDir(), "out.png")
	opts.Subtitle = "test.ass"
	opts.FrameSize = render.FrameSize{Width: 8, Height: 4}
	opts.Logger = zaptest.NewLogger(t)
	return opts
}

func readPNG(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	m, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	n, ok := m.(*image.NRGBA)
	if !ok {
		t.Fatalf("expected NRGBA png, got %T", m)
	}
	return n
}

func TestRun(t *testing.T) {
	lib := &fakeLibrary{
		layers: []compositor.Layer{
			{X: 0, Y: 0, Width: 2, Height: 1, Bitmap: []byte{0, 255}, Color: 0xc8643200},
			{X: 6, Y: 3, Width: 4, Height: 2, Bitmap: []byte{255, 255, 255, 255, 255, 255, 255, 255}, Color: compositor.RGBA(1, 2, 3, 4)},
		},
	}
	opts := testOptions(t)
	opts.Timestamp = 1234 * time.Millisecond

	r, err := snapshot.Run(context.Background(), lib, opts)
	if err != nil {
		t.Fatal(err)
	}
	if r.Layers != 2 {
		t.Errorf("expected 2 layers, got %d", r.Layers)
	}
	if lib.size != opts.FrameSize || lib.fonts != opts.Fonts || lib.encoding != "UTF-8" || lib.renderedAt != opts.Timestamp {
		t.Errorf("unexpected renderer setup %#v", lib)
	}
	if !lib.track.closed {
		t.Error("expected track to be closed")
	}

	m := readPNG(t, opts.Output)
	if m.Bounds() != image.Rect(0, 0, 8, 4) {
		t.Fatalf("unexpected bounds %v", m.Bounds())
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			c := m.NRGBAAt(x, y)
			actual := [4]uint8{c.R, c.G, c.B, c.A}
			if actual != r.Frame.At(x, y) {
				t.Errorf("%d,%d: png %v differs from frame %v", x, y, actual, r.Frame.At(x, y))
			}
		}
	}
	if c := m.NRGBAAt(1, 0); c.R != 200 || c.G != 100 || c.B != 50 || c.A != 255 {
		t.Errorf("expected tint at 1,0, got %v", c)
	}
	if c := m.NRGBAAt(0, 0); c.A != 0 {
		t.Errorf("expected transparent 0,0, got %v", c)
	}
	if c := m.NRGBAAt(7, 3); c.R != 1 || c.A != 4 {
		t.Errorf("expected clipped layer at 7,3, got %v", c)
	}
}

func TestRunBlankFrame(t *testing.T) {
	lib := &fakeLibrary{}
	opts := testOptions(t)
	opts.Background = [4]uint8{10, 20, 30, 40}

	r, err := snapshot.Run(context.Background(), lib, opts)
	if err != nil {
		t.Fatal(err)
	}
	if r.Layers != 0 {
		t.Errorf("expected no layers, got %d", r.Layers)
	}
	m := readPNG(t, opts.Output)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			if c := m.NRGBAAt(x, y); c.R != 10 || c.G != 20 || c.B != 30 || c.A != 40 {
				t.Fatalf("%d,%d: expected background, got %v", x, y, c)
			}
		}
	}
}

func TestRunOpaqueIsRGBA(t *testing.T) {
	lib := &fakeLibrary{}
	opts := testOptions(t)
	opts.Background = [4]uint8{10, 20, 30, 255}

	if _, err := snapshot.Run(context.Background(), lib, opts); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(opts.Output)
	if err != nil {
		t.Fatal(err)
	}
	// signature, IHDR length and type, width, height, bit depth, color type
	if len(b) < 26 || string(b[12:16]) != "IHDR" {
		t.Fatalf("unexpected png header %q", b)
	}
	if depth, colorType := b[24], b[25]; depth != 8 || colorType != 6 {
		t.Errorf("expected 8-bit RGBA (6), got depth %d color type %d", depth, colorType)
	}
	m := readPNG(t, opts.Output)
	if c := m.NRGBAAt(7, 3); c.R != 10 || c.G != 20 || c.B != 30 || c.A != 255 {
		t.Errorf("expected background, got %v", c)
	}
}

func TestRunErrors(t *testing.T) {
	errTest := errors.New("test")
	testCases := []struct {
		lib         *fakeLibrary
		output      string
		expectedErr error
	}{
		{lib: &fakeLibrary{rendererErr: errTest}, expectedErr: errTest},
		{lib: &fakeLibrary{fontsErr: render.ErrUnsupportedFontProvider}, expectedErr: render.ErrUnsupportedFontProvider},
		{lib: &fakeLibrary{trackErr: os.ErrNotExist}, expectedErr: os.ErrNotExist},
		{lib: &fakeLibrary{renderErr: errTest}, expectedErr: errTest},
		{lib: &fakeLibrary{layers: []compositor.Layer{{Width: 2, Height: 2}}}, expectedErr: compositor.ErrInvalidLayer},
		{lib: &fakeLibrary{}, output: filepath.Join("does", "not", "exist.png"), expectedErr: os.ErrNotExist},
	}
	for i, tC := range testCases {
		t.Run(strconv.Itoa(i), func(t *testing.T) {
			opts := testOptions(t)
			if tC.output != "" {
				opts.Output = filepath.Join(t.TempDir(), tC.output)
			}
			_, err := snapshot.Run(context.Background(), tC.lib, opts)
			if !errors.Is(err, tC.expectedErr) {
				t.Errorf("expected %v, got %v", tC.expectedErr, err)
			}
			if _, err := os.Stat(opts.Output); err == nil {
				t.Error("expected no output file")
			}
			if tC.lib.track != nil && !tC.lib.track.closed {
				t.Error("expected track to be closed")
			}
		})
	}
}
