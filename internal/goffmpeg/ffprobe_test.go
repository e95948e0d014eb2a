package goffmpeg_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wader/subsnap/internal/goffmpeg"
)

const testSRT = `1
00:00:01,000 --> 00:00:02,500
hello

2
00:00:03,000 --> 00:00:04,000
world
`

func TestProbe(t *testing.T) {
	requireFFmpeg(t)
	defer leakChecks(t)()

	path := filepath.Join(t.TempDir(), "test.srt")
	if err := os.WriteFile(path, []byte(testSRT), 0o644); err != nil {
		t.Fatal(err)
	}

	p := goffmpeg.FFProbeCmd{
		Context: context.Background(),
		Input:   goffmpeg.Input{File: path, Options: map[string]string{"sub_charenc": "UTF-8"}},
	}
	r, err := p.Result()
	if err != nil {
		t.Fatal(err)
	}

	if r.FormatName() != "srt" {
		t.Errorf("expected srt format, got %q", r.FormatName())
	}
	s, ok := r.FindFirstStreamCodecType(goffmpeg.CodecTypeSubtitle)
	if !ok {
		t.Fatalf("expected subtitle stream, got %s", r)
	}
	if s.CodecName != "subrip" {
		t.Errorf("expected subrip codec, got %q", s.CodecName)
	}
	if d := r.Duration(); d != 0 && d < 3*time.Second {
		t.Errorf("unexpected duration %s", d)
	}
}

func TestProbeReader(t *testing.T) {
	requireFFmpeg(t)
	defer leakChecks(t)()

	p := goffmpeg.FFProbeCmd{
		Context: context.Background(),
		Input:   goffmpeg.Input{File: strings.NewReader(testSRT), Format: "srt"},
	}
	r, err := p.Result()
	if err != nil {
		t.Fatal(err)
	}
	if ss := r.StreamsCodecType(goffmpeg.CodecTypeSubtitle); len(ss) != 1 {
		t.Errorf("expected one subtitle stream, got %s", r)
	}
}

func TestProbeError(t *testing.T) {
	requireFFmpeg(t)
	defer leakChecks(t)()

	path := filepath.Join(t.TempDir(), "missing.srt")
	p := goffmpeg.FFProbeCmd{Context: context.Background(), Input: goffmpeg.Input{File: path}}
	err := p.Run()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "missing.srt") {
		t.Errorf("expected stderr in error, got %q", err)
	}
}

func TestProbeResultHelpers(t *testing.T) {
	var r goffmpeg.FFProbeResult
	err := json.Unmarshal([]byte(`{
		"streams": [
			{"index": 0, "codec_type": "video", "codec_name": "h264"},
			{"index": 1, "codec_type": "subtitle", "codec_name": "ass", "tags": {"language": "eng"}},
			{"index": 2, "codec_type": "attachment", "codec_name": "ttf", "tags": {"filename": "a.ttf", "mimetype": "font/ttf"}},
			{"index": 3, "codec_type": "subtitle", "codec_name": "subrip"}
		],
		"format": {"format_name": "matroska,webm", "duration": "12.500000"}
	}`), &r)
	if err != nil {
		t.Fatal(err)
	}

	if r.FormatName() != "matroska" {
		t.Errorf("expected matroska, got %q", r.FormatName())
	}
	if r.Duration() != 12500*time.Millisecond {
		t.Errorf("expected 12.5s, got %s", r.Duration())
	}
	if ss := r.StreamsCodecType(goffmpeg.CodecTypeSubtitle); len(ss) != 2 || ss[1].Index != 3 {
		t.Errorf("unexpected subtitle streams %v", ss)
	}
	as := r.StreamsCodecType(goffmpeg.CodecTypeAttachment)
	if len(as) != 1 || as[0].Tags.MIMEType != "font/ttf" {
		t.Errorf("unexpected attachments %v", as)
	}
	if s := as[0].String(); s != "2: attachment ttf a.ttf" {
		t.Errorf("unexpected string %q", s)
	}
	if r.String() != "matroska:h264:ass:ttf:subrip" {
		t.Errorf("unexpected string %q", r.String())
	}
}
