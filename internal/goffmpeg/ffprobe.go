package goffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wader/subsnap/internal/goffmpeg/internal/execextra"
	"github.com/wader/subsnap/internal/goffmpeg/internal/kvargs"
	"go.uber.org/zap"
)

// FFprobePath to ffprobe binary. Will be used as name to cmd.Command.
var FFprobePath = "ffprobe"

const (
	CodecTypeSubtitle   = "subtitle"
	CodecTypeAttachment = "attachment"
)

// FFProbeResult is the -show_format -show_streams part of ffprobe json output
type FFProbeResult struct {
	Format  FFProbeFormat   `json:"format"`
	Streams []FFProbeStream `json:"streams"`
}

// Tags stream or format tags, only the ones of interest
type Tags struct {
	Language string `json:"language"`
	Title    string `json:"title"`
	Filename string `json:"filename"` // attachments
	MIMEType string `json:"mimetype"` // attachments
}

type FFProbeStream struct {
	Index     uint   `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Tags      Tags   `json:"tags"`
}

func (fps FFProbeStream) String() string {
	ss := []string{fmt.Sprintf("%d: %s %s", fps.Index, fps.CodecType, fps.CodecName)}
	for _, t := range []string{fps.Tags.Language, fps.Tags.Filename} {
		if t != "" {
			ss = append(ss, t)
		}
	}
	return strings.Join(ss, " ")
}

type FFProbeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Tags       Tags   `json:"tags"`
}

// StreamsCodecType all streams with codec type in index order
func (fpr FFProbeResult) StreamsCodecType(codecType string) []FFProbeStream {
	var ss []FFProbeStream
	for _, s := range fpr.Streams {
		if s.CodecType == codecType {
			ss = append(ss, s)
		}
	}
	return ss
}

func (fpr FFProbeResult) FindFirstStreamCodecType(codecType string) (FFProbeStream, bool) {
	if ss := fpr.StreamsCodecType(codecType); len(ss) > 0 {
		return ss[0], true
	}
	return FFProbeStream{}, false
}

// FormatName probed format (first value if comma separated)
func (fpr FFProbeResult) FormatName() string {
	return strings.Split(fpr.Format.FormatName, ",")[0]
}

// Duration probed duration, zero if unknown
func (fpr FFProbeResult) Duration() time.Duration {
	v, _ := strconv.ParseFloat(fpr.Format.Duration, 64)
	return time.Duration(v * float64(time.Second))
}

func (fpr FFProbeResult) String() string {
	ss := []string{fpr.FormatName()}
	for _, s := range fpr.Streams {
		ss = append(ss, s.CodecName)
	}
	return strings.Join(ss, ":")
}

// FFProbeCmd is a ffprobe command
// ffprobe -print_format json -show_format -show_streams Flags Input
type FFProbeCmd struct {
	Flags []string
	Input Input

	ProbeResult FFProbeResult `json:"-"`

	Context             context.Context `json:"-"`
	Env                 []string        `json:"-"` // added to the current environment
	StderrBufferNrLines int             `json:"-"`
	Stderr              io.Writer       `json:"-"`
	DebugLog            *zap.Logger     `json:"-"`

	cmd    *execextra.Cmd
	waitCh chan error
	stderr *stderrCapture
}

func (fp *FFProbeCmd) args() ([]string, error) {
	args := []string{
		"-hide_banner",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}
	args = append(args, fp.Flags...)
	args = append(args, kvargs.MapToSortedArgs(fp.Input.Options, kvargs.OptionArg(""))...)
	args = append(args, fp.Input.Flags...)
	if fp.Input.Format != "" {
		args = append(args, "-f", fp.Input.Format)
	}
	switch file := fp.Input.File.(type) {
	case string:
		args = append(args, file)
	case io.Reader:
		fp.cmd.Stdin = file
		args = append(args, "pipe:0")
	default:
		return nil, fmt.Errorf("unknown input file type %#v should be string or io.Reader", file)
	}
	return args, nil
}

// Start ffprobe, the result is decoded while it runs
func (fp *FFProbeCmd) Start() error {
	fp.cmd = newCommand(fp.Context, FFprobePath, fp.Env)
	args, err := fp.args()
	if err != nil {
		return err
	}
	fp.cmd.Args = append(fp.cmd.Args, args...)

	if fp.DebugLog != nil {
		fp.DebugLog.Debug("ffprobe", zap.Strings("args", args))
	}

	fp.stderr = captureStderr(fp.cmd, fp.StderrBufferNrLines, fp.Stderr, nil)

	stdout, err := fp.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := fp.cmd.Start(); err != nil {
		return err
	}

	fp.waitCh = make(chan error, 1)
	go func() {
		jsonErr := json.NewDecoder(stdout).Decode(&fp.ProbeResult)
		// drain so ffprobe never blocks on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
		waitErr := fp.cmd.Wait()
		fp.stderr.flush()

		if waitErr != nil {
			fp.waitCh <- waitErr
			return
		}
		fp.waitCh <- jsonErr
	}()

	return nil
}

// Wait for ffprobe to finish, errors include the last stderr lines
func (fp *FFProbeCmd) Wait() error {
	return fp.stderr.wrap(<-fp.waitCh)
}

func (fp *FFProbeCmd) Run() error {
	if err := fp.Start(); err != nil {
		return err
	}
	return fp.Wait()
}

// Result runs ffprobe and returns the result
// Note that the error message might include command details that are sensitive
func (fp *FFProbeCmd) Result() (FFProbeResult, error) {
	if err := fp.Run(); err != nil {
		return FFProbeResult{}, err
	}
	return fp.ProbeResult, nil
}
