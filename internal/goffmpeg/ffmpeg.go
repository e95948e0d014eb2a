package goffmpeg

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wader/subsnap/internal/goffmpeg/internal/execextra"
	"github.com/wader/subsnap/internal/goffmpeg/internal/kvargs"
	"go.uber.org/zap"
)

// FFmpegPath to ffmpeg binary. Will be used as name to cmd.Command.
var FFmpegPath = "ffmpeg"

// FFmpegCmd is a ffmpeg command
// ffmpeg
//
//	-filter_complex FilterGraph
//	Input
//	  -i io.Reader/string
//	...
//	Output
//	  Map
//	    -map *Input/Specifier
//	  ...
//	  io.Writer/string
//	...
type FFmpegCmd struct {
	Flags       []string     `json:"flags"`
	Inputs      []*Input     `json:"inputs"`
	FilterGraph *FilterGraph `json:"filter_graph"`
	Outputs     []*Output    `json:"outputs"`

	Context             context.Context   `json:"-"`
	Env                 []string          `json:"-"` // added to the current environment
	StderrBufferNrLines int               `json:"-"`
	Stderr              io.Writer         `json:"-"`
	StderrLineFn        func(line string) `json:"-"` // called for each stderr line, line ending included
	DebugLog            *zap.Logger       `json:"-"`

	cmd    *execextra.Cmd
	stderr *stderrCapture
}

type Input struct {
	File    interface{}       `json:"file"` // io.Reader/string
	Format  string            `json:"format"`
	Options map[string]string `json:"options"`
	Flags   []string          `json:"flags"`
}

type Output struct {
	File    interface{}       `json:"file"` // io.Writer/string
	Maps    []*Map            `json:"maps"`
	Format  string            `json:"format"`
	Options map[string]string `json:"options"`
	Flags   []string          `json:"flags"`
}

type Map struct {
	Input     *Input            `json:"input"`
	Specifier string            `json:"specifier"`
	Codec     string            `json:"codec"`
	Options   map[string]string `json:"options"`
	Flags     []string          `json:"flags"`
}

type FilterGraph []FilterChain

type FilterChain []Filter

type Filter struct {
	Name    string            `json:"name"`
	Inputs  []string          `json:"inputs"`
	Outputs []string          `json:"outputs"`
	Options map[string]string `json:"options"`
}

type inputReaderFn func(index int, r io.Reader) (string, error)
type outputWriterFn func(index int, w io.Writer) (string, error)

func escapeWith(s string, special string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeFilterOptionValue escapes a filter option value for use in a filter
// graph string. Values are unescaped twice by ffmpeg, once when the graph is
// split into filters and once when the filter options are split.
func EscapeFilterOptionValue(v string) string {
	return escapeWith(escapeWith(v, `\':`), `\'[],;`)
}

func (fg FilterGraph) String() string {
	var argsGraph []string

	for _, chain := range fg {
		var argsChain []string

		for _, filter := range chain {
			var argsFilter []string
			for _, input := range filter.Inputs {
				argsFilter = append(argsFilter, "[", strings.ReplaceAll(input, `]`, `\]`), "]")
			}
			argsFilter = append(argsFilter, filter.Name)
			// uses MapToSortedArgs to keep options in stable order
			filterOpts := kvargs.MapToSortedArgs(filter.Options, func(k, v string) []string {
				return []string{k + "=" + EscapeFilterOptionValue(v)}
			})
			if len(filterOpts) > 0 {
				argsFilter = append(argsFilter, "=", strings.Join(filterOpts, ":"))
			}
			for _, output := range filter.Outputs {
				argsFilter = append(argsFilter, "[", strings.ReplaceAll(output, `]`, `\]`), "]")
			}

			argsChain = append(argsChain, strings.Join(argsFilter, ""))
		}
		argsGraph = append(argsGraph, strings.Join(argsChain, ","))
	}

	return strings.Join(argsGraph, ";")
}

func (fm *FFmpegCmd) buildArgs(inputReaderFn inputReaderFn, outputWriterFn outputWriterFn) ([]string, error) {
	inputToIndex := map[*Input]int{}

	args := []string{
		"-nostdin",
		"-hide_banner",
	}
	args = append(args, fm.Flags...)

	if fm.FilterGraph != nil {
		args = append(args, "-filter_complex", fm.FilterGraph.String())
	}

	for inputIndex, input := range fm.Inputs {
		inputToIndex[input] = inputIndex

		args = append(args, kvargs.MapToSortedArgs(input.Options, kvargs.OptionArg(""))...)
		args = append(args, input.Flags...)
		if input.Format != "" {
			args = append(args, "-f", input.Format)
		}
		args = append(args, "-i")
		switch file := input.File.(type) {
		case string:
			args = append(args, file)
		case io.Reader:
			a, err := inputReaderFn(inputIndex, file)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		default:
			return nil, fmt.Errorf("unknown input file type %#v should be string or io.Reader", file)
		}
	}

	for outputIndex, output := range fm.Outputs {
		for streamIndex, m := range output.Maps {
			args = append(args, "-map")
			var specifier []string
			if m.Input != nil {
				inputIndex, ok := inputToIndex[m.Input]
				if !ok {
					return nil, fmt.Errorf("can't find input %#v for map %#v", m.Input, m)
				}
				specifier = append(specifier, strconv.Itoa(inputIndex))
			}
			if m.Specifier != "" {
				specifier = append(specifier, m.Specifier)
			}
			args = append(args, strings.Join(specifier, ":"))

			streamIndexStr := strconv.Itoa(streamIndex)
			if m.Codec != "" {
				args = append(args, "-codec:"+streamIndexStr, m.Codec)
			}
			args = append(args, kvargs.MapToSortedArgs(m.Options, kvargs.OptionArg(":"+streamIndexStr))...)
			args = append(args, m.Flags...)
		}

		if output.Format != "" {
			args = append(args, "-f", output.Format)
		}
		args = append(args, kvargs.MapToSortedArgs(output.Options, kvargs.OptionArg(""))...)
		args = append(args, output.Flags...)

		switch file := output.File.(type) {
		case string:
			args = append(args, file)
		case io.Writer:
			a, err := outputWriterFn(outputIndex, file)
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		default:
			return nil, fmt.Errorf("unknown output file type %#v should be string or io.Writer", output.File)
		}
	}

	return args, nil
}

// Args returns the arguments ffmpeg would be started with, pipes are shown
// as placeholders.
func (fm *FFmpegCmd) Args() ([]string, error) {
	return fm.buildArgs(
		func(inputIndex int, r io.Reader) (string, error) {
			return fmt.Sprintf("pipe-input-index:%d", inputIndex), nil
		},
		func(outputIndex int, w io.Writer) (string, error) {
			return fmt.Sprintf("pipe-output-index:%d", outputIndex), nil
		},
	)
}

func (fm *FFmpegCmd) Start() error {
	fm.cmd = newCommand(fm.Context, FFmpegPath, fm.Env)

	args, err := fm.buildArgs(
		func(inputIndex int, r io.Reader) (string, error) {
			fd, err := fm.cmd.ExtraIn(r)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("pipe:%d", fd), nil
		},
		func(outputIndex int, w io.Writer) (string, error) {
			fd, err := fm.cmd.ExtraOut(w)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("pipe:%d", fd), nil
		},
	)
	if err != nil {
		fm.cmd.Abort()
		return err
	}
	fm.cmd.Args = append(fm.cmd.Args, args...)

	if fm.DebugLog != nil {
		fm.DebugLog.Debug("ffmpeg", zap.Strings("args", args), zap.Strings("env", fm.Env))
	}

	fm.stderr = captureStderr(fm.cmd, fm.StderrBufferNrLines, fm.Stderr, fm.StderrLineFn)

	return fm.cmd.Start()
}

// Wait for cmd to finish, errors include the last stderr lines
func (fm *FFmpegCmd) Wait() error {
	err := fm.cmd.Wait()
	fm.stderr.flush()
	return fm.stderr.wrap(err)
}

// Run starts and waits for ffmpeg to finish
// Note that the error message might include command details that are sensitive
func (fm *FFmpegCmd) Run() error {
	if err := fm.Start(); err != nil {
		return err
	}
	return fm.Wait()
}

// StderrBuffer returns the last stderr lines as a string
// Note that the stderr might include command details that are sensitive
func (fm *FFmpegCmd) StderrBuffer() string {
	return fm.stderr.String()
}
