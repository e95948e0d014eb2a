// Package features probes what a ffmpeg binary supports
package features

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

type VersionParts struct {
	Full    string `json:"full"`
	Release string `json:"release"`
	Major   uint   `json:"major"`
	Minor   uint   `json:"minor"`
	Patch   uint   `json:"patch"`
}

func (v VersionParts) String() string {
	if v.Release == "" {
		return "unknown"
	}
	return v.Release
}

// Filter from "ffmpeg -filters"
type Filter struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	TimelineSupport bool   `json:"timeline_support"`
	SliceThreading  bool   `json:"slice_threading"`
	CommandSupport  bool   `json:"command_support"`
	Inputs          string `json:"inputs"`  // ex: V, VV, N, |
	Outputs         string `json:"outputs"` // ex: V, N, |
}

// HasFilter reports if a filter with name is in fs
func HasFilter(fs []Filter, name string) bool {
	for _, f := range fs {
		if f.Name == name {
			return true
		}
	}
	return false
}

func reMatchNamedGroups(re *regexp.Regexp, s string) map[string]string {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil
	}

	result := map[string]string{}
	for i, name := range re.SubexpNames() {
		if i != 0 {
			result[name] = match[i]
		}
	}

	return result
}

/*
ffmpeg version n4.0 Copyright (c) 2000-2018 the FFmpeg developers
ffmpeg version 4.2 Copyright (c) 2000-2019 the FFmpeg developers
ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers
*/
var versionLineRe = regexp.MustCompile(`` +
	`^ffmpeg version ` +
	`(?P<release>` +
	`(?:\w*?(?P<major>\d+))` +
	`(?:\.(?P<minor>\d+))` +
	`(?:\.(?P<patch>\d+))?` +
	`\S*` +
	`)` +
	` Copyright.*$` +
	``)

func Version(ctx context.Context, ffmpegPath string) (VersionParts, error) {
	versionBytes, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return VersionParts{}, err
	}
	return parseVersion(string(versionBytes))
}

func parseVersion(full string) (VersionParts, error) {
	firstLine, _, _ := strings.Cut(full, "\n")
	versionMatch := reMatchNamedGroups(versionLineRe, strings.TrimSpace(firstLine))
	if versionMatch == nil {
		// git builds, ex: "ffmpeg version N-109421-g9adf02247c", has no numeric release
		if fs := strings.Fields(firstLine); len(fs) > 2 && fs[0] == "ffmpeg" && fs[1] == "version" {
			return VersionParts{Full: full, Release: fs[2]}, nil
		}
		return VersionParts{}, fmt.Errorf("unknown version line %q", firstLine)
	}

	major, _ := strconv.Atoi(versionMatch["major"])
	minor, _ := strconv.Atoi(versionMatch["minor"])
	patch, _ := strconv.Atoi(versionMatch["patch"])

	return VersionParts{
		Full:    full,
		Release: versionMatch["release"],
		Major:   uint(major),
		Minor:   uint(minor),
		Patch:   uint(patch),
	}, nil
}

// Filters:
//
//	 T.. = Timeline support
//	 .S. = Slice threading
//	 ..C = Command support
//	 A = Audio input/output
//	 V = Video input/output
//	 N = Dynamic number and/or type of input/output
//	 | = Source or sink filter
//	T.. acompressor       A->A       Audio compressor.
//	... color             |->V       Provide an uniformly colored input.
//	... subtitles         V->V       Render text subtitles onto input video using the libass library.
var filtersLineRe = regexp.MustCompile(`` +
	`^` +
	`\s*` +
	`(?P<timelinesupport>[T.])` +
	`(?P<slicethreading>[S.])` +
	`(?P<commandsupport>[C.])` +
	`\s+` +
	`(?P<filtername>\S+)` +
	`\s+` +
	`(?P<input>\S+)` +
	`->` +
	`(?P<output>\S+)` +
	`\s*` +
	`(?P<description>.*?)` +
	`\s*` +
	`$` +
	``)

func Filters(ctx context.Context, ffmpegPath string) ([]Filter, error) {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-filters").Output()
	if err != nil {
		return nil, err
	}
	return parseFilters(out)
}

func parseFilters(out []byte) ([]Filter, error) {
	lineScanner := bufio.NewScanner(bytes.NewReader(out))

	// skip legend, ends with "| = Source or sink filter"
	for lineScanner.Scan() {
		if strings.HasSuffix(lineScanner.Text(), "Source or sink filter") {
			break
		}
	}

	var filters []Filter
	for lineScanner.Scan() {
		m := reMatchNamedGroups(filtersLineRe, lineScanner.Text())
		if m == nil {
			continue
		}
		filters = append(filters, Filter{
			Name:            m["filtername"],
			Description:     m["description"],
			TimelineSupport: m["timelinesupport"] == "T",
			SliceThreading:  m["slicethreading"] == "S",
			CommandSupport:  m["commandsupport"] == "C",
			Inputs:          m["input"],
			Outputs:         m["output"],
		})
	}
	if err := lineScanner.Err(); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, errors.New("no filters found in ffmpeg -filters output")
	}

	return filters, nil
}
