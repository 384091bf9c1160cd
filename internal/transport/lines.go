// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineLength bounds a single feedback line. A full 72-output status
// reply fits comfortably.
const maxLineLength = 4096

// ScanLines is a bufio.SplitFunc that splits on CR, LF or both. Empty
// lines produced by CRLF pairs are skipped. The terminator is dropped.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if atEOF && start == len(data) {
		return len(data), nil, nil
	}

	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}
	if atEOF {
		return len(data), data[start:], nil
	}
	// Request more data.
	return start, nil, nil
}

// lineSplitter wraps ScanLines and drops a line that outgrows max instead
// of failing the scan. The rest of that line is skipped up to the next
// terminator.
type lineSplitter struct {
	max        int
	discarding bool
	onOverflow func()
}

func (s *lineSplitter) split(data []byte, atEOF bool) (int, []byte, error) {
	if s.discarding {
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			return len(data), nil, nil
		}
		s.discarding = false
		return i + 1, nil, nil
	}

	advance, token, err := ScanLines(data, atEOF)
	if token == nil && !atEOF && advance < len(data) && len(data) >= s.max {
		s.discarding = true
		if s.onOverflow != nil {
			s.onOverflow()
		}
		return len(data), nil, nil
	}
	return advance, token, err
}

// NewLineScanner returns a scanner that yields feedback lines from r.
// Lines longer than maxLineLength are dropped and reported to onOverflow,
// which may be nil.
func NewLineScanner(r io.Reader, onOverflow func()) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 256), maxLineLength)
	s.Split((&lineSplitter{max: maxLineLength, onOverflow: onOverflow}).split)
	return s
}
