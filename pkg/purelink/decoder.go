// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category classifies a feedback line.
type Category int

const (
	CategoryUnrecognized Category = iota
	CategoryError
	CategoryAudioVideoSwitch
	CategoryVideoSwitch
	CategoryAudioSwitch
	CategoryVideoPoll
	CategoryAudioPoll
	CategoryInfo
)

// Signal returns the routing level a route-carrying category updates.
// ok is false for categories that carry no routes.
func (c Category) Signal() (signal SignalType, ok bool) {
	switch c {
	case CategoryAudioVideoSwitch:
		return SignalAudioVideo, true
	case CategoryVideoSwitch, CategoryVideoPoll:
		return SignalVideo, true
	case CategoryAudioSwitch, CategoryAudioPoll:
		return SignalAudio, true
	}
	return 0, false
}

// CarriesRoutes reports whether lines of this category contain I..O.. pairs.
func (c Category) CarriesRoutes() bool {
	_, ok := c.Signal()
	return ok
}

// ErrMalformed is wrapped by DecodeError for matched lines whose route
// pairs cannot be parsed.
var ErrMalformed = errors.New("malformed feedback")

// DecodeError describes a line that matched a feedback prefix but could
// not be decoded.
type DecodeError struct {
	Category Category
	Line     string
	Message  string
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %q", FormatCategory(e.Category), e.Message, e.Line)
}

// Unwrap allows errors.Is(err, ErrMalformed).
func (e *DecodeError) Unwrap() error {
	return ErrMalformed
}

// Route is one output/input pair reported by the switcher.
type Route struct {
	Output int
	Input  int
}

// Response is a classified feedback line.
type Response struct {
	Category  Category
	Line      string
	Routes    []Route
	Timestamp time.Time
}

var routePairPattern = regexp.MustCompile(`^I?(\d{2,3})O(\d{2,3})$`)

var errorMarkers = []string{
	"command code error",
	"router id error",
}

type prefixMatcher struct {
	prefix   string
	category Category
}

// Decoder classifies feedback lines from one switcher.
type Decoder struct {
	deviceID   string
	matchers   []prefixMatcher
	infoPrefix string
}

// NewDecoder creates a decoder for lines echoed by the given router ID.
func NewDecoder(deviceID string) *Decoder {
	base := strings.ToUpper(StartChar + deviceID + feedbackFlag)
	return &Decoder{
		deviceID: deviceID,
		// Most specific first. Prefixes stop before the "I" of the first
		// route pair so every payload has the same shape.
		matchers: []prefixMatcher{
			{base + "VC", CategoryVideoSwitch},
			{base + "AC", CategoryAudioSwitch},
			{base + "C", CategoryAudioVideoSwitch},
			{base + "?V", CategoryVideoPoll},
			{base + "?A", CategoryAudioPoll},
		},
		infoPrefix: base + "I",
	}
}

// DeviceID returns the router ID this decoder matches.
func (d *Decoder) DeviceID() string {
	return d.deviceID
}

// Decode classifies a single feedback line.
// Returns nil, nil for a line that is empty after trimming.
// A matched line with unparseable route pairs returns the classified
// response with no routes and a *DecodeError.
func (d *Decoder) Decode(line string) (*Response, error) {
	trimmed := trimLine(line)
	if trimmed == "" {
		return nil, nil
	}

	resp := &Response{
		Category:  CategoryUnrecognized,
		Line:      trimmed,
		Timestamp: time.Now(),
	}

	if IsErrorLine(trimmed) {
		resp.Category = CategoryError
		return resp, nil
	}

	upper := strings.ToUpper(trimmed)
	for _, m := range d.matchers {
		if !strings.HasPrefix(upper, m.prefix) {
			continue
		}
		resp.Category = m.category
		routes, err := parseRoutes(trimmed[len(m.prefix):])
		if err != nil {
			return resp, &DecodeError{Category: m.category, Line: trimmed, Message: err.Error()}
		}
		resp.Routes = routes
		return resp, nil
	}

	if strings.HasPrefix(upper, d.infoPrefix) || strings.Contains(upper, "VERSION") {
		resp.Category = CategoryInfo
	}
	return resp, nil
}

// IsErrorLine reports whether the switcher flagged a command as rejected.
func IsErrorLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range errorMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// parseRoutes parses "I05O01[,I06O02...]". Every pair must parse.
func parseRoutes(payload string) ([]Route, error) {
	parts := strings.Split(payload, ",")
	routes := make([]Route, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		m := routePairPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("bad route pair %q", part)
		}
		input, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("bad input %q: %w", m[1], err)
		}
		output, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("bad output %q: %w", m[2], err)
		}
		routes = append(routes, Route{Output: output, Input: input})
	}
	return routes, nil
}

func trimLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(line, EndChar)
	return strings.TrimSpace(line)
}
