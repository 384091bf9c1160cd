// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of Statistics.
type Counters struct {
	StartTime      time.Time `json:"startTime"`
	LastUpdateTime time.Time `json:"lastUpdateTime"`

	TotalLines     uint64 `json:"totalLines"`
	SwitchLines    uint64 `json:"switchLines"`
	PollLines      uint64 `json:"pollLines"`
	InfoLines      uint64 `json:"infoLines"`
	SwitcherErrors uint64 `json:"switcherErrors"`
	MalformedLines uint64 `json:"malformedLines"`
	Unrecognized   uint64 `json:"unrecognized"`
	UnknownOutputs uint64 `json:"unknownOutputs"`
	CommandsSent   uint64 `json:"commandsSent"`
	SendFailures   uint64 `json:"sendFailures"`

	// Rates (calculated)
	LineRate  float64 `json:"lineRate"`  // lines/sec
	ErrorRate float64 `json:"errorRate"` // errors/sec
}

// Statistics tracks feedback and command counters. Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

// Update updates statistics based on a decoded line and its decode error
func (s *Statistics) Update(r *Response, decodeErr error) {
	if r == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalLines++
	s.c.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrMalformed) {
			s.c.MalformedLines++
		}
		return
	}

	switch r.Category {
	case CategoryAudioVideoSwitch, CategoryVideoSwitch, CategoryAudioSwitch:
		s.c.SwitchLines++
	case CategoryVideoPoll, CategoryAudioPoll:
		s.c.PollLines++
	case CategoryInfo:
		s.c.InfoLines++
	case CategoryError:
		s.c.SwitcherErrors++
	default:
		s.c.Unrecognized++
	}
}

// CountDropped records a line the transport discarded before decoding.
// It counts as received and malformed.
func (s *Statistics) CountDropped() {
	s.mu.Lock()
	s.c.TotalLines++
	s.c.MalformedLines++
	s.c.LastUpdateTime = time.Now()
	s.mu.Unlock()
}

// CountUnknownOutput records a route pair for an output that is not configured.
func (s *Statistics) CountUnknownOutput() {
	s.mu.Lock()
	s.c.UnknownOutputs++
	s.mu.Unlock()
}

// CountSent records a command handed to the transport, and whether it failed.
func (s *Statistics) CountSent(err error) {
	s.mu.Lock()
	if err != nil {
		s.c.SendFailures++
	} else {
		s.c.CommandsSent++
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates filled in.
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.LineRate = float64(c.TotalLines) / elapsed
		errorCount := c.SwitcherErrors + c.MalformedLines + c.SendFailures
		c.ErrorRate = float64(errorCount) / elapsed
	}
	return c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var switchPercent, pollPercent, errorPercent, malformedPercent float64
	if c.TotalLines > 0 {
		switchPercent = float64(c.SwitchLines) * 100.0 / float64(c.TotalLines)
		pollPercent = float64(c.PollLines) * 100.0 / float64(c.TotalLines)
		errorPercent = float64(c.SwitcherErrors) * 100.0 / float64(c.TotalLines)
		malformedPercent = float64(c.MalformedLines) * 100.0 / float64(c.TotalLines)
	}

	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Lines:     %8d\n", c.TotalLines)
	result += fmt.Sprintf("Switch Feedback: %8d (%.1f%%)\n", c.SwitchLines, switchPercent)
	result += fmt.Sprintf("Poll Feedback:   %8d (%.1f%%)\n", c.PollLines, pollPercent)

	if c.InfoLines > 0 {
		result += fmt.Sprintf("Info Lines:      %8d\n", c.InfoLines)
	}
	if c.SwitcherErrors > 0 {
		result += fmt.Sprintf("Switcher Errors: %8d (%.1f%%)\n", c.SwitcherErrors, errorPercent)
	}
	if c.MalformedLines > 0 {
		result += fmt.Sprintf("Malformed Lines: %8d (%.1f%%)\n", c.MalformedLines, malformedPercent)
	}
	if c.Unrecognized > 0 {
		result += fmt.Sprintf("Unrecognized:    %8d\n", c.Unrecognized)
	}
	if c.UnknownOutputs > 0 {
		result += fmt.Sprintf("Unknown Outputs: %8d\n", c.UnknownOutputs)
	}

	result += fmt.Sprintf("Commands Sent:   %8d\n", c.CommandsSent)
	if c.SendFailures > 0 {
		result += fmt.Sprintf("Send Failures:   %8d\n", c.SendFailures)
	}
	result += fmt.Sprintf("Line Rate:       %8.1f lines/sec\n", c.LineRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.c = Counters{StartTime: now, LastUpdateTime: now}
	s.mu.Unlock()
}
