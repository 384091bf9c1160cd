// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import "strings"

// Command builders for the non-routing vocabulary. Routing and per-output
// polls live in encoder.go because they carry indices that need validation.

// PollAll encodes a whole-matrix status request.
func (e *Encoder) PollAll(signal SignalType) string {
	return e.Frame().frame(StartChar + e.deviceID + allLevel(signal) + opPollAll)
}

// ClearAll encodes a disconnect-everything command.
func (e *Encoder) ClearAll(signal SignalType) string {
	return e.Frame().frame(StartChar + e.deviceID + signal.Level() + opClearAll)
}

// Version encodes the firmware version request used as a heartbeat.
func (e *Encoder) Version() string {
	return e.Frame().frame(StartChar + e.deviceID + opVersion)
}

// RouterID encodes the router ID check.
func (e *Encoder) RouterID() string {
	return e.Frame().frame(StartChar + e.deviceID + opRouterID)
}

// Raw frames a caller-supplied command body, such as a configured poll
// string. A trailing "!" and surrounding whitespace are replaced by the
// active terminator.
func (e *Encoder) Raw(body string) string {
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, EndChar)
	return e.Frame().frame(body)
}

// allLevel returns the prefix for whole-matrix requests. Video is the
// unprefixed form.
func allLevel(signal SignalType) string {
	if signal == SignalAudio {
		return SignalAudio.Level()
	}
	return ""
}
