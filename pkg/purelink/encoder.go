// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"errors"
	"fmt"
)

// Range errors returned before any command text is built.
var (
	ErrOutputRange = errors.New("output index out of range")
	ErrInputRange  = errors.New("input index out of range")
)

// Encoder encodes PureLink commands for one switcher.
// It binds the device ID, protocol model and frame format so callers only
// supply indices.
type Encoder struct {
	deviceID string
	model    Model
	frame    FrameFormat
}

// NewEncoder creates a new command encoder.
func NewEncoder(deviceID string, model Model, frame FrameFormat) *Encoder {
	return &Encoder{
		deviceID: deviceID,
		model:    model,
		frame:    frame,
	}
}

// DeviceID returns the router ID commands are addressed to.
func (e *Encoder) DeviceID() string { return e.deviceID }

// Model returns the protocol model.
func (e *Encoder) Model() Model { return e.model }

// Frame returns the frame format.
func (e *Encoder) Frame() FrameFormat { return e.frame }

// Route encodes a crosspoint command.
func (e *Encoder) Route(signal SignalType, input, output int) (string, error) {
	return EncodeRoute(e.deviceID, e.model, e.frame, signal, input, output)
}

// Poll encodes a single output status request.
func (e *Encoder) Poll(signal SignalType, output int) (string, error) {
	return EncodePoll(e.deviceID, e.model, e.frame, signal, output)
}

// EncodeRoute creates a complete framed crosspoint command:
//
//	*<deviceID><LEVEL>CI<input>O<output><terminator>
//
// NoSource is encoded as input 0.
func EncodeRoute(deviceID string, model Model, frame FrameFormat, signal SignalType, input, output int) (string, error) {
	body, err := routeBody(deviceID, "", model, signal, input, output)
	if err != nil {
		return "", err
	}
	return frame.frame(body), nil
}

// EncodePoll creates a framed single output status request:
//
//	*<deviceID>?<V|A>O<output><terminator>
//
// SignalAudioVideo polls the video level.
func EncodePoll(deviceID string, model Model, frame FrameFormat, signal SignalType, output int) (string, error) {
	if err := ValidateOutput(output); err != nil {
		return "", err
	}
	level := signal.Level()
	if level == "" {
		level = SignalVideo.Level()
	}
	body := fmt.Sprintf("%s%s%s%sO%s", StartChar, deviceID, opPoll, level, pad(model, output))
	return frame.frame(body), nil
}

// EncodeFeedback creates the line a switcher echoes after executing a
// crosspoint command. It carries no terminator.
func EncodeFeedback(deviceID string, model Model, signal SignalType, input, output int) (string, error) {
	return routeBody(deviceID, feedbackFlag, model, signal, input, output)
}

// EncodePollFeedback creates the line a switcher returns for a single
// output status request. Audio-video requests report the video level.
func EncodePollFeedback(deviceID string, model Model, signal SignalType, input, output int) (string, error) {
	if err := ValidateOutput(output); err != nil {
		return "", err
	}
	if err := ValidateInput(input); err != nil {
		return "", err
	}
	level := signal.Level()
	if level == "" {
		level = SignalVideo.Level()
	}
	return fmt.Sprintf("%s%s%s%s%sI%sO%s", StartChar, deviceID, feedbackFlag, opPoll, level,
		pad(model, wireInput(input)), pad(model, output)), nil
}

// ValidateOutput checks that an output index can be encoded.
func ValidateOutput(output int) error {
	if output < 1 || output > MaxIO {
		return fmt.Errorf("%w: %d (valid 1-%d)", ErrOutputRange, output, MaxIO)
	}
	return nil
}

// ValidateInput checks that an input index can be encoded.
// 0 and NoSource both mean "disconnect".
func ValidateInput(input int) error {
	if input == NoSource {
		return nil
	}
	if input < 0 || input > MaxIO {
		return fmt.Errorf("%w: %d (valid 0-%d or %d)", ErrInputRange, input, MaxIO, NoSource)
	}
	return nil
}

// IsValidDeviceID reports whether id is a usable router ID (decimal digits only).
func IsValidDeviceID(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func routeBody(deviceID, flag string, model Model, signal SignalType, input, output int) (string, error) {
	if err := ValidateOutput(output); err != nil {
		return "", err
	}
	if err := ValidateInput(input); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%s%s%s%sO%s", StartChar, deviceID, flag, signal.Level(), opRoute,
		pad(model, wireInput(input)), pad(model, output)), nil
}

func (f FrameFormat) frame(body string) string {
	return body + f.Terminator()
}

func wireInput(input int) int {
	if input == NoSource {
		return 0
	}
	return input
}

func pad(model Model, n int) string {
	return fmt.Sprintf("%0*d", model.Width(), n)
}
