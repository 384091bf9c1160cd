// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package purelink implements the ASCII control protocol spoken by
// PureLink/MediaAxis class AV matrix switchers.
//
// The package is pure: it builds framed command strings and classifies
// feedback lines, but never touches a connection. Two protocol models
// exist; they differ only in the zero-padded width of numeric fields.
package purelink

import "fmt"

// Framing characters
const (
	StartChar = "*"
	EndChar   = "!"
)

// Index limits
const (
	MaxIO = 72

	// NoSource is the UI-side "disconnect" sentinel. It is encoded as input 0.
	NoSource = 999
)

// Model selects the numeric field width used on the wire.
type Model int

const (
	ModelLegacy   Model = 0 // 2-digit fields
	ModelExtended Model = 1 // 3-digit fields
)

// ParseModel clamps a configured model value to a supported model.
// Anything other than 0 or 1 falls back to ModelLegacy.
func ParseModel(v int) Model {
	switch Model(v) {
	case ModelExtended:
		return ModelExtended
	default:
		return ModelLegacy
	}
}

// Width returns the zero-padded width of numeric fields.
func (m Model) Width() int {
	if m == ModelExtended {
		return 3
	}
	return 2
}

func (m Model) String() string {
	switch m {
	case ModelLegacy:
		return "legacy"
	case ModelExtended:
		return "extended"
	default:
		return fmt.Sprintf("model(%d)", int(m))
	}
}

// SignalType selects which routing level a command or feedback applies to.
type SignalType int

const (
	SignalAudioVideo SignalType = iota
	SignalVideo
	SignalAudio
)

// Level returns the command prefix letter for the signal type.
func (s SignalType) Level() string {
	switch s {
	case SignalVideo:
		return "V"
	case SignalAudio:
		return "A"
	default:
		return ""
	}
}

func (s SignalType) String() string {
	switch s {
	case SignalAudioVideo:
		return "av"
	case SignalVideo:
		return "video"
	case SignalAudio:
		return "audio"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// ParseSignalType parses the names produced by SignalType.String.
// "audiovideo" and "all" are accepted as aliases for av.
func ParseSignalType(name string) (SignalType, error) {
	switch name {
	case "video", "v":
		return SignalVideo, nil
	case "audio", "a":
		return SignalAudio, nil
	case "av", "audiovideo", "all":
		return SignalAudioVideo, nil
	}
	return 0, fmt.Errorf("unknown signal type %q", name)
}

// FrameFormat selects the command terminator. It is chosen once at
// configuration time and held fixed for the life of a connection.
type FrameFormat int

const (
	FrameCanonical FrameFormat = iota // "!\r"
	FrameCRLF                         // "!\r\n"
	FrameLineFeed                     // "\n"
)

// Terminator returns the characters appended to every command body.
func (f FrameFormat) Terminator() string {
	switch f {
	case FrameCRLF:
		return EndChar + "\r\n"
	case FrameLineFeed:
		return "\n"
	default:
		return EndChar + "\r"
	}
}

func (f FrameFormat) String() string {
	switch f {
	case FrameCanonical:
		return "canonical"
	case FrameCRLF:
		return "crlf"
	case FrameLineFeed:
		return "lf"
	default:
		return fmt.Sprintf("frame(%d)", int(f))
	}
}

// ParseFrameFormat parses a configured frame name. Empty selects FrameCanonical.
func ParseFrameFormat(name string) (FrameFormat, error) {
	switch name {
	case "", "canonical", "cr":
		return FrameCanonical, nil
	case "crlf":
		return FrameCRLF, nil
	case "lf":
		return FrameLineFeed, nil
	}
	return FrameCanonical, fmt.Errorf("unknown frame format %q", name)
}

// Command operation codes
const (
	opRoute      = "CI"
	opPoll       = "?"
	opPollAll    = "?ALLIO"
	opClearAll   = "DALLIO"
	opVersion    = "?version"
	opRouterID   = "I000"
	feedbackFlag = "s"
)

// NoSourceName is the display name used when no input (or an unknown
// input) is routed to an output.
const NoSourceName = "No Source"
