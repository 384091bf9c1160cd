// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"fmt"
	"strings"
)

// FormatResponse formats a decoded line into a human-readable string
func FormatResponse(r *Response) string {
	timestamp := r.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s %q\n", timestamp, FormatCategory(r.Category), r.Line)
	if len(r.Routes) > 0 {
		result += "  " + FormatRoutes(r.Routes) + "\n"
	}
	return result
}

// FormatCategory returns the human-readable name for a category
func FormatCategory(c Category) string {
	switch c {
	case CategoryError:
		return "ERROR"
	case CategoryAudioVideoSwitch:
		return "AV_SWITCH"
	case CategoryVideoSwitch:
		return "VIDEO_SWITCH"
	case CategoryAudioSwitch:
		return "AUDIO_SWITCH"
	case CategoryVideoPoll:
		return "VIDEO_POLL"
	case CategoryAudioPoll:
		return "AUDIO_POLL"
	case CategoryInfo:
		return "INFO"
	default:
		return "UNRECOGNIZED"
	}
}

// FormatRoutes renders route pairs as "out 1 <- in 5, out 2 <- none".
func FormatRoutes(routes []Route) string {
	parts := make([]string, 0, len(routes))
	for _, r := range routes {
		parts = append(parts, fmt.Sprintf("out %d <- %s", r.Output, FormatInput(r.Input)))
	}
	return strings.Join(parts, ", ")
}

// FormatInput renders an input index, with 0 and NoSource shown as "none".
func FormatInput(input int) string {
	if input == 0 || input == NoSource {
		return "none"
	}
	return fmt.Sprintf("in %d", input)
}

// FormatCommand makes a framed command printable by escaping the terminator.
func FormatCommand(cmd string) string {
	cmd = strings.ReplaceAll(cmd, "\r", `\r`)
	return strings.ReplaceAll(cmd, "\n", `\n`)
}
