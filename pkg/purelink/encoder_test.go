// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"errors"
	"testing"
)

// ============================================================
// Route Encoding Tests
// ============================================================

func TestEncodeRoute(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		model    Model
		frame    FrameFormat
		signal   SignalType
		input    int
		output   int
		want     string
	}{
		{
			name:     "video model 0",
			deviceID: "255",
			model:    ModelLegacy,
			signal:   SignalVideo,
			input:    5,
			output:   1,
			want:     "*255VCI05O01!\r",
		},
		{
			name:     "audio model 0",
			deviceID: "255",
			model:    ModelLegacy,
			signal:   SignalAudio,
			input:    12,
			output:   32,
			want:     "*255ACI12O32!\r",
		},
		{
			name:     "audio video combined",
			deviceID: "255",
			model:    ModelLegacy,
			signal:   SignalAudioVideo,
			input:    9,
			output:   2,
			want:     "*255CI09O02!\r",
		},
		{
			name:     "video model 1 pads to three digits",
			deviceID: "999",
			model:    ModelExtended,
			signal:   SignalVideo,
			input:    5,
			output:   72,
			want:     "*999VCI005O072!\r",
		},
		{
			name:     "no source sentinel encodes as zero",
			deviceID: "255",
			model:    ModelLegacy,
			signal:   SignalVideo,
			input:    NoSource,
			output:   1,
			want:     "*255VCI00O01!\r",
		},
		{
			name:     "zero input disconnects",
			deviceID: "255",
			model:    ModelExtended,
			signal:   SignalAudio,
			input:    0,
			output:   3,
			want:     "*255ACI000O003!\r",
		},
		{
			name:     "crlf frame",
			deviceID: "1",
			model:    ModelLegacy,
			frame:    FrameCRLF,
			signal:   SignalVideo,
			input:    1,
			output:   1,
			want:     "*1VCI01O01!\r\n",
		},
		{
			name:     "line feed frame",
			deviceID: "1",
			model:    ModelLegacy,
			frame:    FrameLineFeed,
			signal:   SignalVideo,
			input:    1,
			output:   1,
			want:     "*1VCI01O01\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRoute(tt.deviceID, tt.model, tt.frame, tt.signal, tt.input, tt.output)
			if err != nil {
				t.Fatalf("EncodeRoute failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeRoute = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeRoute_IsPure(t *testing.T) {
	a, _ := EncodeRoute("255", ModelLegacy, FrameCanonical, SignalVideo, 7, 3)
	b, _ := EncodeRoute("255", ModelLegacy, FrameCanonical, SignalVideo, 7, 3)
	if a != b {
		t.Errorf("repeated encodes differ: %q vs %q", a, b)
	}
}

func TestEncodeRoute_RangeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   int
		output  int
		wantErr error
	}{
		{"output zero", 1, 0, ErrOutputRange},
		{"output above max", 1, MaxIO + 1, ErrOutputRange},
		{"negative output", 1, -1, ErrOutputRange},
		{"input above max", MaxIO + 1, 1, ErrInputRange},
		{"negative input", -5, 1, ErrInputRange},
		{"input 998 is not the sentinel", 998, 1, ErrInputRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRoute("255", ModelLegacy, FrameCanonical, SignalVideo, tt.input, tt.output)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != "" {
				t.Errorf("command %q built despite error", got)
			}
		})
	}
}

func TestEncodeRoute_Boundaries(t *testing.T) {
	if _, err := EncodeRoute("255", ModelLegacy, FrameCanonical, SignalVideo, MaxIO, MaxIO); err != nil {
		t.Errorf("max indices rejected: %v", err)
	}
	if _, err := EncodeRoute("255", ModelLegacy, FrameCanonical, SignalVideo, 0, 1); err != nil {
		t.Errorf("input 0 rejected: %v", err)
	}
}

// ============================================================
// Poll Encoding Tests
// ============================================================

func TestEncodePoll(t *testing.T) {
	tests := []struct {
		name   string
		model  Model
		signal SignalType
		output int
		want   string
	}{
		{"video", ModelLegacy, SignalVideo, 1, "*255?VO01!\r"},
		{"audio", ModelLegacy, SignalAudio, 12, "*255?AO12!\r"},
		{"audio video polls video", ModelLegacy, SignalAudioVideo, 4, "*255?VO04!\r"},
		{"model 1", ModelExtended, SignalAudio, 7, "*255?AO007!\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePoll("255", tt.model, FrameCanonical, tt.signal, tt.output)
			if err != nil {
				t.Fatalf("EncodePoll failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodePoll = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := EncodePoll("255", ModelLegacy, FrameCanonical, SignalVideo, 0); !errors.Is(err, ErrOutputRange) {
		t.Errorf("output 0 error = %v, want ErrOutputRange", err)
	}
}

// ============================================================
// Feedback Encoding Tests
// ============================================================

func TestEncodeFeedback(t *testing.T) {
	got, err := EncodeFeedback("255", ModelLegacy, SignalVideo, 5, 1)
	if err != nil {
		t.Fatalf("EncodeFeedback failed: %v", err)
	}
	if got != "*255sVCI05O01" {
		t.Errorf("EncodeFeedback = %q, want %q", got, "*255sVCI05O01")
	}

	got, err = EncodePollFeedback("255", ModelExtended, SignalAudio, NoSource, 3)
	if err != nil {
		t.Fatalf("EncodePollFeedback failed: %v", err)
	}
	if got != "*255s?AI000O003" {
		t.Errorf("EncodePollFeedback = %q, want %q", got, "*255s?AI000O003")
	}
}

// ============================================================
// Parsing Helpers
// ============================================================

func TestParseModel(t *testing.T) {
	tests := []struct {
		in   int
		want Model
	}{
		{0, ModelLegacy},
		{1, ModelExtended},
		{2, ModelLegacy},
		{-1, ModelLegacy},
		{99, ModelLegacy},
	}
	for _, tt := range tests {
		if got := ParseModel(tt.in); got != tt.want {
			t.Errorf("ParseModel(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseSignalType(t *testing.T) {
	for _, s := range []SignalType{SignalAudioVideo, SignalVideo, SignalAudio} {
		got, err := ParseSignalType(s.String())
		if err != nil {
			t.Fatalf("ParseSignalType(%q) failed: %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseSignalType(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if _, err := ParseSignalType("usb"); err == nil {
		t.Error("ParseSignalType(usb) should fail")
	}
}

func TestParseFrameFormat(t *testing.T) {
	for _, f := range []FrameFormat{FrameCanonical, FrameCRLF, FrameLineFeed} {
		got, err := ParseFrameFormat(f.String())
		if err != nil || got != f {
			t.Errorf("ParseFrameFormat(%q) = %v, %v", f.String(), got, err)
		}
	}
	if got, err := ParseFrameFormat(""); err != nil || got != FrameCanonical {
		t.Errorf("empty frame name = %v, %v; want canonical", got, err)
	}
	if _, err := ParseFrameFormat("bogus"); err == nil {
		t.Error("ParseFrameFormat(bogus) should fail")
	}
}

func TestIsValidDeviceID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"255", true},
		{"999", true},
		{"1", true},
		{"", false},
		{"25a", false},
		{"-1", false},
		{" 255", false},
	}
	for _, tt := range tests {
		if got := IsValidDeviceID(tt.id); got != tt.want {
			t.Errorf("IsValidDeviceID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
