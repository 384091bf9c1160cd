// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"errors"
	"strings"
	"testing"
)

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	d := NewDecoder("255")

	lines := []string{
		"*255sVCI05O01",
		"*255sCI05O02",
		"*255s?AI01O01",
		"*255 VERSION 1.0",
		"Command Code Error",
		"something else",
	}
	for _, line := range lines {
		resp, err := d.Decode(line)
		s.Update(resp, err)
	}
	resp, err := d.Decode("*255sVCIxxO01")
	s.Update(resp, err)
	s.Update(nil, nil)

	s.CountUnknownOutput()
	s.CountSent(nil)
	s.CountSent(nil)
	s.CountSent(errors.New("write failed"))

	c := s.Snapshot()
	checks := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"TotalLines", c.TotalLines, 7},
		{"SwitchLines", c.SwitchLines, 2},
		{"PollLines", c.PollLines, 1},
		{"InfoLines", c.InfoLines, 1},
		{"SwitcherErrors", c.SwitcherErrors, 1},
		{"Unrecognized", c.Unrecognized, 1},
		{"MalformedLines", c.MalformedLines, 1},
		{"UnknownOutputs", c.UnknownOutputs, 1},
		{"CommandsSent", c.CommandsSent, 2},
		{"SendFailures", c.SendFailures, 1},
	}
	for _, ck := range checks {
		if ck.got != ck.want {
			t.Errorf("%s = %d, want %d", ck.name, ck.got, ck.want)
		}
	}

	out := s.String()
	for _, want := range []string{"Total Lines:", "Malformed Lines:", "Send Failures:"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if c := s.Snapshot(); c.TotalLines != 0 || c.CommandsSent != 0 {
		t.Errorf("Reset left counters: %+v", c)
	}
}

func TestStatistics_CountDropped(t *testing.T) {
	s := NewStatistics()
	s.CountDropped()

	c := s.Snapshot()
	if c.TotalLines != 1 || c.MalformedLines != 1 {
		t.Errorf("total %d malformed %d, want 1 and 1", c.TotalLines, c.MalformedLines)
	}
}

func TestFormatResponse(t *testing.T) {
	resp, err := NewDecoder("255").Decode("*255sVCI05O01,I00O02")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out := FormatResponse(resp)
	for _, want := range []string{"VIDEO_SWITCH", "out 1 <- in 5", "out 2 <- none"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatResponse missing %q: %q", want, out)
		}
	}
	if got := FormatCommand("*255VCI05O01!\r"); got != `*255VCI05O01!\r` {
		t.Errorf("FormatCommand = %q", got)
	}
}
