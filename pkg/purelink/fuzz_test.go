// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package purelink

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// ============================================================
// Round Trip Tests
// ============================================================

// TestRoundTrip_AllCrosspoints encodes every valid crosspoint for both
// models and all signal types, and checks the echoed feedback decodes to
// the same pair.
func TestRoundTrip_AllCrosspoints(t *testing.T) {
	const deviceID = "255"
	d := NewDecoder(deviceID)

	wantCategory := map[SignalType]Category{
		SignalAudioVideo: CategoryAudioVideoSwitch,
		SignalVideo:      CategoryVideoSwitch,
		SignalAudio:      CategoryAudioSwitch,
	}

	for _, model := range []Model{ModelLegacy, ModelExtended} {
		for _, signal := range []SignalType{SignalAudioVideo, SignalVideo, SignalAudio} {
			for output := 1; output <= MaxIO; output++ {
				for input := 0; input <= MaxIO; input++ {
					line, err := EncodeFeedback(deviceID, model, signal, input, output)
					if err != nil {
						t.Fatalf("EncodeFeedback(%v, %v, %d, %d) failed: %v", model, signal, input, output, err)
					}
					resp, err := d.Decode(line + EndChar)
					if err != nil {
						t.Fatalf("Decode(%q) failed: %v", line, err)
					}
					if resp.Category != wantCategory[signal] {
						t.Fatalf("Decode(%q) category = %s", line, FormatCategory(resp.Category))
					}
					if len(resp.Routes) != 1 || resp.Routes[0] != (Route{Output: output, Input: input}) {
						t.Fatalf("Decode(%q) routes = %v, want out %d in %d", line, resp.Routes, output, input)
					}
				}
			}
		}
	}
}

// TestRoundTrip_CommandBody checks that a command and its echoed feedback
// differ only by the inserted "s".
func TestRoundTrip_CommandBody(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		deviceID := strconv.Itoa(rng.Intn(1000))
		model := Model(rng.Intn(2))
		signal := SignalType(rng.Intn(3))
		input := rng.Intn(MaxIO + 1)
		output := rng.Intn(MaxIO) + 1

		cmd, err := EncodeRoute(deviceID, model, FrameCanonical, signal, input, output)
		if err != nil {
			t.Fatalf("round %d: EncodeRoute failed: %v", i, err)
		}
		fb, err := EncodeFeedback(deviceID, model, signal, input, output)
		if err != nil {
			t.Fatalf("round %d: EncodeFeedback failed: %v", i, err)
		}

		prefix := StartChar + deviceID
		body := strings.TrimSuffix(cmd, FrameCanonical.Terminator())
		if prefix+"s"+strings.TrimPrefix(body, prefix) != fb {
			t.Fatalf("round %d: command %q and feedback %q disagree", i, cmd, fb)
		}

		resp, err := NewDecoder(deviceID).Decode(fb)
		if err != nil {
			t.Fatalf("round %d: Decode(%q) failed: %v", i, fb, err)
		}
		if len(resp.Routes) != 1 || resp.Routes[0].Output != output || resp.Routes[0].Input != input {
			t.Fatalf("round %d: Decode(%q) routes = %v", i, fb, resp.Routes)
		}
	}
}

// ============================================================
// Robustness Tests
// ============================================================

// TestDecode_RandomLines feeds random printable lines and prefix mutations
// through the decoder. It must never panic and never report routes for
// lines that fail to decode.
func TestDecode_RandomLines(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	d := NewDecoder("255")

	const alphabet = "*0123456789sSVACIO?!,. abcdefxyz\r\n"

	for i := 0; i < rounds; i++ {
		var sb strings.Builder
		if rng.Intn(2) == 0 {
			sb.WriteString([]string{"*255sVC", "*255sAC", "*255sC", "*255s?V", "*255s?A"}[rng.Intn(5)])
		}
		n := rng.Intn(24)
		for j := 0; j < n; j++ {
			sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		line := sb.String()

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("round %d: Decode(%q) panicked: %v", i, line, r)
				}
			}()
			resp, err := d.Decode(line)
			if err != nil && resp != nil && len(resp.Routes) != 0 {
				t.Fatalf("round %d: Decode(%q) returned routes with error", i, line)
			}
		}()
	}
}
