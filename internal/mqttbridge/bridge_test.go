// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mqttbridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"go.uber.org/zap"
)

const prefix = "matrixctl/hall"

// ============================================================
// Command Parsing
// ============================================================

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    command
	}{
		{"video route", prefix + "/outputs/3/video/set", "5", command{kind: cmdRoute, output: 3, input: 5, signal: purelink.SignalVideo}},
		{"audio route", prefix + "/outputs/1/audio/set", " 12 ", command{kind: cmdRoute, output: 1, input: 12, signal: purelink.SignalAudio}},
		{"av none", prefix + "/outputs/2/av/set", "none", command{kind: cmdRoute, output: 2, input: purelink.NoSource, signal: purelink.SignalAudioVideo}},
		{"gate open", prefix + "/gates/video/set", "on", command{kind: cmdGate, signal: purelink.SignalVideo, on: true}},
		{"gate close", prefix + "/gates/audio/set", "0", command{kind: cmdGate, signal: purelink.SignalAudio}},
		{"afv", prefix + "/audio-follows-video/set", "true", command{kind: cmdAudioFollowsVideo, on: true}},
		{"poll all", prefix + "/poll/set", "", command{kind: cmdPoll, all: true}},
		{"poll audio", prefix + "/poll/set", "audio", command{kind: cmdPoll, signal: purelink.SignalAudio}},
		{"clear video", prefix + "/clear/set", "video", command{kind: cmdClear, signal: purelink.SignalVideo}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(prefix, tt.topic, []byte(tt.payload))
			if err != nil {
				t.Fatalf("parseCommand: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		unknown bool
	}{
		{"other prefix", "other/outputs/1/video/set", "5", true},
		{"state topic", prefix + "/outputs/1/video", "5", true},
		{"unknown command", prefix + "/reboot/set", "", true},
		{"bad output", prefix + "/outputs/x/video/set", "5", false},
		{"bad signal", prefix + "/outputs/1/usb/set", "5", false},
		{"bad input", prefix + "/outputs/1/video/set", "five", false},
		{"bad switch", prefix + "/gates/video/set", "maybe", false},
		{"bad poll level", prefix + "/poll/set", "usb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCommand(prefix, tt.topic, []byte(tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, errUnknownTopic) != tt.unknown {
				t.Errorf("err = %v, unknown topic = %v", err, tt.unknown)
			}
		})
	}
}

func TestSubscriptions(t *testing.T) {
	subs := subscriptions(prefix)
	if len(subs) != 5 || subs[0] != prefix+"/outputs/+/+/set" {
		t.Errorf("subscriptions = %v", subs)
	}
}

// ============================================================
// State Topics
// ============================================================

func TestEventMessages(t *testing.T) {
	tests := []struct {
		event   router.Event
		topics  []string
		payload string
	}{
		{router.Event{Kind: router.EventVideoRoute, Index: 2, Value: 5, Name: "Laptop"}, []string{"/outputs/2/video"}, `{"input":5,"name":"Laptop"}`},
		{router.Event{Kind: router.EventAudioRoute, Index: 1, Name: purelink.NoSourceName}, []string{"/outputs/1/audio"}, `{"input":0,"name":"No Source"}`},
		{router.Event{Kind: router.EventOutputName, Index: 4, Name: "Projector"}, []string{"/outputs/4/name"}, "Projector"},
		{router.Event{Kind: router.EventInputName, Index: 7, Name: "Camera"}, []string{"/inputs/7/name"}, "Camera"},
		{router.Event{Kind: router.EventConnected, On: true}, []string{"/connected"}, "true"},
		{router.Event{Kind: router.EventOnline, On: false, Status: "error"}, []string{"/online", "/status"}, "false"},
		{router.Event{Kind: router.EventAudioFollowsVideo, On: true}, []string{"/audio-follows-video"}, "true"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Kind), func(t *testing.T) {
			msgs, err := eventMessages(prefix, tt.event)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != len(tt.topics) {
				t.Fatalf("got %d messages, want %d", len(msgs), len(tt.topics))
			}
			for i, m := range msgs {
				if m.topic != prefix+tt.topics[i] || !m.retained {
					t.Errorf("message %d = %s retained=%v", i, m.topic, m.retained)
				}
			}
			if string(msgs[0].payload) != tt.payload {
				t.Errorf("payload = %s, want %s", msgs[0].payload, tt.payload)
			}
		})
	}
}

// ============================================================
// Command Handling
// ============================================================

type recordingTransport struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingTransport) SendLine(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
	return nil
}

func (r *recordingTransport) Connected() bool { return true }

func (r *recordingTransport) sent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "")
}

func TestHandle(t *testing.T) {
	tr := &recordingTransport{}
	dev := router.New(zap.NewNop(), router.Options{
		Key:      "hall",
		DeviceID: "255",
		Outputs:  []config.EntryConfig{{Index: 1, Name: "Projector"}},
	}, tr)
	dev.Start(context.Background())
	defer dev.Close()

	b := New(zap.NewNop(), dev, config.MQTTConfig{TopicPrefix: prefix})
	if !strings.HasPrefix(b.cfg.ClientID, "matrixctl-") {
		t.Errorf("client id = %q", b.cfg.ClientID)
	}

	b.handle(prefix+"/outputs/1/video/set", []byte("5"))
	b.handle(prefix+"/gates/video/set", []byte("1"))
	b.handle(prefix+"/audio-follows-video/set", []byte("on"))
	b.handle(prefix+"/clear/set", []byte("audio"))
	b.handle(prefix+"/outputs/9/video/set", []byte("5"))
	b.handle(prefix+"/bogus/set", nil)

	if !dev.AudioFollowsVideo() || !dev.GateOpen(purelink.SignalVideo) {
		t.Errorf("afv %v gate %v", dev.AudioFollowsVideo(), dev.GateOpen(purelink.SignalVideo))
	}

	want := "*255VCI05O01!\r*255ADALLIO!\r"
	deadline := time.Now().Add(2 * time.Second)
	for tr.sent() != want {
		if time.Now().After(deadline) {
			t.Fatalf("sent %q, want %q", tr.sent(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
