// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"go.uber.org/zap/zaptest"
)

const (
	testDebounce = 50 * time.Millisecond
	waitTimeout  = 2 * time.Second
	quietPeriod  = 100 * time.Millisecond
)

// fakeTransport records every command written by the queue worker.
// respond, when set, is called on the worker goroutine and may feed
// lines back into the device.
type fakeTransport struct {
	mu        sync.Mutex
	lines     []string
	connected bool
	err       error
	respond   func(cmd string)

	sent chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, sent: make(chan string, 1024)}
}

func (f *fakeTransport) SendLine(text string) error {
	f.mu.Lock()
	f.lines = append(f.lines, text)
	err := f.err
	respond := f.respond
	f.mu.Unlock()

	f.sent <- text
	if respond != nil && err == nil {
		respond(text)
	}
	return err
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// next waits for the next written command.
func (f *fakeTransport) next(t *testing.T) string {
	t.Helper()
	select {
	case cmd := <-f.sent:
		return cmd
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a command")
		return ""
	}
}

// expect waits for the next command and compares it.
func (f *fakeTransport) expect(t *testing.T, want string) {
	t.Helper()
	if got := f.next(t); got != want {
		t.Fatalf("sent %q, want %q", got, want)
	}
}

// expectQuiet fails if anything is written during the quiet period.
func (f *fakeTransport) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case cmd := <-f.sent:
		t.Fatalf("unexpected command %q", cmd)
	case <-time.After(quietPeriod):
	}
}

func testOptions() Options {
	return Options{
		Key:          "test",
		Name:         "Test Matrix",
		DeviceID:     "255",
		Model:        purelink.ModelLegacy,
		Frame:        purelink.FrameCanonical,
		GateDebounce: testDebounce,
		Inputs: []config.EntryConfig{
			{Index: 1, Name: "Camera"},
			{Index: 5, Name: "Laptop"},
			{Index: 9, Name: "Podium", AudioName: "Podium Mic"},
		},
		Outputs: []config.EntryConfig{
			{Index: 1, Name: "Projector"},
			{Index: 2, Name: "Monitor"},
			{Index: 3, Name: "Recorder"},
		},
	}
}

// startDevice builds and starts a device that is closed with the test.
func startDevice(t *testing.T, opts Options) (*Device, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	d := New(zaptest.NewLogger(t), opts, ft)
	d.Start(context.Background())
	t.Cleanup(d.Close)
	return d, ft
}
