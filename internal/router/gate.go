// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"sync"
	"time"

	"github.com/Thermoquad/matrixctl/pkg/purelink"
)

// DefaultGateDebounce is how long a gate stays open after Close.
const DefaultGateDebounce = time.Second

// Gate decides when pending route requests of one signal level reach the
// wire. Open flushes immediately; Close only takes effect after the
// debounce delay passes without another Open or Close, so a control
// surface pulsing its "enter" signal produces one flush pass.
type Gate struct {
	signal purelink.SignalType
	delay  time.Duration
	sweep  func()

	mu      sync.Mutex
	open    bool
	stopped bool
	timer   *time.Timer
	gen     uint64 // bumped on every transition; stale timer callbacks compare against it
}

func newGate(signal purelink.SignalType, delay time.Duration, sweep func()) *Gate {
	if delay <= 0 {
		delay = DefaultGateDebounce
	}
	return &Gate{signal: signal, delay: delay, sweep: sweep}
}

// Signal returns the level this gate controls.
func (g *Gate) Signal() purelink.SignalType {
	return g.signal
}

// IsOpen reports whether requests currently commit immediately.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Open cancels any pending close, opens the gate and sweeps pending requests.
func (g *Gate) Open() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.gen++
	g.stopTimer()
	g.open = true
	g.mu.Unlock()

	g.sweep()
}

// Close restarts the debounce timer. The gate closes when it fires.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	g.gen++
	gen := g.gen
	g.stopTimer()
	g.timer = time.AfterFunc(g.delay, func() { g.expire(gen) })
}

// Stop closes the gate for good and cancels its timer.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	g.open = false
	g.gen++
	g.stopTimer()
}

func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gen != gen {
		return
	}
	g.open = false
	g.timer = nil
}

// stopTimer must be called with g.mu held.
func (g *Gate) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
