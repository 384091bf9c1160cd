// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the communication health of the switcher link.
type Status int

const (
	StatusError Status = iota // nothing heard within the error timeout
	StatusWarning
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	default:
		return "error"
	}
}

// Online reports whether the status counts as reachable.
func (s Status) Online() bool {
	return s != StatusError
}

const monitorCheckInterval = time.Second

// monitor polls the switcher periodically and grades the link by how long
// it has been since any line was received.
type monitor struct {
	log            *zap.Logger
	pollInterval   time.Duration
	warningTimeout time.Duration
	errorTimeout   time.Duration
	poll           func()
	onChange       func(Status)
	now            func() time.Time

	// notifyMu serializes regrading with onChange so published changes
	// arrive in the order the grades were taken.
	notifyMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	status   Status
}

func newMonitor(log *zap.Logger, pollInterval, warningTimeout, errorTimeout time.Duration, poll func(), onChange func(Status)) *monitor {
	return &monitor{
		log:            log.Named("monitor"),
		pollInterval:   pollInterval,
		warningTimeout: warningTimeout,
		errorTimeout:   errorTimeout,
		poll:           poll,
		onChange:       onChange,
		now:            time.Now,
		status:         StatusError,
	}
}

// markAlive records that the switcher sent something.
func (m *monitor) markAlive() {
	m.mu.Lock()
	m.lastSeen = m.now()
	m.mu.Unlock()
	m.check()
}

// Status returns the current grade.
func (m *monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastSeen returns when the last line arrived, zero if never.
func (m *monitor) LastSeen() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

// check regrades the link and reports a change.
func (m *monitor) check() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	next := m.grade()
	prev := m.status
	m.status = next
	m.mu.Unlock()

	if next == prev {
		return
	}
	m.log.Info("communication status changed",
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
	)
	if m.onChange != nil {
		m.onChange(next)
	}
}

// grade must be called with m.mu held.
func (m *monitor) grade() Status {
	if m.lastSeen.IsZero() {
		return StatusError
	}
	silent := m.now().Sub(m.lastSeen)
	switch {
	case silent > m.errorTimeout:
		return StatusError
	case silent > m.warningTimeout:
		return StatusWarning
	default:
		return StatusOK
	}
}

// run polls immediately, then every pollInterval, and regrades the link
// every second until ctx is cancelled.
func (m *monitor) run(ctx context.Context) {
	m.poll()

	pollTicker := time.NewTicker(m.pollInterval)
	defer pollTicker.Stop()
	checkTicker := time.NewTicker(monitorCheckInterval)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			m.poll()
		case <-checkTicker.C:
			m.check()
		}
	}
}
