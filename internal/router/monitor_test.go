// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestMonitor_Grading(t *testing.T) {
	var changes []Status
	m := newMonitor(zaptest.NewLogger(t), time.Minute, 3*time.Minute, 5*time.Minute, func() {}, func(s Status) {
		changes = append(changes, s)
	})

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if m.Status() != StatusError {
		t.Fatalf("initial status = %s, want error", m.Status())
	}

	m.markAlive()
	if m.Status() != StatusOK {
		t.Fatalf("status after line = %s, want ok", m.Status())
	}

	tests := []struct {
		elapsed time.Duration
		want    Status
	}{
		{2 * time.Minute, StatusOK},
		{3*time.Minute + time.Second, StatusWarning},
		{5*time.Minute + time.Second, StatusError},
	}
	start := now
	for _, tt := range tests {
		now = start.Add(tt.elapsed)
		m.check()
		if got := m.Status(); got != tt.want {
			t.Errorf("after %v status = %s, want %s", tt.elapsed, got, tt.want)
		}
	}

	want := []Status{StatusOK, StatusWarning, StatusError}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %s, want %s", i, changes[i], want[i])
		}
	}
	if !m.LastSeen().Equal(start) {
		t.Errorf("last seen = %v, want %v", m.LastSeen(), start)
	}
}

func TestMonitor_ChangesPublishedInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		changes []Status
	)
	m := newMonitor(zaptest.NewLogger(t), time.Minute, 3*time.Minute, 5*time.Minute, func() {}, func(s Status) {
		mu.Lock()
		changes = append(changes, s)
		mu.Unlock()
	})

	var clock atomic.Int64
	m.now = func() time.Time { return time.Unix(0, clock.Load()) }

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			m.markAlive()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			clock.Add(int64(6 * time.Minute))
			m.check()
		}
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(changes) == 0 || changes[0] != StatusOK {
		t.Fatalf("changes = %v, want first change to ok", changes)
	}
	for i := 1; i < len(changes); i++ {
		if changes[i] == changes[i-1] {
			t.Fatalf("change %d repeats %s: published out of order", i, changes[i])
		}
	}
	if last := changes[len(changes)-1]; last != m.Status() {
		t.Errorf("last published = %s, status = %s", last, m.Status())
	}
}

func TestMonitor_RunPollsImmediately(t *testing.T) {
	var polls atomic.Int32
	m := newMonitor(zaptest.NewLogger(t), 20*time.Millisecond, time.Minute, time.Minute, func() { polls.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.run(ctx)
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done

	if n := polls.Load(); n < 2 {
		t.Errorf("polls = %d, want at least 2", n)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[Status]string{StatusOK: "ok", StatusWarning: "warning", StatusError: "error"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
	if StatusError.Online() || !StatusWarning.Online() {
		t.Error("Online grading wrong")
	}
}
