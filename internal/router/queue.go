// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"sync"
)

// commandQueue is an unbounded FIFO of framed commands drained by a single
// worker. Pushing never blocks, so commits can enqueue while holding an
// output lock.
type commandQueue struct {
	mu      sync.Mutex
	pending []string
	closed  bool
	wake    chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{wake: make(chan struct{}, 1)}
}

// push appends a command. Returns false once the queue is closed.
func (q *commandQueue) push(cmd string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *commandQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		return "", false
	}
	cmd := q.pending[0]
	q.pending[0] = ""
	q.pending = q.pending[1:]
	return cmd, true
}

// len returns the number of unsent commands.
func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// run drains the queue in order until ctx is cancelled.
func (q *commandQueue) run(ctx context.Context, send func(string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			cmd, ok := q.pop()
			if !ok {
				break
			}
			send(cmd)
		}
	}
}

// close rejects further pushes and discards unsent commands.
// Returns how many were discarded.
func (q *commandQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := len(q.pending)
	q.pending = nil
	return n
}
