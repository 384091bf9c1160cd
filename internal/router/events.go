// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"sync"
	"time"
)

// EventKind identifies what changed.
type EventKind string

const (
	EventConnected         EventKind = "connected"
	EventOnline            EventKind = "online"
	EventVideoRoute        EventKind = "videoRoute"
	EventAudioRoute        EventKind = "audioRoute"
	EventInputName         EventKind = "inputName"
	EventOutputName        EventKind = "outputName"
	EventAudioFollowsVideo EventKind = "audioFollowsVideo"
)

// Event is a change notification for control surfaces.
//
// Route events carry the output in Index, the input in Value and the
// resolved source name in Name. Name events carry the entity index and
// name. Connected, Online and AudioFollowsVideo events use On; Online
// events also carry the monitor Status.
type Event struct {
	Kind   EventKind `json:"kind"`
	Device string    `json:"device"`
	Time   time.Time `json:"time"`
	Index  int       `json:"index,omitempty"`
	Value  int       `json:"value"`
	Name   string    `json:"name,omitempty"`
	On     bool      `json:"on"`
	Status string    `json:"status,omitempty"`
}

// hub fans events out to subscribers. Callbacks run synchronously on the
// publishing goroutine and must not block.
type hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func newHub() *hub {
	return &hub{subs: make(map[int]func(Event))}
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *hub) publish(e Event) {
	h.mu.RLock()
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
