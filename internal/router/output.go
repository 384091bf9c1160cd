// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"sync"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
)

// OutputState is a read-only snapshot of an output.
type OutputState struct {
	Key              string `json:"key"`
	Index            int    `json:"index"`
	Name             string `json:"name"`
	VideoName        string `json:"videoName"`
	AudioName        string `json:"audioName"`
	CurrentVideo     int    `json:"currentVideo"`
	CurrentVideoName string `json:"currentVideoName"`
	CurrentAudio     int    `json:"currentAudio"`
	CurrentAudioName string `json:"currentAudioName"`
	RequestedVideo   int    `json:"requestedVideo"`
	RequestedAudio   int    `json:"requestedAudio"`
}

// Output tracks the confirmed and requested routes of one switcher output.
//
// Current values come only from switcher feedback. Requested values hold
// the latest uncommitted request per level; 0 means nothing is pending.
// A requested value is cleared exactly when it is encoded into a command,
// and the command is handed to send while the output lock is held so two
// commits for the same output can never be reordered.
type Output struct {
	Key       string
	Index     int
	Name      string
	VideoName string
	AudioName string

	enc    *purelink.Encoder
	inputs *Registry
	notify func(Event)

	mu             sync.Mutex
	currentVideo   int
	currentAudio   int
	requestedVideo int
	requestedAudio int
}

func newOutput(key string, e config.EntryConfig, enc *purelink.Encoder, inputs *Registry, notify func(Event)) *Output {
	return &Output{
		Key:       key,
		Index:     e.Index,
		Name:      e.Name,
		VideoName: defaultName(e.VideoName, e.Name),
		AudioName: defaultName(e.AudioName, e.Name),
		enc:       enc,
		inputs:    inputs,
		notify:    notify,
	}
}

// RequestRoute records a pending route. Input 0 is ignored; NoSource is
// kept as is and only becomes wire value 0 when encoded. SignalAudioVideo
// records the same input for both levels.
func (o *Output) RequestRoute(signal purelink.SignalType, input int) error {
	if input == 0 {
		return nil
	}
	if err := purelink.ValidateInput(input); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch signal {
	case purelink.SignalVideo:
		o.requestedVideo = input
	case purelink.SignalAudio:
		o.requestedAudio = input
	default:
		o.requestedVideo = input
		o.requestedAudio = input
	}
	return nil
}

// Pending returns the requested input for a level, 0 when none is pending.
// SignalAudioVideo reports the video level.
func (o *Output) Pending(signal purelink.SignalType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if signal == purelink.SignalAudio {
		return o.requestedAudio
	}
	return o.requestedVideo
}

// commitVideo sends the pending video request. The combined command is
// used when audio follows video, or when identical video and audio
// requests are pending; both requested values are then consumed.
func (o *Output) commitVideo(audioFollowsVideo bool, send func(string)) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.requestedVideo == 0 {
		return false, nil
	}

	if audioFollowsVideo || o.requestedVideo == o.requestedAudio {
		cmd, err := o.enc.Route(purelink.SignalAudioVideo, o.requestedVideo, o.Index)
		if err != nil {
			return false, err
		}
		o.requestedVideo = 0
		o.requestedAudio = 0
		send(cmd)
		return true, nil
	}

	cmd, err := o.enc.Route(purelink.SignalVideo, o.requestedVideo, o.Index)
	if err != nil {
		return false, err
	}
	o.requestedVideo = 0
	send(cmd)
	return true, nil
}

// commitAudio sends the pending audio request.
func (o *Output) commitAudio(send func(string)) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.requestedAudio == 0 {
		return false, nil
	}
	cmd, err := o.enc.Route(purelink.SignalAudio, o.requestedAudio, o.Index)
	if err != nil {
		return false, err
	}
	o.requestedAudio = 0
	send(cmd)
	return true, nil
}

// UpdateCurrentInput applies switcher feedback and fires a route event per
// updated level. SignalAudioVideo updates both levels under one lock.
func (o *Output) UpdateCurrentInput(signal purelink.SignalType, input int) {
	if input == purelink.NoSource {
		input = 0
	}

	o.mu.Lock()
	switch signal {
	case purelink.SignalVideo:
		o.currentVideo = input
	case purelink.SignalAudio:
		o.currentAudio = input
	default:
		o.currentVideo = input
		o.currentAudio = input
	}
	o.mu.Unlock()

	if o.notify == nil {
		return
	}
	if signal != purelink.SignalAudio {
		o.notify(o.routeEvent(purelink.SignalVideo, input))
	}
	if signal != purelink.SignalVideo {
		o.notify(o.routeEvent(purelink.SignalAudio, input))
	}
}

func (o *Output) routeEvent(signal purelink.SignalType, input int) Event {
	kind := EventVideoRoute
	if signal == purelink.SignalAudio {
		kind = EventAudioRoute
	}
	return Event{
		Kind:  kind,
		Index: o.Index,
		Value: input,
		Name:  o.inputs.InputName(input, signal),
	}
}

// PollCommand returns the status request for one level of this output.
func (o *Output) PollCommand(signal purelink.SignalType) (string, error) {
	return o.enc.Poll(signal, o.Index)
}

// CurrentInput returns the confirmed input for a level.
// SignalAudioVideo reports the video level.
func (o *Output) CurrentInput(signal purelink.SignalType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if signal == purelink.SignalAudio {
		return o.currentAudio
	}
	return o.currentVideo
}

// SourceName returns the display name of the input currently routed on a level.
func (o *Output) SourceName(signal purelink.SignalType) string {
	return o.inputs.InputName(o.CurrentInput(signal), signal)
}

// Snapshot returns a copy of the output state.
func (o *Output) Snapshot() OutputState {
	o.mu.Lock()
	s := OutputState{
		Key:            o.Key,
		Index:          o.Index,
		Name:           o.Name,
		VideoName:      o.VideoName,
		AudioName:      o.AudioName,
		CurrentVideo:   o.currentVideo,
		CurrentAudio:   o.currentAudio,
		RequestedVideo: o.requestedVideo,
		RequestedAudio: o.requestedAudio,
	}
	o.mu.Unlock()

	s.CurrentVideoName = o.inputs.InputName(s.CurrentVideo, purelink.SignalVideo)
	s.CurrentAudioName = o.inputs.InputName(s.CurrentAudio, purelink.SignalAudio)
	return s
}
