// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"fmt"
	"sort"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"go.uber.org/zap"
)

// Input is a switcher input. Immutable after construction.
type Input struct {
	Key       string `json:"key"`
	Index     int    `json:"index"`
	Name      string `json:"name"`
	VideoName string `json:"videoName"`
	AudioName string `json:"audioName"`
}

// NameFor returns the display name used for the given signal level.
func (i *Input) NameFor(signal purelink.SignalType) string {
	switch signal {
	case purelink.SignalVideo:
		return i.VideoName
	case purelink.SignalAudio:
		return i.AudioName
	default:
		return i.Name
	}
}

// Registry holds the configured inputs and outputs of one switcher.
// It is built once and never modified, so lookups need no locking.
type Registry struct {
	inputs     map[int]*Input
	inputList  []*Input
	outputs    map[int]*Output
	outputList []*Output
}

// NewRegistry builds the registry from configuration entries. Entries with
// an index outside 1..MaxIO, or repeating an earlier index, are skipped.
func NewRegistry(log *zap.Logger, deviceKey string, inputs, outputs []config.EntryConfig, enc *purelink.Encoder, notify func(Event)) *Registry {
	r := &Registry{
		inputs:  make(map[int]*Input, len(inputs)),
		outputs: make(map[int]*Output, len(outputs)),
	}

	for _, e := range inputs {
		if !r.acceptIndex(log, "input", e.Index, r.inputs[e.Index] != nil) {
			continue
		}
		in := &Input{
			Key:       fmt.Sprintf("%s-input-%d", deviceKey, e.Index),
			Index:     e.Index,
			Name:      e.Name,
			VideoName: defaultName(e.VideoName, e.Name),
			AudioName: defaultName(e.AudioName, e.Name),
		}
		r.inputs[in.Index] = in
		r.inputList = append(r.inputList, in)
	}

	for _, e := range outputs {
		if !r.acceptIndex(log, "output", e.Index, r.outputs[e.Index] != nil) {
			continue
		}
		out := newOutput(fmt.Sprintf("%s-output-%d", deviceKey, e.Index), e, enc, r, notify)
		r.outputs[out.Index] = out
		r.outputList = append(r.outputList, out)
	}

	sort.Slice(r.inputList, func(i, j int) bool { return r.inputList[i].Index < r.inputList[j].Index })
	sort.Slice(r.outputList, func(i, j int) bool { return r.outputList[i].Index < r.outputList[j].Index })
	return r
}

func (r *Registry) acceptIndex(log *zap.Logger, kind string, index int, duplicate bool) bool {
	if index < 1 || index > purelink.MaxIO {
		log.Warn("skipping entry with out of range index", zap.String("kind", kind), zap.Int("index", index))
		return false
	}
	if duplicate {
		log.Warn("skipping duplicate entry", zap.String("kind", kind), zap.Int("index", index))
		return false
	}
	return true
}

// Input returns the input with the given index, or nil.
func (r *Registry) Input(index int) *Input {
	return r.inputs[index]
}

// Output returns the output with the given index, or nil.
func (r *Registry) Output(index int) *Output {
	return r.outputs[index]
}

// Inputs returns all inputs in ascending index order.
func (r *Registry) Inputs() []*Input {
	return r.inputList
}

// Outputs returns all outputs in ascending index order.
func (r *Registry) Outputs() []*Output {
	return r.outputList
}

// InputName resolves the display name of an input for a signal level.
// Unknown inputs, 0 and NoSource resolve to purelink.NoSourceName.
func (r *Registry) InputName(index int, signal purelink.SignalType) string {
	in := r.inputs[index]
	if in == nil {
		return purelink.NoSourceName
	}
	return in.NameFor(signal)
}

func defaultName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
