// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"go.uber.org/zap"
)

// dispatcher routes decoded feedback lines to outputs.
type dispatcher struct {
	log      *zap.Logger
	decoder  *purelink.Decoder
	registry *Registry
	stats    *purelink.Statistics
	alive    func()
	observe  func(*purelink.Response, error)
}

func newDispatcher(log *zap.Logger, decoder *purelink.Decoder, registry *Registry, stats *purelink.Statistics, alive func()) *dispatcher {
	return &dispatcher{
		log:      log.Named("dispatcher"),
		decoder:  decoder,
		registry: registry,
		stats:    stats,
		alive:    alive,
	}
}

// handleLine processes one inbound line. It never panics; anything that
// cannot be applied is logged and dropped.
func (d *dispatcher) handleLine(line string) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("recovered while handling feedback",
				zap.Any("panic", r),
				zap.String("line", line),
			)
		}
	}()

	resp, err := d.decoder.Decode(line)
	if resp == nil {
		return
	}

	if d.alive != nil {
		d.alive()
	}
	d.stats.Update(resp, err)
	if d.observe != nil {
		d.observe(resp, err)
	}

	if err != nil {
		d.log.Warn("dropping malformed feedback", zap.String("line", resp.Line), zap.Error(err))
		return
	}

	switch resp.Category {
	case purelink.CategoryError:
		d.log.Error("switcher rejected command", zap.String("line", resp.Line))
		return
	case purelink.CategoryInfo:
		d.log.Debug("switcher info", zap.String("line", resp.Line))
		return
	case purelink.CategoryUnrecognized:
		d.log.Debug("ignoring unrecognized line", zap.String("line", resp.Line))
		return
	}

	signal, ok := resp.Category.Signal()
	if !ok {
		return
	}
	for _, r := range resp.Routes {
		out := d.registry.Output(r.Output)
		if out == nil {
			d.stats.CountUnknownOutput()
			continue
		}
		out.UpdateCurrentInput(signal, r.Input)
	}
}
