// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/internal/transport"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	drainTimeout   = 2 * time.Second
)

// session is a short-lived device connection used by one-shot commands.
type session struct {
	dev    *router.Device
	client *transport.Client
	cancel context.CancelFunc
	done   chan struct{}
}

// openSession connects to the switcher and waits until the link is up.
// The communication monitor is disabled; one-shot commands poll on demand.
func openSession(ctx context.Context, log *zap.Logger, cfg *config.Config, opts router.Options) (*session, error) {
	opts.PollInterval = 0

	dev, client, err := connectDevice(log, cfg, opts)
	if err != nil {
		return nil, err
	}

	connected := make(chan struct{}, 1)
	unsubscribe := dev.Subscribe(func(e router.Event) {
		if e.Kind == router.EventConnected && e.On {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	s := &session{dev: dev, client: client, cancel: cancel, done: make(chan struct{})}

	dev.Start(ctx)
	go func() {
		defer close(s.done)
		_ = client.Run(ctx)
	}()

	select {
	case <-connected:
		return s, nil
	case <-time.After(connectTimeout):
		s.Close()
		return nil, fmt.Errorf("no connection to %s after %v", transport.OptionsFromConfig(cfg.Transport, "").Describe(), connectTimeout)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// Close gives queued commands a moment to reach the wire, then stops the
// device and drops the link.
func (s *session) Close() {
	deadline := time.Now().Add(drainTimeout)
	for s.dev.Status().QueuedCommands > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.dev.Close()
	s.cancel()
	<-s.done
}
