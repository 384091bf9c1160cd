// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/internal/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	eventBufferSize = 256
	batchInterval   = 50 * time.Millisecond
)

var controlLogFile string

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for routing the matrix",
	Long: `Route the matrix from an interactive terminal UI.

Features:
  - Output list with the current video and audio routes
  - Input entry; enter pulses the gate for the selected level
  - Audio-follows-video toggle
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Tab switches between the output list and the input field. Arrow keys
navigate the output list.

Supports serial, TCP and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	controlCmd.Flags().StringVar(&controlLogFile, "log-file", "", "Write logs to this file (discarded by default)")
	rootCmd.AddCommand(controlCmd)
}

// eventForwarder buffers device events for the TUI. Device callbacks must
// not block, so events beyond the buffer are dropped and counted.
type eventForwarder struct {
	events  chan router.Event
	dropped atomic.Int64
}

func newEventForwarder() *eventForwarder {
	return &eventForwarder{events: make(chan router.Event, eventBufferSize)}
}

func (f *eventForwarder) push(e router.Event) {
	select {
	case f.events <- e:
	default:
		f.dropped.Add(1)
	}
}

// run sends batched events to the program at a fixed rate.
func (f *eventForwarder) run(ctx context.Context, p *tea.Program) {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var batch eventBatchMsg
		drain:
			for {
				select {
				case e := <-f.events:
					batch.events = append(batch.events, e)
				default:
					break drain
				}
			}
			batch.dropped = f.dropped.Swap(0)
			if len(batch.events) > 0 || batch.dropped > 0 {
				p.Send(batch)
			}
		}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}

	// The terminal belongs to the TUI; logs go to a file or nowhere.
	log := zap.NewNop()
	if controlLogFile != "" {
		if log, err = buildFileLogger(cfg.Log.Level, controlLogFile); err != nil {
			return err
		}
	}
	defer log.Sync()

	dev, client, err := connectDevice(log, cfg, router.OptionsFromConfig(cfg.Device))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	fwd := newEventForwarder()
	unsubscribe := dev.Subscribe(fwd.push)
	defer unsubscribe()

	dev.Start(ctx)
	defer dev.Close()

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		_ = client.Run(ctx)
	}()

	connInfo := transport.OptionsFromConfig(cfg.Transport, "").Describe()
	m := initialControlModel(dev, connInfo)

	// Create TUI program with alt screen and mouse support
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	go fwd.run(ctx, p)

	_, err = p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	<-clientDone
	if err != nil && !interrupted {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

func buildFileLogger(level, path string) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.OutputPaths = []string{path}
	logConfig.ErrorOutputPaths = []string{path}
	logConfig.DisableStacktrace = true

	lvl := zap.InfoLevel
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logConfig.Level.SetLevel(lvl)
	return logConfig.Build()
}
