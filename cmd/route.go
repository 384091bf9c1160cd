// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/spf13/cobra"
)

var (
	routeOutput int
	routeInput  int
	routeSignal string
	routeWait   time.Duration
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route an input to an output",
	Long: `Request one route, pulse the gate for its level and wait for the
switcher to confirm it.

Use --input 999 to disconnect the output. With --signal av, audio and
video are switched together. --wait 0 returns as soon as the command is
sent.`,
	RunE: runRoute,
}

func init() {
	routeCmd.Flags().IntVarP(&routeOutput, "output", "o", 0, "Output number (1-999)")
	routeCmd.Flags().IntVarP(&routeInput, "input", "i", 0, "Input number (1-998, 999 for no source)")
	routeCmd.Flags().StringVarP(&routeSignal, "signal", "s", "av", "Signal level (video, audio, av)")
	routeCmd.Flags().DurationVar(&routeWait, "wait", 3*time.Second, "How long to wait for confirmation")
	_ = routeCmd.MarkFlagRequired("output")
	_ = routeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	signal, err := purelink.ParseSignalType(routeSignal)
	if err != nil {
		return err
	}
	if err := purelink.ValidateOutput(routeOutput); err != nil {
		return err
	}
	if err := purelink.ValidateInput(routeInput); err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := router.OptionsFromConfig(cfg.Device)
	opts.Outputs = ensureOutput(opts.Outputs, routeOutput)

	s, err := openSession(cmd.Context(), log, cfg, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	var confirmed func(context.Context) error
	if routeWait > 0 {
		confirmed = awaitRoute(s.dev, routeOutput, routeInput, signal)
	}

	if err := s.dev.RequestRoute(routeOutput, routeInput, signal); err != nil {
		return err
	}
	s.dev.SetGateOpen(signal, true)
	s.dev.SetGateOpen(signal, false)

	fmt.Printf("Routing %s to output %d (%s)\n", purelink.FormatInput(routeInput), routeOutput, signal)
	if confirmed == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), routeWait)
	defer cancel()
	if err := confirmed(ctx); err != nil {
		return fmt.Errorf("route not confirmed: %w", err)
	}
	fmt.Println("Confirmed")
	return nil
}

// awaitRoute subscribes before the request is made and returns a function
// that blocks until every level of signal reports input on output.
func awaitRoute(dev *router.Device, output, input int, signal purelink.SignalType) func(context.Context) error {
	want := input
	if want == purelink.NoSource {
		want = 0
	}

	var mu sync.Mutex
	pending := map[router.EventKind]bool{}
	if signal != purelink.SignalAudio {
		pending[router.EventVideoRoute] = true
	}
	if signal != purelink.SignalVideo {
		pending[router.EventAudioRoute] = true
	}
	done := make(chan struct{})

	unsubscribe := dev.Subscribe(func(e router.Event) {
		if e.Index != output || e.Value != want {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !pending[e.Kind] {
			return
		}
		delete(pending, e.Kind)
		if len(pending) == 0 {
			close(done)
		}
	})

	return func(ctx context.Context) error {
		defer unsubscribe()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ensureOutput adds output to the configured list when it is missing so a
// bare command line needs no config file.
func ensureOutput(outputs []config.EntryConfig, output int) []config.EntryConfig {
	for _, o := range outputs {
		if o.Index == output {
			return outputs
		}
	}
	return append(outputs, config.EntryConfig{Index: output})
}
