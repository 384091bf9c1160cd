// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	pollSignal  string
	pollTimeout time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Query and print the current routes",
	Long: `Poll every configured output and print a table of the routes the
switcher reports.

Outputs that do not answer within --timeout are shown with their last
known state and counted in the summary.`,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().StringVarP(&pollSignal, "signal", "s", "all", "Levels to poll (video, audio, all)")
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 5*time.Second, "How long to wait for answers")
	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	signal, err := purelink.ParseSignalType(pollSignal)
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if len(cfg.Device.Outputs) == 0 {
		return fmt.Errorf("no outputs configured")
	}

	s, err := openSession(cmd.Context(), log, cfg, router.OptionsFromConfig(cfg.Device))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), pollTimeout)
	defer cancel()

	var reported int
	if signal == purelink.SignalAudioVideo {
		reported, err = s.dev.Refresh(ctx)
	} else {
		reported, err = pollLevel(ctx, s.dev, signal)
	}

	fmt.Println(renderRouteTable(s.dev.Outputs(), signal))
	fmt.Printf("%d of %d outputs reported\n", reported, len(cfg.Device.Outputs))
	return err
}

// pollLevel polls one level of every output and waits for the answers.
func pollLevel(ctx context.Context, dev *router.Device, signal purelink.SignalType) (int, error) {
	kind := router.EventVideoRoute
	if signal == purelink.SignalAudio {
		kind = router.EventAudioRoute
	}

	outputs := dev.Outputs()
	var mu sync.Mutex
	seen := make(map[int]bool, len(outputs))
	done := make(chan struct{})

	unsubscribe := dev.Subscribe(func(e router.Event) {
		if e.Kind != kind {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if _, ok := dev.Output(e.Index); !ok || seen[e.Index] {
			return
		}
		seen[e.Index] = true
		if len(seen) == len(outputs) {
			close(done)
		}
	})
	defer unsubscribe()

	if signal == purelink.SignalAudio {
		dev.PollAudioOutputs()
	} else {
		dev.PollVideoOutputs()
	}

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < len(outputs) {
		return len(seen), fmt.Errorf("poll: %d of %d outputs reported: %w", len(seen), len(outputs), ctx.Err())
	}
	return len(seen), nil
}

func renderRouteTable(outputs []router.OutputState, signal purelink.SignalType) string {
	headers := []string{"Output", "Name"}
	if signal != purelink.SignalAudio {
		headers = append(headers, "Video")
	}
	if signal != purelink.SignalVideo {
		headers = append(headers, "Audio")
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, o := range outputs {
		row := []string{strconv.Itoa(o.Index), o.Name}
		if signal != purelink.SignalAudio {
			row = append(row, sourceCell(o.CurrentVideo, o.CurrentVideoName))
		}
		if signal != purelink.SignalVideo {
			row = append(row, sourceCell(o.CurrentAudio, o.CurrentAudioName))
		}
		t.Row(row...)
	}
	return t.Render()
}

func sourceCell(input int, name string) string {
	if input == 0 {
		return purelink.NoSourceName
	}
	return fmt.Sprintf("%d %s", input, name)
}
