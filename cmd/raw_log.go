// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display switcher feedback in human-readable format",
	Long: `Continuously decode and display switcher feedback lines as they arrive.

Each line is shown with its timestamp, classification and any routes it
reports. A full poll is sent on connect so the current routes appear
first. Statistics are printed on exit.

Supports serial, TCP and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := router.OptionsFromConfig(cfg.Device)
	opts.OnLine = func(r *purelink.Response, err error) {
		fmt.Print(purelink.FormatResponse(r))
		if err != nil {
			fmt.Printf("  [ERROR] %v\n", err)
		}
	}

	s, err := openSession(cmd.Context(), log, cfg, opts)
	if err != nil {
		return err
	}

	fmt.Printf("matrixctl - Raw Feedback Log\n")
	fmt.Printf("Connection: %s\n", s.client.Info())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	<-cmd.Context().Done()
	s.Close()

	fmt.Printf("\n%s", s.dev.Statistics().String())
	return nil
}
