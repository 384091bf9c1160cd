// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/spf13/cobra"
)

var (
	pingTimeout  int
	pingCount    int
	pingRouterID bool
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the switcher answers by querying its version",
	Long: `Send version queries to the switcher and wait for any reply that is
not route feedback.

With --router-id the router ID query is sent instead, which some
firmware answers when the version query is unsupported.

This is useful for verifying:
  - The link is established
  - The device ID matches the switcher
  - Commands reach the switcher and replies come back

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().BoolVar(&pingRouterID, "router-id", false, "Query the router ID instead of the version")
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	replies := make(chan *purelink.Response, 16)
	opts := router.OptionsFromConfig(cfg.Device)
	opts.OnLine = func(r *purelink.Response, err error) {
		if err != nil || r.Category.CarriesRoutes() {
			return
		}
		select {
		case replies <- r:
		default:
		}
	}

	s, err := openSession(cmd.Context(), log, cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	fmt.Printf("matrixctl - Switcher Ping\n")
	fmt.Printf("Connection: %s\n", s.client.Info())
	fmt.Printf("Device ID: %s\n", s.dev.Encoder().DeviceID())
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	// Discard replies to the poll sent on connect.
	time.Sleep(200 * time.Millisecond)
drain:
	for {
		select {
		case <-replies:
		default:
			break drain
		}
	}

	successCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		startTime := time.Now()
		if pingRouterID {
			s.dev.CheckRouterID()
		} else {
			s.dev.CheckVersion()
		}

		select {
		case r := <-replies:
			rtt := time.Since(startTime)
			fmt.Printf("%s %q, rtt=%v\n", purelink.FormatCategory(r.Category), r.Line, rtt.Round(time.Millisecond))
			successCount++

		case <-time.After(time.Duration(pingTimeout) * time.Second):
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)

		case <-cmd.Context().Done():
			fmt.Println("interrupted")
			return nil
		}

		// Small delay between pings
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	failCount := pingCount - successCount
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(max(pingCount, 1))*100)

	if failCount > 0 {
		s.Close()
		os.Exit(1)
	}
	return nil
}
