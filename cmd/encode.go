// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/spf13/cobra"
)

var (
	encodeOutput int
	encodeInput  int
	encodeSignal string
	encodePoll   bool
	encodeFrame  string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Print the command for a route or poll without connecting",
	Long: `Encode a switch or poll command for the configured device ID and
model and print it with the terminator escaped.

Useful for checking wiring with a terminal program.`,
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().IntVarP(&encodeOutput, "output", "o", 0, "Output number (1-999)")
	encodeCmd.Flags().IntVarP(&encodeInput, "input", "i", 0, "Input number (1-998, 999 for no source)")
	encodeCmd.Flags().StringVarP(&encodeSignal, "signal", "s", "av", "Signal level (video, audio, av)")
	encodeCmd.Flags().BoolVar(&encodePoll, "poll", false, "Encode a status poll instead of a route")
	encodeCmd.Flags().StringVar(&encodeFrame, "frame", "", "Frame format (canonical, crlf, lf)")
	_ = encodeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(encodeCmd)
}

func runEncode(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	signal, err := purelink.ParseSignalType(encodeSignal)
	if err != nil {
		return err
	}

	frame := cfg.Device.FrameFormat()
	if encodeFrame != "" {
		if frame, err = purelink.ParseFrameFormat(encodeFrame); err != nil {
			return err
		}
	}
	enc := purelink.NewEncoder(string(cfg.Device.DeviceID), cfg.Device.ModelValue(), frame)

	var command string
	switch {
	case encodePoll && signal == purelink.SignalAudioVideo:
		video, err := enc.Poll(purelink.SignalVideo, encodeOutput)
		if err != nil {
			return err
		}
		audio, err := enc.Poll(purelink.SignalAudio, encodeOutput)
		if err != nil {
			return err
		}
		command = video + audio
	case encodePoll:
		command, err = enc.Poll(signal, encodeOutput)
	default:
		if !cmd.Flags().Changed("input") {
			return fmt.Errorf("--input is required for a route")
		}
		command, err = enc.Route(signal, encodeInput, encodeOutput)
	}
	if err != nil {
		return err
	}

	fmt.Println(purelink.FormatCommand(command))
	return nil
}
