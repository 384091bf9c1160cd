// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configDump bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load --config, apply the command line flags and defaults, and print
the result as YAML.

With --dump the device options are printed as the driver receives them,
including derived timeouts and the parsed model and frame format.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configDump, "dump", false, "Dump the derived device options")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if configDump {
		opts := router.OptionsFromConfig(cfg.Device)
		spew.Fdump(os.Stdout, opts)
		return nil
	}

	// Credentials stay out of the output.
	cfg.MQTT.Password = ""

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
