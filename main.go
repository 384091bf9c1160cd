// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// matrixctl - PureLink/MediaAxis Matrix Switcher Control
//
// A driver and CLI for routing and monitoring PureLink/MediaAxis AV
// matrix switchers over serial, TCP or WebSocket links.

package main

import (
	"os"

	"github.com/Thermoquad/matrixctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
