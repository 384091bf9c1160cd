// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	logLevel   string

	// Serial connection flags
	portName string
	baudRate int

	// TCP connection flags
	tcpAddress string

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Device flags
	deviceID    string
	deviceModel int
)

var rootCmd = &cobra.Command{
	Use:   "matrixctl",
	Short: "PureLink/MediaAxis matrix switcher control",
	Long: `matrixctl - Control and monitor PureLink/MediaAxis AV matrix switchers.

Routes video and audio inputs to outputs, tracks switcher feedback and
exposes the matrix over HTTP, MQTT and Redis.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  TCP:       --host 10.0.0.20:23
  WebSocket: --url ws://host/path [--username user]

Flags override values from --config. For WebSocket authentication, the
password is read from the MATRIXCTL_PASSWORD environment variable, or
prompted interactively if not set. The --password flag is intentionally
not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .toml or .json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only, default 9600)")

	// TCP connection flags
	rootCmd.PersistentFlags().StringVar(&tcpAddress, "host", "", "TCP address of a serial bridge (host:port)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Device flags
	rootCmd.PersistentFlags().StringVar(&deviceID, "device-id", "", "Switcher device ID (3 digits, default 999)")
	rootCmd.PersistentFlags().IntVar(&deviceModel, "model", -1, "Switcher model (0 standard, 1 extended)")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads --config when given and applies the command line
// overrides. Normalization fixes are logged.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	t := &cfg.Transport
	switch {
	case portName != "":
		t.Kind, t.Port = config.TransportSerial, portName
	case tcpAddress != "":
		t.Kind, t.Address = config.TransportTCP, tcpAddress
	case wsURL != "":
		t.Kind, t.URL = config.TransportWebSocket, wsURL
	}
	if baudRate > 0 {
		t.Baud = baudRate
	}
	if wsUsername != "" {
		t.Username = wsUsername
	}
	if wsNoSSLVerify {
		t.NoSSLVerify = true
	}
	if deviceID != "" {
		cfg.Device.DeviceID = config.ID(deviceID)
	}
	if deviceModel >= 0 {
		cfg.Device.Model = deviceModel
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	for _, fix := range cfg.Normalize() {
		log.Warn("config adjusted", zap.String("fix", fix))
	}
	return cfg, nil
}

func buildLogger(level string, dev bool) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	if dev {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.TimeKey = ""
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true

	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	logConfig.Level.SetLevel(lvl)
	return logConfig.Build()
}

// setup loads the configuration and builds the logger. The console logger
// is used until the configured one exists.
func setup() (*config.Config, *zap.Logger, error) {
	boot, err := buildLogger(logLevel, true)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(boot)
	if err != nil {
		return nil, nil, err
	}
	log, err := buildLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// connectDevice wires a device to a reconnecting transport client. The
// caller starts both.
func connectDevice(log *zap.Logger, cfg *config.Config, opts router.Options) (*router.Device, *transport.Client, error) {
	if cfg.Transport.Kind == "" {
		return nil, nil, fmt.Errorf("no connection configured: use --port, --host or --url")
	}

	password := ""
	if cfg.Transport.Kind == config.TransportWebSocket && cfg.Transport.Username != "" {
		p, err := transport.GetPassword()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read password: %w", err)
		}
		password = p
	}

	client := transport.NewClient(log, transport.OptionsFromConfig(cfg.Transport, password))
	dev := router.New(log, opts, client)
	client.OnLine = dev.HandleLine
	client.OnConnect = dev.SetConnected
	client.OnOverflow = dev.DropLine
	return dev, client, nil
}
