// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/matrixctl/internal/eventbus"
	"github.com/Thermoquad/matrixctl/internal/httpapi"
	"github.com/Thermoquad/matrixctl/internal/mqttbridge"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	httpListen  string
	enableHTTP  bool
	enableMQTT  bool
	enableRedis bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the switcher driver with its HTTP, MQTT and Redis surfaces",
	Long: `Keep a connection to the switcher open, track its routes and serve
control surfaces until interrupted.

Surfaces are enabled in the config file or with --http, --mqtt and
--redis. The switcher link reconnects automatically.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpListen, "listen", "", "HTTP listen address (implies --http)")
	serveCmd.Flags().BoolVar(&enableHTTP, "http", false, "Enable the HTTP API")
	serveCmd.Flags().BoolVar(&enableMQTT, "mqtt", false, "Enable the MQTT bridge")
	serveCmd.Flags().BoolVar(&enableRedis, "redis", false, "Enable the Redis event publisher")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if httpListen != "" {
		cfg.HTTP.Listen = httpListen
		cfg.HTTP.Enabled = true
	}
	cfg.HTTP.Enabled = cfg.HTTP.Enabled || enableHTTP
	cfg.MQTT.Enabled = cfg.MQTT.Enabled || enableMQTT
	cfg.Redis.Enabled = cfg.Redis.Enabled || enableRedis

	dev, client, err := connectDevice(log, cfg, router.OptionsFromConfig(cfg.Device))
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	log.Info("starting",
		zap.String("device", dev.Key()),
		zap.String("name", dev.Name()),
		zap.String("device_id", string(cfg.Device.DeviceID)),
		zap.Int("inputs", len(cfg.Device.Inputs)),
		zap.Int("outputs", len(cfg.Device.Outputs)),
	)

	dev.Start(ctx)
	defer dev.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(ctx) })

	if cfg.HTTP.Enabled {
		engine := httpapi.NewEngine(log, dev, httpapi.Options{Dev: cfg.HTTP.Dev, AccessLog: true})
		srv := httpapi.NewServer(cfg.HTTP.Listen, engine)
		g.Go(func() error { return httpapi.Serve(ctx, log, srv) })
	}

	if cfg.MQTT.Enabled {
		bridge := mqttbridge.New(log, dev, cfg.MQTT)
		g.Go(func() error { return bridge.Run(ctx) })
	}

	if cfg.Redis.Enabled {
		rdb := eventbus.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		eventbus.Ping(ctx, log, rdb)
		pub := eventbus.NewPublisher(log, dev, rdb, cfg.Redis.Channel)
		g.Go(func() error { return pub.Run(ctx) })
	}

	err = g.Wait()
	log.Info("stopped", zap.String("statistics", dev.Statistics().String()))
	return err
}
