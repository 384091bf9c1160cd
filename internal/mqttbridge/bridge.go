// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mqttbridge mirrors device state to retained MQTT topics and
// accepts route, gate and poll commands on "<prefix>/.../set" topics.
package mqttbridge

import (
	"context"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	connectRetryInterval = 5 * time.Second
	keepAlive            = 30 * time.Second
	disconnectQuiesceMs  = 500
)

// Bridge connects one device to an MQTT broker.
type Bridge struct {
	log    *zap.Logger
	dev    *router.Device
	cfg    config.MQTTConfig
	prefix string
	qos    byte

	client mqtt.Client
	ctx    context.Context
}

// New creates a bridge. Nothing connects until Run.
func New(log *zap.Logger, dev *router.Device, cfg config.MQTTConfig) *Bridge {
	if cfg.ClientID == "" {
		cfg.ClientID = "matrixctl-" + uuid.New().String()[:8]
	}
	return &Bridge{
		log:    log.Named("mqtt"),
		dev:    dev,
		cfg:    cfg,
		prefix: cfg.TopicPrefix,
		qos:    byte(cfg.QoS),
	}
}

// Run connects, mirrors events until ctx is cancelled, then disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx = ctx

	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetClientID(b.cfg.ClientID).
		SetOnConnectHandler(b.connectHandler).
		SetConnectionLostHandler(b.connectLostHandler).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetMaxReconnectInterval(connectRetryInterval).
		SetKeepAlive(keepAlive).
		SetWill(b.prefix+"/"+topicBridge, "offline", b.qos, true)

	b.client = mqtt.NewClient(opts)

	unsubscribe := b.dev.Subscribe(b.publishEvent)
	defer unsubscribe()

	token := b.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return err
		}
	case <-ctx.Done():
		b.client.Disconnect(disconnectQuiesceMs)
		return nil
	}

	<-ctx.Done()

	if b.client.IsConnected() {
		b.client.Publish(b.prefix+"/"+topicBridge, b.qos, true, "offline").WaitTimeout(time.Second)
	}
	b.client.Disconnect(disconnectQuiesceMs)
	b.log.Info("disconnected from broker")
	return nil
}

// connectHandler runs on every (re)connect: subscribe, then republish the
// full state so retained topics are never stale.
func (b *Bridge) connectHandler(c mqtt.Client) {
	b.log.Info("connected to broker", zap.String("broker", b.cfg.Broker), zap.String("prefix", b.prefix))

	filters := make(map[string]byte)
	for _, f := range subscriptions(b.prefix) {
		filters[f] = b.qos
	}
	b.await(c.SubscribeMultiple(filters, b.messageHandler), "subscribe "+b.prefix)

	b.await(c.Publish(b.prefix+"/"+topicBridge, b.qos, true, "online"), topicBridge)
	for _, e := range b.dev.StateEvents() {
		b.publishEvent(e)
	}
}

func (b *Bridge) connectLostHandler(_ mqtt.Client, err error) {
	b.log.Error("broker connection lost", zap.Error(err))
}

func (b *Bridge) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	b.handle(msg.Topic(), msg.Payload())
}

// handle applies one command message.
func (b *Bridge) handle(topic string, payload []byte) {
	log := b.log.With(zap.String("topic", topic), zap.ByteString("payload", payload))

	cmd, err := parseCommand(b.prefix, topic, payload)
	if err != nil {
		log.Warn("ignoring command", zap.Error(err))
		return
	}
	log.Debug("command received")

	switch cmd.kind {
	case cmdRoute:
		if err := b.dev.RequestRoute(cmd.output, cmd.input, cmd.signal); err != nil {
			log.Warn("route rejected", zap.Error(err))
		}
	case cmdGate:
		b.dev.SetGateOpen(cmd.signal, cmd.on)
	case cmdAudioFollowsVideo:
		b.dev.SetAudioFollowsVideo(cmd.on)
	case cmdPoll:
		switch {
		case cmd.all:
			b.dev.Poll()
		case cmd.signal == purelink.SignalAudio:
			b.dev.PollAudioOutputs()
		default:
			b.dev.PollVideoOutputs()
		}
	case cmdClear:
		switch {
		case cmd.all:
			b.dev.ClearAllRoutes()
		case cmd.signal == purelink.SignalAudio:
			b.dev.ClearAudioRoutes()
		default:
			b.dev.ClearVideoRoutes()
		}
	}
}

// publishEvent runs on the device's publishing goroutine and must not
// block; delivery is confirmed asynchronously.
func (b *Bridge) publishEvent(e router.Event) {
	if b.client == nil || !b.client.IsConnectionOpen() {
		return
	}
	msgs, err := eventMessages(b.prefix, e)
	if err != nil {
		b.log.Error("encode event", zap.String("kind", string(e.Kind)), zap.Error(err))
		return
	}
	for _, m := range msgs {
		b.await(b.client.Publish(m.topic, b.qos, m.retained, m.payload), m.topic)
	}
}

func (b *Bridge) await(token mqtt.Token, what string) {
	go func() {
		select {
		case <-b.ctx.Done():
			return
		case <-token.Done():
			if err := token.Error(); err != nil {
				b.log.Error("mqtt operation failed", zap.String("op", what), zap.Error(err))
				return
			}
			b.log.Debug("mqtt operation done", zap.String("op", what))
		}
	}()
}
