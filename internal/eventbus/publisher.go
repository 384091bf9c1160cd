// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package eventbus forwards device events to a Redis pub/sub channel.
package eventbus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	eventBuffer    = 1024
	publishTimeout = 3 * time.Second
	pingTimeout    = 500 * time.Millisecond
)

// publisher is the subset of *redis.Client used here.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher sends every device event as JSON to one channel. Events are
// buffered; when Redis cannot keep up the oldest pending event is kept
// and new ones are dropped and counted.
type Publisher struct {
	log     *zap.Logger
	dev     *router.Device
	pub     publisher
	channel string

	events  chan router.Event
	dropped atomic.Int64
}

// NewRedisClient builds a client with the pool settings used across
// matrixctl.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})
}

// Ping logs connection diagnostics. A failed ping is not fatal; the
// client keeps retrying on each publish.
func Ping(ctx context.Context, log *zap.Logger, client *redis.Client) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	opts := client.Options()
	log = log.Named("redis").With(
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("max_retries", opts.MaxRetries),
	)

	start := time.Now()
	err := client.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
	} else {
		log.Info("connection established", zap.Duration("ping_rtt", elapsed))
	}
}

// NewPublisher creates a publisher for dev on channel.
func NewPublisher(log *zap.Logger, dev *router.Device, pub publisher, channel string) *Publisher {
	return &Publisher{
		log:     log.Named("redis"),
		dev:     dev,
		pub:     pub,
		channel: channel,
		events:  make(chan router.Event, eventBuffer),
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run forwards events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	unsubscribe := p.dev.Subscribe(p.enqueue)
	defer unsubscribe()

	p.log.Info("publishing events", zap.String("channel", p.channel))
	for {
		select {
		case <-ctx.Done():
			if n := p.Dropped(); n > 0 {
				p.log.Warn("events dropped", zap.Int64("count", n))
			}
			return nil
		case e := <-p.events:
			p.publish(ctx, e)
		}
	}
}

func (p *Publisher) enqueue(e router.Event) {
	select {
	case p.events <- e:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) publish(ctx context.Context, e router.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.log.Error("encode event", zap.String("kind", string(e.Kind)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.pub.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Warn("publish failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}
