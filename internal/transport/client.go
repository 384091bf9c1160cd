// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotConnected is returned by SendLine while the link is down.
var ErrNotConnected = errors.New("not connected")

const (
	defaultMinBackoff = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// DialFunc opens one connection attempt.
type DialFunc func(ctx context.Context) (Connection, string, error)

// Client keeps a link to the switcher open, reconnecting with exponential
// backoff, and delivers every received line to OnLine in arrival order
// from a single goroutine.
type Client struct {
	log  *zap.Logger
	dial DialFunc

	// OnLine receives each inbound line. Set before Run.
	OnLine func(line string)
	// OnConnect is told about every connect and disconnect. Set before Run.
	OnConnect func(connected bool)
	// OnOverflow is called for each line dropped for being too long.
	OnOverflow func()

	MinBackoff time.Duration
	MaxBackoff time.Duration

	mu   sync.RWMutex
	conn Connection
	info string

	writeMu sync.Mutex
}

// NewClient creates a client that dials with opts.
func NewClient(log *zap.Logger, opts Options) *Client {
	return NewClientWithDialer(log, func(ctx context.Context) (Connection, string, error) {
		return Open(ctx, opts)
	})
}

// NewClientWithDialer creates a client around a custom dial function.
func NewClientWithDialer(log *zap.Logger, dial DialFunc) *Client {
	return &Client{
		log:        log.Named("transport"),
		dial:       dial,
		MinBackoff: defaultMinBackoff,
		MaxBackoff: defaultMaxBackoff,
	}
}

func (c *Client) getConn() (Connection, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn, c.info
}

func (c *Client) setConn(conn Connection, info string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.info = info
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	conn, _ := c.getConn()
	return conn != nil
}

// Info describes the current connection, empty when disconnected.
func (c *Client) Info() string {
	_, info := c.getConn()
	return info
}

// SendLine writes one framed command.
func (c *Client) SendLine(text string) error {
	conn, _ := c.getConn()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := conn.Write([]byte(text)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Run connects and reads until ctx is cancelled, reconnecting whenever the
// link drops. It returns nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.MinBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, info, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("connect failed", zap.Error(err), zap.Duration("retry", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.MaxBackoff {
				backoff = c.MaxBackoff
			}
			continue
		}

		backoff = c.MinBackoff
		c.setConn(conn, info)
		c.log.Info("connected", zap.String("link", info))
		if c.OnConnect != nil {
			c.OnConnect(true)
		}

		readErr := c.readLines(ctx, conn)

		c.setConn(nil, "")
		conn.Close()
		if c.OnConnect != nil {
			c.OnConnect(false)
		}

		if ctx.Err() != nil {
			c.log.Info("disconnected", zap.String("link", info))
			return nil
		}
		c.log.Warn("connection lost", zap.String("link", info), zap.Error(readErr))
	}
}

// readLines blocks until the connection fails or ctx is cancelled.
func (c *Client) readLines(ctx context.Context, conn Connection) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	scanner := NewLineScanner(conn, c.OnOverflow)
	for scanner.Scan() {
		if c.OnLine != nil {
			c.OnLine(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("connection closed by peer")
}
