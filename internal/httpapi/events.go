// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventBuffer  = 256
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin checks are left to the CORS and proxy layers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents upgrades to a WebSocket and streams device events as JSON
// text messages. The stream opens with a snapshot of the full state. A
// client that falls behind by more than eventBuffer events is dropped.
func (h *MatrixHandler) StreamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		c.Error(err)
		return
	}
	defer conn.Close()

	log := h.log.With(zap.String("request_id", GetRequestID(c)), zap.String("client_ip", c.ClientIP()))
	log.Info("event stream opened")

	events := make(chan router.Event, eventBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	// The subscriber runs on the publishing goroutine; it must never block.
	unsubscribe := h.dev.Subscribe(func(e router.Event) {
		select {
		case events <- e:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	for _, e := range h.dev.StateEvents() {
		if err := h.writeEvent(conn, e); err != nil {
			log.Debug("event stream write failed", zap.Error(err))
			return
		}
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Info("event stream closed by client")
			return
		case <-c.Request.Context().Done():
			return
		case <-overflow:
			log.Warn("event stream client too slow, disconnecting")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
				time.Now().Add(writeTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case e := <-events:
			if err := h.writeEvent(conn, e); err != nil {
				log.Debug("event stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *MatrixHandler) writeEvent(conn *websocket.Conn, e router.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(e)
}
