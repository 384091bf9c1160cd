// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi exposes a device over a JSON HTTP API and a WebSocket
// event stream.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Options configures the engine.
type Options struct {
	// Dev enables permissive CORS for local front-end development and
	// disables the security header middleware.
	Dev bool
	// AccessLog enables per-request logging.
	AccessLog bool
}

// NewEngine builds the gin engine with middleware and routes.
func NewEngine(log *zap.Logger, dev *router.Device, opts Options) *gin.Engine {
	log = log.Named("http")
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()

	r := gin.New()
	{
		r.Use(gin.Recovery())
		r.Use(RequestID())

		if opts.Dev {
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type"},
				ExposeHeaders:    []string{"X-Request-ID", "X-Total-Count"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))
		} else {
			r.Use(secure.New(secure.Config{
				FrameDeny:          true,
				ContentTypeNosniff: true,
				BrowserXssFilter:   true,
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https",
				},
			}))
		}

		if opts.AccessLog {
			r.Use(accessLog(log))
		} else {
			r.Use(accessLog(zap.NewNop()))
		}

		r.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
			c.Next()
		})
	}

	h := NewMatrixHandler(log, dev)
	requireIndex := RequireValidIndex()
	requireSignal := RequireValidSignal()
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
		r.GET("/api/status", h.GetStatus)

		// --- Entities ---
		r.GET("/api/outputs", h.GetOutputList)
		r.GET("/api/outputs/:index", requireIndex, h.GetOutput)
		r.GET("/api/inputs", h.GetInputList)

		// --- Routing ---
		r.PUT("/api/outputs/:index/route", requireIndex, h.RouteOutput)
		r.PUT("/api/gates/:signal", requireSignal, h.SetGate)
		r.PUT("/api/audio-follows-video", h.SetAudioFollowsVideo)

		// --- Status requests ---
		r.POST("/api/poll", h.Poll)
		r.POST("/api/poll/:signal", requireSignal, h.Poll)
		r.POST("/api/clear/:signal", requireSignal, h.Clear)

		// --- Events ---
		r.GET("/api/events", h.StreamEvents)
	}
	return r
}

// NewServer wraps handler in an http.Server with conservative timeouts.
// WriteTimeout is left unset so the event stream is not cut off.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down.
func Serve(ctx context.Context, log *zap.Logger, srv *http.Server) error {
	log = log.Named("http")
	// Request contexts derive from ctx so long-lived event streams end on shutdown.
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		log.Info("running HTTP server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server closed")
	return nil
}
