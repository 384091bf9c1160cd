// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MatrixHandler serves the control API for one device.
type MatrixHandler struct {
	log *zap.Logger
	dev *router.Device
}

func NewMatrixHandler(log *zap.Logger, dev *router.Device) *MatrixHandler {
	return &MatrixHandler{
		log: log.Named("matrix"),
		dev: dev,
	}
}

type routeRequest struct {
	Input  int    `json:"input" binding:"required"`
	Signal string `json:"signal"`
}

type gateRequest struct {
	Open *bool `json:"open" binding:"required"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *MatrixHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.dev.Status())
}

func (h *MatrixHandler) GetOutputList(c *gin.Context) {
	outputs := h.dev.Outputs()
	c.Header("X-Total-Count", strconv.Itoa(len(outputs)))
	c.JSON(http.StatusOK, outputs)
}

func (h *MatrixHandler) GetOutput(c *gin.Context) {
	out, ok := h.dev.Output(pathIndex(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": router.ErrUnknownOutput.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *MatrixHandler) GetInputList(c *gin.Context) {
	inputs := h.dev.Inputs()
	c.Header("X-Total-Count", strconv.Itoa(len(inputs)))
	c.JSON(http.StatusOK, inputs)
}

// RouteOutput records a route request. The switcher is only commanded
// once the gate for the level is open, so the response is 202.
func (h *MatrixHandler) RouteOutput(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	signal := purelink.SignalAudioVideo
	if req.Signal != "" {
		var err error
		if signal, err = purelink.ParseSignalType(req.Signal); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
	}

	index := pathIndex(c)
	if err := h.dev.RequestRoute(index, req.Input, signal); err != nil {
		c.Error(err)
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}

	out, _ := h.dev.Output(index)
	c.JSON(http.StatusAccepted, out)
}

func (h *MatrixHandler) SetGate(c *gin.Context) {
	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if !h.available(c) {
		return
	}

	signal := pathSignal(c)
	h.dev.SetGateOpen(signal, *req.Open)
	c.JSON(http.StatusOK, gin.H{
		"signal": signal.String(),
		"open":   h.dev.GateOpen(signal),
	})
}

// Poll requests route status. Without a signal both levels are polled,
// along with the configured heartbeat.
func (h *MatrixHandler) Poll(c *gin.Context) {
	if !h.available(c) {
		return
	}

	signal := "all"
	if c.Param("signal") != "" {
		switch s := pathSignal(c); s {
		case purelink.SignalVideo:
			h.dev.PollVideoOutputs()
			signal = s.String()
		case purelink.SignalAudio:
			h.dev.PollAudioOutputs()
			signal = s.String()
		default:
			h.dev.Poll()
		}
	} else {
		h.dev.Poll()
	}
	c.JSON(http.StatusAccepted, gin.H{"polled": signal})
}

func (h *MatrixHandler) Clear(c *gin.Context) {
	if !h.available(c) {
		return
	}

	signal := pathSignal(c)
	switch signal {
	case purelink.SignalVideo:
		h.dev.ClearVideoRoutes()
	case purelink.SignalAudio:
		h.dev.ClearAudioRoutes()
	default:
		h.dev.ClearAllRoutes()
	}
	h.log.Info("cleared routes", zap.Stringer("signal", signal), zap.String("request_id", GetRequestID(c)))
	c.JSON(http.StatusAccepted, gin.H{"cleared": signal.String()})
}

func (h *MatrixHandler) SetAudioFollowsVideo(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if !h.available(c) {
		return
	}

	h.dev.SetAudioFollowsVideo(*req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": h.dev.AudioFollowsVideo()})
}

// available writes 503 and returns false once the device is closed.
func (h *MatrixHandler) available(c *gin.Context) bool {
	if h.dev.Closed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": router.ErrClosed.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, router.ErrUnknownOutput):
		return http.StatusNotFound
	case errors.Is(err, router.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, router.ErrInvalidRoute):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
