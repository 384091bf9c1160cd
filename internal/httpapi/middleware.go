// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDKey = "request_id"
	indexKey     = "index"
	signalKey    = "signal"
)

// RequestID ensures every request carries an X-Request-ID. A client
// supplied ID is kept when it is 1..64 characters long; otherwise a new
// UUID is generated. The ID is echoed in the response and stored in the
// gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")

		l := len(requestID)
		if l < 1 || l > 64 {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set(RequestIDKey, requestID)

		c.Next()
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// accessLog records each request with zap after it is handled.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", GetRequestID(c)),
		}
		if err := errors.Join(errs...); err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// RequireValidIndex ensures the ":index" path param is an output index in
// 1..MaxIO and stores it in the context.
func RequireValidIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil || purelink.ValidateOutput(index) != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "output index must be 1.." + strconv.Itoa(purelink.MaxIO)})
			return
		}
		c.Set(indexKey, index)
		c.Next()
	}
}

// RequireValidSignal parses the ":signal" path param and stores it in the
// context.
func RequireValidSignal() gin.HandlerFunc {
	return func(c *gin.Context) {
		signal, err := purelink.ParseSignalType(c.Param("signal"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		c.Set(signalKey, signal)
		c.Next()
	}
}

func pathIndex(c *gin.Context) int {
	return c.GetInt(indexKey)
}

func pathSignal(c *gin.Context) purelink.SignalType {
	v, _ := c.Get(signalKey)
	signal, _ := v.(purelink.SignalType)
	return signal
}
