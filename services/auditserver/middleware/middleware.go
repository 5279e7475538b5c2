// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides gin middleware for the audit server.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RequestID ──► assigns or propagates X-Request-ID
//	   │
//	   ▼
//	Metrics ────► counts the response by route template and status code
//	   │
//	   ▼
//	RateLimit ──► applied only to routes that trigger probes
//	   │
//	   ▼
//	Handler
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RequestIDHeader carries the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key for the request ID.
const requestIDKey = "tabaudit_request_id"

// maxRequestIDLen bounds client-supplied IDs.
const maxRequestIDLen = 128

// RequestID propagates a client-supplied X-Request-ID or assigns a new
// UUID, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RateLimit refuses requests beyond limiter's budget with 429.
//
// # Limitations
//
//   - One shared bucket for all clients; the server is a local tool, not a
//     multi-tenant gateway
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// RequestRecorder receives one call per served request.
type RequestRecorder interface {
	RecordHTTPRequest(route string, code int)
}

// Metrics reports every request to rec after the handler chain ran.
func Metrics(rec RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		rec.RecordHTTPRequest(c.FullPath(), c.Writer.Status())
	}
}
