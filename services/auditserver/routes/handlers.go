// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/tabaudit/pkg/validation"
	"github.com/AleutianAI/tabaudit/services/auditserver/middleware"
	"github.com/AleutianAI/tabaudit/services/signalstore"
	"github.com/AleutianAI/tabaudit/services/verification"
)

// ErrUnknownTab is returned for tab lookups outside the registry.
var ErrUnknownTab = errors.New("unknown tab")

// maxSignalTTL caps the TTL accepted for a recorded signal.
const maxSignalTTL = 30 * 24 * time.Hour

// =============================================================================
// Request / response types
// =============================================================================

// StatusBatchRequest is the body of POST /v1/services/status.
type StatusBatchRequest struct {
	Names []string `json:"names" binding:"required,min=1,max=32,dive,required,max=64"`
}

// StatusBatchResponse maps every requested name to its status.
type StatusBatchResponse struct {
	Results map[verification.DependencyName]verification.ServiceStatus `json:"results"`
}

// SignalRequest is the body of POST /v1/signals.
type SignalRequest struct {
	Key        string `json:"key" binding:"required,max=128"`
	TTLSeconds int64  `json:"ttl_seconds" binding:"min=0,max=2592000"`
}

// TabInfo describes one registry tab.
type TabInfo struct {
	Tab          string                        `json:"tab"`
	Components   []string                      `json:"components"`
	Dependencies []verification.DependencyName `json:"dependencies"`
	HasChatbot   bool                          `json:"hasChatbot"`
}

// SignalStore is the subset of signalstore.Store used by the handlers.
type SignalStore interface {
	Record(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]signalstore.Entry, error)
}

// =============================================================================
// Handlers
// =============================================================================

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CheckService handles GET /v1/services/:name/status.
func CheckService(engine *verification.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := verification.DependencyName(c.Param("name"))
		c.JSON(http.StatusOK, engine.CheckAPIStatus(c.Request.Context(), name))
	}
}

// CheckServices handles POST /v1/services/status.
func CheckServices(engine *verification.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StatusBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		names := make([]verification.DependencyName, len(req.Names))
		for i, n := range req.Names {
			names[i] = verification.DependencyName(n)
		}
		c.JSON(http.StatusOK, StatusBatchResponse{
			Results: engine.CheckMultipleAPIStatus(c.Request.Context(), names),
		})
	}
}

// Summary handles GET /v1/services/summary.
func Summary(engine *verification.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.GetAPIStatusSummary(c.Request.Context()))
	}
}

// ListTabs handles GET /v1/tabs.
func ListTabs(engine *verification.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tabs": engine.KnownTabs()})
	}
}

// DescribeTab handles GET /v1/tabs/:tab.
func DescribeTab(engine *verification.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tab := c.Param("tab")
		registry := engine.Registry()
		if !registry.IsKnownTab(tab) {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("%v: %q", ErrUnknownTab, tab)})
			return
		}
		info := TabInfo{
			Tab:          tab,
			Components:   registry.Components(tab),
			Dependencies: registry.Dependencies(tab),
			HasChatbot:   registry.IsChatTab(tab),
		}
		if info.Components == nil {
			info.Components = []string{}
		}
		if info.Dependencies == nil {
			info.Dependencies = []verification.DependencyName{}
		}
		c.JSON(http.StatusOK, info)
	}
}

// AuditTab handles GET /v1/tabs/:tab/audit. Unknown tabs are audited like
// any other and come back Broken.
func AuditTab(engine *verification.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tab := c.Param("tab")
		result := engine.AuditTab(c.Request.Context(), tab)

		slog.Debug("audit served",
			"request_id", middleware.GetRequestID(c),
			"tab", tab,
			"status", result.Status)

		if c.Query("format") == "text" {
			c.String(http.StatusOK, verification.FormatAuditText(result))
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8",
			[]byte(verification.FormatAuditResults(result)))
	}
}

// RecordSignal handles POST /v1/signals.
func RecordSignal(store SignalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key, err := validation.SanitizeSignalKey(req.Key)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Key = key
		ttl := time.Duration(req.TTLSeconds) * time.Second
		if ttl > maxSignalTTL {
			ttl = maxSignalTTL
		}
		if err := store.Record(c.Request.Context(), req.Key, ttl); err != nil {
			if errors.Is(err, signalstore.ErrEmptyKey) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("record signal failed", "key", req.Key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record signal"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"key": req.Key, "ttl_seconds": int64(ttl / time.Second)})
	}
}

// ListSignals handles GET /v1/signals.
func ListSignals(store SignalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := store.List(c.Request.Context())
		if err != nil {
			slog.Error("list signals failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"signals": entries})
	}
}

// DeleteSignal handles DELETE /v1/signals/:key.
func DeleteSignal(store SignalStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := validation.SanitizeSignalKey(c.Param("key"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := store.Delete(c.Request.Context(), key); err != nil {
			slog.Error("delete signal failed", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete signal"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
