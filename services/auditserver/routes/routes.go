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
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/tabaudit/services/auditserver/middleware"
	"github.com/AleutianAI/tabaudit/services/verification"
)

// Deps carries everything the route table needs.
type Deps struct {
	Engine *verification.Engine

	// Signals is optional; signal routes are not registered without it.
	Signals SignalStore

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// Limiter guards probe-triggering routes. Nil disables limiting.
	Limiter *rate.Limiter
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", HealthCheck)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	probing := []gin.HandlerFunc{}
	if deps.Limiter != nil {
		probing = append(probing, middleware.RateLimit(deps.Limiter))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		services := v1.Group("/services")
		{
			services.GET("/summary", append(probing, Summary(deps.Engine))...)
			services.POST("/status", append(probing, CheckServices(deps.Engine))...)
			services.GET("/:name/status", append(probing, CheckService(deps.Engine))...)
		}
		tabs := v1.Group("/tabs")
		{
			tabs.GET("", ListTabs(deps.Engine))
			tabs.GET("/:tab", DescribeTab(deps.Engine))
			tabs.GET("/:tab/audit", append(probing, AuditTab(deps.Engine))...)
		}
		if deps.Signals != nil {
			signals := v1.Group("/signals")
			{
				signals.GET("", ListSignals(deps.Signals))
				signals.POST("", RecordSignal(deps.Signals))
				signals.DELETE("/:key", DeleteSignal(deps.Signals))
			}
		}
	}
}
