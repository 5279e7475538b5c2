// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verification

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MessageVerificationError replaces the status of a check that panicked.
const MessageVerificationError = "error during verification"

// StatusAggregator checks many dependencies at once.
//
// # Description
//
// CheckAll fans out one StatusChecker.Check per distinct name and waits for
// all of them. A check that panics is recorded as ServiceStateUnknown with
// MessageVerificationError; it never aborts the batch or cancels its
// siblings.
//
// # Outputs
//
// The map holds exactly one entry per distinct input name. Each goroutine
// writes only its own slot, so settle order has no effect on the result.
//
// # Examples
//
//	agg := NewStatusAggregator(checker, nil)
//	results := agg.CheckAll(ctx, []DependencyName{"Firebase", "Stripe"})
//	summary := agg.Summarize(ctx, []DependencyName{"Firebase", "Stripe"})
//
// # Limitations
//
//   - Unbounded parallelism; tab dependency sets are small
type StatusAggregator struct {
	checker StatusChecker
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewStatusAggregator wraps checker. A nil logger uses slog.Default().
func NewStatusAggregator(checker StatusChecker, logger *slog.Logger) *StatusAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusAggregator{
		checker: checker,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// CheckAll checks every distinct name concurrently.
func (a *StatusAggregator) CheckAll(ctx context.Context, names []DependencyName) map[DependencyName]ServiceStatus {
	unique := dedupe(names)
	out := make(map[DependencyName]ServiceStatus, len(unique))
	if len(unique) == 0 {
		return out
	}

	ctx, span := a.tracer.Start(ctx, "verification.CheckAll",
		trace.WithAttributes(attribute.Int("dependency_count", len(unique))))
	defer span.End()

	results := make([]ServiceStatus, len(unique))
	var g errgroup.Group
	for i, name := range unique {
		g.Go(func() error {
			results[i] = a.safeCheck(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	for _, status := range results {
		out[status.Name] = status
	}
	return out
}

// Summarize checks names and partitions them by state. Buckets keep the
// first-seen order of the input.
func (a *StatusAggregator) Summarize(ctx context.Context, names []DependencyName) StatusSummary {
	unique := dedupe(names)
	results := a.CheckAll(ctx, unique)
	return summarize(unique, results)
}

// safeCheck converts a panicking checker into an Unknown status.
func (a *StatusAggregator) safeCheck(ctx context.Context, name DependencyName) (status ServiceStatus) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("dependency check panicked",
				"dependency", name,
				"panic", r)
			status = ServiceStatus{Name: name, State: ServiceStateUnknown, Message: MessageVerificationError}
		}
	}()
	status = a.checker.Check(ctx, name)
	// The checker owns the message but not the identity of the slot.
	status.Name = name
	if status.State == "" {
		status.State = ServiceStateUnknown
	}
	return status
}

func summarize(order []DependencyName, results map[DependencyName]ServiceStatus) StatusSummary {
	summary := StatusSummary{
		Connected:    []DependencyName{},
		Limited:      []DependencyName{},
		Disconnected: []DependencyName{},
		Unknown:      []DependencyName{},
	}
	for _, name := range order {
		switch results[name].State {
		case ServiceStateConnected:
			summary.Connected = append(summary.Connected, name)
		case ServiceStateLimited:
			summary.Limited = append(summary.Limited, name)
		case ServiceStateDisconnected:
			summary.Disconnected = append(summary.Disconnected, name)
		default:
			summary.Unknown = append(summary.Unknown, name)
		}
	}
	return summary
}

func dedupe(names []DependencyName) []DependencyName {
	seen := make(map[DependencyName]struct{}, len(names))
	out := make([]DependencyName, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
