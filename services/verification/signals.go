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
	"sync"
	"time"
)

// Signal is a locally recorded hint that a dependency worked before.
type Signal struct {
	Present    bool
	RecordedAt time.Time
}

// SignalProvider supplies local signals for the fallback heuristic.
//
// # Description
//
// The travel client keeps small flags in browser storage ("firebase
// initialized", "last Gemini response at ..."). On the server side the same
// role is played by whatever implements this interface: an in-memory map in
// tests, or the Badger-backed signalstore.Store in production.
//
// # Limitations
//
//   - A missing key is not an error; return Signal{Present: false}.
//
// # Assumptions
//
//   - Implementations are safe for concurrent use; the aggregator calls
//     Lookup from several goroutines at once.
type SignalProvider interface {
	Lookup(ctx context.Context, key string) (Signal, error)
}

// NoSignals is a SignalProvider that never has anything recorded.
type NoSignals struct{}

// Lookup always reports an absent signal.
func (NoSignals) Lookup(context.Context, string) (Signal, error) {
	return Signal{}, nil
}

// MapSignalProvider is an in-memory SignalProvider.
type MapSignalProvider struct {
	mu      sync.RWMutex
	signals map[string]time.Time
	// Err, when set, is returned from every Lookup.
	Err error
}

// NewMapSignalProvider creates an empty provider.
func NewMapSignalProvider() *MapSignalProvider {
	return &MapSignalProvider{signals: make(map[string]time.Time)}
}

// Set records key at the given time. The zero value is ready to use.
func (m *MapSignalProvider) Set(key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.signals == nil {
		m.signals = make(map[string]time.Time)
	}
	m.signals[key] = at
}

// Lookup returns the signal recorded under key.
func (m *MapSignalProvider) Lookup(_ context.Context, key string) (Signal, error) {
	if m.Err != nil {
		return Signal{}, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.signals[key]
	if !ok {
		return Signal{}, nil
	}
	return Signal{Present: true, RecordedAt: at}, nil
}
