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
	"sort"
	"time"
)

// ChatbotComponent is the synthetic component name used by the
// chat-integration check.
const ChatbotComponent = "Chatbot"

// FallbackKind selects how a local signal is interpreted when the network
// probe for a dependency fails.
type FallbackKind string

const (
	// FallbackInitFlag treats any recorded signal as proof that the
	// dependency initialized successfully at some point.
	FallbackInitFlag FallbackKind = "init_flag"

	// FallbackRecentActivity requires the signal to be newer than MaxAge.
	FallbackRecentActivity FallbackKind = "recent_activity"
)

// FallbackRule names the local signal consulted for one dependency.
type FallbackRule struct {
	Kind   FallbackKind
	Key    string
	MaxAge time.Duration
}

// RegistrySpec is the mutable input used to build a Registry.
//
// # Description
//
// All maps are keyed by tab name except Endpoints and Fallbacks, which are
// keyed by dependency. Slices keep their order; that order is the order in
// which components are verified and dependencies are reported.
type RegistrySpec struct {
	Endpoints       map[DependencyName]string
	Fallbacks       map[DependencyName]FallbackRule
	KnownTabs       []string
	TabComponents   map[string][]string
	TabDependencies map[string][]DependencyName
	ChatTabs        []string
}

// Registry is the immutable capability table the engine reasons about.
//
// # Description
//
// Built once with NewRegistry or DefaultRegistry and then only read. Every
// accessor returns a copy so callers cannot mutate shared state.
//
// # Thread Safety
//
// Safe for concurrent use; there is no mutation after construction.
type Registry struct {
	endpoints       map[DependencyName]string
	fallbacks       map[DependencyName]FallbackRule
	knownTabs       map[string]struct{}
	tabOrder        []string
	tabComponents   map[string][]string
	tabDependencies map[string][]DependencyName
	chatTabs        map[string]struct{}
}

// NewRegistry deep-copies def into an immutable Registry.
func NewRegistry(def RegistrySpec) *Registry {
	r := &Registry{
		endpoints:       make(map[DependencyName]string, len(def.Endpoints)),
		fallbacks:       make(map[DependencyName]FallbackRule, len(def.Fallbacks)),
		knownTabs:       make(map[string]struct{}, len(def.KnownTabs)),
		tabOrder:        make([]string, 0, len(def.KnownTabs)),
		tabComponents:   make(map[string][]string, len(def.TabComponents)),
		tabDependencies: make(map[string][]DependencyName, len(def.TabDependencies)),
		chatTabs:        make(map[string]struct{}, len(def.ChatTabs)),
	}
	for name, path := range def.Endpoints {
		r.endpoints[name] = path
	}
	for name, rule := range def.Fallbacks {
		r.fallbacks[name] = rule
	}
	for _, tab := range def.KnownTabs {
		if _, dup := r.knownTabs[tab]; dup {
			continue
		}
		r.knownTabs[tab] = struct{}{}
		r.tabOrder = append(r.tabOrder, tab)
	}
	for tab, comps := range def.TabComponents {
		r.tabComponents[tab] = append([]string(nil), comps...)
	}
	for tab, deps := range def.TabDependencies {
		r.tabDependencies[tab] = append([]DependencyName(nil), deps...)
	}
	for _, tab := range def.ChatTabs {
		r.chatTabs[tab] = struct{}{}
	}
	return r
}

// Endpoint returns the probe path registered for name.
func (r *Registry) Endpoint(name DependencyName) (string, bool) {
	path, ok := r.endpoints[name]
	return path, ok
}

// Fallback returns the local-signal rule registered for name.
func (r *Registry) Fallback(name DependencyName) (FallbackRule, bool) {
	rule, ok := r.fallbacks[name]
	return rule, ok
}

// IsKnownTab reports whether tab is part of the navigable surface.
func (r *Registry) IsKnownTab(tab string) bool {
	_, ok := r.knownTabs[tab]
	return ok
}

// KnownTabs returns tab names in registration order.
func (r *Registry) KnownTabs() []string {
	return append([]string(nil), r.tabOrder...)
}

// Components returns the constituent component names of tab.
func (r *Registry) Components(tab string) []string {
	return append([]string(nil), r.tabComponents[tab]...)
}

// Dependencies returns the dependencies tab requires. Tabs with no entry
// require none.
func (r *Registry) Dependencies(tab string) []DependencyName {
	return append([]DependencyName(nil), r.tabDependencies[tab]...)
}

// IsChatTab reports whether tab embeds the chatbot widget.
func (r *Registry) IsChatTab(tab string) bool {
	_, ok := r.chatTabs[tab]
	return ok
}

// DependencyNames returns every dependency the registry knows about,
// whether through an endpoint or a tab requirement, sorted by name.
func (r *Registry) DependencyNames() []DependencyName {
	seen := make(map[DependencyName]struct{})
	for name := range r.endpoints {
		seen[name] = struct{}{}
	}
	for _, deps := range r.tabDependencies {
		for _, d := range deps {
			seen[d] = struct{}{}
		}
	}
	out := make([]DependencyName, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry returns the capability table of the travel client.
func DefaultRegistry() *Registry {
	return NewRegistry(RegistrySpec{
		Endpoints: map[DependencyName]string{
			"Gemini AI":   "/api/gemini/status",
			"Firebase":    "/api/firebase/status",
			"Stripe":      "/api/stripe/status",
			"TripAdvisor": "/api/tripadvisor/status",
			"Google Maps": "/api/maps/status",
			"Amadeus":     "/api/amadeus/status",
			"OpenWeather": "/api/weather/status",
		},
		Fallbacks: map[DependencyName]FallbackRule{
			"Firebase":  {Kind: FallbackInitFlag, Key: "firebase:initialized"},
			"Gemini AI": {Kind: FallbackRecentActivity, Key: "gemini:last_response", MaxAge: 15 * time.Minute},
		},
		KnownTabs: []string{
			"Dashboard", "Explore", "Chat", "Itinerary",
			"Bookings", "Payments", "Profile", "Settings",
		},
		TabComponents: map[string][]string{
			"Dashboard": {"TripSummary", "UpcomingBookings", "WeatherWidget"},
			"Explore":   {"SearchBox", "DestinationGrid", "FilterPanel", "MapView"},
			"Chat":      {"MessageList", "MessageInput", "PersonalitySelector"},
			"Itinerary": {"Timeline", "DayPlanner", "MapView"},
			"Bookings":  {"FlightSearch", "HotelSearch", "BookingList"},
			"Payments":  {"CheckoutForm", "PaymentHistory"},
			"Profile":   {"ProfileForm", "TravelPreferences"},
			"Settings":  {"ThemeToggle", "NotificationPrefs"},
		},
		TabDependencies: map[string][]DependencyName{
			"Dashboard": {"Firebase", "OpenWeather"},
			"Explore":   {"TripAdvisor", "Google Maps", "Gemini AI"},
			"Chat":      {"Gemini AI", "Firebase"},
			"Itinerary": {"Google Maps", "Gemini AI", "OpenWeather"},
			"Bookings":  {"Amadeus", "Firebase"},
			"Payments":  {"Stripe", "Firebase"},
			"Profile":   {"Firebase", "Gravatar"},
		},
		ChatTabs: []string{"Chat", "Explore", "Itinerary"},
	})
}
