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

// ComponentProbe reports the live state of one component inside a tab.
//
// # Description
//
// The registry-driven verifier only knows which components a tab should
// contain. Real error detection (DOM inspection, client telemetry) belongs
// to whoever implements this interface. StaticComponentProbe is the
// reference implementation and reports every registered component healthy.
type ComponentProbe interface {
	ProbeComponent(tab, component string) ComponentStatus
}

// ComponentProbeFunc adapts a function to ComponentProbe.
type ComponentProbeFunc func(tab, component string) ComponentStatus

func (f ComponentProbeFunc) ProbeComponent(tab, component string) ComponentStatus {
	return f(tab, component)
}

// StaticComponentProbe answers from the registry alone.
type StaticComponentProbe struct {
	Registry *Registry
}

// ProbeComponent reports registered components of known tabs as visible,
// interactive and error free. The chatbot is present only on chat tabs.
func (p StaticComponentProbe) ProbeComponent(tab, component string) ComponentStatus {
	present := p.Registry.IsKnownTab(tab)
	if component == ChatbotComponent {
		present = present && p.Registry.IsChatTab(tab)
	} else if present {
		present = contains(p.Registry.Components(tab), component)
	}
	return ComponentStatus{
		Name:          component,
		IsVisible:     present,
		IsInteractive: present,
	}
}

// ComponentVerifier checks a tab's visibility and its constituent
// components against the registry.
//
// # Description
//
// Unknown tabs fail closed: they are reported not visible and not
// interactive, and have no components to verify.
//
// # Thread Safety
//
// Safe for concurrent use if the probe is.
type ComponentVerifier struct {
	registry *Registry
	probe    ComponentProbe
}

// NewComponentVerifier creates a verifier. A nil probe uses
// StaticComponentProbe over registry.
func NewComponentVerifier(registry *Registry, probe ComponentProbe) *ComponentVerifier {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if probe == nil {
		probe = StaticComponentProbe{Registry: registry}
	}
	return &ComponentVerifier{registry: registry, probe: probe}
}

// VerifyVisibility reports whether tab is reachable from the navigation.
func (v *ComponentVerifier) VerifyVisibility(tab string) ComponentStatus {
	known := v.registry.IsKnownTab(tab)
	return ComponentStatus{
		Name:          tab,
		IsVisible:     known,
		IsInteractive: known,
	}
}

// VerifyComponents evaluates every registered component of tab, in
// registry order.
func (v *ComponentVerifier) VerifyComponents(tab string) []ComponentStatus {
	if !v.registry.IsKnownTab(tab) {
		return []ComponentStatus{}
	}
	names := v.registry.Components(tab)
	out := make([]ComponentStatus, 0, len(names))
	for _, name := range names {
		status := v.probe.ProbeComponent(tab, name)
		status.Name = name
		out = append(out, status)
	}
	return out
}

// VerifyChatbot evaluates the synthetic chatbot component of tab.
func (v *ComponentVerifier) VerifyChatbot(tab string) ComponentStatus {
	status := v.probe.ProbeComponent(tab, ChatbotComponent)
	status.Name = ChatbotComponent
	return status
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
