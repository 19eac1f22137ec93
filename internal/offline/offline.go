// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline reports whether the client believes it has network
// connectivity. It is a cheap local check made before any request is issued,
// not a reachability test of the chat service.
//
// A Monitor is offline when offline mode has been forced (config or
// ECHO_OFFLINE) or when no usable network link is up. Targets on the loopback
// interface only need the loopback link.
package offline

import (
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// Connectivity is consumed by the dispatcher before each completion call.
type Connectivity interface {
	Online() bool
}

// LinkProbe reports whether a non-loopback network link is up.
type LinkProbe func() bool

// Monitor is the default Connectivity implementation.
type Monitor struct {
	forced   atomic.Bool
	local    bool
	probe    LinkProbe
	mu       sync.RWMutex
	handlers []func(online bool)
}

// NewMonitor returns a Monitor for requests sent to target (the API base URL).
func NewMonitor(target string) *Monitor {
	m := &Monitor{probe: InterfacesUp}
	if u, err := url.Parse(target); err == nil {
		m.local = IsLocalhost(u.Host)
	}
	return m
}

// WithProbe replaces the link probe; used by tests.
func (m *Monitor) WithProbe(p LinkProbe) *Monitor {
	m.probe = p
	return m
}

// SetForced enables or disables forced offline mode.
func (m *Monitor) SetForced(offline bool) {
	before := m.Online()
	m.forced.Store(offline)
	if after := m.Online(); after != before {
		m.notify(after)
	}
}

// Forced reports whether offline mode is forced.
func (m *Monitor) Forced() bool {
	return m.forced.Load()
}

// Online implements Connectivity.
func (m *Monitor) Online() bool {
	if m.forced.Load() {
		return false
	}
	if m.local {
		return true
	}
	return m.probe == nil || m.probe()
}

// OnChange registers a callback fired when SetForced flips the result.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

func (m *Monitor) notify(online bool) {
	m.mu.RLock()
	handlers := append([]func(bool){}, m.handlers...)
	m.mu.RUnlock()
	for _, fn := range handlers {
		fn(online)
	}
}

// InterfacesUp reports whether any non-loopback interface is up and has an address.
func InterfacesUp() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		// Unknown is treated as online; the request itself will fail if not.
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// IsLocalhost checks if a host string refers to localhost.
// Accepts "localhost", any 127.0.0.0/8 address, and IPv6 loopback in any form.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// Static is a fixed Connectivity value.
type Static bool

// Online implements Connectivity.
func (s Static) Online() bool { return bool(s) }
