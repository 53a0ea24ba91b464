/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package metrics holds the Prometheus collectors shared by the chat
// transport, the reconnection loop and the video chat signaling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Direction labels.
const (
	Inbound  = "in"
	Outbound = "out"
)

// Metrics groups the SDK collectors. The zero value is not usable; call New.
type Metrics struct {
	Stanzas        *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	Reconnects     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests and embedders without a scrape
// endpoint want.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Stanzas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qb",
			Subsystem: "xmpp",
			Name:      "stanzas_total",
			Help:      "XMPP stanzas by direction and kind.",
		}, []string{"direction", "kind"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qb",
			Subsystem: "signaling",
			Name:      "messages_total",
			Help:      "Video chat signaling messages by direction and type.",
		}, []string{"direction", "type"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qb",
			Subsystem: "videochat",
			Name:      "sessions_active",
			Help:      "Call sessions holding a peer connection.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "qb",
			Subsystem: "chat",
			Name:      "reconnects_total",
			Help:      "Chat reconnection attempts.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.Stanzas, m.Signals, m.ActiveSessions, m.Reconnects} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Discard returns unregistered collectors.
func Discard() *Metrics {
	m, _ := New(nil)
	return m
}

// Stanza counts one stanza. Safe on a nil receiver.
func (m *Metrics) Stanza(direction, kind string) {
	if m == nil {
		return
	}
	m.Stanzas.WithLabelValues(direction, kind).Inc()
}

// Signal counts one signaling message. Safe on a nil receiver.
func (m *Metrics) Signal(direction, typ string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(direction, typ).Inc()
}

// SessionOpened increments the active session gauge. Safe on a nil receiver.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge. Safe on a nil receiver.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// Reconnect counts one reconnection attempt. Safe on a nil receiver.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}
