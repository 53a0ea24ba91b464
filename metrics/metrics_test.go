/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Stanza(Outbound, "message")
	m.Stanza(Outbound, "message")
	m.Signal(Inbound, "qbvideochat_call")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.Reconnect()

	if got := testutil.ToFloat64(m.Stanzas.WithLabelValues(Outbound, "message")); got != 2 {
		t.Errorf("Expected 2 outbound messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.Signals.WithLabelValues(Inbound, "qbvideochat_call")); got != 1 {
		t.Errorf("Expected 1 inbound call, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.Reconnects); got != 1 {
		t.Errorf("Expected 1 reconnect, got %v", got)
	}

	if _, err := New(reg); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Stanza(Inbound, "iq")
	m.Signal(Outbound, "qbvideochat_stopCall")
	m.SessionOpened()
	m.SessionClosed()
	m.Reconnect()
}
