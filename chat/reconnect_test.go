/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

func TestReconnect_RejoinsRooms(t *testing.T) {
	m, err := metrics.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Metrics = m
	c, ft := connected(t, cfg)

	const room = "555_room@muc.chat.quickblox.com"
	_ = c.MUC().Join(context.Background(), room, nil)

	disconnecting := make(chan struct{}, 1)
	reconnected := make(chan struct{}, 1)
	c.OnDisconnecting(func() { disconnecting <- struct{}{} })
	c.OnReconnect(func() { reconnected <- struct{}{} })

	ft.drop()

	select {
	case <-disconnecting:
	case <-time.After(time.Second):
		t.Fatal("Expected disconnecting listener")
	}
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reconnect listener")
	}

	if ft.connectCount() != 2 {
		t.Errorf("Expected 2 connects, got %d", ft.connectCount())
	}
	if got := testutil.ToFloat64(m.Reconnects); got != 1 {
		t.Errorf("Expected 1 reconnect counted, got %v", got)
	}

	var rejoined bool
	sent := ft.sentStanzas()
	for _, s := range sent[len(sent)-2:] {
		if s.Name == "presence" && s.Attr("to") == room+"/42" {
			rejoined = true
		}
	}
	if !rejoined {
		t.Errorf("Expected room rejoin presence, got %v", sent)
	}
	deadline := time.Now().Add(time.Second)
	for c.Reconnecting() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if c.Reconnecting() {
		t.Error("Expected reconnection cycle to finish")
	}
}

func TestReconnect_GivesUp(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 2
	c, ft := connected(t, cfg)

	failed := make(chan error, 1)
	c.OnReconnectFailed(func(err error) { failed <- err })

	ft.mu.Lock()
	ft.connectErr = xmpp.ErrConnFailed
	ft.mu.Unlock()
	ft.drop()

	select {
	case err := <-failed:
		if !errors.Is(err, xmpp.ErrConnFailed) {
			t.Errorf("Expected wrapped connection error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected reconnect to give up")
	}
	if ft.connectCount() != 3 {
		t.Errorf("Expected 1 connect and 2 retries, got %d", ft.connectCount())
	}
}

func TestReconnect_StopCancelsWaiting(t *testing.T) {
	cfg := testConfig()
	cfg.BackoffTimeReset = time.Hour
	cfg.BackoffTimeMax = time.Hour
	c, ft := connected(t, cfg)

	ft.drop()
	if !c.Reconnecting() {
		t.Fatal("Expected reconnection to be pending")
	}

	c.reconnect.Stop()
	if c.Reconnecting() {
		t.Error("Expected stop to cancel the cycle")
	}
	if c.reconnect.State() != reconnectStopped {
		t.Errorf("Expected stopped, got %s", c.reconnect.State())
	}

	// A new explicit connect rearms the machine.
	if _, err := c.Connect(context.Background(), ConnectParams{UserID: 42}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if c.reconnect.State() != reconnectIdle {
		t.Errorf("Expected idle after connect, got %s", c.reconnect.State())
	}
}

func TestReconnectState_String(t *testing.T) {
	states := map[reconnectState]string{
		reconnectIdle:       "idle",
		reconnectWaiting:    "waiting",
		reconnectConnecting: "connecting",
		reconnectStopped:    "stopped",
		reconnectState(99):  "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("Expected %s, got %s", want, s.String())
		}
	}
}
