/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

type reconnectState int

const (
	reconnectIdle reconnectState = iota
	reconnectWaiting
	reconnectConnecting
	reconnectStopped
)

func (s reconnectState) String() string {
	switch s {
	case reconnectIdle:
		return "idle"
	case reconnectWaiting:
		return "waiting"
	case reconnectConnecting:
		return "connecting"
	case reconnectStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// reconnector re-establishes a dropped chat stream with exponential
// backoff. Stop cancels any cycle and keeps it stopped until Rearm.
type reconnector struct {
	mu      sync.Mutex
	state   reconnectState
	cancel  context.CancelFunc
	reset   time.Duration
	max     time.Duration
	limit   int
	logger  qbsdk.Logger
	metrics *metrics.Metrics
	connect func(ctx context.Context) error
	giveUp  func(err error)
}

func newReconnector(config *Config, logger qbsdk.Logger, connect func(context.Context) error, giveUp func(error)) *reconnector {
	reset := config.BackoffTimeReset
	if reset <= 0 {
		reset = time.Second
	}
	ceiling := config.BackoffTimeMax
	if ceiling < reset {
		ceiling = reset
	}
	return &reconnector{
		reset:   reset,
		max:     ceiling,
		limit:   config.MaxReconnectAttempts,
		logger:  logger,
		metrics: config.Metrics,
		connect: connect,
		giveUp:  giveUp,
	}
}

// Start begins a cycle unless one is running or the machine is stopped.
func (r *reconnector) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != reconnectIdle {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.state = reconnectWaiting
	go r.run(ctx)
}

// Stop cancels a pending or running cycle.
func (r *reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.state = reconnectStopped
}

// Rearm returns a stopped machine to idle.
func (r *reconnector) Rearm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == reconnectStopped {
		r.state = reconnectIdle
	}
}

// Active reports whether a cycle is waiting or connecting.
func (r *reconnector) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == reconnectWaiting || r.state == reconnectConnecting
}

func (r *reconnector) State() reconnectState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// transition moves to next unless the cycle was cancelled.
func (r *reconnector) transition(ctx context.Context, next reconnectState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	r.state = next
	if next == reconnectIdle && r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return true
}

func (r *reconnector) run(ctx context.Context) {
	delay := r.reset
	var lastErr error

	for attempt := 1; r.limit <= 0 || attempt <= r.limit; attempt++ {
		r.logger.Printf("[QBChat] reconnect attempt %d in %v", attempt, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !r.transition(ctx, reconnectConnecting) {
			return
		}
		r.metrics.Reconnect()

		lastErr = r.connect(ctx)
		if lastErr == nil {
			r.logger.Printf("[QBChat] reconnected after %d attempt(s)", attempt)
			r.transition(ctx, reconnectIdle)
			return
		}
		r.logger.Printf("[QBChat] reconnect attempt %d failed: %v", attempt, lastErr)

		delay *= 2
		if delay > r.max {
			delay = r.max
		}
		if !r.transition(ctx, reconnectWaiting) {
			return
		}
	}

	if !r.transition(ctx, reconnectIdle) {
		return
	}
	if r.giveUp != nil {
		r.giveUp(fmt.Errorf("reconnect gave up after %d attempts: %w", r.limit, lastErr))
	}
}
