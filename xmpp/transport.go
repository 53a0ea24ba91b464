/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

import (
	"context"
	"sync"
	"time"
)

// Transport is the chat connection the SDK drives. Conn implements it over
// WebSocket; tests substitute in-memory fakes.
type Transport interface {
	// Connect opens and authenticates the stream, reporting transitions to
	// status. It returns once the stream is CONNECTED or has failed.
	Connect(ctx context.Context, jid, password string, status StatusFunc) error
	Send(stanza *Element) error
	// SendIQ sends an IQ and waits for its result or error reply.
	SendIQ(ctx context.Context, iq *Element) (*Element, error)
	AddHandler(fn HandlerFunc, ns, name, typ, id, from string) HandlerRef
	DeleteHandler(ref HandlerRef)
	// AddTimedHandler calls fn every period until it returns false or the
	// handler is deleted.
	AddTimedHandler(period time.Duration, fn TimedFunc) HandlerRef
	UniqueID(suffix string) string
	// JID returns the bound full JID.
	JID() string
	Flush() error
	// Reset drops every handler, timed handler and pending IQ.
	Reset()
	Disconnect() error
}

// HandlerFunc handles a matched stanza. Returning false removes the handler.
type HandlerFunc func(stanza *Element) bool

// TimedFunc is called periodically. Returning false stops it.
type TimedFunc func() bool

// HandlerRef identifies a registered handler.
type HandlerRef uint64

type handler struct {
	ref  HandlerRef
	fn   HandlerFunc
	ns   string
	name string
	typ  string
	id   string
	from string
}

func (h *handler) matches(stanza *Element) bool {
	if h.ns != "" && !namespaceMatch(stanza, h.ns) {
		return false
	}
	if h.name != "" && stanza.Name != h.name {
		return false
	}
	if h.typ != "" && stanza.Attr("type") != h.typ {
		return false
	}
	if h.id != "" && stanza.Attr("id") != h.id {
		return false
	}
	if h.from != "" && stanza.Attr("from") != h.from {
		return false
	}
	return true
}

// namespaceMatch accepts the stanza's own namespace or that of any direct child.
func namespaceMatch(stanza *Element, ns string) bool {
	if stanza.Space == ns {
		return true
	}
	for _, c := range stanza.Children {
		if c.Space == ns {
			return true
		}
	}
	return false
}

// Router matches inbound stanzas against registered handlers. Empty
// criteria match anything. Handlers run without the router lock held, so
// they may add or delete handlers.
type Router struct {
	mu       sync.Mutex
	next     HandlerRef
	handlers []*handler
}

// Add registers fn and returns its reference.
func (r *Router) Add(fn HandlerFunc, ns, name, typ, id, from string) HandlerRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.handlers = append(r.handlers, &handler{
		ref: r.next, fn: fn, ns: ns, name: name, typ: typ, id: id, from: from,
	})
	return r.next
}

// Delete removes a handler. Unknown references are ignored.
func (r *Router) Delete(ref HandlerRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.ref == ref {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered handlers.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Reset removes every handler.
func (r *Router) Reset() {
	r.mu.Lock()
	r.handlers = nil
	r.mu.Unlock()
}

// Dispatch runs every matching handler in registration order.
func (r *Router) Dispatch(stanza *Element) {
	r.mu.Lock()
	snapshot := make([]*handler, len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.Unlock()

	for _, h := range snapshot {
		if !h.matches(stanza) {
			continue
		}
		if !h.fn(stanza) {
			r.Delete(h.ref)
		}
	}
}

func (r *Router) newRef() HandlerRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return r.next
}
