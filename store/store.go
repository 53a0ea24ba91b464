/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package store keeps the per-connection chat state: the roster with its
// subscription states and the set of joined MUC rooms.
package store

import (
	"context"
	"sort"
	"sync"
)

// Subscription states of a roster contact.
const (
	SubscriptionNone = "none"
	SubscriptionTo   = "to"
	SubscriptionFrom = "from"
	SubscriptionBoth = "both"

	AskSubscribe = "subscribe"
)

// Contact is a roster entry.
type Contact struct {
	Subscription string `json:"subscription"`
	Ask          string `json:"ask,omitempty"`
}

// Roster maps user ids to contacts.
type Roster map[int]Contact

// Store holds roster and room state. Implementations must be safe for
// concurrent use.
type Store interface {
	Contact(ctx context.Context, userID int) (Contact, bool, error)
	SetContact(ctx context.Context, userID int, contact Contact) error
	DeleteContact(ctx context.Context, userID int) error
	Roster(ctx context.Context) (Roster, error)
	ReplaceRoster(ctx context.Context, roster Roster) error

	AddRoom(ctx context.Context, roomJID string) error
	RemoveRoom(ctx context.Context, roomJID string) error
	Rooms(ctx context.Context) ([]string, error)
	ClearRooms(ctx context.Context) error

	// Reset clears roster and rooms.
	Reset(ctx context.Context) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	roster Roster
	rooms  map[string]struct{}
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		roster: make(Roster),
		rooms:  make(map[string]struct{}),
	}
}

func (m *Memory) Contact(_ context.Context, userID int) (Contact, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.roster[userID]
	return c, ok, nil
}

func (m *Memory) SetContact(_ context.Context, userID int, contact Contact) error {
	m.mu.Lock()
	m.roster[userID] = contact
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteContact(_ context.Context, userID int) error {
	m.mu.Lock()
	delete(m.roster, userID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Roster(_ context.Context) (Roster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Roster, len(m.roster))
	for k, v := range m.roster {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) ReplaceRoster(_ context.Context, roster Roster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = make(Roster, len(roster))
	for k, v := range roster {
		m.roster[k] = v
	}
	return nil
}

func (m *Memory) AddRoom(_ context.Context, roomJID string) error {
	m.mu.Lock()
	m.rooms[roomJID] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) RemoveRoom(_ context.Context, roomJID string) error {
	m.mu.Lock()
	delete(m.rooms, roomJID)
	m.mu.Unlock()
	return nil
}

// Rooms returns the joined rooms sorted.
func (m *Memory) Rooms(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ClearRooms(_ context.Context) error {
	m.mu.Lock()
	m.rooms = make(map[string]struct{})
	m.mu.Unlock()
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.roster = make(Roster)
	m.rooms = make(map[string]struct{})
	m.mu.Unlock()
	return nil
}
