/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"context"

	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// MUC joins and leaves group chat rooms.
type MUC struct {
	chat *Client
}

// Join enters roomJID without history. callback, if set, receives the
// room's reply presence once.
func (m *MUC) Join(ctx context.Context, roomJID string, callback func(stanza *xmpp.Element)) error {
	t := m.chat.transport
	id := t.UniqueID("join")

	if err := m.chat.store.AddRoom(ctx, roomJID); err != nil {
		return err
	}

	pres := xmpp.NewPresence("from", t.JID(), "to", m.chat.helpers.RoomJID(roomJID), "id", id)
	pres.C("x", xmpp.NSMUC).C("history", "", "maxstanzas", "0")

	if callback != nil {
		t.AddHandler(func(stanza *xmpp.Element) bool {
			callback(stanza)
			return false
		}, "", "presence", "", id, "")
	}
	return t.Send(pres)
}

// Leave exits roomJID. callback, if set, receives the unavailable
// presence confirming the exit.
func (m *MUC) Leave(ctx context.Context, roomJID string, callback func(stanza *xmpp.Element)) error {
	t := m.chat.transport
	occupant := m.chat.helpers.RoomJID(roomJID)

	if err := m.chat.store.RemoveRoom(ctx, roomJID); err != nil {
		return err
	}

	if callback != nil {
		t.AddHandler(func(stanza *xmpp.Element) bool {
			callback(stanza)
			return false
		}, "", "presence", "unavailable", "", occupant)
	}
	return t.Send(xmpp.NewPresence("from", t.JID(), "to", occupant, "type", "unavailable"))
}
