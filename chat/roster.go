/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"context"
	"fmt"

	"github.com/tejzpr/quickblox-go-sdk/store"
	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// Roster manages the contact list and presence subscriptions.
type Roster struct {
	chat *Client
}

// Get fetches the roster from the server and replaces the stored one.
func (r *Roster) Get(ctx context.Context) (store.Roster, error) {
	t := r.chat.transport
	iq := xmpp.NewIQ("from", t.JID(), "type", "get", "id", t.UniqueID("getRoster"))
	iq.C("query", xmpp.NSRoster)

	result, err := t.SendIQ(ctx, iq)
	if err != nil {
		return nil, err
	}

	roster := make(store.Roster)
	for _, item := range result.ChildNS("query", xmpp.NSRoster).ChildrenNamed("item") {
		userID := r.chat.helpers.IDFromNode(item.Attr("jid"))
		if userID == 0 {
			continue
		}
		roster[userID] = store.Contact{
			Subscription: item.Attr("subscription"),
			Ask:          item.Attr("ask"),
		}
	}

	if err := r.chat.store.ReplaceRoster(ctx, roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// Add asks jid for a presence subscription.
func (r *Roster) Add(ctx context.Context, jid string) error {
	userID := r.chat.helpers.IDFromNode(jid)
	contact := store.Contact{Subscription: store.SubscriptionNone, Ask: store.AskSubscribe}
	if err := r.chat.store.SetContact(ctx, userID, contact); err != nil {
		return err
	}
	return r.sendSubscriptionPresence(jid, "subscribe")
}

// Confirm accepts a subscription request from jid and asks back.
func (r *Roster) Confirm(ctx context.Context, jid string) error {
	userID := r.chat.helpers.IDFromNode(jid)
	contact := store.Contact{Subscription: store.SubscriptionFrom, Ask: store.AskSubscribe}
	if err := r.chat.store.SetContact(ctx, userID, contact); err != nil {
		return err
	}
	if err := r.sendSubscriptionPresence(jid, "subscribed"); err != nil {
		return err
	}
	return r.sendSubscriptionPresence(jid, "subscribe")
}

// Reject declines a subscription request from jid.
func (r *Roster) Reject(ctx context.Context, jid string) error {
	userID := r.chat.helpers.IDFromNode(jid)
	contact := store.Contact{Subscription: store.SubscriptionNone}
	if err := r.chat.store.SetContact(ctx, userID, contact); err != nil {
		return err
	}
	return r.sendSubscriptionPresence(jid, "unsubscribed")
}

// Remove deletes jid from the server roster, then from the store.
func (r *Roster) Remove(ctx context.Context, jid string) error {
	t := r.chat.transport
	iq := xmpp.NewIQ("from", t.JID(), "type", "set", "id", t.UniqueID("removeRosterItem"))
	iq.C("query", xmpp.NSRoster).C("item", "", "jid", jid, "subscription", "remove")

	if _, err := t.SendIQ(ctx, iq); err != nil {
		return fmt.Errorf("error removing %s from roster: %w", jid, err)
	}
	return r.chat.store.DeleteContact(ctx, r.chat.helpers.IDFromNode(jid))
}

func (r *Roster) sendSubscriptionPresence(jid, typ string) error {
	return r.chat.transport.Send(xmpp.NewPresence("to", jid, "type", typ))
}
