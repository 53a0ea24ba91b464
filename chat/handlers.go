/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"context"

	"github.com/tejzpr/quickblox-go-sdk/store"
	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// VideoChatModule tags signaling messages in the extra params.
const VideoChatModule = "WebRTCVideoChat"

// Stanza handlers run on the transport read loop; they must not wait on
// IQ replies.

func (c *Client) handleMessage(stanza *xmpp.Element) bool {
	if findDeep(stanza, "invite") != nil {
		return true
	}

	from := stanza.Attr("from")
	to := stanza.Attr("to")
	typ := stanza.Attr("type")
	msg := parseMessage(stanza)

	if msg.Extension["moduleIdentifier"] == VideoChatModule {
		c.lmu.RLock()
		handlers := append([]SignalHandler{}, c.onSignal...)
		c.lmu.RUnlock()
		for _, fn := range handlers {
			fn(from, msg)
		}
		return true
	}

	// History replayed on room join.
	if typ == TypeGroupChat && findDeep(stanza, "delay") != nil {
		return true
	}

	var userID int
	if typ == TypeGroupChat {
		userID = c.helpers.IDFromResource(from)
	} else {
		userID = c.helpers.IDFromNode(from)
	}

	c.lmu.RLock()
	listeners := append([]MessageListener{}, c.onMessage...)
	c.lmu.RUnlock()
	for _, fn := range listeners {
		fn(userID, msg, to)
	}
	return true
}

func (c *Client) handlePresence(stanza *xmpp.Element) bool {
	ctx := context.Background()
	from := stanza.Attr("from")
	typ := stanza.Attr("type")
	userID := c.helpers.IDFromNode(from)
	if userID == 0 {
		// Room presence and other non-user JIDs.
		return true
	}

	contact, known, err := c.store.Contact(ctx, userID)
	if err != nil {
		c.logger.Printf("[QBChat] cannot read contact %d: %v", userID, err)
		return true
	}

	switch typ {
	case "":
		if known && contact.Subscription != store.SubscriptionNone {
			c.fireContactList(userID, "")
		}
	case "subscribe":
		if known && contact.Subscription == store.SubscriptionTo {
			c.setContact(ctx, userID, store.Contact{Subscription: store.SubscriptionBoth})
			if err := c.roster.sendSubscriptionPresence(from, "subscribed"); err != nil {
				c.logger.Printf("[QBChat] auto-confirm of %s failed: %v", from, err)
			}
		} else {
			c.fireSubscription(c.subscribeListeners(), userID)
		}
	case "subscribed":
		if known && contact.Subscription == store.SubscriptionFrom {
			c.setContact(ctx, userID, store.Contact{Subscription: store.SubscriptionBoth})
		} else {
			c.setContact(ctx, userID, store.Contact{Subscription: store.SubscriptionTo})
			c.fireSubscription(c.confirmListeners(), userID)
		}
	case "unsubscribed":
		c.setContact(ctx, userID, store.Contact{Subscription: store.SubscriptionNone})
		c.fireSubscription(c.rejectListeners(), userID)
	case "unsubscribe":
		c.setContact(ctx, userID, store.Contact{Subscription: store.SubscriptionTo})
	case "unavailable":
		if known && contact.Subscription != store.SubscriptionNone {
			c.fireContactList(userID, typ)
		}
	}
	return true
}

// handleIQ answers server pings; other IQs are left to their handlers.
func (c *Client) handleIQ(stanza *xmpp.Element) bool {
	if stanza.Attr("type") != "get" || stanza.ChildNS("ping", xmpp.NSPing) == nil {
		return true
	}
	reply := xmpp.NewIQ("type", "result", "id", stanza.Attr("id"), "to", stanza.Attr("from"), "from", c.transport.JID())
	if err := c.transport.Send(reply); err != nil {
		c.logger.Printf("[QBChat] ping reply failed: %v", err)
	}
	return true
}

func (c *Client) setContact(ctx context.Context, userID int, contact store.Contact) {
	if err := c.store.SetContact(ctx, userID, contact); err != nil {
		c.logger.Printf("[QBChat] cannot store contact %d: %v", userID, err)
	}
}

func (c *Client) fireContactList(userID int, typ string) {
	c.lmu.RLock()
	listeners := append([]ContactListListener{}, c.onContactList...)
	c.lmu.RUnlock()
	for _, fn := range listeners {
		fn(userID, typ)
	}
}

func (c *Client) subscribeListeners() []SubscriptionListener {
	c.lmu.RLock()
	defer c.lmu.RUnlock()
	return append([]SubscriptionListener{}, c.onSubscribe...)
}

func (c *Client) confirmListeners() []SubscriptionListener {
	c.lmu.RLock()
	defer c.lmu.RUnlock()
	return append([]SubscriptionListener{}, c.onConfirm...)
}

func (c *Client) rejectListeners() []SubscriptionListener {
	c.lmu.RLock()
	defer c.lmu.RUnlock()
	return append([]SubscriptionListener{}, c.onReject...)
}

func (c *Client) fireSubscription(listeners []SubscriptionListener, userID int) {
	for _, fn := range listeners {
		fn(userID)
	}
}
