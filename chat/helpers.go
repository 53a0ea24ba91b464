/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// Helpers converts between QuickBlox user ids and JIDs.
type Helpers struct {
	chatDomain string
	transport  xmpp.Transport
	oid        *ObjectIDGenerator
}

func newHelpers(config *Config, transport xmpp.Transport) *Helpers {
	return &Helpers{
		chatDomain: config.ChatEndpoint,
		transport:  transport,
		oid:        NewObjectIDGenerator(),
	}
}

// UserJID returns <id>-<appID>@<chat domain>.
func (h *Helpers) UserJID(userID, appID int) string {
	return fmt.Sprintf("%d-%d@%s", userID, appID, h.chatDomain)
}

// IDFromNode returns the user id of a user JID, or 0.
func (h *Helpers) IDFromNode(jid string) int {
	return UserIDFromJID(jid)
}

// UserIDFromJID parses the id of <id>-<appID>@domain; 0 when jid is not
// a user JID.
func UserIDFromJID(jid string) int {
	node := xmpp.NodeFromJID(jid)
	if i := strings.IndexByte(node, '-'); i >= 0 {
		node = node[:i]
	}
	id, err := strconv.Atoi(node)
	if err != nil {
		return 0
	}
	return id
}

// IDFromResource returns the user id of a room occupant JID, or 0.
func (h *Helpers) IDFromResource(jid string) int {
	id, err := strconv.Atoi(xmpp.ResourceFromJID(jid))
	if err != nil {
		return 0
	}
	return id
}

// RoomJID returns the occupant JID of the current user in roomJID.
func (h *Helpers) RoomJID(roomJID string) string {
	return roomJID + "/" + strconv.Itoa(h.IDFromNode(h.transport.JID()))
}

// UniqueID returns a stanza id with the given suffix.
func (h *Helpers) UniqueID(suffix string) string {
	return h.transport.UniqueID(suffix)
}

// BSONObjectID returns a fresh 24 hex character object id.
func (h *Helpers) BSONObjectID() string {
	return h.oid.Next()
}

// ObjectIDGenerator produces BSON-style object ids: timestamp, machine,
// pid and a wrapping increment.
type ObjectIDGenerator struct {
	mu        sync.Mutex
	machine   uint32
	pid       uint32
	increment uint32
	now       func() time.Time
}

// NewObjectIDGenerator creates a generator with a random machine and pid.
func NewObjectIDGenerator() *ObjectIDGenerator {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ObjectIDGenerator{
		machine: uint32(r.Intn(1 << 24)),
		pid:     uint32(r.Intn(32767)),
		now:     time.Now,
	}
}

// Next returns the next id.
func (g *ObjectIDGenerator) Next() string {
	g.mu.Lock()
	inc := g.increment
	g.increment++
	if g.increment > 0xffffff {
		g.increment = 0
	}
	g.mu.Unlock()

	return fmt.Sprintf("%08x%06x%04x%06x", uint32(g.now().Unix()), g.machine, g.pid, inc)
}
