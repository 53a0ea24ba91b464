/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

import "strings"

// NodeFromJID returns the local part of node@domain/resource.
func NodeFromJID(jid string) string {
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return ""
	}
	if slash := strings.IndexByte(jid, '/'); slash >= 0 && slash < at {
		return ""
	}
	return jid[:at]
}

// DomainFromJID returns the domain part.
func DomainFromJID(jid string) string {
	bare := BareJID(jid)
	if at := strings.IndexByte(bare, '@'); at >= 0 {
		return bare[at+1:]
	}
	return bare
}

// ResourceFromJID returns the resource part or "".
func ResourceFromJID(jid string) string {
	if slash := strings.IndexByte(jid, '/'); slash >= 0 {
		return jid[slash+1:]
	}
	return ""
}

// BareJID strips the resource.
func BareJID(jid string) string {
	if slash := strings.IndexByte(jid, '/'); slash >= 0 {
		return jid[:slash]
	}
	return jid
}
