/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

// Status is a connection status reported to the StatusFunc.
type Status int

const (
	StatusError Status = iota
	StatusConnecting
	StatusConnFail
	StatusAuthenticating
	StatusAuthFail
	StatusConnected
	StatusDisconnected
	StatusDisconnecting
	StatusAttached
)

func (s Status) String() string {
	switch s {
	case StatusError:
		return "ERROR"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnFail:
		return "CONNFAIL"
	case StatusAuthenticating:
		return "AUTHENTICATING"
	case StatusAuthFail:
		return "AUTHFAIL"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusDisconnecting:
		return "DISCONNECTING"
	case StatusAttached:
		return "ATTACHED"
	default:
		return "UNKNOWN"
	}
}

// StatusFunc receives status transitions. condition carries the failure
// detail, if any.
type StatusFunc func(status Status, condition string)
