/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when sending without a live stream.
	ErrNotConnected = errors.New("xmpp: not connected")
	// ErrConnFailed is returned when the socket or stream could not be opened.
	ErrConnFailed = errors.New("xmpp: connection failed")
	// ErrAuthFailed is returned when SASL authentication is rejected.
	ErrAuthFailed = errors.New("xmpp: authentication failed")
	// ErrIQTimeout is returned when no IQ result arrives in time.
	ErrIQTimeout = errors.New("xmpp: iq timed out")
)

// StanzaError is an <error/> reply to an IQ.
type StanzaError struct {
	Type      string
	Condition string
	Text      string
	Stanza    *Element
}

func (e *StanzaError) Error() string {
	msg := fmt.Sprintf("xmpp: stanza error %s/%s", e.Type, e.Condition)
	if e.Text != "" {
		msg += ": " + e.Text
	}
	return msg
}

// stanzaError extracts the error payload of a type="error" stanza.
func stanzaError(stanza *Element) *StanzaError {
	se := &StanzaError{Stanza: stanza}
	errEl := stanza.Child("error")
	if errEl == nil {
		se.Condition = "undefined-condition"
		return se
	}
	se.Type = errEl.Attr("type")
	for _, c := range errEl.Children {
		if c.Name == "text" {
			se.Text = c.Text
			continue
		}
		if se.Condition == "" {
			se.Condition = c.Name
		}
	}
	return se
}
