/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"unicode"

	"github.com/mitchellh/mapstructure"
	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// Message types.
const (
	TypeChat      = "chat"
	TypeGroupChat = "groupchat"
)

// ErrInvalidExtensionKey is returned for extension keys and attachment
// attributes that are not XML names.
var ErrInvalidExtensionKey = errors.New("invalid extension key")

// Attachment is an <attachment/> of a message's extra params.
type Attachment struct {
	ID    int               `json:"id,omitempty"`
	Size  int               `json:"size,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"` // remaining attributes, e.g. type, url, name
}

// Message is a chat message. Extension holds the <extraParams/> fields.
type Message struct {
	ID          string
	Type        string
	Body        string
	Extension   map[string]string
	Attachments []Attachment
}

// DecodeExtension decodes the extension fields into out, converting
// string values into the field types of out. Fields are matched by their
// json tag.
func (m *Message) DecodeExtension(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(m.Extension)
}

// validate checks that every extension key and attachment attribute can be
// written as an XML name.
func (m *Message) validate() error {
	for k := range m.Extension {
		if !isXMLName(k) || k == "attachment" {
			return fmt.Errorf("%w: %q", ErrInvalidExtensionKey, k)
		}
	}
	for _, a := range m.Attachments {
		for name := range a.Attrs {
			if !isXMLName(name) {
				return fmt.Errorf("%w: attachment attribute %q", ErrInvalidExtensionKey, name)
			}
		}
	}
	return nil
}

// isXMLName reports whether s is an unprefixed XML name.
func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func (m *Message) stanza(from, to string) *xmpp.Element {
	msg := xmpp.NewMessage("from", from, "to", to, "type", m.Type, "id", m.ID)
	if m.Body != "" {
		msg.C("body", xmpp.NSClient).T(m.Body)
	}

	if len(m.Extension) == 0 && len(m.Attachments) == 0 {
		return msg
	}

	extra := msg.C("extraParams", xmpp.NSClient)
	keys := make([]string, 0, len(m.Extension))
	for k := range m.Extension {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		extra.C(k, "").T(m.Extension[k])
	}

	for _, a := range m.Attachments {
		el := extra.C("attachment", "")
		if a.ID != 0 {
			el.SetAttr("id", strconv.Itoa(a.ID))
		}
		if a.Size != 0 {
			el.SetAttr("size", strconv.Itoa(a.Size))
		}
		names := make([]string, 0, len(a.Attrs))
		for name := range a.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			el.SetAttr(name, a.Attrs[name])
		}
	}
	return msg
}

// parseMessage reads type, body and extra params of a <message/>.
func parseMessage(stanza *xmpp.Element) *Message {
	msg := &Message{
		ID:   stanza.Attr("id"),
		Type: stanza.Attr("type"),
	}
	if body := stanza.Child("body"); body != nil {
		msg.Body = body.Text
	}

	extra := stanza.Child("extraParams")
	if extra == nil {
		return msg
	}
	for _, child := range extra.Children {
		if child.Name != "attachment" {
			if msg.Extension == nil {
				msg.Extension = make(map[string]string)
			}
			msg.Extension[child.Name] = child.Text
			continue
		}

		var a Attachment
		for _, attr := range child.Attrs {
			switch attr.Name {
			case "id":
				a.ID, _ = strconv.Atoi(attr.Value)
			case "size":
				a.Size, _ = strconv.Atoi(attr.Value)
			default:
				if a.Attrs == nil {
					a.Attrs = make(map[string]string)
				}
				a.Attrs[attr.Name] = attr.Value
			}
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return msg
}

// findDeep returns the first descendant named name.
func findDeep(el *xmpp.Element, name string) *xmpp.Element {
	for _, child := range el.Children {
		if child.Name == name {
			return child
		}
		if found := findDeep(child, name); found != nil {
			return found
		}
	}
	return nil
}
