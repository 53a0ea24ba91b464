/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// Namespaces used by the SDK.
const (
	NSClient   = "jabber:client"
	NSFraming  = "urn:ietf:params:xml:ns:xmpp-framing"
	NSStream   = "http://etherx.jabber.org/streams"
	NSSASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	NSBind     = "urn:ietf:params:xml:ns:xmpp-bind"
	NSSession  = "urn:ietf:params:xml:ns:xmpp-session"
	NSStanzas  = "urn:ietf:params:xml:ns:xmpp-stanzas"
	NSRoster   = "jabber:iq:roster"
	NSMUC      = "http://jabber.org/protocol/muc"
	NSMUCUser  = "http://jabber.org/protocol/muc#user"
	NSCarbons  = "urn:xmpp:carbons:2"
	NSDelay    = "urn:xmpp:delay"
	NSJabberX  = "jabber:x:delay"
	NSPing     = "urn:xmpp:ping"
	NSDiscInfo = "http://jabber.org/protocol/disco#info"
)

// Attr is a single unqualified attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is a generic XML element. Stanzas, their payloads and stream
// level elements are all represented with it.
type Element struct {
	Name     string
	Space    string
	Attrs    []Attr
	Text     string
	Children []*Element
}

// NewElement creates an element. attrs are name/value pairs; pairs with an
// empty value are skipped.
func NewElement(name, space string, attrs ...string) *Element {
	e := &Element{Name: name, Space: space}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.SetAttr(attrs[i], attrs[i+1])
	}
	return e
}

// NewMessage creates a <message/> stanza.
func NewMessage(attrs ...string) *Element { return NewElement("message", NSClient, attrs...) }

// NewPresence creates a <presence/> stanza.
func NewPresence(attrs ...string) *Element { return NewElement("presence", NSClient, attrs...) }

// NewIQ creates an <iq/> stanza.
func NewIQ(attrs ...string) *Element { return NewElement("iq", NSClient, attrs...) }

// Attr returns the value of the named attribute or "".
func (e *Element) Attr(name string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present.
func (e *Element) HasAttr(name string) bool {
	if e == nil {
		return false
	}
	for _, a := range e.Attrs {
		if a.Name == name {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute. An empty value removes it.
func (e *Element) SetAttr(name, value string) *Element {
	for i, a := range e.Attrs {
		if a.Name == name {
			if value == "" {
				e.Attrs = append(e.Attrs[:i], e.Attrs[i+1:]...)
			} else {
				e.Attrs[i].Value = value
			}
			return e
		}
	}
	if value != "" {
		e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	}
	return e
}

// C appends a child element and returns it.
func (e *Element) C(name, space string, attrs ...string) *Element {
	child := NewElement(name, space, attrs...)
	e.Children = append(e.Children, child)
	return child
}

// T sets the character data and returns e.
func (e *Element) T(text string) *Element {
	e.Text = text
	return e
}

// Append adds existing elements as children and returns e.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Child returns the first child with the given local name.
func (e *Element) Child(name string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildNS returns the first child with the given local name and namespace.
func (e *Element) ChildNS(name, space string) *Element {
	if e == nil {
		return nil
	}
	for _, c := range e.Children {
		if c.Name == name && c.Space == space {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child with the given local name.
func (e *Element) ChildrenNamed(name string) []*Element {
	if e == nil {
		return nil
	}
	var out []*Element
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the text of the first named child, trimmed.
func (e *Element) ChildText(name string) string {
	if c := e.Child(name); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// MarshalXML writes the element with a plain xmlns attribute so that the
// output carries no generated prefixes.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	if e.Space != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "xmlns"}, Value: e.Space})
	}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.MarshalXML(enc, xml.StartElement{}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// UnmarshalXML reads an element tree. Namespace declarations are folded
// into Space and not kept as attributes.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.Name = start.Name.Local
	e.Space = start.Name.Space
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		e.Attrs = append(e.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
	}

	var text strings.Builder
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			e.Text = text.String()
			return nil
		}
	}
}

// String serializes the element; errors yield "".
func (e *Element) String() string {
	b, err := e.Marshal()
	if err != nil {
		return ""
	}
	return string(b)
}

// Marshal serializes the element.
func (e *Element) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := e.MarshalXML(enc, xml.StartElement{}); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a single element from data.
func Parse(data []byte) (*Element, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("error parsing stanza: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			e := &Element{}
			if err := e.UnmarshalXML(d, start); err != nil {
				return nil, fmt.Errorf("error parsing stanza: %w", err)
			}
			return e, nil
		}
	}
}
