/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// Config holds the configuration for the WebSocket transport
type Config struct {
	URL              string        // ws:// or wss:// endpoint speaking RFC 7395
	Resource         string        // Resource to bind; generated when empty
	HandshakeTimeout time.Duration // Bound on dial plus stream negotiation
	IQTimeout        time.Duration // Default wait for IQ replies
	PingInterval     time.Duration // WebSocket ping period; 0 disables
	Logger           qbsdk.Logger
	Metrics          *metrics.Metrics
}

// DefaultConfig returns the default configuration for the WebSocket transport
func DefaultConfig() *Config {
	return &Config{
		URL:              "ws://chat.quickblox.com:5290",
		HandshakeTimeout: 10 * time.Second,
		IQTimeout:        30 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Conn is an XMPP client stream over a WebSocket (RFC 7395).
type Conn struct {
	config *Config
	logger qbsdk.Logger
	router Router

	mu        sync.Mutex
	ws        *websocket.Conn
	jid       string
	connected bool
	closing   bool
	status    StatusFunc
	pending   map[string]chan *Element
	timed     map[HandlerRef]chan struct{}
	closeCh   chan struct{}
	done      chan struct{}

	writeMu sync.Mutex
}

// NewConn creates a WebSocket transport.
func NewConn(config *Config) *Conn {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = qbsdk.NopLogger()
	}
	return &Conn{
		config:  config,
		logger:  logger,
		pending: make(map[string]chan *Element),
		timed:   make(map[HandlerRef]chan struct{}),
	}
}

// Connect dials the endpoint and negotiates SASL PLAIN, resource binding and
// (when offered) a session.
func (c *Conn) Connect(ctx context.Context, jid, password string, status StatusFunc) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.status = status
	c.closing = false
	c.mu.Unlock()

	c.notify(StatusConnecting, "")

	if c.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
		defer cancel()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
		Subprotocols:     []string{"xmpp"},
	}
	ws, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		c.notify(StatusConnFail, err.Error())
		return fmt.Errorf("%w: %v", ErrConnFailed, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
	}

	bound, err := c.negotiate(ws, jid, password)
	if err != nil {
		_ = ws.Close()
		return err
	}
	_ = ws.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.ws = ws
	c.jid = bound
	c.connected = true
	c.closeCh = make(chan struct{})
	c.done = make(chan struct{})
	closeCh, done := c.closeCh, c.done
	c.mu.Unlock()

	go c.listen(ws, done)
	if c.config.PingInterval > 0 {
		go c.keepAlive(ws, closeCh, done)
	}

	c.logger.Printf("[XMPP] connected as %s", bound)
	c.notify(StatusConnected, "")
	return nil
}

// negotiate runs the stream handshake and returns the bound JID.
func (c *Conn) negotiate(ws *websocket.Conn, jid, password string) (string, error) {
	domain := DomainFromJID(jid)

	features, err := c.openStream(ws, domain)
	if err != nil {
		c.notify(StatusConnFail, err.Error())
		return "", fmt.Errorf("%w: %v", ErrConnFailed, err)
	}
	if !offersPlain(features) {
		c.notify(StatusConnFail, "no-plain-mechanism")
		return "", fmt.Errorf("%w: server does not offer SASL PLAIN", ErrConnFailed)
	}

	c.notify(StatusAuthenticating, "")
	creds := BareJID(jid) + "\x00" + NodeFromJID(jid) + "\x00" + password
	auth := NewElement("auth", NSSASL, "mechanism", "PLAIN").T(base64.StdEncoding.EncodeToString([]byte(creds)))
	if err := writeElement(ws, auth); err != nil {
		c.notify(StatusConnFail, err.Error())
		return "", fmt.Errorf("%w: %v", ErrConnFailed, err)
	}

	reply, err := readElement(ws)
	if err != nil {
		c.notify(StatusConnFail, err.Error())
		return "", fmt.Errorf("%w: %v", ErrConnFailed, err)
	}
	if reply.Name != "success" {
		condition := "not-authorized"
		if len(reply.Children) > 0 {
			condition = reply.Children[0].Name
		}
		c.notify(StatusAuthFail, condition)
		return "", fmt.Errorf("%w: %s", ErrAuthFailed, condition)
	}

	features, err = c.openStream(ws, domain)
	if err != nil {
		c.notify(StatusConnFail, err.Error())
		return "", fmt.Errorf("%w: %v", ErrConnFailed, err)
	}

	resource := c.config.Resource
	if resource == "" {
		resource = uuid.NewString()
	}
	bind := NewIQ("type", "set", "id", "_bind_auth_2")
	bind.C("bind", NSBind).C("resource", "").T(resource)
	res, err := exchange(ws, bind)
	if err != nil {
		c.notify(StatusConnFail, err.Error())
		return "", fmt.Errorf("%w: bind: %v", ErrConnFailed, err)
	}
	bound := res.Child("bind").ChildText("jid")
	if bound == "" {
		bound = BareJID(jid) + "/" + resource
	}

	if session := features.Child("session"); session != nil && session.Child("optional") == nil {
		sess := NewIQ("type", "set", "id", "_session_auth_2")
		sess.C("session", NSSession)
		if _, err := exchange(ws, sess); err != nil {
			c.notify(StatusConnFail, err.Error())
			return "", fmt.Errorf("%w: session: %v", ErrConnFailed, err)
		}
	}

	return bound, nil
}

// openStream sends <open/> and returns the stream features that follow.
func (c *Conn) openStream(ws *websocket.Conn, domain string) (*Element, error) {
	open := NewElement("open", NSFraming, "to", domain, "version", "1.0")
	if err := writeElement(ws, open); err != nil {
		return nil, err
	}
	for {
		el, err := readElement(ws)
		if err != nil {
			return nil, err
		}
		switch el.Name {
		case "open":
			continue
		case "features":
			return el, nil
		case "close":
			return nil, fmt.Errorf("stream closed by server")
		default:
			return nil, fmt.Errorf("unexpected <%s/> while opening stream", el.Name)
		}
	}
}

func offersPlain(features *Element) bool {
	for _, m := range features.Child("mechanisms").ChildrenNamed("mechanism") {
		if m.Text == "PLAIN" {
			return true
		}
	}
	return false
}

// exchange writes an IQ during negotiation and reads its reply.
func exchange(ws *websocket.Conn, iq *Element) (*Element, error) {
	if err := writeElement(ws, iq); err != nil {
		return nil, err
	}
	for {
		el, err := readElement(ws)
		if err != nil {
			return nil, err
		}
		if el.Name != "iq" || el.Attr("id") != iq.Attr("id") {
			continue
		}
		if el.Attr("type") == "error" {
			return nil, stanzaError(el)
		}
		return el, nil
	}
}

func writeElement(ws *websocket.Conn, el *Element) error {
	data, err := el.Marshal()
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func readElement(ws *websocket.Conn) (*Element, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// listen reads stanzas until the socket closes.
func (c *Conn) listen(ws *websocket.Conn, done chan struct{}) {
	var cause error
	defer func() {
		c.mu.Lock()
		wasClosing := c.closing
		c.connected = false
		c.ws = nil
		c.mu.Unlock()
		c.failPending()
		close(done)

		// A requested disconnect reports DISCONNECTED from Disconnect.
		if !wasClosing {
			condition := ""
			if cause != nil {
				condition = cause.Error()
			}
			c.logger.Printf("[XMPP] stream lost: %s", condition)
			c.notify(StatusDisconnected, condition)
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			cause = err
			return
		}
		stanza, err := Parse(data)
		if err != nil {
			c.logger.Printf("[XMPP] dropping unparsable frame: %v", err)
			continue
		}
		if stanza.Name == "close" {
			return
		}
		c.config.Metrics.Stanza(metrics.Inbound, stanza.Name)
		c.deliver(stanza)
	}
}

// deliver resolves IQ waiters, then runs matching handlers.
func (c *Conn) deliver(stanza *Element) {
	if stanza.Name == "iq" {
		typ := stanza.Attr("type")
		if typ == "result" || typ == "error" {
			c.mu.Lock()
			ch, ok := c.pending[stanza.Attr("id")]
			if ok {
				delete(c.pending, stanza.Attr("id"))
			}
			c.mu.Unlock()
			if ok {
				ch <- stanza
			}
		}
	}
	c.router.Dispatch(stanza)
}

func (c *Conn) keepAlive(ws *websocket.Conn, closeCh, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.PingInterval))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Printf("[XMPP] ping failed: %v", err)
				return
			}
		case <-closeCh:
			return
		case <-done:
			return
		}
	}
}

func (c *Conn) notify(status Status, condition string) {
	c.mu.Lock()
	fn := c.status
	c.mu.Unlock()
	if fn != nil {
		fn(status, condition)
	}
}

// Send writes a stanza.
func (c *Conn) Send(stanza *Element) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()
	if !connected || ws == nil {
		return ErrNotConnected
	}

	data, err := stanza.Marshal()
	if err != nil {
		return fmt.Errorf("error encoding stanza: %w", err)
	}

	c.writeMu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("error sending stanza: %w", err)
	}
	c.config.Metrics.Stanza(metrics.Outbound, stanza.Name)
	return nil
}

// SendIQ sends iq, assigning an id when it has none, and waits for the
// matching result. Error replies are returned as *StanzaError.
func (c *Conn) SendIQ(ctx context.Context, iq *Element) (*Element, error) {
	id := iq.Attr("id")
	if id == "" {
		id = c.UniqueID("sendIQ")
		iq.SetAttr("id", id)
	}

	ch := make(chan *Element, 1)
	c.mu.Lock()
	c.pending[id] = ch
	done := c.done
	c.mu.Unlock()

	if err := c.Send(iq); err != nil {
		c.dropPending(id)
		return nil, err
	}

	timeout := c.config.IQTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok || res == nil {
			return nil, ErrNotConnected
		}
		if res.Attr("type") == "error" {
			return res, stanzaError(res)
		}
		return res, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.dropPending(id)
		return nil, ErrIQTimeout
	case <-done:
		return nil, ErrNotConnected
	}
}

func (c *Conn) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPending releases every IQ waiter.
func (c *Conn) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *Element)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// AddHandler registers a stanza handler.
func (c *Conn) AddHandler(fn HandlerFunc, ns, name, typ, id, from string) HandlerRef {
	return c.router.Add(fn, ns, name, typ, id, from)
}

// DeleteHandler removes a stanza or timed handler.
func (c *Conn) DeleteHandler(ref HandlerRef) {
	c.mu.Lock()
	stop, ok := c.timed[ref]
	if ok {
		delete(c.timed, ref)
	}
	c.mu.Unlock()
	if ok {
		close(stop)
		return
	}
	c.router.Delete(ref)
}

// AddTimedHandler runs fn every period on its own goroutine.
func (c *Conn) AddTimedHandler(period time.Duration, fn TimedFunc) HandlerRef {
	ref := c.router.newRef()
	stop := make(chan struct{})

	c.mu.Lock()
	c.timed[ref] = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !fn() {
					c.mu.Lock()
					if _, ok := c.timed[ref]; ok {
						delete(c.timed, ref)
					}
					c.mu.Unlock()
					return
				}
			case <-stop:
				return
			}
		}
	}()
	return ref
}

// UniqueID returns a fresh stanza id.
func (c *Conn) UniqueID(suffix string) string {
	id := uuid.NewString()
	if suffix != "" {
		return id + ":" + suffix
	}
	return id
}

// JID returns the bound full JID.
func (c *Conn) JID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jid
}

// IsConnected reports whether the stream is up.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Flush is a no-op: WebSocket frames are written immediately.
func (c *Conn) Flush() error { return nil }

// Reset drops every handler, timed handler and pending IQ.
func (c *Conn) Reset() {
	c.router.Reset()

	c.mu.Lock()
	timed := c.timed
	c.timed = make(map[HandlerRef]chan struct{})
	c.mu.Unlock()
	for _, stop := range timed {
		close(stop)
	}

	c.failPending()
}

// Disconnect closes the stream and reports DISCONNECTING then DISCONNECTED.
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	if !c.connected || c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	ws := c.ws
	closeCh, done := c.closeCh, c.done
	c.mu.Unlock()

	c.notify(StatusDisconnecting, "")

	if data, err := NewElement("close", NSFraming).Marshal(); err == nil {
		c.writeMu.Lock()
		_ = ws.WriteMessage(websocket.TextMessage, data)
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Disconnected by client"))
		c.writeMu.Unlock()
	}
	close(closeCh)
	_ = ws.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	c.notify(StatusDisconnected, "")
	return nil
}
