/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package xmpp

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeServer is a minimal RFC 7395 server: PLAIN auth, bind, then an echo
// of IQ gets as results and a record of every other stanza.
type fakeServer struct {
	t        *testing.T
	server   *httptest.Server
	password string

	// writeMu serializes writes from serve and push on one socket.
	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	received []*Element
	arrived  chan *Element
}

func newFakeServer(t *testing.T, password string) *fakeServer {
	fs := &fakeServer{t: t, password: password, arrived: make(chan *Element, 64)}
	upgrader := websocket.Upgrader{Subprotocols: []string{"xmpp"}}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		fs.mu.Lock()
		fs.conn = conn
		fs.mu.Unlock()
		fs.serve(conn)
	}))
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *fakeServer) write(conn *websocket.Conn, raw string) {
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		fs.t.Logf("server write failed: %v", err)
	}
}

func (fs *fakeServer) read(conn *websocket.Conn) *Element {
	el, err := readElement(conn)
	if err != nil {
		return nil
	}
	return el
}

func (fs *fakeServer) serve(conn *websocket.Conn) {
	defer conn.Close()

	open := `<open xmlns="urn:ietf:params:xml:ns:xmpp-framing" from="chat.quickblox.com" id="s1" version="1.0"/>`

	if el := fs.read(conn); el == nil || el.Name != "open" {
		return
	}
	fs.write(conn, open)
	fs.write(conn, `<stream:features xmlns:stream="http://etherx.jabber.org/streams">`+
		`<mechanisms xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><mechanism>PLAIN</mechanism></mechanisms></stream:features>`)

	auth := fs.read(conn)
	if auth == nil || auth.Name != "auth" {
		return
	}
	decoded, _ := base64.StdEncoding.DecodeString(auth.Text)
	parts := strings.Split(string(decoded), "\x00")
	if len(parts) != 3 || parts[2] != fs.password {
		fs.write(conn, `<failure xmlns="urn:ietf:params:xml:ns:xmpp-sasl"><not-authorized/></failure>`)
		return
	}
	fs.write(conn, `<success xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)

	if el := fs.read(conn); el == nil || el.Name != "open" {
		return
	}
	fs.write(conn, open)
	fs.write(conn, `<stream:features xmlns:stream="http://etherx.jabber.org/streams">`+
		`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"/><session xmlns="urn:ietf:params:xml:ns:xmpp-session"/></stream:features>`)

	bind := fs.read(conn)
	if bind == nil {
		return
	}
	resource := bind.Child("bind").ChildText("resource")
	fs.write(conn, `<iq xmlns="jabber:client" type="result" id="`+bind.Attr("id")+`">`+
		`<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>42-92@chat.quickblox.com/`+resource+`</jid></bind></iq>`)

	sess := fs.read(conn)
	if sess == nil {
		return
	}
	fs.write(conn, `<iq xmlns="jabber:client" type="result" id="`+sess.Attr("id")+`"/>`)

	for {
		el := fs.read(conn)
		if el == nil {
			return
		}
		if el.Name == "close" {
			fs.write(conn, `<close xmlns="urn:ietf:params:xml:ns:xmpp-framing"/>`)
			return
		}
		fs.mu.Lock()
		fs.received = append(fs.received, el)
		fs.mu.Unlock()
		fs.arrived <- el

		if el.Name == "iq" && el.Attr("type") == "get" {
			if el.Child("query") != nil && el.Child("query").Space == "urn:test:denied" {
				fs.write(conn, `<iq xmlns="jabber:client" type="error" id="`+el.Attr("id")+`">`+
					`<error type="auth"><forbidden xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/></error></iq>`)
				continue
			}
			fs.write(conn, `<iq xmlns="jabber:client" type="result" id="`+el.Attr("id")+`">`+
				`<query xmlns="jabber:iq:roster"><item jid="7-92@chat.quickblox.com" subscription="both"/></query></iq>`)
		}
	}
}

// push sends a raw stanza to the client.
func (fs *fakeServer) push(raw string) {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	fs.write(conn, raw)
}

// drop closes the socket without a stream close.
func (fs *fakeServer) drop() {
	fs.mu.Lock()
	conn := fs.conn
	fs.mu.Unlock()
	conn.Close()
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
	ch       chan Status
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{ch: make(chan Status, 32)}
}

func (r *statusRecorder) fn(s Status, _ string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *statusRecorder) waitFor(t *testing.T, want Status) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for status %s", want)
		}
	}
}

func testConn(fs *fakeServer) *Conn {
	cfg := DefaultConfig()
	cfg.URL = fs.url()
	cfg.Resource = "test"
	cfg.IQTimeout = 2 * time.Second
	cfg.PingInterval = 0
	return NewConn(cfg)
}

func TestConn_ConnectSendIQ(t *testing.T) {
	fs := newFakeServer(t, "secret")
	defer fs.server.Close()

	conn := testConn(fs)
	rec := newStatusRecorder()

	if err := conn.Connect(context.Background(), "42-92@chat.quickblox.com", "secret", rec.fn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	if conn.JID() != "42-92@chat.quickblox.com/test" {
		t.Errorf("Unexpected bound JID %q", conn.JID())
	}

	rec.mu.Lock()
	got := append([]Status(nil), rec.statuses...)
	rec.mu.Unlock()
	want := []Status{StatusConnecting, StatusAuthenticating, StatusConnected}
	if len(got) != len(want) {
		t.Fatalf("Expected statuses %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected statuses %v, got %v", want, got)
		}
	}

	iq := NewIQ("type", "get")
	iq.C("query", NSRoster)
	res, err := conn.SendIQ(context.Background(), iq)
	if err != nil {
		t.Fatalf("SendIQ failed: %v", err)
	}
	if res.Attr("id") != iq.Attr("id") || iq.Attr("id") == "" {
		t.Errorf("Expected result with assigned id, got %q vs %q", res.Attr("id"), iq.Attr("id"))
	}
	items := res.Child("query").ChildrenNamed("item")
	if len(items) != 1 || items[0].Attr("subscription") != "both" {
		t.Errorf("Unexpected roster %v", res)
	}

	denied := NewIQ("type", "get")
	denied.C("query", "urn:test:denied")
	_, err = conn.SendIQ(context.Background(), denied)
	var se *StanzaError
	if !errors.As(err, &se) || se.Condition != "forbidden" {
		t.Errorf("Expected forbidden stanza error, got %v", err)
	}
}

func TestConn_HandlersReceiveStanzas(t *testing.T) {
	fs := newFakeServer(t, "secret")
	defer fs.server.Close()

	conn := testConn(fs)
	if err := conn.Connect(context.Background(), "42-92@chat.quickblox.com", "secret", nil); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	got := make(chan *Element, 1)
	conn.AddHandler(func(s *Element) bool {
		got <- s
		return false
	}, "", "message", "chat", "", "")

	fs.push(`<message xmlns="jabber:client" type="chat" from="7-92@chat.quickblox.com/x"><body>hi</body></message>`)

	select {
	case s := <-got:
		if s.ChildText("body") != "hi" {
			t.Errorf("Unexpected body %q", s.ChildText("body"))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for message")
	}

	if err := conn.Send(NewPresence()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case el := <-fs.arrived:
		if el.Name != "presence" {
			t.Errorf("Expected presence, got %s", el.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for presence at server")
	}
}

func TestConn_AuthFail(t *testing.T) {
	fs := newFakeServer(t, "secret")
	defer fs.server.Close()

	conn := testConn(fs)
	rec := newStatusRecorder()

	err := conn.Connect(context.Background(), "42-92@chat.quickblox.com", "wrong", rec.fn)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Expected ErrAuthFailed, got %v", err)
	}
	rec.waitFor(t, StatusAuthFail)

	if err := conn.Send(NewPresence()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestConn_ConnFail(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1"
	cfg.HandshakeTimeout = time.Second
	conn := NewConn(cfg)
	rec := newStatusRecorder()

	err := conn.Connect(context.Background(), "42-92@chat.quickblox.com", "secret", rec.fn)
	if !errors.Is(err, ErrConnFailed) {
		t.Fatalf("Expected ErrConnFailed, got %v", err)
	}
	rec.waitFor(t, StatusConnFail)
}

func TestConn_DropReportsDisconnected(t *testing.T) {
	fs := newFakeServer(t, "secret")
	defer fs.server.Close()

	conn := testConn(fs)
	rec := newStatusRecorder()
	if err := conn.Connect(context.Background(), "42-92@chat.quickblox.com", "secret", rec.fn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	fs.drop()
	rec.waitFor(t, StatusDisconnected)

	if conn.IsConnected() {
		t.Error("Expected disconnected state")
	}
}

func TestConn_Disconnect(t *testing.T) {
	fs := newFakeServer(t, "secret")
	defer fs.server.Close()

	conn := testConn(fs)
	rec := newStatusRecorder()
	if err := conn.Connect(context.Background(), "42-92@chat.quickblox.com", "secret", rec.fn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	rec.waitFor(t, StatusDisconnecting)
	rec.waitFor(t, StatusDisconnected)

	if err := conn.Disconnect(); err != nil {
		t.Errorf("Second disconnect should be a no-op, got %v", err)
	}
}

func TestConn_TimedHandler(t *testing.T) {
	conn := NewConn(nil)

	ticks := make(chan struct{}, 8)
	count := 0
	conn.AddTimedHandler(5*time.Millisecond, func() bool {
		count++
		ticks <- struct{}{}
		return count < 3
	})

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for tick")
		}
	}

	select {
	case <-ticks:
		t.Error("Expected timed handler to stop after returning false")
	case <-time.After(30 * time.Millisecond):
	}

	ref := conn.AddTimedHandler(time.Hour, func() bool { return true })
	conn.DeleteHandler(ref)
	conn.Reset()
}
