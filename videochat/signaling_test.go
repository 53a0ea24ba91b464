/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package videochat

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tejzpr/quickblox-go-sdk/chat"
)

type sentMessage struct {
	jid     string
	message *chat.Message
}

// fakeMessenger records sent messages and exposes the registered handler.
type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	handler chat.SignalHandler
	sendErr error
}

func (f *fakeMessenger) Send(jid string, message *chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{jid: jid, message: message})
	return nil
}

func (f *fakeMessenger) AddSignalHandler(fn chat.SignalHandler) { f.handler = fn }

func (f *fakeMessenger) UserJID(userID int) string {
	return fmt.Sprintf("%d-555@chat.quickblox.com", userID)
}

type recordingListener struct {
	accepts    []*Signal
	candidates []Candidate
}

func (r *recordingListener) OnAccept(signal *Signal)         { r.accepts = append(r.accepts, signal) }
func (r *recordingListener) OnCandidate(candidate Candidate) { r.candidates = append(r.candidates, candidate) }

func TestSignaling_Call(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSignaling(m, nil, nil)

	if err := s.Call(42, "v=0...offer", "1700000000000", ExtraParams{"foo": "1"}); err != nil {
		t.Fatalf("Failed to send call: %v", err)
	}

	if len(m.sent) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(m.sent))
	}
	sent := m.sent[0]
	if sent.jid != "42-555@chat.quickblox.com" {
		t.Errorf("Expected jid '42-555@chat.quickblox.com', got '%s'", sent.jid)
	}
	if sent.message.Type != "headline" {
		t.Errorf("Expected type 'headline', got '%s'", sent.message.Type)
	}

	want := map[string]string{
		"moduleIdentifier":         "WebRTCVideoChat",
		"videochat_signaling_type": SignalCall,
		"sessionID":                "1700000000000",
		"sdp":                      "v=0...offer",
		"foo":                      "1",
	}
	for k, v := range want {
		if got := sent.message.Extension[k]; got != v {
			t.Errorf("Expected %s '%s', got '%s'", k, v, got)
		}
	}
}

func TestSignaling_ReservedKeysWin(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSignaling(m, nil, nil)

	if err := s.Stop(7, "s1", ExtraParams{"sessionID": "spoofed", StopReasonParam: string(StopReasonManually)}); err != nil {
		t.Fatalf("Failed to send stop: %v", err)
	}

	ext := m.sent[0].message.Extension
	if ext["sessionID"] != "s1" {
		t.Errorf("Expected sessionID 's1', got '%s'", ext["sessionID"])
	}
	if ext[StopReasonParam] != string(StopReasonManually) {
		t.Errorf("Expected stop reason to pass through, got '%s'", ext[StopReasonParam])
	}
}

func TestSignaling_SendCandidate(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSignaling(m, nil, nil)

	c := Candidate{Candidate: "candidate:1 1 udp 2122260223 10.0.0.1 5000 typ host", SDPMid: "0", SDPMLineIndex: 1}
	if err := s.SendCandidate(42, c, "s1"); err != nil {
		t.Fatalf("Failed to send candidate: %v", err)
	}

	ext := m.sent[0].message.Extension
	if ext["videochat_signaling_type"] != SignalCandidate {
		t.Errorf("Expected type '%s', got '%s'", SignalCandidate, ext["videochat_signaling_type"])
	}
	if ext["candidate"] != c.Candidate || ext["sdpMid"] != "0" || ext["sdpMLineIndex"] != "1" {
		t.Errorf("Unexpected candidate fields: %v", ext)
	}
}

func TestSignaling_Errors(t *testing.T) {
	m := &fakeMessenger{sendErr: errors.New("not connected")}
	s := NewSignaling(m, nil, nil)

	if err := s.Reject(0, "s1", nil); err == nil {
		t.Error("Expected error for missing opponent, got nil")
	}
	if err := s.Reject(7, "s1", nil); err == nil {
		t.Error("Expected send error, got nil")
	}
}

func inbound(typ, sessionID string, extra map[string]string) *chat.Message {
	ext := map[string]string{
		"moduleIdentifier":         chat.VideoChatModule,
		"videochat_signaling_type": typ,
		"sessionID":                sessionID,
	}
	for k, v := range extra {
		ext[k] = v
	}
	return &chat.Message{Type: "headline", Extension: ext}
}

func TestSignaling_DispatchBySession(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSignaling(m, nil, nil)

	a := &recordingListener{}
	b := &recordingListener{}
	unsubscribeA := s.Subscribe("a", a)
	s.Subscribe("b", b)

	var accepted []*Signal
	s.OnAccept(func(signal *Signal) { accepted = append(accepted, signal) })

	from := "42-555@chat.quickblox.com/web"
	m.handler(from, inbound(SignalAccept, "a", map[string]string{"sdp": "answer-a", "foo": "1"}))
	m.handler(from, inbound(SignalCandidate, "b", map[string]string{"candidate": "c1", "sdpMid": "0", "sdpMLineIndex": "0"}))

	if len(a.accepts) != 1 || a.accepts[0].SDP != "answer-a" {
		t.Fatalf("Expected session a to receive the answer, got %v", a.accepts)
	}
	if a.accepts[0].OpponentID != 42 {
		t.Errorf("Expected opponent 42, got %d", a.accepts[0].OpponentID)
	}
	if a.accepts[0].Extra["foo"] != "1" || len(a.accepts[0].Extra) != 1 {
		t.Errorf("Expected extra {foo:1}, got %v", a.accepts[0].Extra)
	}
	if len(b.accepts) != 0 {
		t.Errorf("Expected session b to receive no accept, got %d", len(b.accepts))
	}
	if len(b.candidates) != 1 || b.candidates[0].Candidate != "c1" {
		t.Errorf("Expected session b to receive c1, got %v", b.candidates)
	}
	if len(accepted) != 1 {
		t.Errorf("Expected 1 application accept, got %d", len(accepted))
	}

	unsubscribeA()
	m.handler(from, inbound(SignalAccept, "a", map[string]string{"sdp": "again"}))
	if len(a.accepts) != 1 {
		t.Errorf("Expected no delivery after unsubscribe, got %d", len(a.accepts))
	}
}

func TestSignaling_SubscribeReplaces(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSignaling(m, nil, nil)

	first := &recordingListener{}
	second := &recordingListener{}
	unsubscribeFirst := s.Subscribe("a", first)
	s.Subscribe("a", second)

	// A stale unsubscribe keeps the replacement.
	unsubscribeFirst()
	m.handler("42-555@chat.quickblox.com", inbound(SignalAccept, "a", map[string]string{"sdp": "x"}))

	if len(first.accepts) != 0 {
		t.Errorf("Expected replaced listener to get nothing, got %d", len(first.accepts))
	}
	if len(second.accepts) != 1 {
		t.Errorf("Expected replacement to get the accept, got %d", len(second.accepts))
	}
}

func TestSignaling_ApplicationListeners(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSignaling(m, nil, nil)

	got := map[string]int{}
	s.OnCall(func(*Signal) { got[SignalCall]++ })
	s.OnReject(func(*Signal) { got[SignalReject]++ })
	s.OnStop(func(signal *Signal) {
		got[SignalStop]++
		if signal.Extra[StopReasonParam] != string(StopReasonNotAnswer) {
			t.Errorf("Expected stop reason, got %v", signal.Extra)
		}
	})

	from := "7-555@chat.quickblox.com"
	m.handler(from, inbound(SignalCall, "s1", map[string]string{"sdp": "offer"}))
	m.handler(from, inbound(SignalReject, "s1", nil))
	m.handler(from, inbound(SignalStop, "s1", map[string]string{StopReasonParam: string(StopReasonNotAnswer)}))
	m.handler(from, inbound("qbvideochat_unknown", "s1", nil))

	for _, typ := range []string{SignalCall, SignalReject, SignalStop} {
		if got[typ] != 1 {
			t.Errorf("Expected 1 %s, got %d", typ, got[typ])
		}
	}
}

func TestSignal_DecodeExtra(t *testing.T) {
	signal := &Signal{Extra: ExtraParams{"foo": "1", "name": "Alice"}}

	var out struct {
		Foo  int    `json:"foo"`
		Name string `json:"name"`
	}
	if err := signal.DecodeExtra(&out); err != nil {
		t.Fatalf("Failed to decode extra: %v", err)
	}
	if out.Foo != 1 || out.Name != "Alice" {
		t.Errorf("Expected {1 Alice}, got %+v", out)
	}
}
