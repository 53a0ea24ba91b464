/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package videochat

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/tejzpr/quickblox-go-sdk/chat"
	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// Extra params keys of the wire format.
const (
	paramModule        = "moduleIdentifier"
	paramSignalingType = "videochat_signaling_type"
	paramSessionID     = "sessionID"
	paramSDP           = "sdp"
	paramCandidate     = "candidate"
	paramSDPMid        = "sdpMid"
	paramSDPMLineIndex = "sdpMLineIndex"
)

var reservedParams = map[string]bool{
	paramModule:        true,
	paramSignalingType: true,
	paramSessionID:     true,
	paramSDP:           true,
	paramCandidate:     true,
	paramSDPMid:        true,
	paramSDPMLineIndex: true,
}

// Messenger carries signaling messages. *chat.Client implements it.
type Messenger interface {
	Send(jid string, message *chat.Message) error
	AddSignalHandler(fn chat.SignalHandler)
	UserJID(userID int) string
}

// SessionListener receives the signals addressed to one call session.
type SessionListener interface {
	OnAccept(signal *Signal)
	OnCandidate(candidate Candidate)
}

// SignalingChannel is the session's view of the signaling layer.
type SignalingChannel interface {
	Call(opponentID int, sdp, sessionID string, extra ExtraParams) error
	Accept(opponentID int, sdp, sessionID string, extra ExtraParams) error
	Reject(opponentID int, sessionID string, extra ExtraParams) error
	Stop(opponentID int, sessionID string, extra ExtraParams) error
	SendCandidate(opponentID int, candidate Candidate, sessionID string) error
	// Subscribe routes signals of sessionID to listener until the returned
	// function is called.
	Subscribe(sessionID string, listener SessionListener) (unsubscribe func())
}

// SignalListener receives call control signals.
type SignalListener func(signal *Signal)

// Signaling maps call actions to chat messages and back. Session
// listeners are keyed by session id so concurrent sessions on one channel
// never receive each other's signals.
type Signaling struct {
	messenger Messenger
	logger    qbsdk.Logger
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]SessionListener
	onCall   []SignalListener
	onAccept []SignalListener
	onReject []SignalListener
	onStop   []SignalListener
}

// NewSignaling creates a signaling channel over messenger.
func NewSignaling(messenger Messenger, logger qbsdk.Logger, m *metrics.Metrics) *Signaling {
	if logger == nil {
		logger = qbsdk.NopLogger()
	}
	s := &Signaling{
		messenger: messenger,
		logger:    logger,
		metrics:   m,
		sessions:  make(map[string]SessionListener),
	}
	messenger.AddSignalHandler(s.dispatch)
	return s
}

// Call sends a call request carrying the local offer.
func (s *Signaling) Call(opponentID int, sdp, sessionID string, extra ExtraParams) error {
	return s.send(opponentID, SignalCall, sessionID, extra, map[string]string{paramSDP: sdp})
}

// Accept answers a call with the local answer.
func (s *Signaling) Accept(opponentID int, sdp, sessionID string, extra ExtraParams) error {
	return s.send(opponentID, SignalAccept, sessionID, extra, map[string]string{paramSDP: sdp})
}

// Reject declines a call.
func (s *Signaling) Reject(opponentID int, sessionID string, extra ExtraParams) error {
	return s.send(opponentID, SignalReject, sessionID, extra, nil)
}

// Stop ends a call.
func (s *Signaling) Stop(opponentID int, sessionID string, extra ExtraParams) error {
	return s.send(opponentID, SignalStop, sessionID, extra, nil)
}

// SendCandidate relays one local ICE candidate.
func (s *Signaling) SendCandidate(opponentID int, candidate Candidate, sessionID string) error {
	return s.send(opponentID, SignalCandidate, sessionID, nil, map[string]string{
		paramCandidate:     candidate.Candidate,
		paramSDPMid:        candidate.SDPMid,
		paramSDPMLineIndex: strconv.Itoa(int(candidate.SDPMLineIndex)),
	})
}

func (s *Signaling) send(opponentID int, typ, sessionID string, extra ExtraParams, fields map[string]string) error {
	if opponentID <= 0 {
		return fmt.Errorf("opponentID is required")
	}

	ext := make(map[string]string, len(extra)+len(fields)+3)
	for k, v := range extra {
		ext[k] = v
	}
	for k, v := range fields {
		ext[k] = v
	}
	ext[paramModule] = chat.VideoChatModule
	ext[paramSignalingType] = typ
	ext[paramSessionID] = sessionID

	msg := &chat.Message{Type: "headline", Extension: ext}
	if err := s.messenger.Send(s.messenger.UserJID(opponentID), msg); err != nil {
		return fmt.Errorf("error sending %s: %w", typ, err)
	}

	s.metrics.Signal(metrics.Outbound, typ)
	s.logger.Printf("[QBSignaling] sent %s to %d (session %s)", typ, opponentID, sessionID)
	return nil
}

// Subscribe routes accept and candidate signals of sessionID to listener.
// A later subscription for the same id replaces the earlier one.
func (s *Signaling) Subscribe(sessionID string, listener SessionListener) func() {
	s.mu.Lock()
	s.sessions[sessionID] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if s.sessions[sessionID] == listener {
			delete(s.sessions, sessionID)
		}
		s.mu.Unlock()
	}
}

// OnCall registers a listener for incoming calls.
func (s *Signaling) OnCall(fn SignalListener) {
	s.mu.Lock()
	s.onCall = append(s.onCall, fn)
	s.mu.Unlock()
}

// OnAccept registers a listener for accepted calls.
func (s *Signaling) OnAccept(fn SignalListener) {
	s.mu.Lock()
	s.onAccept = append(s.onAccept, fn)
	s.mu.Unlock()
}

// OnReject registers a listener for rejected calls.
func (s *Signaling) OnReject(fn SignalListener) {
	s.mu.Lock()
	s.onReject = append(s.onReject, fn)
	s.mu.Unlock()
}

// OnStop registers a listener for stopped calls.
func (s *Signaling) OnStop(fn SignalListener) {
	s.mu.Lock()
	s.onStop = append(s.onStop, fn)
	s.mu.Unlock()
}

func (s *Signaling) dispatch(from string, msg *chat.Message) {
	signal := parseSignal(from, msg)
	s.metrics.Signal(metrics.Inbound, signal.Type)
	s.logger.Printf("[QBSignaling] received %s from %d (session %s)", signal.Type, signal.OpponentID, signal.SessionID)

	s.mu.RLock()
	session := s.sessions[signal.SessionID]
	var listeners []SignalListener
	switch signal.Type {
	case SignalCall:
		listeners = append(listeners, s.onCall...)
	case SignalAccept:
		listeners = append(listeners, s.onAccept...)
	case SignalReject:
		listeners = append(listeners, s.onReject...)
	case SignalStop:
		listeners = append(listeners, s.onStop...)
	}
	s.mu.RUnlock()

	switch signal.Type {
	case SignalAccept:
		if session != nil {
			session.OnAccept(signal)
		}
	case SignalCandidate:
		if session == nil || signal.Candidate == nil {
			s.logger.Printf("[QBSignaling] dropping candidate for unknown session %s", signal.SessionID)
			return
		}
		session.OnCandidate(*signal.Candidate)
		return
	case SignalCall, SignalReject, SignalStop:
	default:
		s.logger.Printf("[QBSignaling] unknown signal type %q", signal.Type)
		return
	}

	for _, fn := range listeners {
		fn(signal)
	}
}

func parseSignal(from string, msg *chat.Message) *Signal {
	ext := msg.Extension
	signal := &Signal{
		Type:       ext[paramSignalingType],
		From:       from,
		OpponentID: chat.UserIDFromJID(from),
		SessionID:  ext[paramSessionID],
		SDP:        ext[paramSDP],
	}

	if signal.Type == SignalCandidate {
		index, _ := strconv.Atoi(ext[paramSDPMLineIndex])
		signal.Candidate = &Candidate{
			Candidate:     ext[paramCandidate],
			SDPMid:        ext[paramSDPMid],
			SDPMLineIndex: uint16(index),
		}
	}

	for k, v := range ext {
		if reservedParams[k] {
			continue
		}
		if signal.Extra == nil {
			signal.Extra = make(ExtraParams)
		}
		signal.Extra[k] = v
	}
	return signal
}
