/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package videochat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// SessionParams configures a CallSession.
type SessionParams struct {
	// SessionID correlates the signaling of one call. Defaults to the
	// current Unix time in milliseconds.
	SessionID string
	// SessionDescription is the remote offer SDP of an incoming call.
	SessionDescription string
	// Constraints select local media. Defaults to audio and video.
	Constraints *MediaConstraints
	// Renderer receives the remote stream once it arrives.
	Renderer Renderer

	OnGetUserMediaSuccess func(stream LocalStream)
	OnGetUserMediaError   func(err error)
	// OnError receives every *NegotiationError.
	OnError func(err error)

	Logger  qbsdk.Logger
	Metrics *metrics.Metrics
}

// CallSession owns one peer connection and negotiates it with a single
// opponent. Local ICE candidates are held until a remote description is
// accepted and then relayed last-in first-out.
type CallSession struct {
	signaling SignalingChannel
	factory   PeerFactory
	media     MediaSource
	params    SessionParams
	logger    qbsdk.Logger
	metrics   *metrics.Metrics
	sessionID string

	// relayMu orders the queue drain before any directly relayed candidate.
	relayMu sync.Mutex

	mu           sync.Mutex
	state        State
	closed       bool
	opponentID   int
	extra        ExtraParams
	pc           PeerConnection
	localStream  LocalStream
	remoteStream RemoteStream
	localDesc    *webrtc.SessionDescription
	remoteDesc   *webrtc.SessionDescription
	queue        []Candidate
	unsubscribe  func()
}

// NewCallSession creates a session and subscribes it to signaling for its
// session id. Call GetUserMedia before Call or Accept.
func NewCallSession(signaling SignalingChannel, factory PeerFactory, media MediaSource, params *SessionParams) *CallSession {
	if params == nil {
		params = &SessionParams{}
	}
	p := *params
	if p.SessionID == "" {
		p.SessionID = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	if p.Constraints == nil {
		c := DefaultConstraints()
		p.Constraints = &c
	}
	if p.Logger == nil {
		p.Logger = qbsdk.NopLogger()
	}

	s := &CallSession{
		signaling: signaling,
		factory:   factory,
		media:     media,
		params:    p,
		logger:    p.Logger,
		metrics:   p.Metrics,
		sessionID: p.SessionID,
		state:     StateInactive,
	}
	s.unsubscribe = signaling.Subscribe(s.sessionID, sessionListener{s})
	s.metrics.SessionOpened()
	return s
}

// GetUserMedia acquires local media and creates the peer connection with
// the local tracks attached. A second call returns the acquired stream.
func (s *CallSession) GetUserMedia(ctx context.Context) (LocalStream, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.pc != nil {
		stream := s.localStream
		s.mu.Unlock()
		return stream, nil
	}
	s.mu.Unlock()

	stream, err := s.media.GetUserMedia(ctx, *s.params.Constraints)
	if err != nil {
		if s.params.OnGetUserMediaError != nil {
			s.params.OnGetUserMediaError(err)
		}
		return nil, s.fail(StepUserMedia, err)
	}

	pc, err := s.factory.NewPeerConnection()
	if err != nil {
		_ = stream.Stop()
		return nil, s.fail(StepPeerConnection, err)
	}
	if err := pc.AddStream(stream); err != nil {
		_ = stream.Stop()
		_ = pc.Close()
		return nil, s.fail(StepPeerConnection, err)
	}
	pc.OnICECandidate(s.onLocalCandidate)
	pc.OnRemoteStream(s.onRemoteStream)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = stream.Stop()
		_ = pc.Close()
		return nil, ErrSessionClosed
	}
	s.pc = pc
	s.localStream = stream
	s.mu.Unlock()

	s.logger.Printf("[QBVideoChat] session %s acquired local stream %s", s.sessionID, stream.ID())
	if s.params.OnGetUserMediaSuccess != nil {
		s.params.OnGetUserMediaSuccess(stream)
	}
	return stream, nil
}

// Call sends a call request to opponentID. When a local description
// already exists it is re-sent as is to the original opponent with the
// original extra params; opponentID and extra are ignored.
func (s *CallSession) Call(opponentID int, extra ExtraParams) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.localDesc != nil {
		// Re-invites go to the opponent of the first call.
		sdp, to, prev := s.localDesc.SDP, s.opponentID, s.extra
		s.mu.Unlock()
		return s.sendCall(to, sdp, prev)
	}
	pc := s.pc
	if pc == nil {
		s.mu.Unlock()
		return ErrNoPeerConnection
	}
	s.opponentID = opponentID
	s.extra = extra
	s.mu.Unlock()

	offer, err := pc.CreateOffer()
	if err != nil {
		return s.fail(StepCreateOffer, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return s.fail(StepSetLocalDescription, err)
	}

	s.mu.Lock()
	s.localDesc = &offer
	s.mu.Unlock()

	return s.sendCall(opponentID, offer.SDP, extra)
}

func (s *CallSession) sendCall(opponentID int, sdp string, extra ExtraParams) error {
	if err := s.signaling.Call(opponentID, sdp, s.sessionID, extra); err != nil {
		return s.fail(StepSignaling, err)
	}
	return nil
}

// Accept answers the incoming call offer from opponentID.
func (s *CallSession) Accept(opponentID int, extra ExtraParams) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.pc == nil {
		s.mu.Unlock()
		return ErrNoPeerConnection
	}
	offer := s.params.SessionDescription
	if offer == "" {
		s.mu.Unlock()
		return ErrNoRemoteOffer
	}
	s.opponentID = opponentID
	s.extra = extra
	s.mu.Unlock()

	return s.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer})
}

// Reject declines a call. No peer connection is needed. The session stays
// subscribed to signaling and counted as active until Hangup.
func (s *CallSession) Reject(opponentID int, extra ExtraParams) error {
	s.mu.Lock()
	s.opponentID = opponentID
	s.mu.Unlock()
	return s.signaling.Reject(opponentID, s.sessionID, extra)
}

// Stop tells opponentID the call is over. It releases nothing; call Hangup
// for that.
func (s *CallSession) Stop(opponentID int, extra ExtraParams) error {
	return s.signaling.Stop(opponentID, s.sessionID, extra)
}

// AddCandidate adds a remote ICE candidate to the peer connection.
func (s *CallSession) AddCandidate(candidate Candidate) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return ErrNoPeerConnection
	}
	if err := pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

// Hangup releases the local stream and the peer connection and detaches
// the session from signaling. It does not notify the opponent. Calls after
// the first return ErrSessionClosed.
func (s *CallSession) Hangup() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	s.state = StateInactive
	unsubscribe := s.unsubscribe
	stream := s.localStream
	pc := s.pc
	s.unsubscribe = nil
	s.pc = nil
	s.queue = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	var errs []error
	if stream != nil {
		if err := stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop local stream: %w", err))
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.metrics.SessionClosed()
	s.logger.Printf("[QBVideoChat] session %s hung up", s.sessionID)
	return errors.Join(errs...)
}

// setRemoteDescription flips the session to ESTABLISHING, relays the held
// candidates and applies desc. An offer is answered.
func (s *CallSession) setRemoteDescription(desc webrtc.SessionDescription) error {
	s.relayMu.Lock()
	s.mu.Lock()
	pc := s.pc
	if pc == nil {
		s.mu.Unlock()
		s.relayMu.Unlock()
		return ErrNoPeerConnection
	}
	s.state = StateEstablishing
	queued := s.queue
	s.queue = nil
	opponentID := s.opponentID
	s.mu.Unlock()

	for i := len(queued) - 1; i >= 0; i-- {
		s.relayCandidate(opponentID, queued[i])
	}
	s.relayMu.Unlock()

	if err := pc.SetRemoteDescription(desc); err != nil {
		return s.fail(StepSetRemoteDescription, err)
	}

	s.mu.Lock()
	s.remoteDesc = &desc
	extra := s.extra
	s.mu.Unlock()

	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}

	answer, err := pc.CreateAnswer()
	if err != nil {
		return s.fail(StepCreateAnswer, err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return s.fail(StepSetLocalDescription, err)
	}

	s.mu.Lock()
	s.localDesc = &answer
	s.mu.Unlock()

	if err := s.signaling.Accept(opponentID, answer.SDP, s.sessionID, extra); err != nil {
		return s.fail(StepSignaling, err)
	}
	return nil
}

func (s *CallSession) onLocalCandidate(candidate Candidate) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.state == StateInactive {
		s.queue = append(s.queue, candidate)
		s.mu.Unlock()
		return
	}
	opponentID := s.opponentID
	s.mu.Unlock()

	s.relayCandidate(opponentID, candidate)
}

func (s *CallSession) relayCandidate(opponentID int, candidate Candidate) {
	if err := s.signaling.SendCandidate(opponentID, candidate, s.sessionID); err != nil {
		s.logger.Printf("[QBVideoChat] session %s failed to relay candidate: %v", s.sessionID, err)
	}
}

func (s *CallSession) onRemoteStream(stream RemoteStream) {
	s.mu.Lock()
	s.remoteStream = stream
	renderer := s.params.Renderer
	s.mu.Unlock()

	s.logger.Printf("[QBVideoChat] session %s received remote stream %s", s.sessionID, stream.ID())
	if renderer == nil {
		return
	}
	if err := s.AttachMediaStream(renderer, stream); err != nil {
		s.logger.Printf("[QBVideoChat] failed to attach remote stream: %v", err)
	}
}

// AttachMediaStream renders stream on renderer.
func (s *CallSession) AttachMediaStream(renderer Renderer, stream MediaStream) error {
	if renderer == nil {
		return fmt.Errorf("renderer is required")
	}
	return renderer.Attach(stream)
}

// ReattachMediaStream renders the stream of src on dst.
func (s *CallSession) ReattachMediaStream(dst, src Renderer) error {
	if src == nil || src.Stream() == nil {
		return fmt.Errorf("source renderer has no stream")
	}
	return s.AttachMediaStream(dst, src.Stream())
}

func (s *CallSession) fail(step string, err error) error {
	negErr := &NegotiationError{Step: step, Err: err}
	s.logger.Printf("[QBVideoChat] session %s: %v", s.sessionID, negErr)
	if s.params.OnError != nil {
		s.params.OnError(negErr)
	}
	return negErr
}

func (s *CallSession) SessionID() string { return s.sessionID }

func (s *CallSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallSession) OpponentID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opponentID
}

// LocalDescription returns the local offer or answer, or nil.
func (s *CallSession) LocalDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localDesc
}

// RemoteDescription returns the applied remote description, or nil.
func (s *CallSession) RemoteDescription() *webrtc.SessionDescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDesc
}

// QueuedCandidates returns the candidates held while INACTIVE.
func (s *CallSession) QueuedCandidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Candidate(nil), s.queue...)
}

func (s *CallSession) LocalStream() LocalStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localStream
}

func (s *CallSession) RemoteStream() RemoteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteStream
}

// sessionListener receives this session's signals.
type sessionListener struct{ s *CallSession }

func (l sessionListener) OnAccept(signal *Signal) {
	l.s.mu.Lock()
	closed := l.s.closed
	l.s.mu.Unlock()
	if closed {
		return
	}
	// Failures already reach OnError.
	_ = l.s.setRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: signal.SDP})
}

func (l sessionListener) OnCandidate(candidate Candidate) {
	if err := l.s.AddCandidate(candidate); err != nil {
		l.s.logger.Printf("[QBVideoChat] session %s: %v", l.s.sessionID, err)
	}
}
