/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package videochat negotiates peer-to-peer audio/video calls. Offers,
// answers, ICE candidates and call control travel as chat messages over
// the Signaling channel; a CallSession owns one peer connection.
package videochat

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Version of the video chat module.
const Version = "0.6.2"

// State of a call session.
type State string

const (
	StateInactive     State = "inactive"
	StateEstablishing State = "establishing"
)

// StopReason tags why a call was stopped. It travels opaquely in extra
// params.
type StopReason string

const (
	StopReasonManually      StopReason = "kStopVideoChatCallStatus_Manually"
	StopReasonBadConnection StopReason = "kStopVideoChatCallStatus_BadConnection"
	StopReasonCancel        StopReason = "kStopVideoChatCallStatus_Cancel"
	StopReasonNotAnswer     StopReason = "kStopVideoChatCallStatus_OpponentDidNotAnswer"
)

// StopReasonParam is the extra params key the call control helpers use for
// a StopReason.
const StopReasonParam = "stopReason"

// Signaling message types.
const (
	SignalCall      = "qbvideochat_call"
	SignalAccept    = "qbvideochat_acceptCall"
	SignalReject    = "qbvideochat_rejectCall"
	SignalStop      = "qbvideochat_stopCall"
	SignalCandidate = "qbvideochat_candidate"
)

// Candidate is an ICE candidate as relayed between peers.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// ExtraParams is an opaque payload attached to signaling messages.
type ExtraParams map[string]string

// Signal is an inbound signaling message.
type Signal struct {
	Type       string
	From       string // sender JID
	OpponentID int    // sender user id
	SessionID  string
	SDP        string
	Candidate  *Candidate
	Extra      ExtraParams
}

// DecodeExtra decodes the extra params into out, matching fields by json
// tag and converting from strings.
func (s *Signal) DecodeExtra(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]string(s.Extra))
}

var (
	// ErrNoPeerConnection is returned when an operation needs the peer
	// connection before GetUserMedia created it.
	ErrNoPeerConnection = errors.New("videochat: no peer connection")
	// ErrSessionClosed is returned by operations on a hung up session.
	ErrSessionClosed = errors.New("videochat: session closed")
	// ErrNoRemoteOffer is returned by Accept without a remote offer.
	ErrNoRemoteOffer = errors.New("videochat: no remote offer")
	// ErrNoLocalStream is returned when media was never acquired.
	ErrNoLocalStream = errors.New("videochat: no local stream")
)

// Negotiation steps that can fail.
const (
	StepUserMedia            = "getUserMedia"
	StepPeerConnection       = "createPeerConnection"
	StepCreateOffer          = "createOffer"
	StepCreateAnswer         = "createAnswer"
	StepSetLocalDescription  = "setLocalDescription"
	StepSetRemoteDescription = "setRemoteDescription"
	StepSignaling            = "signaling"
)

// NegotiationError reports a failed negotiation step. None are retried.
type NegotiationError struct {
	Step string
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("videochat: %s failed: %v", e.Step, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
