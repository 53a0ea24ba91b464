/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package videochat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

func TestICEServers(t *testing.T) {
	servers := ICEServers("", "", "")
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("Expected only Google STUN, got %v", servers)
	}

	servers = ICEServers("turn.quickblox.com", "", "")
	if len(servers) != 2 {
		t.Errorf("Expected TURN skipped without credentials, got %v", servers)
	}

	servers = ICEServers("turn.quickblox.com", "user", "secret")
	if len(servers) != 3 {
		t.Fatalf("Expected 3 ICE servers, got %d", len(servers))
	}
	if servers[1].URLs[0] != "stun:turn.quickblox.com" {
		t.Errorf("Expected 'stun:turn.quickblox.com', got '%s'", servers[1].URLs[0])
	}
	turn := servers[2]
	if turn.URLs[0] != "turn:turn.quickblox.com:3478?transport=udp" {
		t.Errorf("Expected udp TURN url, got '%s'", turn.URLs[0])
	}
	if turn.Username != "user" || turn.Credential != "secret" {
		t.Errorf("Expected TURN credentials, got %s/%v", turn.Username, turn.Credential)
	}
}

func TestPionPeer_OfferReceivesAudioAndVideo(t *testing.T) {
	pc, err := NewPionPeerFactory(nil).NewPeerConnection()
	if err != nil {
		t.Fatalf("Failed to create peer connection: %v", err)
	}
	defer pc.Close()

	offer, err := pc.CreateOffer()
	if err != nil {
		t.Fatalf("Failed to create offer: %v", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		t.Errorf("Expected offer, got %s", offer.Type)
	}
	for _, m := range []string{"m=audio", "m=video"} {
		if !strings.Contains(offer.SDP, m) {
			t.Errorf("Expected offer to contain %s", m)
		}
	}
}

func TestPionPeer_OfferAnswer(t *testing.T) {
	factory := NewPionPeerFactory(nil)
	caller, err := factory.NewPeerConnection()
	if err != nil {
		t.Fatalf("Failed to create caller: %v", err)
	}
	defer caller.Close()
	callee, err := factory.NewPeerConnection()
	if err != nil {
		t.Fatalf("Failed to create callee: %v", err)
	}
	defer callee.Close()

	stream, err := NewTrackMediaSource().GetUserMedia(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Failed to get user media: %v", err)
	}
	if err := caller.AddStream(stream); err != nil {
		t.Fatalf("Failed to add stream: %v", err)
	}

	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("Failed to create offer: %v", err)
	}
	if err := caller.SetLocalDescription(offer); err != nil {
		t.Fatalf("Failed to set local offer: %v", err)
	}

	// Candidates before the remote description are held.
	early := Candidate{Candidate: "candidate:1 1 udp 2122260223 127.0.0.1 50000 typ host", SDPMid: "0"}
	if err := callee.AddICECandidate(early); err != nil {
		t.Errorf("Expected early candidate to be held, got %v", err)
	}

	if err := callee.SetRemoteDescription(offer); err != nil {
		t.Fatalf("Failed to set remote offer: %v", err)
	}
	answer, err := callee.CreateAnswer()
	if err != nil {
		t.Fatalf("Failed to create answer: %v", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		t.Errorf("Expected answer, got %s", answer.Type)
	}
	if err := callee.SetLocalDescription(answer); err != nil {
		t.Fatalf("Failed to set local answer: %v", err)
	}
	if err := caller.SetRemoteDescription(answer); err != nil {
		t.Fatalf("Failed to set remote answer: %v", err)
	}
}

func TestPionPeer_CandidatesRacingRemoteDescription(t *testing.T) {
	factory := NewPionPeerFactory(nil)
	caller, err := factory.NewPeerConnection()
	if err != nil {
		t.Fatalf("Failed to create caller: %v", err)
	}
	defer caller.Close()
	callee, err := factory.NewPeerConnection()
	if err != nil {
		t.Fatalf("Failed to create callee: %v", err)
	}
	defer callee.Close()

	offer, err := caller.CreateOffer()
	if err != nil {
		t.Fatalf("Failed to create offer: %v", err)
	}
	if err := caller.SetLocalDescription(offer); err != nil {
		t.Fatalf("Failed to set local offer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := Candidate{Candidate: "candidate:1 1 udp 2122260223 127.0.0.1 50000 typ host", SDPMid: "0"}
			_ = callee.AddICECandidate(c)
		}()
	}
	if err := callee.SetRemoteDescription(offer); err != nil {
		t.Fatalf("Failed to set remote offer: %v", err)
	}
	wg.Wait()

	peer := callee.(*pionPeer)
	peer.candMu.Lock()
	defer peer.candMu.Unlock()
	if len(peer.early) != 0 {
		t.Errorf("Expected no candidates left held, got %d", len(peer.early))
	}
}

func TestCandidateConversion(t *testing.T) {
	c := Candidate{Candidate: "candidate:1", SDPMid: "1", SDPMLineIndex: 1}

	init := c.toICECandidateInit()
	if *init.SDPMid != "1" || *init.SDPMLineIndex != 1 {
		t.Errorf("Unexpected init: %+v", init)
	}
	if back := fromICECandidateInit(init); back != c {
		t.Errorf("Expected %+v, got %+v", c, back)
	}
	if got := fromICECandidateInit(webrtc.ICECandidateInit{Candidate: "x"}); got.SDPMid != "" || got.SDPMLineIndex != 0 {
		t.Errorf("Expected zero mid and index, got %+v", got)
	}
}

func TestTrackMediaSource(t *testing.T) {
	tests := []struct {
		name        string
		constraints MediaConstraints
		wantTracks  int
		wantErr     bool
	}{
		{"audio and video", DefaultConstraints(), 2, false},
		{"audio only", MediaConstraints{Audio: true}, 1, false},
		{"nothing", MediaConstraints{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := NewTrackMediaSource().GetUserMedia(context.Background(), tt.constraints)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Failed to get user media: %v", err)
			}
			if !strings.HasPrefix(stream.ID(), "qb-") {
				t.Errorf("Expected stream id prefix 'qb-', got '%s'", stream.ID())
			}
			if len(stream.Tracks()) != tt.wantTracks {
				t.Errorf("Expected %d tracks, got %d", tt.wantTracks, len(stream.Tracks()))
			}
		})
	}
}

func TestTrackStream_Stop(t *testing.T) {
	local, err := NewTrackMediaSource().GetUserMedia(context.Background(), MediaConstraints{Audio: true})
	if err != nil {
		t.Fatalf("Failed to get user media: %v", err)
	}
	stream := local.(*TrackStream)

	sample := media.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond}
	if err := stream.WriteAudio(sample); err != nil {
		t.Errorf("Expected write before stop to succeed, got %v", err)
	}
	if err := stream.WriteVideo(sample); err == nil {
		t.Error("Expected error writing uncaptured video, got nil")
	}

	if err := stream.Stop(); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Errorf("Expected second stop to be a no-op, got %v", err)
	}
	if !stream.Stopped() {
		t.Error("Expected stream to be stopped")
	}
	if err := stream.WriteAudio(sample); !errors.Is(err, ErrStreamStopped) {
		t.Errorf("Expected ErrStreamStopped, got %v", err)
	}
}
