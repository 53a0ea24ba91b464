/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package videochat

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// PeerConnection is the session's view of the WebRTC engine.
type PeerConnection interface {
	// CreateOffer creates an offer receiving audio and video.
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate Candidate) error
	AddStream(stream LocalStream) error
	OnICECandidate(fn func(candidate Candidate))
	OnRemoteStream(fn func(stream RemoteStream))
	Close() error
}

// PeerFactory creates peer connections.
type PeerFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// PionConfig holds the configuration for pion peer connections
type PionConfig struct {
	// ICEServers is the list of ICE servers (STUN/TURN) to use
	ICEServers []webrtc.ICEServer
	Logger     qbsdk.Logger
}

// ICEServers returns Google STUN plus STUN and TURN on turnHost. TURN is
// only listed with credentials.
func ICEServers(turnHost, username, credential string) []webrtc.ICEServer {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
	if turnHost == "" {
		return servers
	}
	servers = append(servers, webrtc.ICEServer{URLs: []string{"stun:" + turnHost}})
	if username == "" {
		return servers
	}
	return append(servers,
		webrtc.ICEServer{
			URLs: []string{
				"turn:" + turnHost + ":3478?transport=udp",
				"turn:" + turnHost + ":3478?transport=tcp",
			},
			Username:   username,
			Credential: credential,
		},
	)
}

// PionPeerFactory creates pion peer connections with the default codecs
// and interceptors.
type PionPeerFactory struct {
	config *PionConfig
}

// NewPionPeerFactory creates a pion factory. A nil config uses Google STUN.
func NewPionPeerFactory(config *PionConfig) *PionPeerFactory {
	if config == nil {
		config = &PionConfig{ICEServers: ICEServers("", "", "")}
	}
	if config.Logger == nil {
		config.Logger = qbsdk.NopLogger()
	}
	return &PionPeerFactory{config: config}
}

func (f *PionPeerFactory) NewPeerConnection() (PeerConnection, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	// Default interceptors (RTCP reports, NACK, TWCC) are required with a
	// custom MediaEngine for incoming SRTP to be processed.
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: f.config.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	p := &pionPeer{
		pc:      pc,
		logger:  f.config.Logger,
		streams: make(map[string]*remoteStream),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.mu.Lock()
		fn := p.onCandidate
		p.mu.Unlock()
		if fn != nil {
			fn(fromICECandidateInit(c.ToJSON()))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Printf("[QBVideoChat] remote track codec=%s stream=%s", track.Codec().MimeType, track.StreamID())
		p.mu.Lock()
		stream, seen := p.streams[track.StreamID()]
		if !seen {
			stream = &remoteStream{id: track.StreamID()}
			p.streams[stream.id] = stream
		}
		stream.add(track)
		fn := p.onStream
		p.mu.Unlock()

		if !seen && fn != nil {
			fn(stream)
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Printf("[QBVideoChat] connection state %s", s.String())
	})

	return p, nil
}

// pionPeer adapts *webrtc.PeerConnection. Remote candidates arriving
// before the remote description are held and added once it is set.
type pionPeer struct {
	pc     *webrtc.PeerConnection
	logger qbsdk.Logger

	mu          sync.Mutex
	onCandidate func(Candidate)
	onStream    func(RemoteStream)
	streams     map[string]*remoteStream

	// candMu orders remote candidates against the remote description.
	candMu sync.Mutex
	early  []webrtc.ICECandidateInit
}

func (p *pionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	if err := p.ensureReceivers(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return p.pc.CreateOffer(nil)
}

// ensureReceivers adds a recvonly transceiver for each kind without one.
func (p *pionPeer) ensureReceivers() error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range p.pc.GetTransceivers() {
		have[t.Kind()] = true
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("failed to add %s receiver: %w", kind, err)
		}
	}
	return nil
}

func (p *pionPeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *pionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *pionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.candMu.Lock()
	defer p.candMu.Unlock()

	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	for _, c := range p.early {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.logger.Printf("[QBVideoChat] early candidate rejected: %v", err)
		}
	}
	p.early = nil
	return nil
}

func (p *pionPeer) AddICECandidate(candidate Candidate) error {
	init := candidate.toICECandidateInit()

	p.candMu.Lock()
	defer p.candMu.Unlock()
	if p.pc.RemoteDescription() == nil {
		p.early = append(p.early, init)
		return nil
	}
	return p.pc.AddICECandidate(init)
}

func (p *pionPeer) AddStream(stream LocalStream) error {
	for _, track := range stream.Tracks() {
		sender, err := p.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add %s track: %w", track.Kind(), err)
		}

		// Read RTCP from the sender to keep the interceptors running
		go func() {
			rtcpBuf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(rtcpBuf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (p *pionPeer) OnICECandidate(fn func(Candidate)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *pionPeer) OnRemoteStream(fn func(RemoteStream)) {
	p.mu.Lock()
	p.onStream = fn
	p.mu.Unlock()
}

func (p *pionPeer) Close() error {
	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}

func (c Candidate) toICECandidateInit() webrtc.ICECandidateInit {
	mid := c.SDPMid
	index := c.SDPMLineIndex
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}

func fromICECandidateInit(init webrtc.ICECandidateInit) Candidate {
	c := Candidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = *init.SDPMLineIndex
	}
	return c
}
