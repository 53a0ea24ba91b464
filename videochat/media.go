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
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaConstraints select the kinds of local media to capture.
type MediaConstraints struct {
	Audio bool
	Video bool
}

// DefaultConstraints capture audio and video.
func DefaultConstraints() MediaConstraints {
	return MediaConstraints{Audio: true, Video: true}
}

// MediaStream is a set of tracks sent or rendered together.
type MediaStream interface {
	ID() string
}

// LocalStream is captured media owned by a call session.
type LocalStream interface {
	MediaStream
	Tracks() []webrtc.TrackLocal
	// Stop releases the capture. Calls after the first are no-ops.
	Stop() error
}

// RemoteStream is media received from the opponent.
type RemoteStream interface {
	MediaStream
	Tracks() []*webrtc.TrackRemote
}

// MediaSource acquires local media.
type MediaSource interface {
	GetUserMedia(ctx context.Context, constraints MediaConstraints) (LocalStream, error)
}

// Renderer is a render target streams are attached to.
type Renderer interface {
	Attach(stream MediaStream) error
	Stream() MediaStream
}

// ErrStreamStopped is returned when writing to a stopped stream.
var ErrStreamStopped = errors.New("videochat: stream stopped")

// TrackMediaSource captures media from the application: it creates opus
// and VP8 sample tracks the caller feeds through the returned
// *TrackStream.
type TrackMediaSource struct{}

// NewTrackMediaSource creates a sample track source.
func NewTrackMediaSource() *TrackMediaSource { return &TrackMediaSource{} }

// GetUserMedia creates the tracks selected by constraints.
func (TrackMediaSource) GetUserMedia(_ context.Context, constraints MediaConstraints) (LocalStream, error) {
	if !constraints.Audio && !constraints.Video {
		return nil, fmt.Errorf("at least one of audio or video is required")
	}

	stream := &TrackStream{id: "qb-" + uuid.NewString()}
	if constraints.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", stream.id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		stream.audio = track
	}
	if constraints.Video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", stream.id,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		stream.video = track
	}
	return stream, nil
}

// TrackStream is a LocalStream of static sample tracks.
type TrackStream struct {
	id    string
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	mu      sync.RWMutex
	stopped bool
}

func (s *TrackStream) ID() string { return s.id }

func (s *TrackStream) Tracks() []webrtc.TrackLocal {
	var tracks []webrtc.TrackLocal
	if s.audio != nil {
		tracks = append(tracks, s.audio)
	}
	if s.video != nil {
		tracks = append(tracks, s.video)
	}
	return tracks
}

// WriteAudio writes an encoded opus sample.
func (s *TrackStream) WriteAudio(sample media.Sample) error {
	return s.write(s.audio, sample)
}

// WriteVideo writes an encoded VP8 frame.
func (s *TrackStream) WriteVideo(sample media.Sample) error {
	return s.write(s.video, sample)
}

func (s *TrackStream) write(track *webrtc.TrackLocalStaticSample, sample media.Sample) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStreamStopped
	}
	if track == nil {
		return fmt.Errorf("track not captured")
	}
	return track.WriteSample(sample)
}

// Stopped reports whether Stop was called.
func (s *TrackStream) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *TrackStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// remoteStream groups remote tracks by stream id.
type remoteStream struct {
	id     string
	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), s.tracks...)
}

func (s *remoteStream) add(track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.tracks = append(s.tracks, track)
	s.mu.Unlock()
}

// StreamRenderer is a Renderer that hands attached streams to OnAttach,
// e.g. to start reading remote RTP.
type StreamRenderer struct {
	OnAttach func(stream MediaStream)

	mu     sync.Mutex
	stream MediaStream
}

func (r *StreamRenderer) Attach(stream MediaStream) error {
	r.mu.Lock()
	r.stream = stream
	fn := r.OnAttach
	r.mu.Unlock()
	if fn != nil && stream != nil {
		fn(stream)
	}
	return nil
}

func (r *StreamRenderer) Stream() MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}
