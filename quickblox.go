/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package quickblox

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tejzpr/quickblox-go-sdk/auth"
	"github.com/tejzpr/quickblox-go-sdk/chat"
	"github.com/tejzpr/quickblox-go-sdk/dialogs"
	"github.com/tejzpr/quickblox-go-sdk/messages"
	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
	"github.com/tejzpr/quickblox-go-sdk/store"
	"github.com/tejzpr/quickblox-go-sdk/users"
	"github.com/tejzpr/quickblox-go-sdk/videochat"
	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// QuickBloxClient is the top-level client for the QuickBlox API
type QuickBloxClient struct {
	// Core client for the QuickBlox REST API
	core *qbsdk.Client

	store   store.Store
	metrics *metrics.Metrics

	transport   xmpp.Transport
	peerFactory videochat.PeerFactory
	mediaSource videochat.MediaSource
	turnUser    string
	turnCred    string

	// Plugins
	authClient      *auth.Client
	usersClient     *users.Client
	dialogsClient   *dialogs.Client
	messagesClient  *messages.Client
	chatClient      *chat.Client
	videoChatClient *videochat.Signaling

	// Guards lazy initialization of the chat and video chat plugins, which
	// share one transport
	chatMu sync.Mutex
}

// Option customizes a QuickBloxClient.
type Option func(*options)

type options struct {
	store       store.Store
	registerer  prometheus.Registerer
	transport   xmpp.Transport
	peerFactory videochat.PeerFactory
	mediaSource videochat.MediaSource
	turnUser    string
	turnCred    string
}

// WithStore sets the roster and joined-room store. Defaults to memory.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRegisterer registers the SDK metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTransport replaces the WebSocket chat transport.
func WithTransport(t xmpp.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithPeerFactory replaces the pion peer connection factory.
func WithPeerFactory(f videochat.PeerFactory) Option {
	return func(o *options) { o.peerFactory = f }
}

// WithMediaSource replaces the sample track media source.
func WithMediaSource(m videochat.MediaSource) Option {
	return func(o *options) { o.mediaSource = m }
}

// WithTURNCredentials enables TURN on Endpoints.Turn.
func WithTURNCredentials(username, credential string) Option {
	return func(o *options) {
		o.turnUser = username
		o.turnCred = credential
	}
}

// NewClient creates a new QuickBlox client with the given session token and
// optional configuration. The token may be empty when the configuration
// carries application credentials; create a session with Auth() then.
func NewClient(token string, config *qbsdk.Config, opts ...Option) (*QuickBloxClient, error) {
	core, err := qbsdk.NewClient(token, config)
	if err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.store == nil {
		o.store = store.NewMemory()
	}

	m, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &QuickBloxClient{
		core:        core,
		store:       o.store,
		metrics:     m,
		transport:   o.transport,
		peerFactory: o.peerFactory,
		mediaSource: o.mediaSource,
		turnUser:    o.turnUser,
		turnCred:    o.turnCred,
	}, nil
}

// Auth returns the Auth plugin
func (c *QuickBloxClient) Auth() *auth.Client {
	if c.authClient == nil {
		c.authClient = auth.New(c.core, nil)
	}
	return c.authClient
}

// Users returns the Users plugin
func (c *QuickBloxClient) Users() *users.Client {
	if c.usersClient == nil {
		c.usersClient = users.New(c.core, nil)
	}
	return c.usersClient
}

// Dialogs returns the Dialogs plugin
func (c *QuickBloxClient) Dialogs() *dialogs.Client {
	if c.dialogsClient == nil {
		c.dialogsClient = dialogs.New(c.core, nil)
	}
	return c.dialogsClient
}

// Messages returns the Messages plugin
func (c *QuickBloxClient) Messages() *messages.Client {
	if c.messagesClient == nil {
		c.messagesClient = messages.New(c.core, nil)
	}
	return c.messagesClient
}

// Chat returns the Chat plugin. The first call builds the XMPP transport
// from the ChatProtocol configuration.
func (c *QuickBloxClient) Chat() *chat.Client {
	c.chatMu.Lock()
	defer c.chatMu.Unlock()
	return c.chatLocked()
}

func (c *QuickBloxClient) chatLocked() *chat.Client {
	if c.chatClient != nil {
		return c.chatClient
	}

	cfg := c.core.Config
	transport := c.transport
	if transport == nil {
		transport = xmpp.NewConn(&xmpp.Config{
			URL:              cfg.ChatProtocol.WebSocket,
			HandshakeTimeout: 10 * time.Second,
			IQTimeout:        cfg.IQTimeout,
			PingInterval:     30 * time.Second,
			Logger:           c.core.GetLogger(),
			Metrics:          c.metrics,
		})
	}

	c.chatClient = chat.New(c.core, transport, c.store, chat.ConfigFrom(cfg, c.metrics))
	return c.chatClient
}

// VideoChat returns the signaling channel carried over Chat().
func (c *QuickBloxClient) VideoChat() *videochat.Signaling {
	c.chatMu.Lock()
	defer c.chatMu.Unlock()
	if c.videoChatClient == nil {
		c.videoChatClient = videochat.NewSignaling(c.chatLocked(), c.core.GetLogger(), c.metrics)
	}
	return c.videoChatClient
}

// NewCallSession creates a call session on VideoChat(). Pion peers and
// sample track media are used unless replaced by options.
func (c *QuickBloxClient) NewCallSession(params *videochat.SessionParams) *videochat.CallSession {
	p := videochat.SessionParams{}
	if params != nil {
		p = *params
	}
	if p.Logger == nil {
		p.Logger = c.core.GetLogger()
	}
	if p.Metrics == nil {
		p.Metrics = c.metrics
	}

	factory := c.peerFactory
	if factory == nil {
		factory = videochat.NewPionPeerFactory(&videochat.PionConfig{
			ICEServers: videochat.ICEServers(c.core.Config.Endpoints.Turn, c.turnUser, c.turnCred),
			Logger:     c.core.GetLogger(),
		})
	}
	media := c.mediaSource
	if media == nil {
		media = videochat.NewTrackMediaSource()
	}

	return videochat.NewCallSession(c.VideoChat(), factory, media, &p)
}

// Store returns the roster and joined-room store.
func (c *QuickBloxClient) Store() store.Store { return c.store }

// Metrics returns the SDK metrics.
func (c *QuickBloxClient) Metrics() *metrics.Metrics { return c.metrics }

// Core returns the core client
func (c *QuickBloxClient) Core() *qbsdk.Client {
	return c.core
}
