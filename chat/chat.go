/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/metrics"
	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
	"github.com/tejzpr/quickblox-go-sdk/store"
	"github.com/tejzpr/quickblox-go-sdk/xmpp"
)

// Config holds the configuration for the chat plugin
type Config struct {
	AppID                int
	ChatEndpoint         string        // domain of user JIDs, e.g. chat.quickblox.com
	PresenceInterval     time.Duration // keep-alive presence period
	BackoffTimeReset     time.Duration // first reconnect delay
	BackoffTimeMax       time.Duration // reconnect delay cap
	MaxReconnectAttempts int           // 0 retries forever
	Metrics              *metrics.Metrics
}

// DefaultConfig returns the default configuration for the chat plugin
func DefaultConfig() *Config {
	return &Config{
		ChatEndpoint:     "chat.quickblox.com",
		PresenceInterval: 55 * time.Second,
		BackoffTimeReset: 1 * time.Second,
		BackoffTimeMax:   32 * time.Second,
	}
}

// ConfigFrom derives the chat configuration from the core configuration.
func ConfigFrom(cfg *qbsdk.Config, m *metrics.Metrics) *Config {
	return &Config{
		AppID:                cfg.Creds.AppID,
		ChatEndpoint:         cfg.Endpoints.Chat,
		PresenceInterval:     cfg.PresenceInterval,
		BackoffTimeReset:     cfg.BackoffTimeReset,
		BackoffTimeMax:       cfg.BackoffTimeMax,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Metrics:              m,
	}
}

// ConnectParams identify the chat user. JID wins over UserID.
type ConnectParams struct {
	JID      string
	UserID   int
	Password string
}

// MessageListener receives chat and groupchat messages. userID is the
// sender; to is the addressee JID.
type MessageListener func(userID int, message *Message, to string)

// ContactListListener receives presence of roster contacts. typ is "" for
// available and "unavailable" otherwise.
type ContactListListener func(userID int, typ string)

// SubscriptionListener receives subscription requests, confirmations and
// rejections.
type SubscriptionListener func(userID int)

// SignalHandler receives messages addressed to the video chat module.
type SignalHandler func(from string, message *Message)

// Client is the chat plugin.
type Client struct {
	core      *qbsdk.Client
	config    *Config
	transport xmpp.Transport
	store     store.Store
	logger    qbsdk.Logger
	helpers   *Helpers
	roster    *Roster
	muc       *MUC
	reconnect *reconnector

	mu       sync.Mutex
	params   ConnectParams
	isLogout bool

	lmu              sync.RWMutex
	onMessage        []MessageListener
	onContactList    []ContactListListener
	onSubscribe      []SubscriptionListener
	onConfirm        []SubscriptionListener
	onReject         []SubscriptionListener
	onDisconnecting  []func()
	onReconnect      []func()
	onSignal         []SignalHandler
	onReconnectError []func(error)
}

// New creates a chat client over transport. State lives in st, which the
// caller owns; a nil st gets an in-process store.
func New(core *qbsdk.Client, transport xmpp.Transport, st store.Store, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if st == nil {
		st = store.NewMemory()
	}

	logger := qbsdk.NopLogger()
	if core != nil {
		logger = core.GetLogger()
	}

	c := &Client{
		core:      core,
		config:    config,
		transport: transport,
		store:     st,
		logger:    logger,
	}
	c.helpers = newHelpers(config, transport)
	c.roster = &Roster{chat: c}
	c.muc = &MUC{chat: c}
	c.reconnect = newReconnector(config, logger, c.reconnectOnce, c.reconnectFailed)
	return c
}

// Name returns the plugin name
func (c *Client) Name() string { return "chat" }

// Roster returns the roster API.
func (c *Client) Roster() *Roster { return c.roster }

// MUC returns the group chat API.
func (c *Client) MUC() *MUC { return c.muc }

// Helpers returns the JID and id helpers.
func (c *Client) Helpers() *Helpers { return c.helpers }

// Store returns the roster and room store.
func (c *Client) Store() store.Store { return c.store }

// Transport returns the underlying connection.
func (c *Client) Transport() xmpp.Transport { return c.transport }

// UserJID returns the JID of a user of the configured application.
func (c *Client) UserJID(userID int) string {
	return c.helpers.UserJID(userID, c.config.AppID)
}

// Connect opens the chat stream, enables carbons, loads the roster and
// starts the keep-alive presence.
func (c *Client) Connect(ctx context.Context, params ConnectParams) (store.Roster, error) {
	if params.JID == "" {
		if params.UserID == 0 {
			return nil, fmt.Errorf("jid or userID is required")
		}
		params.JID = c.UserJID(params.UserID)
	}

	c.mu.Lock()
	c.params = params
	c.isLogout = false
	c.mu.Unlock()
	c.reconnect.Rearm()

	if err := c.store.Reset(ctx); err != nil {
		return nil, err
	}

	if err := c.transport.Connect(ctx, params.JID, params.Password, c.onStatus); err != nil {
		return nil, connectError(err)
	}

	return c.onConnected(ctx, false)
}

// onConnected runs once the stream is CONNECTED.
func (c *Client) onConnected(ctx context.Context, reconnected bool) (store.Roster, error) {
	c.transport.AddHandler(c.handleMessage, "", "message", "", "", "")
	c.transport.AddHandler(c.handlePresence, "", "presence", "", "", "")
	c.transport.AddHandler(c.handleIQ, "", "iq", "", "", "")

	if err := c.enableCarbons(ctx); err != nil {
		c.logger.Printf("[QBChat] message carbons not enabled: %v", err)
	}

	roster, err := c.roster.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting roster: %w", err)
	}

	// The server drops clients idle for a minute.
	if err := c.transport.Send(xmpp.NewPresence()); err != nil {
		return nil, fmt.Errorf("error sending initial presence: %w", err)
	}
	c.transport.AddTimedHandler(c.config.PresenceInterval, c.autoSendPresence)

	if reconnected {
		rooms, err := c.store.Rooms(ctx)
		if err != nil {
			c.logger.Printf("[QBChat] cannot read joined rooms: %v", err)
		}
		for _, room := range rooms {
			if err := c.muc.Join(ctx, room, nil); err != nil {
				c.logger.Printf("[QBChat] rejoin %s failed: %v", room, err)
			}
		}

		c.lmu.RLock()
		listeners := append([]func(){}, c.onReconnect...)
		c.lmu.RUnlock()
		for _, fn := range listeners {
			fn()
		}
	}

	return roster, nil
}

func (c *Client) autoSendPresence() bool {
	if err := c.transport.Send(xmpp.NewPresence()); err != nil {
		c.logger.Printf("[QBChat] keep-alive presence failed: %v", err)
	}
	return true
}

func (c *Client) enableCarbons(ctx context.Context) error {
	iq := xmpp.NewIQ("from", c.transport.JID(), "type", "set", "id", c.transport.UniqueID("enableCarbons"))
	iq.C("enable", xmpp.NSCarbons)
	_, err := c.transport.SendIQ(ctx, iq)
	return err
}

// onStatus traces transitions and reacts to a lost stream.
func (c *Client) onStatus(status xmpp.Status, condition string) {
	switch status {
	case xmpp.StatusError, xmpp.StatusConnFail, xmpp.StatusAuthFail:
		c.logger.Printf("[QBChat] Status.%s %s", status, condition)
	case xmpp.StatusDisconnected:
		c.logger.Printf("[QBChat] Status.DISCONNECTED at %s", time.Now().Format("15:04:05"))
		c.transport.Reset()

		c.lmu.RLock()
		listeners := append([]func(){}, c.onDisconnecting...)
		c.lmu.RUnlock()
		for _, fn := range listeners {
			fn()
		}

		c.mu.Lock()
		logout := c.isLogout
		c.mu.Unlock()
		if !logout {
			c.reconnect.Start()
		}
	default:
		c.logger.Printf("[QBChat] Status.%s", status)
	}
}

// reconnectOnce is one attempt of the reconnection state machine.
func (c *Client) reconnectOnce(ctx context.Context) error {
	c.mu.Lock()
	params := c.params
	c.mu.Unlock()

	if err := c.transport.Connect(ctx, params.JID, params.Password, c.onStatus); err != nil {
		return connectError(err)
	}
	if _, err := c.onConnected(ctx, true); err != nil {
		c.transport.Reset()
		_ = c.transport.Disconnect()
		return err
	}
	return nil
}

func (c *Client) reconnectFailed(err error) {
	c.lmu.RLock()
	listeners := append([]func(error){}, c.onReconnectError...)
	c.lmu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
}

// Reconnecting reports whether a reconnection cycle is in progress.
func (c *Client) Reconnecting() bool {
	return c.reconnect.Active()
}

// Send sends a message to jid. When message.ID is empty a BSON object id
// is generated and stored back into message. Extension keys must be XML
// names; ErrInvalidExtensionKey is returned otherwise and nothing is sent.
func (c *Client) Send(jid string, message *Message) error {
	if err := message.validate(); err != nil {
		return err
	}
	if message.ID == "" {
		message.ID = c.helpers.BSONObjectID()
	}
	stanza := message.stanza(c.transport.JID(), jid)
	if err := c.transport.Send(stanza); err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	return nil
}

// SendPresence sends a presence of the given type; "" means available.
func (c *Client) SendPresence(typ string) error {
	return c.transport.Send(xmpp.NewPresence("from", c.transport.JID(), "type", typ))
}

// Disconnect logs out: joined rooms are forgotten, reconnection is
// cancelled and the stream is closed.
func (c *Client) Disconnect() error {
	ctx := context.Background()
	if err := c.store.ClearRooms(ctx); err != nil {
		c.logger.Printf("[QBChat] cannot clear joined rooms: %v", err)
	}

	c.mu.Lock()
	c.isLogout = true
	c.mu.Unlock()
	c.reconnect.Stop()

	if err := c.transport.Flush(); err != nil {
		c.logger.Printf("[QBChat] flush failed: %v", err)
	}
	return c.transport.Disconnect()
}

// ListenerParams select stanzas for AddListener. Live=false makes the
// listener fire once.
type ListenerParams struct {
	Name string
	Type string
	ID   string
	From string
	Live bool
}

// AddListener registers a raw stanza listener.
func (c *Client) AddListener(params ListenerParams, callback func(stanza *xmpp.Element)) xmpp.HandlerRef {
	return c.transport.AddHandler(func(stanza *xmpp.Element) bool {
		callback(stanza)
		return params.Live
	}, "", params.Name, params.Type, params.ID, params.From)
}

// DeleteListener removes a listener added with AddListener.
func (c *Client) DeleteListener(ref xmpp.HandlerRef) {
	c.transport.DeleteHandler(ref)
}

// OnMessage registers a message listener.
func (c *Client) OnMessage(fn MessageListener) {
	c.lmu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.lmu.Unlock()
}

// OnContactList registers a roster presence listener.
func (c *Client) OnContactList(fn ContactListListener) {
	c.lmu.Lock()
	c.onContactList = append(c.onContactList, fn)
	c.lmu.Unlock()
}

// OnSubscribe registers a listener for incoming subscription requests.
func (c *Client) OnSubscribe(fn SubscriptionListener) {
	c.lmu.Lock()
	c.onSubscribe = append(c.onSubscribe, fn)
	c.lmu.Unlock()
}

// OnConfirmSubscribe registers a listener for accepted requests.
func (c *Client) OnConfirmSubscribe(fn SubscriptionListener) {
	c.lmu.Lock()
	c.onConfirm = append(c.onConfirm, fn)
	c.lmu.Unlock()
}

// OnRejectSubscribe registers a listener for rejected requests.
func (c *Client) OnRejectSubscribe(fn SubscriptionListener) {
	c.lmu.Lock()
	c.onReject = append(c.onReject, fn)
	c.lmu.Unlock()
}

// OnDisconnecting registers a listener fired when the stream is lost or closed.
func (c *Client) OnDisconnecting(fn func()) {
	c.lmu.Lock()
	c.onDisconnecting = append(c.onDisconnecting, fn)
	c.lmu.Unlock()
}

// OnReconnect registers a listener fired after an automatic reconnection.
func (c *Client) OnReconnect(fn func()) {
	c.lmu.Lock()
	c.onReconnect = append(c.onReconnect, fn)
	c.lmu.Unlock()
}

// OnReconnectFailed registers a listener fired when reconnection gives up.
func (c *Client) OnReconnectFailed(fn func(error)) {
	c.lmu.Lock()
	c.onReconnectError = append(c.onReconnectError, fn)
	c.lmu.Unlock()
}

// AddSignalHandler registers a handler for video chat signaling messages.
// Such messages are not delivered to message listeners.
func (c *Client) AddSignalHandler(fn SignalHandler) {
	c.lmu.Lock()
	c.onSignal = append(c.onSignal, fn)
	c.lmu.Unlock()
}

// ConnectError is returned when the chat stream cannot be established.
// Code is 401 for rejected credentials and 422 otherwise.
type ConnectError struct {
	Code    int
	Message string
	Detail  string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("chat: %d %s: %s", e.Code, e.Message, e.Detail)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func connectError(err error) error {
	switch {
	case errors.Is(err, xmpp.ErrAuthFailed):
		return &ConnectError{Code: 401, Message: "Unauthorized", Detail: "Status.AUTHFAIL - The authentication attempt failed", Err: err}
	case errors.Is(err, xmpp.ErrConnFailed):
		return &ConnectError{Code: 422, Message: "Unprocessable Entity", Detail: "Status.CONNFAIL - The connection attempt failed", Err: err}
	default:
		return &ConnectError{Code: 422, Message: "Unprocessable Entity", Detail: "Status.ERROR - An error has occurred", Err: err}
	}
}
