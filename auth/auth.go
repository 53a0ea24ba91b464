/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
	"github.com/tejzpr/quickblox-go-sdk/users"
)

// Session represents a QuickBlox application or user session
type Session struct {
	ID            string     `json:"_id,omitempty"`
	ApplicationID int        `json:"application_id,omitempty"`
	Token         string     `json:"token"`
	UserID        int        `json:"user_id,omitempty"`
	Nonce         int64      `json:"nonce,omitempty"`
	Timestamp     int64      `json:"ts,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// UserCredentials upgrade an application session to a user session.
// Login wins over Email.
type UserCredentials struct {
	Login    string
	Email    string
	Password string
}

type sessionRequest struct {
	ApplicationID int               `json:"application_id"`
	AuthKey       string            `json:"auth_key"`
	Nonce         int64             `json:"nonce"`
	Timestamp     int64             `json:"timestamp"`
	Signature     string            `json:"signature"`
	User          map[string]string `json:"user,omitempty"`
}

// Config holds the configuration for the Auth plugin
type Config struct {
	// Any configuration settings for the auth plugin can go here
}

// DefaultConfig returns the default configuration for the Auth plugin
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the auth API client
type Client struct {
	core    *qbsdk.Client
	config  *Config
	mu      sync.Mutex
	session *Session
	now     func() time.Time
	nonce   func() int64
}

// New creates a new Auth plugin
func New(core *qbsdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rmu sync.Mutex
	return &Client{
		core:   core,
		config: config,
		now:    time.Now,
		nonce: func() int64 {
			rmu.Lock()
			defer rmu.Unlock()
			return r.Int63n(1 << 31)
		},
	}
}

// Name returns the plugin name
func (c *Client) Name() string { return "auth" }

// Session returns the current session, or nil.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// CreateSession creates an application session, or a user session when
// user is set, and installs its token on the core client.
func (c *Client) CreateSession(ctx context.Context, user *UserCredentials) (*Session, error) {
	creds := c.core.Config.Creds
	if !creds.Complete() {
		return nil, fmt.Errorf("application credentials are required")
	}

	req := sessionRequest{
		ApplicationID: creds.AppID,
		AuthKey:       creds.AuthKey,
		Nonce:         c.nonce(),
		Timestamp:     c.now().Unix(),
	}
	if user != nil {
		req.User = map[string]string{"password": user.Password}
		if user.Login != "" {
			req.User["login"] = user.Login
		} else {
			req.User["email"] = user.Email
		}
	}
	req.Signature = Sign(signatureParams(req), creds.AuthSecret)

	path := c.core.ResourcePath(c.core.Config.URLs.Session)
	resp, err := c.core.RequestWithRetry(ctx, http.MethodPost, path, nil, req)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	var result struct {
		Session *Session `json:"session"`
	}
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	if result.Session == nil || result.Session.Token == "" {
		return nil, fmt.Errorf("session token missing from response")
	}

	c.mu.Lock()
	c.session = result.Session
	c.mu.Unlock()
	c.core.SetAccessToken(result.Session.Token)

	return result.Session, nil
}

// Login binds a user to the current application session.
func (c *Client) Login(ctx context.Context, login, password string) (*users.User, error) {
	if login == "" || password == "" {
		return nil, fmt.Errorf("login and password are required")
	}

	body := map[string]string{"login": login, "password": password}
	path := c.core.ResourcePath(c.core.Config.URLs.Login)
	resp, err := c.core.RequestWithRetry(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, fmt.Errorf("error logging in: %w", err)
	}

	var result struct {
		User *users.User `json:"user"`
	}
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	if result.User == nil {
		return nil, fmt.Errorf("user missing from login response")
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.UserID = result.User.ID
	}
	c.mu.Unlock()

	return result.User, nil
}

// Logout unbinds the user from the session; the session stays valid.
func (c *Client) Logout(ctx context.Context) error {
	path := c.core.ResourcePath(c.core.Config.URLs.Login)
	resp, err := c.core.RequestWithRetry(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("error logging out: %w", err)
	}
	if err := qbsdk.ParseResponse(resp, nil); err != nil {
		return err
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.UserID = 0
	}
	c.mu.Unlock()
	return nil
}

// DestroySession invalidates the session token.
func (c *Client) DestroySession(ctx context.Context) error {
	path := c.core.ResourcePath(c.core.Config.URLs.Session)
	resp, err := c.core.RequestWithRetry(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("error destroying session: %w", err)
	}
	if err := qbsdk.ParseResponse(resp, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.core.SetAccessToken("")
	return nil
}

func signatureParams(req sessionRequest) map[string]string {
	params := map[string]string{
		"application_id": strconv.Itoa(req.ApplicationID),
		"auth_key":       req.AuthKey,
		"nonce":          strconv.FormatInt(req.Nonce, 10),
		"timestamp":      strconv.FormatInt(req.Timestamp, 10),
	}
	for k, v := range req.User {
		params["user["+k+"]"] = v
	}
	return params
}

// Sign returns the hex HMAC-SHA1 of the params joined as k=v pairs in key
// order with "&".
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}
