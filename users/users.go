/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package users

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// User represents a QuickBlox user
type User struct {
	ID             int        `json:"id,omitempty"`
	Login          string     `json:"login,omitempty"`
	Password       string     `json:"password,omitempty"`
	Email          string     `json:"email,omitempty"`
	FullName       string     `json:"full_name,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Website        string     `json:"website,omitempty"`
	ExternalUserID int        `json:"external_user_id,omitempty"`
	FacebookID     string     `json:"facebook_id,omitempty"`
	TwitterID      string     `json:"twitter_id,omitempty"`
	BlobID         int        `json:"blob_id,omitempty"`
	CustomData     string     `json:"custom_data,omitempty"`
	Tags           string     `json:"user_tags,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
}

// envelope wraps a user in {"user": {...}}, the shape of every users
// request and response.
type envelope struct {
	User *User `json:"user"`
}

// ListOptions contains the options for listing users
type ListOptions struct {
	Page    int
	PerPage int
	// Filters are passed through as query parameters,
	// e.g. "filter[]": "number id gt 100".
	Filters map[string]string
}

// UsersPage represents a paginated list of users
type UsersPage struct {
	Items []User `json:"items"`
	*qbsdk.Page
}

// Config holds the configuration for the Users plugin
type Config struct {
	// Any configuration settings for the users plugin can go here
}

// DefaultConfig returns the default configuration for the Users plugin
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the users API client
type Client struct {
	core   *qbsdk.Client
	config *Config
}

// New creates a new Users plugin
func New(core *qbsdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		core:   core,
		config: config,
	}
}

// Name returns the plugin name
func (c *Client) Name() string { return "users" }

func (c *Client) path(id ...string) string {
	return c.core.ResourcePath(c.core.Config.URLs.Users, id...)
}

// Get returns a single user by ID
func (c *Client) Get(userID int) (*User, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("userID is required")
	}

	resp, err := c.core.Request(http.MethodGet, c.path(strconv.Itoa(userID)), nil, nil)
	if err != nil {
		return nil, err
	}

	var result envelope
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}
	if result.User == nil {
		return nil, fmt.Errorf("user %d missing from response", userID)
	}

	return result.User, nil
}

// List returns a page of users
func (c *Client) List(options *ListOptions) (*UsersPage, error) {
	if options == nil {
		options = &ListOptions{}
	}

	params := url.Values{}
	if options.Page > 0 {
		params.Set("page", strconv.Itoa(options.Page))
	}
	if options.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(options.PerPage))
	}
	for k, v := range options.Filters {
		params.Set(k, v)
	}

	resource := c.path()
	resp, err := c.core.Request(http.MethodGet, resource, params, nil)
	if err != nil {
		return nil, err
	}

	page, err := qbsdk.NewPage(resp, c.core, resource, params)
	if err != nil {
		return nil, err
	}

	// Unmarshal {"user": {...}} items into Users
	usersPage := &UsersPage{
		Page:  page,
		Items: make([]User, 0, len(page.Items)),
	}

	for _, item := range page.Items {
		var wrapped envelope
		if err := json.Unmarshal(item, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.User != nil {
			usersPage.Items = append(usersPage.Items, *wrapped.User)
		}
	}

	return usersPage, nil
}

// Create signs up a new user
func (c *Client) Create(user *User) (*User, error) {
	if user.Login == "" && user.Email == "" {
		return nil, fmt.Errorf("login or email is required")
	}
	if user.Password == "" {
		return nil, fmt.Errorf("password is required")
	}

	resp, err := c.core.Request(http.MethodPost, c.path(), nil, envelope{User: user})
	if err != nil {
		return nil, err
	}

	var result envelope
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}

	return result.User, nil
}

// Update updates an existing user
func (c *Client) Update(userID int, user *User) (*User, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("userID is required")
	}

	resp, err := c.core.Request(http.MethodPut, c.path(strconv.Itoa(userID)), nil, envelope{User: user})
	if err != nil {
		return nil, err
	}

	var result envelope
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}

	return result.User, nil
}

// Delete removes a user
func (c *Client) Delete(userID int) error {
	if userID <= 0 {
		return fmt.Errorf("userID is required")
	}

	resp, err := c.core.Request(http.MethodDelete, c.path(strconv.Itoa(userID)), nil, nil)
	if err != nil {
		return err
	}

	return qbsdk.ParseResponse(resp, nil)
}
