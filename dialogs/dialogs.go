/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package dialogs

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// Dialog types
const (
	TypePublicGroup = 1
	TypeGroup       = 2
	TypePrivate     = 3
)

// Dialog represents a QuickBlox chat dialog
type Dialog struct {
	ID                  string     `json:"_id,omitempty"`
	Name                string     `json:"name,omitempty"`
	Type                int        `json:"type,omitempty"`
	Photo               string     `json:"photo,omitempty"`
	UserID              int        `json:"user_id,omitempty"`
	OccupantsIDs        []int      `json:"occupants_ids,omitempty"`
	XMPPRoomJID         string     `json:"xmpp_room_jid,omitempty"`
	LastMessage         string     `json:"last_message,omitempty"`
	LastMessageDateSent int64      `json:"last_message_date_sent,omitempty"`
	LastMessageUserID   int        `json:"last_message_user_id,omitempty"`
	UnreadMessagesCount int        `json:"unread_messages_count,omitempty"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

// OccupantsUpdate lists occupants to add or remove.
type OccupantsUpdate struct {
	OccupantsIDs []int `json:"occupants_ids"`
}

// DialogUpdate is the body of an update request.
type DialogUpdate struct {
	Name    string           `json:"name,omitempty"`
	Photo   string           `json:"photo,omitempty"`
	PushAll *OccupantsUpdate `json:"push_all,omitempty"`
	PullAll *OccupantsUpdate `json:"pull_all,omitempty"`
}

// ListOptions contains the options for listing dialogs
type ListOptions struct {
	Limit int
	Skip  int
	// Filters are passed through as query parameters,
	// e.g. "type[in]": "2,3" or "sort_desc": "last_message_date_sent".
	Filters map[string]string
}

// DialogsPage represents a paginated list of dialogs
type DialogsPage struct {
	Items []Dialog `json:"items"`
	*qbsdk.Page
}

// Config holds the configuration for the Dialogs plugin
type Config struct {
	// Any configuration settings for the dialogs plugin can go here
}

// DefaultConfig returns the default configuration for the Dialogs plugin
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the dialogs API client
type Client struct {
	core   *qbsdk.Client
	config *Config
}

// New creates a new Dialogs plugin
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
func (c *Client) Name() string { return "dialogs" }

func (c *Client) path(id ...string) string {
	return c.core.ResourcePath(c.core.Config.URLs.Chat+"/Dialog", id...)
}

// List returns a page of dialogs of the current user
func (c *Client) List(options *ListOptions) (*DialogsPage, error) {
	if options == nil {
		options = &ListOptions{}
	}

	params := url.Values{}
	if options.Limit > 0 {
		params.Set("limit", strconv.Itoa(options.Limit))
	}
	if options.Skip > 0 {
		params.Set("skip", strconv.Itoa(options.Skip))
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

	// Unmarshal items into Dialogs
	dialogsPage := &DialogsPage{
		Page:  page,
		Items: make([]Dialog, len(page.Items)),
	}

	for i, item := range page.Items {
		var dialog Dialog
		if err := json.Unmarshal(item, &dialog); err != nil {
			return nil, err
		}
		dialogsPage.Items[i] = dialog
	}

	return dialogsPage, nil
}

// Create creates a new dialog
func (c *Client) Create(dialog *Dialog) (*Dialog, error) {
	if dialog.Type == 0 {
		return nil, fmt.Errorf("type is required")
	}
	if dialog.Type != TypePrivate && dialog.Name == "" {
		return nil, fmt.Errorf("name is required for group dialogs")
	}

	resp, err := c.core.Request(http.MethodPost, c.path(), nil, dialog)
	if err != nil {
		return nil, err
	}

	var result Dialog
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Update updates an existing dialog
func (c *Client) Update(dialogID string, update *DialogUpdate) (*Dialog, error) {
	if dialogID == "" {
		return nil, fmt.Errorf("dialogID is required")
	}

	resp, err := c.core.Request(http.MethodPut, c.path(dialogID), nil, update)
	if err != nil {
		return nil, err
	}

	var result Dialog
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Delete removes a dialog
func (c *Client) Delete(dialogID string) error {
	if dialogID == "" {
		return fmt.Errorf("dialogID is required")
	}

	resp, err := c.core.Request(http.MethodDelete, c.path(dialogID), nil, nil)
	if err != nil {
		return err
	}

	// The service answers 200 with an empty body or 204
	return qbsdk.ParseResponse(resp, nil)
}
