/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package messages

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

// Message represents a stored chat message
type Message struct {
	ID           string       `json:"_id,omitempty"`
	ChatDialogID string       `json:"chat_dialog_id,omitempty"`
	Message      string       `json:"message,omitempty"`
	DateSent     int64        `json:"date_sent,omitempty"`
	SenderID     int          `json:"sender_id,omitempty"`
	RecipientID  int          `json:"recipient_id,omitempty"`
	Read         int          `json:"read,omitempty"`
	ReadIDs      []int        `json:"read_ids,omitempty"`
	DeliveredIDs []int        `json:"delivered_ids,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	// SendToChat=1 also delivers a message created over REST through chat.
	SendToChat int        `json:"send_to_chat,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Attachment represents a message attachment
type Attachment struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
	Size int    `json:"size,omitempty"`
}

// MessageUpdate is the body of an update request.
type MessageUpdate struct {
	ChatDialogID string `json:"chat_dialog_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Read         int    `json:"read,omitempty"`
}

// ListOptions contains the options for listing messages
type ListOptions struct {
	ChatDialogID string
	Limit        int
	Skip         int
	// Filters are passed through as query parameters,
	// e.g. "sort_desc": "date_sent" or "date_sent[lt]": "1700000000".
	Filters map[string]string
}

// MessagesPage represents a paginated list of messages
type MessagesPage struct {
	Items []Message `json:"items"`
	*qbsdk.Page
}

// Config holds the configuration for the Messages plugin
type Config struct {
	// Any configuration settings for the messages plugin can go here
}

// DefaultConfig returns the default configuration for the Messages plugin
func DefaultConfig() *Config {
	return &Config{}
}

// Client is the messages API client
type Client struct {
	core   *qbsdk.Client
	config *Config
}

// New creates a new Messages plugin
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
func (c *Client) Name() string { return "messages" }

func (c *Client) path(id ...string) string {
	return c.core.ResourcePath(c.core.Config.URLs.Chat+"/Message", id...)
}

// List returns a page of messages of a dialog
func (c *Client) List(options *ListOptions) (*MessagesPage, error) {
	if options == nil || options.ChatDialogID == "" {
		return nil, fmt.Errorf("chatDialogID is required")
	}

	params := url.Values{}
	params.Set("chat_dialog_id", options.ChatDialogID)
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

	// Unmarshal items into Messages
	messagesPage := &MessagesPage{
		Page:  page,
		Items: make([]Message, len(page.Items)),
	}

	for i, item := range page.Items {
		var message Message
		if err := json.Unmarshal(item, &message); err != nil {
			return nil, err
		}
		messagesPage.Items[i] = message
	}

	return messagesPage, nil
}

// Create stores a new message in a dialog
func (c *Client) Create(message *Message) (*Message, error) {
	if message.ChatDialogID == "" && message.RecipientID == 0 {
		return nil, fmt.Errorf("chatDialogID or recipientID is required")
	}

	resp, err := c.core.Request(http.MethodPost, c.path(), nil, message)
	if err != nil {
		return nil, err
	}

	var result Message
	if err := qbsdk.ParseResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Update changes the text or read status of a message. The service
// answers with an empty body.
func (c *Client) Update(messageID string, update *MessageUpdate) error {
	if messageID == "" {
		return fmt.Errorf("messageID is required")
	}

	resp, err := c.core.Request(http.MethodPut, c.path(messageID), nil, update)
	if err != nil {
		return err
	}

	return qbsdk.ParseResponse(resp, nil)
}

// Delete removes one or more messages
func (c *Client) Delete(messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return fmt.Errorf("messageID is required")
	}
	for _, id := range messageIDs {
		if id == "" {
			return fmt.Errorf("messageID is required")
		}
	}

	resp, err := c.core.Request(http.MethodDelete, c.path(strings.Join(messageIDs, ",")), nil, nil)
	if err != nil {
		return err
	}

	return qbsdk.ParseResponse(resp, nil)
}
