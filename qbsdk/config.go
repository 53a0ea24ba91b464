/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package qbsdk

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Protocol selects the chat transport.
type Protocol int

const (
	// ProtocolBOSH is accepted in configuration but not implemented.
	ProtocolBOSH Protocol = 1
	// ProtocolWebSocket selects XMPP over WebSocket (RFC 7395).
	ProtocolWebSocket Protocol = 2
)

// Credentials identify the QuickBlox application.
type Credentials struct {
	AppID      int    `yaml:"app_id" env:"QB_APP_ID"`
	AuthKey    string `yaml:"auth_key" env:"QB_AUTH_KEY"`
	AuthSecret string `yaml:"auth_secret" env:"QB_AUTH_SECRET"`
}

// Complete reports whether a session can be signed with these credentials.
func (c Credentials) Complete() bool {
	return c.AppID != 0 && c.AuthKey != "" && c.AuthSecret != ""
}

// Endpoints are the service hosts of a QuickBlox deployment.
type Endpoints struct {
	API      string `yaml:"api" env:"QB_ENDPOINT_API"`
	Chat     string `yaml:"chat" env:"QB_ENDPOINT_CHAT"`
	MUC      string `yaml:"muc" env:"QB_ENDPOINT_MUC"`
	Turn     string `yaml:"turn" env:"QB_ENDPOINT_TURN"`
	S3Bucket string `yaml:"s3_bucket" env:"QB_S3_BUCKET"`
}

// ChatProtocol holds the chat transport URLs.
type ChatProtocol struct {
	BOSH      string   `yaml:"bosh" env:"QB_CHAT_BOSH"`
	WebSocket string   `yaml:"websocket" env:"QB_CHAT_WEBSOCKET"`
	Active    Protocol `yaml:"active" env:"QB_CHAT_PROTOCOL"`
}

// URLs are the REST resource names.
type URLs struct {
	Session       string `yaml:"session"`
	Login         string `yaml:"login"`
	Users         string `yaml:"users"`
	Chat          string `yaml:"chat"`
	Blobs         string `yaml:"blobs"`
	Geodata       string `yaml:"geodata"`
	Places        string `yaml:"places"`
	PushTokens    string `yaml:"push_tokens"`
	Subscriptions string `yaml:"subscriptions"`
	Events        string `yaml:"events"`
	Data          string `yaml:"data"`
	Type          string `yaml:"type"`
}

// Config holds the configuration for the QuickBlox client
type Config struct {
	Creds        Credentials  `yaml:"creds"`
	Endpoints    Endpoints    `yaml:"endpoints"`
	ChatProtocol ChatProtocol `yaml:"chat_protocol"`
	URLs         URLs         `yaml:"urls"`

	// BaseURL overrides the API base URL derived from SSL and Endpoints.API.
	BaseURL string `yaml:"base_url" env:"QB_BASE_URL"`

	SSL   bool `yaml:"ssl" env:"QB_SSL"`
	Debug bool `yaml:"debug" env:"QB_DEBUG"`

	// Timeout for API requests
	Timeout time.Duration `yaml:"timeout" env:"QB_TIMEOUT"`

	// Default headers to include in API requests
	DefaultHeaders map[string]string `yaml:"default_headers"`

	// MaxRetries is the maximum number of retries for transient errors (429, 502, 503, 504).
	// Set to 0 to disable retries. Default: 3.
	MaxRetries int `yaml:"max_retries" env:"QB_MAX_RETRIES"`

	// RetryBaseDelay is the initial delay between retries. Default: 1s.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"QB_RETRY_BASE_DELAY"`

	// PresenceInterval is the period of the keep-alive presence. Default: 55s.
	PresenceInterval time.Duration `yaml:"presence_interval" env:"QB_PRESENCE_INTERVAL"`

	// IQTimeout bounds the wait for an IQ result. Default: 30s.
	IQTimeout time.Duration `yaml:"iq_timeout" env:"QB_IQ_TIMEOUT"`

	// BackoffTimeReset is the first reconnect delay; it doubles per attempt
	// up to BackoffTimeMax.
	BackoffTimeReset time.Duration `yaml:"backoff_time_reset" env:"QB_BACKOFF_RESET"`
	BackoffTimeMax   time.Duration `yaml:"backoff_time_max" env:"QB_BACKOFF_MAX"`

	// MaxReconnectAttempts bounds reconnect attempts; 0 means unbounded.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" env:"QB_MAX_RECONNECT_ATTEMPTS"`

	// Custom HTTP client to use instead of the default one
	// If nil, a default client will be created with the specified Timeout
	HttpClient *http.Client `yaml:"-"`

	// Logger is the logger for SDK operations. If nil, a zerolog console
	// logger is created from Debug.
	Logger Logger `yaml:"-"`
}

// DefaultConfig returns a default configuration for the QuickBlox client
func DefaultConfig() *Config {
	return &Config{
		Endpoints: Endpoints{
			API:      "api.quickblox.com",
			Chat:     "chat.quickblox.com",
			MUC:      "muc.chat.quickblox.com",
			Turn:     "turnserver.quickblox.com",
			S3Bucket: "qbprod",
		},
		ChatProtocol: ChatProtocol{
			BOSH:      "https://chat.quickblox.com:8081",
			WebSocket: "ws://chat.quickblox.com:5290",
			Active:    ProtocolWebSocket,
		},
		URLs: URLs{
			Session:       "session",
			Login:         "login",
			Users:         "users",
			Chat:          "chat",
			Blobs:         "blobs",
			Geodata:       "geodata",
			Places:        "places",
			PushTokens:    "push_tokens",
			Subscriptions: "subscriptions",
			Events:        "events",
			Data:          "data",
			Type:          ".json",
		},
		SSL:              true,
		Debug:            false,
		Timeout:          30 * time.Second,
		DefaultHeaders:   make(map[string]string),
		MaxRetries:       3,
		RetryBaseDelay:   1 * time.Second,
		PresenceInterval: 55 * time.Second,
		IQTimeout:        30 * time.Second,
		BackoffTimeReset: 1 * time.Second,
		BackoffTimeMax:   32 * time.Second,
	}
}

// LoadConfig builds a configuration from the defaults, then the YAML file at
// path (skipped when path is empty), then QB_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields a client cannot work without.
func (c *Config) Validate() error {
	if c.BaseURL == "" && c.Endpoints.API == "" {
		return fmt.Errorf("API endpoint is required")
	}
	if c.Endpoints.Chat == "" {
		return fmt.Errorf("chat endpoint is required")
	}
	switch c.ChatProtocol.Active {
	case ProtocolWebSocket:
		if c.ChatProtocol.WebSocket == "" {
			return fmt.Errorf("websocket chat URL is required")
		}
	case ProtocolBOSH:
		return fmt.Errorf("BOSH chat transport is not supported, use websocket")
	default:
		return fmt.Errorf("unknown chat protocol %d", c.ChatProtocol.Active)
	}
	return nil
}

// APIBaseURL returns BaseURL when set, otherwise the scheme chosen by SSL
// joined with Endpoints.API.
func (c *Config) APIBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	return scheme + "://" + c.Endpoints.API
}

// ConfigPathFromEnv returns QB_CONFIG if set.
func ConfigPathFromEnv() string {
	return os.Getenv("QB_CONFIG")
}
