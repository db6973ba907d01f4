package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	HTTP    HTTPConfig    `json:"http"`

	// Storage controls the persistence layer. If omitted, the in-memory
	// driver is used (dev/test only; nothing survives a restart).
	Storage *StorageConfig `json:"storage,omitempty"`

	// Redis backs the device-token registry. If omitted or disabled,
	// tokens are kept in process memory.
	Redis *RedisConfig `json:"redis,omitempty"`

	Processor ProcessorConfig `json:"processor"`
	Channels  ChannelsConfig  `json:"channels"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the API server.
//
// All timeouts are Go duration strings (e.g. "10s", "1m").
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./medremind.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type RedisConfig struct {
	Enabled   bool   `json:"enabled"`
	Addr      string `json:"addr"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"` // default: "medremind"
}

// ProcessorConfig controls the schedule processor ticks.
//
// All durations are Go duration strings.
//
// Defaults (when fields are omitted/zero):
//   - timezone: server local time
//   - missed_dose_window: "30m"
//   - escalation_window: "1h"
type ProcessorConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the fallback zone for schedules whose recipient has no
	// usable timezone in their notification settings.
	Timezone string `json:"timezone,omitempty"`

	// MissedDoseWindow is how long a dispatched reminder may sit
	// unconfirmed before the missed-dose scan raises an alert.
	MissedDoseWindow string `json:"missed_dose_window,omitempty"`

	// EscalationWindow is how long doses may sit unconfirmed before the
	// escalation scan alerts the senior's caregivers.
	EscalationWindow string `json:"escalation_window,omitempty"`

	Retry RetryConfig `json:"retry"`
}

// RetryConfig bounds redelivery of failed reminder dispatches.
//
// A failed dispatch re-arms the schedule with exponential backoff
// (base * 2^(attempts-1), capped at max_delay). After max_attempts the
// processor gives up on the occurrence, alerts the senior's caregivers
// and advances to the next occurrence.
//
// Defaults: max_attempts 5, base "1m", max_delay "10m".
type RetryConfig struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	Base        string `json:"base,omitempty"`
	MaxDelay    string `json:"max_delay,omitempty"`
}

type ChannelsConfig struct {
	// RatePerSec limits outbound sends per channel. 0 means default (5).
	RatePerSec int `json:"rate_per_sec,omitempty"`

	Push  PushConfig  `json:"push"`
	Email EmailConfig `json:"email"`
	SMS   SMSConfig   `json:"sms"`
}

// PushConfig controls the FCM transport.
//
// Timeout is a Go duration string; it bounds each HTTP send.
type PushConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint,omitempty"` // default: https://fcm.googleapis.com
	ServerKey string `json:"server_key,omitempty"` // do not log
	Timeout   string `json:"timeout,omitempty"`
}

type EmailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"` // default: 587
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	From     string `json:"from,omitempty"`
}

type SMSConfig struct {
	Enabled    bool   `json:"enabled"`
	AccountSID string `json:"account_sid,omitempty"`
	AuthToken  string `json:"auth_token,omitempty"` // do not log
	From       string `json:"from,omitempty"`
}
