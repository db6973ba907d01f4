// Package tokens tracks device push tokens per user. One active token per
// user: registering a new device replaces the previous one, and a delivery
// failure with an invalid-token response deactivates it.
package tokens

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoToken is returned when a user has no active device token.
var ErrNoToken = errors.New("no active device token")

// DeviceType mirrors the platforms the mobile client registers from.
type DeviceType string

const (
	DeviceAndroid DeviceType = "ANDROID"
	DeviceIOS     DeviceType = "IOS"
	DeviceWeb     DeviceType = "WEB"
)

func (d DeviceType) Valid() bool {
	switch d {
	case DeviceAndroid, DeviceIOS, DeviceWeb:
		return true
	}
	return false
}

// DeviceToken is one registered push endpoint.
type DeviceToken struct {
	Token      string     `json:"token"`
	DeviceID   string     `json:"deviceId"`
	DeviceType DeviceType `json:"deviceType"`
	AppVersion string     `json:"appVersion,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Validate checks the registration payload before it is stored.
func (t DeviceToken) Validate() error {
	if strings.TrimSpace(t.Token) == "" {
		return errors.New("token is required")
	}
	if strings.TrimSpace(t.DeviceID) == "" {
		return errors.New("deviceId is required")
	}
	if !t.DeviceType.Valid() {
		return errors.New("deviceType must be ANDROID, IOS or WEB")
	}
	return nil
}

// Registry stores the active device token per user.
type Registry interface {
	// Store registers or replaces the user's active token.
	Store(ctx context.Context, userID string, token DeviceToken) error
	// ActiveToken returns the user's token, or ErrNoToken.
	ActiveToken(ctx context.Context, userID string) (DeviceToken, error)
	// Deactivate removes the user's token. Removing an absent token is
	// not an error.
	Deactivate(ctx context.Context, userID string) error
	Close() error
}
