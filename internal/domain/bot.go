// Package domain provides the pure domain layer for bots, workflows, and
// their subscriptions with no infrastructure dependencies.
//
// This package contains only plain Go types and interfaces:
//   - Entity records for bots, workflows, users, subscriptions, and
//     global variables
//   - Repository interfaces for persistence abstraction
//   - Domain-specific error types
//
// The domain layer has no knowledge of infrastructure concerns (databases,
// network protocols, file I/O, etc.).
package domain

import "time"

// Protocol identifies the chat platform a bot connects to.
type Protocol string

const (
	// ProtocolQQ is the QQ open-platform webhook protocol.
	ProtocolQQ Protocol = "qq"

	// ProtocolOneBot is the OneBot v11 WebSocket protocol.
	ProtocolOneBot Protocol = "onebot"
)

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// IsValid returns true if the protocol is a recognized platform.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolQQ, ProtocolOneBot:
		return true
	default:
		return false
	}
}

// Bot is a configured chat-bot account on one platform. The Config map
// holds protocol-specific settings (credentials, endpoints, behavior flags)
// and is stored as a JSON document.
type Bot struct {
	ID        int64
	Name      string
	Protocol  Protocol
	Config    map[string]any
	OwnerID   int64
	Enabled   bool
	IsRunning bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConfigString returns the named config value as a string, or "" when the
// key is absent or holds a non-string value.
func (b *Bot) ConfigString(key string) string {
	if b.Config == nil {
		return ""
	}
	s, _ := b.Config[key].(string)
	return s
}

// ConfigBool returns the named config value as a bool, or false when the
// key is absent or holds a non-bool value.
func (b *Bot) ConfigBool(key string) bool {
	if b.Config == nil {
		return false
	}
	v, _ := b.Config[key].(bool)
	return v
}

// AppID returns the platform application id from the bot config. Webhook
// requests are routed to bots by this value.
func (b *Bot) AppID() string {
	return b.ConfigString("app_id")
}
