package testutil

import (
	"fmt"
	"time"

	"botweave/internal/domain"
)

// userData holds all columns for a user row.
type userData struct {
	id       int64
	username string
	nickname string
}

func defaultUser(id int64, username string) userData {
	return userData{id: id, username: username, nickname: username}
}

// UserOption configures a user row during builder setup.
type UserOption func(*userData)

// Nickname sets the user's display name.
func Nickname(n string) UserOption {
	return func(u *userData) { u.nickname = n }
}

// botData holds all columns for a bot row.
type botData struct {
	id        int64
	name      string
	protocol  domain.Protocol
	config    map[string]any
	ownerID   int64
	enabled   bool
	isRunning bool
	createdAt time.Time
	updatedAt time.Time
}

// defaultBot returns a botData with sensible defaults: an enabled QQ bot
// with synthetic credentials derived from its id.
func defaultBot(id int64, name string) botData {
	now := time.Now()
	return botData{
		id:       id,
		name:     name,
		protocol: domain.ProtocolQQ,
		config: map[string]any{
			"app_id":     fmt.Sprintf("app-%d", id),
			"app_secret": fmt.Sprintf("secret-%d", id),
		},
		enabled:   true,
		createdAt: now,
		updatedAt: now,
	}
}

// BotOption configures a bot row during builder setup.
type BotOption func(*botData)

// BotProtocol sets the bot's platform protocol.
func BotProtocol(p domain.Protocol) BotOption {
	return func(b *botData) { b.protocol = p }
}

// BotConfig replaces the bot's config document.
func BotConfig(cfg map[string]any) BotOption {
	return func(b *botData) { b.config = cfg }
}

// BotOwner sets the owning user id.
func BotOwner(userID int64) BotOption {
	return func(b *botData) { b.ownerID = userID }
}

// BotDisabled marks the bot disabled.
func BotDisabled() BotOption {
	return func(b *botData) { b.enabled = false }
}

// BotRunning sets the persisted running flag, as if the bot was up when
// the process last exited.
func BotRunning() BotOption {
	return func(b *botData) { b.isRunning = true }
}

// workflowData holds all columns for a workflow row.
type workflowData struct {
	id        int64
	name      string
	enabled   bool
	priority  int
	config    string
	creatorID int64
	createdAt time.Time
	updatedAt time.Time
}

func defaultWorkflow(id int64, name, config string) workflowData {
	now := time.Now()
	return workflowData{
		id:        id,
		name:      name,
		enabled:   true,
		priority:  100,
		config:    config,
		createdAt: now,
		updatedAt: now,
	}
}

// WorkflowOption configures a workflow row during builder setup.
type WorkflowOption func(*workflowData)

// WorkflowPriority sets the dispatch priority (lower runs first).
func WorkflowPriority(p int) WorkflowOption {
	return func(w *workflowData) { w.priority = p }
}

// WorkflowDisabled marks the workflow disabled.
func WorkflowDisabled() WorkflowOption {
	return func(w *workflowData) { w.enabled = false }
}

// WorkflowCreator sets the creating user id.
func WorkflowCreator(userID int64) WorkflowOption {
	return func(w *workflowData) { w.creatorID = userID }
}

// subData holds one user-workflow subscription row.
type subData struct {
	userID     int64
	workflowID int64
}

// globalData holds one global variable row.
type globalData struct {
	key      string
	value    string
	isSecret bool
}

// GlobalOption configures a global variable row during builder setup.
type GlobalOption func(*globalData)

// Secret marks the variable as a secret, masked in listings.
func Secret() GlobalOption {
	return func(g *globalData) { g.isSecret = true }
}
