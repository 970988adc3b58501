package testutil

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/infrastructure/sqlite"
)

// Builder accumulates test rows and inserts them in foreign-key order.
// Rows carry explicit ids so tests can reference them without reading
// them back.
type Builder struct {
	t         *testing.T
	db        *sql.DB
	users     []userData
	bots      []botData
	workflows []workflowData
	subs      []subData
	globals   []globalData
}

// NewBuilder creates a builder over the given test database.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db.Connection()}
}

// WithUser adds a user row with optional configuration.
func (b *Builder) WithUser(id int64, username string, opts ...UserOption) *Builder {
	user := defaultUser(id, username)
	for _, opt := range opts {
		opt(&user)
	}
	b.users = append(b.users, user)
	return b
}

// WithBot adds a bot row with optional configuration.
func (b *Builder) WithBot(id int64, name string, opts ...BotOption) *Builder {
	bot := defaultBot(id, name)
	for _, opt := range opts {
		opt(&bot)
	}
	b.bots = append(b.bots, bot)
	return b
}

// WithWorkflow adds a workflow row with the given config document.
func (b *Builder) WithWorkflow(id int64, name, config string, opts ...WorkflowOption) *Builder {
	wf := defaultWorkflow(id, name, config)
	for _, opt := range opts {
		opt(&wf)
	}
	b.workflows = append(b.workflows, wf)
	return b
}

// WithSubscription links a user to a workflow.
func (b *Builder) WithSubscription(userID, workflowID int64) *Builder {
	b.subs = append(b.subs, subData{userID: userID, workflowID: workflowID})
	return b
}

// WithGlobal adds a global variable row.
func (b *Builder) WithGlobal(key, value string, opts ...GlobalOption) *Builder {
	g := globalData{key: key, value: value}
	for _, opt := range opts {
		opt(&g)
	}
	b.globals = append(b.globals, g)
	return b
}

// Build inserts all accumulated rows. Order matters: users first, then
// bots and workflows, then the subscription links.
func (b *Builder) Build() {
	b.t.Helper()
	for _, user := range b.users {
		b.insertUser(user)
	}
	for _, bot := range b.bots {
		b.insertBot(bot)
	}
	for _, wf := range b.workflows {
		b.insertWorkflow(wf)
	}
	for _, sub := range b.subs {
		b.insertSubscription(sub)
	}
	for _, g := range b.globals {
		b.insertGlobal(g)
	}
}

func (b *Builder) insertUser(user userData) {
	b.t.Helper()
	now := time.Now().Unix()
	_, err := b.db.Exec(
		`INSERT INTO users (id, username, nickname, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		user.id, user.username, user.nickname, now, now,
	)
	require.NoError(b.t, err)
}

func (b *Builder) insertBot(bot botData) {
	b.t.Helper()
	config, err := json.Marshal(bot.config)
	require.NoError(b.t, err)
	_, err = b.db.Exec(
		`INSERT INTO bots (id, name, protocol, config, owner_id, enabled, is_running, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bot.id, bot.name, string(bot.protocol), string(config), bot.ownerID,
		bot.enabled, bot.isRunning, bot.createdAt.Unix(), bot.updatedAt.Unix(),
	)
	require.NoError(b.t, err)
}

func (b *Builder) insertWorkflow(wf workflowData) {
	b.t.Helper()
	_, err := b.db.Exec(
		`INSERT INTO workflows (id, name, enabled, priority, config, creator_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.id, wf.name, wf.enabled, wf.priority, wf.config, wf.creatorID,
		wf.createdAt.Unix(), wf.updatedAt.Unix(),
	)
	require.NoError(b.t, err)
}

func (b *Builder) insertSubscription(sub subData) {
	b.t.Helper()
	_, err := b.db.Exec(
		`INSERT INTO user_workflows (user_id, workflow_id, enabled, created_at) VALUES (?, ?, 1, ?)`,
		sub.userID, sub.workflowID, time.Now().Unix(),
	)
	require.NoError(b.t, err)
}

func (b *Builder) insertGlobal(g globalData) {
	b.t.Helper()
	_, err := b.db.Exec(
		`INSERT INTO global_variables (key, value, is_secret, updated_at) VALUES (?, ?, ?, ?)`,
		g.key, g.value, g.isSecret, time.Now().Unix(),
	)
	require.NoError(b.t, err)
}
