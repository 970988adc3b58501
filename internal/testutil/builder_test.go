package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"botweave/internal/domain"
)

func TestBuilder_WithUser(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db).
		WithUser(1, "alice").
		WithUser(2, "bob", Nickname("Bobby")).
		Build()

	alice, err := db.Users().FindByID(1)
	require.NoError(t, err)
	require.Equal(t, "alice", alice.Username)
	require.Equal(t, "alice", alice.Nickname, "nickname defaults to the username")

	bob, err := db.Users().FindByUsername("bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), bob.ID)
	require.Equal(t, "Bobby", bob.Nickname)
}

func TestBuilder_WithBot_Defaults(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db).WithBot(1, "echo-bot").Build()

	bot, err := db.Bots().FindByID(1)
	require.NoError(t, err)
	require.Equal(t, "echo-bot", bot.Name)
	require.Equal(t, domain.ProtocolQQ, bot.Protocol)
	require.Equal(t, "app-1", bot.AppID())
	require.Equal(t, "secret-1", bot.ConfigString("app_secret"))
	require.True(t, bot.Enabled)
	require.False(t, bot.IsRunning)
}

func TestBuilder_WithBot_AllOptions(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db).
		WithUser(7, "owner").
		WithBot(3, "group-bot",
			BotProtocol(domain.ProtocolOneBot),
			BotConfig(map[string]any{"ws_url": "ws://10.0.0.5:6700"}),
			BotOwner(7),
			BotDisabled(),
			BotRunning(),
		).
		Build()

	bot, err := db.Bots().FindByID(3)
	require.NoError(t, err)
	require.Equal(t, domain.ProtocolOneBot, bot.Protocol)
	require.Equal(t, "ws://10.0.0.5:6700", bot.ConfigString("ws_url"))
	require.Equal(t, int64(7), bot.OwnerID)
	require.False(t, bot.Enabled)
	require.True(t, bot.IsRunning)
}

func TestBuilder_WithWorkflow(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db).
		WithWorkflow(1, "echo", EchoWorkflowConfig, WorkflowPriority(10)).
		WithWorkflow(2, "off", EchoWorkflowConfig, WorkflowDisabled()).
		Build()

	wf, err := db.Workflows().FindByID(1)
	require.NoError(t, err)
	require.Equal(t, "echo", wf.Name)
	require.Equal(t, 10, wf.Priority)
	require.Equal(t, EchoWorkflowConfig, wf.Config)
	require.True(t, wf.Enabled)

	enabled := true
	active, err := db.Workflows().List(domain.WorkflowFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int64(1), active[0].ID)
}

func TestBuilder_WithSubscription(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db).
		WithUser(1, "alice").
		WithWorkflow(1, "echo", EchoWorkflowConfig).
		WithSubscription(1, 1).
		Build()

	subscribed, err := db.Subscriptions().IsSubscribed(1, 1)
	require.NoError(t, err)
	require.True(t, subscribed)

	subs, err := db.Subscriptions().ListByWorkflow(1)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, int64(1), subs[0].UserID)
}

func TestBuilder_WithGlobal(t *testing.T) {
	db := NewTestDB(t)

	NewBuilder(t, db).
		WithGlobal("greeting", "hello").
		WithGlobal("api_key", "k-123", Secret()).
		Build()

	plain, err := db.GlobalVariables().FindByKey("greeting")
	require.NoError(t, err)
	require.Equal(t, "hello", plain.Value)
	require.False(t, plain.IsSecret)

	secret, err := db.GlobalVariables().FindByKey("api_key")
	require.NoError(t, err)
	require.True(t, secret.IsSecret)
}

func TestBuilder_ChainMethods(t *testing.T) {
	db := NewTestDB(t)

	builder := NewBuilder(t, db)
	result := builder.
		WithUser(1, "alice").
		WithBot(1, "bot-a").
		WithBot(2, "bot-b").
		WithWorkflow(1, "echo", EchoWorkflowConfig).
		WithSubscription(1, 1)

	require.Same(t, builder, result, "chained methods should return same builder")

	result.Build()

	bots, err := db.Bots().List(domain.BotFilter{})
	require.NoError(t, err)
	require.Len(t, bots, 2)
}
