package testutil

import "botweave/internal/domain"

// Workflow config documents shared by the presets. Echo answers any
// message; the report fires from a cron schedule.
const (
	EchoWorkflowConfig = `{"workflow": [` +
		`{"id": "extract", "type": "start"},` +
		`{"id": "reply", "type": "send_message", "config": {"content": "{{message}}"}}]}`

	ReportWorkflowConfig = `{"trigger_type": "schedule",` +
		` "schedule": {"type": "cron", "cron": "0 9 * * *"},` +
		` "workflow": [{"id": "report", "type": "send_message", "config": {"content": "daily report"}}]}`
)

// WithStandardTestData seeds the dataset most daemon-level tests start
// from: two users, a QQ bot and a OneBot bot, a message workflow and a
// scheduled one, a subscription, and a couple of globals.
//
//	alice (1) owns qq-bot (1, enabled) and subscribes to the report (2)
//	bob   (2) owns ob-bot (2, disabled)
func (b *Builder) WithStandardTestData() *Builder {
	return b.
		WithUser(1, "alice").
		WithUser(2, "bob", Nickname("Bob")).
		WithBot(1, "qq-bot", BotOwner(1)).
		WithBot(2, "ob-bot",
			BotOwner(2),
			BotProtocol(domain.ProtocolOneBot),
			BotConfig(map[string]any{"ws_url": "ws://127.0.0.1:6700", "access_token": "tok"}),
			BotDisabled()).
		WithWorkflow(1, "echo", EchoWorkflowConfig, WorkflowPriority(50), WorkflowCreator(1)).
		WithWorkflow(2, "daily-report", ReportWorkflowConfig, WorkflowCreator(1)).
		WithSubscription(1, 2).
		WithGlobal("announcement", "maintenance at noon").
		WithGlobal("api_token", "hunter2", Secret())
}
