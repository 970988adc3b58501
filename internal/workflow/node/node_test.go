package node

import (
	"testing"

	"botweave/internal/event"
	"botweave/internal/message"
	"botweave/internal/workflow"
)

// messageFlow builds a flow context around a private message event.
func messageFlow(t *testing.T, protocol, text string) *workflow.Context {
	t.Helper()
	ev := event.NewMessage(event.MessageParams{
		Protocol:    protocol,
		BotID:       1,
		SelfID:      "10001",
		Raw:         map[string]any{"post_type": "message"},
		MessageType: "private",
		MessageID:   "42",
		UserID:      "20002",
		Sender:      event.Sender{UserID: "20002", Nickname: "alice"},
		Message:     message.New(message.Text(text)),
		RawMessage:  text,
	})
	return workflow.NewContext(ev, nil)
}

// startedFlow mimics a run past the start node: the message text is
// already in scope.
func startedFlow(t *testing.T, protocol, text string) *workflow.Context {
	t.Helper()
	flow := messageFlow(t, protocol, text)
	flow.SetVariable("message", text)
	return flow
}
