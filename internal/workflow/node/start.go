package node

import (
	"context"

	"botweave/internal/event"
	"botweave/internal/message"
	"botweave/internal/workflow"
)

// StartNode extracts the triggering event's fields into the variable
// scope so later steps can reference them in templates.
type StartNode struct{}

func (n *StartNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "start",
		Name:        "Start",
		Description: "Extracts event fields into variables",
		Category:    "core",
		Outputs: []workflow.Port{
			{Name: "event", Label: "event - raw event payload", Type: "object"},
			{Name: "post_type", Label: "post_type - event kind", Type: "string"},
			{Name: "message", Label: "message - plain text content", Type: "string"},
			{Name: "message_full", Label: "message_full - full segment list", Type: "object"},
			{Name: "message_type", Label: "message_type - text/image/voice/video", Type: "string"},
			{Name: "has_image", Label: "has_image - message carries an image", Type: "boolean"},
			{Name: "has_at", Label: "has_at - message carries a mention", Type: "boolean"},
			{Name: "user_id", Label: "user_id - sender platform id", Type: "string"},
			{Name: "sender", Label: "sender - raw sender object", Type: "object"},
			{Name: "sender_name", Label: "sender_name - sender display name", Type: "string"},
			{Name: "group_id", Label: "group_id - group id, empty outside groups", Type: "string"},
			{Name: "message_id", Label: "message_id - platform message id", Type: "string"},
			{Name: "is_group", Label: "is_group - group context", Type: "boolean"},
			{Name: "protocol", Label: "protocol - originating adapter", Type: "string"},
			{Name: "bot_id", Label: "bot_id - bot platform account id", Type: "string"},
		},
	}
}

func (n *StartNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	ev := flow.Event

	flow.SetVariable("event", ev.Raw())
	flow.SetVariable("post_type", string(ev.Kind()))
	flow.SetVariable("protocol", ev.Protocol())
	flow.SetVariable("bot_id", ev.SelfID())

	var (
		text       string
		rawMessage string
		msgType    = "text"
		hasImage   bool
		hasAt      bool
		userID     string
		groupID    string
		messageID  string
		isGroup    bool
		msgFull    any
	)

	switch e := ev.(type) {
	case *event.MessageEvent:
		msg := e.Message()
		text = msg.PlainText()
		rawMessage = e.RawMessage()
		if rawMessage == "" {
			rawMessage = text
		}
		msgFull = msg
		for _, seg := range msg {
			switch seg.Type {
			case message.TypeImage:
				hasImage = true
				if text == "" {
					msgType = "image"
				}
			case message.TypeAt:
				hasAt = true
			case message.TypeVoice:
				msgType = "voice"
			case message.TypeVideo:
				msgType = "video"
			}
		}
		userID = e.UserID()
		groupID = e.GroupID()
		messageID = e.MessageID()
		isGroup = e.IsGroup()
	case *event.NoticeEvent:
		userID = e.UserID()
		groupID = e.GroupID()
		isGroup = groupID != ""
	case *event.RequestEvent:
		userID = e.UserID()
		groupID = e.GroupID()
		isGroup = groupID != ""
	}

	senderName := ""
	if raw := ev.Raw(); raw != nil {
		if sender, ok := raw["sender"].(map[string]any); ok && len(sender) > 0 {
			if v, _ := sender["nickname"].(string); v != "" {
				senderName = v
			} else if v, _ := sender["card"].(string); v != "" {
				senderName = v
			}
			flow.SetVariable("sender", sender)
		}
	}

	flow.SetVariable("message", text)
	flow.SetVariable("raw_message", rawMessage)
	flow.SetVariable("message_full", msgFull)
	flow.SetVariable("message_type", msgType)
	flow.SetVariable("has_image", hasImage)
	flow.SetVariable("has_at", hasAt)
	flow.SetVariable("user_id", userID)
	flow.SetVariable("sender.user_id", userID)
	flow.SetVariable("sender.nickname", senderName)
	flow.SetVariable("sender_name", senderName)
	flow.SetVariable("group_id", groupID)
	flow.SetVariable("message_id", messageID)
	flow.SetVariable("is_group", isGroup)

	return workflow.Result{
		"success": true,
		"extracted_fields": map[string]any{
			"message":     text,
			"user_id":     userID,
			"group_id":    groupID,
			"sender_name": senderName,
			"is_group":    isGroup,
		},
	}, nil
}

// EndNode terminates the step sequence. Whether the run counts as
// handled depends solely on whether a response was set before it.
type EndNode struct{}

func (n *EndNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "end",
		Name:        "End",
		Description: "Stops workflow execution",
		Category:    "core",
	}
}

func (n *EndNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	return workflow.Result{"success": true}, nil
}

func (n *EndNode) ShouldBreak(res workflow.Result) bool { return true }

// CommentNode is an annotation in the editor; executing it is a no-op.
type CommentNode struct{}

func (n *CommentNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "comment",
		Name:        "Comment",
		Description: "Annotation only, performs no operation",
		Category:    "utility",
	}
}

func (n *CommentNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	return workflow.Result{"success": true}, nil
}
