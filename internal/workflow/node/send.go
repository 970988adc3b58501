package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"botweave/internal/message"
	"botweave/internal/workflow"
)

// sendSupport maps message kinds to the protocols that can deliver
// them. File, markdown, and ark have no OneBot wire form; OneBot file
// transfers go through the endpoint node's upload actions instead.
var sendSupport = map[string][]string{
	"text":     {"qq", "onebot"},
	"image":    {"qq", "onebot"},
	"video":    {"qq", "onebot"},
	"voice":    {"qq", "onebot"},
	"file":     {"qq"},
	"markdown": {"qq"},
	"ark":      {"qq"},
}

// SendMessageNode renders the configured content and queues it as the
// run's response. The dispatcher delivers the response after the run
// finishes.
type SendMessageNode struct{}

func (n *SendMessageNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "send_message",
		Name:        "Send Message",
		Description: "Sends a message back to the event source",
		Category:    "action",
		Inputs: []workflow.Port{
			{Name: "content", Label: "content - message body template", Type: "string"},
		},
	}
}

func (n *SendMessageNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	msgType := cfg.Str("message_type")
	if msgType == "" {
		msgType = "text"
	}
	protocol := flow.Event.Protocol()

	protocols, known := sendSupport[msgType]
	if !known || !containsString(protocols, protocol) {
		if cfg.Bool("skip_if_unsupported") {
			return nil, nil
		}
		return nil, fmt.Errorf("protocol %q does not support message type %q", protocol, msgType)
	}

	content := flow.RenderTemplate(cfg.Str("content"))
	builder := message.NewBuilder(protocol)

	var (
		msg message.Message
		err error
	)
	switch msgType {
	case "text":
		msg, err = builder.Text(content)
	case "image", "video", "voice", "file":
		msg, err = builder.Media(msgType, content)
	case "markdown":
		msg, err = n.buildMarkdown(builder, content, cfg)
	case "ark":
		msg, err = n.buildArk(builder, content, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	flow.SetResponse(msg)
	return withNext(workflow.Result{"success": true}, cfg), nil
}

// buildMarkdown builds a raw markdown message, or a template-based one
// when a template id is configured. Template content is a JSON object of
// parameter substitutions.
func (n *SendMessageNode) buildMarkdown(builder *message.Builder, content string, cfg workflow.Config) (message.Message, error) {
	templateID := cfg.Str("markdown_template_id")
	if templateID == "" {
		return builder.Markdown(content)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("markdown template params must be a JSON object: %w", err)
	}
	params := make(map[string]string, len(raw))
	for k, v := range raw {
		params[k] = workflow.Stringify(v)
	}
	return builder.MarkdownTemplate(templateID, params, cfg.Str("keyboard_id"))
}

// buildArk builds an ark card. Content is a JSON array of the card's
// key/value entries.
func (n *SendMessageNode) buildArk(builder *message.Builder, content string, cfg workflow.Config) (message.Message, error) {
	templateID := 24
	if s := cfg.Str("ark_template_id"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid ark template id %q", s)
		}
		templateID = id
	}
	var kv []map[string]any
	if err := json.Unmarshal([]byte(content), &kv); err != nil {
		return nil, fmt.Errorf("ark content must be a JSON array: %w", err)
	}
	return builder.Ark(templateID, kv)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
