package node

import (
	"context"
	"strings"

	"botweave/internal/workflow"
)

// KeywordTriggerNode gates the run on the message containing one of the
// configured keywords. Without a match the sequence halts.
type KeywordTriggerNode struct{}

func (n *KeywordTriggerNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "keyword_trigger",
		Name:        "Keyword Trigger",
		Description: "Continues only when the message matches a keyword",
		Category:    "trigger",
		Outputs: []workflow.Port{
			{Name: "matched", Label: "matched - a keyword matched", Type: "boolean"},
			{Name: "keyword", Label: "keyword - the matching keyword", Type: "string"},
		},
	}
}

func (n *KeywordTriggerNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	matchType := cfg.Str("match_type")
	if matchType == "" {
		matchType = "contains"
	}
	text := workflow.Stringify(flow.GetVariable("message", ""))

	matched := ""
	found := false
	for _, line := range strings.Split(cfg.Str("keywords"), "\n") {
		keyword := strings.TrimSpace(line)
		if keyword == "" {
			continue
		}
		switch matchType {
		case "contains":
			found = strings.Contains(text, keyword)
		case "equals":
			found = text == keyword
		case "starts_with":
			found = strings.HasPrefix(text, keyword)
		}
		if found {
			matched = keyword
			break
		}
	}

	flow.SetVariable("matched", found)
	flow.SetVariable("keyword", matched)

	res := workflow.Result{"success": true, "matched": found}
	if found {
		res["keyword"] = matched
	}
	return res, nil
}

// ShouldBreak halts the sequence when no keyword matched.
func (n *KeywordTriggerNode) ShouldBreak(res workflow.Result) bool {
	return !res.Bool("matched")
}

// ProtocolCheckNode publishes which protocol the event arrived on and
// optionally compares it against a target.
type ProtocolCheckNode struct{}

func (n *ProtocolCheckNode) Meta() workflow.Meta {
	return workflow.Meta{
		Type:        "protocol_check",
		Name:        "Protocol Check",
		Description: "Identifies the protocol the event arrived on",
		Category:    "logic",
		Outputs: []workflow.Port{
			{Name: "protocol", Label: "protocol - adapter protocol name", Type: "string"},
			{Name: "is_qq", Label: "is_qq - QQ official protocol", Type: "boolean"},
			{Name: "is_onebot", Label: "is_onebot - OneBot protocol", Type: "boolean"},
		},
	}
}

func (n *ProtocolCheckNode) Execute(ctx context.Context, flow *workflow.Context, cfg workflow.Config) (workflow.Result, error) {
	protocol := flow.Event.Protocol()

	flow.SetVariable("protocol", protocol)
	flow.SetVariable("is_qq", protocol == "qq")
	flow.SetVariable("is_onebot", protocol == "onebot")

	res := workflow.Result{"success": true, "protocol": protocol}
	if target := cfg.Str("target_protocol"); target != "" {
		res["match"] = protocol == target
	}
	return res, nil
}
