// Package onebot implements the OneBot v11 adapter over a forward
// WebSocket connection. The adapter dials the protocol endpoint, keeps
// the link alive with pings, reconnects after drops, and correlates API
// responses to requests through echo tokens.
package onebot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Protocol is the adapter protocol name.
const Protocol = "onebot"

// Config is the per-bot connection config parsed from the bot's config
// bag.
type Config struct {
	Host        string
	Port        int
	AccessToken string

	// SelfTrigger makes the bot's own outbound messages (message_sent
	// frames) run through the pipeline like inbound ones.
	SelfTrigger bool
}

// URL is the forward WebSocket endpoint.
func (c Config) URL() string {
	return fmt.Sprintf("ws://%s:%d/", c.Host, c.Port)
}

// ParseConfig extracts and validates the OneBot fields of a bot config.
func ParseConfig(raw map[string]any) (Config, error) {
	cfg := Config{
		AccessToken: stringValue(raw["access_token"]),
		SelfTrigger: boolValue(raw["self_trigger"]),
	}
	cfg.Host = strings.TrimSpace(stringValue(raw["ws_host"]))
	if cfg.Host == "" {
		return Config{}, errors.New("onebot config missing ws_host")
	}
	port, ok := intValue(raw["ws_port"])
	if !ok || port <= 0 || port > 65535 {
		return Config{}, errors.New("onebot config missing or invalid ws_port")
	}
	cfg.Port = int(port)
	return cfg, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	default:
		return false
	}
}

func intValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
