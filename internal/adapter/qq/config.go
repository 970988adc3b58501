// Package qq implements the webhook-driven adapter for the official QQ
// bot platform. Inbound events arrive over the platform's push webhook;
// outbound traffic goes through the REST API with an app access token.
package qq

import (
	"errors"
	"strconv"
	"strings"
)

// Protocol is the adapter protocol name.
const Protocol = "qq"

// ConfigKeyField is the bot config field inbound webhooks are routed by.
const ConfigKeyField = "app_id"

// Config is the per-bot connection config parsed from the bot's config
// bag.
type Config struct {
	AppID     string
	AppSecret string
}

// ParseConfig extracts and validates the QQ fields of a bot config.
func ParseConfig(raw map[string]any) (Config, error) {
	cfg := Config{
		AppID:     configString(raw, "app_id"),
		AppSecret: configString(raw, "app_secret"),
	}
	if cfg.AppID == "" {
		return Config{}, errors.New("qq config missing app_id")
	}
	if cfg.AppSecret == "" {
		return Config{}, errors.New("qq config missing app_secret")
	}
	return cfg, nil
}

// configString reads a config value as a string. App ids saved through
// the management API sometimes arrive as JSON numbers.
func configString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
