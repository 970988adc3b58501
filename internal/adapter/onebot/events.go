package onebot

import (
	"strconv"
	"time"

	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

// ParseEvent converts one OneBot frame into a platform-neutral event.
// It reports false for unknown post types.
func ParseEvent(botID int64, raw map[string]any) (event.Event, bool) {
	postType := stringValue(raw["post_type"])
	switch postType {
	case "message", "message_sent":
		return messageEvent(botID, raw), true

	case "notice":
		return event.NewNotice(event.NoticeParams{
			Protocol:   Protocol,
			BotID:      botID,
			SelfID:     idString(raw["self_id"]),
			Time:       eventTime(raw["time"]),
			Raw:        raw,
			NoticeType: stringValue(raw["notice_type"]),
			SubType:    stringValue(raw["sub_type"]),
			UserID:     idString(raw["user_id"]),
			GroupID:    idString(raw["group_id"]),
			TargetID:   idString(raw["target_id"]),
		}), true

	case "request":
		return event.NewRequest(event.RequestParams{
			Protocol:    Protocol,
			BotID:       botID,
			SelfID:      idString(raw["self_id"]),
			Time:        eventTime(raw["time"]),
			Raw:         raw,
			RequestType: stringValue(raw["request_type"]),
			SubType:     stringValue(raw["sub_type"]),
			UserID:      idString(raw["user_id"]),
			GroupID:     idString(raw["group_id"]),
			Comment:     stringValue(raw["comment"]),
			Flag:        stringValue(raw["flag"]),
		}), true

	case "meta_event":
		return event.NewMeta(event.MetaParams{
			Protocol: Protocol,
			BotID:    botID,
			SelfID:   idString(raw["self_id"]),
			Time:     eventTime(raw["time"]),
			Raw:      raw,
			MetaType: stringValue(raw["meta_event_type"]),
			SubType:  stringValue(raw["sub_type"]),
		}), true

	default:
		log.Debug(log.CatOneBot, "unknown post type", "post_type", postType, "bot_id", botID)
		return nil, false
	}
}

func messageEvent(botID int64, raw map[string]any) event.Event {
	selfID := idString(raw["self_id"])
	msgType := stringValue(raw["message_type"])
	if msgType == "" {
		msgType = event.ContextPrivate
	}

	msg := parseMessage(raw["message"])

	// Private messages always address the bot; group messages only when
	// an at segment names it.
	toMe := msgType == event.ContextPrivate
	if !toMe {
		for _, seg := range msg {
			if seg.Type == message.TypeAt && idString(seg.Data["qq"]) == selfID {
				toMe = true
				break
			}
		}
	}

	sender, _ := raw["sender"].(map[string]any)
	userID := idString(raw["user_id"])

	return event.NewMessage(event.MessageParams{
		Protocol:    Protocol,
		BotID:       botID,
		SelfID:      selfID,
		Time:        eventTime(raw["time"]),
		Raw:         raw,
		MessageType: msgType,
		MessageID:   idString(raw["message_id"]),
		UserID:      userID,
		GroupID:     idString(raw["group_id"]),
		Sender: event.Sender{
			UserID:   userID,
			Nickname: stringValue(sender["nickname"]),
			Role:     stringValue(sender["role"]),
		},
		Message:    msg,
		RawMessage: stringValue(raw["raw_message"]),
		ToMe:       toMe,
	})
}

// parseMessage accepts both OneBot wire forms: a CQ code string or a
// segment array.
func parseMessage(v any) message.Message {
	switch m := v.(type) {
	case string:
		return message.DecodeCQ(m)
	case []any:
		msg := make(message.Message, 0, len(m))
		for _, item := range m {
			seg, ok := item.(map[string]any)
			if !ok {
				continue
			}
			segType := stringValue(seg["type"])
			if segType == "" {
				continue
			}
			data, _ := seg["data"].(map[string]any)
			if data == nil {
				data = map[string]any{}
			}
			msg = append(msg, message.Segment{Type: segType, Data: data})
		}
		return msg
	default:
		return nil
	}
}

// idString normalizes the numeric ids OneBot sends into strings.
func idString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case int:
		return strconv.Itoa(n)
	default:
		return ""
	}
}

func eventTime(v any) time.Time {
	n, ok := intValue(v)
	if !ok || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
