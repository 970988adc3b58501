package qq

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

// Webhook operation codes.
const (
	// OpDispatch carries a platform event.
	OpDispatch = 0

	// OpCallbackVerify is the URL ownership handshake sent when the
	// webhook address is configured.
	OpCallbackVerify = 13
)

// HeaderAppID names the header that routes a webhook to its bot.
const HeaderAppID = "X-Bot-Appid"

// Signature headers on webhook requests.
const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// DedupTTL is how long processed webhook event ids are remembered.
const DedupTTL = 24 * time.Hour

// Envelope is one webhook callback frame.
type Envelope struct {
	ID   string          `json:"id"`
	Op   int             `json:"op"`
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// HandshakeResponse answers an op 13 callback validation.
type HandshakeResponse struct {
	PlainToken string `json:"plain_token"`
	Signature  string `json:"signature"`
}

// AnswerHandshake decodes an op 13 envelope and signs the expected
// response with the bot secret.
func AnswerHandshake(secret string, env Envelope) (HandshakeResponse, error) {
	var hs struct {
		PlainToken string `json:"plain_token"`
		EventTS    string `json:"event_ts"`
	}
	if err := json.Unmarshal(env.Data, &hs); err != nil {
		return HandshakeResponse{}, fmt.Errorf("failed to decode handshake payload: %w", err)
	}
	if hs.PlainToken == "" {
		return HandshakeResponse{}, errors.New("handshake payload missing plain_token")
	}
	return HandshakeResponse{
		PlainToken: hs.PlainToken,
		Signature:  SignHandshake(secret, hs.EventTS, hs.PlainToken),
	}, nil
}

// DedupKey builds the replay-suppression key for one webhook event id.
// The day component lets stale entries age out alongside the TTL.
func DedupKey(eventID string, now time.Time) string {
	return "qq_event_dedup:" + now.Format("20060102") + ":" + eventID
}

// noticeTypes are the dispatch event types surfaced as notice events.
var noticeTypes = map[string]struct{}{
	"GUILD_CREATE":         {},
	"GUILD_UPDATE":         {},
	"GUILD_DELETE":         {},
	"CHANNEL_CREATE":       {},
	"CHANNEL_UPDATE":       {},
	"CHANNEL_DELETE":       {},
	"GUILD_MEMBER_ADD":     {},
	"GUILD_MEMBER_UPDATE":  {},
	"GUILD_MEMBER_REMOVE":  {},
	"FRIEND_ADD":           {},
	"FRIEND_DEL":           {},
	"GROUP_ADD_ROBOT":      {},
	"GROUP_DEL_ROBOT":      {},
	"C2C_MSG_REJECT":       {},
	"C2C_MSG_RECEIVE":      {},
	"GROUP_MSG_REJECT":     {},
	"GROUP_MSG_RECEIVE":    {},
	"INTERACTION_CREATE":   {},
	"MESSAGE_AUDIT_PASS":   {},
	"MESSAGE_AUDIT_REJECT": {},
}

// ParseEvent converts a dispatch envelope into a platform-neutral event.
// It reports false for event types the pipeline has no use for.
func ParseEvent(botID int64, selfID string, env Envelope) (event.Event, bool) {
	var data map[string]any
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Warn(log.CatQQ, "undecodable event payload", "type", env.Type, "bot_id", botID)
			return nil, false
		}
	}

	switch env.Type {
	case "GROUP_AT_MESSAGE_CREATE":
		// The platform strips the @-mention from group messages itself.
		return messageEvent(botID, selfID, data, event.ContextGroup, true), true
	case "C2C_MESSAGE_CREATE":
		return messageEvent(botID, selfID, data, event.ContextPrivate, true), true
	case "AT_MESSAGE_CREATE":
		return messageEvent(botID, selfID, data, event.ContextChannel, true), true
	case "MESSAGE_CREATE":
		return messageEvent(botID, selfID, data, event.ContextChannel, false), true
	case "DIRECT_MESSAGE_CREATE":
		return messageEvent(botID, selfID, data, event.ContextDirect, true), true
	}

	if _, ok := noticeTypes[env.Type]; ok {
		return noticeEvent(botID, selfID, env.Type, data), true
	}

	log.Debug(log.CatQQ, "ignoring event type", "type", env.Type, "bot_id", botID)
	return nil, false
}

func messageEvent(botID int64, selfID string, data map[string]any, context string, toMe bool) event.Event {
	rawContent := str(data, "content")
	content := strings.TrimSpace(rawContent)
	if context == event.ContextChannel {
		content = cleanMentions(rawContent, data["mentions"])
	}

	author, _ := data["author"].(map[string]any)
	userID := firstNonEmpty(
		str(author, "member_openid"),
		str(author, "user_openid"),
		str(author, "id"),
		str(data, "openid"),
	)

	var msg message.Message
	if content != "" {
		msg = append(msg, message.Text(content))
	}
	msg = append(msg, attachmentSegments(data["attachments"])...)

	return event.NewMessage(event.MessageParams{
		Protocol:    Protocol,
		BotID:       botID,
		SelfID:      selfID,
		Time:        eventTime(str(data, "timestamp")),
		Raw:         data,
		MessageType: context,
		MessageID:   str(data, "id"),
		UserID:      userID,
		GroupID:     str(data, "group_openid"),
		ChannelID:   str(data, "channel_id"),
		GuildID:     str(data, "guild_id"),
		Sender:      event.Sender{UserID: userID, Nickname: str(author, "username")},
		Message:     msg,
		RawMessage:  rawContent,
		ToMe:        toMe,
	})
}

func noticeEvent(botID int64, selfID, eventType string, data map[string]any) event.Event {
	user, _ := data["user"].(map[string]any)
	userID := firstNonEmpty(
		str(data, "openid"),
		str(data, "op_member_openid"),
		str(user, "id"),
	)
	return event.NewNotice(event.NoticeParams{
		Protocol:   Protocol,
		BotID:      botID,
		SelfID:     selfID,
		Time:       eventTime(str(data, "timestamp")),
		Raw:        data,
		NoticeType: strings.ToLower(eventType),
		UserID:     userID,
		GroupID:    str(data, "group_openid"),
		TargetID:   firstNonEmpty(str(data, "guild_id"), str(data, "channel_id"), str(data, "message_id")),
	})
}

var mentionRe = regexp.MustCompile(`<@!?\d+>`)

// cleanMentions strips @-mention markers from channel message content.
// When the payload lists mentions each one is removed by id, otherwise
// the generic marker pattern is stripped.
func cleanMentions(content string, mentions any) string {
	list, _ := mentions.([]any)
	if len(list) == 0 {
		return strings.TrimSpace(mentionRe.ReplaceAllString(content, ""))
	}
	for _, m := range list {
		mention, ok := m.(map[string]any)
		if !ok {
			continue
		}
		id := str(mention, "id")
		if id == "" {
			continue
		}
		content = strings.ReplaceAll(content, "<@!"+id+">", "")
		content = strings.ReplaceAll(content, "<@"+id+">", "")
	}
	return strings.TrimSpace(content)
}

// attachmentSegments converts payload attachments into media segments.
// Attachment URLs arrive without a scheme.
func attachmentSegments(v any) []message.Segment {
	list, _ := v.([]any)
	segs := make([]message.Segment, 0, len(list))
	for _, a := range list {
		att, ok := a.(map[string]any)
		if !ok {
			continue
		}
		fileURL := str(att, "url")
		if fileURL == "" {
			continue
		}
		if !strings.Contains(fileURL, "://") {
			fileURL = "https://" + fileURL
		}
		contentType := str(att, "content_type")
		switch {
		case strings.HasPrefix(contentType, "image"):
			segs = append(segs, message.Image(fileURL))
		case strings.HasPrefix(contentType, "video"):
			segs = append(segs, message.Video(fileURL))
		case strings.HasPrefix(contentType, "audio"), strings.HasPrefix(contentType, "voice"):
			segs = append(segs, message.Voice(fileURL))
		default:
			segs = append(segs, message.File(fileURL))
		}
	}
	return segs
}

// eventTime parses the platform's RFC 3339 timestamps. Some payloads
// carry epoch seconds instead. A zero return makes the event default to
// the receive time.
func eventTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	if n, err := strconv.ParseInt(ts, 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0)
	}
	return time.Time{}
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
