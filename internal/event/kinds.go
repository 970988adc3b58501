package event

import (
	"time"

	"botweave/internal/message"
)

// Message context kinds.
const (
	ContextGroup   = "group"
	ContextPrivate = "private"
	ContextChannel = "channel"
	ContextDirect  = "direct"
)

// MessageParams collects the fields of an inbound message event.
type MessageParams struct {
	Protocol    string
	BotID       int64
	SelfID      string
	Time        time.Time
	Raw         map[string]any
	MessageType string
	MessageID   string
	UserID      string
	GroupID     string
	ChannelID   string
	GuildID     string
	Sender      Sender
	Message     message.Message
	RawMessage  string
	ToMe        bool
}

// MessageEvent is an inbound chat message.
type MessageEvent struct {
	base
	messageType string
	messageID   string
	userID      string
	groupID     string
	channelID   string
	guildID     string
	sender      Sender
	message     message.Message
	rawMessage  string
	toMe        bool
}

// NewMessage constructs an immutable message event.
func NewMessage(p MessageParams) *MessageEvent {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return &MessageEvent{
		base:        base{protocol: p.Protocol, botID: p.BotID, selfID: p.SelfID, time: p.Time, raw: p.Raw},
		messageType: p.MessageType,
		messageID:   p.MessageID,
		userID:      p.UserID,
		groupID:     p.GroupID,
		channelID:   p.ChannelID,
		guildID:     p.GuildID,
		sender:      p.Sender,
		message:     p.Message,
		rawMessage:  p.RawMessage,
		toMe:        p.ToMe,
	}
}

func (e *MessageEvent) Kind() Kind { return KindMessage }

// SessionID derives the conversational session key from the message
// context: group_<gid>, channel_<cid>, direct_<guild>, private_<uid>.
func (e *MessageEvent) SessionID() string {
	switch e.messageType {
	case ContextGroup:
		return "group_" + e.groupID
	case ContextChannel:
		return "channel_" + e.channelID
	case ContextDirect:
		return "direct_" + e.guildID
	default:
		return "private_" + e.userID
	}
}

func (e *MessageEvent) MessageType() string      { return e.messageType }
func (e *MessageEvent) MessageID() string        { return e.messageID }
func (e *MessageEvent) UserID() string           { return e.userID }
func (e *MessageEvent) GroupID() string          { return e.groupID }
func (e *MessageEvent) ChannelID() string        { return e.channelID }
func (e *MessageEvent) GuildID() string          { return e.guildID }
func (e *MessageEvent) Sender() Sender           { return e.sender }
func (e *MessageEvent) Message() message.Message { return e.message }
func (e *MessageEvent) RawMessage() string       { return e.rawMessage }
func (e *MessageEvent) ToMe() bool               { return e.toMe }

// IsGroup reports whether the message arrived in a group context.
func (e *MessageEvent) IsGroup() bool { return e.messageType == ContextGroup }

// NoticeParams collects the fields of a platform notification.
type NoticeParams struct {
	Protocol   string
	BotID      int64
	SelfID     string
	Time       time.Time
	Raw        map[string]any
	NoticeType string
	SubType    string
	UserID     string
	GroupID    string
	TargetID   string
}

// NoticeEvent is a platform notification such as a member join or a
// message recall.
type NoticeEvent struct {
	base
	noticeType string
	subType    string
	userID     string
	groupID    string
	targetID   string
}

// NewNotice constructs an immutable notice event.
func NewNotice(p NoticeParams) *NoticeEvent {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return &NoticeEvent{
		base:       base{protocol: p.Protocol, botID: p.BotID, selfID: p.SelfID, time: p.Time, raw: p.Raw},
		noticeType: p.NoticeType,
		subType:    p.SubType,
		userID:     p.UserID,
		groupID:    p.GroupID,
		targetID:   p.TargetID,
	}
}

func (e *NoticeEvent) Kind() Kind { return KindNotice }

func (e *NoticeEvent) SessionID() string {
	if e.groupID != "" {
		return "group_" + e.groupID
	}
	return "private_" + e.userID
}

func (e *NoticeEvent) NoticeType() string { return e.noticeType }
func (e *NoticeEvent) SubType() string    { return e.subType }
func (e *NoticeEvent) UserID() string     { return e.userID }
func (e *NoticeEvent) GroupID() string    { return e.groupID }
func (e *NoticeEvent) TargetID() string   { return e.targetID }

// RequestParams collects the fields of an approval request.
type RequestParams struct {
	Protocol    string
	BotID       int64
	SelfID      string
	Time        time.Time
	Raw         map[string]any
	RequestType string
	SubType     string
	UserID      string
	GroupID     string
	Comment     string
	Flag        string
}

// RequestEvent is an approval request such as a friend add or group join.
type RequestEvent struct {
	base
	requestType string
	subType     string
	userID      string
	groupID     string
	comment     string
	flag        string
}

// NewRequest constructs an immutable request event.
func NewRequest(p RequestParams) *RequestEvent {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return &RequestEvent{
		base:        base{protocol: p.Protocol, botID: p.BotID, selfID: p.SelfID, time: p.Time, raw: p.Raw},
		requestType: p.RequestType,
		subType:     p.SubType,
		userID:      p.UserID,
		groupID:     p.GroupID,
		comment:     p.Comment,
		flag:        p.Flag,
	}
}

func (e *RequestEvent) Kind() Kind { return KindRequest }

func (e *RequestEvent) SessionID() string {
	if e.groupID != "" {
		return "group_" + e.groupID
	}
	return "private_" + e.userID
}

func (e *RequestEvent) RequestType() string { return e.requestType }
func (e *RequestEvent) SubType() string     { return e.subType }
func (e *RequestEvent) UserID() string      { return e.userID }
func (e *RequestEvent) GroupID() string     { return e.groupID }
func (e *RequestEvent) Comment() string     { return e.comment }
func (e *RequestEvent) Flag() string        { return e.flag }

// MetaParams collects the fields of a protocol bookkeeping event.
type MetaParams struct {
	Protocol string
	BotID    int64
	SelfID   string
	Time     time.Time
	Raw      map[string]any
	MetaType string
	SubType  string
}

// MetaEvent is protocol bookkeeping such as lifecycle and heartbeat
// frames. The dispatcher never matches workflows against it.
type MetaEvent struct {
	base
	metaType string
	subType  string
}

// NewMeta constructs an immutable meta event.
func NewMeta(p MetaParams) *MetaEvent {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return &MetaEvent{
		base:     base{protocol: p.Protocol, botID: p.BotID, selfID: p.SelfID, time: p.Time, raw: p.Raw},
		metaType: p.MetaType,
		subType:  p.SubType,
	}
}

func (e *MetaEvent) Kind() Kind        { return KindMeta }
func (e *MetaEvent) SessionID() string { return "meta_" + e.selfID }
func (e *MetaEvent) MetaType() string  { return e.metaType }
func (e *MetaEvent) SubType() string   { return e.subType }

// ScheduledParams collects the fields of a synthetic scheduler tick.
type ScheduledParams struct {
	Protocol     string
	BotID        int64
	SelfID       string
	Time         time.Time
	WorkflowName string
}

// ScheduledEvent is the synthetic event a schedule trigger runs against.
// It carries no message, user, or group; workflows that need a send
// target name it explicitly in their step config.
type ScheduledEvent struct {
	base
	workflowName string
}

// NewScheduled constructs an immutable scheduled event.
func NewScheduled(p ScheduledParams) *ScheduledEvent {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return &ScheduledEvent{
		base:         base{protocol: p.Protocol, botID: p.BotID, selfID: p.SelfID, time: p.Time, raw: map[string]any{}},
		workflowName: p.WorkflowName,
	}
}

func (e *ScheduledEvent) Kind() Kind           { return KindScheduled }
func (e *ScheduledEvent) SessionID() string    { return "scheduled_" + e.workflowName }
func (e *ScheduledEvent) WorkflowName() string { return e.workflowName }
