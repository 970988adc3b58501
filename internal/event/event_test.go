package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botweave/internal/message"
)

func TestMessageEvent_SessionID(t *testing.T) {
	tests := []struct {
		name   string
		params MessageParams
		want   string
	}{
		{"group", MessageParams{MessageType: ContextGroup, GroupID: "g1", UserID: "u1"}, "group_g1"},
		{"private", MessageParams{MessageType: ContextPrivate, UserID: "u1"}, "private_u1"},
		{"channel", MessageParams{MessageType: ContextChannel, ChannelID: "c1", UserID: "u1"}, "channel_c1"},
		{"direct", MessageParams{MessageType: ContextDirect, GuildID: "gd1", UserID: "u1"}, "direct_gd1"},
		{"unknown falls back to private", MessageParams{MessageType: "weird", UserID: "u1"}, "private_u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewMessage(tt.params)
			require.Equal(t, tt.want, e.SessionID())
		})
	}
}

func TestMessageEvent_Fields(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := message.New(message.Text("ping"))
	e := NewMessage(MessageParams{
		Protocol:    "qq",
		BotID:       7,
		SelfID:      "bot-1",
		Time:        at,
		Raw:         map[string]any{"id": "E1"},
		MessageType: ContextGroup,
		MessageID:   "m1",
		UserID:      "u1",
		GroupID:     "g1",
		Sender:      Sender{UserID: "u1", Nickname: "alice"},
		Message:     msg,
		RawMessage:  "ping",
		ToMe:        true,
	})

	require.Equal(t, KindMessage, e.Kind())
	require.Equal(t, "qq", e.Protocol())
	require.Equal(t, int64(7), e.BotID())
	require.Equal(t, "bot-1", e.SelfID())
	require.Equal(t, at, e.Time())
	require.Equal(t, "E1", e.Raw()["id"])
	require.Equal(t, "m1", e.MessageID())
	require.Equal(t, "ping", e.Message().PlainText())
	require.Equal(t, "ping", e.RawMessage())
	require.Equal(t, "alice", e.Sender().Nickname)
	require.True(t, e.ToMe())
	require.True(t, e.IsGroup())
}

func TestMessageEvent_DefaultsTime(t *testing.T) {
	e := NewMessage(MessageParams{UserID: "u1"})
	require.WithinDuration(t, time.Now(), e.Time(), time.Second, "zero time should default to now")
}

func TestNoticeEvent_SessionID(t *testing.T) {
	group := NewNotice(NoticeParams{NoticeType: "group_increase", GroupID: "g1", UserID: "u1"})
	require.Equal(t, KindNotice, group.Kind())
	require.Equal(t, "group_g1", group.SessionID())

	private := NewNotice(NoticeParams{NoticeType: "friend_recall", UserID: "u1"})
	require.Equal(t, "private_u1", private.SessionID())
}

func TestRequestEvent_Fields(t *testing.T) {
	e := NewRequest(RequestParams{
		RequestType: "group",
		SubType:     "add",
		UserID:      "u1",
		GroupID:     "g1",
		Comment:     "let me in",
		Flag:        "f1",
	})

	require.Equal(t, KindRequest, e.Kind())
	require.Equal(t, "group_g1", e.SessionID())
	require.Equal(t, "group", e.RequestType())
	require.Equal(t, "add", e.SubType())
	require.Equal(t, "let me in", e.Comment())
	require.Equal(t, "f1", e.Flag())
}

func TestMetaEvent(t *testing.T) {
	e := NewMeta(MetaParams{SelfID: "bot-1", MetaType: "heartbeat"})
	require.Equal(t, KindMeta, e.Kind())
	require.Equal(t, "meta_bot-1", e.SessionID())
	require.Equal(t, "heartbeat", e.MetaType())
}

func TestScheduledEvent(t *testing.T) {
	e := NewScheduled(ScheduledParams{Protocol: "qq", BotID: 3, WorkflowName: "daily-report"})
	require.Equal(t, KindScheduled, e.Kind())
	require.Equal(t, "scheduled_daily-report", e.SessionID())
	require.Equal(t, "daily-report", e.WorkflowName())
	require.NotNil(t, e.Raw(), "scheduled events carry an empty raw payload")
}

func TestReplyTarget(t *testing.T) {
	group := NewMessage(MessageParams{MessageType: ContextGroup, GroupID: "g1", MessageID: "m1"})
	target, ok := ReplyTarget(group)
	require.True(t, ok)
	require.Equal(t, Target{Kind: ContextGroup, ID: "g1", ReplyTo: "m1"}, target)

	private := NewMessage(MessageParams{MessageType: ContextPrivate, UserID: "u1", MessageID: "m2"})
	target, ok = ReplyTarget(private)
	require.True(t, ok)
	require.Equal(t, Target{Kind: ContextPrivate, ID: "u1", ReplyTo: "m2"}, target)

	direct := NewMessage(MessageParams{MessageType: ContextDirect, GuildID: "gd1", UserID: "u1"})
	target, ok = ReplyTarget(direct)
	require.True(t, ok)
	require.Equal(t, "gd1", target.GuildID)

	notice := NewNotice(NoticeParams{GroupID: "g1"})
	target, ok = ReplyTarget(notice)
	require.True(t, ok)
	require.Equal(t, ContextGroup, target.Kind)

	_, ok = ReplyTarget(NewScheduled(ScheduledParams{WorkflowName: "w"}))
	require.False(t, ok, "scheduled events have no reply context")

	_, ok = ReplyTarget(NewMeta(MetaParams{}))
	require.False(t, ok, "meta events have no reply context")
}
