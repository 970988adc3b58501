package event

// Target identifies where an outbound message goes.
type Target struct {
	// Kind is the context kind: group, private, channel, or direct.
	Kind string

	// ID is the group, user, or channel id the message is sent to.
	ID string

	// GuildID carries the guild for direct-message targets.
	GuildID string

	// ReplyTo is the inbound message id the send replies to, when any.
	ReplyTo string
}

// ReplyTarget derives the outbound target that answers e. It reports
// false for event kinds that have no conversational context to reply
// into (meta, scheduled).
func ReplyTarget(e Event) (Target, bool) {
	switch ev := e.(type) {
	case *MessageEvent:
		t := Target{Kind: ev.MessageType(), ReplyTo: ev.MessageID()}
		switch ev.MessageType() {
		case ContextGroup:
			t.ID = ev.GroupID()
		case ContextChannel:
			t.ID = ev.ChannelID()
		case ContextDirect:
			t.ID = ev.GuildID()
			t.GuildID = ev.GuildID()
		default:
			t.Kind = ContextPrivate
			t.ID = ev.UserID()
		}
		return t, true

	case *NoticeEvent:
		if ev.GroupID() != "" {
			return Target{Kind: ContextGroup, ID: ev.GroupID()}, true
		}
		return Target{Kind: ContextPrivate, ID: ev.UserID()}, true

	case *RequestEvent:
		if ev.GroupID() != "" {
			return Target{Kind: ContextGroup, ID: ev.GroupID()}, true
		}
		return Target{Kind: ContextPrivate, ID: ev.UserID()}, true

	default:
		return Target{}, false
	}
}
