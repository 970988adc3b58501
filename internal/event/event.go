// Package event defines the protocol-neutral event model. Adapters parse
// wire payloads into events; the dispatcher and workflow engine consume
// them. Events are immutable after construction, so they can be shared
// across concurrently running workflows without copying.
package event

import "time"

// Kind discriminates the event variants.
type Kind string

const (
	// KindMessage is an inbound chat message.
	KindMessage Kind = "message"

	// KindNotice is a platform notification (member joined, poke, recall).
	KindNotice Kind = "notice"

	// KindRequest is an approval request (friend add, group join).
	KindRequest Kind = "request"

	// KindMeta is protocol bookkeeping (lifecycle, heartbeat).
	KindMeta Kind = "meta"

	// KindScheduled is a synthetic tick injected by the scheduler.
	KindScheduled Kind = "scheduled"
)

// Event is one occurrence at a protocol endpoint.
type Event interface {
	// Kind returns the event variant.
	Kind() Kind

	// Protocol returns the protocol name of the originating adapter.
	Protocol() string

	// BotID returns the database id of the bot the event belongs to. The
	// reference is weak: consumers look the bot up when they need it.
	BotID() int64

	// SelfID returns the bot's own platform account id.
	SelfID() string

	// Time returns when the event occurred.
	Time() time.Time

	// Raw returns the original wire payload as decoded JSON.
	Raw() map[string]any

	// SessionID derives the deterministic conversational session key.
	// Two events with the same session id originate in the same context.
	SessionID() string
}

// base carries the fields every event shares.
type base struct {
	protocol string
	botID    int64
	selfID   string
	time     time.Time
	raw      map[string]any
}

func (b *base) Protocol() string    { return b.protocol }
func (b *base) BotID() int64        { return b.botID }
func (b *base) SelfID() string      { return b.selfID }
func (b *base) Time() time.Time     { return b.time }
func (b *base) Raw() map[string]any { return b.raw }

// Sender describes the author of a message event.
type Sender struct {
	UserID   string
	Nickname string
	Role     string
}
