// Package message provides the protocol-neutral message model shared by
// every adapter: a message is an ordered sequence of tagged segments. The
// package also carries the wire codecs that translate messages to and from
// protocol form (CQ code strings for OneBot, REST payloads for QQ).
package message

import "strings"

// Segment types understood by the platform. Protocols that lack a native
// rendering for a type reject it at build time, see Builder.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAt       = "at"
	TypeFace     = "face"
	TypeReply    = "reply"
	TypeVideo    = "video"
	TypeVoice    = "voice"
	TypeFile     = "file"
	TypeMarkdown = "markdown"
	TypeArk      = "ark"
	TypeKeyboard = "keyboard"
)

// KeyNeedsUpload marks a media segment whose content must be uploaded to
// the platform before the send call can reference it.
const KeyNeedsUpload = "_needs_upload"

// Segment is one tagged unit of a message.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Str returns the named data value as a string, or "" when the key is
// absent or holds a non-string value.
func (s Segment) Str(key string) string {
	v, _ := s.Data[key].(string)
	return v
}

// NeedsUpload reports whether the segment carries the upload marker.
func (s Segment) NeedsUpload() bool {
	v, _ := s.Data[KeyNeedsUpload].(bool)
	return v
}

// Message is an ordered sequence of segments.
type Message []Segment

// New returns a message holding the given segments.
func New(segments ...Segment) Message {
	return Message(segments)
}

// Concat returns a new message with other's segments appended to m's.
func (m Message) Concat(other Message) Message {
	joined := make(Message, 0, len(m)+len(other))
	joined = append(joined, m...)
	joined = append(joined, other...)
	return joined
}

// PlainText joins the text field of every text segment. Non-text segments
// contribute nothing.
func (m Message) PlainText() string {
	var b strings.Builder
	for _, s := range m {
		if s.Type == TypeText {
			b.WriteString(s.Str("text"))
		}
	}
	return b.String()
}

// Has reports whether any segment has the given type.
func (m Message) Has(typ string) bool {
	for _, s := range m {
		if s.Type == typ {
			return true
		}
	}
	return false
}

// First returns the first segment of the given type.
func (m Message) First(typ string) (Segment, bool) {
	for _, s := range m {
		if s.Type == typ {
			return s, true
		}
	}
	return Segment{}, false
}

// Text builds a text segment.
func Text(text string) Segment {
	return Segment{Type: TypeText, Data: map[string]any{"text": text}}
}

// Image builds an image segment referencing a URL or local file.
func Image(file string) Segment {
	return Segment{Type: TypeImage, Data: map[string]any{"file": file}}
}

// ImageData builds an image segment carrying base64-encoded content.
func ImageData(data string) Segment {
	return Segment{Type: TypeImage, Data: map[string]any{"file_data": data}}
}

// At builds a mention segment for the given platform user id.
func At(userID string) Segment {
	return Segment{Type: TypeAt, Data: map[string]any{"qq": userID}}
}

// Face builds a platform emoji segment.
func Face(id string) Segment {
	return Segment{Type: TypeFace, Data: map[string]any{"id": id}}
}

// Reply builds a reply-reference segment pointing at a prior message id.
func Reply(msgID string) Segment {
	return Segment{Type: TypeReply, Data: map[string]any{"id": msgID}}
}

// Video builds a video segment referencing a URL or local file.
func Video(file string) Segment {
	return Segment{Type: TypeVideo, Data: map[string]any{"file": file}}
}

// Voice builds a voice segment referencing a URL or local file.
func Voice(file string) Segment {
	return Segment{Type: TypeVoice, Data: map[string]any{"file": file}}
}

// File builds a file segment referencing a URL or local file.
func File(file string) Segment {
	return Segment{Type: TypeFile, Data: map[string]any{"file": file}}
}

// Markdown builds a markdown segment with raw content.
func Markdown(content string) Segment {
	return Segment{Type: TypeMarkdown, Data: map[string]any{"content": content}}
}

// MarkdownTemplate builds a markdown segment referencing a platform
// template with parameter substitutions.
func MarkdownTemplate(templateID string, params map[string]string) Segment {
	return Segment{Type: TypeMarkdown, Data: map[string]any{
		"custom_template_id": templateID,
		"params":             params,
	}}
}

// Ark builds an ark card segment. kv is the template's key/value list.
func Ark(templateID int, kv []map[string]any) Segment {
	return Segment{Type: TypeArk, Data: map[string]any{
		"template_id": templateID,
		"kv":          kv,
	}}
}

// Keyboard builds a button-keyboard segment referencing a platform
// keyboard template.
func Keyboard(id string) Segment {
	return Segment{Type: TypeKeyboard, Data: map[string]any{"id": id}}
}
