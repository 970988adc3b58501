package message

import "fmt"

// UnsupportedSegmentError indicates that a protocol has no wire form for
// the requested segment type.
type UnsupportedSegmentError struct {
	Protocol string
	Type     string
}

func (e *UnsupportedSegmentError) Error() string {
	return fmt.Sprintf("protocol %s does not support %s segments", e.Protocol, e.Type)
}

// builderSupport is the per-protocol segment support table used when
// workflows construct outbound messages. Text is universal and omitted.
var builderSupport = map[string]map[string]bool{
	"qq": {
		TypeImage:    true,
		TypeVideo:    true,
		TypeVoice:    true,
		TypeFile:     true,
		TypeMarkdown: true,
		TypeArk:      true,
		TypeKeyboard: true,
	},
	"onebot": {
		TypeImage: true,
		TypeVideo: true,
		TypeVoice: true,
		TypeFile:  true,
		TypeAt:    true,
		TypeFace:  true,
		TypeReply: true,
	},
}

// Builder constructs outbound messages while enforcing the per-protocol
// segment support table. The event a reply belongs to is supplied by the
// caller at send time, not tracked by the builder.
type Builder struct {
	protocol string
}

// NewBuilder returns a builder for the given protocol name.
func NewBuilder(protocol string) *Builder {
	return &Builder{protocol: protocol}
}

// Supports reports whether the builder's protocol can send the segment
// type. Text is supported everywhere.
func (b *Builder) Supports(typ string) bool {
	if typ == TypeText {
		return true
	}
	return builderSupport[b.protocol][typ]
}

// Text builds a plain text message.
func (b *Builder) Text(text string) (Message, error) {
	return New(Text(text)), nil
}

// Media builds a single-segment media message of the given type (image,
// video, voice, or file) referencing a URL or local path.
func (b *Builder) Media(typ, file string) (Message, error) {
	if !b.Supports(typ) {
		return nil, &UnsupportedSegmentError{Protocol: b.protocol, Type: typ}
	}
	switch typ {
	case TypeImage:
		return New(Image(file)), nil
	case TypeVideo:
		return New(Video(file)), nil
	case TypeVoice:
		return New(Voice(file)), nil
	case TypeFile:
		return New(File(file)), nil
	default:
		return nil, &UnsupportedSegmentError{Protocol: b.protocol, Type: typ}
	}
}

// Markdown builds a markdown message from raw content.
func (b *Builder) Markdown(content string) (Message, error) {
	if !b.Supports(TypeMarkdown) {
		return nil, &UnsupportedSegmentError{Protocol: b.protocol, Type: TypeMarkdown}
	}
	return New(Markdown(content)), nil
}

// MarkdownTemplate builds a markdown message from a platform template. An
// optional keyboard template id attaches a button row.
func (b *Builder) MarkdownTemplate(templateID string, params map[string]string, keyboardID string) (Message, error) {
	if !b.Supports(TypeMarkdown) {
		return nil, &UnsupportedSegmentError{Protocol: b.protocol, Type: TypeMarkdown}
	}
	m := New(MarkdownTemplate(templateID, params))
	if keyboardID != "" {
		m = m.Concat(New(Keyboard(keyboardID)))
	}
	return m, nil
}

// Ark builds an ark card message. templateID defaults to 24, the plain
// key/value list card.
func (b *Builder) Ark(templateID int, kv []map[string]any) (Message, error) {
	if !b.Supports(TypeArk) {
		return nil, &UnsupportedSegmentError{Protocol: b.protocol, Type: TypeArk}
	}
	if templateID == 0 {
		templateID = 24
	}
	return New(Ark(templateID, kv)), nil
}
