package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_Supports(t *testing.T) {
	qq := NewBuilder("qq")
	onebot := NewBuilder("onebot")

	require.True(t, qq.Supports(TypeText), "text is universal")
	require.True(t, onebot.Supports(TypeText), "text is universal")

	require.True(t, qq.Supports(TypeMarkdown))
	require.False(t, onebot.Supports(TypeMarkdown), "onebot has no markdown form")

	require.True(t, qq.Supports(TypeArk))
	require.False(t, onebot.Supports(TypeArk))

	require.True(t, onebot.Supports(TypeAt))
	require.False(t, qq.Supports(TypeAt), "qq group messages cannot carry at segments")

	require.False(t, NewBuilder("irc").Supports(TypeImage), "unknown protocols support only text")
}

func TestBuilder_Text(t *testing.T) {
	m, err := NewBuilder("qq").Text("hello")
	require.NoError(t, err)
	require.Equal(t, "hello", m.PlainText())
}

func TestBuilder_Media(t *testing.T) {
	b := NewBuilder("onebot")

	for _, typ := range []string{TypeImage, TypeVideo, TypeVoice, TypeFile} {
		m, err := b.Media(typ, "https://example.com/x")
		require.NoError(t, err, "onebot should support %s", typ)
		require.Len(t, m, 1)
		require.Equal(t, typ, m[0].Type)
		require.Equal(t, "https://example.com/x", m[0].Str("file"))
	}

	_, err := b.Media(TypeMarkdown, "x")
	var unsupported *UnsupportedSegmentError
	require.True(t, errors.As(err, &unsupported), "media with a non-media type should fail")
}

func TestBuilder_Markdown_Unsupported(t *testing.T) {
	_, err := NewBuilder("onebot").Markdown("# hi")
	require.Error(t, err)

	var unsupported *UnsupportedSegmentError
	require.True(t, errors.As(err, &unsupported))
	require.Equal(t, "onebot", unsupported.Protocol)
	require.Equal(t, TypeMarkdown, unsupported.Type)
}

func TestBuilder_MarkdownTemplate(t *testing.T) {
	m, err := NewBuilder("qq").MarkdownTemplate("tpl-1", map[string]string{"k": "v"}, "kb-1")
	require.NoError(t, err)
	require.Len(t, m, 2, "keyboard id should add a keyboard segment")
	require.Equal(t, TypeMarkdown, m[0].Type)
	require.Equal(t, TypeKeyboard, m[1].Type)

	m, err = NewBuilder("qq").MarkdownTemplate("tpl-1", nil, "")
	require.NoError(t, err)
	require.Len(t, m, 1, "no keyboard id means no keyboard segment")
}

func TestBuilder_Ark_DefaultTemplate(t *testing.T) {
	m, err := NewBuilder("qq").Ark(0, []map[string]any{{"key": "#DESC#", "value": "x"}})
	require.NoError(t, err)
	require.Equal(t, 24, m[0].Data["template_id"], "template defaults to the key/value card")

	m, err = NewBuilder("qq").Ark(37, nil)
	require.NoError(t, err)
	require.Equal(t, 37, m[0].Data["template_id"])

	_, err = NewBuilder("onebot").Ark(24, nil)
	require.Error(t, err, "onebot has no ark form")
}
