package message

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeCQ_Text(t *testing.T) {
	require.Equal(t, "hello", EncodeCQ(New(Text("hello"))))
}

func TestEncodeCQ_EscapesText(t *testing.T) {
	// Text escapes & [ ] but keeps commas
	require.Equal(t, "a&amp;b&#91;c&#93;d,e", EncodeCQ(New(Text("a&b[c]d,e"))))
}

func TestEncodeCQ_EscapesParams(t *testing.T) {
	// Parameter values additionally escape commas
	m := New(Image("a,b&c"))
	require.Equal(t, "[CQ:image,file=a&#44;b&amp;c]", EncodeCQ(m))
}

func TestEncodeCQ_SortsParams(t *testing.T) {
	s := Segment{Type: TypeImage, Data: map[string]any{"file": "a.png", "cache": "0"}}
	require.Equal(t, "[CQ:image,cache=0,file=a.png]", EncodeCQ(New(s)), "params should be emitted in sorted key order")
}

func TestEncodeCQ_Mixed(t *testing.T) {
	m := New(At("10001"), Text(" hello "), Face("14"))
	require.Equal(t, "[CQ:at,qq=10001] hello [CQ:face,id=14]", EncodeCQ(m))
}

func TestDecodeCQ_Plain(t *testing.T) {
	m := DecodeCQ("just text")
	require.Len(t, m, 1)
	require.Equal(t, Text("just text"), m[0])
}

func TestDecodeCQ_Unescapes(t *testing.T) {
	m := DecodeCQ("a&amp;b&#91;c&#93;")
	require.Equal(t, "a&b[c]", m.PlainText())

	withParam := DecodeCQ("[CQ:image,file=a&#44;b&amp;c]")
	require.Len(t, withParam, 1)
	require.Equal(t, "a,b&c", withParam[0].Str("file"))
}

func TestDecodeCQ_Mixed(t *testing.T) {
	m := DecodeCQ("[CQ:reply,id=msg-1][CQ:at,qq=10001] ping")
	require.Len(t, m, 3)
	require.Equal(t, TypeReply, m[0].Type)
	require.Equal(t, "msg-1", m[0].Str("id"))
	require.Equal(t, TypeAt, m[1].Type)
	require.Equal(t, "10001", m[1].Str("qq"))
	require.Equal(t, Text(" ping"), m[2])
}

func TestDecodeCQ_ValueWithEquals(t *testing.T) {
	m := DecodeCQ("[CQ:image,file=https://example.com/a.png?x=1&amp;y=2]")
	require.Len(t, m, 1)
	require.Equal(t, "https://example.com/a.png?x=1&y=2", m[0].Str("file"),
		"only the first = splits key from value")
}

func TestDecodeCQ_TrailingComma(t *testing.T) {
	m := DecodeCQ("[CQ:face,id=14,]")
	require.Len(t, m, 1)
	require.Equal(t, "14", m[0].Str("id"))
}

func TestDecodeCQ_UnknownTypePasses(t *testing.T) {
	m := DecodeCQ("[CQ:shake]")
	require.Len(t, m, 1)
	require.Equal(t, "shake", m[0].Type)
	require.Empty(t, m[0].Data)
}

// TestCQ_RoundTrip is a property-based test using rapid. Messages in
// normal form (non-empty text, no adjacent text segments) built from
// text, image, at, face, and reply segments survive an encode/decode
// round trip unchanged.
func TestCQ_RoundTrip(t *testing.T) {
	textGen := rapid.StringMatching(`[a-zA-Z0-9 &\[\],]{1,20}`)
	idGen := rapid.StringMatching(`[a-z0-9]{1,12}`)

	rapid.Check(t, func(r *rapid.T) {
		numSegments := rapid.IntRange(1, 8).Draw(r, "numSegments")

		var original Message
		lastWasText := false
		for i := 0; i < numSegments; i++ {
			kind := rapid.IntRange(0, 4).Draw(r, "kind")
			if kind == 0 && lastWasText {
				kind = 1 + rapid.IntRange(0, 3).Draw(r, "altKind")
			}
			switch kind {
			case 0:
				original = append(original, Text(textGen.Draw(r, "text")))
				lastWasText = true
			case 1:
				original = append(original, Image(idGen.Draw(r, "file")))
				lastWasText = false
			case 2:
				original = append(original, At(idGen.Draw(r, "qq")))
				lastWasText = false
			case 3:
				original = append(original, Face(idGen.Draw(r, "face")))
				lastWasText = false
			case 4:
				original = append(original, Reply(idGen.Draw(r, "reply")))
				lastWasText = false
			}
		}

		decoded := DecodeCQ(EncodeCQ(original))
		if len(decoded) != len(original) {
			r.Fatalf("segment count changed: %d -> %d", len(original), len(decoded))
		}
		for i := range original {
			if decoded[i].Type != original[i].Type {
				r.Fatalf("segment %d type changed: %s -> %s", i, original[i].Type, decoded[i].Type)
			}
			for key, want := range original[i].Data {
				if got := decoded[i].Str(key); got != want {
					r.Fatalf("segment %d key %q changed: %v -> %v", i, key, want, got)
				}
			}
		}
	})
}
