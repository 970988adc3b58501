package message

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// cqCodeRe matches one CQ code. Parameter values may not contain a raw
// comma or closing bracket; those are escaped on the wire.
var cqCodeRe = regexp.MustCompile(`\[CQ:(?P<type>[a-zA-Z0-9-_.]+)(?P<params>(?:,[a-zA-Z0-9-_.]+=[^,\]]*)*),?\]`)

// escapeCQText escapes plain text for the CQ wire form. Commas stay as-is
// because they carry no meaning outside a CQ code.
func escapeCQText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "[", "&#91;")
	s = strings.ReplaceAll(s, "]", "&#93;")
	return s
}

// escapeCQParam escapes a CQ code parameter value, which additionally must
// not contain raw commas.
func escapeCQParam(s string) string {
	s = escapeCQText(s)
	s = strings.ReplaceAll(s, ",", "&#44;")
	return s
}

// unescapeCQ reverses the CQ escaping. &amp; is restored last so escaped
// ampersands cannot re-trigger the other replacements.
func unescapeCQ(s string) string {
	s = strings.ReplaceAll(s, "&#91;", "[")
	s = strings.ReplaceAll(s, "&#93;", "]")
	s = strings.ReplaceAll(s, "&#44;", ",")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// EncodeCQ renders a message in the CQ code wire form used by the OneBot
// string message format. Parameters are emitted in sorted key order so the
// encoding is deterministic.
func EncodeCQ(m Message) string {
	var b strings.Builder
	for _, s := range m {
		if s.Type == TypeText {
			b.WriteString(escapeCQText(s.Str("text")))
			continue
		}

		b.WriteString("[CQ:")
		b.WriteString(s.Type)

		keys := make([]string, 0, len(s.Data))
		for k := range s.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(",")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(escapeCQParam(fmt.Sprint(s.Data[k])))
		}
		b.WriteString("]")
	}
	return b.String()
}

// DecodeCQ parses a CQ code string into a message. Bytes between CQ codes
// become text segments; decoded parameter values are always strings.
func DecodeCQ(s string) Message {
	var m Message
	last := 0
	for _, loc := range cqCodeRe.FindAllStringSubmatchIndex(s, -1) {
		if loc[0] > last {
			m = append(m, Text(unescapeCQ(s[last:loc[0]])))
		}

		typ := s[loc[2]:loc[3]]
		data := map[string]any{}
		if loc[4] >= 0 {
			params := s[loc[4]:loc[5]]
			for _, pair := range strings.Split(params, ",") {
				if pair == "" {
					continue
				}
				key, value, found := strings.Cut(pair, "=")
				if !found {
					continue
				}
				data[key] = unescapeCQ(value)
			}
		}
		m = append(m, Segment{Type: typ, Data: data})

		last = loc[1]
	}
	if last < len(s) {
		m = append(m, Text(unescapeCQ(s[last:])))
	}
	return m
}
