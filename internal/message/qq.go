package message

import (
	"errors"
	"sort"
	"strings"
)

// QQ msg_type codes carried in send-message payloads.
const (
	QQMsgTypeText     = 0
	QQMsgTypeMarkdown = 2
	QQMsgTypeArk      = 3
	QQMsgTypeEmbed    = 4
	QQMsgTypeMedia    = 7
)

// QQ file_type codes for the media upload endpoint.
const (
	QQFileTypeImage = 1
	QQFileTypeVideo = 2
	QQFileTypeVoice = 3
	QQFileTypeFile  = 4
)

// ErrEmptyMessage is returned when a message with no sendable content is
// converted to a wire payload.
var ErrEmptyMessage = errors.New("message has no sendable content")

// QQUpload describes a pending media upload. Exactly one of URL and
// FileData is set.
type QQUpload struct {
	FileType int
	URL      string
	FileData string
}

// QQPayload is the protocol form of one send-message call. The client adds
// msg_seq, msg_id correlation, and the media file_info handle after any
// upload completes.
type QQPayload struct {
	Content  string
	MsgType  int
	Markdown map[string]any
	Ark      map[string]any
	Keyboard map[string]any
	Upload   *QQUpload
}

// qqFileTypes maps media segment types to upload file_type codes.
var qqFileTypes = map[string]int{
	TypeImage: QQFileTypeImage,
	TypeVideo: QQFileTypeVideo,
	TypeVoice: QQFileTypeVoice,
	TypeFile:  QQFileTypeFile,
}

// ToQQPayload flattens a message into one QQ send payload. All-text
// messages merge into a single content string; otherwise the first
// non-text segment decides the payload kind and the rest are dropped,
// except that a keyboard segment attaches to a markdown payload.
// Mention and reply segments carry no QQ wire form of their own (replies
// ride on the msg_id correlation), so they are skipped.
func ToQQPayload(m Message) (*QQPayload, error) {
	payload := &QQPayload{MsgType: QQMsgTypeText}

	var texts []string
	for _, s := range m {
		switch s.Type {
		case TypeText:
			texts = append(texts, s.Str("text"))

		case TypeMarkdown:
			if payload.MsgType != QQMsgTypeText {
				continue
			}
			payload.MsgType = QQMsgTypeMarkdown
			payload.Markdown = qqMarkdown(s)
			if kb, ok := m.First(TypeKeyboard); ok {
				payload.Keyboard = qqKeyboard(kb)
			}

		case TypeArk:
			if payload.MsgType != QQMsgTypeText {
				continue
			}
			payload.MsgType = QQMsgTypeArk
			payload.Ark = map[string]any{
				"template_id": s.Data["template_id"],
				"kv":          s.Data["kv"],
			}

		case TypeImage, TypeVideo, TypeVoice, TypeFile:
			if payload.MsgType != QQMsgTypeText {
				continue
			}
			payload.MsgType = QQMsgTypeMedia
			payload.Upload = &QQUpload{
				FileType: qqFileTypes[s.Type],
				URL:      s.Str("file"),
				FileData: s.Str("file_data"),
			}
		}
	}

	payload.Content = strings.Join(texts, "")
	if payload.MsgType == QQMsgTypeText && payload.Content == "" {
		return nil, ErrEmptyMessage
	}
	return payload, nil
}

// qqMarkdown converts a markdown segment into payload form. Template
// parameters pass through; raw content gets its line breaks rewritten to
// \r, which is what the platform renders.
func qqMarkdown(s Segment) map[string]any {
	if id, ok := s.Data["custom_template_id"]; ok {
		md := map[string]any{"custom_template_id": id}
		if params := markdownParams(s.Data["params"]); len(params) > 0 {
			md["params"] = params
		}
		return md
	}
	content := s.Str("content")
	content = strings.ReplaceAll(content, "\r\n", "\r")
	content = strings.ReplaceAll(content, "\n", "\r")
	return map[string]any{"content": content}
}

// markdownParams normalizes template parameters into the platform's
// {key, values} list form, in sorted key order.
func markdownParams(v any) []map[string]any {
	flat := map[string]string{}
	switch params := v.(type) {
	case map[string]string:
		for key, value := range params {
			flat[key] = value
		}
	case map[string]any:
		for key, value := range params {
			if s, ok := value.(string); ok {
				flat[key] = s
			}
		}
	}

	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	list := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		list = append(list, map[string]any{"key": key, "values": []string{flat[key]}})
	}
	return list
}

func qqKeyboard(s Segment) map[string]any {
	if id := s.Str("id"); id != "" {
		return map[string]any{"id": id}
	}
	if content, ok := s.Data["content"]; ok {
		return map[string]any{"content": content}
	}
	return map[string]any{}
}

// ArkLargeImage builds the large-image ark card (template 37) from a
// description, prompt, and image URL.
func ArkLargeImage(desc, prompt, imageURL string) Segment {
	return Ark(37, []map[string]any{
		{"key": "#METADESC#", "value": desc},
		{"key": "#PROMPT#", "value": prompt},
		{"key": "#IMG#", "value": imageURL},
	})
}
