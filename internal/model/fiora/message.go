package fiora

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// MessageType 消息内容类型
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageCode   MessageType = "code"
	MessageInvite MessageType = "invite"
)

// Message is one immutable unit of conversation content.
type Message struct {
	ID         string      `json:"_id"`
	CreateTime time.Time   `json:"createTime"`
	From       Sender      `json:"from"`
	To         string      `json:"to"`
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
}

// Sender 消息发送者摘要
type Sender struct {
	ID       string `json:"_id"`
	Tag      string `json:"tag"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// History is one conversation's entry in a history fetch response.
type History struct {
	Messages []Message `json:"messages"`
	Unread   int       `json:"unread"`
}

// Invite 邀请消息的内容
type Invite struct {
	Inviter     string `json:"inviter"`
	InviterName string `json:"inviterName"`
	Group       string `json:"group"`
	GroupName   string `json:"groupName"`
}

const codePrefix = "@language="

// ParseCode splits a code payload of the form "@language=<lang>@<code>".
// Payloads without the marker are returned as plain code with an empty language.
func ParseCode(content string) (language, code string) {
	if !strings.HasPrefix(content, codePrefix) {
		return "", content
	}

	rest := content[len(codePrefix):]
	end := strings.IndexByte(rest, '@')
	if end < 0 {
		return "", content
	}
	return rest[:end], rest[end+1:]
}

// ParseInvite decodes the JSON payload of an invitation message.
func ParseInvite(content string) (Invite, error) {
	var inv Invite
	if err := json.Unmarshal([]byte(content), &inv); err != nil {
		return Invite{}, fmt.Errorf("invalid invite payload: %w", err)
	}
	return inv, nil
}

// ResolveURL 处理协议相对地址（//host/path），补全为服务自身的协议
func ResolveURL(baseURL, ref string) string {
	if !strings.HasPrefix(ref, "//") {
		return ref
	}

	scheme := "https"
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" {
		scheme = u.Scheme
	}
	return scheme + ":" + ref
}

// AssetExt returns the file extension of an asset URL, ignoring the query string.
func AssetExt(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	return path.Ext(ref)
}

// ImageURL resolves the image reference carried by an image message.
func (m Message) ImageURL(baseURL string) string {
	return ResolveURL(baseURL, m.Content)
}

// Summary renders the message content as a single line for text panels.
func (m Message) Summary(baseURL string) string {
	switch m.Type {
	case MessageImage:
		return "[图片] " + m.ImageURL(baseURL)
	case MessageCode:
		lang, code := ParseCode(m.Content)
		if lang == "" {
			lang = "text"
		}
		return fmt.Sprintf("[代码 %s]\n%s", lang, code)
	case MessageInvite:
		inv, err := ParseInvite(m.Content)
		if err != nil {
			return "[邀请]"
		}
		return fmt.Sprintf("[邀请] %s 邀请你加入群组 %s", inv.InviterName, inv.GroupName)
	default:
		return m.Content
	}
}
