package fiora

import (
	"context"
	"encoding/json"
	"fmt"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
)

type historyRequest struct {
	Linkmans []string `json:"linkmans"`
}

type sendRequest struct {
	To      string            `json:"to"`
	Type    model.MessageType `json:"type"`
	Content string            `json:"content"`
}

// FetchHistory loads the latest messages of the given conversations in one
// request and prepends them to the cache. An empty list is a no-op.
//
// Live messages that arrive for these conversations while the request is in
// flight are held back and appended after the history, whether the request
// succeeds or not.
func (c *Client) FetchHistory(ctx context.Context, conversationIDs []string) error {
	if len(conversationIDs) == 0 {
		return nil
	}

	c.cache.BeginHistory(conversationIDs)

	var histories map[string]model.History
	raw, err := c.Emit(ctx, EventFetchHistory, historyRequest{Linkmans: conversationIDs})
	if err == nil {
		if derr := json.Unmarshal(raw, &histories); derr != nil {
			err = fmt.Errorf("%s: decode history: %w", EventFetchHistory, derr)
		}
	}

	for _, id := range conversationIDs {
		history, ok := histories[id]
		if ok && err == nil {
			c.cache.SetUnread(id, history.Unread)
		}
		released := c.cache.CompleteHistory(id, history.Messages)
		for _, msg := range released {
			c.published(msg)
		}
	}
	return err
}

// SendMessage sends content to a conversation. The server's canonical echo is
// appended to the cache and then published; a failed send changes nothing.
func (c *Client) SendMessage(ctx context.Context, to, content string, typ model.MessageType) (*model.Message, error) {
	if typ == "" {
		typ = model.MessageText
	}

	raw, err := c.Emit(ctx, EventSendMessage, sendRequest{To: to, Type: typ, Content: content})
	if err != nil {
		return nil, err
	}

	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%s: decode message: %w", EventSendMessage, err)
	}

	c.deliver(msg)
	return &msg, nil
}

// SendText 发送纯文本消息
func (c *Client) SendText(ctx context.Context, to, content string) (*model.Message, error) {
	return c.SendMessage(ctx, to, content, model.MessageText)
}

// Messages returns a snapshot of one conversation's message log.
func (c *Client) Messages(conversationID string) []model.Message {
	return c.cache.Messages(conversationID)
}

// MarkRead 清空会话未读数
func (c *Client) MarkRead(conversationID string) {
	c.cache.MarkRead(conversationID)
}

// Conversations lists the conversations of the held profile with unread counts.
func (c *Client) Conversations() ([]model.Conversation, error) {
	user := c.User()
	if user == nil {
		return nil, ErrNotLoggedIn
	}

	list := user.Conversations(c.baseURL)
	for i := range list {
		list[i].Unread = c.cache.Unread(list[i].ID)
	}
	return list, nil
}

// handlePush 服务端主动推送的新消息
func (c *Client) handlePush(args []json.RawMessage) {
	if len(args) == 0 {
		return
	}

	var msg model.Message
	if err := json.Unmarshal(args[0], &msg); err != nil {
		c.logger.Printf("[fiora] drop malformed message push: %v", err)
		return
	}
	if msg.To == "" {
		c.logger.Printf("[fiora] drop message %s without conversation", msg.ID)
		return
	}

	c.deliver(msg)
}

// deliver 写入缓存后发布；历史加载中的会话由 FetchHistory 稍后发布
func (c *Client) deliver(msg model.Message) {
	if !c.cache.Append(msg.To, msg) {
		return
	}
	c.published(msg)
}

func (c *Client) published(msg model.Message) {
	if user := c.User(); user == nil || msg.From.ID != user.ID {
		c.cache.AddUnread(msg.To, 1)
	}
	c.messages.Publish(msg)
}
