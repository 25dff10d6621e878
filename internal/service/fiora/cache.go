package fiora

import (
	"sync"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
)

// MessageCache 会话 ID 到有序消息列表的内存映射。
//
// 历史消息整体插入到列表头部，实时消息逐条追加到尾部。某个会话的历史请求
// 尚未返回时，该会话的实时消息先进入缓冲区，历史写入后再按到达顺序追加，
// 因此最终顺序总是"历史在前、实时在后"。
type MessageCache struct {
	mu       sync.Mutex
	messages map[string][]model.Message
	unread   map[string]int
	loading  map[string]int
	held     map[string][]model.Message
}

// NewMessageCache 创建空缓存
func NewMessageCache() *MessageCache {
	return &MessageCache{
		messages: make(map[string][]model.Message),
		unread:   make(map[string]int),
		loading:  make(map[string]int),
		held:     make(map[string][]model.Message),
	}
}

// Append appends msg to the conversation. It reports false when the message is
// held back because a history fetch for the conversation is in flight; the
// message is then returned later by CompleteHistory.
func (c *MessageCache) Append(conversationID string, msg model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading[conversationID] > 0 {
		c.held[conversationID] = append(c.held[conversationID], msg)
		return false
	}

	c.messages[conversationID] = append(c.ensure(conversationID), msg)
	return true
}

// BeginHistory marks the conversations as having a history fetch in flight.
func (c *MessageCache) BeginHistory(conversationIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range conversationIDs {
		c.loading[id]++
	}
}

// CompleteHistory prepends history to the conversation, skipping messages whose
// id is already cached or held, and, once no other fetch
// is in flight for it, appends the held live messages. The released messages are
// returned in arrival order so the caller can publish them.
func (c *MessageCache) CompleteHistory(conversationID string, history []model.Message) []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.ensure(conversationID)
	seen := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		seen[m.ID] = struct{}{}
	}
	for _, m := range c.held[conversationID] {
		seen[m.ID] = struct{}{}
	}

	// 重复登录会再次拉取历史，已在缓存中的消息不再插入
	merged := make([]model.Message, 0, len(history)+len(existing))
	for _, m := range history {
		if _, dup := seen[m.ID]; dup && m.ID != "" {
			continue
		}
		merged = append(merged, m)
	}
	merged = append(merged, existing...)
	c.messages[conversationID] = merged

	if c.loading[conversationID] > 1 {
		c.loading[conversationID]--
		return nil
	}
	delete(c.loading, conversationID)

	released := c.held[conversationID]
	delete(c.held, conversationID)
	c.messages[conversationID] = append(c.messages[conversationID], released...)
	return released
}

// Messages returns a snapshot of the conversation; unseen conversations are empty.
func (c *MessageCache) Messages(conversationID string) []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetUnread 用服务端返回的未读数覆盖本地计数
func (c *MessageCache) SetUnread(conversationID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		delete(c.unread, conversationID)
		return
	}
	c.unread[conversationID] = n
}

// AddUnread 增加未读数
func (c *MessageCache) AddUnread(conversationID string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread[conversationID] += n
}

// Unread 返回未读数
func (c *MessageCache) Unread(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread[conversationID]
}

// MarkRead 清空未读数
func (c *MessageCache) MarkRead(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.unread, conversationID)
}

func (c *MessageCache) ensure(conversationID string) []model.Message {
	msgs, ok := c.messages[conversationID]
	if !ok {
		msgs = make([]model.Message, 0, 16)
		c.messages[conversationID] = msgs
	}
	return msgs
}
