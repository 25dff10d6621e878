package fiora

import "time"

// User 登录成功后服务端返回的用户资料
type User struct {
	ID       string   `json:"_id"`
	Username string   `json:"username"`
	Avatar   string   `json:"avatar"`
	Tag      string   `json:"tag"`
	Groups   []Group  `json:"groups"`
	Friends  []Friend `json:"friends"`
	Token    string   `json:"token"`
	IsAdmin  bool     `json:"isAdmin"`
}

// Group is a group conversation the user belongs to.
type Group struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Avatar     string    `json:"avatar"`
	CreateTime time.Time `json:"createTime"`
	Creator    string    `json:"creator"`
}

// Friend 好友关系，To 为对方用户
type Friend struct {
	ID         string     `json:"_id"`
	To         FriendUser `json:"to"`
	CreateTime time.Time  `json:"createTime"`
}

// FriendUser is the public profile of the other side of a friendship.
type FriendUser struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ConversationKind distinguishes group conversations from direct messages.
type ConversationKind string

const (
	KindGroup  ConversationKind = "group"
	KindFriend ConversationKind = "friend"
)

// Conversation is the list entry a UI renders for one chat destination.
type Conversation struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Avatar string           `json:"avatar,omitempty"`
	Kind   ConversationKind `json:"kind"`
	Unread int              `json:"unread"`
}

// FriendConversationID 私聊会话 ID：两个用户 ID 按字典序拼接
func FriendConversationID(a, b string) string {
	if a < b {
		return a + b
	}
	return b + a
}

// ConversationIDs lists every conversation key of the user, groups first.
func (u *User) ConversationIDs() []string {
	if u == nil {
		return nil
	}

	ids := make([]string, 0, len(u.Groups)+len(u.Friends))
	for _, g := range u.Groups {
		ids = append(ids, g.ID)
	}
	for _, f := range u.Friends {
		if f.To.ID == "" {
			continue
		}
		ids = append(ids, FriendConversationID(u.ID, f.To.ID))
	}
	return ids
}

// Conversations builds the conversation list; avatars are resolved against baseURL.
func (u *User) Conversations(baseURL string) []Conversation {
	if u == nil {
		return nil
	}

	list := make([]Conversation, 0, len(u.Groups)+len(u.Friends))
	for _, g := range u.Groups {
		list = append(list, Conversation{
			ID:     g.ID,
			Name:   g.Name,
			Avatar: ResolveURL(baseURL, g.Avatar),
			Kind:   KindGroup,
		})
	}
	for _, f := range u.Friends {
		if f.To.ID == "" {
			continue
		}
		list = append(list, Conversation{
			ID:     FriendConversationID(u.ID, f.To.ID),
			Name:   f.To.Username,
			Avatar: ResolveURL(baseURL, f.To.Avatar),
			Kind:   KindFriend,
		})
	}
	return list
}
