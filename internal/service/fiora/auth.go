package fiora

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
)

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	OS          string `json:"os"`
	Browser     string `json:"browser"`
	Environment string `json:"environment"`
}

type tokenRequest struct {
	Token       string `json:"token"`
	OS          string `json:"os"`
	Browser     string `json:"browser"`
	Environment string `json:"environment"`
}

// Login authenticates with username and password. On success the profile is
// held, the message listener is armed, the token is persisted and history is
// fetched for every conversation of the user. A success without a profile
// returns a nil user and a nil error, leaving the client state untouched.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	req := loginRequest{
		Username:    username,
		Password:    password,
		OS:          c.info.OS,
		Browser:     c.info.Browser,
		Environment: c.info.Environment,
	}
	return c.authenticate(ctx, EventLogin, req)
}

// LoginByToken 使用之前保存的 token 静默登录，失败时不弹出提示
func (c *Client) LoginByToken(ctx context.Context, token string) (*model.User, error) {
	req := tokenRequest{
		Token:       token,
		OS:          c.info.OS,
		Browser:     c.info.Browser,
		Environment: c.info.Environment,
	}
	return c.authenticate(ctx, EventLoginByToken, req, WithoutToast())
}

// RestoreSession logs in with the stored token, if any. A missing store or
// secret is not an error and returns a nil user.
func (c *Client) RestoreSession(ctx context.Context) (*model.User, error) {
	if c.credentials == nil {
		return nil, nil
	}

	token, ok, err := c.credentials.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stored token: %w", err)
	}
	if !ok || token == "" {
		return nil, nil
	}

	// 兼容旧格式 username:password
	if username, password, found := strings.Cut(token, ":"); found {
		c.logger.Printf("[fiora] 正在尝试登录账号 %s", username)
		return c.authenticate(ctx, EventLogin, loginRequest{
			Username:    username,
			Password:    password,
			OS:          c.info.OS,
			Browser:     c.info.Browser,
			Environment: c.info.Environment,
		}, WithoutToast())
	}
	return c.LoginByToken(ctx, token)
}

func (c *Client) authenticate(ctx context.Context, event string, payload any, opts ...EmitOption) (*model.User, error) {
	raw, err := c.Emit(ctx, event, payload, opts...)
	if err != nil {
		var ackErr *AckError
		if errors.As(err, &ackErr) {
			c.setUser(nil)
		}
		return nil, err
	}

	// 成功但没有返回资料，视为未登录，不修改当前状态
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		c.logger.Printf("[fiora] %s acknowledged without a profile", event)
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%s: decode profile: %w", event, err)
	}

	c.setUser(&user)
	c.listen()
	c.logger.Printf("[fiora] logged in as %s (%d groups, %d friends)", user.Username, len(user.Groups), len(user.Friends))

	if c.credentials != nil && user.Token != "" {
		if err := c.credentials.Save(ctx, user.Token); err != nil {
			c.logger.Printf("[fiora] save token failed: %v", err)
		}
	}

	if err := c.FetchHistory(ctx, user.ConversationIDs()); err != nil {
		c.logger.Printf("[fiora] fetch history failed: %v", err)
	}

	return &user, nil
}

// listen 注册 message 推送处理，只注册一次
func (c *Client) listen() {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = true
	c.mu.Unlock()

	c.transport.On(EventMessagePushed, c.handlePush)
}

// IsLogin reports whether the transport is connected and a profile is held.
func (c *Client) IsLogin() bool {
	return c.transport.Connected() && c.User() != nil
}

// User 当前持有的用户资料，未登录时为 nil
func (c *Client) User() *model.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Client) setUser(user *model.User) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
}
