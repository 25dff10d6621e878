// Package fiora wraps a Socket.IO session into the Fiora chat client: request
// correlation, seal handling, login state, the message cache and event fan-out.
package fiora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
	"github.com/zhouzirui/fiora-client/backend/pkg/events"
)

// 远端服务的操作名
const (
	EventLogin           = "login"
	EventLoginByToken    = "loginByToken"
	EventSendMessage     = "sendMessage"
	EventFetchHistory    = "getLinkmansLastMessagesV2"
	EventMessagePushed   = "message"
	DefaultClientName    = "Fiora for Go"
	DefaultBaseURL       = "https://fiora.suisuijiang.com"
	DefaultAckTimeout    = 30 * time.Second
	defaultEnvironFormat = "Fiora client %s"
)

// Transport is the multiplexed connection the client talks through.
// *socket.Session satisfies it.
type Transport interface {
	Connected() bool
	Connect()
	Close() error
	EmitWithAck(ctx context.Context, event string, args ...any) (json.RawMessage, error)
	On(event string, handler socket.EventHandler)
	OnState(handler socket.StateHandler)
}

// Notifier 面向用户的提示（对应编辑器里的 toast）
type Notifier interface {
	Error(msg string)
	Info(msg string)
}

// CredentialStore persists the single secret used for silent login.
type CredentialStore interface {
	Get(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, secret string) error
}

// ClientInfo 随登录请求发送的客户端标识，仅供服务端展示
type ClientInfo struct {
	OS          string
	Browser     string
	Environment string
}

// Options 客户端配置
type Options struct {
	BaseURL      string
	ClientInfo   ClientInfo
	Version      string
	AckTimeout   time.Duration // 0 表示一直等待 ack
	SealCooldown time.Duration
	Notifier     Notifier
	Credentials  CredentialStore
	Logger       *log.Logger
}

// EmitOption 调整单次请求的行为
type EmitOption func(*emitOptions)

type emitOptions struct {
	toast bool
}

// WithoutToast suppresses the user-facing notification for a failed request.
// Seal notifications are always shown.
func WithoutToast() EmitOption {
	return func(o *emitOptions) { o.toast = false }
}

// Client Fiora 客户端核心
type Client struct {
	transport   Transport
	notifier    Notifier
	credentials CredentialStore
	logger      *log.Logger
	baseURL     string
	info        ClientInfo
	ackTimeout  time.Duration

	seal  *SealGuard
	cache *MessageCache

	mu        sync.RWMutex
	user      *model.User
	listening bool
	state     socket.State

	states   *events.Broadcaster[socket.State]
	messages *events.Broadcaster[model.Message]
}

// NewClient wires the client onto transport. The transport is not connected
// until Open or the first request.
func NewClient(transport Transport, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{logger: opts.Logger}
	}
	info := opts.ClientInfo
	if info.OS == "" {
		info.OS = runtime.GOOS
	}
	if info.Browser == "" {
		info.Browser = DefaultClientName
	}
	if info.Environment == "" {
		info.Environment = fmt.Sprintf(defaultEnvironFormat, opts.Version)
	}

	c := &Client{
		transport:   transport,
		notifier:    opts.Notifier,
		credentials: opts.Credentials,
		logger:      opts.Logger,
		baseURL:     opts.BaseURL,
		info:        info,
		ackTimeout:  opts.AckTimeout,
		seal:        NewSealGuard(opts.SealCooldown),
		cache:       NewMessageCache(),
		states:      events.NewBroadcaster[socket.State](),
		messages:    events.NewBroadcaster[model.Message](),
	}

	transport.OnState(c.handleState)
	return c
}

// Open 显式建立连接
func (c *Client) Open() {
	c.transport.Connect()
}

// Close tears down the transport. The held profile is kept.
func (c *Client) Close() error {
	return c.transport.Close()
}

// StateEvents 连接状态广播
func (c *Client) StateEvents() *events.Broadcaster[socket.State] {
	return c.states
}

// MessageEvents 新消息广播，发布时缓存已更新
func (c *Client) MessageEvents() *events.Broadcaster[model.Message] {
	return c.messages
}

// State returns the last lifecycle state reported by the transport.
func (c *Client) State() socket.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the transport is currently connected.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// Sealed 是否处于封禁冷却期
func (c *Client) Sealed() bool {
	return c.seal.Sealed()
}

// BaseURL returns the service base URL used to resolve asset references.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Emit sends one request and waits for its single acknowledgement. A string ack
// is returned as *AckError; anything else is the result. Exactly one of the two
// return values is non-nil.
func (c *Client) Emit(ctx context.Context, event string, payload any, opts ...EmitOption) (json.RawMessage, error) {
	o := emitOptions{toast: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !c.transport.Connected() {
		c.transport.Connect()
	}

	// 本地已记录封禁状态，直接拒绝
	if c.seal.Sealed() {
		c.notifier.Error(SealText)
		return nil, &AckError{Event: event, Message: SealText}
	}

	if c.ackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ackTimeout)
		defer cancel()
	}

	raw, err := c.transport.EmitWithAck(ctx, event, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event, err)
	}

	if text, ok := ackText(raw); ok {
		if o.toast {
			c.notifier.Error(text)
		}
		if text == SealText {
			c.seal.Seal()
			c.logger.Printf("[fiora] sealed by server, rejecting requests for %s", c.seal.Cooldown())
		}
		return nil, &AckError{Event: event, Message: text}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("null")
	}
	return raw, nil
}

// ackText 只有 JSON 字符串才算错误文本，null 和空 ack 都是成功
func ackText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return "", false
	}
	return text, true
}

// handleState 记录并转发连接状态
func (c *Client) handleState(state socket.State, err error) {
	switch state {
	case socket.StateConnecting:
		c.logger.Printf("[socket] 正在连接")
	case socket.StateConnected:
		c.logger.Printf("[socket] 连接成功")
	case socket.StateReconnecting:
		c.logger.Printf("[socket] 重连中... %s", c.baseURL)
	case socket.StateReconnected:
		c.logger.Printf("[socket] 重连成功")
	case socket.StateDisconnected:
		c.logger.Printf("[socket] 已断开连接: %v", err)
	case socket.StateConnectFailed:
		c.logger.Printf("[socket] 连接失败: %v", err)
	case socket.StateError:
		c.logger.Printf("[socket] 网络出现异常: %v", err)
	}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.states.Publish(state)
}

type logNotifier struct {
	logger *log.Logger
}

func (n logNotifier) Error(msg string) { n.logger.Printf("[notice] error: %s", msg) }
func (n logNotifier) Info(msg string)  { n.logger.Printf("[notice] %s", msg) }
