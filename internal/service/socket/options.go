package socket

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Options Socket.IO 会话配置选项
type Options struct {
	URL    string // 服务地址，例如 https://fiora.suisuijiang.com
	Path   string // Socket.IO 路径，默认 /socket.io/
	EIO    int    // Engine.IO 协议版本，3 或 4
	Origin string // 握手时携带的 Origin 头
	Header http.Header

	HandshakeTimeout time.Duration // 握手超时时间
	WriteTimeout     time.Duration // 写入超时时间

	Reconnection         bool          // 断线后是否自动重连
	ReconnectionAttempts int           // 最大重连次数，0 表示不限
	ReconnectionDelay    time.Duration // 首次重连等待
	ReconnectionDelayMax time.Duration // 重连等待上限

	Logger *log.Logger
}

// DefaultOptions 默认选项，与 socket.io-client 的默认值一致
func DefaultOptions(rawURL string) *Options {
	return &Options{
		URL:                  rawURL,
		Path:                 "/socket.io/",
		EIO:                  3,
		HandshakeTimeout:     30 * time.Second,
		WriteTimeout:         10 * time.Second,
		Reconnection:         true,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
	}
}

// endpoint 构造 websocket 传输地址
func (o *Options) endpoint() (string, error) {
	u, err := url.Parse(o.URL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url %q: %w", o.URL, err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}

	p := o.Path
	if p == "" {
		p = "/socket.io/"
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	u.Path = p

	q := u.Query()
	q.Set("EIO", strconv.Itoa(o.eio()))
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (o *Options) header() http.Header {
	h := http.Header{}
	for k, v := range o.Header {
		h[k] = append([]string(nil), v...)
	}
	if o.Origin != "" {
		h.Set("Origin", o.Origin)
	}
	return h
}

func (o *Options) eio() int {
	if o.EIO == 0 {
		return 3
	}
	return o.EIO
}

// backoff 第 attempt 次重连前的等待时间，指数增长并封顶
func (o *Options) backoff(attempt int) time.Duration {
	delay := o.ReconnectionDelay
	if delay <= 0 {
		delay = time.Second
	}
	ceiling := o.ReconnectionDelayMax
	if ceiling < delay {
		ceiling = delay
	}

	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

func (o *Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}
