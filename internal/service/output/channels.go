// Package output renders conversation messages into per-conversation text panels.
package output

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/pkg/events"
)

// TimeLayout 每行消息前的时间格式
const TimeLayout = "15:04:05"

// Opener creates the writer backing one conversation panel.
type Opener func(conversationID string) (io.Writer, error)

// Format renders one message as a panel line:
//
//	[15:04:05] username: summary
//
// Multi-line content (code) is indented under the header line.
func Format(msg model.Message, baseURL string) string {
	summary := msg.Summary(baseURL)
	summary = strings.ReplaceAll(summary, "\n", "\n    ")
	return fmt.Sprintf("[%s] %s: %s\n", msg.CreateTime.Local().Format(TimeLayout), msg.From.Username, summary)
}

// Channels keeps one lazily opened panel per conversation.
type Channels struct {
	open    Opener
	baseURL string
	logger  *log.Logger

	mu      sync.Mutex
	writers map[string]io.Writer
}

// NewChannels 创建输出面板集合
func NewChannels(open Opener, baseURL string, logger *log.Logger) *Channels {
	if logger == nil {
		logger = log.Default()
	}
	return &Channels{
		open:    open,
		baseURL: baseURL,
		logger:  logger,
		writers: make(map[string]io.Writer),
	}
}

// Writer returns the panel for a conversation, opening it on first use.
func (c *Channels) Writer(conversationID string) (io.Writer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.writers[conversationID]; ok {
		return w, nil
	}
	w, err := c.open(conversationID)
	if err != nil {
		return nil, fmt.Errorf("open panel %s: %w", conversationID, err)
	}
	c.writers[conversationID] = w
	return w, nil
}

// Write appends one formatted message to its conversation panel.
func (c *Channels) Write(msg model.Message) error {
	w, err := c.Writer(msg.To)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = io.WriteString(w, Format(msg, c.baseURL))
	return err
}

// Replay writes a history snapshot into the conversation panel.
func (c *Channels) Replay(conversationID string, msgs []model.Message) error {
	for _, msg := range msgs {
		if msg.To == "" {
			msg.To = conversationID
		}
		if err := c.Write(msg); err != nil {
			return err
		}
	}
	return nil
}

// Attach writes every message published on b; call the returned func to detach.
func (c *Channels) Attach(b *events.Broadcaster[model.Message]) func() {
	return b.Subscribe(func(msg model.Message) {
		if err := c.Write(msg); err != nil {
			c.logger.Printf("[output] write failed: %v", err)
		}
	})
}

// Close closes every opened panel that is an io.Closer.
func (c *Channels) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for id, w := range c.writers {
		if closer, ok := w.(io.Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(c.writers, id)
	}
	return firstErr
}

// DirOpener opens one append-only log file per conversation under dir.
func DirOpener(dir string) Opener {
	return func(conversationID string) (io.Writer, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := filepath.Join(dir, "converse_"+filepath.Base(conversationID)+".log")
		return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

// PrefixOpener writes every panel into w, each line prefixed with the conversation
// name returned by label.
func PrefixOpener(w io.Writer, label func(conversationID string) string) Opener {
	var mu sync.Mutex
	return func(conversationID string) (io.Writer, error) {
		return &prefixWriter{w: w, mu: &mu, prefix: "[" + label(conversationID) + "] "}, nil
	}
}

type prefixWriter struct {
	w      io.Writer
	mu     *sync.Mutex
	prefix string
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.w, p.prefix); err != nil {
		return 0, err
	}
	return p.w.Write(b)
}
