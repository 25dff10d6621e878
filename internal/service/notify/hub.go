// Package notify 用户提示中心：记录日志并广播给界面
package notify

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/fiora-client/backend/pkg/events"
)

// Level 提示级别
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notice is one transient user-facing notification.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Hub implements the client's Notifier by logging every notice and publishing
// it to subscribers.
type Hub struct {
	logger  *log.Logger
	notices *events.Broadcaster[Notice]
	now     func() time.Time
}

// NewHub 创建提示中心，logger 为空时使用默认 logger
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		logger:  logger,
		notices: events.NewBroadcaster[Notice](),
		now:     time.Now,
	}
}

// Error 错误提示
func (h *Hub) Error(msg string) {
	h.publish(LevelError, msg)
}

// Info 普通提示
func (h *Hub) Info(msg string) {
	h.publish(LevelInfo, msg)
}

// Notices returns the broadcast channel of notices.
func (h *Hub) Notices() *events.Broadcaster[Notice] {
	return h.notices
}

func (h *Hub) publish(level Level, msg string) {
	if msg == "" {
		return
	}

	h.logger.Printf("[notice] %s: %s", level, msg)
	h.notices.Publish(Notice{
		ID:      uuid.NewString(),
		Level:   level,
		Message: msg,
		Time:    h.now(),
	})
}
