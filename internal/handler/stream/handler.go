package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhouzirui/fiora-client/backend/internal/handler/session"
	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/notify"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
	"github.com/zhouzirui/fiora-client/backend/pkg/events"
	"github.com/zhouzirui/fiora-client/backend/pkg/utils"
)

// SSE 事件名
const (
	EventState     = "state"
	EventMessage   = "message"
	EventNotice    = "notice"
	EventHeartbeat = "heartbeat"
)

const (
	defaultHeartbeat = 15 * time.Second
	subscriberBuffer = 64
)

// Event is one frame queued for a subscriber.
type Event struct {
	Name string
	Data any
}

// Handler streams the client's fan-out channels to the browser via Server-Sent Events.
type Handler struct {
	client    *fiora.Client
	notices   *events.Broadcaster[notify.Notice]
	heartbeat time.Duration
}

// New creates a stream handler. notices may be nil.
func New(client *fiora.Client, notices *events.Broadcaster[notify.Notice]) *Handler {
	return &Handler{
		client:    client,
		notices:   notices,
		heartbeat: defaultHeartbeat,
	}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

// handleEvents 订阅状态、消息和提示，请求结束时取消订阅
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	subscriber := uuid.NewString()
	queue := make(chan Event, subscriberBuffer)

	// 广播是同步的，慢订阅者只能丢弃事件，不能阻塞发布方
	push := func(e Event) {
		select {
		case queue <- e:
		default:
			log.Printf("[sse] subscriber=%s is falling behind, dropping %s event", subscriber, e.Name)
		}
	}

	unsubscribers := []func(){
		h.client.StateEvents().Subscribe(func(socket.State) {
			push(Event{Name: EventState, Data: session.Snapshot(h.client)})
		}),
		h.client.MessageEvents().Subscribe(func(msg model.Message) {
			push(Event{Name: EventMessage, Data: msg})
		}),
	}
	if h.notices != nil {
		unsubscribers = append(unsubscribers, h.notices.Subscribe(func(n notify.Notice) {
			push(Event{Name: EventNotice, Data: n})
		}))
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
	}()

	log.Printf("[sse] opening event stream subscriber=%s", subscriber)
	utils.SendSSEEvent(w, flusher, EventState, session.Snapshot(h.client))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing event stream subscriber=%s", subscriber)
			return
		case e := <-queue:
			utils.SendSSEEvent(w, flusher, e.Name, e.Data)
		case t := <-ticker.C:
			utils.SendSSEEvent(w, flusher, EventHeartbeat, map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			})
		}
	}
}
