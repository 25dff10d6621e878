package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/fiora-client/backend/internal/handler/conversation"
	"github.com/zhouzirui/fiora-client/backend/internal/handler/session"
	"github.com/zhouzirui/fiora-client/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/fiora-client/backend/internal/middleware"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/notify"
)

// Options 路由可选行为
type Options struct {
	// SilentSend 发送成功后不提示
	SilentSend bool
}

// NewRouter wires HTTP routes to the chat client.
func NewRouter(client *fiora.Client, hub *notify.Hub, opts Options) http.Handler {
	if hub == nil {
		hub = notify.NewHub(nil)
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	sessionHandler := session.New(client)
	conversationHandler := conversation.New(client, hub, opts.SilentSend)
	streamHandler := stream.New(client, hub.Notices())

	r.Route("/api", func(api chi.Router) {
		sessionHandler.RegisterRoutes(api)
		conversationHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
