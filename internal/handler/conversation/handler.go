package conversation

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/fiora-client/backend/internal/handler/apierr"
	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/pkg/utils"
)

// SendSuccessText 发送成功后的提示
const SendSuccessText = "发送成功"

// Handler 会话列表与消息的HTTP处理器
type Handler struct {
	client   *fiora.Client
	notifier fiora.Notifier
	silent   bool
}

// New 创建会话处理器。silent 为 true 时发送成功不再提示
func New(client *fiora.Client, notifier fiora.Notifier, silent bool) *Handler {
	return &Handler{
		client:   client,
		notifier: notifier,
		silent:   silent,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}/messages", h.handleMessages)
		r.Post("/{id}/messages", h.handleSend)
		r.Post("/{id}/read", h.handleRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.client.Conversations()
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, list)
}

// handleMessages 返回会话的消息记录，历史在前
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if h.client.User() == nil {
		apierr.Respond(w, fiora.ErrNotLoggedIn)
		return
	}

	id := chi.URLParam(r, "id")
	utils.RespondJSON(w, http.StatusOK, h.client.Messages(id))
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string            `json:"content"`
		Type    model.MessageType `json:"type"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}
	switch payload.Type {
	case "", model.MessageText, model.MessageImage, model.MessageCode, model.MessageInvite:
	default:
		utils.RespondError(w, http.StatusBadRequest, "unsupported message type")
		return
	}

	msg, err := h.client.SendMessage(r.Context(), chi.URLParam(r, "id"), payload.Content, payload.Type)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	if !h.silent && h.notifier != nil {
		h.notifier.Info(SendSuccessText)
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	h.client.MarkRead(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
