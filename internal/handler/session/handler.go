package session

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/fiora-client/backend/internal/handler/apierr"
	model "github.com/zhouzirui/fiora-client/backend/internal/model/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/fiora"
	"github.com/zhouzirui/fiora-client/backend/internal/service/socket"
	"github.com/zhouzirui/fiora-client/backend/pkg/utils"
)

// Handler 登录与连接状态的HTTP处理器
type Handler struct {
	client *fiora.Client
}

// New 创建会话处理器
func New(client *fiora.Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Post("/login", h.handleLogin)
}

// Profile is the public part of the held user profile; the token is never exposed.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Tag      string `json:"tag,omitempty"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Status 桥接服务当前状态
type Status struct {
	State     socket.State `json:"state"`
	Connected bool         `json:"connected"`
	LoggedIn  bool         `json:"loggedIn"`
	Sealed    bool         `json:"sealed"`
	User      *Profile     `json:"user,omitempty"`
}

// Snapshot collects the client's current status.
func Snapshot(client *fiora.Client) Status {
	return Status{
		State:     client.State(),
		Connected: client.Connected(),
		LoggedIn:  client.IsLogin(),
		Sealed:    client.Sealed(),
		User:      profileOf(client.User(), client.BaseURL()),
	}
}

func profileOf(user *model.User, baseURL string) *Profile {
	if user == nil {
		return nil
	}
	return &Profile{
		ID:       user.ID,
		Username: user.Username,
		Avatar:   model.ResolveURL(baseURL, user.Avatar),
		Tag:      user.Tag,
		IsAdmin:  user.IsAdmin,
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, Snapshot(h.client))
}

// handleLogin 用户名密码或 token 登录
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Token    string `json:"token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		user *model.User
		err  error
	)
	switch {
	case strings.TrimSpace(payload.Token) != "":
		user, err = h.client.LoginByToken(r.Context(), strings.TrimSpace(payload.Token))
	case strings.TrimSpace(payload.Username) != "" && payload.Password != "":
		user, err = h.client.Login(r.Context(), strings.TrimSpace(payload.Username), payload.Password)
	default:
		utils.RespondError(w, http.StatusBadRequest, "username and password, or token, are required")
		return
	}
	if err == nil && user == nil {
		err = fiora.ErrNotLoggedIn
	}
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, profileOf(user, h.client.BaseURL()))
}
