package call

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/middleware"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
	"github.com/zhouzirui/z-call/backend/internal/service/relay"
	"github.com/zhouzirui/z-call/backend/pkg/utils"
)

// Relay 抽象通话中继，便于测试与替换实现
type Relay interface {
	Session(token string) *chat.Session
	Select(ctx context.Context, session *chat.Session, characterID string) (*relay.SelectResult, error)
	Send(ctx context.Context, session *chat.Session, message, fallbackCharacterID string) (*relay.SendResult, error)
	Reset(session *chat.Session)
}

// Handler 通话相关的HTTP处理器
type Handler struct {
	relay Relay
}

// New 创建通话处理器
func New(relay Relay) *Handler {
	return &Handler{relay: relay}
}

// RegisterRoutes 注册通话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/select_character", h.handleSelectCharacter)
	r.Post("/send_message", h.handleSendMessage)
	r.Post("/reset_conversation", h.handleResetConversation)
}

type selectRequest struct {
	Character string `json:"character"`
}

type selectResponse struct {
	Success        bool           `json:"success"`
	Character      character.View `json:"character"`
	InitialMessage *string        `json:"initial_message"`
	InitialAudio   *string        `json:"initial_audio"`
}

type sendRequest struct {
	Message   string `json:"message"`
	Character string `json:"character,omitempty"`
}

type sendResponse struct {
	Success  bool    `json:"success"`
	Response string  `json:"response"`
	EndCall  bool    `json:"end_call"`
	Audio    *string `json:"audio"`
}

func (h *Handler) session(r *http.Request) *chat.Session {
	return h.relay.Session(middleware.SessionToken(r.Context()))
}

// handleSelectCharacter 接听电话：选择角色并返回开场白
func (h *Handler) handleSelectCharacter(w http.ResponseWriter, r *http.Request) {
	var payload selectRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.relay.Select(r.Context(), h.session(r), payload.Character)
	if err != nil {
		utils.RespondError(w, apperr.HTTPStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, selectResponse{
		Success:        true,
		Character:      result.Character,
		InitialMessage: result.InitialMessage,
		InitialAudio:   result.InitialAudio,
	})
}

// handleSendMessage 转发一条用户消息
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload sendRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.relay.Send(r.Context(), h.session(r), payload.Message, payload.Character)
	if err != nil {
		utils.RespondError(w, apperr.HTTPStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, sendResponse{
		Success:  true,
		Response: result.Response,
		EndCall:  result.EndCall,
		Audio:    result.Audio,
	})
}

// handleResetConversation 挂断并清空会话
func (h *Handler) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	h.relay.Reset(h.session(r))
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
