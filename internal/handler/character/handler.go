package character

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/pkg/utils"
)

// Handler 角色名册的HTTP处理器
type Handler struct {
	characters character.Store
}

// New 创建角色处理器
func New(characters character.Store) *Handler {
	return &Handler{characters: characters}
}

// RegisterRoutes 注册角色相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleListCharacters)
	r.Get("/characters/{characterID}", h.handleGetCharacter)
}

// handleListCharacters 列出所有角色的公开信息，不包含系统提示词
func (h *Handler) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, character.Views(h.characters))
}

func (h *Handler) handleGetCharacter(w http.ResponseWriter, r *http.Request) {
	item, ok := h.characters.FindByID(chi.URLParam(r, "characterID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Invalid character")
		return
	}
	utils.RespondJSON(w, http.StatusOK, item.Public())
}
