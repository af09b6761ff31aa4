package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-call/backend/pkg/utils"
)

// Check 描述一个上游功能的就绪状态
type Check struct {
	Name     string
	Required bool
	Ready    func() bool
}

// Handler 存活与就绪探针
type Handler struct {
	checks []Check
}

// New 创建健康检查处理器
func New(checks ...Check) *Handler {
	return &Handler{checks: checks}
}

// RegisterRoutes 注册健康检查路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type readyResponse struct {
	OK       bool            `json:"ok"`
	Features map[string]bool `json:"features"`
}

// handleReady 必需功能未配置时返回 503，可选功能只做报告
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := readyResponse{OK: true, Features: make(map[string]bool, len(h.checks))}
	for _, check := range h.checks {
		ready := check.Ready != nil && check.Ready()
		resp.Features[check.Name] = ready
		if check.Required && !ready {
			resp.OK = false
		}
	}

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	utils.RespondJSON(w, status, resp)
}
