package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-call/backend/internal/handler/call"
	characterHandler "github.com/zhouzirui/z-call/backend/internal/handler/character"
	"github.com/zhouzirui/z-call/backend/internal/handler/health"
	"github.com/zhouzirui/z-call/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/z-call/backend/internal/middleware"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/observability"
	"github.com/zhouzirui/z-call/backend/internal/service/relay"
	speechService "github.com/zhouzirui/z-call/backend/internal/service/speech"
)

// Dependencies 汇总路由所需的服务
type Dependencies struct {
	Characters character.Store
	Relay      *relay.Service
	Speech     *speechService.Service
	Sessions   *middlewarePkg.Sessions
	Metrics    *observability.Metrics
	Checks     []health.Check
	CORSOrigin string
	Logger     *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.CORSOrigin))

	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		health.New(deps.Checks...).RegisterRoutes(api)
		characterHandler.New(deps.Characters).RegisterRoutes(api)

		// 以下路由依赖会话 Cookie
		api.Group(func(sessioned chi.Router) {
			sessioned.Use(deps.Sessions.Handler)

			call.New(deps.Relay).RegisterRoutes(sessioned)
			speech.New(deps.Speech).RegisterRoutes(sessioned)

			var transcriber call.Transcriber
			if deps.Speech != nil {
				transcriber = deps.Speech
			}
			call.NewWebSocketHandler(deps.Relay, transcriber, deps.Metrics, middlewarePkg.OriginChecker(deps.CORSOrigin), deps.Logger).
				RegisterRoutes(sessioned)
		})
	})

	return r
}
