package call

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/middleware"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/z-call/backend/internal/model/speech"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
	maxFrameSize = 25 << 20
)

// Transcriber 语音识别接口
type Transcriber interface {
	Transcribe(ctx context.Context, req speechmodel.TranscribeRequest) (string, error)
}

// FrameObserver 记录 WebSocket 帧
type FrameObserver interface {
	ObserveWSMessage(direction, kind string)
}

// WebSocketHandler 通话 WebSocket 处理器，按帧执行与 HTTP 接口相同的中继操作
type WebSocketHandler struct {
	relay       Relay
	transcriber Transcriber
	observer    FrameObserver
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器。transcriber 与 observer 可为 nil。
func NewWebSocketHandler(relay Relay, transcriber Transcriber, observer FrameObserver, checkOrigin func(*http.Request) bool, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		relay:       relay,
		transcriber: transcriber,
		observer:    observer,
		logger:      logger.With("component", "call_ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/call/ws", h.handleWebSocket)
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type errorData struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	session := h.relay.Session(middleware.SessionToken(r.Context()))

	conn, err := h.upgrader.Upgrade(w, r, middleware.PendingCookies(w))
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(ctx, conn)

	h.logger.Debug("call channel opened")
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("read error", "error", err)
			}
			return
		}
		h.observe("in", frame.Type)

		h.handleFrame(ctx, conn, session, &frame)
		// pong 只在读取时处理，上游调用可能耗时较长
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, conn *websocket.Conn, session *chat.Session, frame *inboundFrame) {
	switch frame.Type {
	case "select":
		var payload selectRequest
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		result, err := h.relay.Select(ctx, session, payload.Character)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, "selected", selectResponse{
			Success:        true,
			Character:      result.Character,
			InitialMessage: result.InitialMessage,
			InitialAudio:   result.InitialAudio,
		})

	case "message":
		var payload sendRequest
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		result, err := h.relay.Send(ctx, session, payload.Message, payload.Character)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, "reply", sendResponse{
			Success:  true,
			Response: result.Response,
			EndCall:  result.EndCall,
			Audio:    result.Audio,
		})

	case "reset":
		h.relay.Reset(session)
		h.send(conn, "reset", map[string]bool{"success": true})

	case "transcribe":
		if h.transcriber == nil {
			h.sendError(conn, apperr.MissingCredential("GEMINI_API_KEY"))
			return
		}
		var payload speechmodel.TranscribeRequest
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		text, err := h.transcriber.Transcribe(ctx, payload)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, "transcript", speechmodel.TranscribeResponse{Success: true, Text: text})

	default:
		h.sendError(conn, apperr.NewBadRequest("unknown frame type"))
	}
}

func (h *WebSocketHandler) decode(conn *websocket.Conn, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.sendError(conn, apperr.NewBadRequest("invalid frame data"))
		return false
	}
	return true
}

func (h *WebSocketHandler) send(conn *websocket.Conn, kind string, data any) {
	frame := outgoingFrame{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		h.logger.Warn("write failed", "type", kind, "error", err)
		return
	}
	h.observe("out", kind)
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, err error) {
	h.send(conn, "error", errorData{Status: apperr.HTTPStatus(err), Error: err.Error()})
}

var knownFrames = map[string]bool{
	"select": true, "message": true, "reset": true, "transcribe": true,
	"selected": true, "reply": true, "transcript": true, "error": true,
}

func (h *WebSocketHandler) observe(direction, kind string) {
	if h.observer == nil {
		return
	}
	if !knownFrames[kind] {
		kind = "unknown"
	}
	h.observer.ObserveWSMessage(direction, kind)
}

// pingLoop 定期发送 ping。WriteControl 可与其他写操作并发调用。
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
