package call

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-call/backend/internal/middleware"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	chatservice "github.com/zhouzirui/z-call/backend/internal/service/chat"
	"github.com/zhouzirui/z-call/backend/internal/service/relay"
)

func newWSServer(t *testing.T, completer *stubCompleter) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	sessions := chatservice.NewService(100, time.Hour)
	relaySvc := relay.NewService(character.NewMemoryStore(character.Seed()), sessions, completer, &stubTTS{audio: "QQ=="}, nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.NewSessions("", time.Hour, nil).Handler)
	New(relaySvc).RegisterRoutes(r)
	NewWebSocketHandler(relaySvc, nil, nil, func(*http.Request) bool { return true }, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sessions
}

func readFrame(t *testing.T, conn *websocket.Conn) outgoingFrameForTest {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame outgoingFrameForTest
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

type outgoingFrameForTest struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func TestWebSocketCallFlow(t *testing.T) {
	srv, sessions := newWSServer(t, &stubCompleter{greeting: "ئەلۆ؟", reply: "باشم [END_CALL]"})

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/call/ws"

	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cookies := resp.Cookies()
	if len(cookies) != 1 || cookies[0].Name != middleware.SessionCookieName {
		t.Fatalf("expected session cookie on upgrade, got %v", cookies)
	}

	if err := conn.WriteJSON(map[string]any{"type": "select", "data": map[string]string{"character": "kawa"}}); err != nil {
		t.Fatalf("write select: %v", err)
	}
	frame := readFrame(t, conn)
	if frame.Type != "selected" || frame.Data["initial_message"] != "ئەلۆ؟" {
		t.Fatalf("unexpected selected frame %+v", frame)
	}

	if err := conn.WriteJSON(map[string]any{"type": "message", "data": map[string]string{"message": "خوات لەگەڵ"}}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	frame = readFrame(t, conn)
	if frame.Type != "reply" || frame.Data["response"] != "باشم" || frame.Data["end_call"] != true {
		t.Fatalf("unexpected reply frame %+v", frame)
	}

	_ = conn.WriteJSON(map[string]any{"type": "transcribe", "data": map[string]string{"audio": "AAAA"}})
	frame = readFrame(t, conn)
	if frame.Type != "error" || frame.Data["status"] != float64(http.StatusInternalServerError) {
		t.Fatalf("expected credential error without transcriber, got %+v", frame)
	}

	_ = conn.WriteJSON(map[string]any{"type": "bogus"})
	frame = readFrame(t, conn)
	if frame.Type != "error" || frame.Data["status"] != float64(http.StatusBadRequest) {
		t.Fatalf("expected 400 error frame, got %+v", frame)
	}

	session := sessions.GetOrCreate(cookies[0].Value)
	if session.CharacterID() != "kawa" || session.Len() != 3 {
		t.Fatalf("websocket must drive the cookie session, got %q/%d", session.CharacterID(), session.Len())
	}

	_ = conn.WriteJSON(map[string]any{"type": "reset"})
	frame = readFrame(t, conn)
	if frame.Type != "reset" || session.Len() != 0 {
		t.Fatalf("unexpected reset frame %+v", frame)
	}
}
