package call

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/middleware"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-call/backend/internal/service/chat"
	"github.com/zhouzirui/z-call/backend/internal/service/relay"
)

type stubCompleter struct {
	readyErr error
	reply    string
	err      error
	greeting string
}

func (s *stubCompleter) Ready() error { return s.readyErr }

func (s *stubCompleter) Complete(context.Context, character.Character, string, []chat.Turn) (string, error) {
	return s.reply, s.err
}

func (s *stubCompleter) InitialGreeting(context.Context, character.Character) (string, bool) {
	return s.greeting, s.greeting != ""
}

type stubTTS struct {
	audio string
	err   error
}

func (s *stubTTS) Synthesize(context.Context, string, string) (string, error) {
	return s.audio, s.err
}

func setupRouter(completer *stubCompleter, tts *stubTTS) (*chi.Mux, *chatservice.Service) {
	sessions := chatservice.NewService(100, time.Hour)
	relaySvc := relay.NewService(character.NewMemoryStore(character.Seed()), sessions, completer, tts, nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.NewSessions("", time.Hour, nil).Handler)
	New(relaySvc).RegisterRoutes(r)
	return r, sessions
}

func do(t *testing.T, r http.Handler, path string, body any, cookies []*http.Cookie) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var decoded map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode %s response: %v (%s)", path, err, resp.Body.String())
	}
	return resp, decoded
}

func TestSelectCharacterAndConverse(t *testing.T) {
	r, sessions := setupRouter(&stubCompleter{greeting: "ئەلۆ؟", reply: "باشم [END_CALL]"}, &stubTTS{audio: "QUFB"})

	resp, body := do(t, r, "/select_character", map[string]string{"character": "sara"}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Code, body)
	}
	if body["success"] != true || body["initial_message"] != "ئەلۆ؟" || body["initial_audio"] != "QUFB" {
		t.Fatalf("unexpected select body %v", body)
	}
	char, _ := body["character"].(map[string]any)
	if char["id"] != "sara" || char["speaker_id"] == nil || char["system_prompt"] != nil {
		t.Fatalf("unexpected character view %v", char)
	}

	cookies := resp.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected session cookie, got %d", len(cookies))
	}

	resp, body = do(t, r, "/send_message", map[string]string{"message": "خوات لەگەڵ"}, cookies)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Code, body)
	}
	if body["response"] != "باشم" || body["end_call"] != true || body["audio"] != "QUFB" {
		t.Fatalf("unexpected send body %v", body)
	}

	session := sessions.GetOrCreate(cookies[0].Value)
	if session.Len() != 3 {
		t.Fatalf("expected greeting plus one exchange, got %d turns", session.Len())
	}

	resp, body = do(t, r, "/reset_conversation", nil, cookies)
	if resp.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected reset %d %v", resp.Code, body)
	}
	resp, _ = do(t, r, "/reset_conversation", nil, cookies)
	if resp.Code != http.StatusOK || session.Len() != 0 {
		t.Fatal("second reset must succeed on an empty session")
	}
}

func TestSelectCharacterNullFields(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{}, &stubTTS{})

	_, body := do(t, r, "/select_character", map[string]string{"character": "kawa"}, nil)
	if v, ok := body["initial_message"]; !ok || v != nil {
		t.Fatalf("expected initial_message null, got %v", body)
	}
	if v, ok := body["initial_audio"]; !ok || v != nil {
		t.Fatalf("expected initial_audio null, got %v", body)
	}
}

func TestErrorStatuses(t *testing.T) {
	cases := []struct {
		name      string
		completer *stubCompleter
		path      string
		body      any
		want      int
	}{
		{name: "invalid character", completer: &stubCompleter{}, path: "/select_character", body: map[string]string{"character": "ghost"}, want: http.StatusBadRequest},
		{name: "missing credential", completer: &stubCompleter{readyErr: apperr.MissingCredential("CLAUDE_API_KEY")}, path: "/select_character", body: map[string]string{"character": "sara"}, want: http.StatusInternalServerError},
		{name: "no character", completer: &stubCompleter{reply: "x"}, path: "/send_message", body: map[string]string{"message": "hi"}, want: http.StatusBadRequest},
		{name: "empty message", completer: &stubCompleter{reply: "x"}, path: "/send_message", body: map[string]string{"message": "  ", "character": "sara"}, want: http.StatusBadRequest},
		{name: "upstream", completer: &stubCompleter{err: &apperr.UpstreamError{Service: "Claude API", Status: 529, Body: "overloaded"}}, path: "/send_message", body: map[string]string{"message": "hi", "character": "sara"}, want: http.StatusBadGateway},
		{name: "credential on send", completer: &stubCompleter{err: apperr.MissingCredential("CLAUDE_API_KEY")}, path: "/send_message", body: map[string]string{"message": "hi", "character": "sara"}, want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		r, _ := setupRouter(tc.completer, &stubTTS{})
		resp, body := do(t, r, tc.path, tc.body, nil)
		if resp.Code != tc.want {
			t.Errorf("%s: expected %d, got %d (%v)", tc.name, tc.want, resp.Code, body)
		}
		if body["success"] != false || body["error"] == "" {
			t.Errorf("%s: expected failure body, got %v", tc.name, body)
		}
	}
}

func TestUpstreamErrorMessageEmbedsStatus(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{err: &apperr.UpstreamError{Service: "Claude API", Status: 401, Body: "invalid x-api-key"}}, &stubTTS{})
	_, body := do(t, r, "/send_message", map[string]string{"message": "hi", "character": "sara"}, nil)
	if body["error"] != "Claude API HTTP 401: invalid x-api-key" {
		t.Fatalf("unexpected error message %v", body["error"])
	}
}

func TestSendMessageAudioNullOnSynthesisFailure(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{reply: "باشم"}, &stubTTS{err: errors.New("tts 500")})

	resp, body := do(t, r, "/send_message", map[string]string{"message": "چۆنی", "character": "sara"}, nil)
	if resp.Code != http.StatusOK || body["success"] != true || body["response"] != "باشم" {
		t.Fatalf("unexpected response %d %v", resp.Code, body)
	}
	if v, ok := body["audio"]; !ok || v != nil {
		t.Fatalf("expected audio null, got %v", body["audio"])
	}
}

func TestInvalidBody(t *testing.T) {
	r, _ := setupRouter(&stubCompleter{}, &stubTTS{})
	req := httptest.NewRequest(http.MethodPost, "/select_character", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
