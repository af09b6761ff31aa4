package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/config"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
)

type fakeClaude struct {
	mu       sync.Mutex
	requests []messagesRequest
	headers  []http.Header

	status int
	body   string
}

func (f *fakeClaude) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req messagesRequest
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.headers = append(f.headers, r.Header.Clone())
		status, body := f.status, f.body
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		if body == "" {
			body = `{"content":[{"type":"text","text":"ئەلۆ؟"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeClaude) last(t *testing.T) (messagesRequest, http.Header) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no upstream request recorded")
	}
	return f.requests[len(f.requests)-1], f.headers[len(f.headers)-1]
}

func newTestService(t *testing.T, fake *fakeClaude, cfg config.ChatConfig) *Service {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	if cfg.APIURL == "" {
		cfg.APIURL = srv.URL + "/v1/messages"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	svc, err := NewService(cfg, srv.Client(), nil, nil)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc
}

var sara = character.Character{ID: "sara", Name: "Sara", SystemPrompt: "You are Sara."}

func TestCompleteReplaysHistory(t *testing.T) {
	fake := &fakeClaude{}
	svc := newTestService(t, fake, config.ChatConfig{APIKey: "test-key"})

	history := []chat.Turn{
		chat.AssistantTurn("ئەلۆ؟"),
		chat.UserTurn("سڵاو"),
		chat.AssistantTurn("باشی؟"),
	}
	before := append([]chat.Turn(nil), history...)

	reply, err := svc.Complete(context.Background(), sara, "باشم", history)
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply != "ئەلۆ؟" {
		t.Fatalf("unexpected reply %q", reply)
	}

	req, headers := fake.last(t)
	if req.System != "You are Sara." {
		t.Fatalf("unexpected system prompt %q", req.System)
	}
	if req.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", req.Model)
	}
	if req.MaxTokens != 1024 {
		t.Fatalf("unexpected max_tokens %d", req.MaxTokens)
	}
	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(req.Messages))
	}
	for i, turn := range history {
		if req.Messages[i].Role != string(turn.Role) || req.Messages[i].Content != turn.Content {
			t.Fatalf("message %d mismatch: %+v vs %+v", i, req.Messages[i], turn)
		}
	}
	if last := req.Messages[3]; last.Role != "user" || last.Content != "باشم" {
		t.Fatalf("unexpected final message %+v", last)
	}

	if headers.Get("x-api-key") != "test-key" || headers.Get("anthropic-version") != APIVersion {
		t.Fatalf("missing auth headers: %v", headers)
	}

	for i := range history {
		if history[i] != before[i] {
			t.Fatal("Complete mutated caller history")
		}
	}
}

func TestCompleteUpstreamFailure(t *testing.T) {
	fake := &fakeClaude{status: http.StatusUnauthorized, body: `{"error":{"message":"invalid x-api-key"}}`}
	svc := newTestService(t, fake, config.ChatConfig{APIKey: "bad"})

	_, err := svc.Complete(context.Background(), sara, "hi", nil)
	var upstreamErr *apperr.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstreamErr.Status != http.StatusUnauthorized || !strings.Contains(upstreamErr.Body, "invalid x-api-key") {
		t.Fatalf("unexpected upstream error %+v", upstreamErr)
	}
	if strings.Contains(err.Error(), "bad\"") {
		t.Fatal("api key leaked into error")
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	for _, body := range []string{
		`{"content":[]}`,
		`{"content":[{"type":"text","text":""}]}`,
		`{"content":[{"type":"text","text":"   \n "}]}`,
		`not json`,
	} {
		fake := &fakeClaude{body: body}
		svc := newTestService(t, fake, config.ChatConfig{APIKey: "k"})

		_, err := svc.Complete(context.Background(), sara, "hi", nil)
		var upstreamErr *apperr.UpstreamError
		if !errors.As(err, &upstreamErr) {
			t.Fatalf("body %q: expected UpstreamError, got %v", body, err)
		}
	}
}

func TestCompleteSkipsBlankHistoryTurns(t *testing.T) {
	fake := &fakeClaude{}
	svc := newTestService(t, fake, config.ChatConfig{APIKey: "k"})

	history := []chat.Turn{
		chat.AssistantTurn("ئەلۆ؟"),
		chat.UserTurn("خوات لەگەڵ"),
		chat.AssistantTurn(""),
	}
	if _, err := svc.Complete(context.Background(), sara, "ئەلۆ؟", history); err != nil {
		t.Fatalf("Complete err: %v", err)
	}

	req, _ := fake.last(t)
	if len(req.Messages) != 3 {
		t.Fatalf("expected blank turn to be skipped, got %d messages", len(req.Messages))
	}
	for i, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			t.Fatalf("message %d has blank content", i)
		}
	}
	if len(history) != 3 {
		t.Fatal("caller history must be untouched")
	}
}

func TestCompleteMissingCredential(t *testing.T) {
	fake := &fakeClaude{}
	svc := newTestService(t, fake, config.ChatConfig{})

	_, err := svc.Complete(context.Background(), sara, "hi", nil)
	var credErr *apperr.CredentialError
	if !errors.As(err, &credErr) || credErr.Env != "CLAUDE_API_KEY" {
		t.Fatalf("expected CredentialError for CLAUDE_API_KEY, got %v", err)
	}
	if len(fake.requests) != 0 {
		t.Fatal("no upstream call expected without credentials")
	}
}

func TestInitialGreeting(t *testing.T) {
	fake := &fakeClaude{}
	svc := newTestService(t, fake, config.ChatConfig{APIKey: "k"})

	greeting, ok := svc.InitialGreeting(context.Background(), sara)
	if !ok || greeting != "ئەلۆ؟" {
		t.Fatalf("unexpected greeting %q ok=%v", greeting, ok)
	}

	req, _ := fake.last(t)
	if req.MaxTokens != greetingMaxTokens {
		t.Fatalf("expected max_tokens %d, got %d", greetingMaxTokens, req.MaxTokens)
	}
	if !strings.HasPrefix(req.System, "You are Sara.") || !strings.HasSuffix(req.System, greetingInstruction) {
		t.Fatalf("greeting instruction not appended: %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != incomingCallPlaceholder {
		t.Fatalf("unexpected seed messages %+v", req.Messages)
	}
}

func TestInitialGreetingFailureIsAbsent(t *testing.T) {
	fake := &fakeClaude{status: http.StatusInternalServerError, body: "boom"}
	svc := newTestService(t, fake, config.ChatConfig{APIKey: "k"})

	if greeting, ok := svc.InitialGreeting(context.Background(), sara); ok || greeting != "" {
		t.Fatalf("expected absent greeting, got %q", greeting)
	}

	noKey := newTestService(t, &fakeClaude{}, config.ChatConfig{})
	if _, ok := noKey.InitialGreeting(context.Background(), sara); ok {
		t.Fatal("expected absent greeting without credentials")
	}
}

func TestInvalidAPIURL(t *testing.T) {
	if _, err := NewService(config.ChatConfig{APIURL: "not a url"}, nil, nil, nil); err == nil {
		t.Fatal("expected error for invalid CLAUDE_API_URL")
	}
}
