package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/z-call/backend/internal/apperr"
	"github.com/zhouzirui/z-call/backend/internal/config"
	"github.com/zhouzirui/z-call/backend/internal/model/character"
	"github.com/zhouzirui/z-call/backend/internal/model/chat"
	"github.com/zhouzirui/z-call/backend/internal/observability"
)

// Service produces persona replies and call greetings.
type Service struct {
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
	cfg       config.ChatConfig
	logger    *slog.Logger
}

// NewService wires the Anthropic-backed chat model. A missing API key is not
// an error here; every call reports it instead.
func NewService(cfg config.ChatConfig, httpClient *http.Client, observer observability.UpstreamObserver, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ai")

	client, err := NewClient(cfg.APIKey, cfg.APIURL, httpClient, observer)
	if err != nil {
		return nil, err
	}
	resolver := NewModelResolver(client, logger)

	return NewServiceWithModel(NewChatModel(client, resolver, cfg.Model, cfg.MaxTokens), cfg, logger), nil
}

// NewServiceWithModel builds a Service over an existing chat model.
func NewServiceWithModel(chatModel model.BaseChatModel, cfg config.ChatConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		chatModel: chatModel,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", true),
			schema.UserMessage("{query}"),
		),
		cfg:    cfg,
		logger: logger,
	}
}

// Ready reports a *apperr.CredentialError when no API key is configured.
func (s *Service) Ready() error {
	if !s.cfg.Enabled() {
		return apperr.MissingCredential("CLAUDE_API_KEY")
	}
	return nil
}

// Complete replays history, appends userMessage and returns the raw reply.
// history is read, never modified.
func (s *Service) Complete(ctx context.Context, ch character.Character, userMessage string, history []chat.Turn) (string, error) {
	if err := s.Ready(); err != nil {
		return "", err
	}

	reply, err := s.generate(ctx, ch.SystemPrompt, history, userMessage, s.cfg.MaxTokens)
	if err != nil {
		return "", err
	}

	s.logger.Debug("generated reply", "character", ch.ID, "history", len(history), "length", len(reply))
	return reply, nil
}

// InitialGreeting asks the persona to answer the phone. Any failure is
// logged and reported as absent.
func (s *Service) InitialGreeting(ctx context.Context, ch character.Character) (string, bool) {
	if err := s.Ready(); err != nil {
		s.logger.Warn("greeting skipped", "character", ch.ID, "error", err)
		return "", false
	}

	greeting, err := s.generate(ctx, ch.SystemPrompt+greetingInstruction, nil, incomingCallPlaceholder, greetingMaxTokens)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "greeting failed", "character", ch.ID, "error", err)
		return "", false
	}
	return greeting, true
}

func (s *Service) generate(ctx context.Context, system string, history []chat.Turn, query string, maxTokens int) (string, error) {
	messages, err := s.template.Format(ctx, map[string]any{
		"system":  system,
		"history": historyMessages(history),
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	resp, err := s.chatModel.Generate(ctx, messages, model.WithMaxTokens(maxTokens))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func historyMessages(turns []chat.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		// 挂断标记被剥离后可能留下空回复，上游拒绝空内容
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
