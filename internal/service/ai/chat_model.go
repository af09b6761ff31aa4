package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.BaseChatModel = (*ChatModel)(nil)

// ChatModel adapts the Anthropic Messages API to eino's BaseChatModel.
type ChatModel struct {
	client    *Client
	resolver  *ModelResolver
	requested string
	maxTokens int
}

// NewChatModel returns a chat model that resolves requested lazily.
func NewChatModel(client *Client, resolver *ModelResolver, requested string, maxTokens int) *ChatModel {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ChatModel{client: client, resolver: resolver, requested: requested, maxTokens: maxTokens}
}

// Generate sends one non-streaming request. System messages are folded into
// the top level system field; the rest are replayed in order.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{MaxTokens: &m.maxTokens}, opts...)

	modelID := ""
	if options.Model != nil {
		modelID = *options.Model
	}
	if modelID == "" {
		resolved, err := m.resolver.Resolve(ctx, m.requested)
		if err != nil {
			return nil, err
		}
		modelID = resolved
	}

	req := &messagesRequest{
		Model:     modelID,
		MaxTokens: m.maxTokens,
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		req.MaxTokens = *options.MaxTokens
	}

	var system []string
	for _, msg := range input {
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.User, schema.Assistant:
			req.Messages = append(req.Messages, messageParam{Role: string(msg.Role), Content: msg.Content})
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	req.System = strings.Join(system, "\n\n")

	resp, err := m.client.createMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	out := schema.AssistantMessage(resp.Content[0].Text, nil)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: resp.StopReason,
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	return out, nil
}

// Stream emits the complete reply as a single chunk.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}
