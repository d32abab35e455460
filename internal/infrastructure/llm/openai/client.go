package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

// Config holds the settings of an OpenAI-compatible endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

func newClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// ChatModel is a tool-aware chat completion client.
type ChatModel struct {
	client   *openai.Client
	model    string
	executor *resilience.Executor
}

func NewChatModel(cfg Config) *ChatModel {
	return &ChatModel{client: newClient(cfg), model: cfg.Model}
}

func (m *ChatModel) WithResilience(executor *resilience.Executor) *ChatModel {
	m.executor = executor
	return m
}

func (m *ChatModel) Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	request, err := buildChatRequest(m.model, req)
	if err != nil {
		return nil, err
	}

	resp, err := resilience.Do(ctx, m.executor, "openai.chat", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return m.client.CreateChatCompletion(ctx, request)
	}, classifyError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("chat completion", parseAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	choice := resp.Choices[0]
	out := &domain.ChatResponse{
		Text:             choice.Message.Content,
		StopReason:       string(choice.FinishReason),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, domain.WrapError(domain.ErrParse, "tool call arguments", err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func buildChatRequest(model string, req domain.ChatRequest) (openai.ChatCompletionRequest, error) {
	out := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		out.Messages = append(out.Messages, converted)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	if len(out.Tools) > 0 && req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	return out, nil
}

func convertMessage(msg domain.Message) (openai.ChatCompletionMessage, error) {
	out := openai.ChatCompletionMessage{
		Role:       string(msg.Role),
		ToolCallID: msg.ToolCallID,
	}

	if len(msg.Parts) == 0 {
		out.Content = msg.Content
	} else {
		for _, part := range msg.Parts {
			switch part.Type {
			case domain.PartText:
				out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			case domain.PartImage:
				out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: "data:" + part.MediaType + ";base64," + part.Data,
					},
				})
			}
		}
	}

	for _, call := range msg.ToolCalls {
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("marshal tool call %s: %w", call.Name, err)
		}
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return out, nil
}
