package ollama

import (
	"fmt"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Images    []string       `json:"images,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

type chatToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Tools    []chatTool     `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func buildChatRequest(model string, req domain.ChatRequest) chatRequest {
	out := chatRequest{Model: model}

	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}

	// Tool results carry the tool name, not the call id.
	toolNames := make(map[string]string)
	for _, msg := range req.Messages {
		item := chatMessage{Role: string(msg.Role), Content: msg.Content}
		for _, part := range msg.Parts {
			switch part.Type {
			case domain.PartText:
				item.Content += part.Text
			case domain.PartImage:
				item.Images = append(item.Images, part.Data)
			}
		}
		for _, call := range msg.ToolCalls {
			var tc chatToolCall
			tc.Function.Name = call.Name
			tc.Function.Arguments = call.Arguments
			item.ToolCalls = append(item.ToolCalls, tc)
			toolNames[call.ID] = call.Name
		}
		if msg.Role == domain.RoleTool {
			item.ToolName = toolNames[msg.ToolCallID]
		}
		out.Messages = append(out.Messages, item)
	}

	for _, tool := range req.Tools {
		var t chatTool
		t.Type = "function"
		t.Function.Name = tool.Name
		t.Function.Description = tool.Description
		t.Function.Parameters = tool.InputSchema
		out.Tools = append(out.Tools, t)
	}

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	out.Options = options
	return out
}

func (r chatResponse) toDomain() *domain.ChatResponse {
	out := &domain.ChatResponse{
		Text:             r.Message.Content,
		StopReason:       r.DoneReason,
		Model:            r.Model,
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
	}
	for i, call := range r.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = "tool_calls"
	}
	return out
}
