package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const (
	reportReservationTool = "report_reservation"
	threadRepliesTool     = "slack_get_thread_replies"

	agentMaxToolRounds  = 10
	agentTemperature    = 0
	agentMaxTokens      = 1024
	threadPollChecks    = 9
	defaultPollInterval = time.Second
)

var (
	errNoToolCall      = errors.New("model answered without a tool call")
	errTooManyRounds   = errors.New("too many tool rounds")
	errNoThreadReplies = errors.New("no thread replies")
)

func reportReservationDefinition() domain.ToolDefinition {
	nullableString := func(description string) map[string]any {
		return map[string]any{
			"anyOf":       []any{map[string]any{"type": "string"}, map[string]any{"type": "null"}},
			"description": description,
		}
	}
	return domain.ToolDefinition{
		Name:        reportReservationTool,
		Description: "예약 작업 수행 결과",
		InputSchema: map[string]any{
			"type":  "object",
			"title": "Report",
			"properties": map[string]any{
				"is_success":   map[string]any{"type": "boolean", "description": "예약 성공 여부"},
				"thread_ts":    map[string]any{"type": "string", "description": "스레드의 timestamp"},
				"channel_id":   map[string]any{"type": "string", "description": "스레드가 있는 채널의 id"},
				"docent_name":  nullableString("예약된 경우 도슨트의 이름"),
				"docent_email": nullableString("예약된 경우 도슨트의 이메일"),
			},
			"required": []any{"is_success", "thread_ts", "channel_id", "docent_name", "docent_email"},
		},
	}
}

// ReservationAgent books a docent by letting the chat model drive the
// chat-ops workspace tools until it files a report.
type ReservationAgent struct {
	model        ports.ChatModel
	chatops      ports.ChatOpsClient
	pollInterval time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	tools []domain.ToolDefinition
}

func NewReservationAgent(model ports.ChatModel, chatops ports.ChatOpsClient, pollInterval time.Duration) *ReservationAgent {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &ReservationAgent{
		model:        model,
		chatops:      chatops,
		pollInterval: pollInterval,
		logger:       slog.Default(),
	}
}

func (a *ReservationAgent) WithLogger(logger *slog.Logger) *ReservationAgent {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *ReservationAgent) Reserve(ctx context.Context, app domain.ReservationApplication) (domain.ReservationReport, error) {
	tools, err := a.loadTools(ctx)
	if err != nil {
		return domain.ReservationReport{}, err
	}

	messages := []domain.Message{
		domain.UserText(buildSlackbotMessage(BuildApplicationForm(app))),
	}
	for round := 0; ; round++ {
		resp, err := a.model.Complete(ctx, domain.ChatRequest{
			System:      slackbotSystemPrompt,
			Messages:    messages,
			Tools:       tools,
			ToolChoice:  domain.ToolChoiceRequired,
			Temperature: agentTemperature,
			MaxTokens:   agentMaxTokens,
		})
		if err != nil {
			return domain.ReservationReport{}, fmt.Errorf("reservation agent round %d: %w", round, err)
		}
		call, ok := resp.FirstToolCall()
		if !ok {
			return domain.ReservationReport{}, fmt.Errorf("reservation agent round %d: %w", round, errNoToolCall)
		}
		if call.Name == reportReservationTool {
			return decodeReport(call.Arguments)
		}
		if round >= agentMaxToolRounds {
			return domain.ReservationReport{}, fmt.Errorf("reservation agent: %w", errTooManyRounds)
		}

		a.logger.Info("chatops_tool_call", "tool", call.Name, "round", round)
		result, err := a.chatops.CallTool(ctx, call.Name, call.Arguments)
		if err != nil {
			return domain.ReservationReport{}, fmt.Errorf("call %s: %w", call.Name, err)
		}
		if call.Name == threadRepliesTool {
			result, err = a.pollThreadReplies(ctx, call, result)
			if err != nil {
				return domain.ReservationReport{}, err
			}
		}

		messages = append(messages,
			domain.Message{Role: domain.RoleAssistant, Content: resp.Text, ToolCalls: []domain.ToolCall{call}},
			domain.Message{Role: domain.RoleTool, ToolCallID: call.ID, Content: result},
		)
	}
}

func (a *ReservationAgent) loadTools(ctx context.Context) ([]domain.ToolDefinition, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tools != nil {
		return a.tools, nil
	}

	remote, err := a.chatops.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chat-ops tools: %w", err)
	}
	tools := make([]domain.ToolDefinition, 0, len(remote)+1)
	for _, tool := range remote {
		tool.InputSchema = requireAllProperties(tool.InputSchema)
		tools = append(tools, tool)
	}
	tools = append(tools, reportReservationDefinition())
	a.tools = tools
	return tools, nil
}

// pollThreadReplies re-reads a thread until somebody has replied.
func (a *ReservationAgent) pollThreadReplies(ctx context.Context, call domain.ToolCall, result string) (string, error) {
	for check := 1; check <= threadPollChecks; check++ {
		replied, err := hasThreadReplies(result)
		if err != nil {
			return "", fmt.Errorf("decode %s result: %w", threadRepliesTool, err)
		}
		if replied {
			return result, nil
		}

		timer := time.NewTimer(a.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}

		result, err = a.chatops.CallTool(ctx, call.Name, call.Arguments)
		if err != nil {
			return "", fmt.Errorf("call %s: %w", call.Name, err)
		}
	}
	return "", fmt.Errorf("%w after %d checks", errNoThreadReplies, threadPollChecks)
}

func hasThreadReplies(result string) (bool, error) {
	var payload struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		return false, err
	}
	return len(payload.Messages) > 0, nil
}

func decodeReport(args map[string]any) (domain.ReservationReport, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return domain.ReservationReport{}, fmt.Errorf("encode report: %w", err)
	}
	var report domain.ReservationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return domain.ReservationReport{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

// requireAllProperties marks every property required and drops defaults so
// the model always fills each argument explicitly.
func requireAllProperties(schema map[string]any) map[string]any {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return schema
	}

	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}

	required := make([]any, 0, len(props))
	seen := make(map[string]bool, len(props))
	switch existing := schema["required"].(type) {
	case []any:
		for _, v := range existing {
			if name, ok := v.(string); ok && !seen[name] {
				seen[name] = true
				required = append(required, name)
			}
		}
	case []string:
		for _, name := range existing {
			if !seen[name] {
				seen[name] = true
				required = append(required, name)
			}
		}
	}

	cleaned := make(map[string]any, len(props))
	for _, name := range sortedKeys(props) {
		if !seen[name] {
			seen[name] = true
			required = append(required, name)
		}
		prop, ok := props[name].(map[string]any)
		if !ok {
			cleaned[name] = props[name]
			continue
		}
		copied := make(map[string]any, len(prop))
		for k, v := range prop {
			if k != "default" {
				copied[k] = v
			}
		}
		cleaned[name] = copied
	}
	out["properties"] = cleaned
	out["required"] = required
	return out
}
