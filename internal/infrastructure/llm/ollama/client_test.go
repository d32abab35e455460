package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/infrastructure/resilience"
)

func TestChatModelSendsToolsImagesAndOptions(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"model": "gemma",
			"message": {"role": "assistant", "content": "", "tool_calls": [
				{"function": {"name": "search_relics_by_keyword", "arguments": {"keyword": "불상"}}}
			]},
			"done_reason": "stop",
			"prompt_eval_count": 12,
			"eval_count": 3
		}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "gemma", "embed"))
	resp, err := model.Complete(context.Background(), domain.ChatRequest{
		System: "도슨트",
		Messages: []domain.Message{{
			Role: domain.RoleUser,
			Parts: []domain.ContentPart{
				{Type: domain.PartImage, MediaType: "image/png", Data: "aW1n"},
				{Type: domain.PartText, Text: "설명해 주세요"},
			},
		}},
		Tools: []domain.ToolDefinition{{
			Name:        "search_relics_by_keyword",
			Description: "키워드 검색",
			InputSchema: map[string]any{"type": "object"},
		}},
		Temperature: 0.5,
		MaxTokens:   512,
		Stop:        []string{"</json>"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("expected system + user messages, got %+v", captured.Messages)
	}
	user := captured.Messages[1]
	if user.Content != "설명해 주세요" || len(user.Images) != 1 || user.Images[0] != "aW1n" {
		t.Fatalf("unexpected user message %+v", user)
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Function.Name != "search_relics_by_keyword" {
		t.Fatalf("unexpected tools %+v", captured.Tools)
	}
	if captured.Options["num_predict"] != float64(512) {
		t.Fatalf("unexpected options %+v", captured.Options)
	}

	call, ok := resp.FirstToolCall()
	if !ok || call.Name != "search_relics_by_keyword" || call.Arguments["keyword"] != "불상" {
		t.Fatalf("unexpected tool call %+v", resp.ToolCalls)
	}
	if resp.StopReason != "tool_calls" || resp.PromptTokens != 12 || resp.CompletionTokens != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestChatModelMapsToolResultsToToolName(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "done"}}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "gemma", "embed"))
	_, err := model.Complete(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			domain.UserText("예약"),
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "call_0", Name: "slack_post_message"}}},
			{Role: domain.RoleTool, ToolCallID: "call_0", Content: `{"ok": true}`},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got := captured.Messages[2].ToolName; got != "slack_post_message" {
		t.Fatalf("expected tool name on tool message, got %q", got)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed")
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrEmbeddingService) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected embedding service + temporary error, got %v", err)
	}
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	})
}

func TestChatRetriesRetryableStatus(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"model": "gemma", "message": {"role": "assistant", "content": "안녕하세요"}, "done": true}`))
	}))
	defer server.Close()

	model := NewChatModel(New(server.URL, "gen", "embed").WithResilience(fastExecutor()))
	resp, err := model.Complete(context.Background(), domain.ChatRequest{Messages: []domain.Message{domain.UserText("hi")}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if calls != 2 || resp.Text != "안녕하세요" {
		t.Fatalf("expected retry then success, calls=%d resp=%+v", calls, resp)
	}
}

func TestEmbedDoesNotRetryFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed").WithResilience(fastExecutor()))
	_, err := embedder.EmbedQuery(context.Background(), "불상")
	if !domain.IsKind(err, domain.ErrEmbeddingService) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary embedding failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single embed request, got %d", calls)
	}
}

func TestEmbedRejectsCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": [[0.1]]}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(server.URL, "gen", "embed")).Embed(context.Background(), []string{"a", "b"})
	if !domain.IsKind(err, domain.ErrEmbeddingService) {
		t.Fatalf("expected ErrEmbeddingService, got %v", err)
	}
}
