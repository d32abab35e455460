package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const (
	toolSearchByCategory  = "search_relics_by_period_and_genre"
	toolSearchByQuery     = "search_relics_without_period_and_genre"
	toolSearchHistoryFact = "search_historical_facts"
)

// Tool call statuses reported to the ToolObserver.
const (
	ToolStatusOK    = "ok"
	ToolStatusError = "error"
	ToolStatusEmpty = "empty"
)

var genres = []any{
	"건축",
	"조각(불상)",
	"조각(불상 외)",
	"공예",
	"회화",
	"서예",
	"장신구",
	"복식",
	"과학기술",
	"기타",
}

func docentTools() []domain.ToolDefinition {
	return []domain.ToolDefinition{
		{
			Name:        toolSearchByCategory,
			Description: "'시대'와 '전시물'로 검색 요청하는 경우에 한해 사용할 것",
			InputSchema: map[string]any{
				"type":  "object",
				"title": "Category",
				"properties": map[string]any{
					"nationality": map[string]any{
						"type":        "string",
						"title":       "Nationality",
						"description": "예: 한국, 중국, 일본",
					},
					"period": map[string]any{
						"type":        "string",
						"title":       "Period",
						"description": "예: 신라, 고려, 조선. 단, 통일신라는 '신라'로 표기",
					},
					"genre": map[string]any{
						"type":  "string",
						"title": "Genre",
						"enum":  genres,
					},
				},
				"required": []any{"nationality", "period", "genre"},
			},
		},
		{
			Name:        toolSearchByQuery,
			Description: "search_relics_by_period_and_genre 이외의 모든 검색 조건에 해당하는 경우 사용할 것",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "사용자 질의",
					},
				},
			},
		},
		{
			Name:        toolSearchHistoryFact,
			Description: "역사적 사실에 대한 사용자의 질문에 답히기 위해 사용",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "웹 검색에 입력할 키워드를 3개 이내로 만들 것",
					},
				},
			},
		},
	}
}

// ToolObserver receives one event per executed docent tool.
type ToolObserver interface {
	ObserveToolCall(tool, status string)
}

// ToolOutcome is what the router produced for one user turn.
// Found is nil unless an artifact search ran; Message has no role when no tool ran.
type ToolOutcome struct {
	Tool    string
	Found   *domain.ArtifactSet
	Message domain.Message
}

func (o ToolOutcome) Searched() bool {
	return o.Found != nil
}

func (o ToolOutcome) HasMessage() bool {
	return o.Message.Role != ""
}

// ToolRouter lets the chat model pick a search tool for the latest user turn and runs it.
type ToolRouter struct {
	model    ports.ChatModel
	searcher ports.ArtifactSearcher
	web      ports.WebSearcher
	observer ToolObserver
	logger   *slog.Logger
}

func NewToolRouter(model ports.ChatModel, searcher ports.ArtifactSearcher, web ports.WebSearcher) *ToolRouter {
	return &ToolRouter{
		model:    model,
		searcher: searcher,
		web:      web,
		logger:   slog.Default(),
	}
}

func (r *ToolRouter) WithObserver(observer ToolObserver) *ToolRouter {
	r.observer = observer
	return r
}

func (r *ToolRouter) WithLogger(logger *slog.Logger) *ToolRouter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Route asks the model whether the visible conversation calls for a tool and
// executes the chosen one against the catalog.
func (r *ToolRouter) Route(ctx context.Context, conversation []domain.ConversationTurn, database *domain.ArtifactSet) (ToolOutcome, error) {
	messages := make([]domain.Message, 0, len(conversation))
	for _, turn := range conversation {
		messages = append(messages, domain.Message{Role: turn.Role, Content: turn.Content})
	}

	resp, err := r.model.Complete(ctx, domain.ChatRequest{
		System:      toolSystemPrompt,
		Messages:    messages,
		Tools:       docentTools(),
		ToolChoice:  domain.ToolChoiceAuto,
		Temperature: 0,
		MaxTokens:   2048,
	})
	if err != nil {
		return ToolOutcome{}, fmt.Errorf("route tools: %w", err)
	}
	call, ok := resp.FirstToolCall()
	if !ok {
		return ToolOutcome{}, nil
	}

	utterance := lastUserUtterance(conversation)
	var outcome ToolOutcome
	switch call.Name {
	case toolSearchByCategory:
		outcome = r.searchByCategory(call.Arguments, database)
	case toolSearchByQuery:
		outcome, err = r.searchByQuery(ctx, stringArg(call.Arguments, "query", utterance), utterance, database)
	case toolSearchHistoryFact:
		outcome, err = r.searchHistoricalFacts(ctx, stringArg(call.Arguments, "query", utterance))
	default:
		r.logger.Warn("unknown_tool_call", "tool", call.Name)
		return ToolOutcome{}, nil
	}
	r.observe(call.Name, outcome, err)
	if err != nil {
		return ToolOutcome{}, fmt.Errorf("tool %s: %w", call.Name, err)
	}
	outcome.Tool = call.Name
	return outcome, nil
}

func (r *ToolRouter) observe(tool string, outcome ToolOutcome, err error) {
	if r.observer == nil {
		return
	}
	status := ToolStatusOK
	switch {
	case err != nil:
		status = ToolStatusError
	case outcome.Searched() && outcome.Found.Len() == 0:
		status = ToolStatusEmpty
	}
	r.observer.ObserveToolCall(tool, status)
}

func (r *ToolRouter) searchByCategory(args map[string]any, database *domain.ArtifactSet) ToolOutcome {
	condition := domain.Category{
		Nationality: stringArg(args, "nationality", ""),
		Period:      stringArg(args, "period", ""),
		Genre:       stringArg(args, "genre", ""),
	}
	found := domain.NewArtifactSet()
	database.Each(func(a domain.Artifact) bool {
		if a.Category == condition {
			a.IsPresented = false
			found.Add(a)
		}
		return true
	})
	return ToolOutcome{
		Found:   found,
		Message: domain.AssistantText(searchResultMessage(found.Len(), false)),
	}
}

func (r *ToolRouter) searchByQuery(ctx context.Context, query, utterance string, database *domain.ArtifactSet) (ToolOutcome, error) {
	found, err := r.searcher.Search(ctx, query, utterance, database)
	if err != nil {
		return ToolOutcome{}, err
	}
	if found == nil {
		found = domain.NewArtifactSet()
	}
	return ToolOutcome{
		Found:   found,
		Message: domain.AssistantText(searchResultMessage(found.Len(), true)),
	}, nil
}

func (r *ToolRouter) searchHistoricalFacts(ctx context.Context, query string) (ToolOutcome, error) {
	if r.web == nil {
		return ToolOutcome{}, fmt.Errorf("web search is not configured")
	}
	facts, err := r.web.Search(ctx, query)
	if err != nil {
		return ToolOutcome{}, err
	}
	return ToolOutcome{Message: domain.UserText(buildHistoryFactsPrompt(facts))}, nil
}

func lastUserUtterance(conversation []domain.ConversationTurn) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == domain.RoleUser {
			return conversation[i].Content
		}
	}
	return ""
}

func stringArg(args map[string]any, key, fallback string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}
