package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const (
	verdictOpenTag  = "<json>"
	verdictCloseTag = "</json>"
)

// LLMJudge asks a chat model for a {id: bool} verdict map.
type LLMJudge struct {
	model       ports.ChatModel
	system      string
	maxTokens   int
	temperature float64
}

func NewLLMJudge(model ports.ChatModel, system string) *LLMJudge {
	return &LLMJudge{
		model:       model,
		system:      system,
		maxTokens:   2048,
		temperature: 0.5,
	}
}

func (j *LLMJudge) Judge(ctx context.Context, query string, candidates []domain.SimilarityResult) ([]domain.RelevanceVerdict, error) {
	results, err := encodeSearchResults(candidates)
	if err != nil {
		return nil, fmt.Errorf("encode search results: %w", err)
	}

	resp, err := j.model.Complete(ctx, domain.ChatRequest{
		System: j.system,
		Messages: []domain.Message{
			domain.UserText(buildFilterPrompt(query, results)),
			domain.AssistantText(verdictOpenTag),
		},
		Temperature: j.temperature,
		MaxTokens:   j.maxTokens,
		Stop:        []string{verdictCloseTag},
	})
	if err != nil {
		return nil, fmt.Errorf("relevance judgment: %w", err)
	}
	return parseVerdicts(resp.Text)
}

// encodeSearchResults renders candidates as an ordered {id: doc} JSON object.
func encodeSearchResults(candidates []domain.SimilarityResult) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	quote := func(s string) (string, error) {
		buf.Reset()
		if err := enc.Encode(s); err != nil {
			return "", err
		}
		return strings.TrimRight(buf.String(), "\n"), nil
	}

	var out strings.Builder
	out.WriteByte('{')
	for i, c := range candidates {
		id, err := quote(c.ID)
		if err != nil {
			return "", err
		}
		doc, err := quote(c.Text)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(id + ": " + doc)
	}
	out.WriteByte('}')
	return out.String(), nil
}

// parseVerdicts strictly decodes a JSON object of booleans, keeping key order.
func parseVerdicts(raw string) ([]domain.RelevanceVerdict, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimSpace(strings.TrimPrefix(text, verdictOpenTag))
	text = strings.TrimSpace(strings.TrimSuffix(text, verdictCloseTag))

	dec := json.NewDecoder(strings.NewReader(text))
	tok, err := dec.Token()
	if err != nil {
		return nil, parseError(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, parseError(fmt.Errorf("expected object, got %v", tok))
	}

	verdicts := make([]domain.RelevanceVerdict, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, parseError(err)
		}
		id, ok := keyTok.(string)
		if !ok {
			return nil, parseError(fmt.Errorf("unexpected key %v", keyTok))
		}
		var relevant bool
		if err := dec.Decode(&relevant); err != nil {
			return nil, parseError(fmt.Errorf("verdict for %q: %w", id, err))
		}
		verdicts = append(verdicts, domain.RelevanceVerdict{ID: id, Relevant: relevant})
	}
	if _, err := dec.Token(); err != nil {
		return nil, parseError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, parseError(fmt.Errorf("trailing data after verdict object"))
	}
	return verdicts, nil
}

func parseError(err error) error {
	return domain.WrapError(domain.ErrParse, "parse relevance verdicts", err)
}
