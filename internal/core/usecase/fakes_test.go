package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

// scriptedModel replies with queued responses. Requests with tools consume
// toolReplies, the rest consume textReplies.
type scriptedModel struct {
	mu          sync.Mutex
	toolReplies []*domain.ChatResponse
	textReplies []string
	textErr     error
	toolErr     error
	requests    []domain.ChatRequest
}

func (m *scriptedModel) Complete(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(req.Tools) > 0 {
		if m.toolErr != nil {
			return nil, m.toolErr
		}
		if len(m.toolReplies) == 0 {
			return &domain.ChatResponse{Text: "no tool"}, nil
		}
		resp := m.toolReplies[0]
		m.toolReplies = m.toolReplies[1:]
		return resp, nil
	}

	if m.textErr != nil {
		return nil, m.textErr
	}
	if len(m.textReplies) == 0 {
		return &domain.ChatResponse{Text: "설명입니다."}, nil
	}
	text := m.textReplies[0]
	m.textReplies = m.textReplies[1:]
	return &domain.ChatResponse{Text: text}, nil
}

func (m *scriptedModel) textRequests() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ChatRequest
	for _, req := range m.requests {
		if len(req.Tools) == 0 {
			out = append(out, req)
		}
	}
	return out
}

func toolReply(name string, args map[string]any) *domain.ChatResponse {
	return &domain.ChatResponse{
		ToolCalls:  []domain.ToolCall{{ID: "call_0", Name: name, Arguments: args}},
		StopReason: "tool_calls",
	}
}

type searcherFake struct {
	ids       []string
	err       error
	query     string
	utterance string
}

func (f *searcherFake) Search(_ context.Context, query, utterance string, database *domain.ArtifactSet) (*domain.ArtifactSet, error) {
	f.query = query
	f.utterance = utterance
	if f.err != nil {
		return nil, f.err
	}
	out := domain.NewArtifactSet()
	for _, id := range f.ids {
		if a, ok := database.Get(id); ok {
			a.IsPresented = false
			out.Add(a)
		}
	}
	return out, nil
}

type webFake struct {
	answer string
	err    error
	query  string
}

func (f *webFake) Search(_ context.Context, query string) (string, error) {
	f.query = query
	return f.answer, f.err
}

type imagesFake struct {
	missing bool
}

func (f *imagesFake) OpenImage(_ context.Context, imagePath string) (io.ReadCloser, error) {
	if f.missing {
		return nil, domain.WrapError(domain.ErrArtifactNotFound, "open image", errors.New(imagePath))
	}
	return io.NopCloser(strings.NewReader("\xff\xd8\xff\xe0jpeg")), nil
}

func testCatalog() *domain.ArtifactSet {
	set := domain.NewArtifactSet()
	for _, a := range []domain.Artifact{
		{ID: "R1", Label: map[string]any{"명칭": "금동미륵보살반가사유상"}, Content: "삼국시대 불상", Image: "a/pensive.png",
			Category: domain.Category{Nationality: "한국", Period: "신라", Genre: "조각(불상)"}},
		{ID: "R2", Label: map[string]any{"명칭": "백자 달항아리"}, Content: "조선 후기의 백자", Image: "b/jar.jpg",
			Category: domain.Category{Nationality: "한국", Period: "조선", Genre: "공예"}},
		{ID: "R3", Label: map[string]any{"명칭": "석굴암 본존불"}, Content: "통일신라 불상", Image: "c/buddha.jpg",
			Category: domain.Category{Nationality: "한국", Period: "신라", Genre: "조각(불상)"}},
	} {
		a.Normalize()
		set.Add(a)
	}
	return set
}
