package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

func newTestManager(model *scriptedModel, searcher *searcherFake, now func() time.Time) *SessionManager {
	router := NewToolRouter(model, searcher, &webFake{answer: "facts"})
	return NewSessionManager(testCatalog(), `{"대표 유물 해설": "매일 11시"}`, SessionDeps{
		Model:  model,
		Images: &imagesFake{},
		Router: router,
		Now:    now,
	}, time.Hour)
}

func countGuides(messages []domain.Message) int {
	n := 0
	for _, m := range messages {
		if len(m.Parts) > 0 && strings.Contains(m.Text(), relicInformationTag) {
			n++
		}
	}
	return n
}

func TestCreatePresentsFirstArtifact(t *testing.T) {
	model := &scriptedModel{textReplies: []string{"반가사유상입니다."}}
	manager := newTestManager(model, &searcherFake{}, nil)

	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	view := session.View()
	if view.Card == nil || view.Card.ArtifactID != "R1" || view.Card.Header != "3점 중 1번째 전시물입니다." {
		t.Fatalf("unexpected card %+v", view.Card)
	}
	if len(view.Conversation) != 1 || view.Conversation[0].Content != "반가사유상입니다." {
		t.Fatalf("expected only the narration to be visible, got %+v", view.Conversation)
	}

	reqs := model.textRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected one narration call, got %d", len(reqs))
	}
	req := reqs[0]
	if req.System != DocentSystemPrompt || req.Temperature != 0.5 || req.MaxTokens != 2048 {
		t.Fatalf("unexpected narration request %+v", req)
	}
	guide := req.Messages[len(req.Messages)-1]
	if len(guide.Parts) != 2 || guide.Parts[0].Type != domain.PartImage || guide.Parts[0].MediaType != "image/jpeg" {
		t.Fatalf("expected image + text guide, got %+v", guide.Parts)
	}
	if !strings.Contains(guide.Parts[1].Text, "금동미륵보살반가사유상") || !strings.Contains(guide.Parts[1].Text, "삼국시대 불상") {
		t.Fatalf("guide text misses label/content: %q", guide.Parts[1].Text)
	}
	if !strings.Contains(req.Messages[0].Content, "<guide_program>") {
		t.Fatalf("expected guide program first, got %q", req.Messages[0].Content)
	}

	got, err := manager.Get(session.ID())
	if err != nil || got != session {
		t.Fatalf("Get() = %v, %v", got, err)
	}
}

func TestMoveKeepsSingleGuideAndSkipsPresented(t *testing.T) {
	model := &scriptedModel{}
	manager := newTestManager(model, &searcherFake{}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := session.Move(context.Background(), true); err != nil {
		t.Fatalf("Move(next) error = %v", err)
	}
	if n := countGuides(session.messages); n != 1 {
		t.Fatalf("expected exactly one guide message, got %d", n)
	}

	if err := session.Move(context.Background(), false); err != nil {
		t.Fatalf("Move(previous) error = %v", err)
	}
	if len(model.textRequests()) != 2 {
		t.Fatalf("expected no narration for an already presented artifact")
	}

	if err := session.Move(context.Background(), false); err != nil {
		t.Fatalf("Move(previous) error = %v", err)
	}
	conv := session.Conversation()
	if conv[len(conv)-1].Content != "첫 번째 작품입니다." {
		t.Fatalf("expected first-artifact note, got %q", conv[len(conv)-1].Content)
	}
	if card := session.View().Card; card.ArtifactID != "R1" {
		t.Fatalf("expected cursor on R1, got %s", card.ArtifactID)
	}
}

func TestMovePastEndOfCatalog(t *testing.T) {
	manager := newTestManager(&scriptedModel{}, &searcherFake{}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := session.Move(context.Background(), true); err != nil {
			t.Fatalf("Move(next) #%d error = %v", i, err)
		}
	}
	conv := session.Conversation()
	if conv[len(conv)-1].Content != tourEndMessage {
		t.Fatalf("expected tour end note, got %q", conv[len(conv)-1].Content)
	}
	if card := session.View().Card; card.ArtifactID != "R3" {
		t.Fatalf("expected cursor to stay on R3, got %s", card.ArtifactID)
	}
}

func TestMoveRollsBackOnModelError(t *testing.T) {
	model := &scriptedModel{}
	manager := newTestManager(model, &searcherFake{}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	before := session.View()
	messages := len(session.messages)

	model.textErr = domain.WrapError(domain.ErrTemporary, "chat", errors.New("503"))
	if err := session.Move(context.Background(), true); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	after := session.View()
	if after.Card.ArtifactID != before.Card.ArtifactID || len(session.messages) != messages {
		t.Fatalf("expected rollback, card %s -> %s, messages %d -> %d",
			before.Card.ArtifactID, after.Card.ArtifactID, messages, len(session.messages))
	}
	if session.lastGuideID != "R1" {
		t.Fatalf("expected last guide R1 after rollback, got %s", session.lastGuideID)
	}
}

func TestAnswerSearchSwitchesToSearchedTour(t *testing.T) {
	model := &scriptedModel{toolReplies: []*domain.ChatResponse{
		toolReply(toolSearchByQuery, map[string]any{"query": "불상"}),
	}}
	manager := newTestManager(model, &searcherFake{ids: []string{"R3"}}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reply, err := session.Answer(context.Background(), "불상 보여줘")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if reply != "요청하신 전시물이 1점 검색되었습니다. [다음] 버튼을 클릭해주세요." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(model.textRequests()) != 1 {
		t.Fatalf("search replies must not call the narration model")
	}

	if err := session.Move(context.Background(), true); err != nil {
		t.Fatalf("Move(next) error = %v", err)
	}
	card := session.View().Card
	if card.ArtifactID != "R3" || card.Header != "검색된 작품 1점 중 1번째 전시물입니다." {
		t.Fatalf("unexpected searched card %+v", card)
	}

	if err := session.Move(context.Background(), true); err != nil {
		t.Fatalf("Move(next) error = %v", err)
	}
	card = session.View().Card
	if card.ArtifactID != "R2" || card.Header != "3점 중 2번째 전시물입니다." {
		t.Fatalf("expected return to catalog R2, got %+v", card)
	}
	found := false
	for _, turn := range session.Conversation() {
		if turn.Content == searchedTourEndMessage {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected searched tour end note")
	}
}

func TestAnswerReinjectsGuideOnRevisit(t *testing.T) {
	model := &scriptedModel{}
	manager := newTestManager(model, &searcherFake{}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_ = session.Move(context.Background(), true)
	_ = session.Move(context.Background(), false)

	if _, err := session.Answer(context.Background(), "이 불상은 누가 만들었나요?"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	reqs := model.textRequests()
	last := reqs[len(reqs)-1].Messages
	if last[len(last)-1].Content != "이 불상은 누가 만들었나요?" {
		t.Fatalf("expected user message last, got %+v", last[len(last)-1])
	}
	if last[len(last)-2].Content != revisitInstruction {
		t.Fatalf("expected revisit note before the question")
	}
	if !strings.Contains(last[len(last)-3].Text(), "금동미륵보살반가사유상") {
		t.Fatalf("expected R1 guide re-injected")
	}
	if countGuides(last) != 1 {
		t.Fatalf("expected one guide, got %d", countGuides(last))
	}
}

func TestAnswerWithHistoricalFacts(t *testing.T) {
	model := &scriptedModel{
		toolReplies: []*domain.ChatResponse{toolReply(toolSearchHistoryFact, map[string]any{"query": "반가사유상"})},
		textReplies: []string{"narration", "7세기 작품입니다."},
	}
	manager := newTestManager(model, &searcherFake{}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reply, err := session.Answer(context.Background(), "언제 만들어졌어?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if reply != "7세기 작품입니다." {
		t.Fatalf("unexpected reply %q", reply)
	}
	reqs := model.textRequests()
	msgs := reqs[len(reqs)-1].Messages
	if !strings.Contains(msgs[len(msgs)-1].Content, "<history_facts>") {
		t.Fatalf("expected history facts as last prompt message")
	}
	conv := session.Conversation()
	if conv[len(conv)-2].Content != "언제 만들어졌어?" || conv[len(conv)-1].Content != "7세기 작품입니다." {
		t.Fatalf("facts must stay hidden, got %+v", conv)
	}
}

func TestAnswerRollsBackOnRoutingError(t *testing.T) {
	model := &scriptedModel{}
	manager := newTestManager(model, &searcherFake{}, nil)
	session, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	messages := len(session.messages)

	model.toolErr = errors.New("boom")
	if _, err := session.Answer(context.Background(), "안녕"); err == nil {
		t.Fatalf("expected error")
	}
	if len(session.messages) != messages {
		t.Fatalf("expected rollback to %d messages, got %d", messages, len(session.messages))
	}
	if _, err := session.Answer(context.Background(), "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMissingImageFailsSessionStart(t *testing.T) {
	model := &scriptedModel{}
	manager := NewSessionManager(testCatalog(), "", SessionDeps{
		Model:  model,
		Images: &imagesFake{missing: true},
		Router: NewToolRouter(model, &searcherFake{}, &webFake{}),
	}, time.Hour)

	if _, err := manager.Create(context.Background()); !domain.IsKind(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if manager.Len() != 0 {
		t.Fatalf("failed sessions must not be registered")
	}
}

func TestSessionManagerDeleteAndEvict(t *testing.T) {
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	manager := newTestManager(&scriptedModel{}, &searcherFake{}, clock)

	idle, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	now = now.Add(45 * time.Minute)
	active, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	now = now.Add(30 * time.Minute)

	if n := manager.EvictIdle(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := manager.Get(idle.ID()); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected idle session evicted, got %v", err)
	}
	if err := manager.Delete(active.ID()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := manager.Delete(active.ID()); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionsDoNotShareCatalogState(t *testing.T) {
	manager := newTestManager(&scriptedModel{}, &searcherFake{}, nil)
	first, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := manager.Create(context.Background()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a, _ := manager.database.Get("R1"); a.IsPresented {
		t.Fatalf("shared catalog must stay untouched")
	}
	if a, _ := first.tour.Database().Get("R1"); !a.IsPresented {
		t.Fatalf("session catalog should record presentation")
	}
}

func TestSessionManagerOperatesByID(t *testing.T) {
	model := &scriptedModel{textReplies: []string{"첫 작품", "두 번째 작품", "답변입니다."}}
	manager := newTestManager(model, &searcherFake{}, nil)

	view, err := manager.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	moved, err := manager.Move(context.Background(), view.ID, true)
	if err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if moved.Card == nil || moved.Card.ArtifactID != "R2" {
		t.Fatalf("unexpected card after move %+v", moved.Card)
	}

	reply, after, err := manager.Answer(context.Background(), view.ID, "이건 언제 만들어졌나요?")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if reply != "답변입니다." || after.Conversation[len(after.Conversation)-1].Content != reply {
		t.Fatalf("unexpected reply %q / %+v", reply, after.Conversation)
	}

	if _, err := manager.View("missing"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := manager.Answer(context.Background(), view.ID, "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// gatedModel blocks every call while closed is set, until release is closed.
type gatedModel struct {
	closed  atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (m *gatedModel) Complete(ctx context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.closed.Load() {
		m.entered <- struct{}{}
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.ChatResponse{Text: "설명입니다."}, nil
}

func TestEvictIdleDoesNotWaitForRunningTurn(t *testing.T) {
	model := &gatedModel{entered: make(chan struct{}, 1), release: make(chan struct{})}
	manager := NewSessionManager(testCatalog(), "", SessionDeps{
		Model:  model,
		Images: &imagesFake{},
		Router: NewToolRouter(model, &searcherFake{}, &webFake{}),
	}, time.Hour)

	busy, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	other, err := manager.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	model.closed.Store(true)
	moveDone := make(chan error, 1)
	go func() { moveDone <- busy.Move(context.Background(), true) }()
	<-model.entered

	done := make(chan struct{})
	go func() {
		manager.EvictIdle()
		_, _ = manager.Get(other.ID())
		_ = manager.Delete(other.ID())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("session bookkeeping blocked behind a running model call")
	}

	close(model.release)
	if err := <-moveDone; err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if manager.Len() != 1 {
		t.Fatalf("expected the busy session to remain, got %d", manager.Len())
	}
}
