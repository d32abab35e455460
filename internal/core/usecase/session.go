package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

const (
	narrationTemperature = 0.5
	narrationMaxTokens   = 2048
)

// DocentSession is one visitor's guided tour. Its operations are serialized
// and roll the session back when they fail.
type DocentSession struct {
	id     string
	model  ports.ChatModel
	images ports.ImageSource
	router *ToolRouter
	now    func() time.Time

	mu          sync.Mutex
	messages    []domain.Message
	tour        *ArtifactTour
	lastGuideID string

	// Unix nanoseconds; read without mu so eviction never waits on a running turn.
	lastActive atomic.Int64
}

type sessionSnapshot struct {
	messages    []domain.Message
	tour        tourState
	lastGuideID string
}

func newDocentSession(id string, database *domain.ArtifactSet, guideProgram string, deps SessionDeps) *DocentSession {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &DocentSession{
		id:     id,
		model:  deps.Model,
		images: deps.Images,
		router: deps.Router,
		now:    now,
		tour:   NewArtifactTour(database),
	}
	s.touch()
	if guideProgram != "" {
		s.messages = append(s.messages, domain.UserText(buildGuideProgramPrompt(guideProgram)))
	}
	return s
}

func (s *DocentSession) ID() string {
	return s.id
}

// Move steps the tour forward or backward and narrates the artifact if it
// has not been presented yet.
func (s *DocentSession) Move(ctx context.Context, next bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	snap := s.snapshot()
	if err := s.move(ctx, next); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *DocentSession) move(ctx context.Context, next bool) error {
	if next {
		if !s.tour.Next() {
			s.overflow()
		}
	} else if !s.tour.Previous() {
		s.messages = append(s.messages, domain.AssistantText(firstArtifactMessage))
		s.tour.Rewind()
	}

	current, ok := s.tour.Current()
	if !ok || current.IsPresented {
		return nil
	}
	return s.present(ctx)
}

func (s *DocentSession) overflow() {
	if s.tour.Searched() {
		s.messages = append(s.messages, domain.AssistantText(searchedTourEndMessage))
		s.tour = s.tour.Original()
		if s.tour.Next() {
			return
		}
	}
	s.messages = append(s.messages, domain.AssistantText(tourEndMessage))
}

func (s *DocentSession) present(ctx context.Context) error {
	if err := s.addGuide(ctx); err != nil {
		return err
	}
	reply, err := s.complete(ctx)
	if err != nil {
		return err
	}
	s.messages = append(s.messages, domain.AssistantText(reply))
	s.tour.SetPresented(true)
	return nil
}

// Answer replies to a visitor message, running a search or web lookup when
// the model asks for one.
func (s *DocentSession) Answer(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("message is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	snap := s.snapshot()
	reply, err := s.answer(ctx, input)
	if err != nil {
		s.restore(snap)
		return "", err
	}
	return reply, nil
}

func (s *DocentSession) answer(ctx context.Context, input string) (string, error) {
	if err := s.checkAndAddGuide(ctx); err != nil {
		return "", err
	}
	s.messages = append(s.messages, domain.UserText(input))

	outcome, err := s.router.Route(ctx, s.conversation(), s.tour.Database())
	if err != nil {
		return "", err
	}

	if outcome.Searched() {
		if outcome.Found.Len() > 0 {
			s.switchToSearched(outcome.Found)
		}
		s.messages = append(s.messages, outcome.Message)
		return outcome.Message.Content, nil
	}
	if outcome.HasMessage() {
		s.messages = append(s.messages, outcome.Message)
	}

	reply, err := s.complete(ctx)
	if err != nil {
		return "", err
	}
	s.messages = append(s.messages, domain.AssistantText(reply))
	return reply, nil
}

func (s *DocentSession) switchToSearched(found *domain.ArtifactSet) {
	original := s.tour.Original()
	found.Each(func(a domain.Artifact) bool {
		original.set.SetPresented(a.ID, false)
		return true
	})
	s.tour = newSearchedTour(found, original)
}

// Conversation returns the visible dialogue.
func (s *DocentSession) Conversation() []domain.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation()
}

func (s *DocentSession) conversation() []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, 0, len(s.messages))
	for _, m := range s.messages {
		text := strings.TrimSpace(m.Text())
		if strings.HasPrefix(text, systemCommandTag) {
			continue
		}
		out = append(out, domain.ConversationTurn{Role: m.Role, Content: text})
	}
	return out
}

func (s *DocentSession) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := domain.SessionView{ID: s.id, Conversation: s.conversation()}
	if card, ok := s.tour.Card(); ok {
		view.Card = &card
	}
	return view
}

// LastActive reports when the session was last used.
func (s *DocentSession) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *DocentSession) touch() {
	s.lastActive.Store(s.now().UnixNano())
}

func (s *DocentSession) checkAndAddGuide(ctx context.Context) error {
	current, ok := s.tour.Current()
	if !ok || s.lastGuideID == current.ID {
		return nil
	}
	if err := s.addGuide(ctx); err != nil {
		return err
	}
	s.messages = append(s.messages, domain.UserText(revisitInstruction))
	return nil
}

// addGuide replaces the previous artifact briefing with one for the current artifact.
func (s *DocentSession) addGuide(ctx context.Context) error {
	current, ok := s.tour.Current()
	if !ok {
		return nil
	}
	s.removeBeforeGuide()

	parts := make([]domain.ContentPart, 0, 2)
	if current.ImagePath != "" && s.images != nil {
		image, err := s.loadImage(ctx, current.ImagePath)
		if err != nil {
			return err
		}
		parts = append(parts, image)
	}
	parts = append(parts, domain.ContentPart{Type: domain.PartText, Text: buildGuideInstruction(current)})

	s.messages = append(s.messages, domain.Message{Role: domain.RoleUser, Parts: parts})
	s.lastGuideID = current.ID
	return nil
}

func (s *DocentSession) removeBeforeGuide() {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if len(s.messages[i].Parts) == 0 {
			continue
		}
		if strings.Contains(s.messages[i].Text(), relicInformationTag) {
			s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *DocentSession) loadImage(ctx context.Context, imagePath string) (domain.ContentPart, error) {
	rc, err := s.images.OpenImage(ctx, imagePath)
	if err != nil {
		return domain.ContentPart{}, fmt.Errorf("load guide image: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.ContentPart{}, fmt.Errorf("read guide image %s: %w", imagePath, err)
	}
	return domain.ContentPart{
		Type:      domain.PartImage,
		MediaType: http.DetectContentType(data),
		Data:      base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (s *DocentSession) complete(ctx context.Context) (string, error) {
	messages := make([]domain.Message, len(s.messages))
	copy(messages, s.messages)
	resp, err := s.model.Complete(ctx, domain.ChatRequest{
		System:      DocentSystemPrompt,
		Messages:    messages,
		Temperature: narrationTemperature,
		MaxTokens:   narrationMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("docent reply: %w", err)
	}
	return resp.TrimmedText(), nil
}

func (s *DocentSession) snapshot() sessionSnapshot {
	messages := make([]domain.Message, len(s.messages))
	copy(messages, s.messages)
	return sessionSnapshot{
		messages:    messages,
		tour:        s.tour.state(),
		lastGuideID: s.lastGuideID,
	}
}

func (s *DocentSession) restore(snap sessionSnapshot) {
	s.messages = snap.messages
	s.tour = snap.tour.restore()
	s.lastGuideID = snap.lastGuideID
}
