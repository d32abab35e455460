package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type sessionsFake struct {
	view      domain.SessionView
	reply     string
	err       error
	lastNext  *bool
	lastInput string
	deleted   []string
}

func (f *sessionsFake) Start(context.Context) (domain.SessionView, error) {
	return f.view, f.err
}

func (f *sessionsFake) View(id string) (domain.SessionView, error) {
	if id != f.view.ID {
		return domain.SessionView{}, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
	}
	return f.view, f.err
}

func (f *sessionsFake) Move(_ context.Context, id string, next bool) (domain.SessionView, error) {
	f.lastNext = &next
	if _, err := f.View(id); err != nil {
		return domain.SessionView{}, err
	}
	return f.view, f.err
}

func (f *sessionsFake) Answer(_ context.Context, id, input string) (string, domain.SessionView, error) {
	f.lastInput = input
	if _, err := f.View(id); err != nil {
		return "", domain.SessionView{}, err
	}
	if f.err != nil {
		return "", domain.SessionView{}, f.err
	}
	return f.reply, f.view, nil
}

func (f *sessionsFake) Delete(id string) error {
	if _, err := f.View(id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type searcherFake struct {
	found     *domain.ArtifactSet
	err       error
	query     string
	utterance string
}

func (f *searcherFake) Search(_ context.Context, query, utterance string, _ *domain.ArtifactSet) (*domain.ArtifactSet, error) {
	f.query, f.utterance = query, utterance
	if f.err != nil {
		return nil, f.err
	}
	return f.found, nil
}

type imagesFake struct {
	data map[string]string
}

func (f imagesFake) OpenImage(_ context.Context, imagePath string) (io.ReadCloser, error) {
	body, ok := f.data[imagePath]
	if !ok {
		return nil, domain.WrapError(domain.ErrArtifactNotFound, "open image", errors.New(imagePath))
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type reservationsFake struct {
	submitted []domain.ReservationApplication
	stored    map[string]*domain.Reservation
	err       error
}

func (f *reservationsFake) Options(now time.Time) domain.ReservationOptions {
	return domain.ReservationOptions{
		Programs:   []string{"대표 유물 해설"},
		VisitDates: []string{now.AddDate(0, 0, 1).Format("2006-01-02")},
		VisitHours: []string{"11:00"},
	}
}

func (f *reservationsFake) Submit(_ context.Context, app domain.ReservationApplication) (*domain.Reservation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, app)
	return &domain.Reservation{ID: "res-1", Application: app, Status: domain.ReservationPending}, nil
}

func (f *reservationsFake) Get(_ context.Context, id string) (*domain.Reservation, error) {
	r, ok := f.stored[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrReservationNotFound, "get reservation", fmt.Errorf("id=%s", id))
	}
	return r, nil
}

func testDatabase() *domain.ArtifactSet {
	set := domain.NewArtifactSet()
	set.Add(domain.Artifact{ID: "R1", Label: map[string]any{"명칭": "반가사유상"}, ImagePath: "R1/r1.png", Title: "반가사유상 (R1)"})
	set.Add(domain.Artifact{ID: "R2", Label: map[string]any{"명칭": "달항아리"}, ImagePath: "R2/r2.jpg", Title: "달항아리 (R2)"})
	return set
}
