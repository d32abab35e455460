package usecase

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

var (
	docentPrograms = []string{
		"대표 유물 해설",
		"전시관별 해설",
		"외국인을 위한 해설(영어)",
		"외국인을 위한 해설(중국어)",
		"외국인을 위한 해설(일본어)",
	}
	visitHours   = []string{"11:00", "13:00", "15:00"}
	weekdayNames = map[time.Weekday]string{
		time.Monday:    "월",
		time.Tuesday:   "화",
		time.Wednesday: "수",
		time.Thursday:  "목",
		time.Friday:    "금",
	}
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

const visitDateCount = 10

// ReservationObserver is notified about accepted applications.
type ReservationObserver interface {
	ObserveReservationSubmitted(program string)
}

type ReservationService struct {
	repo     ports.ReservationRepository
	queue    ports.ReservationQueue
	observer ReservationObserver
	now      func() time.Time
}

func NewReservationService(repo ports.ReservationRepository, queue ports.ReservationQueue) *ReservationService {
	return &ReservationService{
		repo:  repo,
		queue: queue,
		now:   time.Now,
	}
}

func (s *ReservationService) WithObserver(observer ReservationObserver) *ReservationService {
	s.observer = observer
	return s
}

// Options lists the programs, the next ten weekdays starting tomorrow and the visit hours.
func (s *ReservationService) Options(now time.Time) domain.ReservationOptions {
	dates := make([]string, 0, visitDateCount)
	for d := now.AddDate(0, 0, 1); len(dates) < visitDateCount; d = d.AddDate(0, 0, 1) {
		name, ok := weekdayNames[d.Weekday()]
		if !ok {
			continue
		}
		dates = append(dates, fmt.Sprintf("%s (%s)", d.Format(time.DateOnly), name))
	}
	return domain.ReservationOptions{
		Programs:   slices.Clone(docentPrograms),
		VisitDates: dates,
		VisitHours: slices.Clone(visitHours),
	}
}

func (s *ReservationService) Submit(ctx context.Context, app domain.ReservationApplication) (*domain.Reservation, error) {
	app = normalizeApplication(app)
	if err := validateApplication(app); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit reservation", err)
	}

	now := s.now().UTC()
	reservation := &domain.Reservation{
		ID:          uuid.NewString(),
		Application: app,
		Status:      domain.ReservationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, reservation); err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	if err := s.queue.PublishReservationRequested(ctx, reservation.ID); err != nil {
		return nil, fmt.Errorf("publish reservation: %w", err)
	}
	if s.observer != nil {
		s.observer.ObserveReservationSubmitted(app.Program)
	}
	return reservation, nil
}

func (s *ReservationService) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get reservation", fmt.Errorf("id is required"))
	}
	return s.repo.GetByID(ctx, id)
}

func normalizeApplication(app domain.ReservationApplication) domain.ReservationApplication {
	app.Program = strings.TrimSpace(app.Program)
	app.VisitDate = strings.TrimSpace(app.VisitDate)
	app.VisitHours = strings.TrimSpace(app.VisitHours)
	app.ApplicantEmail = strings.TrimSpace(app.ApplicantEmail)
	return app
}

func validateApplication(app domain.ReservationApplication) error {
	if !slices.Contains(docentPrograms, app.Program) {
		return fmt.Errorf("unknown program %q", app.Program)
	}
	if app.VisitDate == "" {
		return fmt.Errorf("visit_date is required")
	}
	datePart, _, _ := strings.Cut(app.VisitDate, " ")
	if _, err := time.Parse(time.DateOnly, datePart); err != nil {
		return fmt.Errorf("visit_date %q is not a date", app.VisitDate)
	}
	if !slices.Contains(visitHours, app.VisitHours) {
		return fmt.Errorf("unknown visit_hours %q", app.VisitHours)
	}
	if app.Visitors < 1 {
		return fmt.Errorf("visitors must be at least 1")
	}
	if !emailPattern.MatchString(app.ApplicantEmail) {
		return fmt.Errorf("invalid applicant_email %q", app.ApplicantEmail)
	}
	return nil
}
