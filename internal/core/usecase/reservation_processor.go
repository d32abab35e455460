package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/museum-docent/internal/core/domain"
	"github.com/kirillkom/museum-docent/internal/core/ports"
)

// ReservationBooker finds a docent for an application.
type ReservationBooker interface {
	Reserve(ctx context.Context, app domain.ReservationApplication) (domain.ReservationReport, error)
}

// ReservationOutcomeObserver is told how each processed reservation ended.
type ReservationOutcomeObserver interface {
	ObserveReservationProcessed(status domain.ReservationStatus)
}

type ProcessReservationUseCase struct {
	repo         ports.ReservationRepository
	booker       ReservationBooker
	mailer       ports.Mailer
	managerEmail string
	observer     ReservationOutcomeObserver
	logger       *slog.Logger
}

func NewProcessReservationUseCase(
	repo ports.ReservationRepository,
	booker ReservationBooker,
	mailer ports.Mailer,
	managerEmail string,
) *ProcessReservationUseCase {
	return &ProcessReservationUseCase{
		repo:         repo,
		booker:       booker,
		mailer:       mailer,
		managerEmail: managerEmail,
		logger:       slog.Default(),
	}
}

func (uc *ProcessReservationUseCase) WithObserver(observer ReservationOutcomeObserver) *ProcessReservationUseCase {
	uc.observer = observer
	return uc
}

func (uc *ProcessReservationUseCase) WithLogger(logger *slog.Logger) *ProcessReservationUseCase {
	if logger != nil {
		uc.logger = logger
	}
	return uc
}

func (uc *ProcessReservationUseCase) ProcessByID(ctx context.Context, reservationID string) error {
	reservation, err := uc.repo.GetByID(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("load reservation: %w", err)
	}
	if isTerminal(reservation.Status) {
		uc.logger.Info("reservation_already_processed", "reservation_id", reservationID, "status", reservation.Status)
		return nil
	}

	if err := uc.repo.UpdateStatus(ctx, reservationID, domain.ReservationProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	app := reservation.Application
	report, err := uc.booker.Reserve(ctx, app)
	if err != nil {
		return uc.fail(ctx, reservation, err)
	}

	status := domain.ReservationUnassigned
	if report.IsSuccess {
		status = domain.ReservationConfirmed
	}
	if err := uc.repo.SaveReport(ctx, reservationID, status, report); err != nil {
		return fmt.Errorf("save reservation report: %w", err)
	}

	mail := uc.failMail(app.ApplicantEmail)
	if report.IsSuccess {
		mail = domain.Mail{
			To:      app.ApplicantEmail,
			Cc:      report.DocentEmail,
			Subject: successMailSubject,
			Body:    buildSuccessMailBody(BuildApplicationForm(app), report),
		}
	}
	if err := uc.mailer.Send(ctx, mail); err != nil {
		return fmt.Errorf("send reservation mail: %w", err)
	}

	uc.logger.Info("reservation_processed", "reservation_id", reservationID, "status", status)
	if uc.observer != nil {
		uc.observer.ObserveReservationProcessed(status)
	}
	return nil
}

func (uc *ProcessReservationUseCase) fail(ctx context.Context, reservation *domain.Reservation, cause error) error {
	uc.logger.Error("reservation_failed", "reservation_id", reservation.ID, "error", cause)
	if uc.observer != nil {
		uc.observer.ObserveReservationProcessed(domain.ReservationFailed)
	}

	var errs []error
	if err := uc.repo.UpdateStatus(ctx, reservation.ID, domain.ReservationFailed, cause.Error()); err != nil {
		errs = append(errs, fmt.Errorf("mark failed status: %w", err))
	}
	if err := uc.mailer.Send(ctx, uc.failMail(reservation.Application.ApplicantEmail)); err != nil {
		errs = append(errs, fmt.Errorf("send failure mail: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w; %w", cause, errors.Join(errs...))
	}
	return cause
}

func (uc *ProcessReservationUseCase) failMail(to string) domain.Mail {
	return domain.Mail{
		To:      to,
		Cc:      uc.managerEmail,
		Subject: failMailSubject,
		Body:    failMailBody,
	}
}

func isTerminal(status domain.ReservationStatus) bool {
	switch status {
	case domain.ReservationConfirmed, domain.ReservationUnassigned, domain.ReservationFailed:
		return true
	}
	return false
}
