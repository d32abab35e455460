package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

type bookerFake struct {
	report domain.ReservationReport
	err    error
	calls  int
}

func (f *bookerFake) Reserve(context.Context, domain.ReservationApplication) (domain.ReservationReport, error) {
	f.calls++
	return f.report, f.err
}

type mailerFake struct {
	sent []domain.Mail
	err  error
}

func (f *mailerFake) Send(_ context.Context, mail domain.Mail) error {
	f.sent = append(f.sent, mail)
	return f.err
}

type outcomeObserverFake struct {
	statuses []domain.ReservationStatus
}

func (f *outcomeObserverFake) ObserveReservationProcessed(status domain.ReservationStatus) {
	f.statuses = append(f.statuses, status)
}

func pendingRepo() *reservationRepoFake {
	repo := newReservationRepoFake()
	repo.items["res-1"] = &domain.Reservation{ID: "res-1", Application: validApplication(), Status: domain.ReservationPending}
	return repo
}

func TestProcessByIDConfirmsAndMailsDocent(t *testing.T) {
	repo := pendingRepo()
	booker := &bookerFake{report: domain.ReservationReport{
		IsSuccess: true, ThreadTS: "1.0", ChannelID: "C1", DocentName: "김도슨", DocentEmail: "docent@example.com",
	}}
	mailer := &mailerFake{}
	observer := &outcomeObserverFake{}
	uc := NewProcessReservationUseCase(repo, booker, mailer, "manager@example.com").WithObserver(observer)

	if err := uc.ProcessByID(context.Background(), "res-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if len(repo.statusCalls) != 2 || repo.statusCalls[0] != domain.ReservationProcessing || repo.statusCalls[1] != domain.ReservationConfirmed {
		t.Fatalf("unexpected status sequence %v", repo.statusCalls)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(mailer.sent))
	}
	mail := mailer.sent[0]
	if mail.To != "visitor@example.com" || mail.Cc != "docent@example.com" || mail.Subject != "문화해설사 예약이 완료되었습니다." {
		t.Fatalf("unexpected mail %+v", mail)
	}
	if !strings.Contains(mail.Body, "👤 이름: 김도슨") || !strings.Contains(mail.Body, "⏰ 방문시간: 13:00") {
		t.Fatalf("unexpected body:\n%s", mail.Body)
	}
	if len(observer.statuses) != 1 || observer.statuses[0] != domain.ReservationConfirmed {
		t.Fatalf("unexpected observed statuses %v", observer.statuses)
	}
}

func TestProcessByIDUnassignedSendsFailMailToManager(t *testing.T) {
	repo := pendingRepo()
	mailer := &mailerFake{}
	uc := NewProcessReservationUseCase(repo, &bookerFake{report: domain.ReservationReport{ThreadTS: "1.0", ChannelID: "C1"}}, mailer, "manager@example.com")

	if err := uc.ProcessByID(context.Background(), "res-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if repo.items["res-1"].Status != domain.ReservationUnassigned || repo.report == nil {
		t.Fatalf("expected unassigned with report, got %+v", repo.items["res-1"])
	}
	mail := mailer.sent[0]
	if mail.Cc != "manager@example.com" || mail.Subject != "문화해설사 예약이 실패했습니다." || mail.Body != failMailBody {
		t.Fatalf("unexpected mail %+v", mail)
	}
}

func TestProcessByIDMarksFailedOnAgentError(t *testing.T) {
	repo := pendingRepo()
	mailer := &mailerFake{}
	observer := &outcomeObserverFake{}
	agentErr := errors.New("mcp unavailable")
	uc := NewProcessReservationUseCase(repo, &bookerFake{err: agentErr}, mailer, "manager@example.com").WithObserver(observer)

	err := uc.ProcessByID(context.Background(), "res-1")
	if !errors.Is(err, agentErr) {
		t.Fatalf("expected agent error, got %v", err)
	}
	stored := repo.items["res-1"]
	if stored.Status != domain.ReservationFailed || stored.ErrorMessage != "mcp unavailable" {
		t.Fatalf("unexpected stored reservation %+v", stored)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].Cc != "manager@example.com" {
		t.Fatalf("expected failure mail to manager, got %+v", mailer.sent)
	}
	if observer.statuses[0] != domain.ReservationFailed {
		t.Fatalf("unexpected observed statuses %v", observer.statuses)
	}
}

func TestProcessByIDJoinsMailErrorOnFailure(t *testing.T) {
	repo := pendingRepo()
	mailErr := errors.New("smtp down")
	uc := NewProcessReservationUseCase(repo, &bookerFake{err: errors.New("agent")}, &mailerFake{err: mailErr}, "manager@example.com")

	err := uc.ProcessByID(context.Background(), "res-1")
	if !errors.Is(err, mailErr) {
		t.Fatalf("expected joined mail error, got %v", err)
	}
}

func TestProcessByIDSkipsTerminalReservations(t *testing.T) {
	repo := pendingRepo()
	repo.items["res-1"].Status = domain.ReservationConfirmed
	booker := &bookerFake{}
	uc := NewProcessReservationUseCase(repo, booker, &mailerFake{}, "manager@example.com")

	if err := uc.ProcessByID(context.Background(), "res-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	if booker.calls != 0 || len(repo.statusCalls) != 0 {
		t.Fatalf("terminal reservations must not be processed again")
	}
}

func TestProcessByIDMissingReservation(t *testing.T) {
	uc := NewProcessReservationUseCase(newReservationRepoFake(), &bookerFake{}, &mailerFake{}, "")
	if err := uc.ProcessByID(context.Background(), "nope"); !domain.IsKind(err, domain.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}
