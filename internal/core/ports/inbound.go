package ports

import (
	"context"
	"time"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

// ArtifactSearcher is the inbound contract for free-text artifact search.
type ArtifactSearcher interface {
	Search(ctx context.Context, query, originalUtterance string, database *domain.ArtifactSet) (*domain.ArtifactSet, error)
}

// ReservationSubmitter is the inbound contract for the reservation form.
type ReservationSubmitter interface {
	Options(now time.Time) domain.ReservationOptions
	Submit(ctx context.Context, app domain.ReservationApplication) (*domain.Reservation, error)
	Get(ctx context.Context, id string) (*domain.Reservation, error)
}

// ReservationProcessor is the inbound contract for asynchronous reservation handling.
type ReservationProcessor interface {
	ProcessByID(ctx context.Context, reservationID string) error
}

// DocentSessions is the inbound contract for guided tour sessions.
type DocentSessions interface {
	Start(ctx context.Context) (domain.SessionView, error)
	View(id string) (domain.SessionView, error)
	Move(ctx context.Context, id string, next bool) (domain.SessionView, error)
	Answer(ctx context.Context, id, input string) (string, domain.SessionView, error)
	Delete(id string) error
}
