package ports

import (
	"context"
	"io"

	"github.com/kirillkom/museum-docent/internal/core/domain"
)

// Embedder builds vectors for documents and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel runs one chat completion, optionally with tools.
type ChatModel interface {
	Complete(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

// ObjectStorage stores collection files, catalog data and artifact images.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CollectionStore persists the embedded documents of a named collection.
type CollectionStore interface {
	LoadCollection(ctx context.Context, name string) ([]domain.DocumentEmbedding, error)
	SaveCollection(ctx context.Context, name string, docs []domain.DocumentEmbedding) error
}

// ArtifactCatalog loads the ordered artifact database.
type ArtifactCatalog interface {
	LoadArtifacts(ctx context.Context) (*domain.ArtifactSet, error)
	LoadGuideProgram(ctx context.Context) (string, error)
}

// ImageSource opens artifact images by their catalog image path.
type ImageSource interface {
	OpenImage(ctx context.Context, imagePath string) (io.ReadCloser, error)
}

// WebSearcher answers a question from restricted web sources.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// ChatOpsClient talks to the docent chat workspace through remote tools.
type ChatOpsClient interface {
	ListTools(ctx context.Context) ([]domain.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Mailer notifies the applicant about the reservation outcome.
type Mailer interface {
	Send(ctx context.Context, mail domain.Mail) error
}

// ReservationRepository persists reservation state.
type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) error
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus, errMessage string) error
	SaveReport(ctx context.Context, id string, status domain.ReservationStatus, report domain.ReservationReport) error
}

// ReservationQueue publishes/consumes reservation jobs.
type ReservationQueue interface {
	PublishReservationRequested(ctx context.Context, reservationID string) error
	SubscribeReservationRequested(ctx context.Context, handler func(context.Context, string) error) error
}
