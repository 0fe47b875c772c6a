package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("a client with this email already exists")
)

// ClientStore persists enrolled clients. Implementations must be safe for
// concurrent use and keep roster ordering stable by (created_at, id).
type ClientStore interface {
	CreateClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	// ListActiveClients returns clients in good standing on the day of asOf.
	ListActiveClients(ctx context.Context, asOf time.Time) ([]models.Client, error)
	UpdateClient(ctx context.Context, id uuid.UUID, upd models.ClientUpdate) (*models.Client, error)
	DeactivateClient(ctx context.Context, id uuid.UUID) (*models.Client, error)
	// StoreSignature replaces the client's signature. Returns ErrNotFound for
	// unknown clients.
	StoreSignature(ctx context.Context, id uuid.UUID, sig biometric.Signature, imageKey string) error
	// FetchSignatureRoster lists active clients carrying a signature. limit <= 0
	// means no limit.
	FetchSignatureRoster(ctx context.Context, limit int) ([]models.RosterEntry, error)
}

// AccessEventStore is the append-only audit log of verification attempts.
type AccessEventStore interface {
	RecordAccessEvent(ctx context.Context, ev *models.AccessEvent) error
	GetAccessEvent(ctx context.Context, id uuid.UUID) (*models.AccessEvent, error)
	ListAccessEvents(ctx context.Context, f models.AccessEventFilter) ([]models.AccessEvent, int, error)
}

type Store interface {
	ClientStore
	AccessEventStore
	Ping(ctx context.Context) error
	Close()
}

// SearchMatch is one nearest-neighbour result.
type SearchMatch struct {
	ClientID   uuid.UUID `json:"client_id"`
	Name       string    `json:"name"`
	Distance   float64   `json:"distance"`
	Confidence float64   `json:"confidence"`
}

// SignatureSearcher is implemented by stores with a native vector index.
type SignatureSearcher interface {
	NearestClients(ctx context.Context, sig biometric.Signature, limit int) ([]SearchMatch, error)
}

func clampEventLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
