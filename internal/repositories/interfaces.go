package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/storefront/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CredentialRepository stores the bearer credentials handed out at login.
// A credential is valid only while its session exists here.
type CredentialRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error
}

// CancelFunc stops a subscription. It is safe to call more than once and
// must not block on in-flight deliveries.
type CancelFunc func()

// SessionRecordRepository is the shared remote store holding one session
// record per user, with push notification of changes.
type SessionRecordRepository interface {
	// Put fully replaces the record for record.UserID and stamps
	// LastLoginAt with the store's clock.
	Put(ctx context.Context, record *models.SessionRecord) error
	Get(ctx context.Context, userID string) (*models.SessionRecord, error)
	// DeleteIfCurrent removes the record only while it still names sessionID.
	DeleteIfCurrent(ctx context.Context, userID, sessionID string) error
	// Subscribe delivers the current record and then every change to it.
	// A nil record means the document does not exist. Transport errors are
	// reported through onError.
	Subscribe(ctx context.Context, userID string, onNext func(*models.SessionRecord), onError func(error)) CancelFunc
}

type CatalogRepository interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	GetProduct(ctx context.Context, id int) (*models.Product, error)
}
