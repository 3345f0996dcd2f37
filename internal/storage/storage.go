package storage

import (
	"context"
	"time"

	"github.com/strivehq/hookgate/internal/models"
)

type Storage interface {
	// Credentials
	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredentialByDigest(ctx context.Context, digest string) (*models.Credential, error)
	ListCredentials(ctx context.Context, userID string) ([]models.Credential, error)
	TouchCredential(ctx context.Context, id string, when time.Time) error

	// Subscriptions
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	EnableSubscription(ctx context.Context, id string) error
	ListActiveSubscriptions(ctx context.Context, eventType, userID string) ([]models.Subscription, error)
	RecordDeliverySuccess(ctx context.Context, id string, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id string, at time.Time) error

	// Delivery logs
	CreateDeliveryLog(ctx context.Context, entry *models.DeliveryLog) error
	ListDeliveryLogs(ctx context.Context, subscriptionID string, limit, offset int) ([]models.DeliveryLog, error)

	// Stats
	GetStats(ctx context.Context, userID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalDeliveries     int64   `json:"total_deliveries"`
	SuccessCount        int64   `json:"success_count"`
	FailedCount         int64   `json:"failed_count"`
	SuccessRate         float64 `json:"success_rate"`
	TotalSubscriptions  int64   `json:"total_subscriptions"`
	ActiveSubscriptions int64   `json:"active_subscriptions"`
}
